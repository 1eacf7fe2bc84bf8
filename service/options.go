package service

import "time"

/*
Node configuration. Everything has a usable default for a single-host LAN
deployment; the CLI binds its flags onto these options.
*/

////////////////////////////////////////////////////////////////////////////////

type config struct {
	tcpPort        int
	httpPort       int
	discoveryPort  int
	beaconInterval time.Duration
	loopback       bool
	authToken      string
	secure         bool
	resolver       string
	syncInterval   time.Duration
	fanout         int
	requestTimeout time.Duration
	cacheSize      int64
	cacheShards    int
}

func defaultConfig() config {
	return config{
		tcpPort:        7420,
		httpPort:       0,
		discoveryPort:  5000,
		beaconInterval: 5 * time.Second,
		resolver:       "lww",
		syncInterval:   2 * time.Second,
		fanout:         3,
		requestTimeout: 5 * time.Second,
		cacheSize:      4096,
		cacheShards:    16,
	}
}

// Option configures a Node.
type Option func(*config)

// WithTCPPort sets the sync server port, which is also the port advertised
// in discovery beacons.
func WithTCPPort(port int) Option {
	return func(c *config) { c.tcpPort = port }
}

// WithHTTPPort enables the HTTP surface on the given port.
func WithHTTPPort(port int) Option {
	return func(c *config) { c.httpPort = port }
}

// WithDiscoveryPort sets the UDP beacon port.
func WithDiscoveryPort(port int) Option {
	return func(c *config) { c.discoveryPort = port }
}

// WithBeaconInterval sets the beacon emit interval.
func WithBeaconInterval(d time.Duration) Option {
	return func(c *config) { c.beaconInterval = d }
}

// WithLoopbackOverride points peer addresses at 127.0.0.1 for single-host
// deployments.
func WithLoopbackOverride(enabled bool) Option {
	return func(c *config) { c.loopback = enabled }
}

// WithAuthToken sets the shared cluster secret peers must present.
func WithAuthToken(token string) Option {
	return func(c *config) { c.authToken = token }
}

// WithSecureMode enables the encrypted session envelope. Secure and
// plaintext nodes refuse each other's handshakes.
func WithSecureMode(enabled bool) Option {
	return func(c *config) { c.secure = enabled }
}

// WithResolver selects the conflict resolution strategy ("lww" or
// "field-merge").
func WithResolver(name string) Option {
	return func(c *config) { c.resolver = name }
}

// WithSyncInterval sets the anti-entropy round cadence.
func WithSyncInterval(d time.Duration) Option {
	return func(c *config) { c.syncInterval = d }
}

// WithFanout sets how many peers each round samples.
func WithFanout(n int) Option {
	return func(c *config) { c.fanout = n }
}

// WithRequestTimeout sets the per-exchange network timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *config) { c.requestTimeout = d }
}

// WithCacheSize sets the document cache capacity in entries.
func WithCacheSize(size int64) Option {
	return func(c *config) { c.cacheSize = size }
}
