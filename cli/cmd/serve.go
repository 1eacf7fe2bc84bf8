package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loambase/loam/service"
	"github.com/loambase/loam/util/log"
	"github.com/spf13/cobra"
)

var (
	serveData          string
	servePort          int
	serveHTTPPort      int
	serveDiscoveryPort int
	serveAuthToken     string
	serveSecure        bool
	serveResolver      string
	serveSyncInterval  time.Duration
	serveFanout        int
	serveTimeout       time.Duration
	serveLoopback      bool
	serveLogLevel      string
	serveLogJSON       bool
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a loam node",
	Run: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if err := level.UnmarshalText([]byte(serveLogLevel)); err != nil {
			bailf("invalid log level %q", serveLogLevel)
		}
		log.Configure(os.Stderr, level, serveLogJSON)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		node, err := service.New(ctx, serveData,
			service.WithTCPPort(servePort),
			service.WithHTTPPort(serveHTTPPort),
			service.WithDiscoveryPort(serveDiscoveryPort),
			service.WithAuthToken(serveAuthToken),
			service.WithSecureMode(serveSecure),
			service.WithResolver(serveResolver),
			service.WithSyncInterval(serveSyncInterval),
			service.WithFanout(serveFanout),
			service.WithRequestTimeout(serveTimeout),
			service.WithLoopbackOverride(serveLoopback),
		)
		if err != nil {
			bailf("failed to start node: %v", err)
		}
		if err := node.Run(ctx); err != nil {
			bailf("node failed: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveData, "data", "", "loam.db", "Path to the database file")
	serveCmd.Flags().IntVarP(&servePort, "port", "", 7420, "TCP sync port (advertised in beacons)")
	serveCmd.Flags().IntVarP(&serveHTTPPort, "http-port", "", 7421, "HTTP port (0 disables)")
	serveCmd.Flags().IntVarP(&serveDiscoveryPort, "discovery-port", "", 5000, "UDP beacon port")
	serveCmd.Flags().StringVarP(&serveAuthToken, "auth-token", "", "", "Shared cluster secret")
	serveCmd.Flags().BoolVarP(&serveSecure, "secure", "", false, "Encrypt sync sessions")
	serveCmd.Flags().StringVarP(&serveResolver, "resolver", "", "lww", "Conflict resolver (lww or field-merge)")
	serveCmd.Flags().DurationVarP(&serveSyncInterval, "sync-interval", "", 2*time.Second, "Anti-entropy round interval")
	serveCmd.Flags().IntVarP(&serveFanout, "fanout", "", 3, "Peers sampled per round")
	serveCmd.Flags().DurationVarP(&serveTimeout, "request-timeout", "", 5*time.Second, "Per-request network timeout")
	serveCmd.Flags().BoolVarP(&serveLoopback, "loopback", "", false, "Address peers via 127.0.0.1 (single-host testing)")
	serveCmd.Flags().StringVarP(&serveLogLevel, "log-level", "", "info", "Log level (debug, info, warn, error)")
	serveCmd.Flags().BoolVarP(&serveLogJSON, "log-json", "", false, "Emit JSON log records")
}
