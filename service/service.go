package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/loambase/loam/cache"
	"github.com/loambase/loam/db"
	"github.com/loambase/loam/discovery"
	"github.com/loambase/loam/gossip"
	"github.com/loambase/loam/merge"
	"github.com/loambase/loam/peers"
	"github.com/loambase/loam/resolve"
	"github.com/loambase/loam/routes"
	"github.com/loambase/loam/storage"
	"github.com/loambase/loam/util/log"
	"golang.org/x/sync/errgroup"
)

/*
Package service assembles a running node. The long-lived singletons -
directory, discovery, sync server, orchestrator - are composed here once,
as an explicit dependency graph; nothing registers itself anywhere. Shutdown
is ordered: the orchestrator stops initiating rounds first, then discovery
stops advertising and listening, and the sync server goes down last so
in-flight merges finish or roll back cleanly.
*/

////////////////////////////////////////////////////////////////////////////////

// Node is one running replica with all of its background services.
type Node struct {
	cfg  config
	db   *db.DB
	dir  *peers.Directory
	disc *discovery.Service
	orch *gossip.Orchestrator
	srv  *gossip.Server
	http *http.Server
}

// New opens the store at dataPath and wires up a node.
func New(ctx context.Context, dataPath string, opts ...Option) (*Node, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	store, err := storage.Open(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	docCache := cache.NewDocCache(cfg.cacheSize, cfg.cacheShards)
	database, err := db.New(ctx, store, db.WithCache(docCache))
	if err != nil {
		store.Close()
		return nil, err
	}

	id := gossip.Identity{
		NodeID:    database.NodeID(),
		AuthToken: cfg.authToken,
		Secure:    cfg.secure,
	}
	resolver := resolve.ForName(cfg.resolver)
	merger := merge.NewEngine(store, database.Clock(), resolver, merge.WithInvalidator(docCache))

	var orch *gossip.Orchestrator
	dir := peers.NewDirectory(id.NodeID, peers.OnExpire(func(d peers.Descriptor) {
		if orch != nil {
			orch.Forget(d.NodeID)
		}
	}))
	disc := discovery.NewService(
		id.NodeID, cfg.tcpPort, dir,
		discovery.WithPort(cfg.discoveryPort),
		discovery.WithInterval(cfg.beaconInterval),
		discovery.WithLoopbackOverride(cfg.loopback),
	)
	orch = gossip.NewOrchestrator(
		dir, store, merger, id,
		gossip.WithInterval(cfg.syncInterval),
		gossip.WithFanout(cfg.fanout),
		gossip.WithRequestTimeout(cfg.requestTimeout),
	)
	srv := gossip.NewServer(fmt.Sprintf(":%d", cfg.tcpPort), id, store, merger)

	node := &Node{
		cfg:  cfg,
		db:   database,
		dir:  dir,
		disc: disc,
		orch: orch,
		srv:  srv,
	}
	if cfg.httpPort > 0 {
		node.http = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.httpPort),
			Handler: routes.MakeRoutes(database, dir),
		}
	}
	return node, nil
}

// DB returns the node's document API.
func (n *Node) DB() *db.DB {
	return n.db
}

// Directory returns the node's peer directory.
func (n *Node) Directory() *peers.Directory {
	return n.dir
}

// Run starts all services and blocks until the context is canceled or a
// fatal error occurs. Inability to bind the sync port is fatal.
func (n *Node) Run(ctx context.Context) error {
	log.Infow(ctx, "starting node",
		"node", n.db.NodeID(), "port", n.cfg.tcpPort, "resolver", n.cfg.resolver,
		"secure", n.cfg.secure)

	g, gctx := errgroup.WithContext(ctx)

	orchCtx, cancelOrch := context.WithCancel(context.Background())
	defer cancelOrch()
	discCtx, cancelDisc := context.WithCancel(context.Background())
	defer cancelDisc()
	srvCtx, cancelSrv := context.WithCancel(context.Background())
	defer cancelSrv()

	orchDone := make(chan struct{})
	discDone := make(chan struct{})

	g.Go(func() error {
		defer close(orchDone)
		return n.orch.Run(orchCtx)
	})
	g.Go(func() error {
		defer close(discDone)
		return n.disc.Run(discCtx)
	})
	g.Go(func() error {
		n.dir.Run(discCtx)
		return nil
	})
	g.Go(func() error {
		return n.srv.Run(srvCtx)
	})
	if n.http != nil {
		g.Go(func() error {
			if err := n.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server failed: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		cancelOrch()
		<-orchDone
		cancelDisc()
		<-discDone
		cancelSrv()
		if n.http != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			n.http.Shutdown(shutdownCtx) //nolint:errcheck
		}
		return nil
	})

	err := g.Wait()
	if closeErr := n.db.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	log.Infow(ctx, "node stopped", "node", n.db.NodeID())
	return err
}
