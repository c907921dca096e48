package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/azybler/route_finder/pkg/api"
	"github.com/azybler/route_finder/pkg/config"
	"github.com/azybler/route_finder/pkg/graph"
	"github.com/azybler/route_finder/pkg/routing"
)

func main() {
	cfg, err := config.Load(os.Args[1:], os.Stderr)
	if errors.Is(err, config.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := cfg.Logger()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	location := cfg.GraphLocation()
	start := time.Now()

	// Load graph.
	logger.Info("loading graph", zap.String("location", location))
	svc, err := routing.NewService(ctx,
		func(ctx context.Context) (*graph.Graph, error) { return graph.Load(ctx, location) },
		routing.WithLogger(logger),
		routing.WithRequestTimeout(cfg.RequestTimeout),
		routing.WithMaxSnapDistance(cfg.MaxSnapMeters),
		routing.WithSource(location),
	)
	if err != nil {
		return err
	}
	st := svc.Stats()
	logger.Info("ready",
		zap.Uint32("nodes", st.NumNodes),
		zap.Uint32("edges", st.NumEdges),
		zap.Int("components", st.NumComponents),
		zap.Duration("took", time.Since(start).Round(time.Millisecond)))

	// Setup HTTP server.
	srvCfg := api.DefaultConfig(cfg.Addr())
	srvCfg.RequestTimeout = cfg.RequestTimeout
	srvCfg.MaxConcurrent = cfg.MaxConcurrent
	srvCfg.CORSOrigins = cfg.CORSOrigins
	srv := api.NewServer(srvCfg, api.NewHandlers(svc), logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return api.Serve(ctx, srv, logger)
	})
	g.Go(func() error {
		reloadOnHangup(ctx, svc, logger)
		return nil
	})
	return g.Wait()
}

// reloadOnHangup reloads the graph each time the process receives SIGHUP.
// A failed reload keeps serving the previous graph.
func reloadOnHangup(ctx context.Context, svc *routing.Service, logger *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			logger.Info("SIGHUP received, reloading graph")
			if err := svc.Reload(ctx); err != nil {
				logger.Error("reload failed, keeping current graph", zap.Error(err))
			}
		}
	}
}
