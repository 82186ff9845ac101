package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/filemq/internal/logger"
	"github.com/marmos91/filemq/pkg/adapter"
	"github.com/marmos91/filemq/pkg/config"
	"github.com/marmos91/filemq/pkg/transport"
)

// runtime is what every engine command needs before it starts.
type runtime struct {
	cfg      *config.Config
	settings string
	metrics  *config.MetricsResult
}

func loadRuntime() (*runtime, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}

	rt := &runtime{
		cfg:      cfg,
		settings: config.SettingsPath(configFile),
		metrics:  config.InitializeMetrics(cfg),
	}
	if rt.settings == "" {
		logger.Info("No configuration file, using defaults")
	} else {
		logger.Info("Configuration loaded from %s", rt.settings)
	}
	return rt, nil
}

func (rt *runtime) transport() transport.Options {
	t := rt.cfg.Transport
	return transport.Options{
		Path:           t.Path,
		WriteTimeout:   t.WriteTimeout,
		MaxMessageSize: t.MaxMessageSize,
		HandshakeRate:  t.HandshakeRate,
		HandshakeBurst: t.HandshakeBurst,
		ReconnectMin:   t.ReconnectMin,
		ReconnectMax:   t.ReconnectMax,
	}
}

// serve runs a and the metrics endpoint until SIGINT/SIGTERM or until the
// engine stops on its own.
func (rt *runtime) serve(ctx context.Context, a adapter.Adapter) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	if rt.metrics.Server != nil {
		g.Go(func() error {
			return rt.metrics.Server.Start(gctx)
		})
	}
	g.Go(func() error {
		defer stop()
		return adapter.Run(gctx, a, rt.cfg.ShutdownTimeout)
	})

	logger.Info("%s is running. Press Ctrl+C to stop.", a.Protocol())
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("%s stopped", a.Protocol())
	return nil
}
