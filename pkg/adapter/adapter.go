// Package adapter defines the lifecycle shared by the FileMQ engines so the
// command line can run a server and a client the same way.
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/filemq/internal/logger"
)

// Adapter is a long-running engine.
//
// Lifecycle:
//  1. Creation: the engine starts its own goroutine when built
//  2. Configuration: settings are applied through the engine's control API
//  3. Serve: blocks until ctx is cancelled or the engine stops on its own
//  4. Stop: graceful shutdown bounded by the caller's context
//
// Stop must be safe to call more than once and concurrently with Serve.
type Adapter interface {
	// Serve blocks until ctx is cancelled or the engine stops. Cancelling
	// ctx stops the engine.
	Serve(ctx context.Context) error

	// Stop closes every connection and waits for the engine to exit, or
	// for ctx to expire.
	Stop(ctx context.Context) error

	// Protocol names the engine for logging ("server", "client").
	Protocol() string
}

// Run serves a until ctx is cancelled, then stops it within timeout.
// An engine that stops on its own ends Run early with Serve's result.
func Run(ctx context.Context, a Adapter, timeout time.Duration) error {
	serveCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	served := make(chan error, 1)
	go func() {
		served <- a.Serve(serveCtx)
	}()

	select {
	case err := <-served:
		return err
	case <-ctx.Done():
	}

	logger.Info("Stopping %s (timeout %s)", a.Protocol(), timeout)
	stopCtx, cancelStop := context.WithTimeout(context.Background(), timeout)
	defer cancelStop()
	if err := a.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop %s: %w", a.Protocol(), err)
	}
	return nil
}
