package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc is a function to call during shutdown
type ShutdownFunc func(context.Context) error

// ShutdownManager drains the HTTP server and then runs registered cleanup
// functions in reverse registration order, so resources opened first close last.
type ShutdownManager struct {
	logger          *Logger
	server          *http.Server
	shutdownTimeout time.Duration

	mu            sync.Mutex
	shutdownFuncs []ShutdownFunc
}

// NewShutdownManager creates a new shutdown manager. A zero timeout means 30s.
func NewShutdownManager(logger *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:          logger,
		server:          server,
		shutdownTimeout: timeout,
	}
}

// RegisterShutdownFunc registers a function to call during shutdown
func (sm *ShutdownManager) RegisterShutdownFunc(fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.shutdownFuncs = append(sm.shutdownFuncs, fn)
}

// WaitForShutdown blocks until SIGINT, SIGTERM or ctx cancellation, then shuts down
func (sm *ShutdownManager) WaitForShutdown(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	sm.logger.Info("Shutdown requested, draining")

	return sm.Shutdown()
}

// Shutdown stops the server and runs every cleanup function within the timeout
func (sm *ShutdownManager) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), sm.shutdownTimeout)
	defer cancel()

	var errs []error
	if sm.server != nil {
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("HTTP server shutdown error")
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
	}

	sm.mu.Lock()
	funcs := make([]ShutdownFunc, len(sm.shutdownFuncs))
	copy(funcs, sm.shutdownFuncs)
	sm.mu.Unlock()

	for i := len(funcs) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("shutdown timeout reached with %d functions pending", i+1))
			break
		}
		if err := funcs[i](ctx); err != nil {
			sm.logger.WithError(err).WithField("index", i).Error("Shutdown function failed")
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	sm.logger.Info("Graceful shutdown complete")
	return nil
}
