// Package server coordinates graceful shutdown of the serve command.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ShutdownManager drains in-flight requests and then closes registered
// resources in reverse order of registration.
type ShutdownManager struct {
	drainTimeout time.Duration
	logger       *slog.Logger

	done     chan struct{}
	once     sync.Once
	inFlight atomic.Int64
	closing  atomic.Bool
	err      error

	mu      sync.Mutex
	closers []namedCloser
}

type namedCloser struct {
	name string
	io.Closer
}

// ShutdownConfig holds configuration for the shutdown manager.
type ShutdownConfig struct {
	// DrainTimeout bounds the wait for in-flight requests. Default: 15 seconds
	DrainTimeout time.Duration
	Logger       *slog.Logger
}

// NewShutdownManager creates a new shutdown manager with the given configuration.
func NewShutdownManager(cfg ShutdownConfig) *ShutdownManager {
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ShutdownManager{
		drainTimeout: cfg.DrainTimeout,
		logger:       cfg.Logger,
		done:         make(chan struct{}),
	}
}

// Register adds a closer to be called during shutdown.
func (sm *ShutdownManager) Register(name string, c io.Closer) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.closers = append(sm.closers, namedCloser{name: name, Closer: c})
}

// Wait blocks until SIGINT, SIGTERM, ctx cancellation or an explicit
// Shutdown, and returns the shutdown result.
func (sm *ShutdownManager) Wait(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		return sm.Shutdown(fmt.Sprintf("received signal: %v", sig))
	case <-ctx.Done():
		return sm.Shutdown("context cancelled")
	case <-sm.done:
		return sm.Shutdown("")
	}
}

// Shutdown runs the shutdown sequence once. Later calls wait for the first
// to finish and return its result.
func (sm *ShutdownManager) Shutdown(reason string) error {
	sm.once.Do(func() {
		sm.closing.Store(true)
		close(sm.done)
		sm.logger.Info("shutting down", "reason", reason)

		var errs []error
		if err := sm.drain(); err != nil {
			errs = append(errs, err)
		}

		sm.mu.Lock()
		closers := sm.closers
		sm.mu.Unlock()

		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				sm.logger.Error("close failed", "resource", closers[i].name, "error", err)
				errs = append(errs, fmt.Errorf("close %s: %w", closers[i].name, err))
			}
		}
		sm.err = errors.Join(errs...)
		sm.logger.Info("shutdown complete")
	})
	return sm.err
}

func (sm *ShutdownManager) drain() error {
	deadline := time.NewTimer(sm.drainTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if sm.inFlight.Load() == 0 {
			return nil
		}
		select {
		case <-deadline.C:
			return fmt.Errorf("timeout waiting for %d in-flight requests", sm.inFlight.Load())
		case <-ticker.C:
		}
	}
}

// track counts a request, or reports false once shutdown has begun.
func (sm *ShutdownManager) track() bool {
	sm.inFlight.Add(1)
	if sm.closing.Load() {
		sm.inFlight.Add(-1)
		return false
	}
	return true
}

func (sm *ShutdownManager) untrack() {
	sm.inFlight.Add(-1)
}

// InFlight returns the current number of in-flight requests.
func (sm *ShutdownManager) InFlight() int64 {
	return sm.inFlight.Load()
}

// Done returns a channel that is closed when shutdown begins.
func (sm *ShutdownManager) Done() <-chan struct{} {
	return sm.done
}

// Middleware tracks in-flight HTTP requests and rejects new ones during
// shutdown.
func (sm *ShutdownManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !sm.track() {
			w.Header().Set("Connection", "close")
			http.Error(w, "Service Unavailable - Shutting Down", http.StatusServiceUnavailable)
			return
		}
		defer sm.untrack()
		next.ServeHTTP(w, r)
	})
}

// UnaryInterceptor is the gRPC counterpart of Middleware.
func (sm *ShutdownManager) UnaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if !sm.track() {
		return nil, status.Error(codes.Unavailable, "server is shutting down")
	}
	defer sm.untrack()
	return handler(ctx, req)
}

// CloserFunc is an adapter to allow ordinary functions to be used as io.Closer.
type CloserFunc func() error

// Close calls the underlying function.
func (f CloserFunc) Close() error {
	return f()
}
