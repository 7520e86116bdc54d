package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/arkilian/kvmix/internal/config"
	kverrors "github.com/arkilian/kvmix/internal/errors"
	"github.com/arkilian/kvmix/internal/observability"
	"github.com/arkilian/kvmix/internal/server"
	"github.com/arkilian/kvmix/internal/table/remote"
)

// serveCapacity sizes the shardmap behind a served table.
const serveCapacity = 1 << 16

// TableServer exposes one local byte table over gRPC, with health and
// metrics endpoints over HTTP.
type TableServer struct {
	cfg    *config.Config
	logger *slog.Logger

	table    ByteTable
	registry *prometheus.Registry
	health   *health.Server

	grpcServer   *grpc.Server
	grpcListener net.Listener
	httpServer   *http.Server
	httpListener net.Listener

	shutdown *server.ShutdownManager
}

// NewTableServer opens the configured table and binds the listeners. A
// remote table cannot be served.
func NewTableServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *TableServer, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Table.Kind == config.TableRemote {
		return nil, kverrors.NewConfigurationError(kverrors.CodeInvalidField,
			"table.kind: a remote table cannot be served")
	}

	s := &TableServer{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		health:   health.NewServer(),
		shutdown: server.NewShutdownManager(server.ShutdownConfig{Logger: logger}),
	}

	s.table, err = openByteTable(ctx, cfg.Table, serveCapacity, logger)
	if err != nil {
		return nil, kverrors.NewAdapterError(kverrors.CodeOpenFailed, "failed to open table", err)
	}
	defer func() {
		if err != nil {
			s.closeTable()
		}
	}()
	s.shutdown.Register("table", server.CloserFunc(s.closeTable))

	s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewServerMetrics(s.registry)

	s.grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(s.shutdown.UnaryInterceptor))
	remote.RegisterTableServer(s.grpcServer, remote.NewServer(s.table, metrics, logger))
	healthpb.RegisterHealthServer(s.grpcServer, s.health)

	s.grpcListener, err = net.Listen("tcp", cfg.Serve.GRPCAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on gRPC address: %w", err)
	}
	s.shutdown.Register("grpc", server.CloserFunc(func() error {
		s.grpcServer.GracefulStop()
		return nil
	}))

	if cfg.Serve.HTTPAddr != "" {
		s.httpListener, err = net.Listen("tcp", cfg.Serve.HTTPAddr)
		if err != nil {
			s.grpcListener.Close()
			return nil, fmt.Errorf("failed to listen on HTTP address: %w", err)
		}
		s.httpServer = &http.Server{
			Handler:           s.router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		s.shutdown.Register("http", server.CloserFunc(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return s.httpServer.Shutdown(ctx)
		}))
	}

	// Registered last so health checks fail before anything else stops.
	s.shutdown.Register("health", server.CloserFunc(func() error {
		s.health.Shutdown()
		return nil
	}))
	return s, nil
}

func (s *TableServer) closeTable() error {
	if c, ok := s.table.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *TableServer) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.shutdown.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		resp, err := s.health.Check(r.Context(), &healthpb.HealthCheckRequest{Service: remote.ServiceName})
		w.Header().Set("Content-Type", "application/json")
		if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		_, _ = fmt.Fprintf(w, `{"status":"ok","table":%q}`, s.cfg.Table.Kind)
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	return r
}

// GRPCAddr returns the bound gRPC address.
func (s *TableServer) GRPCAddr() string {
	return s.grpcListener.Addr().String()
}

// HTTPAddr returns the bound HTTP address, or "" when HTTP is disabled.
func (s *TableServer) HTTPAddr() string {
	if s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// Serve starts serving and blocks until a signal, ctx cancellation or a
// listener failure, then shuts down gracefully.
func (s *TableServer) Serve(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		if err := s.grpcServer.Serve(s.grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()
	if s.httpServer != nil {
		go func() {
			if err := s.httpServer.Serve(s.httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("HTTP server: %w", err)
			}
		}()
	}

	s.health.SetServingStatus(remote.ServiceName, healthpb.HealthCheckResponse_SERVING)
	s.logger.Info("table server started",
		"table", s.cfg.Table.Kind, "grpc_addr", s.GRPCAddr(), "http_addr", s.HTTPAddr())

	go func() {
		select {
		case err := <-errCh:
			s.logger.Error("server failed", "error", err)
			_ = s.shutdown.Shutdown(err.Error())
		case <-s.shutdown.Done():
		}
	}()
	return s.shutdown.Wait(ctx)
}

// Shutdown stops the server as if it had been signaled.
func (s *TableServer) Shutdown() error {
	return s.shutdown.Shutdown("requested")
}
