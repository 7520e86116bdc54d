package remote

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/arkilian/kvmix/internal/observability"
	"github.com/arkilian/kvmix/internal/workload"
)

// Server implements TableServer on top of a local table.
type Server struct {
	table   workload.Table[[]byte, []byte]
	metrics *observability.ServerMetrics
	logger  *slog.Logger
}

// NewServer creates a server for table. metrics may be nil.
func NewServer(table workload.Table[[]byte, []byte], metrics *observability.ServerMetrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{table: table, metrics: metrics, logger: logger}
}

func (s *Server) finish(op string, start time.Time, out *Outcome, err error) (*Outcome, error) {
	if s.metrics != nil {
		s.metrics.Observe(op, out.OK, err, time.Since(start))
	}
	if err != nil {
		s.logger.Error("table operation failed", "op", op, "error", err)
		return nil, status.Errorf(codes.Internal, "%s failed: %v", op, err)
	}
	return out, nil
}

func validateKey(req *KeyValue) error {
	if len(req.Key) == 0 {
		return status.Error(codes.InvalidArgument, "key is required")
	}
	return nil
}

// Insert stores req.Value under req.Key if the key is absent.
func (s *Server) Insert(ctx context.Context, req *KeyValue) (*Outcome, error) {
	if err := validateKey(req); err != nil {
		return nil, err
	}
	start := time.Now()
	ok, err := s.table.Insert(req.Key, req.Value)
	return s.finish("insert", start, &Outcome{OK: ok}, err)
}

// Read returns the value stored under req.Key.
func (s *Server) Read(ctx context.Context, req *KeyValue) (*Outcome, error) {
	if err := validateKey(req); err != nil {
		return nil, err
	}
	start := time.Now()
	v, ok, err := s.table.Read(req.Key)
	return s.finish("read", start, &Outcome{OK: ok, Value: v}, err)
}

// Erase removes req.Key if present.
func (s *Server) Erase(ctx context.Context, req *KeyValue) (*Outcome, error) {
	if err := validateKey(req); err != nil {
		return nil, err
	}
	start := time.Now()
	ok, err := s.table.Erase(req.Key)
	return s.finish("erase", start, &Outcome{OK: ok}, err)
}

// Update replaces the value under req.Key if present.
func (s *Server) Update(ctx context.Context, req *KeyValue) (*Outcome, error) {
	if err := validateKey(req); err != nil {
		return nil, err
	}
	start := time.Now()
	ok, err := s.table.Update(req.Key, req.Value)
	return s.finish("update", start, &Outcome{OK: ok}, err)
}
