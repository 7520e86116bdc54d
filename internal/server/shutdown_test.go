package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func newManager() *ShutdownManager {
	return NewShutdownManager(ShutdownConfig{
		DrainTimeout: 200 * time.Millisecond,
		Logger:       slog.New(slog.DiscardHandler),
	})
}

func TestShutdown_ClosesInReverseOrder(t *testing.T) {
	sm := newManager()

	var order []string
	for _, name := range []string{"table", "grpc", "http"} {
		sm.Register(name, CloserFunc(func() error {
			order = append(order, name)
			return nil
		}))
	}

	require.NoError(t, sm.Shutdown("test"))
	assert.Equal(t, []string{"http", "grpc", "table"}, order)

	select {
	case <-sm.Done():
	default:
		t.Fatal("Done should be closed after Shutdown")
	}

	require.NoError(t, sm.Shutdown("again"))
	assert.Len(t, order, 3, "closers run once")
}

func TestShutdown_JoinsCloseErrors(t *testing.T) {
	sm := newManager()
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	sm.Register("a", CloserFunc(func() error { return errA }))
	sm.Register("ok", CloserFunc(func() error { return nil }))
	sm.Register("b", CloserFunc(func() error { return errB }))

	err := sm.Shutdown("test")
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Contains(t, err.Error(), "close a")
}

func TestShutdown_DrainTimeout(t *testing.T) {
	sm := newManager()
	require.True(t, sm.track())

	err := sm.Shutdown("test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 in-flight")
}

func TestShutdown_WaitsForInFlight(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{DrainTimeout: 5 * time.Second, Logger: slog.New(slog.DiscardHandler)})
	require.True(t, sm.track())

	go func() {
		time.Sleep(50 * time.Millisecond)
		sm.untrack()
	}()
	require.NoError(t, sm.Shutdown("test"))
	assert.Equal(t, int64(0), sm.InFlight())
}

func TestWait_ContextCancel(t *testing.T) {
	sm := newManager()
	closed := false
	sm.Register("r", CloserFunc(func() error { closed = true; return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, sm.Wait(ctx))
	assert.True(t, closed)
}

func TestWait_ExplicitShutdown(t *testing.T) {
	sm := newManager()
	sm.Register("r", CloserFunc(func() error { return errors.New("boom") }))

	errCh := make(chan error, 1)
	go func() { errCh <- sm.Wait(context.Background()) }()

	shutdownErr := sm.Shutdown("test")
	require.Error(t, shutdownErr)

	select {
	case err := <-errCh:
		assert.Equal(t, shutdownErr, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after Shutdown")
	}
}

func TestMiddleware(t *testing.T) {
	sm := newManager()
	var seen int64
	h := sm.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = sm.InFlight()
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), seen)
	assert.Equal(t, int64(0), sm.InFlight())

	require.NoError(t, sm.Shutdown("test"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUnaryInterceptor(t *testing.T) {
	sm := newManager()
	info := &grpc.UnaryServerInfo{FullMethod: "/kvmix.table.v1.TableService/Read"}
	handler := func(ctx context.Context, req any) (any, error) { return "ok", nil }

	resp, err := sm.UnaryInterceptor(context.Background(), nil, info, handler)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)

	require.NoError(t, sm.Shutdown("test"))
	_, err = sm.UnaryInterceptor(context.Background(), nil, info, handler)
	assert.Equal(t, codes.Unavailable, status.Code(err))
}
