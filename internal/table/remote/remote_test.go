package remote

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/arkilian/kvmix/internal/keygen"
	"github.com/arkilian/kvmix/internal/observability"
	"github.com/arkilian/kvmix/internal/table/shardmap"
	"github.com/arkilian/kvmix/internal/workload"
)

var (
	_ TableServer                    = (*Server)(nil)
	_ workload.Table[[]byte, []byte] = (*Client)(nil)
)

// failingTable fails every call.
type failingTable struct{}

var errStore = errors.New("store offline")

func (failingTable) Insert(k, v []byte) (bool, error) { return false, errStore }
func (failingTable) Read(k []byte) ([]byte, bool, error) { return nil, false, errStore }
func (failingTable) Erase(k []byte) (bool, error) { return false, errStore }
func (failingTable) Update(k, v []byte) (bool, error) { return false, errStore }

func startServer(t *testing.T, table workload.Table[[]byte, []byte]) *Client {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	metrics := observability.NewServerMetrics(prometheus.NewRegistry())
	RegisterTableServer(srv, NewServer(table, metrics, slog.New(slog.DiscardHandler)))

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	client, err := Dial("passthrough:///bufnet", 0,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClient_Semantics(t *testing.T) {
	c := startServer(t, shardmap.NewBytes(16, 2))
	require.NoError(t, c.Ping(context.Background()))

	k := []byte("k1")
	ok, err := c.Insert(k, []byte("v1"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Insert(k, []byte("v2"))
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err := c.Read(k)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v1"), v)

	ok, err = c.Update(k, []byte("v3"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Erase(k)
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = c.Read(k)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.Update(k, []byte("v4"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_StoreErrorsSurface(t *testing.T) {
	c := startServer(t, failingTable{})

	_, err := c.Insert([]byte("k"), []byte("v"))
	require.Error(t, err)
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.Contains(t, err.Error(), "store offline")
}

func TestClient_EmptyKeyRejected(t *testing.T) {
	c := startServer(t, shardmap.NewBytes(16, 2))

	_, _, err := c.Read(nil)
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestClient_DrivenByWorkload(t *testing.T) {
	c := startServer(t, shardmap.NewBytes(1024, 0))

	cfg := workload.Config{
		Mix:              workload.Mix{Reads: 40, Inserts: 20, Erases: 15, Updates: 15, Upserts: 10},
		CapacityExponent: 9,
		PrefillPercent:   25,
		TotalOpsPercent:  100,
		Threads:          4,
	}
	// The client is shared by every worker, and Run must not close it here.
	open := func(uint64) (workload.Table[[]byte, []byte], error) {
		return struct{ workload.Table[[]byte, []byte] }{c}, nil
	}

	res, err := workload.Run(context.Background(), cfg, open, keygen.BytesKeys(32),
		workload.WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	assert.Equal(t, cfg.TotalOps(), res.Stats.Total())
}

func TestCodec_SkipsUnknownFields(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 7, protowire.VarintType)
	b = protowire.AppendVarint(b, 99)
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("key"))
	b = protowire.AppendTag(b, 9, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("ignored"))

	var kv KeyValue
	require.NoError(t, codec{}.Unmarshal(b, &kv))
	assert.Equal(t, []byte("key"), kv.Key)
	assert.Nil(t, kv.Value)

	// The decoded slices do not alias the input buffer.
	for i := range b {
		b[i] = 0
	}
	assert.Equal(t, []byte("key"), kv.Key)
}

func TestCodec_RejectsTruncated(t *testing.T) {
	data, err := codec{}.Marshal(&Outcome{OK: true, Value: []byte("value")})
	require.NoError(t, err)

	var out Outcome
	require.NoError(t, codec{}.Unmarshal(data, &out))
	assert.True(t, out.OK)
	assert.Equal(t, []byte("value"), out.Value)

	assert.Error(t, codec{}.Unmarshal(data[:len(data)-2], &out))
	_, err = codec{}.Marshal("not a message")
	assert.Error(t, err)
}
