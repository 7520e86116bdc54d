package remote

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// DefaultCallTimeout bounds each table call when none is configured.
const DefaultCallTimeout = 5 * time.Second

// Client is a table whose operations are served by a remote TableService.
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// Dial creates a client for the service at target. A timeout of zero selects
// DefaultCallTimeout. Extra options are appended after the defaults.
func Dial(target string, timeout time.Duration, opts ...grpc.DialOption) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("remote: failed to create client for %s: %w", target, err)
	}
	return &Client{conn: conn, timeout: timeout}, nil
}

// Ping checks that the server reports itself as serving.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return fmt.Errorf("remote: health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("remote: service status is %s", resp.GetStatus())
	}
	return nil
}

func (c *Client) call(method string, req *KeyValue) (*Outcome, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	out := new(Outcome)
	// Health checks keep the default proto codec, so the subtype is per call.
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, out, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return out, nil
}

// Insert stores value under key if key is absent.
func (c *Client) Insert(key, value []byte) (bool, error) {
	out, err := c.call("Insert", &KeyValue{Key: key, Value: value})
	if err != nil {
		return false, err
	}
	return out.OK, nil
}

// Read returns the value stored under key.
func (c *Client) Read(key []byte) ([]byte, bool, error) {
	out, err := c.call("Read", &KeyValue{Key: key})
	if err != nil {
		return nil, false, err
	}
	return out.Value, out.OK, nil
}

// Erase removes key if present.
func (c *Client) Erase(key []byte) (bool, error) {
	out, err := c.call("Erase", &KeyValue{Key: key})
	if err != nil {
		return false, err
	}
	return out.OK, nil
}

// Update replaces the value under key if key is present.
func (c *Client) Update(key, value []byte) (bool, error) {
	out, err := c.call("Update", &KeyValue{Key: key, Value: value})
	if err != nil {
		return false, err
	}
	return out.OK, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
