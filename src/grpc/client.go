package grpc

import (
	"context"
	"fmt"

	"github.com/mlops-eval/typedb-driver/src/protocol"
	"github.com/mlops-eval/typedb-driver/src/stream"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the fully qualified name of the database service.
const ServiceName = "typedb.protocol.TypeDB"

// Method paths of the database service.
const (
	MethodSessionOpen      = "/" + ServiceName + "/session_open"
	MethodSessionClose     = "/" + ServiceName + "/session_close"
	MethodSessionPulse     = "/" + ServiceName + "/session_pulse"
	MethodDatabaseCreate   = "/" + ServiceName + "/databases_create"
	MethodDatabaseContains = "/" + ServiceName + "/databases_contains"
	MethodDatabaseAll      = "/" + ServiceName + "/databases_all"
	MethodDatabaseDelete   = "/" + ServiceName + "/database_delete"
	MethodTransaction      = "/" + ServiceName + "/transaction"
)

var transactionStreamDesc = &grpc.StreamDesc{
	StreamName:    "transaction",
	ServerStreams: true,
	ClientStreams: true,
}

type Client struct {
	conn   *grpc.ClientConn
	health grpc_health_v1.HealthClient
}

// NewClient creates a client for the server at address. Extra dial options
// are appended to the defaults.
func NewClient(address string, opts ...grpc.DialOption) (*Client, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(FrameCodec{})),
	}, opts...)

	conn, err := grpc.NewClient(address, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, health: grpc_health_v1.NewHealthClient(conn)}, nil
}

func (c *Client) SessionOpen(ctx context.Context, req *protocol.SessionOpenReq) (*protocol.SessionOpenRes, error) {
	res := &protocol.SessionOpenRes{}
	if err := c.conn.Invoke(ctx, MethodSessionOpen, req, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) SessionClose(ctx context.Context, sessionID []byte) error {
	return c.conn.Invoke(ctx, MethodSessionClose, &protocol.SessionReq{SessionID: sessionID}, &protocol.Empty{})
}

func (c *Client) SessionPulse(ctx context.Context, sessionID []byte) (bool, error) {
	res := &protocol.SessionPulseRes{}
	if err := c.conn.Invoke(ctx, MethodSessionPulse, &protocol.SessionReq{SessionID: sessionID}, res); err != nil {
		return false, err
	}
	return res.Alive, nil
}

func (c *Client) DatabaseCreate(ctx context.Context, name string) error {
	return c.conn.Invoke(ctx, MethodDatabaseCreate, &protocol.DatabaseReq{Name: name}, &protocol.Empty{})
}

func (c *Client) DatabaseContains(ctx context.Context, name string) (bool, error) {
	res := &protocol.DatabaseContainsRes{}
	if err := c.conn.Invoke(ctx, MethodDatabaseContains, &protocol.DatabaseReq{Name: name}, res); err != nil {
		return false, err
	}
	return res.Contains, nil
}

func (c *Client) DatabaseAll(ctx context.Context) ([]string, error) {
	res := &protocol.DatabaseAllRes{}
	if err := c.conn.Invoke(ctx, MethodDatabaseAll, &protocol.Empty{}, res); err != nil {
		return nil, err
	}
	return res.Names, nil
}

func (c *Client) DatabaseDelete(ctx context.Context, name string) error {
	return c.conn.Invoke(ctx, MethodDatabaseDelete, &protocol.DatabaseReq{Name: name}, &protocol.Empty{})
}

// Transaction opens a bidirectional transaction stream. The stream outlives
// ctx; only its values are kept. Closing the returned transport ends the
// call.
func (c *Client) Transaction(ctx context.Context) (stream.Transport, error) {
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cs, err := c.conn.NewStream(streamCtx, transactionStreamDesc, MethodTransaction)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open transaction stream: %w", err)
	}
	return &transactionStream{stream: cs, cancel: cancel}, nil
}

// Health reports whether the server is serving.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.health.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("failed to check server health: %w", err)
	}
	if res.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		return fmt.Errorf("server is %s", res.GetStatus())
	}
	return nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
