package connection

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mlops-eval/typedb-driver/src/clienterrors"
	"github.com/mlops-eval/typedb-driver/src/config"
	rpc "github.com/mlops-eval/typedb-driver/src/grpc"
	"github.com/mlops-eval/typedb-driver/src/protocol"
	"github.com/mlops-eval/typedb-driver/src/stream"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

var _ RPC = (*rpc.Client)(nil)

// Client is the entry point of the driver. It owns the connection to the
// server and every session opened through it.
type Client struct {
	rpc       RPC
	cfg       config.Interface
	logger    *logrus.Logger
	metrics   *stream.Metrics
	databases *DatabaseManager

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closed   atomic.Bool
}

// NewClient connects to the server named in cfg. Extra dial options are
// passed to gRPC.
func NewClient(cfg config.Interface, logger *logrus.Logger, metrics *stream.Metrics, opts ...grpc.DialOption) (*Client, error) {
	addr := cfg.GetGrpcConfig().GetServerAddr()
	conn, err := rpc.NewClient(addr, opts...)
	if err != nil {
		return nil, clienterrors.ConnectionFailed.Wrap(err, addr)
	}
	logger.WithField("address", addr).Info("Created database client")
	return NewClientWithRPC(conn, cfg, logger, metrics), nil
}

// NewClientWithRPC builds a client on an existing connection.
func NewClientWithRPC(conn RPC, cfg config.Interface, logger *logrus.Logger, metrics *stream.Metrics) *Client {
	c := &Client{
		rpc:      conn,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		sessions: make(map[*Session]struct{}),
	}
	c.databases = &DatabaseManager{client: c}
	return c
}

func (c *Client) IsOpen() bool {
	return !c.closed.Load()
}

// Health checks that the server is serving.
func (c *Client) Health(ctx context.Context) error {
	if !c.IsOpen() {
		return clienterrors.ClientClosed.New()
	}
	return c.rpc.Health(ctx)
}

// Databases returns the database manager of the server.
func (c *Client) Databases() *DatabaseManager {
	return c.databases
}

// Session opens a session on database.
func (c *Client) Session(ctx context.Context, database string, sessionType protocol.SessionType, options *protocol.Options) (*Session, error) {
	if !c.IsOpen() {
		return nil, clienterrors.ClientClosed.New()
	}

	s, err := OpenSession(ctx, c.rpc, database, sessionType, options, c.cfg, c.logger, c.metrics)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if !c.IsOpen() {
		c.mu.Unlock()
		_ = s.Close()
		return nil, clienterrors.ClientClosed.New()
	}
	s.onClose = c.forget
	c.sessions[s] = struct{}{}
	c.mu.Unlock()
	return s, nil
}

func (c *Client) forget(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, s)
}

// Close closes every session, then the connection. Later calls return nil.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	sessions := make([]*Session, 0, len(c.sessions))
	for s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()

	for _, s := range sessions {
		if err := s.Close(); err != nil {
			c.logger.WithFields(logrus.Fields{
				"session_id": s.ID(),
				"error":      err.Error(),
			}).Warn("Failed to close session")
		}
	}

	if err := c.rpc.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	c.logger.Info("Closed database client")
	return nil
}
