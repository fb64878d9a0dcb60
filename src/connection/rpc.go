package connection

import (
	"context"

	"github.com/mlops-eval/typedb-driver/src/protocol"
	"github.com/mlops-eval/typedb-driver/src/stream"
)

// RPC is the server surface the driver talks to. It is implemented by
// grpc.Client.
type RPC interface {
	SessionOpen(ctx context.Context, req *protocol.SessionOpenReq) (*protocol.SessionOpenRes, error)
	SessionClose(ctx context.Context, sessionID []byte) error
	SessionPulse(ctx context.Context, sessionID []byte) (bool, error)
	DatabaseCreate(ctx context.Context, name string) error
	DatabaseContains(ctx context.Context, name string) (bool, error)
	DatabaseAll(ctx context.Context) ([]string, error)
	DatabaseDelete(ctx context.Context, name string) error
	Transaction(ctx context.Context) (stream.Transport, error)
	Health(ctx context.Context) error
	Close() error
}
