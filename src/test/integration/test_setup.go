package integration

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/mlops-eval/typedb-driver/src/connection"
	"github.com/mlops-eval/typedb-driver/src/mocks"
	"github.com/mlops-eval/typedb-driver/src/stream"
	"github.com/mlops-eval/typedb-driver/src/test/fakedb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1 << 20

// TestSetup runs a fake database server on an in-memory listener and a
// driver client connected to it.
type TestSetup struct {
	Server   *fakedb.Server
	Client   *connection.Client
	Registry *prometheus.Registry
	Listener *bufconn.Listener
}

func NewTestSetup(t *testing.T, cfg *mocks.MockConfig) *TestSetup {
	t.Helper()
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.FatalLevel) // Silence logs in tests

	lis := bufconn.Listen(bufSize)
	server := fakedb.NewServer(logger)
	go func() { _ = server.Serve(lis) }()

	if cfg == nil {
		cfg = &mocks.MockConfig{}
	}
	if cfg.ServerAddr == "" {
		cfg.ServerAddr = "passthrough:///bufnet"
	}
	if cfg.DispatchInterval == 0 {
		cfg.DispatchInterval = time.Millisecond
	}

	registry := prometheus.NewRegistry()
	client, err := connection.NewClient(cfg, logger, stream.NewMetrics(registry),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	if err != nil {
		server.Stop()
		t.Fatalf("failed to create client: %v", err)
	}

	setup := &TestSetup{Server: server, Client: client, Registry: registry, Listener: lis}
	t.Cleanup(setup.Close)
	return setup
}

func (s *TestSetup) Close() {
	_ = s.Client.Close()
	s.Server.Stop()
}
