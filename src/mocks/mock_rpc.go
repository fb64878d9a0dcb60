package mocks

import (
	"context"

	"github.com/mlops-eval/typedb-driver/src/protocol"
	"github.com/mlops-eval/typedb-driver/src/stream"
	"github.com/stretchr/testify/mock"
)

// MockRPC is a mock implementation of connection.RPC
type MockRPC struct {
	mock.Mock
}

func (m *MockRPC) SessionOpen(ctx context.Context, req *protocol.SessionOpenReq) (*protocol.SessionOpenRes, error) {
	args := m.Called(ctx, req)
	if res := args.Get(0); res != nil {
		return res.(*protocol.SessionOpenRes), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRPC) SessionClose(ctx context.Context, sessionID []byte) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *MockRPC) SessionPulse(ctx context.Context, sessionID []byte) (bool, error) {
	args := m.Called(ctx, sessionID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRPC) DatabaseCreate(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockRPC) DatabaseContains(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

func (m *MockRPC) DatabaseAll(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if names := args.Get(0); names != nil {
		return names.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRPC) DatabaseDelete(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockRPC) Transaction(ctx context.Context) (stream.Transport, error) {
	args := m.Called(ctx)
	if transport := args.Get(0); transport != nil {
		return transport.(stream.Transport), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRPC) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockRPC) Close() error {
	args := m.Called()
	return args.Error(0)
}
