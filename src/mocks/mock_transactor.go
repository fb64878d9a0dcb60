package mocks

import (
	"context"

	"github.com/mlops-eval/typedb-driver/src/protocol"
	"github.com/mlops-eval/typedb-driver/src/stream"
	"github.com/stretchr/testify/mock"
)

// MockTransactor is a mock implementation of query.Transactor
type MockTransactor struct {
	mock.Mock
}

func (m *MockTransactor) Execute(ctx context.Context, req *protocol.TransactionReq) (protocol.Response, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(protocol.Response), args.Error(1)
}

func (m *MockTransactor) Stream(req *protocol.TransactionReq) (*stream.ResponsePartIterator, error) {
	args := m.Called(req)
	if it := args.Get(0); it != nil {
		return it.(*stream.ResponsePartIterator), args.Error(1)
	}
	return nil, args.Error(1)
}
