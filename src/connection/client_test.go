package connection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mlops-eval/typedb-driver/src/clienterrors"
	"github.com/mlops-eval/typedb-driver/src/mocks"
	"github.com/mlops-eval/typedb-driver/src/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestClient(rpc *mocks.MockRPC) *Client {
	return NewClientWithRPC(rpc, &mocks.MockConfig{PulseInterval: time.Hour}, testLogger(), nil)
}

func TestNewClient(t *testing.T) {
	t.Run("Creates a client for the configured address", func(t *testing.T) {
		c, err := NewClient(&mocks.MockConfig{ServerAddr: "localhost:1729"}, testLogger(), nil)

		require.NoError(t, err)
		assert.True(t, c.IsOpen())
		require.NoError(t, c.Close())
	})

	t.Run("Rejects an unusable address", func(t *testing.T) {
		_, err := NewClient(&mocks.MockConfig{ServerAddr: "unknown-scheme://%%"}, testLogger(), nil)

		assert.True(t, errors.Is(err, clienterrors.ConnectionFailed))
	})
}

func TestClient_CloseClosesSessions(t *testing.T) {
	// Arrange
	rpc := new(mocks.MockRPC)
	id := uuid.New()
	rpc.On("SessionOpen", mock.Anything, mock.Anything).Return(&protocol.SessionOpenRes{SessionID: id[:]}, nil)
	rpc.On("SessionClose", mock.Anything, id[:]).Return(nil).Once()
	rpc.On("Close").Return(nil).Once()
	c := newTestClient(rpc)

	s, err := c.Session(context.Background(), "social", protocol.SessionData, nil)
	require.NoError(t, err)

	// Act
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	// Assert
	assert.False(t, c.IsOpen())
	assert.False(t, s.IsOpen())
	rpc.AssertExpectations(t)

	_, err = c.Session(context.Background(), "social", protocol.SessionData, nil)
	assert.True(t, errors.Is(err, clienterrors.ClientClosed))
}

func TestClient_ClosedSessionIsForgotten(t *testing.T) {
	rpc := new(mocks.MockRPC)
	id := uuid.New()
	rpc.On("SessionOpen", mock.Anything, mock.Anything).Return(&protocol.SessionOpenRes{SessionID: id[:]}, nil)
	rpc.On("SessionClose", mock.Anything, mock.Anything).Return(nil).Once()
	rpc.On("Close").Return(nil)
	c := newTestClient(rpc)

	s, err := c.Session(context.Background(), "social", protocol.SessionSchema, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, c.Close())

	rpc.AssertNumberOfCalls(t, "SessionClose", 1)
}

func TestDatabaseManager(t *testing.T) {
	ctx := context.Background()

	t.Run("Creates and deletes", func(t *testing.T) {
		rpc := new(mocks.MockRPC)
		rpc.On("DatabaseCreate", ctx, "social").Return(nil).Once()
		rpc.On("DatabaseDelete", ctx, "social").Return(nil).Once()
		dbs := newTestClient(rpc).Databases()

		require.NoError(t, dbs.Create(ctx, "social"))
		require.NoError(t, dbs.Delete(ctx, "social"))
		rpc.AssertExpectations(t)
	})

	t.Run("Gets an existing database", func(t *testing.T) {
		rpc := new(mocks.MockRPC)
		rpc.On("DatabaseContains", ctx, "social").Return(true, nil)
		rpc.On("DatabaseDelete", ctx, "social").Return(nil).Once()
		dbs := newTestClient(rpc).Databases()

		db, err := dbs.Get(ctx, "social")
		require.NoError(t, err)
		assert.Equal(t, "social", db.Name())
		require.NoError(t, db.Delete(ctx))
		rpc.AssertExpectations(t)
	})

	t.Run("Fails to get a missing database", func(t *testing.T) {
		rpc := new(mocks.MockRPC)
		rpc.On("DatabaseContains", ctx, "ghost").Return(false, nil)

		_, err := newTestClient(rpc).Databases().Get(ctx, "ghost")

		assert.True(t, errors.Is(err, clienterrors.DatabaseDoesNotExist))
		assert.Contains(t, err.Error(), "ghost")
	})

	t.Run("Lists all databases", func(t *testing.T) {
		rpc := new(mocks.MockRPC)
		rpc.On("DatabaseAll", ctx).Return([]string{"social", "finance"}, nil)

		all, err := newTestClient(rpc).Databases().All(ctx)

		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "social", all[0].Name())
		assert.Equal(t, "finance", all[1].Name())
	})

	t.Run("Wraps server errors", func(t *testing.T) {
		rpc := new(mocks.MockRPC)
		rpc.On("DatabaseCreate", ctx, "social").Return(errors.New("already exists"))

		err := newTestClient(rpc).Databases().Create(ctx, "social")

		assert.ErrorContains(t, err, "already exists")
	})

	t.Run("Requires a name", func(t *testing.T) {
		rpc := new(mocks.MockRPC)
		dbs := newTestClient(rpc).Databases()

		assert.True(t, errors.Is(dbs.Create(ctx, ""), clienterrors.MissingDBName))
		_, err := dbs.Contains(ctx, "")
		assert.True(t, errors.Is(err, clienterrors.MissingDBName))
		assert.True(t, errors.Is(dbs.Delete(ctx, ""), clienterrors.MissingDBName))
		rpc.AssertExpectations(t)
	})

	t.Run("Fails after the client is closed", func(t *testing.T) {
		rpc := new(mocks.MockRPC)
		rpc.On("Close").Return(nil)
		c := newTestClient(rpc)
		require.NoError(t, c.Close())

		assert.True(t, errors.Is(c.Databases().Create(ctx, "social"), clienterrors.ClientClosed))
		_, err := c.Databases().All(ctx)
		assert.True(t, errors.Is(err, clienterrors.ClientClosed))
	})
}
