package integration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mlops-eval/typedb-driver/src/clienterrors"
	"github.com/mlops-eval/typedb-driver/src/mocks"
	"github.com/mlops-eval/typedb-driver/src/protocol"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriver_Health(t *testing.T) {
	setup := NewTestSetup(t, nil)

	assert.NoError(t, setup.Client.Health(context.Background()))
}

func TestDriver_DatabaseLifecycle(t *testing.T) {
	setup := NewTestSetup(t, nil)
	ctx := context.Background()
	dbs := setup.Client.Databases()

	require.NoError(t, dbs.Create(ctx, "social"))
	assert.Error(t, dbs.Create(ctx, "social"))

	contains, err := dbs.Contains(ctx, "social")
	require.NoError(t, err)
	assert.True(t, contains)

	all, err := dbs.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "social", all[0].Name())

	db, err := dbs.Get(ctx, "social")
	require.NoError(t, err)
	require.NoError(t, db.Delete(ctx))

	_, err = dbs.Get(ctx, "social")
	assert.True(t, errors.Is(err, clienterrors.DatabaseDoesNotExist))
}

func TestDriver_SessionOnMissingDatabaseFails(t *testing.T) {
	setup := NewTestSetup(t, nil)

	_, err := setup.Client.Session(context.Background(), "ghost", protocol.SessionData, nil)

	assert.ErrorContains(t, err, "ghost")
}

func TestDriver_MatchStreamsEveryBatch(t *testing.T) {
	setup := NewTestSetup(t, nil)
	setup.Server.AddDatabase("social")
	setup.Server.SetAnswers("match $p isa person;", Answers("person", 5)...)

	_, tx := OpenWrite(t, setup.Client, "social", &protocol.Options{BatchSize: protocol.Int32(2)})

	answers, err := tx.Query().Match("match $p isa person;", nil)
	require.NoError(t, err)
	got, err := answers.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Strings(Answers("person", 5)), Strings(got))
	// three parts of at most two answers, with a continuation between each
	assert.Equal(t, 2, setup.Server.Received(protocol.KindStream))

	expected := `
# HELP typedb_driver_stream_continuations_total Number of continuation requests dispatched after a CONTINUE state.
# TYPE typedb_driver_stream_continuations_total counter
typedb_driver_stream_continuations_total 2
`
	assert.NoError(t, testutil.GatherAndCompare(setup.Registry, strings.NewReader(expected), "typedb_driver_stream_continuations_total"))
}

func TestDriver_EmptyResultEndsWithoutContinuation(t *testing.T) {
	setup := NewTestSetup(t, nil)
	setup.Server.AddDatabase("social")

	_, tx := OpenWrite(t, setup.Client, "social", nil)

	answers, err := tx.Query().Match("match $n isa nothing;", nil)
	require.NoError(t, err)
	got, err := answers.Collect(context.Background())
	require.NoError(t, err)

	assert.Empty(t, got)
	assert.Equal(t, 0, setup.Server.Received(protocol.KindStream))
}

func TestDriver_ConcurrentQueriesShareOneTransaction(t *testing.T) {
	setup := NewTestSetup(t, &mocks.MockConfig{BatchSize: 3})
	setup.Server.AddDatabase("social")
	queries := map[string][][]byte{
		"match $p isa person;":  Answers("person", 10),
		"match $c isa company;": Answers("company", 7),
		"match $e isa event;":   Answers("event", 1),
	}
	for q, answers := range queries {
		setup.Server.SetAnswers(q, answers...)
	}

	_, tx := OpenWrite(t, setup.Client, "social", nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	results := make(map[string][]string)
	for q := range queries {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()
			answers, err := tx.Query().Match(q, nil)
			if !assert.NoError(t, err) {
				return
			}
			got, err := answers.Collect(context.Background())
			assert.NoError(t, err)
			mu.Lock()
			results[q] = Strings(got)
			mu.Unlock()
		}(q)
	}
	wg.Wait()

	for q, answers := range queries {
		assert.Equal(t, Strings(answers), results[q], q)
	}
}

func TestDriver_InterleavedConsumptionKeepsOrder(t *testing.T) {
	setup := NewTestSetup(t, nil)
	setup.Server.AddDatabase("social")
	setup.Server.SetAnswers("match $a isa a;", Answers("a", 4)...)
	setup.Server.SetAnswers("match $b isa b;", Answers("b", 4)...)

	_, tx := OpenWrite(t, setup.Client, "social", &protocol.Options{BatchSize: protocol.Int32(1)})
	ctx := context.Background()

	first, err := tx.Query().Match("match $a isa a;", nil)
	require.NoError(t, err)
	second, err := tx.Query().Match("match $b isa b;", nil)
	require.NoError(t, err)

	var gotA, gotB []string
	for i := 0; i < 4; i++ {
		a, err := first.Next(ctx)
		require.NoError(t, err)
		gotA = append(gotA, string(a))
		b, err := second.Next(ctx)
		require.NoError(t, err)
		gotB = append(gotB, string(b))
	}

	assert.Equal(t, Strings(Answers("a", 4)), gotA)
	assert.Equal(t, Strings(Answers("b", 4)), gotB)
}

func TestDriver_MissingResponseFailsOnlyItsQuery(t *testing.T) {
	setup := NewTestSetup(t, nil)
	setup.Server.AddDatabase("social")
	setup.Server.SetMissing("match $broken isa thing;")
	setup.Server.SetAnswers("match $p isa person;", Answers("person", 2)...)

	_, tx := OpenWrite(t, setup.Client, "social", nil)
	ctx := context.Background()

	broken, err := tx.Query().Match("match $broken isa thing;", nil)
	require.NoError(t, err)
	_, err = broken.Next(ctx)
	assert.True(t, errors.Is(err, clienterrors.MissingResponse))

	healthy, err := tx.Query().Match("match $p isa person;", nil)
	require.NoError(t, err)
	got, err := healthy.Collect(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.True(t, tx.IsOpen())
}

func TestDriver_SingleResultQueriesAndCommit(t *testing.T) {
	setup := NewTestSetup(t, nil)
	setup.Server.AddDatabase("social")
	setup.Server.SetAnswers("match $p isa person; count;", []byte("12"))

	_, tx := OpenWrite(t, setup.Client, "social", nil)
	ctx := context.Background()

	require.NoError(t, tx.Query().Define(ctx, "define person sub entity;", nil))
	count, err := tx.Query().MatchAggregate(ctx, "match $p isa person; count;", nil)
	require.NoError(t, err)
	assert.Equal(t, "12", string(count))
	require.NoError(t, tx.Query().Delete(ctx, "match $p isa person; delete $p isa person;", nil))

	require.NoError(t, tx.Commit(ctx))
	assert.False(t, tx.IsOpen())
	assert.Equal(t, 1, setup.Server.Received(protocol.KindCommit))
}

func TestDriver_AbandonedQueryDoesNotDisturbOthers(t *testing.T) {
	setup := NewTestSetup(t, nil)
	setup.Server.AddDatabase("social")
	setup.Server.SetAnswers("match $p isa person;", Answers("person", 10)...)
	setup.Server.SetAnswers("match $c isa company;", Answers("company", 3)...)

	_, tx := OpenWrite(t, setup.Client, "social", &protocol.Options{BatchSize: protocol.Int32(2)})
	ctx := context.Background()

	abandoned, err := tx.Query().Match("match $p isa person;", nil)
	require.NoError(t, err)
	_, err = abandoned.Next(ctx)
	require.NoError(t, err)
	abandoned.Close()

	other, err := tx.Query().Match("match $c isa company;", nil)
	require.NoError(t, err)
	got, err := other.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, Strings(Answers("company", 3)), Strings(got))
}

func TestDriver_SessionCloseClosesTransactions(t *testing.T) {
	setup := NewTestSetup(t, nil)
	setup.Server.AddDatabase("social")

	session, tx := OpenWrite(t, setup.Client, "social", nil)
	assert.Equal(t, 1, setup.Server.SessionCount())

	require.NoError(t, session.Close())

	assert.False(t, tx.IsOpen())
	assert.Equal(t, 0, setup.Server.SessionCount())
	_, err := tx.Query().Match("match $x isa thing;", nil)
	assert.True(t, errors.Is(err, clienterrors.TransactionClosed))
}

func TestDriver_ServerShutdownFailsOpenStreams(t *testing.T) {
	setup := NewTestSetup(t, nil)
	setup.Server.AddDatabase("social")
	setup.Server.SetAnswers("match $p isa person;", Answers("person", 4)...)

	_, tx := OpenWrite(t, setup.Client, "social", &protocol.Options{BatchSize: protocol.Int32(1)})
	ctx := context.Background()

	answers, err := tx.Query().Match("match $p isa person;", nil)
	require.NoError(t, err)
	_, err = answers.Next(ctx)
	require.NoError(t, err)

	setup.Server.Stop()

	deadline, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for {
		_, err = answers.Next(deadline)
		if err != nil {
			break
		}
	}
	assert.True(t, errors.Is(err, clienterrors.StreamClosed), err)
	assert.Eventually(t, func() bool { return !tx.IsOpen() }, 2*time.Second, 10*time.Millisecond)
}
