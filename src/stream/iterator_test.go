package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/mlops-eval/typedb-driver/src/clienterrors"
	"github.com/mlops-eval/typedb-driver/src/protocol"
	"github.com/mlops-eval/typedb-driver/src/test/fakeserver"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openQuery registers and sends a match query, returning its iterator.
func openQuery(t *testing.T, d *BatchDispatcher, collector *ResponseCollector, query string) *ResponsePartIterator {
	t.Helper()
	req, err := protocol.QueryReq(protocol.QueryMatch, query, nil)
	require.NoError(t, err)
	require.NoError(t, collector.Register(req.ReqID))
	require.NoError(t, d.Dispatch(req))
	return NewResponsePartIterator(req.ReqID, collector, d)
}

func bodies(parts []protocol.Response) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, string(p.Body))
	}
	return out
}

func TestResponsePartIterator_ContinuesUntilDone(t *testing.T) {
	d, collector, pipe, metrics := newTestDispatcher(t, neverTick)
	d.Start()

	it := openQuery(t, d, collector, "match $x isa person;")

	served := make(chan []protocol.Kind, 1)
	go func() {
		var pending []*protocol.TransactionReq
		var kinds []protocol.Kind
		defer func() { served <- kinds }()

		for round := 0; round < 3; round++ {
			req, err := pipe.NextRequest(&pending, fakeserver.DefaultWait)
			if err != nil {
				return
			}
			kinds = append(kinds, req.Kind)
			if round == 2 {
				_ = pipe.Respond(protocol.StreamPart(req.ReqID, protocol.StreamDone))
				return
			}
			_ = pipe.Respond(
				part(req.ReqID, fmt.Sprintf("answer-%d", round)),
				protocol.StreamPart(req.ReqID, protocol.StreamContinue),
			)
		}
	}()

	parts, err := it.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"answer-0", "answer-1"}, bodies(parts))

	kinds := <-served
	assert.Equal(t, []protocol.Kind{protocol.KindQuery, protocol.KindStream, protocol.KindStream}, kinds)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.continuations))

	// DONE ends the exchange: nothing else goes out for this request.
	_, err = pipe.NextBatch(50 * time.Millisecond)
	assert.Error(t, err)

	_, err = it.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestResponsePartIterator_InterleavedRequestsStayIsolated(t *testing.T) {
	d, collector, pipe, _ := newTestDispatcher(t, neverTick)
	d.Start()

	it1 := openQuery(t, d, collector, "match $a isa person;")
	it2 := openQuery(t, d, collector, "match $b isa company;")
	r1, r2 := it1.RequestID(), it2.RequestID()

	require.NoError(t, pipe.Respond(
		part(r1, "r1-a"),
		part(r2, "r2-a"),
		protocol.StreamPart(r2, protocol.StreamDone),
		part(r1, "r1-b"),
		protocol.StreamPart(r1, protocol.StreamDone),
	))

	parts2, err := it2.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"r2-a"}, bodies(parts2))

	parts1, err := it1.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"r1-a", "r1-b"}, bodies(parts1))
	assert.Equal(t, 0, collector.Len())
}

func TestResponsePartIterator_MissingResponseFailsOnlyThatRequest(t *testing.T) {
	d, collector, pipe, _ := newTestDispatcher(t, neverTick)
	d.Start()

	it1 := openQuery(t, d, collector, "match $a isa person;")
	it2 := openQuery(t, d, collector, "match $b isa company;")

	require.NoError(t, pipe.Respond(
		protocol.NotSet(it1.RequestID()),
		part(it2.RequestID(), "still-fine"),
		protocol.StreamPart(it2.RequestID(), protocol.StreamDone),
	))

	_, err := it1.Next(context.Background())
	assert.True(t, errors.Is(err, clienterrors.MissingResponse))

	// the failure is terminal and sticky
	_, again := it1.Next(context.Background())
	assert.Equal(t, err, again)

	parts, err := it2.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"still-fine"}, bodies(parts))
	assert.False(t, d.Closed())
}

func TestResponsePartIterator_UnknownStreamState(t *testing.T) {
	d, collector, pipe, _ := newTestDispatcher(t, neverTick)
	d.Start()

	it := openQuery(t, d, collector, "match $x isa thing;")
	require.NoError(t, pipe.Respond(protocol.StreamPart(it.RequestID(), protocol.StreamState(7))))

	_, err := it.Next(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, clienterrors.UnknownStreamState))
	assert.Contains(t, err.Error(), "7")
}

func TestResponsePartIterator_DispatcherCloseEndsWithStreamClosed(t *testing.T) {
	d, collector, pipe, _ := newTestDispatcher(t, neverTick)
	d.Start()

	it := openQuery(t, d, collector, "match $x isa thing;")
	require.NoError(t, pipe.Respond(part(it.RequestID(), "first")))

	res, err := it.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", string(res.Body))

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = d.Close()
	}()

	_, err = it.Next(context.Background())
	assert.True(t, errors.Is(err, clienterrors.StreamClosed))
}

func TestResponsePartIterator_CloseWithPendingContinueEndsWithStreamClosed(t *testing.T) {
	d, collector, _, _ := newTestDispatcher(t, neverTick)

	id := protocol.NewRequestID()
	require.NoError(t, collector.Register(id))
	require.NoError(t, collector.Put(id, protocol.StreamPart(id, protocol.StreamContinue)))
	require.NoError(t, d.Close())

	it := NewResponsePartIterator(id, collector, d)
	_, err := it.Next(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, clienterrors.StreamClosed), err)
	var clientErr *clienterrors.ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, clienterrors.StreamClosed, clientErr.ErrorMessage())

	_, again := it.Next(context.Background())
	assert.Same(t, err, again)
}

type failingDispatcher struct{ err error }

func (f failingDispatcher) Dispatch(*protocol.TransactionReq) error { return f.err }

func TestResponsePartIterator_ContinuationFailureEndsWithStreamClosed(t *testing.T) {
	collector := NewResponseCollector(0, testLogger(), nil)
	cause := fmt.Errorf("connection reset")

	id := protocol.NewRequestID()
	require.NoError(t, collector.Register(id))
	require.NoError(t, collector.Put(id, protocol.StreamPart(id, protocol.StreamContinue)))

	it := NewResponsePartIterator(id, collector, failingDispatcher{err: cause})
	_, err := it.Next(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, clienterrors.StreamClosed))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, 0, collector.Len())
}

func TestResponsePartIterator_ContextCancelIsNotTerminal(t *testing.T) {
	d, collector, pipe, _ := newTestDispatcher(t, neverTick)
	d.Start()

	it := openQuery(t, d, collector, "match $x isa thing;")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := it.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, pipe.Respond(part(it.RequestID(), "late"), protocol.StreamPart(it.RequestID(), protocol.StreamDone)))

	parts, err := it.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"late"}, bodies(parts))
}

func TestResponsePartIterator_AbandonDropsLateParts(t *testing.T) {
	d, collector, pipe, metrics := newTestDispatcher(t, neverTick)
	d.Start()

	it := openQuery(t, d, collector, "match $x isa thing;")
	other := openQuery(t, d, collector, "match $y isa thing;")

	it.Abandon()
	it.Abandon()

	_, err := it.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, pipe.Respond(
		part(it.RequestID(), "ignored"),
		part(other.RequestID(), "kept"),
		protocol.StreamPart(other.RequestID(), protocol.StreamDone),
	))

	parts, err := other.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, bodies(parts))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.unknownRequests))
}

func TestResponsePartIterator_AbandonReleasesBlockedNext(t *testing.T) {
	d, collector, _, _ := newTestDispatcher(t, neverTick)
	d.Start()

	it := openQuery(t, d, collector, "match $x isa thing;")

	errs := make(chan error, 1)
	go func() {
		_, err := it.Next(context.Background())
		errs <- err
	}()

	time.Sleep(10 * time.Millisecond)
	it.Abandon()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(time.Second):
		t.Fatal("Next still blocked after Abandon")
	}
}

func TestResponsePartIterator_SeqStopsWhenConsumerBreaks(t *testing.T) {
	d, collector, pipe, _ := newTestDispatcher(t, neverTick)
	d.Start()

	it := openQuery(t, d, collector, "match $x isa thing;")
	require.NoError(t, pipe.Respond(
		part(it.RequestID(), "a"),
		part(it.RequestID(), "b"),
		part(it.RequestID(), "c"),
	))

	var seen []string
	for res, err := range it.Seq(context.Background()) {
		require.NoError(t, err)
		seen = append(seen, string(res.Body))
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, seen)

	res, err := it.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "c", string(res.Body))
}
