package stream

import (
	"context"
	"errors"
	"io"
	"iter"
	"sync/atomic"

	"github.com/mlops-eval/typedb-driver/src/clienterrors"
	"github.com/mlops-eval/typedb-driver/src/protocol"
)

// Dispatcher is the part of BatchDispatcher an iterator needs to ask the
// server for the next batch.
type Dispatcher interface {
	Dispatch(req *protocol.TransactionReq) error
}

// ResponsePartIterator is the lazy, finite sequence of response parts of a
// single request. It cannot be restarted: once it has ended or failed, every
// call to Next returns the same terminal error.
//
// Next must not be called concurrently. Abandon may be called from any
// goroutine.
type ResponsePartIterator struct {
	id         protocol.RequestID
	collector  *ResponseCollector
	dispatcher Dispatcher

	err       error
	abandoned atomic.Bool
}

// NewResponsePartIterator returns an iterator over the parts of request id.
// The id must already be registered on collector.
func NewResponsePartIterator(id protocol.RequestID, collector *ResponseCollector, dispatcher Dispatcher) *ResponsePartIterator {
	return &ResponsePartIterator{
		id:         id,
		collector:  collector,
		dispatcher: dispatcher,
	}
}

// RequestID returns the id of the request being iterated.
func (it *ResponsePartIterator) RequestID() protocol.RequestID {
	return it.id
}

// Next returns the next payload part. It returns io.EOF once the server has
// reported DONE.
//
// A CONTINUE state makes the iterator dispatch exactly one continuation for
// the same request id before waiting for the next part, so the server never
// runs more than one batch ahead of the consumer.
func (it *ResponsePartIterator) Next(ctx context.Context) (protocol.Response, error) {
	if it.err != nil {
		return protocol.Response{}, it.err
	}
	if it.abandoned.Load() {
		return protocol.Response{}, it.finish(io.EOF)
	}

	for {
		res, err := it.collector.Take(ctx, it.id)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return protocol.Response{}, err
			}
			if it.abandoned.Load() {
				return protocol.Response{}, it.finish(io.EOF)
			}
			return protocol.Response{}, it.finish(err)
		}

		switch res.Variant {
		case protocol.VariantNotSet:
			return protocol.Response{}, it.finish(clienterrors.MissingResponse.New(it.id))
		case protocol.VariantStream:
			switch res.State {
			case protocol.StreamDone:
				return protocol.Response{}, it.finish(io.EOF)
			case protocol.StreamContinue:
				if err := it.dispatcher.Dispatch(protocol.StreamReq(it.id)); err != nil {
					// A closed dispatcher has already failed the collector, so
					// the next Take reports StreamClosed with its cause.
					if errors.Is(err, clienterrors.ClientClosed) {
						continue
					}
					return protocol.Response{}, it.finish(clienterrors.StreamClosed.Wrap(err, it.id))
				}
			default:
				return protocol.Response{}, it.finish(clienterrors.UnknownStreamState.New(int32(res.State), it.id))
			}
		case protocol.VariantPart, protocol.VariantResult:
			return res, nil
		default:
			return protocol.Response{}, it.finish(clienterrors.UnexpectedResponse.New(res.Variant, it.id))
		}
	}
}

func (it *ResponsePartIterator) finish(err error) error {
	it.err = err
	it.collector.Remove(it.id)
	return err
}

// Abandon stops consuming the stream. The request is dropped from the
// collector and late parts for it are discarded by the receive loop. The
// server is not told: the protocol has no cancel message, so it may still
// send the batch it is working on.
func (it *ResponsePartIterator) Abandon() {
	if it.abandoned.CompareAndSwap(false, true) {
		it.collector.Remove(it.id)
	}
}

// Seq adapts the iterator to a range-over-func sequence. Iteration stops at
// the end of the stream or after yielding the first error.
func (it *ResponsePartIterator) Seq(ctx context.Context) iter.Seq2[protocol.Response, error] {
	return func(yield func(protocol.Response, error) bool) {
		for {
			res, err := it.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(res, err) || err != nil {
				return
			}
		}
	}
}

// Collect drains the iterator.
func (it *ResponsePartIterator) Collect(ctx context.Context) ([]protocol.Response, error) {
	var parts []protocol.Response
	for res, err := range it.Seq(ctx) {
		if err != nil {
			return parts, err
		}
		parts = append(parts, res)
	}
	return parts, nil
}
