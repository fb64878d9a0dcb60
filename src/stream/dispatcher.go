package stream

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mlops-eval/typedb-driver/src/clienterrors"
	"github.com/mlops-eval/typedb-driver/src/protocol"
	"github.com/sirupsen/logrus"
)

// DefaultFlushInterval bounds how long an enqueued request may wait before
// it is written to the network.
const DefaultFlushInterval = 3 * time.Millisecond

// Transport is the bidirectional channel a dispatcher multiplexes.
// Send is only ever called from one goroutine at a time, and so is Recv.
// Close must unblock a pending Recv.
type Transport interface {
	Send(frame []byte) error
	Recv() ([]byte, error)
	Close() error
}

// BatchDispatcher owns the outbound side of a transport. Requests from any
// number of callers are coalesced into batches written in enqueue order,
// either on every tick of the flush interval or as soon as Dispatch is
// called. Its receive loop routes every inbound response part to the
// collector by request id.
type BatchDispatcher struct {
	transport Transport
	collector *ResponseCollector
	interval  time.Duration
	logger    *logrus.Logger
	metrics   *Metrics

	mu      sync.Mutex
	pending []*protocol.TransactionReq
	sendMu  sync.Mutex

	flushNow  chan struct{}
	quit      chan struct{}
	closed    uint32
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewBatchDispatcher creates a dispatcher; Start launches its loops.
func NewBatchDispatcher(transport Transport, collector *ResponseCollector, interval time.Duration, logger *logrus.Logger, metrics *Metrics) *BatchDispatcher {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &BatchDispatcher{
		transport: transport,
		collector: collector,
		interval:  interval,
		logger:    logger,
		metrics:   metrics,
		flushNow:  make(chan struct{}, 1),
		quit:      make(chan struct{}),
	}
}

// Start launches the flush loop and the receive loop.
func (d *BatchDispatcher) Start() {
	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.sendLoop()
	}()
	go func() {
		defer d.wg.Done()
		d.recvLoop()
	}()
}

// Enqueue appends req to the pending batch. It never blocks on I/O.
func (d *BatchDispatcher) Enqueue(req *protocol.TransactionReq) error {
	if d.Closed() {
		return clienterrors.ClientClosed.New()
	}
	d.mu.Lock()
	d.pending = append(d.pending, req)
	d.mu.Unlock()
	return nil
}

// Dispatch enqueues req and asks for the pending batch to be flushed
// without waiting for the next tick.
func (d *BatchDispatcher) Dispatch(req *protocol.TransactionReq) error {
	if err := d.Enqueue(req); err != nil {
		return err
	}
	if req.Kind == protocol.KindStream {
		d.metrics.continuation()
	}
	select {
	case d.flushNow <- struct{}{}:
	default:
	}
	return nil
}

// Flush writes every pending request, in enqueue order, as one frame.
func (d *BatchDispatcher) Flush() error {
	d.sendMu.Lock()
	defer d.sendMu.Unlock()

	d.mu.Lock()
	batch := d.pending
	d.pending = nil
	d.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if d.Closed() {
		return clienterrors.ClientClosed.New()
	}

	frame, err := protocol.EncodeClient(batch)
	if err != nil {
		return fmt.Errorf("failed to encode batch of %d requests: %w", len(batch), err)
	}
	if err := d.transport.Send(frame); err != nil {
		return fmt.Errorf("failed to send batch of %d requests: %w", len(batch), err)
	}

	d.metrics.batchFlushed(len(batch))
	d.logger.WithFields(logrus.Fields{
		"batch_size": len(batch),
		"bytes":      len(frame),
	}).Debug("Flushed request batch")
	return nil
}

func (d *BatchDispatcher) sendLoop() {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.quit:
			return
		case <-ticker.C:
		case <-d.flushNow:
		}
		if err := d.Flush(); err != nil {
			if d.Closed() {
				return
			}
			d.logger.WithField("error", err.Error()).Error("Failed to flush request batch, closing transport")
			d.shutdown(err)
			return
		}
	}
}

func (d *BatchDispatcher) recvLoop() {
	for {
		frame, err := d.transport.Recv()
		if err != nil {
			if d.Closed() {
				return
			}
			d.logger.WithField("error", err.Error()).Error("Transport receive failed, closing transport")
			d.shutdown(err)
			return
		}

		res, err := protocol.DecodeServer(frame)
		if err != nil {
			d.logger.WithFields(logrus.Fields{
				"error": err.Error(),
				"bytes": len(frame),
			}).Error("Failed to decode response frame, closing transport")
			d.shutdown(err)
			return
		}

		if err := d.collector.Put(res.ReqID, res); err != nil {
			if errors.Is(err, clienterrors.UnknownRequestID) {
				d.metrics.unknownRequest()
				d.logger.WithFields(logrus.Fields{
					"request_id": res.ReqID.String(),
					"variant":    res.Variant.String(),
				}).Warn("Dropping response for unknown request id")
				continue
			}
			d.logger.WithFields(logrus.Fields{
				"request_id": res.ReqID.String(),
				"error":      err.Error(),
			}).Debug("Dropping response for closed stream")
		}
	}
}

// shutdown closes the dispatcher without waiting for its loops, so it is
// safe to call from them.
func (d *BatchDispatcher) shutdown(cause error) {
	d.closeOnce.Do(func() {
		atomic.StoreUint32(&d.closed, 1)
		close(d.quit)

		if err := d.transport.Close(); err != nil {
			d.logger.WithField("error", err.Error()).Debug("Transport close returned an error")
		}
		if cause == nil {
			cause = clienterrors.ClientClosed.New()
		}
		d.collector.Close(cause)

		d.mu.Lock()
		dropped := len(d.pending)
		d.pending = nil
		d.mu.Unlock()

		d.logger.WithField("unsent_requests", dropped).Debug("Dispatcher closed")
	})
}

// Close stops both loops, releases the transport and fails every
// outstanding request with StreamClosed. Close is idempotent.
func (d *BatchDispatcher) Close() error {
	d.shutdown(nil)
	d.wg.Wait()
	return nil
}

// Closed reports whether the dispatcher has shut down.
func (d *BatchDispatcher) Closed() bool {
	return atomic.LoadUint32(&d.closed) != 0
}

// Done is closed once the dispatcher has shut down, for any reason.
func (d *BatchDispatcher) Done() <-chan struct{} {
	return d.quit
}
