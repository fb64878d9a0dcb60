package stream

import (
	"context"
	"sync"

	"github.com/mlops-eval/typedb-driver/src/clienterrors"
	"github.com/mlops-eval/typedb-driver/src/protocol"
	"github.com/sirupsen/logrus"
)

// ResponseCollector buffers response parts delivered by the receive loop
// until the consumer of each request takes them.
//
// Every registered request owns one FIFO queue. A request that has been
// registered but has not received or asked for anything yet is only
// promised: its queue is created lazily by whichever of Put and Take comes
// first. Each queue has at most one reader.
type ResponseCollector struct {
	mu        sync.Mutex
	queues    map[protocol.RequestID]*responseQueue // nil value: promised
	closed    bool
	warnDepth int

	logger  *logrus.Logger
	metrics *Metrics
}

type responseQueue struct {
	parts  []protocol.Response
	notify chan struct{}
	err    error
}

func newResponseQueue() *responseQueue {
	return &responseQueue{notify: make(chan struct{}, 1)}
}

func (q *responseQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// NewResponseCollector creates an empty collector. A queue holding more than
// warnDepth parts is logged and counted; warnDepth <= 0 disables the check.
func NewResponseCollector(warnDepth int, logger *logrus.Logger, metrics *Metrics) *ResponseCollector {
	return &ResponseCollector{
		queues:    make(map[protocol.RequestID]*responseQueue),
		warnDepth: warnDepth,
		logger:    logger,
		metrics:   metrics,
	}
}

// Register promises future delivery for id.
func (c *ResponseCollector) Register(id protocol.RequestID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return clienterrors.StreamClosed.New(id)
	}
	if _, ok := c.queues[id]; ok {
		return nil
	}
	c.queues[id] = nil
	c.metrics.streamOpened()
	return nil
}

// queueLocked returns the queue of id, materialising a promised one.
func (c *ResponseCollector) queueLocked(id protocol.RequestID) (*responseQueue, error) {
	q, ok := c.queues[id]
	if !ok {
		if c.closed {
			return nil, clienterrors.StreamClosed.New(id)
		}
		return nil, clienterrors.UnknownRequestID.New(id)
	}
	if q == nil {
		q = newResponseQueue()
		c.queues[id] = q
	}
	return q, nil
}

// Put appends part to the queue of id and wakes its consumer.
func (c *ResponseCollector) Put(id protocol.RequestID, part protocol.Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return clienterrors.StreamClosed.New(id)
	}
	q, err := c.queueLocked(id)
	if err != nil {
		return err
	}
	q.parts = append(q.parts, part)

	if c.warnDepth > 0 && len(q.parts) > c.warnDepth {
		c.metrics.depthWarning()
		c.logger.WithFields(logrus.Fields{
			"request_id": id.String(),
			"depth":      len(q.parts),
			"warn_depth": c.warnDepth,
		}).Warn("Response queue above warning depth")
	}

	q.signal()
	return nil
}

// Take removes and returns the oldest part queued for id, waiting until one
// arrives, the collector is closed, or ctx is done.
func (c *ResponseCollector) Take(ctx context.Context, id protocol.RequestID) (protocol.Response, error) {
	c.mu.Lock()
	q, err := c.queueLocked(id)
	c.mu.Unlock()
	if err != nil {
		return protocol.Response{}, err
	}

	for {
		c.mu.Lock()
		if len(q.parts) > 0 {
			part := q.parts[0]
			q.parts[0] = protocol.Response{}
			q.parts = q.parts[1:]
			c.mu.Unlock()
			return part, nil
		}
		if q.err != nil {
			c.mu.Unlock()
			return protocol.Response{}, q.err
		}
		notify := q.notify
		c.mu.Unlock()

		select {
		case <-notify:
		case <-ctx.Done():
			return protocol.Response{}, ctx.Err()
		}
	}
}

// Remove forgets id. A consumer blocked on it is released with StreamClosed.
func (c *ResponseCollector) Remove(id protocol.RequestID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.queues[id]
	if !ok {
		return
	}
	delete(c.queues, id)
	if q != nil && q.err == nil {
		q.err = clienterrors.StreamClosed.New(id)
		q.signal()
	}
	if !c.closed {
		c.metrics.streamsReleased(1)
	}
}

// Close fails every registered request with StreamClosed wrapping cause.
// Parts already queued remain readable. Close is idempotent.
func (c *ResponseCollector) Close(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	for id, q := range c.queues {
		if q == nil {
			q = newResponseQueue()
			c.queues[id] = q
		}
		if q.err == nil {
			q.err = clienterrors.StreamClosed.Wrap(cause, id)
		}
		q.signal()
	}
	c.metrics.streamsReleased(len(c.queues))
}

// Depth returns the number of parts queued for id.
func (c *ResponseCollector) Depth(id protocol.RequestID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if q := c.queues[id]; q != nil {
		return len(q.parts)
	}
	return 0
}

// Len returns the number of registered requests.
func (c *ResponseCollector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queues)
}

// Closed reports whether Close has been called.
func (c *ResponseCollector) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
