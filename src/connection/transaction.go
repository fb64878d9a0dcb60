package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mlops-eval/typedb-driver/src/clienterrors"
	"github.com/mlops-eval/typedb-driver/src/config"
	"github.com/mlops-eval/typedb-driver/src/protocol"
	"github.com/mlops-eval/typedb-driver/src/query"
	"github.com/mlops-eval/typedb-driver/src/stream"
	"github.com/sirupsen/logrus"
)

// Transaction owns one bidirectional transaction stream. Any number of
// goroutines may issue requests on it concurrently; their responses are
// routed back by request id.
type Transaction struct {
	txType     protocol.TransactionType
	options    *protocol.Options
	logger     *logrus.Logger
	collector  *stream.ResponseCollector
	dispatcher *stream.BatchDispatcher
	query      *query.Manager

	closeOnce sync.Once
	onClose   func(*Transaction)
}

// OpenTransaction opens a transaction stream for the session and waits for
// the server to accept it.
func OpenTransaction(ctx context.Context, rpc RPC, sessionID []byte, txType protocol.TransactionType, options *protocol.Options, latencyMillis int32, cfg *config.StreamConfig, logger *logrus.Logger, metrics *stream.Metrics) (*Transaction, error) {
	if err := txType.Validate(); err != nil {
		return nil, err
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}

	transport, err := rpc.Transaction(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open transaction stream: %w", err)
	}

	collector := stream.NewResponseCollector(cfg.GetQueueWarnDepth(), logger, metrics)
	tx := &Transaction{
		txType:     txType,
		options:    options,
		logger:     logger,
		collector:  collector,
		dispatcher: stream.NewBatchDispatcher(transport, collector, cfg.GetDispatchInterval(), logger, metrics),
	}
	tx.query = query.NewManager(tx)
	tx.dispatcher.Start()

	req, err := protocol.OpenReq(sessionID, txType, options, latencyMillis)
	if err != nil {
		_ = tx.Close()
		return nil, err
	}
	if _, err := tx.Execute(ctx, req); err != nil {
		_ = tx.Close()
		return nil, fmt.Errorf("failed to open %s transaction: %w", txType, err)
	}

	logger.WithFields(logrus.Fields{
		"type":           txType.String(),
		"latency_millis": latencyMillis,
	}).Debug("Opened transaction")
	return tx, nil
}

func (t *Transaction) Type() protocol.TransactionType {
	return t.txType
}

func (t *Transaction) Options() *protocol.Options {
	return t.options
}

func (t *Transaction) IsOpen() bool {
	return !t.dispatcher.Closed()
}

// Query returns the query entry point of the transaction.
func (t *Transaction) Query() *query.Manager {
	return t.query
}

// Execute sends req and waits for its single result.
func (t *Transaction) Execute(ctx context.Context, req *protocol.TransactionReq) (protocol.Response, error) {
	if !t.IsOpen() {
		return protocol.Response{}, clienterrors.TransactionClosed.New()
	}
	if err := t.collector.Register(req.ReqID); err != nil {
		return protocol.Response{}, t.closedError(err)
	}
	defer t.collector.Remove(req.ReqID)

	if err := t.dispatcher.Dispatch(req); err != nil {
		return protocol.Response{}, t.closedError(err)
	}

	res, err := t.collector.Take(ctx, req.ReqID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return protocol.Response{}, err
		}
		return protocol.Response{}, t.closedError(err)
	}

	switch res.Variant {
	case protocol.VariantResult:
		return res, nil
	case protocol.VariantNotSet:
		return protocol.Response{}, clienterrors.MissingResponse.New(req.ReqID)
	default:
		return protocol.Response{}, clienterrors.UnexpectedResponse.New(res.Variant, req.ReqID)
	}
}

// Stream sends req and returns the iterator over its response parts. The
// request goes out with the next batch.
func (t *Transaction) Stream(req *protocol.TransactionReq) (*stream.ResponsePartIterator, error) {
	if !t.IsOpen() {
		return nil, clienterrors.TransactionClosed.New()
	}
	if err := t.collector.Register(req.ReqID); err != nil {
		return nil, t.closedError(err)
	}
	if err := t.dispatcher.Enqueue(req); err != nil {
		t.collector.Remove(req.ReqID)
		return nil, t.closedError(err)
	}
	return stream.NewResponsePartIterator(req.ReqID, t.collector, t.dispatcher), nil
}

// Commit commits the transaction and closes it.
func (t *Transaction) Commit(ctx context.Context) error {
	defer t.Close()
	if _, err := t.Execute(ctx, protocol.CommitReq()); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback discards the changes made so far. The transaction stays open.
func (t *Transaction) Rollback(ctx context.Context) error {
	if _, err := t.Execute(ctx, protocol.RollbackReq()); err != nil {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

// Close ends the transaction stream. Requests still in flight fail with
// StreamClosed. Close is idempotent.
func (t *Transaction) Close() error {
	t.closeOnce.Do(func() {
		_ = t.dispatcher.Close()
		if t.onClose != nil {
			t.onClose(t)
		}
		t.logger.WithField("type", t.txType.String()).Debug("Closed transaction")
	})
	return nil
}

// closedError reports a failure caused by the stream shutting down as a
// closed transaction, keeping the underlying error as its cause.
func (t *Transaction) closedError(err error) error {
	if errors.Is(err, clienterrors.ClientClosed) {
		return clienterrors.TransactionClosed.Wrap(err)
	}
	return err
}
