package connection

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mlops-eval/typedb-driver/src/clienterrors"
	"github.com/mlops-eval/typedb-driver/src/config"
	"github.com/mlops-eval/typedb-driver/src/protocol"
	"github.com/mlops-eval/typedb-driver/src/stream"
	"github.com/sirupsen/logrus"
)

// Session is an open session on one database. It keeps itself alive with a
// periodic pulse and owns the transactions opened through it.
type Session struct {
	rpc         RPC
	database    string
	sessionType protocol.SessionType
	options     *protocol.Options
	id          []byte
	latency     time.Duration
	cfg         config.Interface
	logger      *logrus.Logger
	metrics     *stream.Metrics

	mu           sync.Mutex
	transactions map[*Transaction]struct{}

	open      atomic.Bool
	closeOnce sync.Once
	onClose   func(*Session)
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// OpenSession opens a session and starts its pulse.
func OpenSession(ctx context.Context, rpc RPC, database string, sessionType protocol.SessionType, options *protocol.Options, cfg config.Interface, logger *logrus.Logger, metrics *stream.Metrics) (*Session, error) {
	if database == "" {
		return nil, clienterrors.MissingDBName.New()
	}
	if err := sessionType.Validate(); err != nil {
		return nil, err
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := rpc.SessionOpen(ctx, &protocol.SessionOpenReq{
		Database: database,
		Type:     sessionType,
		Options:  options,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s session on database %s: %w", sessionType, database, err)
	}
	latency := time.Since(start) - time.Duration(res.ServerDurationMillis)*time.Millisecond
	if latency < 0 {
		latency = 0
	}

	pulseCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		rpc:          rpc,
		database:     database,
		sessionType:  sessionType,
		options:      options,
		id:           res.SessionID,
		latency:      latency,
		cfg:          cfg,
		logger:       logger,
		metrics:      metrics,
		transactions: make(map[*Transaction]struct{}),
		ctx:          pulseCtx,
		cancel:       cancel,
	}
	s.open.Store(true)

	logger.WithFields(logrus.Fields{
		"session_id": s.ID(),
		"database":   database,
		"type":       sessionType.String(),
		"latency":    latency,
	}).Info("Opened session")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pulse(cfg.GetStreamConfig().GetPulseInterval())
	}()
	return s, nil
}

// ID returns the session id in its textual form.
func (s *Session) ID() string {
	if id, err := uuid.FromBytes(s.id); err == nil {
		return id.String()
	}
	return fmt.Sprintf("%x", s.id)
}

func (s *Session) Database() string {
	return s.database
}

func (s *Session) Type() protocol.SessionType {
	return s.sessionType
}

func (s *Session) IsOpen() bool {
	return s.open.Load()
}

// NetworkLatency is the round trip of the session open call minus the time
// the server spent on it.
func (s *Session) NetworkLatency() time.Duration {
	return s.latency
}

// Transaction opens a transaction in the session. Options without a batch
// size get the configured one.
func (s *Session) Transaction(ctx context.Context, txType protocol.TransactionType, options *protocol.Options) (*Transaction, error) {
	if !s.IsOpen() {
		return nil, clienterrors.SessionClosed.New()
	}
	if options == nil || options.BatchSize == nil {
		opts := protocol.Options{}
		if options != nil {
			opts = *options
		}
		opts.BatchSize = protocol.Int32(s.cfg.GetGrpcConfig().GetBatchSize())
		options = &opts
	}

	tx, err := OpenTransaction(ctx, s.rpc, s.id, txType, options, int32(s.latency.Milliseconds()), s.cfg.GetStreamConfig(), s.logger, s.metrics)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.IsOpen() {
		_ = tx.Close()
		return nil, clienterrors.SessionClosed.New()
	}
	tx.onClose = s.forget
	s.transactions[tx] = struct{}{}
	return tx, nil
}

func (s *Session) forget(tx *Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transactions, tx)
}

func (s *Session) pulse(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(s.ctx, interval)
		alive, err := s.rpc.SessionPulse(ctx, s.id)
		cancel()
		if s.ctx.Err() != nil {
			return
		}
		if err == nil && alive {
			s.logger.WithField("session_id", s.ID()).Debug("Session pulse")
			continue
		}

		fields := logrus.Fields{"session_id": s.ID()}
		if err != nil {
			fields["error"] = err.Error()
		}
		s.logger.WithFields(fields).Warn("Session is no longer alive, closing its transactions")
		s.open.Store(false)
		s.closeTransactions()
		return
	}
}

func (s *Session) closeTransactions() {
	s.mu.Lock()
	txs := make([]*Transaction, 0, len(s.transactions))
	for tx := range s.transactions {
		txs = append(txs, tx)
	}
	s.mu.Unlock()

	for _, tx := range txs {
		_ = tx.Close()
	}
}

// Close closes every transaction of the session, stops the pulse and tells
// the server. Close is idempotent.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		wasOpen := s.open.Swap(false)
		s.cancel()
		s.wg.Wait()
		s.closeTransactions()

		if wasOpen {
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GetStreamConfig().GetPulseInterval())
			defer cancel()
			if closeErr := s.rpc.SessionClose(ctx, s.id); closeErr != nil {
				err = fmt.Errorf("failed to close session %s: %w", s.ID(), closeErr)
			}
		}
		if s.onClose != nil {
			s.onClose(s)
		}
		s.logger.WithField("session_id", s.ID()).Info("Closed session")
	})
	return err
}
