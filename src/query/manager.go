package query

import (
	"context"
	"fmt"

	"github.com/mlops-eval/typedb-driver/src/clienterrors"
	"github.com/mlops-eval/typedb-driver/src/protocol"
	"github.com/mlops-eval/typedb-driver/src/stream"
)

// Transactor is the part of a transaction the query manager sends requests
// through.
type Transactor interface {
	Execute(ctx context.Context, req *protocol.TransactionReq) (protocol.Response, error)
	Stream(req *protocol.TransactionReq) (*stream.ResponsePartIterator, error)
}

// Manager runs queries inside one transaction. Queries that return many
// answers are streamed; the rest wait for their single result.
type Manager struct {
	tx Transactor
}

func NewManager(tx Transactor) *Manager {
	return &Manager{tx: tx}
}

func (m *Manager) Match(query string, options *protocol.Options) (*AnswerIterator, error) {
	return m.stream(protocol.QueryMatch, query, options)
}

func (m *Manager) MatchGroup(query string, options *protocol.Options) (*AnswerIterator, error) {
	return m.stream(protocol.QueryMatchGroup, query, options)
}

func (m *Manager) MatchGroupAggregate(query string, options *protocol.Options) (*AnswerIterator, error) {
	return m.stream(protocol.QueryMatchGroupAggregate, query, options)
}

func (m *Manager) Insert(query string, options *protocol.Options) (*AnswerIterator, error) {
	return m.stream(protocol.QueryInsert, query, options)
}

func (m *Manager) Update(query string, options *protocol.Options) (*AnswerIterator, error) {
	return m.stream(protocol.QueryUpdate, query, options)
}

// MatchAggregate returns the single answer of an aggregate query.
func (m *Manager) MatchAggregate(ctx context.Context, query string, options *protocol.Options) ([]byte, error) {
	req, res, err := m.execute(ctx, protocol.QueryMatchAggregate, query, options)
	if err != nil {
		return nil, err
	}
	answers := &protocol.QueryAnswers{}
	if err := answers.Unmarshal(res.Body); err != nil {
		return nil, fmt.Errorf("failed to decode aggregate answer: %w", err)
	}
	if len(answers.Answers) == 0 {
		return nil, clienterrors.MissingAnswer.New(req.ReqID)
	}
	return answers.Answers[0], nil
}

func (m *Manager) Define(ctx context.Context, query string, options *protocol.Options) error {
	_, _, err := m.execute(ctx, protocol.QueryDefine, query, options)
	return err
}

func (m *Manager) Undefine(ctx context.Context, query string, options *protocol.Options) error {
	_, _, err := m.execute(ctx, protocol.QueryUndefine, query, options)
	return err
}

func (m *Manager) Delete(ctx context.Context, query string, options *protocol.Options) error {
	_, _, err := m.execute(ctx, protocol.QueryDelete, query, options)
	return err
}

func (m *Manager) execute(ctx context.Context, kind protocol.QueryKind, query string, options *protocol.Options) (*protocol.TransactionReq, protocol.Response, error) {
	req, err := newRequest(kind, query, options)
	if err != nil {
		return nil, protocol.Response{}, err
	}
	res, err := m.tx.Execute(ctx, req)
	if err != nil {
		return nil, protocol.Response{}, fmt.Errorf("%s query failed: %w", kind, err)
	}
	if res.Kind != protocol.KindQuery {
		return nil, protocol.Response{}, clienterrors.UnexpectedResponse.New(res.Kind, req.ReqID)
	}
	return req, res, nil
}

func (m *Manager) stream(kind protocol.QueryKind, query string, options *protocol.Options) (*AnswerIterator, error) {
	req, err := newRequest(kind, query, options)
	if err != nil {
		return nil, err
	}
	parts, err := m.tx.Stream(req)
	if err != nil {
		return nil, fmt.Errorf("%s query failed: %w", kind, err)
	}
	return newAnswerIterator(parts), nil
}

func newRequest(kind protocol.QueryKind, query string, options *protocol.Options) (*protocol.TransactionReq, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}
	return protocol.QueryReq(kind, query, options)
}
