package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// OpenRequest is the body of a transaction open request.
type OpenRequest struct {
	SessionID            []byte
	Type                 TransactionType
	Options              *Options
	NetworkLatencyMillis int32
}

func (m *OpenRequest) Marshal() ([]byte, error) {
	b := appendBytesField(nil, 1, m.SessionID)
	b = appendVarintField(b, 2, int32Varint(int32(m.Type)))
	if m.Options != nil {
		opts, err := m.Options.Marshal()
		if err != nil {
			return nil, err
		}
		b = appendBytesField(b, 3, opts)
	}
	b = appendVarintField(b, 4, int32Varint(m.NetworkLatencyMillis))
	return b, nil
}

func (m *OpenRequest) Unmarshal(b []byte) error {
	*m = OpenRequest{}
	return consumeFields(b, func(f field) error {
		switch f.num {
		case 1:
			m.SessionID = f.bytes
		case 2:
			m.Type = TransactionType(varintInt32(f.varint))
		case 3:
			m.Options = &Options{}
			return m.Options.Unmarshal(f.bytes)
		case 4:
			m.NetworkLatencyMillis = varintInt32(f.varint)
		}
		return nil
	})
}

// QueryKind selects the query operation.
type QueryKind int32

const (
	QueryMatch QueryKind = iota + 1
	QueryMatchAggregate
	QueryMatchGroup
	QueryMatchGroupAggregate
	QueryInsert
	QueryDelete
	QueryUpdate
	QueryDefine
	QueryUndefine
)

func (k QueryKind) String() string {
	switch k {
	case QueryMatch:
		return "match"
	case QueryMatchAggregate:
		return "match_aggregate"
	case QueryMatchGroup:
		return "match_group"
	case QueryMatchGroupAggregate:
		return "match_group_aggregate"
	case QueryInsert:
		return "insert"
	case QueryDelete:
		return "delete"
	case QueryUpdate:
		return "update"
	case QueryDefine:
		return "define"
	case QueryUndefine:
		return "undefine"
	default:
		return fmt.Sprintf("query(%d)", int32(k))
	}
}

// QueryRequest is the body of a query request.
type QueryRequest struct {
	Kind    QueryKind
	Query   string
	Options *Options
}

func (m *QueryRequest) Marshal() ([]byte, error) {
	var b []byte
	if m.Options != nil {
		opts, err := m.Options.Marshal()
		if err != nil {
			return nil, err
		}
		b = appendBytesField(b, 1, opts)
	}
	b = appendVarintField(b, 2, int32Varint(int32(m.Kind)))
	b = appendStringField(b, 3, m.Query)
	return b, nil
}

func (m *QueryRequest) Unmarshal(b []byte) error {
	*m = QueryRequest{}
	return consumeFields(b, func(f field) error {
		switch f.num {
		case 1:
			m.Options = &Options{}
			return m.Options.Unmarshal(f.bytes)
		case 2:
			m.Kind = QueryKind(varintInt32(f.varint))
		case 3:
			m.Query = string(f.bytes)
		}
		return nil
	})
}

// QueryAnswers is the body of a query result or query response part. Each
// answer is an opaque server-encoded value.
type QueryAnswers struct {
	Answers [][]byte
}

func (m *QueryAnswers) Marshal() ([]byte, error) {
	var b []byte
	for _, a := range m.Answers {
		b = appendBytesField(b, 1, a)
	}
	return b, nil
}

func (m *QueryAnswers) Unmarshal(b []byte) error {
	*m = QueryAnswers{}
	return consumeFields(b, func(f field) error {
		if f.num == 1 && f.typ == protowire.BytesType {
			m.Answers = append(m.Answers, f.bytes)
		}
		return nil
	})
}

// OpenReq builds the request opening a transaction on a session.
func OpenReq(sessionID []byte, txType TransactionType, options *Options, latencyMillis int32) (*TransactionReq, error) {
	body, err := (&OpenRequest{
		SessionID:            sessionID,
		Type:                 txType,
		Options:              options,
		NetworkLatencyMillis: latencyMillis,
	}).Marshal()
	if err != nil {
		return nil, fmt.Errorf("error serializing open request: %w", err)
	}
	return &TransactionReq{ReqID: NewRequestID(), Kind: KindOpen, Body: body}, nil
}

// StreamReq builds a continuation request. It reuses the id of the request
// whose stream it continues.
func StreamReq(id RequestID) *TransactionReq {
	return &TransactionReq{ReqID: id, Kind: KindStream}
}

func CommitReq() *TransactionReq {
	return &TransactionReq{ReqID: NewRequestID(), Kind: KindCommit}
}

func RollbackReq() *TransactionReq {
	return &TransactionReq{ReqID: NewRequestID(), Kind: KindRollback}
}

// QueryReq builds a query request.
func QueryReq(kind QueryKind, query string, options *Options) (*TransactionReq, error) {
	body, err := (&QueryRequest{Kind: kind, Query: query, Options: options}).Marshal()
	if err != nil {
		return nil, fmt.Errorf("error serializing query request: %w", err)
	}
	return &TransactionReq{ReqID: NewRequestID(), Kind: KindQuery, Body: body}, nil
}

// ConceptReq wraps an already encoded concept operation.
func ConceptReq(body []byte) *TransactionReq {
	return &TransactionReq{ReqID: NewRequestID(), Kind: KindConcept, Body: body}
}
