package protocol

import (
	"fmt"

	"github.com/google/uuid"
)

// RequestID correlates an outbound request with its inbound response parts.
type RequestID [16]byte

// NewRequestID returns a fresh, process-unique request id.
func NewRequestID() RequestID {
	return RequestID(uuid.New())
}

// ParseRequestID reads a request id from its 16-byte wire form.
func ParseRequestID(b []byte) (RequestID, error) {
	id, err := uuid.FromBytes(b)
	if err != nil {
		return RequestID{}, fmt.Errorf("invalid request id: %w", err)
	}
	return RequestID(id), nil
}

func (id RequestID) String() string {
	return uuid.UUID(id).String()
}

func (id RequestID) IsZero() bool {
	return id == RequestID{}
}

// Kind names the payload carried by a request or a response. Its value is
// the protobuf field number of that payload inside the envelope.
type Kind uint8

const (
	KindNotSet   Kind = 0
	KindOpen     Kind = 2
	KindStream   Kind = 3
	KindCommit   Kind = 4
	KindRollback Kind = 5
	KindQuery    Kind = 6
	KindConcept  Kind = 7
)

func (k Kind) String() string {
	switch k {
	case KindNotSet:
		return "not_set"
	case KindOpen:
		return "open"
	case KindStream:
		return "stream"
	case KindCommit:
		return "commit"
	case KindRollback:
		return "rollback"
	case KindQuery:
		return "query"
	case KindConcept:
		return "concept"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func validKind(k Kind) bool {
	return k >= KindOpen && k <= KindConcept
}

// TransactionReq is one request travelling on a transaction stream. Body is
// the kind-specific payload and is never interpreted by the multiplexer.
type TransactionReq struct {
	ReqID RequestID
	Kind  Kind
	Body  []byte
}

// StreamState is the continuation state reported by a stream response part.
type StreamState int32

const (
	StreamContinue StreamState = 0
	StreamDone     StreamState = 1
)

func (s StreamState) String() string {
	switch s {
	case StreamContinue:
		return "CONTINUE"
	case StreamDone:
		return "DONE"
	default:
		return fmt.Sprintf("STATE(%d)", int32(s))
	}
}

// Variant discriminates the Response union.
type Variant uint8

const (
	// VariantNotSet is an envelope with no payload populated server side.
	VariantNotSet Variant = iota
	// VariantResult is a single result; the request is done.
	VariantResult
	// VariantPart is one streamed payload part.
	VariantPart
	// VariantStream is a stream state marker (CONTINUE or DONE).
	VariantStream
)

func (v Variant) String() string {
	switch v {
	case VariantNotSet:
		return "res_not_set"
	case VariantResult:
		return "result"
	case VariantPart:
		return "res_part"
	case VariantStream:
		return "stream_res_part"
	default:
		return fmt.Sprintf("variant(%d)", uint8(v))
	}
}

// Response is one decoded response part addressed to a single request.
type Response struct {
	ReqID   RequestID
	Variant Variant
	Kind    Kind
	State   StreamState
	Body    []byte
}

// NotSet builds a response with no payload.
func NotSet(id RequestID) Response {
	return Response{ReqID: id, Variant: VariantNotSet}
}

// Result builds a single-result response.
func Result(id RequestID, kind Kind, body []byte) Response {
	return Response{ReqID: id, Variant: VariantResult, Kind: kind, Body: body}
}

// Part builds a streamed payload part.
func Part(id RequestID, kind Kind, body []byte) Response {
	return Response{ReqID: id, Variant: VariantPart, Kind: kind, Body: body}
}

// StreamPart builds a stream state marker.
func StreamPart(id RequestID, state StreamState) Response {
	return Response{ReqID: id, Variant: VariantStream, Kind: KindStream, State: state}
}
