package protocol

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Envelope field numbers.
const (
	clientReqsField  protowire.Number = 1
	reqIDField       protowire.Number = 1
	serverResField   protowire.Number = 1
	serverPartField  protowire.Number = 2
	streamStateField protowire.Number = 1
)

// ErrMalformedFrame is returned when a frame cannot be routed to any request.
var ErrMalformedFrame = errors.New("malformed frame")

// EncodeClient serializes a batch of requests, in order, into one frame.
func EncodeClient(reqs []*TransactionReq) ([]byte, error) {
	var b []byte
	for _, req := range reqs {
		encoded, err := encodeReq(req)
		if err != nil {
			return nil, err
		}
		b = appendBytesField(b, clientReqsField, encoded)
	}
	return b, nil
}

func encodeReq(req *TransactionReq) ([]byte, error) {
	if req == nil {
		return nil, fmt.Errorf("error serializing request: nil request")
	}
	if !validKind(req.Kind) {
		return nil, fmt.Errorf("error serializing request %s: unknown kind %s", req.ReqID, req.Kind)
	}
	b := appendBytesField(nil, reqIDField, req.ReqID[:])
	b = appendBytesField(b, protowire.Number(req.Kind), req.Body)
	return b, nil
}

// DecodeClient parses a client frame back into its requests.
func DecodeClient(b []byte) ([]*TransactionReq, error) {
	var reqs []*TransactionReq
	err := consumeFields(b, func(f field) error {
		if f.num != clientReqsField || f.typ != protowire.BytesType {
			return nil
		}
		req, err := decodeReq(f.bytes)
		if err != nil {
			return err
		}
		reqs = append(reqs, req)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error deserializing client frame: %w", err)
	}
	return reqs, nil
}

func decodeReq(b []byte) (*TransactionReq, error) {
	req := &TransactionReq{}
	haveID := false
	err := consumeFields(b, func(f field) error {
		if f.typ != protowire.BytesType {
			return nil
		}
		if f.num == reqIDField {
			id, err := ParseRequestID(f.bytes)
			if err != nil {
				return err
			}
			req.ReqID = id
			haveID = true
			return nil
		}
		if validKind(Kind(f.num)) {
			req.Kind = Kind(f.num)
			req.Body = f.bytes
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !haveID {
		return nil, fmt.Errorf("%w: request without id", ErrMalformedFrame)
	}
	return req, nil
}

// EncodeServer serializes one response part into a server frame.
func EncodeServer(res Response) ([]byte, error) {
	inner := appendBytesField(nil, reqIDField, res.ReqID[:])
	outer := serverPartField

	switch res.Variant {
	case VariantNotSet:
	case VariantResult:
		if !validKind(res.Kind) {
			return nil, fmt.Errorf("error serializing result %s: unknown kind %s", res.ReqID, res.Kind)
		}
		outer = serverResField
		inner = appendBytesField(inner, protowire.Number(res.Kind), res.Body)
	case VariantPart:
		if !validKind(res.Kind) || res.Kind == KindStream {
			return nil, fmt.Errorf("error serializing part %s: unknown kind %s", res.ReqID, res.Kind)
		}
		inner = appendBytesField(inner, protowire.Number(res.Kind), res.Body)
	case VariantStream:
		state := appendVarintField(nil, streamStateField, int32Varint(int32(res.State)))
		inner = appendBytesField(inner, protowire.Number(KindStream), state)
	default:
		return nil, fmt.Errorf("error serializing response %s: unknown variant %s", res.ReqID, res.Variant)
	}

	return appendBytesField(nil, outer, inner), nil
}

// DecodeServer parses a server frame. A frame whose payload is missing
// decodes to VariantNotSet; only frames that cannot be attributed to a
// request id fail.
func DecodeServer(b []byte) (Response, error) {
	var (
		res   Response
		found bool
	)
	err := consumeFields(b, func(f field) error {
		if f.typ != protowire.BytesType {
			return nil
		}
		switch f.num {
		case serverResField:
			decoded, err := decodeRes(f.bytes, false)
			if err != nil {
				return err
			}
			res, found = decoded, true
		case serverPartField:
			decoded, err := decodeRes(f.bytes, true)
			if err != nil {
				return err
			}
			res, found = decoded, true
		}
		return nil
	})
	if err != nil {
		return Response{}, fmt.Errorf("error deserializing server frame: %w", err)
	}
	if !found {
		return Response{}, fmt.Errorf("error deserializing server frame: %w: no response", ErrMalformedFrame)
	}
	return res, nil
}

func decodeRes(b []byte, part bool) (Response, error) {
	res := Response{Variant: VariantNotSet}
	haveID := false
	err := consumeFields(b, func(f field) error {
		if f.typ != protowire.BytesType {
			return nil
		}
		if f.num == reqIDField {
			id, err := ParseRequestID(f.bytes)
			if err != nil {
				return err
			}
			res.ReqID = id
			haveID = true
			return nil
		}

		kind := Kind(f.num)
		if !validKind(kind) {
			return nil
		}
		switch {
		case part && kind == KindStream:
			state, err := decodeStreamState(f.bytes)
			if err != nil {
				return err
			}
			res.Variant, res.Kind, res.State, res.Body = VariantStream, KindStream, state, nil
		case part:
			res.Variant, res.Kind, res.Body = VariantPart, kind, f.bytes
		default:
			res.Variant, res.Kind, res.Body = VariantResult, kind, f.bytes
		}
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	if !haveID {
		return Response{}, fmt.Errorf("%w: response without request id", ErrMalformedFrame)
	}
	return res, nil
}

func decodeStreamState(b []byte) (StreamState, error) {
	state := StreamContinue
	err := consumeFields(b, func(f field) error {
		if f.num == streamStateField && f.typ == protowire.VarintType {
			state = StreamState(varintInt32(f.varint))
		}
		return nil
	})
	return state, err
}
