package grpc

import (
	"fmt"

	"github.com/mlops-eval/typedb-driver/src/protocol"
	"google.golang.org/protobuf/proto"
)

// codecName overrides the content-subtype so servers route the calls to
// their protobuf handlers.
const codecName = "proto"

// Frame is an already encoded message. Transaction streams carry frames so
// the envelope is encoded exactly once, by the dispatcher.
type Frame struct {
	Data []byte
}

// FrameCodec marshals frames and protocol messages as they are, and falls
// back to the protobuf runtime for generated messages such as the health
// check.
type FrameCodec struct{}

func (FrameCodec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case *Frame:
		return m.Data, nil
	case protocol.Message:
		return m.Marshal()
	case proto.Message:
		return proto.Marshal(m)
	default:
		return nil, fmt.Errorf("failed to marshal, message is %T", v)
	}
}

func (FrameCodec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case *Frame:
		m.Data = append([]byte(nil), data...)
		return nil
	case protocol.Message:
		return m.Unmarshal(append([]byte(nil), data...))
	case proto.Message:
		return proto.Unmarshal(data, m)
	default:
		return fmt.Errorf("failed to unmarshal, message is %T", v)
	}
}

func (FrameCodec) Name() string {
	return codecName
}
