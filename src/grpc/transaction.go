package grpc

import (
	"context"
	"sync"

	"google.golang.org/grpc"
)

// transactionStream adapts a gRPC client stream to stream.Transport.
type transactionStream struct {
	stream    grpc.ClientStream
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (t *transactionStream) Send(frame []byte) error {
	return t.stream.SendMsg(&Frame{Data: frame})
}

// Recv returns io.EOF once the server has ended the stream.
func (t *transactionStream) Recv() ([]byte, error) {
	var f Frame
	if err := t.stream.RecvMsg(&f); err != nil {
		return nil, err
	}
	return f.Data, nil
}

// Close cancels the call, which also unblocks a pending Recv.
func (t *transactionStream) Close() error {
	t.closeOnce.Do(t.cancel)
	return nil
}
