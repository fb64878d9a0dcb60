package fakeserver

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mlops-eval/typedb-driver/src/protocol"
)

// DefaultWait bounds how long the server side of a Pipe waits for a batch.
const DefaultWait = 2 * time.Second

// Pipe is an in-memory transaction transport. The client side (Send, Recv,
// Close) is handed to the code under test; the test drives the server side
// (NextBatch, Respond, Fail).
type Pipe struct {
	toServer chan []byte
	toClient chan []byte

	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	failErr error
	frames  int
}

func NewPipe() *Pipe {
	return &Pipe{
		toServer: make(chan []byte, 1024),
		toClient: make(chan []byte, 1024),
		closed:   make(chan struct{}),
	}
}

func (p *Pipe) Send(frame []byte) error {
	select {
	case <-p.closed:
		return io.ErrClosedPipe
	default:
	}
	select {
	case p.toServer <- frame:
		p.mu.Lock()
		p.frames++
		p.mu.Unlock()
		return nil
	case <-p.closed:
		return io.ErrClosedPipe
	}
}

func (p *Pipe) Recv() ([]byte, error) {
	select {
	case frame := <-p.toClient:
		return frame, nil
	case <-p.closed:
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.failErr != nil {
			return nil, p.failErr
		}
		return nil, io.EOF
	}
}

func (p *Pipe) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

// IsClosed reports whether either side closed the pipe.
func (p *Pipe) IsClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

// FramesSent is the number of frames the client wrote.
func (p *Pipe) FramesSent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames
}

// NextBatch returns the requests of the next frame the client wrote.
func (p *Pipe) NextBatch(wait time.Duration) ([]*protocol.TransactionReq, error) {
	select {
	case frame := <-p.toServer:
		return protocol.DecodeClient(frame)
	case <-time.After(wait):
		return nil, errors.New("timed out waiting for a client batch")
	}
}

// NextRequest returns requests one at a time, reading new batches as needed.
func (p *Pipe) NextRequest(pending *[]*protocol.TransactionReq, wait time.Duration) (*protocol.TransactionReq, error) {
	for len(*pending) == 0 {
		batch, err := p.NextBatch(wait)
		if err != nil {
			return nil, err
		}
		*pending = batch
	}
	req := (*pending)[0]
	*pending = (*pending)[1:]
	return req, nil
}

// Respond delivers response parts to the client in order.
func (p *Pipe) Respond(parts ...protocol.Response) error {
	for _, part := range parts {
		frame, err := protocol.EncodeServer(part)
		if err != nil {
			return fmt.Errorf("failed to encode response: %w", err)
		}
		if err := p.RespondRaw(frame); err != nil {
			return err
		}
	}
	return nil
}

// RespondRaw delivers an arbitrary frame to the client.
func (p *Pipe) RespondRaw(frame []byte) error {
	select {
	case p.toClient <- frame:
		return nil
	case <-p.closed:
		return io.ErrClosedPipe
	}
}

// Fail breaks the connection: the client's Recv returns err.
func (p *Pipe) Fail(err error) {
	p.mu.Lock()
	p.failErr = err
	p.mu.Unlock()
	_ = p.Close()
}
