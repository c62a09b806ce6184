package ipc

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when sending on a closed endpoint.
var ErrClosed = errors.New("ipc: endpoint closed")

// Endpoint is one side of an asynchronous message channel.
type Endpoint interface {
	// Send delivers a message to the peer without waiting for it to be handled.
	Send(ctx context.Context, msg Message) error
	// Receive returns the stream of inbound messages. It is closed when the
	// endpoint shuts down.
	Receive() <-chan Message
	Close() error
}

// DefaultPipeBuffer is the per-direction buffer used when Pipe is given a
// non-positive size.
const DefaultPipeBuffer = 64

type pipe struct {
	mu      sync.RWMutex
	once    sync.Once
	closing chan struct{}
	closed  bool
	aIn     chan Message
	bIn     chan Message
}

type pipeEnd struct {
	p   *pipe
	in  chan Message
	out chan Message
}

// Pipe returns two connected in-process endpoints. A message sent on one
// is received on the other. Closing either end closes both.
func Pipe(buffer int) (Endpoint, Endpoint) {
	if buffer <= 0 {
		buffer = DefaultPipeBuffer
	}
	p := &pipe{
		closing: make(chan struct{}),
		aIn:     make(chan Message, buffer),
		bIn:     make(chan Message, buffer),
	}
	return &pipeEnd{p: p, in: p.aIn, out: p.bIn}, &pipeEnd{p: p, in: p.bIn, out: p.aIn}
}

func (e *pipeEnd) Send(ctx context.Context, msg Message) error {
	e.p.mu.RLock()
	defer e.p.mu.RUnlock()
	if e.p.closed {
		return ErrClosed
	}
	select {
	case e.out <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.p.closing:
		return ErrClosed
	}
}

func (e *pipeEnd) Receive() <-chan Message {
	return e.in
}

func (e *pipeEnd) Close() error {
	e.p.once.Do(func() {
		close(e.p.closing)
		e.p.mu.Lock()
		defer e.p.mu.Unlock()
		e.p.closed = true
		close(e.p.aIn)
		close(e.p.bIn)
	})
	return nil
}
