package signaling

import (
	"context"
	"io"
	"sync"
)

// pipeEnd is one side of an in-memory signaling pair.
type pipeEnd struct {
	in  <-chan Message
	out chan<- Message

	local  *pipeState
	remote *pipeState
}

type pipeState struct {
	once   sync.Once
	closed chan struct{}
}

func (p *pipeState) close() {
	p.once.Do(func() { close(p.closed) })
}

// Pipe returns two connected in-memory transports.
func Pipe() (Signaling, Signaling) {
	ab := make(chan Message, 16)
	ba := make(chan Message, 16)
	sa := &pipeState{closed: make(chan struct{})}
	sb := &pipeState{closed: make(chan struct{})}
	a := &pipeEnd{in: ba, out: ab, local: sa, remote: sb}
	b := &pipeEnd{in: ab, out: ba, local: sb, remote: sa}
	return a, b
}

func (p *pipeEnd) Send(ctx context.Context, m Message) error {
	select {
	case <-p.local.closed:
		return ErrClosed
	case <-p.remote.closed:
		return io.EOF
	default:
	}
	select {
	case p.out <- m:
		return nil
	case <-p.local.closed:
		return ErrClosed
	case <-p.remote.closed:
		return io.EOF
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Receive(ctx context.Context) (Message, error) {
	select {
	case m := <-p.in:
		return m, nil
	default:
	}
	select {
	case m := <-p.in:
		return m, nil
	case <-p.local.closed:
		return Message{}, ErrClosed
	case <-p.remote.closed:
		return Message{}, io.EOF
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (p *pipeEnd) Close() error {
	p.local.close()
	return nil
}
