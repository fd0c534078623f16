package ws

import (
	"context"
	"sync"
)

// pipeBuffer is the number of messages each direction holds before Write blocks.
const pipeBuffer = 64

type pipeShared struct {
	once sync.Once
	done chan struct{}
}

type pipeEnd struct {
	in     <-chan []byte
	out    chan<- []byte
	shared *pipeShared
}

// Pipe returns two connected in-memory Conns. Closing either end closes both.
func Pipe() (Conn, Conn) {
	ab := make(chan []byte, pipeBuffer)
	ba := make(chan []byte, pipeBuffer)
	shared := &pipeShared{done: make(chan struct{})}
	return &pipeEnd{in: ba, out: ab, shared: shared}, &pipeEnd{in: ab, out: ba, shared: shared}
}

// Read drains messages written before Close before reporting ErrClosed.
func (p *pipeEnd) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-p.in:
		return data, nil
	case <-p.shared.done:
		select {
		case data := <-p.in:
			return data, nil
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeEnd) Write(ctx context.Context, data []byte) error {
	select {
	case <-p.shared.done:
		return ErrClosed
	default:
	}
	msg := append([]byte(nil), data...)
	select {
	case p.out <- msg:
		return nil
	case <-p.shared.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Close(string) error {
	p.shared.once.Do(func() { close(p.shared.done) })
	return nil
}
