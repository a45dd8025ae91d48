package transport

import (
	"context"
	"sync"

	"github.com/webdesserts/obsidian-memory-sub000/internal/vaulterrors"
)

// PipeTransport is an in-process Transport backed by a buffered
// channel, letting tests exercise the Sync Engine end to end without a
// real socket. NewPipe returns a connected pair.
type PipeTransport struct {
	out    chan []byte
	in     chan []byte
	mu     sync.Mutex
	closed bool
}

// NewPipe returns two PipeTransports, each other's peer: sending on one
// is receivable on the other.
func NewPipe(bufferSize int) (a, b *PipeTransport) {
	ab := make(chan []byte, bufferSize)
	ba := make(chan []byte, bufferSize)
	a = &PipeTransport{out: ab, in: ba}
	b = &PipeTransport{out: ba, in: ab}
	return a, b
}

func (p *PipeTransport) Send(ctx context.Context, data []byte) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return vaulterrors.TransportClosed
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	select {
	case p.out <- cp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *PipeTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-p.in:
		if !ok {
			return nil, vaulterrors.TransportClosed
		}
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *PipeTransport) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.out)
	return nil
}
