// Package memconn is an in-memory datagram substrate used to run a
// transmitter and receivers in one process.
package memconn

import (
	"errors"
	"net"
	"os"
	"sync"
	"time"
)

var ErrClosed = net.ErrClosed

// Pipe queues whole datagrams from Send to Read. It never splits or merges
// datagrams; Copies can drop or duplicate them on the way.
type Pipe struct {
	// Copies, when set, decides how many times a datagram is delivered.
	Copies func(b []byte) int

	mu       sync.Mutex
	queue    [][]byte
	deadline time.Time
	closed   bool
	notify   chan struct{}
}

func New() *Pipe {
	return &Pipe{notify: make(chan struct{}, 1)}
}

func (p *Pipe) Send(b []byte) error {
	n := 1
	if p.Copies != nil {
		n = p.Copies(b)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	for i := 0; i < n; i++ {
		p.queue = append(p.queue, append([]byte(nil), b...))
	}
	p.wake()
	return nil
}

func (p *Pipe) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Len returns the number of queued datagrams.
func (p *Pipe) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

func (p *Pipe) SetReadDeadline(t time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deadline = t
	p.wake()
	return nil
}

// Read copies the oldest datagram into b, truncating like a UDP socket does.
func (p *Pipe) Read(b []byte) (int, error) {
	for {
		p.mu.Lock()
		if len(p.queue) > 0 {
			d := p.queue[0]
			p.queue = p.queue[1:]
			p.mu.Unlock()
			return copy(b, d), nil
		}
		if p.closed {
			p.mu.Unlock()
			return 0, ErrClosed
		}
		deadline := p.deadline
		p.mu.Unlock()

		if deadline.IsZero() {
			<-p.notify
			continue
		}
		wait := time.Until(deadline)
		if wait <= 0 {
			return 0, os.ErrDeadlineExceeded
		}
		timer := time.NewTimer(wait)
		select {
		case <-p.notify:
		case <-timer.C:
		}
		timer.Stop()
	}
}

func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("memconn: already closed")
	}
	p.closed = true
	p.wake()
	return nil
}
