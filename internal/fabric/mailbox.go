package fabric

import (
	"context"
	"sync"
)

// mailbox is an unbounded FIFO of inbound frames from a single source rank.
// Writers never block, which is what keeps the all-to-all shuffle free of
// send/receive ordering deadlocks: a worker's sends complete regardless of
// when (or in what order) the destination gets around to receiving.
type mailbox struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool

	notify chan struct{}
	done   chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (m *mailbox) put(frame []byte) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.frames = append(m.frames, frame)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *mailbox) take(ctx context.Context) ([]byte, error) {
	for {
		m.mu.Lock()
		if len(m.frames) > 0 {
			frame := m.frames[0]
			m.frames = m.frames[1:]
			m.mu.Unlock()
			return frame, nil
		}
		closed := m.closed
		m.mu.Unlock()

		if closed {
			return nil, ErrClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-m.notify:
		case <-m.done:
		}
	}
}

func (m *mailbox) close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	close(m.done)
}
