package utils

import (
	"context"
	"sync"
)

// FifoSource hands out monotonically increasing tickets. Together with
// FifoSink it lets work be prepared concurrently but committed in ticket
// order: ticket n's side-effecting step runs only after ticket n-1 exited.
type FifoSource struct {
	mu   sync.Mutex
	next uint64
}

type FifoToken struct {
	seq uint64
}

func (s *FifoSource) Enter() FifoToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := FifoToken{seq: s.next}
	s.next++
	return t
}

type FifoSink struct {
	mu      sync.Mutex
	done    uint64
	waiters map[uint64]chan struct{}
}

func NewFifoSink() *FifoSink {
	return &FifoSink{waiters: make(map[uint64]chan struct{})}
}

// Wait blocks until every ticket before t has exited.
func (s *FifoSink) Wait(ctx context.Context, t FifoToken) error {
	s.mu.Lock()
	if s.done >= t.seq {
		s.mu.Unlock()
		return nil
	}
	ch, ok := s.waiters[t.seq]
	if !ok {
		ch = make(chan struct{})
		s.waiters[t.seq] = ch
	}
	s.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Exit retires ticket t and wakes the ticket right after it. Tickets must
// exit in order; the in-order wake chain enforces that as long as every
// holder calls Wait before Exit.
func (s *FifoSink) Exit(t FifoToken) {
	s.mu.Lock()
	if t.seq+1 > s.done {
		s.done = t.seq + 1
	}
	if ch, ok := s.waiters[s.done]; ok {
		close(ch)
		delete(s.waiters, s.done)
	}
	s.mu.Unlock()
}
