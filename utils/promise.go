package utils

import (
	"context"
	"sync/atomic"
)

// Promise is a single-use hand-off cell. Exactly one Deliver is allowed;
// a second Deliver panics, because double hand-off of an owned resource is
// a programming error, not a runtime condition.
type Promise[T any] struct {
	ch        chan T
	delivered atomic.Bool
}

func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{ch: make(chan T, 1)}
}

func (p *Promise[T]) Deliver(v T) {
	if p.delivered.Swap(true) {
		panic("promise delivered twice")
	}
	p.ch <- v
}

// Wait blocks until the value is delivered or the context is cancelled.
func (p *Promise[T]) Wait(ctx context.Context) (T, error) {
	select {
	case v := <-p.ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
