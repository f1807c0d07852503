package cursor

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"github.com/mukteshkrmishra/rethinkdb/datum"
	"github.com/mukteshkrmishra/rethinkdb/utils"
)

// Direction of a range traversal.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// KeyValue is one visited entry. Both slices are owned copies: the
// underlying iterator has already moved on by the time a handler sees
// them.
type KeyValue struct {
	Key   datum.StoreKey
	Value []byte
}

// Waiter gates a handler's in-order section. Preparation (decoding) may
// run concurrently across entries, but everything after Wait returns runs
// in strict index order.
type Waiter struct {
	token utils.FifoToken
	sink  *utils.FifoSink
}

func (w Waiter) Wait(ctx context.Context) error {
	return w.sink.Wait(ctx, w.token)
}

// Handler processes one entry. Returning false stops the traversal after
// in-flight entries finish; returning an error aborts it.
type Handler interface {
	HandlePair(ctx context.Context, kv KeyValue, w Waiter) (bool, error)
}

// Traverse walks the tree entries inside rng in index order, dispatching
// entries to a small worker pool so handlers can prepare concurrently
// while committing in order through their Waiter. Cancellation surfaces as
// the context error, never as a handler error.
func Traverse(ctx context.Context, reader pebble.Reader, tree *Tree,
	rng datum.KeyRange, dir Direction, concurrency int, h Handler) error {
	if concurrency < 1 {
		concurrency = 1
	}

	lower, upper := tree.Bounds()
	if len(rng.Left) > 0 {
		lower = tree.Key(rng.Left)
	}
	if !rng.RightUnbounded {
		upper = tree.Key(rng.Right)
	}
	iter, err := reader.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer iter.Close()

	var (
		src     utils.FifoSource
		sink    = utils.NewFifoSink()
		stopped atomic.Bool
		errOnce sync.Once
		firstEr error
		wg      sync.WaitGroup
	)
	type job struct {
		kv    KeyValue
		token utils.FifoToken
	}
	jobs := make(chan job, concurrency)

	worker := func() {
		defer wg.Done()
		for j := range jobs {
			if !stopped.Load() {
				cont, herr := h.HandlePair(ctx, j.kv, Waiter{token: j.token, sink: sink})
				if herr != nil {
					errOnce.Do(func() { firstEr = herr })
					stopped.Store(true)
				} else if !cont {
					stopped.Store(true)
				}
			}
			// Keep the ticket chain intact even for skipped entries.
			_ = sink.Wait(ctx, j.token)
			sink.Exit(j.token)
		}
	}
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go worker()
	}

	next := func() bool {
		if dir == Forward {
			return iter.Next()
		}
		return iter.Prev()
	}
	valid := false
	if dir == Forward {
		valid = iter.First()
	} else {
		valid = iter.Last()
	}
	for ; valid; valid = next() {
		if stopped.Load() || ctx.Err() != nil {
			break
		}
		kv := KeyValue{
			Key:   tree.StripPrefix(iter.Key()),
			Value: append([]byte(nil), iter.Value()...),
		}
		jobs <- job{kv: kv, token: src.Enter()}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	if firstEr != nil {
		return firstEr
	}
	return iter.Error()
}
