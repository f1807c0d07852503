package rethinkdb

import (
	"context"

	"github.com/mukteshkrmishra/rethinkdb/cursor"
	"github.com/mukteshkrmishra/rethinkdb/datum"
	"github.com/mukteshkrmishra/rethinkdb/utils"
)

// EraseRange removes every primary entry inside rng and every secondary
// entry owned by an erased document, under-construction trees included.
// The secondary erases run concurrently and all join before the primary
// erase starts, so no index entry ever outlives a window where its
// document is gone but its blob freed. The caller holds the store's write
// lock; the range must not be empty.
func (s *Store) EraseRange(ctx context.Context, txn *cursor.Txn, rng datum.KeyRange) error {
	if rng.IsEmpty() {
		panic("erasing an empty key range")
	}

	accesses, err := s.acquireSindexAccesses(txn, nil)
	if err != nil {
		return err
	}

	s.changes.PushEraseRange(rng)

	var drainer utils.Drainer
	for _, a := range accesses {
		a := a
		drainer.Go(func() {
			s.sindexEraseRange(ctx, a, rng)
		})
	}
	drainer.Drain()
	if err := ctx.Err(); err != nil {
		return err
	}

	// The generic erase takes an exclusive left and inclusive right
	// bound; rng is inclusive-exclusive, so both edges step down by one
	// key.
	var leftExcl, rightIncl datum.StoreKey
	if left, ok := rng.Left.Decrement(); ok {
		leftExcl = left
	}
	if !rng.RightUnbounded {
		right, ok := rng.Right.Decrement()
		if !ok {
			return nil
		}
		rightIncl = right
	}

	deleter := func(w cursor.Writer, value []byte) error {
		return s.blobs.Clear(w, value)
	}
	if err := cursor.EraseRangeGeneric(ctx, cursor.NewSuperblock(s.primary, txn),
		nil, deleter, leftExcl, rightIncl); err != nil {
		return err
	}
	rangeErases.Inc()
	return nil
}

// sindexEraseRange walks one index tree and removes every entry whose
// embedded primary key falls inside rng. Index entries reference data the
// primary entry owns, so there is nothing to clear per value.
// Interruption here is not an error: the primary erase that follows never
// runs, and the next erase attempt covers the same entries again.
func (s *Store) sindexEraseRange(ctx context.Context, a *SindexAccess, rng datum.KeyRange) {
	tester := func(k datum.StoreKey) bool {
		pk, err := datum.ExtractPrimary(k)
		if err != nil {
			s.log.WarnCtx(ctx, "malformed sindex key during erase",
				"sindex", a.Def.Name, "err", err)
			return false
		}
		return rng.Contains(pk)
	}
	if err := cursor.EraseRangeGeneric(ctx, a.Superblock(), tester, nil, nil, nil); err != nil {
		s.log.WarnCtx(ctx, "sindex erase interrupted",
			"sindex", a.Def.Name, "err", err)
	}
}
