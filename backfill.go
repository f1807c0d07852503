package rethinkdb

import (
	"context"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/mukteshkrmishra/rethinkdb/datum"
)

// BackfillAtom is one live pair streamed to a catching-up replica.
type BackfillAtom struct {
	Key     datum.StoreKey
	Doc     *datum.Datum
	Recency time.Time
}

// BackfillCallback receives the backfill stream. OnSindexes arrives first
// with the current definitions; OnKeyValue streams the live pairs of the
// requested range. OnDeletion and OnDeleteRange exist for transports that
// replay the change log on top of a snapshot walk.
type BackfillCallback interface {
	OnSindexes(defs map[string]*SindexDef) error
	OnKeyValue(atom BackfillAtom) error
	OnDeletion(key datum.StoreKey, recency time.Time) error
	OnDeleteRange(rng datum.KeyRange) error
}

// Backfill walks a snapshot of the primary tree inside rng and streams
// every document to cb, definitions first.
func (s *Store) Backfill(ctx context.Context, rng datum.KeyRange, cb BackfillCallback) error {
	snap := s.db.NewSnapshot()
	defer snap.Close()

	defs := map[string]*SindexDef{}
	for _, def := range s.Sindexes() {
		defs[def.Name] = def
	}
	if err := cb.OnSindexes(defs); err != nil {
		return err
	}

	now := time.Now()
	lower, upper := s.primary.Bounds()
	if len(rng.Left) > 0 {
		lower = s.primary.Key(rng.Left)
	}
	if !rng.RightUnbounded {
		upper = s.primary.Key(rng.Right)
	}
	iter, err := snap.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer iter.Close()

	for valid := iter.First(); valid; valid = iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc, err := s.decodeStored(snap, iter.Value())
		if err != nil {
			return err
		}
		atom := BackfillAtom{
			Key:     s.primary.StripPrefix(iter.Key()),
			Doc:     doc,
			Recency: now,
		}
		if err := cb.OnKeyValue(atom); err != nil {
			return err
		}
	}
	return iter.Error()
}
