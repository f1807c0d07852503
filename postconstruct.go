package rethinkdb

import (
	"context"
	"runtime"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/mukteshkrmishra/rethinkdb/datum"
	"github.com/mukteshkrmishra/rethinkdb/rdberrors"
)

// PostConstructSindexes populates newly created indexes from the
// documents already stored, then marks them ready. A snapshot of the
// primary tree supplies the key list; each chunk then re-reads those keys
// from committed state under the store's write lock and applies them in
// its own short transaction, re-resolving the target set as it goes: an
// index dropped mid-walk simply stops receiving entries, never an error.
// Live writes landing during the walk reach under-construction indexes
// through the sync pipeline, and because both sides run under the write
// lock against current state, a concurrent update can neither be missed
// nor have a stale entry written over it.
func (s *Store) PostConstructSindexes(ctx context.Context, names ...string) error {
	targets := map[uuid.UUID]bool{}
	for _, name := range names {
		def, ok := s.sindexes.Load(name)
		if !ok {
			return rdberrors.ErrSindexUnknown
		}
		if def.Ready {
			continue
		}
		targets[def.ID] = true
	}
	if len(targets) == 0 {
		return nil
	}

	snap := s.db.NewSnapshot()
	defer snap.Close()
	lower, upper := s.primary.Bounds()
	iter, err := snap.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer iter.Close()

	chunk := make([]datum.StoreKey, 0, s.opts.PostConstructChunk)
	valid := iter.First()
	for valid {
		chunk = chunk[:0]
		for ; valid && len(chunk) < s.opts.PostConstructChunk; valid = iter.Next() {
			chunk = append(chunk, s.primary.StripPrefix(iter.Key()))
		}
		if err := iter.Error(); err != nil {
			return err
		}
		if err := s.postConstructChunk(ctx, chunk, targets); err != nil {
			return err
		}
		if len(s.stillUnderConstruction(targets)) == 0 {
			break
		}
		// One chunk per scheduling slot keeps the walk from starving
		// live writers.
		runtime.Gosched()
	}

	for _, name := range names {
		if err := s.MarkSindexReady(ctx, name); err != nil && err != rdberrors.ErrSindexUnknown {
			return err
		}
	}
	return nil
}

// postConstructChunk indexes one chunk of keys under the write lock. Each
// key's current committed value is re-read before indexing: the snapshot
// that listed the key may be arbitrarily stale by now, and writing its
// value would resurrect entries the sync pipeline already replaced. Keys
// deleted since the snapshot are skipped the same way.
func (s *Store) postConstructChunk(ctx context.Context, keys []datum.StoreKey, targets map[uuid.UUID]bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	txn := s.NewTxn()
	accesses, err := s.acquireSindexAccesses(txn, s.stillUnderConstruction(targets))
	if err != nil {
		_ = txn.Abort()
		return err
	}
	if len(accesses) == 0 {
		return txn.Abort()
	}
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			_ = txn.Abort()
			return err
		}
		value, exists, err := txn.Get(s.primary.Key(key))
		if err != nil {
			_ = txn.Abort()
			return err
		}
		if !exists {
			continue
		}
		doc, err := s.decodeStored(txn.View(), value)
		if err != nil {
			_ = txn.Abort()
			return err
		}
		report := NewModReport(key)
		report.Info.Added = ModPair{Doc: doc, Bytes: value}
		if err := s.updateSindexes(ctx, txn, accesses, report); err != nil {
			_ = txn.Abort()
			return err
		}
	}
	if err := txn.Commit(s.wo); err != nil {
		return err
	}
	postConstructChunks.Inc()
	return nil
}

// stillUnderConstruction narrows targets to the indexes that still exist
// and are still not ready.
func (s *Store) stillUnderConstruction(targets map[uuid.UUID]bool) map[uuid.UUID]bool {
	out := map[uuid.UUID]bool{}
	s.sindexes.Range(func(_ string, def *SindexDef) bool {
		if targets[def.ID] && !def.Ready {
			out[def.ID] = true
		}
		return true
	})
	return out
}
