package rethinkdb

import (
	"context"

	"github.com/mukteshkrmishra/rethinkdb/datum"
)

// withWriteTxn runs body inside a fresh transaction with the sync
// pipeline attached, committing on success. The write lock covers the
// whole transaction: reads, index updates and the commit form one
// critical section, so log order equals commit order and the
// post-construction walk never observes a half-applied write.
func (s *Store) withWriteTxn(ctx context.Context, body func(cb *ModReportCB) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	txn := s.NewTxn()
	cb, err := s.NewModReportCB(txn)
	if err != nil {
		_ = txn.Abort()
		return err
	}
	if err := body(cb); err != nil {
		_ = txn.Abort()
		return err
	}
	return txn.Commit(s.wo)
}

// Insert stores doc under the primary key taken from its key field.
func (s *Store) Insert(ctx context.Context, doc *datum.Datum, overwrite bool) (PointWriteResult, error) {
	key, err := s.PrimaryKeyOf(doc)
	if err != nil {
		return 0, err
	}
	return s.SetDoc(ctx, key, doc, overwrite)
}

// SetDoc stores doc under key and syncs every ready index.
func (s *Store) SetDoc(ctx context.Context, key datum.StoreKey, doc *datum.Datum, overwrite bool) (PointWriteResult, error) {
	var res PointWriteResult
	err := s.withWriteTxn(ctx, func(cb *ModReportCB) error {
		report := NewModReport(key)
		var err error
		res, err = s.Set(ctx, s.PrimarySuperblock(cb.txn), key, doc, overwrite, &report.Info)
		if err != nil {
			return err
		}
		if report.Info.HasDeleted() || report.Info.HasAdded() {
			return cb.OnModReport(ctx, report)
		}
		return nil
	})
	return res, err
}

// DeleteDoc removes the document under key and syncs every ready index.
func (s *Store) DeleteDoc(ctx context.Context, key datum.StoreKey) (PointDeleteResult, error) {
	var res PointDeleteResult
	err := s.withWriteTxn(ctx, func(cb *ModReportCB) error {
		report := NewModReport(key)
		var err error
		res, err = s.Delete(ctx, s.PrimarySuperblock(cb.txn), key, &report.Info)
		if err != nil {
			return err
		}
		if report.Info.HasDeleted() {
			return cb.OnModReport(ctx, report)
		}
		return nil
	})
	return res, err
}

// Replace runs one replace under its own transaction and returns the
// outcome summary.
func (s *Store) Replace(ctx context.Context, key datum.StoreKey, replacer PointReplacer, returnVals bool) (*datum.Datum, error) {
	var summary *datum.Datum
	err := s.withWriteTxn(ctx, func(cb *ModReportCB) error {
		report := NewModReport(key)
		var err error
		summary, err = s.ReplaceAndReturnSuperblock(ctx, s.PrimarySuperblock(cb.txn),
			key, replacer, returnVals, &report.Info, nil)
		if err != nil {
			return err
		}
		if report.Info.HasDeleted() || report.Info.HasAdded() {
			return cb.OnModReport(ctx, report)
		}
		return nil
	})
	return summary, err
}

// BatchedReplaceKeys runs one replace per key under a single transaction
// and returns the summed summary.
func (s *Store) BatchedReplaceKeys(ctx context.Context, keys []datum.StoreKey, replacer BatchedReplacer) (*datum.Datum, error) {
	var summary *datum.Datum
	err := s.withWriteTxn(ctx, func(cb *ModReportCB) error {
		var err error
		summary, err = s.BatchedReplace(ctx, s.PrimarySuperblock(cb.txn), keys, replacer, cb)
		return err
	})
	return summary, err
}

// EraseKeyRange removes every document inside rng, index entries first.
func (s *Store) EraseKeyRange(ctx context.Context, rng datum.KeyRange) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	txn := s.NewTxn()
	if err := s.EraseRange(ctx, txn, rng); err != nil {
		_ = txn.Abort()
		return err
	}
	return txn.Commit(s.wo)
}
