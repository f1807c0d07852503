package rethinkdb

import (
	"context"
	"sync"

	"github.com/mukteshkrmishra/rethinkdb/cursor"
	"github.com/mukteshkrmishra/rethinkdb/datum"
	"github.com/mukteshkrmishra/rethinkdb/ql"
	"github.com/mukteshkrmishra/rethinkdb/utils"
)

// ModReportCB receives modification reports from mutation engines and
// drives them through the sync pipeline: change log first, then every
// acquired index, then blob cleanup.
type ModReportCB struct {
	store    *Store
	txn      *cursor.Txn
	accesses []*SindexAccess
}

// NewModReportCB acquires every defined index for the transaction,
// under-construction ones included: a mutation landing while an index is
// being built must reach that index too, or the build walk would miss it
// for good. The compile of each index function happens here, once per
// sync operation.
func (s *Store) NewModReportCB(txn *cursor.Txn) (*ModReportCB, error) {
	accesses, err := s.acquireSindexAccesses(txn, nil)
	if err != nil {
		return nil, err
	}
	return &ModReportCB{store: s, txn: txn, accesses: accesses}, nil
}

// OnModReport runs the sync pipeline for one report. The caller holds the
// store's write lock for the whole transaction, so the change-log push
// and the index updates land in commit order.
func (cb *ModReportCB) OnModReport(ctx context.Context, report *ModReport) error {
	s := cb.store
	s.changes.PushModReport(report)
	return s.updateSindexes(ctx, cb.txn, cb.accesses, report)
}

// updateSindexes applies one report to every access concurrently, joins,
// and only then frees the pre-image's spilled payload. An index update
// must never read a blob its own report deleted, so the free strictly
// follows the join.
func (s *Store) updateSindexes(ctx context.Context, txn *cursor.Txn,
	accesses []*SindexAccess, report *ModReport) error {
	if len(report.PrimaryKey) == 0 {
		panic("sync pipeline: report without a primary key")
	}
	report.Info.check()

	var (
		drainer utils.Drainer
		mu      sync.Mutex
		firstEr error
	)
	for _, a := range accesses {
		a := a
		drainer.Go(func() {
			if err := s.updateSingleSindex(ctx, a, report); err != nil {
				mu.Lock()
				if firstEr == nil {
					firstEr = err
				}
				mu.Unlock()
			}
		})
	}
	drainer.Drain()
	if firstEr != nil {
		return firstEr
	}

	if report.Info.HasDeleted() {
		if err := s.blobs.Clear(txn, report.Info.Deleted.Bytes); err != nil {
			return err
		}
	}
	sindexUpdates.Add(float64(len(accesses)))
	return nil
}

// updateSingleSindex applies one report to one index, deletions first,
// chaining its own superblock hand-offs so each key acquisition can
// overlap the previous mutation. An index-function failure on a document
// means the document was never indexed here; under DropRow that row is
// skipped, under PropagateIndexError the sync fails.
func (s *Store) updateSingleSindex(ctx context.Context, a *SindexAccess, report *ModReport) error {
	sb := a.Superblock()

	remove := func(loc *cursor.KVLocation) error {
		if _, exists := loc.CurrentValue(); exists {
			return loc.Remove()
		}
		return nil
	}
	// Index entries hold the same stored-value bytes as the primary
	// entry: spilled payloads are shared, not copied.
	write := func(loc *cursor.KVLocation) error {
		return loc.Replace(report.Info.Added.Bytes)
	}

	forEachKey := func(keys []datum.StoreKey, mutate func(*cursor.KVLocation) error) error {
		for _, k := range keys {
			next := utils.NewPromise[*cursor.Superblock]()
			loc, err := cursor.AcquireForWrite(sb, k, next)
			if err != nil {
				return err
			}
			if err := mutate(loc); err != nil {
				return err
			}
			if sb, err = next.Wait(ctx); err != nil {
				return err
			}
		}
		return nil
	}

	if report.Info.HasDeleted() {
		keys, err := ql.ComputeKeys(ctx, report.PrimaryKey, report.Info.Deleted.Doc, a.Fn, a.Def.Multi)
		switch {
		case err == nil:
			if err := forEachKey(keys, remove); err != nil {
				return err
			}
		case ql.IsEvalError(err):
			if s.opts.IndexErrorPolicy == PropagateIndexError {
				return err
			}
			sindexDroppedRows.WithLabelValues(a.Def.Name, "delete").Inc()
			s.log.DebugCtx(ctx, "sindex skipped unindexable pre-image",
				"sindex", a.Def.Name, "err", err)
		default:
			return err
		}
	}

	if report.Info.HasAdded() {
		keys, err := ql.ComputeKeys(ctx, report.PrimaryKey, report.Info.Added.Doc, a.Fn, a.Def.Multi)
		switch {
		case err == nil:
			if err := forEachKey(keys, write); err != nil {
				return err
			}
		case ql.IsEvalError(err):
			if s.opts.IndexErrorPolicy == PropagateIndexError {
				return err
			}
			sindexDroppedRows.WithLabelValues(a.Def.Name, "add").Inc()
			s.log.DebugCtx(ctx, "sindex dropped unindexable row",
				"sindex", a.Def.Name, "err", err)
		default:
			return err
		}
	}
	return nil
}
