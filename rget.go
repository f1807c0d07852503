package rethinkdb

import (
	"context"

	"github.com/cockroachdb/pebble"

	"github.com/mukteshkrmishra/rethinkdb/blob"
	"github.com/mukteshkrmishra/rethinkdb/cursor"
	"github.com/mukteshkrmishra/rethinkdb/datum"
	"github.com/mukteshkrmishra/rethinkdb/ql"
	"github.com/mukteshkrmishra/rethinkdb/rdberrors"
)

// RGetItem is one stream row: the store key it came from, the secondary
// value that matched (sindex scans only), and the document after
// transforms.
type RGetItem struct {
	Key         datum.StoreKey
	SindexValue *datum.Datum
	Doc         *datum.Datum
}

// ScanOutcome is what a finished scan produced: a row stream, a terminal
// aggregate, or a row-scoped evaluation error. Exactly one applies.
type ScanOutcome interface {
	isScanOutcome()
}

type StreamOutcome struct {
	Items []RGetItem
}

type AggregateOutcome struct {
	Value *datum.Datum
}

type ErrorOutcome struct {
	Err error
}

func (StreamOutcome) isScanOutcome()    {}
func (AggregateOutcome) isScanOutcome() {}
func (ErrorOutcome) isScanOutcome()     {}

// SindexScanSpec turns a scan into a secondary-index scan. ValueRange
// filters on the index value; PrimaryRange drops entries whose owning
// document lives outside the caller's key slice, which de-duplicates
// overlapping shards.
type SindexScanSpec struct {
	Name            string
	ValueRange      datum.Range
	PrimaryRange    datum.KeyRange
	UsePrimaryRange bool
}

// ScanRequest describes one range scan.
type ScanRequest struct {
	Range      datum.KeyRange
	Direction  cursor.Direction
	Batch      ql.BatchSpec
	Transforms []ql.Transform
	Terminal   ql.Terminal
	Sindex     *SindexScanSpec
}

// ScanResponse carries the outcome plus resumption state:
// LastConsideredKey is the farthest key the scan looked at in scan
// direction, and Truncated reports whether entries beyond the batch
// budget remain.
type ScanResponse struct {
	Outcome           ScanOutcome
	LastConsideredKey datum.StoreKey
	Truncated         bool
}

// rgetCB is the traversal handler of one scan. Fields below the waiter
// line mutate only inside the in-order section, so they need no lock.
type rgetCB struct {
	store  *Store
	reader pebble.Reader
	req    *ScanRequest

	sindexFn *ql.Func
	multi    bool

	batcher *ql.Batcher

	items         []RGetItem
	lastKey       datum.StoreKey
	sawLast       bool
	evalErr       error
	done          bool
	budgetReached bool
}

// fail records a row-scoped failure as the scan outcome and stops the
// traversal; cancellation and storage errors abort it instead. The caller
// must hold the turn: outcome fields mutate only in index order.
func (cb *rgetCB) fail(err error) (bool, error) {
	if ql.IsEvalError(err) || err == rdberrors.ErrBlobMissing ||
		err == rdberrors.ErrBlobChecksum || err == rdberrors.ErrBadValue {
		if cb.evalErr == nil {
			cb.evalErr = err
		}
		cb.done = true
		return false, nil
	}
	return false, err
}

// failInTurn takes the turn before recording a preparation failure, so a
// decode error on a later entry never clobbers the ordered outcome of an
// earlier one.
func (cb *rgetCB) failInTurn(ctx context.Context, w cursor.Waiter, err error) (bool, error) {
	if werr := w.Wait(ctx); werr != nil {
		return false, werr
	}
	if cb.done {
		return false, nil
	}
	return cb.fail(err)
}

func (cb *rgetCB) noteConsidered(key datum.StoreKey) {
	if !cb.sawLast {
		cb.lastKey = key.Clone()
		cb.sawLast = true
		return
	}
	c := key.Compare(cb.lastKey)
	if (cb.req.Direction == cursor.Forward && c > 0) ||
		(cb.req.Direction == cursor.Backward && c < 0) {
		cb.lastKey = key.Clone()
	}
}

func (cb *rgetCB) HandlePair(ctx context.Context, kv cursor.KeyValue, w cursor.Waiter) (bool, error) {
	// Oversharded sindex scans: drop entries whose document belongs to
	// another shard of the same request.
	if cb.req.Sindex != nil && cb.req.Sindex.UsePrimaryRange {
		pk, err := datum.ExtractPrimary(kv.Key)
		if err != nil {
			return cb.failInTurn(ctx, w, err)
		}
		if !cb.req.Sindex.PrimaryRange.Contains(pk) {
			return true, nil
		}
	}

	// Decode before taking the turn, concurrently across entries, but
	// only when some stage actually reads the document. A pure count
	// scan touches neither the document nor the blob keyspace.
	lazy := blob.NewLazy(cb.store.Blobs(), cb.reader, kv.Value)
	needsValue := cb.req.Sindex != nil || len(cb.req.Transforms) > 0 ||
		cb.req.Terminal == nil || cb.req.Terminal.UsesValue()
	var doc *datum.Datum
	if needsValue {
		var err error
		if doc, err = lazy.Get(); err != nil {
			return cb.failInTurn(ctx, w, err)
		}
	}

	if err := w.Wait(ctx); err != nil {
		return false, err
	}

	// In-order section.
	if cb.done {
		return false, nil
	}
	cb.noteConsidered(kv.Key)

	var sindexVal *datum.Datum
	if cb.req.Sindex != nil {
		v, err := cb.sindexFn.Call(ctx, doc)
		if err != nil {
			return cb.fail(err)
		}
		if cb.multi && v.Kind() == datum.KindArray {
			tag, hasTag, err := datum.ExtractTag(kv.Key)
			if err != nil {
				return cb.fail(err)
			}
			if !hasTag || int(tag) >= v.Len() {
				return cb.fail(rdberrors.ErrBadValue)
			}
			v = v.Index(int(tag))
		}
		if !cb.req.Sindex.ValueRange.Contains(v) {
			return true, nil
		}
		sindexVal = v
	}

	data := []*datum.Datum{doc}
	for _, tr := range cb.req.Transforms {
		var out []*datum.Datum
		for _, d := range data {
			more, err := tr.Apply(ctx, d)
			if err != nil {
				return cb.fail(err)
			}
			out = append(out, more...)
		}
		data = out
	}

	if cb.req.Terminal != nil {
		for _, d := range data {
			if err := cb.req.Terminal.Apply(ctx, d); err != nil {
				return cb.fail(err)
			}
		}
		return true, nil
	}

	for _, d := range data {
		cb.items = append(cb.items, RGetItem{Key: kv.Key, SindexValue: sindexVal, Doc: d})
		cb.batcher.NoteEl(d)
	}
	if cb.batcher.ShouldSendBatch() {
		cb.done = true
		cb.budgetReached = true
		return false, nil
	}
	return true, nil
}

// RangeScan runs one scan over a consistent snapshot. Stream scans stop
// at the batch budget; Truncated reports whether unvisited entries remain
// past LastConsideredKey, so a follow-up request starting just beyond it
// resumes the scan.
func (s *Store) RangeScan(ctx context.Context, req *ScanRequest) (*ScanResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := s.db.NewSnapshot()
	defer snap.Close()

	tree := s.primary
	cb := &rgetCB{
		store:   s,
		reader:  snap,
		req:     req,
		batcher: req.Batch.ToBatcher(),
	}
	if req.Sindex != nil {
		def, ok := s.sindexes.Load(req.Sindex.Name)
		if !ok {
			return nil, rdberrors.ErrSindexUnknown
		}
		if !def.Ready {
			return nil, rdberrors.ErrSindexNotReady
		}
		fn, err := s.compileFunc(def.Func)
		if err != nil {
			return nil, err
		}
		tree = s.sindexTree(def)
		cb.sindexFn = fn
		cb.multi = def.Multi
	}

	err := cursor.Traverse(ctx, snap, tree, req.Range, req.Direction, s.opts.ScanConcurrency, cb)
	if err != nil {
		return nil, err
	}

	resp := &ScanResponse{LastConsideredKey: cb.lastKey}
	switch {
	case cb.evalErr != nil:
		resp.Outcome = ErrorOutcome{Err: cb.evalErr}
	case req.Terminal != nil:
		resp.Outcome = AggregateOutcome{Value: req.Terminal.Finalize()}
	default:
		resp.Outcome = StreamOutcome{Items: cb.items}
		if cb.budgetReached {
			more, err := s.entriesBeyond(snap, tree, req, cb.lastKey)
			if err != nil {
				return nil, err
			}
			resp.Truncated = more
		}
	}
	scansTotal.Inc()
	return resp, nil
}

// entriesBeyond probes whether the scanned range still holds keys past
// last in scan direction.
func (s *Store) entriesBeyond(reader pebble.Reader, tree *cursor.Tree,
	req *ScanRequest, last datum.StoreKey) (bool, error) {
	lower, upper := tree.Bounds()
	if len(req.Range.Left) > 0 {
		lower = tree.Key(req.Range.Left)
	}
	if !req.Range.RightUnbounded {
		upper = tree.Key(req.Range.Right)
	}
	if req.Direction == cursor.Forward {
		lower = append(tree.Key(last), 0x00)
	} else {
		upper = tree.Key(last)
	}
	iter, err := reader.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return false, err
	}
	defer iter.Close()
	var more bool
	if req.Direction == cursor.Forward {
		more = iter.First()
	} else {
		more = iter.Last()
	}
	return more, iter.Error()
}
