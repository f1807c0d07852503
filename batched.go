package rethinkdb

import (
	"context"
	"sync"

	"github.com/mukteshkrmishra/rethinkdb/cursor"
	"github.com/mukteshkrmishra/rethinkdb/datum"
	"github.com/mukteshkrmishra/rethinkdb/utils"
)

// BatchedReplacer computes the replacement for each key of a batch.
type BatchedReplacer interface {
	Replace(old *datum.Datum, index int) (*datum.Datum, error)
	ReturnVals() bool
}

type indexedReplacer struct {
	r     BatchedReplacer
	index int
}

func (ir indexedReplacer) Replace(old *datum.Datum) (*datum.Datum, error) {
	return ir.r.Replace(old, ir.index)
}

// replaceStats accumulates per-key summaries into the batch summary:
// numeric outcome fields sum, first_error keeps the earliest (in key
// order) failure message.
type replaceStats struct {
	mu         sync.Mutex
	counts     map[string]float64
	firstError string
	hasError   bool
}

func newReplaceStats() *replaceStats {
	return &replaceStats{counts: map[string]float64{}}
}

// note merges one key's summary. Calls arrive in key order, gated by the
// caller's ticket.
func (st *replaceStats) note(res *datum.Datum) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, name := range res.FieldNames() {
		v, _ := res.Field(name)
		switch {
		case v.Kind() == datum.KindNumber:
			st.counts[name] += v.Number()
		case name == "first_error" && !st.hasError:
			st.firstError = v.Str()
			st.hasError = true
		}
	}
}

func (st *replaceStats) summary() *datum.Datum {
	st.mu.Lock()
	defer st.mu.Unlock()
	fields := map[string]*datum.Datum{}
	for name, n := range st.counts {
		fields[name] = datum.Number(n)
	}
	if st.hasError {
		fields["first_error"] = datum.String(st.firstError)
	}
	return datum.Object(fields)
}

// BatchedReplace runs one replace per key over the transaction sb owns.
// Key i+1's acquisition overlaps key i's mutation through the superblock
// hand-off chain, while tickets keep report delivery in key order. The
// returned summary sums the per-key outcome counts.
func (s *Store) BatchedReplace(ctx context.Context, sb *cursor.Superblock,
	keys []datum.StoreKey, replacer BatchedReplacer, cb *ModReportCB) (*datum.Datum, error) {

	var (
		src     utils.FifoSource
		sink    = utils.NewFifoSink()
		drainer utils.Drainer
		stats   = newReplaceStats()
		mu      sync.Mutex
		firstEr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstEr == nil {
			firstEr = err
		}
		mu.Unlock()
	}

	current := sb
	for i, key := range keys {
		i, key := i, key
		token := src.Enter()
		mine := current
		next := utils.NewPromise[*cursor.Superblock]()
		drainer.Go(func() {
			defer func() {
				// The ticket chain must advance even for failed keys.
				_ = sink.Wait(ctx, token)
				sink.Exit(token)
			}()
			report := NewModReport(key)
			res, err := s.ReplaceAndReturnSuperblock(ctx, mine, key,
				indexedReplacer{r: replacer, index: i}, replacer.ReturnVals(),
				&report.Info, next)
			if err != nil {
				fail(err)
				return
			}
			stats.note(res)
			if err := sink.Wait(ctx, token); err != nil {
				fail(err)
				return
			}
			if report.Info.HasDeleted() || report.Info.HasAdded() {
				if err := cb.OnModReport(ctx, report); err != nil {
					fail(err)
				}
			}
		})
		var err error
		if current, err = next.Wait(ctx); err != nil {
			drainer.Drain()
			return nil, err
		}
	}
	drainer.Drain()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if firstEr != nil {
		return nil, firstEr
	}
	batchedReplaces.Inc()
	return stats.summary(), nil
}
