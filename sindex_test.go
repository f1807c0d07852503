package rethinkdb_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mukteshkrmishra/rethinkdb"
	"github.com/mukteshkrmishra/rethinkdb/datum"
	"github.com/mukteshkrmishra/rethinkdb/ql"
	"github.com/mukteshkrmishra/rethinkdb/rdberrors"
	testutils "github.com/mukteshkrmishra/rethinkdb/test_utils"
)

func sindexScan(t *testing.T, store *rethinkdb.Store, name string) []rethinkdb.RGetItem {
	t.Helper()
	resp, err := store.RangeScan(context.Background(), &rethinkdb.ScanRequest{
		Range:  datum.UnboundedRange(),
		Sindex: &rethinkdb.SindexScanSpec{Name: name},
	})
	assert.NoError(t, err)
	stream, ok := resp.Outcome.(rethinkdb.StreamOutcome)
	assert.True(t, ok, "expected a stream outcome, got %T", resp.Outcome)
	return stream.Items
}

func TestSindexLifecycle(t *testing.T) {
	store := testutils.OpenScratchStore(t, rethinkdb.Options{})
	ctx := context.Background()

	// Pre-existing documents, indexed by post-construction.
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("d%d", i)
		_, err := store.Insert(ctx, testutils.Doc("id", id, "color", "red"), true)
		assert.NoError(t, err)
	}

	def, err := store.CreateSindex(ctx, "by_color", ql.FieldFunc("color"), false)
	assert.NoError(t, err)
	assert.False(t, def.Ready)

	// Scanning a not-ready index fails.
	_, err = store.RangeScan(ctx, &rethinkdb.ScanRequest{
		Range:  datum.UnboundedRange(),
		Sindex: &rethinkdb.SindexScanSpec{Name: "by_color"},
	})
	assert.ErrorIs(t, err, rdberrors.ErrSindexNotReady)

	assert.NoError(t, store.PostConstructSindexes(ctx, "by_color"))
	def, ok := store.Sindex("by_color")
	assert.True(t, ok)
	assert.True(t, def.Ready)

	assert.Len(t, sindexScan(t, store, "by_color"), 5)

	// Live writes keep the index in sync.
	_, err = store.Insert(ctx, testutils.Doc("id", "d5", "color", "blue"), true)
	assert.NoError(t, err)
	assert.Len(t, sindexScan(t, store, "by_color"), 6)

	// Replacing the indexed value moves the entry, never duplicates it.
	_, err = store.Insert(ctx, testutils.Doc("id", "d0", "color", "green"), true)
	assert.NoError(t, err)
	items := sindexScan(t, store, "by_color")
	assert.Len(t, items, 6)

	// Deleting the document removes its entry.
	_, err = store.DeleteDoc(ctx, testutils.Key(t, "d3"))
	assert.NoError(t, err)
	assert.Len(t, sindexScan(t, store, "by_color"), 5)

	assert.NoError(t, store.DropSindex(ctx, "by_color"))
	_, err = store.RangeScan(ctx, &rethinkdb.ScanRequest{
		Range:  datum.UnboundedRange(),
		Sindex: &rethinkdb.SindexScanSpec{Name: "by_color"},
	})
	assert.ErrorIs(t, err, rdberrors.ErrSindexUnknown)
}

func TestSindexValueOrder(t *testing.T) {
	store := testutils.OpenScratchStore(t, rethinkdb.Options{})
	ctx := context.Background()

	_, err := store.CreateSindex(ctx, "by_rank", ql.FieldFunc("rank"), false)
	assert.NoError(t, err)
	assert.NoError(t, store.PostConstructSindexes(ctx, "by_rank"))

	ranks := []float64{30, 10, 20}
	for i, r := range ranks {
		_, err := store.Insert(ctx, testutils.Doc("id", fmt.Sprintf("r%d", i), "rank", r), true)
		assert.NoError(t, err)
	}

	items := sindexScan(t, store, "by_rank")
	assert.Len(t, items, 3)
	var got []float64
	for _, it := range items {
		got = append(got, it.SindexValue.Number())
	}
	assert.Equal(t, []float64{10, 20, 30}, got)
}

func TestSindexValueRangeFilter(t *testing.T) {
	store := testutils.OpenScratchStore(t, rethinkdb.Options{})
	ctx := context.Background()

	_, err := store.CreateSindex(ctx, "by_rank", ql.FieldFunc("rank"), false)
	assert.NoError(t, err)
	assert.NoError(t, store.PostConstructSindexes(ctx, "by_rank"))
	for i := 0; i < 10; i++ {
		_, err := store.Insert(ctx, testutils.Doc("id", fmt.Sprintf("r%d", i), "rank", float64(i)), true)
		assert.NoError(t, err)
	}

	resp, err := store.RangeScan(ctx, &rethinkdb.ScanRequest{
		Range: datum.UnboundedRange(),
		Sindex: &rethinkdb.SindexScanSpec{
			Name: "by_rank",
			ValueRange: datum.Range{
				Left: datum.Number(3), LeftClosed: true,
				Right: datum.Number(6), RightClosed: false,
			},
		},
	})
	assert.NoError(t, err)
	stream := resp.Outcome.(rethinkdb.StreamOutcome)
	assert.Len(t, stream.Items, 3)
	for _, it := range stream.Items {
		assert.GreaterOrEqual(t, it.SindexValue.Number(), 3.0)
		assert.Less(t, it.SindexValue.Number(), 6.0)
	}
}

func TestMultiIndexFansOut(t *testing.T) {
	store := testutils.OpenScratchStore(t, rethinkdb.Options{})
	ctx := context.Background()

	_, err := store.CreateSindex(ctx, "by_tag", ql.FieldFunc("tags"), true)
	assert.NoError(t, err)
	assert.NoError(t, store.PostConstructSindexes(ctx, "by_tag"))

	_, err = store.Insert(ctx, testutils.Doc("id", "m1",
		"tags", datum.Array(datum.String("a"), datum.String("b"), datum.String("a"))), true)
	assert.NoError(t, err)

	// Three array elements, three entries, duplicates included.
	items := sindexScan(t, store, "by_tag")
	assert.Len(t, items, 3)
	var vals []string
	for _, it := range items {
		vals = append(vals, it.SindexValue.Str())
	}
	assert.Equal(t, []string{"a", "a", "b"}, vals)

	// Shrinking the array removes the orphaned entries.
	_, err = store.Insert(ctx, testutils.Doc("id", "m1",
		"tags", datum.Array(datum.String("b"))), true)
	assert.NoError(t, err)
	items = sindexScan(t, store, "by_tag")
	assert.Len(t, items, 1)
	assert.Equal(t, "b", items[0].SindexValue.Str())
}

func TestIndexErrorPolicyDropRow(t *testing.T) {
	store := testutils.OpenScratchStore(t, rethinkdb.Options{})
	ctx := context.Background()

	_, err := store.CreateSindex(ctx, "by_color", ql.FieldFunc("color"), false)
	assert.NoError(t, err)
	assert.NoError(t, store.PostConstructSindexes(ctx, "by_color"))

	// A document without the indexed field stores fine; it just has no
	// index entry.
	_, err = store.Insert(ctx, testutils.Doc("id", "noField"), true)
	assert.NoError(t, err)
	_, err = store.Insert(ctx, testutils.Doc("id", "withField", "color", "red"), true)
	assert.NoError(t, err)

	assert.Len(t, sindexScan(t, store, "by_color"), 1)
	got, err := store.Get(ctx, testutils.Key(t, "noField"))
	assert.NoError(t, err)
	assert.False(t, got.IsNull())
}

func TestIndexErrorPolicyPropagate(t *testing.T) {
	store := testutils.OpenScratchStore(t, rethinkdb.Options{
		IndexErrorPolicy: rethinkdb.PropagateIndexError,
	})
	ctx := context.Background()

	_, err := store.CreateSindex(ctx, "by_color", ql.FieldFunc("color"), false)
	assert.NoError(t, err)
	assert.NoError(t, store.PostConstructSindexes(ctx, "by_color"))

	_, err = store.Insert(ctx, testutils.Doc("id", "noField"), true)
	assert.True(t, ql.IsEvalError(err))

	// The failed transaction left nothing behind.
	got, gerr := store.Get(ctx, testutils.Key(t, "noField"))
	assert.NoError(t, gerr)
	assert.True(t, got.IsNull())
}

func TestSindexSharesBlobUntilRewrite(t *testing.T) {
	store := testutils.OpenScratchStore(t, rethinkdb.Options{})
	ctx := context.Background()

	_, err := store.CreateSindex(ctx, "by_color", ql.FieldFunc("color"), false)
	assert.NoError(t, err)
	assert.NoError(t, store.PostConstructSindexes(ctx, "by_color"))

	big := testutils.Doc("id", "big", "color", "red",
		"body", datum.String(string(make([]byte, 4096))))
	_, err = store.Insert(ctx, big, true)
	assert.NoError(t, err)

	// One spilled payload, referenced by primary and index entry alike.
	assert.Equal(t, 1, countBlobKeys(t, store))

	// The index scan resolves the shared payload.
	items := sindexScan(t, store, "by_color")
	assert.Len(t, items, 1)
	assert.True(t, big.Equal(items[0].Doc))

	// Deleting the document clears both entries and the payload.
	_, err = store.DeleteDoc(ctx, testutils.Key(t, "big"))
	assert.NoError(t, err)
	assert.Len(t, sindexScan(t, store, "by_color"), 0)
	assert.Zero(t, countBlobKeys(t, store))
}

func TestCreateSindexDuplicate(t *testing.T) {
	store := testutils.OpenScratchStore(t, rethinkdb.Options{})
	ctx := context.Background()
	_, err := store.CreateSindex(ctx, "dup", ql.FieldFunc("x"), false)
	assert.NoError(t, err)
	_, err = store.CreateSindex(ctx, "dup", ql.FieldFunc("y"), false)
	assert.ErrorIs(t, err, rdberrors.ErrAlreadyExists)
}

func TestSindexDefsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := rethinkdb.Open(dir, rethinkdb.Options{})
	assert.NoError(t, err)
	ctx := context.Background()

	_, err = store.CreateSindex(ctx, "by_color", ql.FieldFunc("color"), false)
	assert.NoError(t, err)
	assert.NoError(t, store.PostConstructSindexes(ctx, "by_color"))
	_, err = store.Insert(ctx, testutils.Doc("id", "p1", "color", "red"), true)
	assert.NoError(t, err)
	assert.NoError(t, store.Close())

	store, err = rethinkdb.Open(dir, rethinkdb.Options{})
	assert.NoError(t, err)
	defer store.Close()

	def, ok := store.Sindex("by_color")
	assert.True(t, ok)
	assert.True(t, def.Ready)
	assert.Len(t, sindexScan(t, store, "by_color"), 1)
}

func TestSindexBuildKeepsPaceWithWrites(t *testing.T) {
	store := testutils.OpenScratchStore(t, rethinkdb.Options{PostConstructChunk: 4})
	ctx := context.Background()

	const seeded = 300
	for i := 0; i < seeded; i++ {
		_, err := store.Insert(ctx, testutils.Doc("id", fmt.Sprintf("seed%04d", i), "v", i), true)
		assert.NoError(t, err)
	}
	_, err := store.CreateSindex(ctx, "by_v", ql.FieldFunc("v"), false)
	assert.NoError(t, err)

	built := make(chan error, 1)
	go func() {
		built <- store.PostConstructSindexes(ctx, "by_v")
	}()

	// Writes landing while the walk runs must end up indexed too.
	const during = 100
	for i := 0; i < during; i++ {
		_, err := store.Insert(ctx, testutils.Doc("id", fmt.Sprintf("live%04d", i), "v", seeded+i), true)
		assert.NoError(t, err)
	}
	assert.NoError(t, <-built)

	items := sindexScan(t, store, "by_v")
	assert.Len(t, items, seeded+during)
}

func TestSindexBuildDoesNotResurrectReplacedRows(t *testing.T) {
	store := testutils.OpenScratchStore(t, rethinkdb.Options{PostConstructChunk: 2})
	ctx := context.Background()

	const n = 200
	for i := 0; i < n; i++ {
		_, err := store.Insert(ctx, testutils.Doc("id", fmt.Sprintf("d%04d", i), "v", "old"), true)
		assert.NoError(t, err)
	}
	_, err := store.CreateSindex(ctx, "by_v", ql.FieldFunc("v"), false)
	assert.NoError(t, err)

	built := make(chan error, 1)
	go func() {
		built <- store.PostConstructSindexes(ctx, "by_v")
	}()
	// Rewrite every document while the walk runs; a stale snapshot value
	// written over the live update would leave an "old" entry behind.
	for i := 0; i < n; i++ {
		key := testutils.Key(t, fmt.Sprintf("d%04d", i))
		_, err := store.SetDoc(ctx, key, testutils.Doc("id", fmt.Sprintf("d%04d", i), "v", "new"), true)
		assert.NoError(t, err)
	}
	assert.NoError(t, <-built)

	items := sindexScan(t, store, "by_v")
	assert.Len(t, items, n)
	for _, it := range items {
		assert.Equal(t, "new", it.SindexValue.Str())
	}
}

func TestSindexUnderConstructionFedByDeletes(t *testing.T) {
	store := testutils.OpenScratchStore(t, rethinkdb.Options{})
	ctx := context.Background()

	_, err := store.CreateSindex(ctx, "by_v", ql.FieldFunc("v"), false)
	assert.NoError(t, err)

	// Mutations before the build walk feed the index directly.
	_, err = store.Insert(ctx, testutils.Doc("id", "a", "v", 1), true)
	assert.NoError(t, err)
	_, err = store.Insert(ctx, testutils.Doc("id", "b", "v", 2), true)
	assert.NoError(t, err)
	_, err = store.DeleteDoc(ctx, testutils.Key(t, "a"))
	assert.NoError(t, err)

	assert.NoError(t, store.PostConstructSindexes(ctx, "by_v"))
	items := sindexScan(t, store, "by_v")
	assert.Len(t, items, 1)
	assert.Equal(t, 2.0, items[0].SindexValue.Number())
}
