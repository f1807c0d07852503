package cursor

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/stretchr/testify/assert"

	"github.com/mukteshkrmishra/rethinkdb/datum"
	"github.com/mukteshkrmishra/rethinkdb/utils"
)

func openTree(t *testing.T) *Tree {
	t.Helper()
	db, err := pebble.Open(t.TempDir(), &pebble.Options{})
	assert.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewTree(db, []byte{'T'}, pebble.Sync)
}

func put(t *testing.T, tree *Tree, keys ...string) {
	t.Helper()
	for _, k := range keys {
		assert.NoError(t, tree.DB().Set(tree.Key(datum.StoreKey(k)), []byte("v:"+k), pebble.Sync))
	}
}

func TestTxnReadsOwnWrites(t *testing.T) {
	tree := openTree(t)
	txn := NewTxn(tree.DB())

	key := tree.Key(datum.StoreKey("a"))
	assert.NoError(t, txn.Set(key, []byte("one"), pebble.Sync))
	v, ok, err := txn.Get(key)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("one"), v)

	// Not visible outside before commit.
	_, closer, err := tree.DB().Get(key)
	assert.ErrorIs(t, err, pebble.ErrNotFound)
	_ = closer

	assert.NoError(t, txn.Commit(pebble.Sync))
	got, closer, err := tree.DB().Get(key)
	assert.NoError(t, err)
	assert.Equal(t, []byte("one"), got)
	_ = closer.Close()
}

func TestSuperblockConsumedTwicePanics(t *testing.T) {
	tree := openTree(t)
	txn := NewTxn(tree.DB())
	defer txn.Abort()

	sb := NewSuperblock(tree, txn)
	_, err := AcquireForWrite(sb, datum.StoreKey("k"), nil)
	assert.NoError(t, err)
	assert.Panics(t, func() {
		_, _ = AcquireForWrite(sb, datum.StoreKey("k"), nil)
	})
}

func TestAcquireHandsOffBeforeMutation(t *testing.T) {
	tree := openTree(t)
	txn := NewTxn(tree.DB())
	defer txn.Abort()

	next := utils.NewPromise[*Superblock]()
	loc, err := AcquireForWrite(NewSuperblock(tree, txn), datum.StoreKey("a"), next)
	assert.NoError(t, err)

	// The successor is available before this location mutates anything.
	sb2, err := next.Wait(context.Background())
	assert.NoError(t, err)
	assert.NoError(t, loc.Replace([]byte("one")))

	loc2, err := AcquireForWrite(sb2, datum.StoreKey("a"), nil)
	assert.NoError(t, err)
	v, ok := loc2.CurrentValue()
	assert.True(t, ok)
	assert.Equal(t, []byte("one"), v)
}

func TestAcquireForReadAbsent(t *testing.T) {
	tree := openTree(t)
	_, ok, err := AcquireForRead(tree, tree.DB(), datum.StoreKey("nope"))
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestEraseRangeBounds(t *testing.T) {
	tree := openTree(t)
	put(t, tree, "a", "b", "c", "d", "e")

	txn := NewTxn(tree.DB())
	// Exclusive left "a", inclusive right "d": erases b, c, d.
	err := EraseRangeGeneric(context.Background(), NewSuperblock(tree, txn),
		nil, nil, datum.StoreKey("a"), datum.StoreKey("d"))
	assert.NoError(t, err)
	assert.NoError(t, txn.Commit(pebble.Sync))

	for _, k := range []string{"a", "e"} {
		_, ok, err := AcquireForRead(tree, tree.DB(), datum.StoreKey(k))
		assert.NoError(t, err)
		assert.True(t, ok, "key %s must survive", k)
	}
	for _, k := range []string{"b", "c", "d"} {
		_, ok, err := AcquireForRead(tree, tree.DB(), datum.StoreKey(k))
		assert.NoError(t, err)
		assert.False(t, ok, "key %s must be erased", k)
	}
}

func TestEraseRangeTester(t *testing.T) {
	tree := openTree(t)
	put(t, tree, "a1", "a2", "b1", "b2")

	txn := NewTxn(tree.DB())
	keep := func(k datum.StoreKey) bool { return k[0] == 'a' }
	err := EraseRangeGeneric(context.Background(), NewSuperblock(tree, txn),
		keep, nil, nil, nil)
	assert.NoError(t, err)
	assert.NoError(t, txn.Commit(pebble.Sync))

	_, ok, _ := AcquireForRead(tree, tree.DB(), datum.StoreKey("a1"))
	assert.False(t, ok)
	_, ok, _ = AcquireForRead(tree, tree.DB(), datum.StoreKey("b2"))
	assert.True(t, ok)
}

type collectHandler struct {
	mu      sync.Mutex
	keys    []string
	stop    string
	stopped bool
}

func (h *collectHandler) HandlePair(ctx context.Context, kv KeyValue, w Waiter) (bool, error) {
	if err := w.Wait(ctx); err != nil {
		return false, err
	}
	// Post-wait sections run in index order; entries already dispatched
	// when a predecessor stopped must not collect.
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false, nil
	}
	h.keys = append(h.keys, string(kv.Key))
	if h.stop != "" && string(kv.Key) == h.stop {
		h.stopped = true
		return false, nil
	}
	return true, nil
}

func TestTraverseForwardInOrder(t *testing.T) {
	tree := openTree(t)
	var want []string
	for i := 0; i < 50; i++ {
		k := fmt.Sprintf("k%03d", i)
		want = append(want, k)
		put(t, tree, k)
	}

	h := &collectHandler{}
	err := Traverse(context.Background(), tree.DB(), tree,
		datum.UnboundedRange(), Forward, 8, h)
	assert.NoError(t, err)
	assert.Equal(t, want, h.keys)
}

func TestTraverseBackward(t *testing.T) {
	tree := openTree(t)
	put(t, tree, "a", "b", "c")

	h := &collectHandler{}
	err := Traverse(context.Background(), tree.DB(), tree,
		datum.UnboundedRange(), Backward, 4, h)
	assert.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, h.keys)
}

func TestTraverseRangeAndStop(t *testing.T) {
	tree := openTree(t)
	put(t, tree, "a", "b", "c", "d", "e")

	h := &collectHandler{stop: "c"}
	rng := datum.KeyRange{Left: datum.StoreKey("b"), Right: datum.StoreKey("e")}
	err := Traverse(context.Background(), tree.DB(), tree, rng, Forward, 4, h)
	assert.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, h.keys)
}

type failingHandler struct{ err error }

func (h failingHandler) HandlePair(ctx context.Context, kv KeyValue, w Waiter) (bool, error) {
	if err := w.Wait(ctx); err != nil {
		return false, err
	}
	return false, h.err
}

func TestTraverseSurfacesHandlerError(t *testing.T) {
	tree := openTree(t)
	put(t, tree, "a", "b")

	boom := fmt.Errorf("boom")
	err := Traverse(context.Background(), tree.DB(), tree,
		datum.UnboundedRange(), Forward, 2, failingHandler{err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestTraverseCancellation(t *testing.T) {
	tree := openTree(t)
	put(t, tree, "a", "b", "c")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Traverse(ctx, tree.DB(), tree, datum.UnboundedRange(), Forward, 2, &collectHandler{})
	assert.ErrorIs(t, err, context.Canceled)
}
