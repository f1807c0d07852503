// Package cursor is the keyed-cursor abstraction over the ordered index.
// It positions read and write locations inside one pebble keyspace,
// transfers ownership of the in-flight write transaction between
// concurrent operations through single-use promises, and provides the
// generic range-erase and concurrent ordered-traversal primitives the
// engine builds on.
package cursor

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"github.com/mukteshkrmishra/rethinkdb/datum"
)

// Tree identifies one ordered keyspace: the primary tree or a secondary
// index tree. All keys it stores carry the tree's prefix.
type Tree struct {
	db     *pebble.DB
	prefix []byte
	wo     *pebble.WriteOptions
}

func NewTree(db *pebble.DB, prefix []byte, wo *pebble.WriteOptions) *Tree {
	return &Tree{db: db, prefix: append([]byte(nil), prefix...), wo: wo}
}

func (t *Tree) DB() *pebble.DB { return t.db }

func (t *Tree) Key(k datum.StoreKey) []byte {
	return append(append([]byte(nil), t.prefix...), k...)
}

// StripPrefix recovers the StoreKey from a raw database key of this tree.
func (t *Tree) StripPrefix(raw []byte) datum.StoreKey {
	return datum.StoreKey(raw[len(t.prefix):]).Clone()
}

// Bounds returns the [lower, upper) raw-key interval holding every key of
// this tree.
func (t *Tree) Bounds() (lower, upper []byte) {
	lower = append([]byte(nil), t.prefix...)
	upper = prefixUpper(t.prefix)
	return lower, upper
}

// prefixUpper computes the smallest byte string greater than every string
// with the given prefix.
func prefixUpper(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xFF {
			upper[i]++
			return upper[:i+1]
		}
	}
	// All-0xFF prefixes never occur: keyspace tags are ASCII.
	panic("unbounded keyspace prefix")
}

// Txn is one logical write transaction: a pebble indexed batch. The mutex
// serializes batch access because independent sindex sub-pipelines share
// the transaction concurrently and pebble batches are not goroutine safe.
type Txn struct {
	mu    sync.Mutex
	batch *pebble.Batch
}

func NewTxn(db *pebble.DB) *Txn {
	return &Txn{batch: db.NewIndexedBatch()}
}

func (t *Txn) Get(rawKey []byte) ([]byte, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	val, closer, err := t.batch.Get(rawKey)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	cp := append([]byte(nil), val...)
	closeQuiet(closer)
	return cp, true, nil
}

func (t *Txn) Set(rawKey, value []byte, wo *pebble.WriteOptions) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.batch.Set(rawKey, value, wo)
}

func (t *Txn) Delete(rawKey []byte, wo *pebble.WriteOptions) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.batch.Delete(rawKey, wo)
}

// View is a point-lookup view of the transaction, usable wherever a
// snapshot-like Get is expected. Values are copied out under the
// transaction mutex.
type View struct {
	txn *Txn
}

func (v View) Get(key []byte) ([]byte, io.Closer, error) {
	value, exists, err := v.txn.Get(key)
	if err != nil {
		return nil, nil, err
	}
	if !exists {
		return nil, nil, pebble.ErrNotFound
	}
	return value, noopCloser{}, nil
}

func (t *Txn) View() View { return View{txn: t} }

type noopCloser struct{}

func (noopCloser) Close() error { return nil }

// NewIter iterates over the batch's view: committed data plus this
// transaction's pending writes. The caller owns the iterator; the batch
// must not be written through other goroutines while it is open.
func (t *Txn) NewIter(opts *pebble.IterOptions) (*pebble.Iterator, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.batch.NewIter(opts)
}

// Commit applies every write of the transaction atomically.
func (t *Txn) Commit(wo *pebble.WriteOptions) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.batch.Commit(wo)
}

// Abort discards the transaction.
func (t *Txn) Abort() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.batch.Close()
}

func closeQuiet(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

// Superblock is the single-owner hand-off token over a transaction's
// access to one tree. The holder either consumes it (positions exactly one
// write location, or runs one erase) or passes it on; consuming it twice
// is a programming error and panics.
type Superblock struct {
	tree *Tree
	txn  *Txn
	used atomic.Bool
}

func NewSuperblock(tree *Tree, txn *Txn) *Superblock {
	return &Superblock{tree: tree, txn: txn}
}

func (sb *Superblock) Tree() *Tree { return sb.tree }
func (sb *Superblock) Txn() *Txn   { return sb.txn }

func (sb *Superblock) consume() {
	if sb.used.Swap(true) {
		panic("superblock consumed twice")
	}
}

// successor mints the next hand-off token over the same transaction.
func (sb *Superblock) successor() *Superblock {
	return NewSuperblock(sb.tree, sb.txn)
}
