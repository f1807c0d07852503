package cursor

import (
	"context"

	"github.com/cockroachdb/pebble"

	"github.com/mukteshkrmishra/rethinkdb/datum"
)

// KeyTester decides whether an entry inside the scanned interval should be
// erased. Secondary-index erases use it to test the embedded primary key.
type KeyTester func(key datum.StoreKey) bool

// Writer is the write surface handed to value deleters.
type Writer interface {
	Set(key, value []byte, opts *pebble.WriteOptions) error
	Delete(key []byte, opts *pebble.WriteOptions) error
}

// ValueDeleter runs per erased entry before its key is removed. The
// primary erase clears spilled blobs here; secondary erases do nothing,
// because index entries only reference data the primary entry owns.
type ValueDeleter func(w Writer, value []byte) error

// EraseRangeGeneric walks the tree between leftExcl (exclusive) and
// rightIncl (inclusive), nil meaning unbounded, and removes every entry
// the tester accepts, consuming the superblock. The caller decides what to
// do with the transaction afterwards (commit or pass on); cancellation is
// returned as the context error.
func EraseRangeGeneric(ctx context.Context, sb *Superblock, tester KeyTester,
	deleter ValueDeleter, leftExcl, rightIncl datum.StoreKey) error {
	sb.consume()
	tree, txn := sb.tree, sb.txn

	lower, upper := tree.Bounds()
	if leftExcl != nil {
		// Exclusive left bound: start at the immediate successor key.
		lower = append(tree.Key(leftExcl), 0x00)
	}
	if rightIncl != nil {
		// Inclusive right bound: stop after its immediate successor.
		upper = append(tree.Key(rightIncl), 0x00)
	}

	iter, err := txn.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer iter.Close()

	for valid := iter.First(); valid; valid = iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := tree.StripPrefix(iter.Key())
		if tester != nil && !tester(key) {
			continue
		}
		if deleter != nil {
			if err := deleter(txnWriter{txn: txn, wo: tree.wo}, iter.Value()); err != nil {
				return err
			}
		}
		if err := txn.Delete(tree.Key(key), tree.wo); err != nil {
			return err
		}
	}
	return iter.Error()
}

// txnWriter adapts a Txn to the narrow pebble.Writer surface deleters use.
type txnWriter struct {
	txn *Txn
	wo  *pebble.WriteOptions
}

func (w txnWriter) Set(key, value []byte, _ *pebble.WriteOptions) error {
	return w.txn.Set(key, value, w.wo)
}

func (w txnWriter) Delete(key []byte, _ *pebble.WriteOptions) error {
	return w.txn.Delete(key, w.wo)
}
