package cursor

import (
	"github.com/cockroachdb/pebble"

	"github.com/mukteshkrmishra/rethinkdb/datum"
	"github.com/mukteshkrmishra/rethinkdb/utils"
)

// KVLocation is a positioned write handle for one key: the current value
// (if any) and the means to replace or remove it within the owning
// transaction.
type KVLocation struct {
	tree   *Tree
	txn    *Txn
	key    datum.StoreKey
	value  []byte
	exists bool
}

func (l *KVLocation) Key() datum.StoreKey { return l.key }

// Txn exposes the owning transaction, for writes that must land in the
// same batch as the location's mutation (blob spills).
func (l *KVLocation) Txn() *Txn { return l.txn }

// CurrentValue returns the stored value bytes at this location, nil if the
// key is absent.
func (l *KVLocation) CurrentValue() ([]byte, bool) {
	return l.value, l.exists
}

// Replace writes value at this location.
func (l *KVLocation) Replace(value []byte) error {
	return l.txn.Set(l.tree.Key(l.key), value, l.tree.wo)
}

// Remove deletes the entry at this location.
func (l *KVLocation) Remove() error {
	return l.txn.Delete(l.tree.Key(l.key), l.tree.wo)
}

// AcquireForWrite consumes sb, positions a write location for key, and
// hands the transaction onward through next before the caller's mutation
// runs, so the next queued operation's acquisition proceeds concurrently
// with this one's mutation. Pass a nil promise to keep the transaction.
func AcquireForWrite(sb *Superblock, key datum.StoreKey, next *utils.Promise[*Superblock]) (*KVLocation, error) {
	sb.consume()
	value, exists, err := sb.txn.Get(sb.tree.Key(key))
	if err != nil {
		// The hand-off must continue even when this acquisition fails,
		// or the operations queued behind it would never run.
		if next != nil {
			next.Deliver(sb.successor())
		}
		return nil, err
	}
	if next != nil {
		next.Deliver(sb.successor())
	}
	return &KVLocation{
		tree:   sb.tree,
		txn:    sb.txn,
		key:    key,
		value:  value,
		exists: exists,
	}, nil
}

// AcquireForRead fetches the stored value for key from a read-only view.
// Absence is not an error; it reports exists=false.
func AcquireForRead(tree *Tree, reader pebble.Reader, key datum.StoreKey) ([]byte, bool, error) {
	value, closer, err := reader.Get(tree.Key(key))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	cp := append([]byte(nil), value...)
	closeQuiet(closer)
	return cp, true, nil
}
