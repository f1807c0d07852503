package rethinkdb

import (
	"context"

	"github.com/mukteshkrmishra/rethinkdb/cursor"
	"github.com/mukteshkrmishra/rethinkdb/datum"
	"github.com/mukteshkrmishra/rethinkdb/ql"
	"github.com/mukteshkrmishra/rethinkdb/rdberrors"
	"github.com/mukteshkrmishra/rethinkdb/utils"
)

// PointWriteResult is the outcome of a Set.
type PointWriteResult int

const (
	PointStored PointWriteResult = iota
	PointDuplicate
)

// PointDeleteResult is the outcome of a Delete.
type PointDeleteResult int

const (
	PointDeleted PointDeleteResult = iota
	PointMissing
)

// locationSet serializes doc, spills oversized payloads into the blob
// keyspace of the same transaction, writes the stored value at loc, and
// records both sides of the modification. The pre-image's blob, if any,
// stays alive until the sync pipeline has rewritten every index entry
// referencing it.
func (s *Store) locationSet(loc *cursor.KVLocation, doc *datum.Datum, info *ModInfo) error {
	payload := datum.Encode(doc)
	stored, err := s.blobs.Write(loc.Txn(), payload)
	if err != nil {
		return err
	}
	if info != nil {
		if info.Added.Present() {
			panic("modification record already has an added side")
		}
		info.Added = ModPair{Doc: doc, Bytes: stored}
		if old, ok := loc.CurrentValue(); ok {
			if info.Deleted.Present() {
				panic("modification record already has a deleted side")
			}
			oldDoc, err := s.decodeStored(loc.Txn().View(), old)
			if err != nil {
				return err
			}
			info.Deleted = ModPair{Doc: oldDoc, Bytes: old}
		}
		info.check()
	}
	return loc.Replace(stored)
}

// locationDelete removes the entry at loc, recording the pre-image. The
// entry must exist.
func (s *Store) locationDelete(loc *cursor.KVLocation, info *ModInfo) error {
	old, ok := loc.CurrentValue()
	if !ok {
		panic("deleting an absent entry")
	}
	if info != nil {
		oldDoc, err := s.decodeStored(loc.Txn().View(), old)
		if err != nil {
			return err
		}
		info.Deleted = ModPair{Doc: oldDoc, Bytes: old}
		info.check()
	}
	return loc.Remove()
}

// Get fetches the document stored under key from a consistent snapshot.
// Absent keys yield the null datum.
func (s *Store) Get(ctx context.Context, key datum.StoreKey) (*datum.Datum, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := s.db.NewSnapshot()
	defer snap.Close()
	value, exists, err := cursor.AcquireForRead(s.primary, snap, key)
	if err != nil {
		return nil, err
	}
	if !exists {
		return datum.Null(), nil
	}
	return s.decodeStored(snap, value)
}

// Set writes doc under key within the transaction sb owns. With overwrite
// false an existing entry wins and the write reports PointDuplicate.
func (s *Store) Set(ctx context.Context, sb *cursor.Superblock, key datum.StoreKey,
	doc *datum.Datum, overwrite bool, info *ModInfo) (PointWriteResult, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	loc, err := cursor.AcquireForWrite(sb, key, nil)
	if err != nil {
		return 0, err
	}
	if _, exists := loc.CurrentValue(); exists && !overwrite {
		return PointDuplicate, nil
	}
	if err := s.locationSet(loc, doc, info); err != nil {
		return 0, err
	}
	pointWrites.Inc()
	return PointStored, nil
}

// Delete removes the entry under key within the transaction sb owns.
func (s *Store) Delete(ctx context.Context, sb *cursor.Superblock, key datum.StoreKey,
	info *ModInfo) (PointDeleteResult, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	loc, err := cursor.AcquireForWrite(sb, key, nil)
	if err != nil {
		return 0, err
	}
	if _, exists := loc.CurrentValue(); !exists {
		return PointMissing, nil
	}
	if err := s.locationDelete(loc, info); err != nil {
		return 0, err
	}
	pointDeletes.Inc()
	return PointDeleted, nil
}

// PointReplacer computes the replacement document from the stored one.
// The null datum stands for absence on both sides: old is null when the
// key is vacant, and returning null means delete.
type PointReplacer interface {
	Replace(old *datum.Datum) (*datum.Datum, error)
}

// ReplaceFunc adapts a plain function to PointReplacer.
type ReplaceFunc func(old *datum.Datum) (*datum.Datum, error)

func (f ReplaceFunc) Replace(old *datum.Datum) (*datum.Datum, error) { return f(old) }

func setOutcome(resp map[string]*datum.Datum, outcome string) {
	for _, o := range []string{"skipped", "inserted", "deleted", "unchanged", "replaced", "errors"} {
		if _, dup := resp[o]; dup {
			panic("replace outcome set twice")
		}
	}
	resp[outcome] = datum.Number(1)
}

// ReplaceAndReturnSuperblock runs one replace under the transaction sb
// owns, handing the transaction onward through next as soon as the write
// location is positioned. The summary counts exactly one of skipped,
// inserted, deleted, unchanged, replaced or errors; with returnVals it
// carries old_val and new_val too. Evaluation and validation failures
// land in the summary; storage errors and cancellation are returned.
func (s *Store) ReplaceAndReturnSuperblock(ctx context.Context, sb *cursor.Superblock,
	key datum.StoreKey, replacer PointReplacer, returnVals bool,
	info *ModInfo, next *utils.Promise[*cursor.Superblock]) (*datum.Datum, error) {

	loc, err := cursor.AcquireForWrite(sb, key, next)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp := map[string]*datum.Datum{}
	fail := func(err error) (*datum.Datum, error) {
		setOutcome(resp, "errors")
		resp["first_error"] = datum.String(err.Error())
		return datum.Object(resp), nil
	}

	oldDoc := datum.Null()
	stored, startedPresent := loc.CurrentValue()
	if startedPresent {
		oldDoc, err = s.decodeStored(loc.Txn().View(), stored)
		if err != nil {
			return nil, err
		}
	}
	if returnVals {
		resp["old_val"] = oldDoc
	}

	newDoc, err := replacer.Replace(oldDoc)
	if err != nil {
		if !ql.IsEvalError(err) {
			return nil, err
		}
		return fail(err)
	}
	if returnVals {
		resp["new_val"] = newDoc
	}

	endsPresent := !newDoc.IsNull()
	if endsPresent {
		if newDoc.Kind() != datum.KindObject {
			return fail(ql.Errorf("inserted value must be an object, got %s", newDoc.Kind()))
		}
		newKey, err := s.PrimaryKeyOf(newDoc)
		if err != nil {
			if !ql.IsEvalError(err) && err != rdberrors.ErrKeyTooLong &&
				err != rdberrors.ErrPrimaryKey && err != rdberrors.ErrNotAnObject {
				return nil, err
			}
			return fail(ql.Errorf("invalid primary key in replacement: %v", err))
		}
		if newKey.Compare(key) != 0 {
			return fail(ql.Errorf("primary key %q cannot be changed", s.opts.PrimaryKeyField))
		}
	}

	switch {
	case !startedPresent && !endsPresent:
		setOutcome(resp, "skipped")
	case !startedPresent && endsPresent:
		if err := s.locationSet(loc, newDoc, info); err != nil {
			return nil, err
		}
		setOutcome(resp, "inserted")
	case startedPresent && !endsPresent:
		if err := s.locationDelete(loc, info); err != nil {
			return nil, err
		}
		setOutcome(resp, "deleted")
	case oldDoc.Equal(newDoc):
		setOutcome(resp, "unchanged")
	default:
		if err := s.locationSet(loc, newDoc, info); err != nil {
			return nil, err
		}
		setOutcome(resp, "replaced")
	}
	pointReplaces.Inc()
	return datum.Object(resp), nil
}
