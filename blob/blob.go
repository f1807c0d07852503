// Package blob implements the stored-value layout of the document engine.
//
// A stored value is a fixed-form header followed either by the inline TLV
// document or by a reference to a spilled payload:
//
//	0x00 + document TLV                      inline, len(TLV) <= MaxInlineLen
//	0x01 + blobID(16) + xxhash(8) + len(8)   spilled
//
// Spilled payloads live in their own pebble keyspace ('B' + blobID) and
// survive deletion of the index entry that references them; they are freed
// explicitly via Clear once nothing references them anymore.
package blob

import (
	"encoding/binary"
	"io"

	"github.com/cespare/xxhash"
	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/mukteshkrmishra/rethinkdb/rdberrors"
)

// MaxInlineLen is the largest document encoding stored inline; larger
// payloads spill to the blob keyspace.
const MaxInlineLen = 250

const (
	tagInline = 0x00
	tagRef    = 0x01

	refLen = 1 + 16 + 8 + 8
)

const keyspace = 'B'

func blobKey(id uuid.UUID) []byte {
	return append([]byte{keyspace}, id[:]...)
}

// Writer is the narrow write surface the blob store needs; *pebble.DB,
// *pebble.Batch and transaction wrappers all satisfy it.
type Writer interface {
	Set(key, value []byte, opts *pebble.WriteOptions) error
	Delete(key []byte, opts *pebble.WriteOptions) error
}

// Getter is the point-lookup surface blob fetches need. Snapshots,
// batches and transaction views all satisfy it.
type Getter interface {
	Get(key []byte) ([]byte, io.Closer, error)
}

// Store reads and writes spilled payloads.
type Store struct {
	db   *pebble.DB
	opts *pebble.WriteOptions
}

func NewStore(db *pebble.DB, opts *pebble.WriteOptions) *Store {
	return &Store{db: db, opts: opts}
}

// Write encodes payload into a stored value, spilling through w when it
// does not fit inline.
func (s *Store) Write(w Writer, payload []byte) ([]byte, error) {
	if len(payload) <= MaxInlineLen {
		return append([]byte{tagInline}, payload...), nil
	}
	id := uuid.New()
	if err := w.Set(blobKey(id), payload, s.opts); err != nil {
		return nil, err
	}
	ref := make([]byte, 1, refLen)
	ref[0] = tagRef
	ref = append(ref, id[:]...)
	ref = binary.BigEndian.AppendUint64(ref, xxhash.Sum64(payload))
	ref = binary.BigEndian.AppendUint64(ref, uint64(len(payload)))
	return ref, nil
}

// Read resolves a stored value to the document TLV payload.
func (s *Store) Read(r Getter, value []byte) ([]byte, error) {
	if len(value) == 0 {
		return nil, rdberrors.ErrBadValue
	}
	switch value[0] {
	case tagInline:
		return value[1:], nil
	case tagRef:
		id, sum, size, err := parseRef(value)
		if err != nil {
			return nil, err
		}
		payload, closer, err := r.Get(blobKey(id))
		if err == pebble.ErrNotFound {
			return nil, rdberrors.ErrBlobMissing
		}
		if err != nil {
			return nil, err
		}
		defer closer.Close()
		if uint64(len(payload)) != size || xxhash.Sum64(payload) != sum {
			return nil, rdberrors.ErrBlobChecksum
		}
		return append([]byte(nil), payload...), nil
	}
	return nil, rdberrors.ErrBadValue
}

// Clear frees the payload a stored value references, if any. Safe on
// inline values. The caller is responsible for ordering: every secondary
// index entry holding this value must be rewritten first.
func (s *Store) Clear(w Writer, value []byte) error {
	if len(value) == 0 || value[0] != tagRef {
		return nil
	}
	id, _, _, err := parseRef(value)
	if err != nil {
		return err
	}
	return w.Delete(blobKey(id), s.opts)
}

// IsRef reports whether the stored value spills to the blob keyspace.
func IsRef(value []byte) bool {
	return len(value) > 0 && value[0] == tagRef
}

func parseRef(value []byte) (id uuid.UUID, sum, size uint64, err error) {
	if len(value) != refLen {
		return uuid.UUID{}, 0, 0, rdberrors.ErrBadValue
	}
	copy(id[:], value[1:17])
	sum = binary.BigEndian.Uint64(value[17:25])
	size = binary.BigEndian.Uint64(value[25:33])
	return id, sum, size, nil
}
