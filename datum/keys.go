package datum

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/mukteshkrmishra/rethinkdb/rdberrors"
)

// StoreKey is an ordered byte key into the index; its byte order defines
// scan direction and range membership.
type StoreKey []byte

// MaxKeySize bounds primary keys so the trailing length byte of a
// secondary key can always name the embedded primary key.
const MaxKeySize = 250

func (k StoreKey) Compare(o StoreKey) int {
	return bytes.Compare(k, o)
}

func (k StoreKey) Clone() StoreKey {
	return StoreKey(append([]byte(nil), k...))
}

// Order-preserving value encoding, kind tag first so cross-kind key order
// matches Datum.Compare.
const (
	keyNull   = 0x10
	keyFalse  = 0x20
	keyTrue   = 0x21
	keyNumber = 0x30
	keyString = 0x40
	keyArray  = 0x50
	keyObject = 0x60
)

// EncodeKey turns a datum into an order-preserving byte string: comparing
// two encodings bytewise agrees with Datum.Compare on the values.
func EncodeKey(d *Datum) StoreKey {
	return appendKey(nil, d)
}

func appendKey(k []byte, d *Datum) []byte {
	switch d.kind {
	case KindNull:
		return append(k, keyNull)
	case KindBool:
		if d.b {
			return append(k, keyTrue)
		}
		return append(k, keyFalse)
	case KindNumber:
		bits := math.Float64bits(d.n)
		if d.n >= 0 || bits == 0 {
			bits |= 1 << 63
		} else {
			bits = ^bits
		}
		k = append(k, keyNumber)
		return binary.BigEndian.AppendUint64(k, bits)
	case KindString:
		k = append(k, keyString)
		return appendEscaped(k, []byte(d.s))
	case KindArray:
		k = append(k, keyArray)
		for _, e := range d.arr {
			k = appendKey(k, e)
		}
		return append(k, 0x00)
	case KindObject:
		k = append(k, keyObject)
		for _, name := range d.FieldNames() {
			k = appendEscaped(k, []byte(name))
			k = appendKey(k, d.obj[name])
		}
		return append(k, 0x00)
	}
	panic("unreachable datum kind")
}

// appendEscaped writes bytes with 0x00 escaped as 0x00 0xFF and a bare
// 0x00 terminator, keeping the encoding prefix-free and order-preserving.
func appendEscaped(k, s []byte) []byte {
	for _, b := range s {
		if b == 0x00 {
			k = append(k, 0x00, 0xFF)
		} else {
			k = append(k, b)
		}
	}
	return append(k, 0x00)
}

// PrimaryKey encodes a document's primary-key value as a StoreKey,
// rejecting keys that exceed MaxKeySize.
func PrimaryKey(d *Datum) (StoreKey, error) {
	k := EncodeKey(d)
	if len(k) > MaxKeySize {
		return nil, rdberrors.ErrKeyTooLong
	}
	return k, nil
}

const (
	secFlagNone   = 0x00
	secFlagHasTag = 0x01
	secTagLen     = 8
	secTrailerLen = 2 // primary-key length byte + flags byte
)

// SecondaryKey builds a secondary-index key: encoded index value, then the
// owning primary key, then an optional multi-index array tag, then a
// trailer naming the primary-key length. The primary key and tag are
// recoverable from the entry alone.
func SecondaryKey(value *Datum, primary StoreKey, tag uint64, hasTag bool) StoreKey {
	k := appendKey(nil, value)
	k = append(k, primary...)
	flags := byte(secFlagNone)
	if hasTag {
		k = binary.BigEndian.AppendUint64(k, tag)
		flags |= secFlagHasTag
	}
	k = append(k, byte(len(primary)), flags)
	return k
}

func secondarySuffixLen(skey StoreKey) (pkLen int, hasTag bool, err error) {
	if len(skey) < secTrailerLen {
		return 0, false, rdberrors.ErrBadValue
	}
	flags := skey[len(skey)-1]
	pkLen = int(skey[len(skey)-2])
	hasTag = flags&secFlagHasTag != 0
	need := secTrailerLen + pkLen
	if hasTag {
		need += secTagLen
	}
	if len(skey) < need {
		return 0, false, rdberrors.ErrBadValue
	}
	return pkLen, hasTag, nil
}

// ExtractPrimary recovers the primary key embedded in a secondary-index
// key.
func ExtractPrimary(skey StoreKey) (StoreKey, error) {
	pkLen, hasTag, err := secondarySuffixLen(skey)
	if err != nil {
		return nil, err
	}
	end := len(skey) - secTrailerLen
	if hasTag {
		end -= secTagLen
	}
	return StoreKey(skey[end-pkLen : end]).Clone(), nil
}

// ExtractTag recovers the multi-index array tag, if the entry carries one.
func ExtractTag(skey StoreKey) (uint64, bool, error) {
	_, hasTag, err := secondarySuffixLen(skey)
	if err != nil {
		return 0, false, err
	}
	if !hasTag {
		return 0, false, nil
	}
	end := len(skey) - secTrailerLen
	return binary.BigEndian.Uint64(skey[end-secTagLen : end]), true, nil
}

// KeyRange is a key interval, left-inclusive and right-exclusive by
// convention; RightUnbounded ranges have no right edge.
type KeyRange struct {
	Left           StoreKey
	Right          StoreKey
	RightUnbounded bool
}

func UnboundedRange() KeyRange {
	return KeyRange{RightUnbounded: true}
}

func (r KeyRange) Contains(k StoreKey) bool {
	if k.Compare(r.Left) < 0 {
		return false
	}
	return r.RightUnbounded || k.Compare(r.Right) < 0
}

func (r KeyRange) IsEmpty() bool {
	return !r.RightUnbounded && r.Left.Compare(r.Right) >= 0
}

// Decrement turns k into the greatest key strictly below it, padding with
// 0xFF up to MaxKeySize. Returns false for the empty key, which has no
// predecessor.
func (k StoreKey) Decrement() (StoreKey, bool) {
	if len(k) == 0 {
		return nil, false
	}
	out := k.Clone()
	if out[len(out)-1] > 0 {
		out[len(out)-1]--
		for len(out) < MaxKeySize {
			out = append(out, 0xFF)
		}
		return out, true
	}
	return out[:len(out)-1], true
}
