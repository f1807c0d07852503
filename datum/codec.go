package datum

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/learn-decentralized-systems/toytlv"
)

// TLV document encoding. One record per value:
//
//	'Z'            null
//	'B' + byte     bool (0/1)
//	'N' + 8B BE    number (float64 bits)
//	'S' + bytes    string
//	'A' + records  array, one nested record per element
//	'O' + records  object, 'K'+name followed by the value record per field,
//	               fields in sorted name order so encoding is deterministic
var ErrBadDocument = errors.New("rethinkdb: bad document record")

// Encode serializes d. The result is the value payload stored (inline or
// behind a blob reference) in the ordered index.
func Encode(d *Datum) []byte {
	switch d.kind {
	case KindNull:
		return toytlv.Record('Z')
	case KindBool:
		b := byte(0)
		if d.b {
			b = 1
		}
		return toytlv.Record('B', []byte{b})
	case KindNumber:
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(d.n))
		return toytlv.Record('N', buf[:])
	case KindString:
		return toytlv.Record('S', []byte(d.s))
	case KindArray:
		var body []byte
		for _, e := range d.arr {
			body = append(body, Encode(e)...)
		}
		return toytlv.Record('A', body)
	case KindObject:
		var body []byte
		for _, name := range d.FieldNames() {
			body = append(body, toytlv.Record('K', []byte(name))...)
			body = append(body, Encode(d.obj[name])...)
		}
		return toytlv.Record('O', body)
	}
	panic("unreachable datum kind")
}

// Decode parses one document record. Trailing bytes are an error: a stored
// value holds exactly one document.
func Decode(data []byte) (*Datum, error) {
	d, rest, err := decodeOne(data)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, ErrBadDocument
	}
	return d, nil
}

func decodeOne(data []byte) (*Datum, []byte, error) {
	lit, body, rest := toytlv.TakeAny(data)
	if lit == 0 {
		return nil, nil, ErrBadDocument
	}
	switch lit {
	case 'Z':
		return Null(), rest, nil
	case 'B':
		if len(body) != 1 {
			return nil, nil, ErrBadDocument
		}
		return Bool(body[0] != 0), rest, nil
	case 'N':
		if len(body) != 8 {
			return nil, nil, ErrBadDocument
		}
		return Number(math.Float64frombits(binary.BigEndian.Uint64(body))), rest, nil
	case 'S':
		return String(string(body)), rest, nil
	case 'A':
		var els []*Datum
		for len(body) > 0 {
			el, more, err := decodeOne(body)
			if err != nil {
				return nil, nil, err
			}
			els = append(els, el)
			body = more
		}
		return Array(els...), rest, nil
	case 'O':
		fields := make(map[string]*Datum)
		for len(body) > 0 {
			name, more := toytlv.Take('K', body)
			if name == nil {
				return nil, nil, ErrBadDocument
			}
			val, left, err := decodeOne(more)
			if err != nil {
				return nil, nil, err
			}
			fields[string(name)] = val
			body = left
		}
		return Object(fields), rest, nil
	}
	return nil, nil, ErrBadDocument
}
