package ql

import (
	"context"

	"github.com/learn-decentralized-systems/toytlv"

	"github.com/mukteshkrmishra/rethinkdb/datum"
	"github.com/mukteshkrmishra/rethinkdb/rdberrors"
)

// WireFunc is the serialized form of an index function, stored inside a
// secondary-index definition and compiled once per sync operation.
//
//	'F' + 'P'+name ...   field path: descend the named attributes
//	'F' + 'C'+document   constant function
type WireFunc []byte

// FieldFunc builds the wire form of a field-path function.
func FieldFunc(path ...string) WireFunc {
	var body []byte
	for _, p := range path {
		body = append(body, toytlv.Record('P', []byte(p))...)
	}
	return toytlv.Record('F', body)
}

// ConstFunc builds the wire form of a constant function.
func ConstFunc(d *datum.Datum) WireFunc {
	return toytlv.Record('F', toytlv.Record('C', datum.Encode(d)))
}

// Func is a compiled callable. Call raises *Error for evaluation failures
// and the context error on cancellation.
type Func struct {
	call func(ctx context.Context, d *datum.Datum) (*datum.Datum, error)
}

func (f *Func) Call(ctx context.Context, d *datum.Datum) (*datum.Datum, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.call(ctx, d)
}

// Compile parses a wire function into a callable.
func Compile(wire WireFunc) (*Func, error) {
	body, rest := toytlv.Take('F', wire)
	if body == nil || len(rest) != 0 {
		return nil, rdberrors.ErrBadWireFunc
	}
	lit, first, _ := toytlv.TakeAny(body)
	switch lit {
	case 'C':
		c, err := datum.Decode(first)
		if err != nil {
			return nil, rdberrors.ErrBadWireFunc
		}
		return &Func{call: func(context.Context, *datum.Datum) (*datum.Datum, error) {
			return c, nil
		}}, nil
	case 'P':
		var path []string
		for len(body) > 0 {
			p, more := toytlv.Take('P', body)
			if p == nil {
				return nil, rdberrors.ErrBadWireFunc
			}
			path = append(path, string(p))
			body = more
		}
		return &Func{call: func(_ context.Context, d *datum.Datum) (*datum.Datum, error) {
			cur := d
			for _, name := range path {
				if cur.Kind() != datum.KindObject {
					return nil, Errorf("cannot get field %q of %s", name, cur.Kind())
				}
				next, ok := cur.Field(name)
				if !ok {
					return nil, Errorf("no attribute %q in object", name)
				}
				cur = next
			}
			return cur, nil
		}}, nil
	}
	return nil, rdberrors.ErrBadWireFunc
}

// ComputeKeys evaluates the index function on doc and derives the
// secondary keys for it. A MULTI index whose function returns an array
// produces one key per element, tagged with the array position so keys
// stay unique.
func ComputeKeys(ctx context.Context, primary datum.StoreKey, doc *datum.Datum, fn *Func, multi bool) ([]datum.StoreKey, error) {
	idx, err := fn.Call(ctx, doc)
	if err != nil {
		return nil, err
	}
	if multi && idx.Kind() == datum.KindArray {
		keys := make([]datum.StoreKey, 0, idx.Len())
		for i := 0; i < idx.Len(); i++ {
			keys = append(keys, datum.SecondaryKey(idx.Index(i), primary, uint64(i), true))
		}
		return keys, nil
	}
	return []datum.StoreKey{datum.SecondaryKey(idx, primary, 0, false)}, nil
}
