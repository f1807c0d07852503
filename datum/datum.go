package datum

import (
	"fmt"
	"sort"
	"strings"
)

// Kind enumerates document value kinds. The numeric order of the constants
// is the cross-kind sort order used by Compare.
type Kind byte

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindBool:
		return "BOOL"
	case KindNumber:
		return "NUMBER"
	case KindString:
		return "STRING"
	case KindArray:
		return "ARRAY"
	case KindObject:
		return "OBJECT"
	}
	return fmt.Sprintf("KIND(%d)", byte(k))
}

// Datum is an immutable JSON-like value. A Datum read from storage may be
// shared freely across modification records and responses; nothing may
// mutate it after construction.
type Datum struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []*Datum
	obj  map[string]*Datum
}

var null = &Datum{kind: KindNull}

func Null() *Datum { return null }

func Bool(b bool) *Datum { return &Datum{kind: KindBool, b: b} }

func Number(n float64) *Datum { return &Datum{kind: KindNumber, n: n} }

func String(s string) *Datum { return &Datum{kind: KindString, s: s} }

func Array(els ...*Datum) *Datum {
	cp := make([]*Datum, len(els))
	copy(cp, els)
	return &Datum{kind: KindArray, arr: cp}
}

func Object(fields map[string]*Datum) *Datum {
	cp := make(map[string]*Datum, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return &Datum{kind: KindObject, obj: cp}
}

func (d *Datum) Kind() Kind   { return d.kind }
func (d *Datum) IsNull() bool { return d == nil || d.kind == KindNull }

func (d *Datum) Bool() bool      { return d.b }
func (d *Datum) Number() float64 { return d.n }
func (d *Datum) Str() string     { return d.s }

func (d *Datum) Len() int {
	switch d.kind {
	case KindArray:
		return len(d.arr)
	case KindObject:
		return len(d.obj)
	}
	return 0
}

func (d *Datum) Index(i int) *Datum { return d.arr[i] }

func (d *Datum) Field(name string) (*Datum, bool) {
	v, ok := d.obj[name]
	return v, ok
}

// FieldNames returns the object's field names in sorted order.
func (d *Datum) FieldNames() []string {
	names := make([]string, 0, len(d.obj))
	for k := range d.obj {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (d *Datum) Equal(o *Datum) bool {
	return d.Compare(o) == 0
}

// Compare imposes a total order: kinds sort by rank (null < bool < number <
// string < array < object), equal kinds by value, arrays lexicographically,
// objects by sorted (name, value) pairs.
func (d *Datum) Compare(o *Datum) int {
	if d.kind != o.kind {
		if d.kind < o.kind {
			return -1
		}
		return 1
	}
	switch d.kind {
	case KindNull:
		return 0
	case KindBool:
		if d.b == o.b {
			return 0
		}
		if !d.b {
			return -1
		}
		return 1
	case KindNumber:
		if d.n < o.n {
			return -1
		}
		if d.n > o.n {
			return 1
		}
		return 0
	case KindString:
		return strings.Compare(d.s, o.s)
	case KindArray:
		for i := 0; i < len(d.arr) && i < len(o.arr); i++ {
			if c := d.arr[i].Compare(o.arr[i]); c != 0 {
				return c
			}
		}
		return len(d.arr) - len(o.arr)
	case KindObject:
		dn, on := d.FieldNames(), o.FieldNames()
		for i := 0; i < len(dn) && i < len(on); i++ {
			if c := strings.Compare(dn[i], on[i]); c != 0 {
				return c
			}
			if c := d.obj[dn[i]].Compare(o.obj[on[i]]); c != 0 {
				return c
			}
		}
		return len(dn) - len(on)
	}
	return 0
}

// Range is a half-open or closed interval over datum values. A nil bound
// is unbounded on that side.
type Range struct {
	Left        *Datum
	Right       *Datum
	LeftClosed  bool
	RightClosed bool
}

func (r Range) Contains(d *Datum) bool {
	if r.Left != nil {
		c := d.Compare(r.Left)
		if c < 0 || (c == 0 && !r.LeftClosed) {
			return false
		}
	}
	if r.Right != nil {
		c := d.Compare(r.Right)
		if c > 0 || (c == 0 && !r.RightClosed) {
			return false
		}
	}
	return true
}
