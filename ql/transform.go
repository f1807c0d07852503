package ql

import (
	"context"

	"github.com/mukteshkrmishra/rethinkdb/datum"
)

// Transform is one pipeline stage: one input document, zero or more
// outputs. A stage error aborts the scan that runs it.
type Transform interface {
	Apply(ctx context.Context, d *datum.Datum) ([]*datum.Datum, error)
}

// Map rewrites each document through fn.
type Map struct {
	Fn *Func
}

func (m Map) Apply(ctx context.Context, d *datum.Datum) ([]*datum.Datum, error) {
	out, err := m.Fn.Call(ctx, d)
	if err != nil {
		return nil, err
	}
	return []*datum.Datum{out}, nil
}

// Filter keeps documents for which fn evaluates truthy (not null, not
// false).
type Filter struct {
	Fn *Func
}

func (f Filter) Apply(ctx context.Context, d *datum.Datum) ([]*datum.Datum, error) {
	v, err := f.Fn.Call(ctx, d)
	if err != nil {
		return nil, err
	}
	if v.IsNull() || (v.Kind() == datum.KindBool && !v.Bool()) {
		return nil, nil
	}
	return []*datum.Datum{d}, nil
}

// ConcatMap expands each document into the elements of the array fn
// returns.
type ConcatMap struct {
	Fn *Func
}

func (c ConcatMap) Apply(ctx context.Context, d *datum.Datum) ([]*datum.Datum, error) {
	v, err := c.Fn.Call(ctx, d)
	if err != nil {
		return nil, err
	}
	if v.Kind() != datum.KindArray {
		return nil, Errorf("concat_map expects an array, got %s", v.Kind())
	}
	out := make([]*datum.Datum, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		out = append(out, v.Index(i))
	}
	return out, nil
}

// Terminal is a reducing operation ending a pipeline. It owns accumulator
// state distinct from the plain result stream; every surviving row is fed
// to it, and Finalize produces the aggregate.
type Terminal interface {
	// UsesValue reports whether the terminal reads document contents.
	// Count does not, so pure count scans skip decoding entirely.
	UsesValue() bool
	Apply(ctx context.Context, d *datum.Datum) error
	Finalize() *datum.Datum
}

// Count tallies rows without touching their contents.
type Count struct {
	n int64
}

func (c *Count) UsesValue() bool { return false }

func (c *Count) Apply(context.Context, *datum.Datum) error {
	c.n++
	return nil
}

func (c *Count) Finalize() *datum.Datum {
	return datum.Number(float64(c.n))
}

// Sum folds a numeric field across all rows.
type Sum struct {
	Fn  *Func
	sum float64
}

func (s *Sum) UsesValue() bool { return true }

func (s *Sum) Apply(ctx context.Context, d *datum.Datum) error {
	v, err := s.Fn.Call(ctx, d)
	if err != nil {
		return err
	}
	if v.Kind() != datum.KindNumber {
		return Errorf("cannot sum %s value", v.Kind())
	}
	s.sum += v.Number()
	return nil
}

func (s *Sum) Finalize() *datum.Datum {
	return datum.Number(s.sum)
}
