package ql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mukteshkrmishra/rethinkdb/datum"
)

func obj(pairs map[string]*datum.Datum) *datum.Datum { return datum.Object(pairs) }

func TestFieldFunc(t *testing.T) {
	fn, err := Compile(FieldFunc("a", "b"))
	assert.NoError(t, err)

	d := obj(map[string]*datum.Datum{
		"a": obj(map[string]*datum.Datum{"b": datum.Number(5)}),
	})
	v, err := fn.Call(context.Background(), d)
	assert.NoError(t, err)
	assert.Equal(t, 5.0, v.Number())
}

func TestFieldFuncMissingAttribute(t *testing.T) {
	fn, err := Compile(FieldFunc("color"))
	assert.NoError(t, err)

	_, err = fn.Call(context.Background(), obj(map[string]*datum.Datum{"x": datum.Null()}))
	assert.True(t, IsEvalError(err))

	_, err = fn.Call(context.Background(), datum.Number(1))
	assert.True(t, IsEvalError(err))
}

func TestConstFunc(t *testing.T) {
	fn, err := Compile(ConstFunc(datum.String("fixed")))
	assert.NoError(t, err)
	v, err := fn.Call(context.Background(), datum.Null())
	assert.NoError(t, err)
	assert.Equal(t, "fixed", v.Str())
}

func TestCompileRejectsGarbage(t *testing.T) {
	_, err := Compile(WireFunc("not a record"))
	assert.Error(t, err)
	_, err = Compile(nil)
	assert.Error(t, err)
}

func TestCallHonorsCancellation(t *testing.T) {
	fn, err := Compile(FieldFunc("a"))
	assert.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = fn.Call(ctx, datum.Null())
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsEvalError(err))
}

func TestComputeKeysSingle(t *testing.T) {
	fn, _ := Compile(FieldFunc("color"))
	pk, _ := datum.PrimaryKey(datum.String("doc1"))
	doc := obj(map[string]*datum.Datum{"color": datum.String("red")})

	keys, err := ComputeKeys(context.Background(), pk, doc, fn, false)
	assert.NoError(t, err)
	assert.Len(t, keys, 1)
	got, err := datum.ExtractPrimary(keys[0])
	assert.NoError(t, err)
	assert.Zero(t, pk.Compare(got))
}

func TestComputeKeysMulti(t *testing.T) {
	fn, _ := Compile(FieldFunc("tags"))
	pk, _ := datum.PrimaryKey(datum.String("doc1"))
	doc := obj(map[string]*datum.Datum{
		"tags": datum.Array(datum.String("a"), datum.String("b"), datum.String("a")),
	})

	keys, err := ComputeKeys(context.Background(), pk, doc, fn, true)
	assert.NoError(t, err)
	assert.Len(t, keys, 3)
	// Duplicate values stay distinct through their array-position tag.
	assert.NotZero(t, keys[0].Compare(keys[2]))
	tag, hasTag, err := datum.ExtractTag(keys[2])
	assert.NoError(t, err)
	assert.True(t, hasTag)
	assert.Equal(t, uint64(2), tag)
}

func TestComputeKeysMultiOnScalar(t *testing.T) {
	fn, _ := Compile(FieldFunc("color"))
	pk, _ := datum.PrimaryKey(datum.String("doc1"))
	doc := obj(map[string]*datum.Datum{"color": datum.String("red")})

	// MULTI over a non-array indexes the scalar itself, untagged.
	keys, err := ComputeKeys(context.Background(), pk, doc, fn, true)
	assert.NoError(t, err)
	assert.Len(t, keys, 1)
	_, hasTag, err := datum.ExtractTag(keys[0])
	assert.NoError(t, err)
	assert.False(t, hasTag)
}

func TestTransformPipeline(t *testing.T) {
	upper, _ := Compile(FieldFunc("v"))
	filter, _ := Compile(FieldFunc("keep"))
	ctx := context.Background()

	d := obj(map[string]*datum.Datum{
		"v":    datum.Number(10),
		"keep": datum.Bool(true),
	})

	kept, err := Filter{Fn: filter}.Apply(ctx, d)
	assert.NoError(t, err)
	assert.Len(t, kept, 1)

	mapped, err := Map{Fn: upper}.Apply(ctx, d)
	assert.NoError(t, err)
	assert.Len(t, mapped, 1)
	assert.Equal(t, 10.0, mapped[0].Number())

	dropped, err := Filter{Fn: filter}.Apply(ctx, obj(map[string]*datum.Datum{
		"v":    datum.Number(1),
		"keep": datum.Bool(false),
	}))
	assert.NoError(t, err)
	assert.Empty(t, dropped)
}

func TestConcatMap(t *testing.T) {
	fn, _ := Compile(FieldFunc("xs"))
	out, err := ConcatMap{Fn: fn}.Apply(context.Background(), obj(map[string]*datum.Datum{
		"xs": datum.Array(datum.Number(1), datum.Number(2)),
	}))
	assert.NoError(t, err)
	assert.Len(t, out, 2)

	_, err = ConcatMap{Fn: fn}.Apply(context.Background(), obj(map[string]*datum.Datum{
		"xs": datum.Number(3),
	}))
	assert.True(t, IsEvalError(err))
}

func TestTerminals(t *testing.T) {
	ctx := context.Background()

	c := &Count{}
	assert.False(t, c.UsesValue())
	for i := 0; i < 3; i++ {
		assert.NoError(t, c.Apply(ctx, nil))
	}
	assert.Equal(t, 3.0, c.Finalize().Number())

	fn, _ := Compile(FieldFunc("n"))
	s := &Sum{Fn: fn}
	assert.True(t, s.UsesValue())
	assert.NoError(t, s.Apply(ctx, obj(map[string]*datum.Datum{"n": datum.Number(2)})))
	assert.NoError(t, s.Apply(ctx, obj(map[string]*datum.Datum{"n": datum.Number(5)})))
	assert.Equal(t, 7.0, s.Finalize().Number())

	err := s.Apply(ctx, obj(map[string]*datum.Datum{"n": datum.String("nope")}))
	assert.True(t, IsEvalError(err))
}

func TestBatcherBudgets(t *testing.T) {
	b := BatchSpec{MaxEls: 2}.ToBatcher()
	assert.False(t, b.ShouldSendBatch())
	b.NoteEl(datum.Number(1))
	assert.False(t, b.ShouldSendBatch())
	b.NoteEl(datum.Number(2))
	assert.True(t, b.ShouldSendBatch())

	sz := BatchSpec{MaxSize: 4}.ToBatcher()
	sz.NoteEl(datum.String("0123456789"))
	assert.True(t, sz.ShouldSendBatch())

	unlimited := BatchSpec{}.ToBatcher()
	for i := 0; i < 100; i++ {
		unlimited.NoteEl(datum.Number(float64(i)))
	}
	assert.False(t, unlimited.ShouldSendBatch())
}
