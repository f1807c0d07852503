package datum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareAcrossKinds(t *testing.T) {
	ordered := []*Datum{
		Null(),
		Bool(false),
		Bool(true),
		Number(-10),
		Number(3.5),
		String(""),
		String("a"),
		String("ab"),
		Array(Number(1)),
		Array(Number(1), Number(2)),
		Object(map[string]*Datum{"a": Number(1)}),
	}
	for i := 0; i < len(ordered); i++ {
		for j := 0; j < len(ordered); j++ {
			c := ordered[i].Compare(ordered[j])
			switch {
			case i < j:
				assert.Negative(t, c, "%s < %s", ordered[i], ordered[j])
			case i > j:
				assert.Positive(t, c, "%s > %s", ordered[i], ordered[j])
			default:
				assert.Zero(t, c)
			}
		}
	}
}

func TestObjectFieldsSorted(t *testing.T) {
	d := Object(map[string]*Datum{"b": Number(2), "a": Number(1), "c": Number(3)})
	assert.Equal(t, []string{"a", "b", "c"}, d.FieldNames())
	v, ok := d.Field("b")
	assert.True(t, ok)
	assert.Equal(t, 2.0, v.Number())
	_, ok = d.Field("z")
	assert.False(t, ok)
}

func TestJSONRoundtrip(t *testing.T) {
	src := `{"id":"doc1","n":3.5,"tags":["a","b"],"on":true,"none":null}`
	d, err := FromJSON([]byte(src))
	assert.NoError(t, err)
	back, err := FromJSON([]byte(d.String()))
	assert.NoError(t, err)
	assert.True(t, d.Equal(back))

	_, err = FromJSON([]byte(`{"unterminated":`))
	assert.Error(t, err)
}

func TestRangeContains(t *testing.T) {
	lo, hi := Number(1), Number(5)
	r := Range{Left: lo, Right: hi, LeftClosed: true, RightClosed: false}
	assert.True(t, r.Contains(Number(1)))
	assert.True(t, r.Contains(Number(4.9)))
	assert.False(t, r.Contains(Number(5)))
	assert.False(t, r.Contains(Number(0)))

	open := Range{}
	assert.True(t, open.Contains(Null()))
	assert.True(t, open.Contains(String("anything")))
}

func TestCodecRejectsTrailingBytes(t *testing.T) {
	enc := Encode(Number(7))
	_, err := Decode(append(enc, 0x00))
	assert.Error(t, err)

	d, err := Decode(enc)
	assert.NoError(t, err)
	assert.Equal(t, 7.0, d.Number())
}

func TestCodecNested(t *testing.T) {
	d := Object(map[string]*Datum{
		"id":   String("x"),
		"arr":  Array(Null(), Bool(true), Number(-1)),
		"deep": Object(map[string]*Datum{"k": String("v")}),
	})
	back, err := Decode(Encode(d))
	assert.NoError(t, err)
	assert.True(t, d.Equal(back))
}
