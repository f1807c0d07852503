package datum

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FromJSON builds a Datum from a JSON document. Used at the REPL and test
// boundary; the storage codec is TLV (see codec.go).
func FromJSON(data []byte) (*Datum, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return fromAny(v)
}

func fromAny(v any) (*Datum, error) {
	switch t := v.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, err
		}
		return Number(f), nil
	case string:
		return String(t), nil
	case []any:
		els := make([]*Datum, len(t))
		for i, e := range t {
			d, err := fromAny(e)
			if err != nil {
				return nil, err
			}
			els[i] = d
		}
		return Array(els...), nil
	case map[string]any:
		fields := make(map[string]*Datum, len(t))
		for k, e := range t {
			d, err := fromAny(e)
			if err != nil {
				return nil, err
			}
			fields[k] = d
		}
		return Object(fields), nil
	}
	return nil, fmt.Errorf("unsupported JSON value %T", v)
}

// String renders the datum as compact JSON.
func (d *Datum) String() string {
	var sb strings.Builder
	d.writeJSON(&sb)
	return sb.String()
}

func (d *Datum) writeJSON(sb *strings.Builder) {
	switch d.kind {
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		sb.WriteString(strconv.FormatBool(d.b))
	case KindNumber:
		sb.WriteString(strconv.FormatFloat(d.n, 'g', -1, 64))
	case KindString:
		b, _ := json.Marshal(d.s)
		sb.Write(b)
	case KindArray:
		sb.WriteByte('[')
		for i, e := range d.arr {
			if i > 0 {
				sb.WriteByte(',')
			}
			e.writeJSON(sb)
		}
		sb.WriteByte(']')
	case KindObject:
		sb.WriteByte('{')
		for i, name := range d.FieldNames() {
			if i > 0 {
				sb.WriteByte(',')
			}
			b, _ := json.Marshal(name)
			sb.Write(b)
			sb.WriteByte(':')
			d.obj[name].writeJSON(sb)
		}
		sb.WriteByte('}')
	}
}
