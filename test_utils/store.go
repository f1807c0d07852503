package testutils

import (
	"log/slog"
	"testing"

	"github.com/mukteshkrmishra/rethinkdb"
	"github.com/mukteshkrmishra/rethinkdb/datum"
	"github.com/mukteshkrmishra/rethinkdb/utils"
)

// OpenScratchStore opens a store in a temp dir, closed with the test.
func OpenScratchStore(t *testing.T, opts rethinkdb.Options) *rethinkdb.Store {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = utils.NewDefaultLogger(slog.LevelError)
	}
	store, err := rethinkdb.Open(t.TempDir(), opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// Doc builds a flat test document from alternating name/value pairs.
// Values may be string, float64, int, bool, nil, or *datum.Datum.
func Doc(pairs ...any) *datum.Datum {
	if len(pairs)%2 != 0 {
		panic("odd number of field pairs")
	}
	fields := map[string]*datum.Datum{}
	for i := 0; i < len(pairs); i += 2 {
		name := pairs[i].(string)
		switch v := pairs[i+1].(type) {
		case nil:
			fields[name] = datum.Null()
		case bool:
			fields[name] = datum.Bool(v)
		case int:
			fields[name] = datum.Number(float64(v))
		case float64:
			fields[name] = datum.Number(v)
		case string:
			fields[name] = datum.String(v)
		case *datum.Datum:
			fields[name] = v
		default:
			panic("unsupported test field type")
		}
	}
	return datum.Object(fields)
}

// Key encodes a string primary key.
func Key(t *testing.T, s string) datum.StoreKey {
	t.Helper()
	k, err := datum.PrimaryKey(datum.String(s))
	if err != nil {
		t.Fatal(err)
	}
	return k
}
