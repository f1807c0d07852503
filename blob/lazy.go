package blob

import (
	"github.com/mukteshkrmishra/rethinkdb/datum"
)

// Lazy defers decoding of a stored value until first access. Pure
// key-counting paths never pay the decode (or blob fetch) cost.
type Lazy struct {
	store  *Store
	reader Getter
	raw    []byte
	doc    *datum.Datum
	err    error
	done   bool
}

func NewLazy(store *Store, reader Getter, raw []byte) *Lazy {
	return &Lazy{store: store, reader: reader, raw: raw}
}

// FromDatum wraps an already-decoded document, as produced mid-way through
// a transform pipeline.
func FromDatum(d *datum.Datum) *Lazy {
	return &Lazy{doc: d, done: true}
}

// Raw returns the stored value bytes (header included), nil for pipeline
// intermediates.
func (l *Lazy) Raw() []byte { return l.raw }

// Get decodes the document, fetching the spilled payload if needed. The
// result is cached; decoding happens at most once.
func (l *Lazy) Get() (*datum.Datum, error) {
	if l.done {
		return l.doc, l.err
	}
	l.done = true
	payload, err := l.store.Read(l.reader, l.raw)
	if err != nil {
		l.err = err
		return nil, err
	}
	l.doc, l.err = datum.Decode(payload)
	return l.doc, l.err
}
