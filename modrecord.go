package rethinkdb

import (
	"github.com/mukteshkrmishra/rethinkdb/datum"
)

// ModPair is one side of a modification: the decoded document and the
// exact stored-value bytes the primary tree held (or now holds) for it.
// Both are present or both are absent.
type ModPair struct {
	Doc   *datum.Datum
	Bytes []byte
}

func (p ModPair) Present() bool { return p.Doc != nil }

// ModInfo describes what one point mutation did to a primary-tree entry.
// Deleted carries the pre-image, Added the post-image; an insert has only
// Added, a delete only Deleted, a replace both. A skipped or unchanged
// operation leaves both sides empty.
type ModInfo struct {
	Deleted ModPair
	Added   ModPair
}

func (i *ModInfo) HasDeleted() bool { return i.Deleted.Present() }
func (i *ModInfo) HasAdded() bool   { return i.Added.Present() }

func (i *ModInfo) check() {
	if (i.Deleted.Doc != nil) != (len(i.Deleted.Bytes) != 0) {
		panic("modification record: deleted document and bytes must agree")
	}
	if (i.Added.Doc != nil) != (len(i.Added.Bytes) != 0) {
		panic("modification record: added document and bytes must agree")
	}
}

// ModReport ties a ModInfo to the primary key it happened under. Reports
// flow from the point mutation engine into the change log and the
// secondary-index sync pipeline.
type ModReport struct {
	PrimaryKey datum.StoreKey
	Info       ModInfo
}

func NewModReport(key datum.StoreKey) *ModReport {
	if len(key) == 0 {
		panic("modification report without a primary key")
	}
	return &ModReport{PrimaryKey: key}
}
