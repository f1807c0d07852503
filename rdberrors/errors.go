// Provides common error definitions for the document engine.
package rdberrors

import "errors"

var (
	ErrClosed        = errors.New("rethinkdb: store is closed")
	ErrAlreadyExists = errors.New("rethinkdb: already exists")

	ErrSindexUnknown  = errors.New("rethinkdb: unknown secondary index")
	ErrSindexNotReady = errors.New("rethinkdb: secondary index is still being constructed")

	ErrKeyTooLong   = errors.New("rethinkdb: primary key exceeds the maximum key size")
	ErrNotAnObject  = errors.New("rethinkdb: inserted value must be an object")
	ErrPrimaryKey   = errors.New("rethinkdb: primary key cannot be changed")
	ErrBlobMissing  = errors.New("rethinkdb: value references a missing blob")
	ErrBlobChecksum = errors.New("rethinkdb: blob payload failed its checksum")
	ErrBadValue     = errors.New("rethinkdb: bad stored value")
	ErrBadSindexDef = errors.New("rethinkdb: bad secondary index definition record")
	ErrBadWireFunc  = errors.New("rethinkdb: bad wire function record")
)
