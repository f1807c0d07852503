// Package rethinkdb is a document-oriented storage engine over a pebble
// ordered index: JSON-like documents under order-preserving primary keys,
// secondary indexes kept in sync through a concurrent pipeline, range
// scans with transform/terminal pipelines, and batched replace
// coordination.
package rethinkdb

import (
	"log/slog"
	"sync"

	"github.com/cockroachdb/pebble"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/mukteshkrmishra/rethinkdb/blob"
	"github.com/mukteshkrmishra/rethinkdb/cursor"
	"github.com/mukteshkrmishra/rethinkdb/datum"
	"github.com/mukteshkrmishra/rethinkdb/ql"
	"github.com/mukteshkrmishra/rethinkdb/rdberrors"
	"github.com/mukteshkrmishra/rethinkdb/utils"
)

// One-byte keyspace tags. Blob payloads live under 'B', owned by the blob
// package.
const (
	keyspacePrimary = 'D'
	keyspaceSindex  = 'S'
	keyspaceMeta    = 'M'
)

// IndexErrorPolicy decides what an index-function evaluation failure does
// during secondary-index sync.
type IndexErrorPolicy int

const (
	// DropRow skips the row for that index: the document stays in the
	// primary tree but gets no entry in the failing index.
	DropRow IndexErrorPolicy = iota
	// PropagateIndexError fails the whole sync operation instead.
	PropagateIndexError
)

type Options struct {
	Logger utils.Logger

	// PrimaryKeyField names the document attribute holding the primary
	// key.
	PrimaryKeyField string

	// ScanConcurrency bounds the worker pool of one range scan.
	ScanConcurrency int

	// IndexErrorPolicy applies to every sync operation of this store.
	IndexErrorPolicy IndexErrorPolicy

	// ChangeLogLimit bounds the in-memory change log; the oldest records
	// are dropped beyond it.
	ChangeLogLimit int

	// PostConstructChunk is how many primary entries one post-construction
	// transaction covers before yielding.
	PostConstructChunk int
}

func (o *Options) SetDefaults() {
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelInfo)
	}
	if o.PrimaryKeyField == "" {
		o.PrimaryKeyField = "id"
	}
	if o.ScanConcurrency == 0 {
		o.ScanConcurrency = 8
	}
	if o.ChangeLogLimit == 0 {
		o.ChangeLogLimit = 1 << 16
	}
	if o.PostConstructChunk == 0 {
		o.PostConstructChunk = 64
	}
}

// Store is one open document store.
type Store struct {
	db   *pebble.DB
	dir  string
	opts Options
	wo   *pebble.WriteOptions

	primary *cursor.Tree
	blobs   *blob.Store

	sindexes  *xsync.MapOf[string, *SindexDef]
	funcCache *lru.Cache[string, *ql.Func]

	changes *ChangeLog

	// writeMu serializes whole write transactions, from the first read to
	// the commit. It is what makes change-log order, index-update order
	// and commit order one and the same, and what lets the
	// post-construction walk read committed state no in-flight write can
	// contradict.
	writeMu sync.Mutex

	closed bool
	clock  sync.Mutex

	log utils.Logger
}

// Open opens (or creates) a store in dir.
func Open(dir string, opts Options) (*Store, error) {
	opts.SetDefaults()
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	wo := pebble.Sync
	funcCache, _ := lru.New[string, *ql.Func](1024)
	s := &Store{
		db:        db,
		dir:       dir,
		opts:      opts,
		wo:        wo,
		primary:   cursor.NewTree(db, []byte{keyspacePrimary}, wo),
		blobs:     blob.NewStore(db, wo),
		sindexes:  xsync.NewMapOf[string, *SindexDef](),
		funcCache: funcCache,
		changes:   NewChangeLog(opts.ChangeLogLimit),
		log:       opts.Logger,
	}
	if err := s.loadSindexDefs(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	s.clock.Lock()
	defer s.clock.Unlock()
	if s.closed {
		return rdberrors.ErrClosed
	}
	s.closed = true
	s.changes.Close()
	return s.db.Close()
}

func (s *Store) DB() *pebble.DB                     { return s.db }
func (s *Store) Dir() string                        { return s.dir }
func (s *Store) Changes() *ChangeLog                { return s.changes }
func (s *Store) PrimaryTree() *cursor.Tree          { return s.primary }
func (s *Store) Blobs() *blob.Store                 { return s.blobs }
func (s *Store) WriteOptions() *pebble.WriteOptions { return s.wo }

// NewTxn starts a write transaction over the store.
func (s *Store) NewTxn() *cursor.Txn {
	return cursor.NewTxn(s.db)
}

// PrimarySuperblock mints the hand-off token for the primary tree within
// txn.
func (s *Store) PrimarySuperblock(txn *cursor.Txn) *cursor.Superblock {
	return cursor.NewSuperblock(s.primary, txn)
}

// PrimaryKeyOf extracts and encodes the primary key of a document.
func (s *Store) PrimaryKeyOf(doc *datum.Datum) (datum.StoreKey, error) {
	if doc.Kind() != datum.KindObject {
		return nil, rdberrors.ErrNotAnObject
	}
	pk, ok := doc.Field(s.opts.PrimaryKeyField)
	if !ok {
		return nil, rdberrors.ErrPrimaryKey
	}
	return datum.PrimaryKey(pk)
}

// decodeStored resolves a stored value through r and decodes the document.
func (s *Store) decodeStored(r blob.Getter, value []byte) (*datum.Datum, error) {
	payload, err := s.blobs.Read(r, value)
	if err != nil {
		return nil, err
	}
	return datum.Decode(payload)
}

// compileFunc compiles a wire function through the shared cache, keyed by
// the wire bytes themselves.
func (s *Store) compileFunc(wire ql.WireFunc) (*ql.Func, error) {
	if fn, ok := s.funcCache.Get(string(wire)); ok {
		return fn, nil
	}
	fn, err := ql.Compile(wire)
	if err != nil {
		return nil, err
	}
	s.funcCache.Add(string(wire), fn)
	return fn, nil
}
