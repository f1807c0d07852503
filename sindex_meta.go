package rethinkdb

import (
	"context"
	"sort"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"github.com/learn-decentralized-systems/toytlv"

	"github.com/mukteshkrmishra/rethinkdb/cursor"
	"github.com/mukteshkrmishra/rethinkdb/ql"
	"github.com/mukteshkrmishra/rethinkdb/rdberrors"
)

// SindexDef is one secondary-index definition. It is immutable once
// stored; readiness flips exactly once, after post-construction finishes.
type SindexDef struct {
	ID    uuid.UUID
	Name  string
	Func  ql.WireFunc
	Multi bool
	Ready bool
}

const (
	sindexFlagMulti = 0x01
	sindexFlagReady = 0x02
)

// Definition record:
//
//	'X' ( 'I' id16, 'N' name, 'F' ..., 'G' flags )
func (d *SindexDef) tlv() []byte {
	flags := byte(0)
	if d.Multi {
		flags |= sindexFlagMulti
	}
	if d.Ready {
		flags |= sindexFlagReady
	}
	return toytlv.Record('X',
		toytlv.Record('I', d.ID[:]),
		toytlv.Record('N', []byte(d.Name)),
		d.Func,
		toytlv.Record('G', []byte{flags}),
	)
}

func parseSindexDef(data []byte) (*SindexDef, error) {
	body, rest := toytlv.Take('X', data)
	if body == nil || len(rest) != 0 {
		return nil, rdberrors.ErrBadSindexDef
	}
	id, body := toytlv.Take('I', body)
	if len(id) != 16 {
		return nil, rdberrors.ErrBadSindexDef
	}
	name, body := toytlv.Take('N', body)
	if name == nil {
		return nil, rdberrors.ErrBadSindexDef
	}
	fn, body := toytlv.Take('F', body)
	if fn == nil {
		return nil, rdberrors.ErrBadSindexDef
	}
	flags, _ := toytlv.Take('G', body)
	if len(flags) != 1 {
		return nil, rdberrors.ErrBadSindexDef
	}
	def := &SindexDef{
		Name:  string(name),
		Func:  toytlv.Record('F', fn),
		Multi: flags[0]&sindexFlagMulti != 0,
		Ready: flags[0]&sindexFlagReady != 0,
	}
	copy(def.ID[:], id)
	return def, nil
}

func metaSindexKey(name string) []byte {
	return append([]byte{keyspaceMeta, keyspaceSindex}, name...)
}

func (s *Store) loadSindexDefs() error {
	lower := []byte{keyspaceMeta, keyspaceSindex}
	upper := []byte{keyspaceMeta, keyspaceSindex + 1}
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer iter.Close()
	for valid := iter.First(); valid; valid = iter.Next() {
		def, err := parseSindexDef(iter.Value())
		if err != nil {
			return err
		}
		s.sindexes.Store(def.Name, def)
	}
	return iter.Error()
}

// CreateSindex registers a new secondary index. It starts out not ready;
// PostConstructSindexes populates it from existing documents and flips it
// ready.
func (s *Store) CreateSindex(ctx context.Context, name string, fn ql.WireFunc, multi bool) (*SindexDef, error) {
	if _, err := ql.Compile(fn); err != nil {
		return nil, err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	def := &SindexDef{ID: uuid.New(), Name: name, Func: fn, Multi: multi}
	if _, loaded := s.sindexes.LoadOrStore(name, def); loaded {
		return nil, rdberrors.ErrAlreadyExists
	}
	if err := s.db.Set(metaSindexKey(name), def.tlv(), s.wo); err != nil {
		s.sindexes.Delete(name)
		return nil, err
	}
	s.log.InfoCtx(ctx, "sindex created", "name", name, "id", def.ID.String(), "multi", multi)
	return def, nil
}

// MarkSindexReady flips an index to ready after its post-construction
// walk completes.
func (s *Store) MarkSindexReady(ctx context.Context, name string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	def, ok := s.sindexes.Load(name)
	if !ok {
		return rdberrors.ErrSindexUnknown
	}
	if def.Ready {
		return nil
	}
	ready := *def
	ready.Ready = true
	if err := s.db.Set(metaSindexKey(name), ready.tlv(), s.wo); err != nil {
		return err
	}
	s.sindexes.Store(name, &ready)
	s.log.InfoCtx(ctx, "sindex ready", "name", name, "id", def.ID.String())
	return nil
}

// DropSindex removes the definition and every entry of the index's tree.
// Taking the write lock keeps the range delete from racing a live update
// still writing into the tree.
func (s *Store) DropSindex(ctx context.Context, name string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	def, ok := s.sindexes.LoadAndDelete(name)
	if !ok {
		return rdberrors.ErrSindexUnknown
	}
	if err := s.db.Delete(metaSindexKey(name), s.wo); err != nil {
		return err
	}
	lower, upper := s.sindexTree(def).Bounds()
	if err := s.db.DeleteRange(lower, upper, s.wo); err != nil {
		return err
	}
	s.log.InfoCtx(ctx, "sindex dropped", "name", name, "id", def.ID.String())
	return nil
}

// Sindex looks up one definition.
func (s *Store) Sindex(name string) (*SindexDef, bool) {
	return s.sindexes.Load(name)
}

// Sindexes snapshots the current definitions, sorted by name.
func (s *Store) Sindexes() []*SindexDef {
	var defs []*SindexDef
	s.sindexes.Range(func(_ string, def *SindexDef) bool {
		defs = append(defs, def)
		return true
	})
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

func (s *Store) sindexTree(def *SindexDef) *cursor.Tree {
	prefix := append([]byte{keyspaceSindex}, def.ID[:]...)
	return cursor.NewTree(s.db, prefix, s.wo)
}

// SindexAccess is one acquired index within a sync operation: the
// definition, its tree, the compiled function, and the transaction the
// updates land in. The compile happens once per sync operation, through
// the store's shared cache.
type SindexAccess struct {
	Def  *SindexDef
	Tree *cursor.Tree
	Fn   *ql.Func
	txn  *cursor.Txn
}

// Superblock mints a fresh hand-off token over this access's tree. Each
// report processed against the index starts its own chain.
func (a *SindexAccess) Superblock() *cursor.Superblock {
	return cursor.NewSuperblock(a.Tree, a.txn)
}

// acquireSindexAccesses acquires the indexes a sync operation updates:
// every defined one for live writes and erases, or a named subset for the
// post-construction walker.
func (s *Store) acquireSindexAccesses(txn *cursor.Txn, only map[uuid.UUID]bool) ([]*SindexAccess, error) {
	var out []*SindexAccess
	var ferr error
	s.sindexes.Range(func(_ string, def *SindexDef) bool {
		if only != nil && !only[def.ID] {
			return true
		}
		fn, err := s.compileFunc(def.Func)
		if err != nil {
			ferr = err
			return false
		}
		out = append(out, &SindexAccess{Def: def, Tree: s.sindexTree(def), Fn: fn, txn: txn})
		return true
	})
	if ferr != nil {
		return nil, ferr
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Def.Name < out[j].Def.Name })
	return out, nil
}
