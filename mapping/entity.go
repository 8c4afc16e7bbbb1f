// Package mapping resolves entity metadata once per type and converts entities to and
// from documents.
package mapping

import (
	"reflect"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/searchodm/internal/codes"
	"golang.org/x/sync/singleflight"
)

// ErrMapping is returned when entity metadata cannot be resolved.
var ErrMapping = codes.New(codes.Mapping, "searchodm: mapping error")

// DefaultIDName is the wire name used to find the identifier when none is declared.
const DefaultIDName = "id"

// Field describes one persistable field. All fields are read-only.
type Field struct {
	// Name is the wire name.
	Name string
	// Type is the native type; for collections, the element type.
	Type       reflect.Type
	Nullable   bool
	Collection bool
	Identifier bool
	Embedded   bool
}

// Entity is the immutable description of an entity type.
type Entity[T any] struct {
	typ       reflect.Type
	indexName string
	indexSet  bool
	idIdx     int // -1 when absent
	explicit  int
	fields    []Field
	accessors []accessor[T]
	byName    map[string]int
}

// Type returns the described Go type.
func (ent *Entity[T]) Type() reflect.Type { return ent.typ }

// IndexName returns the index documents of T are stored in.
func (ent *Entity[T]) IndexName() string { return ent.indexName }

// IDField returns the identifier field.
func (ent *Entity[T]) IDField() Field { return ent.fields[ent.idIdx] }

// Fields returns the fields in declaration order.
func (ent *Entity[T]) Fields() []Field {
	out := make([]Field, len(ent.fields))
	copy(out, ent.fields)
	return out
}

// Field finds a field by wire name.
func (ent *Entity[T]) Field(name string) (Field, bool) {
	i, ok := ent.byName[name]
	if !ok {
		return Field{}, false
	}
	return ent.fields[i], true
}

func (ent *Entity[T]) validate() error {
	if ent.explicit > 1 {
		return errors.Wrapf(ErrMapping, "%s: ambiguous identifier, %d fields declared as id", ent.typ, ent.explicit)
	}
	if ent.idIdx < 0 {
		return errors.Wrapf(ErrMapping, "%s: no identifier field", ent.typ)
	}
	if ent.indexName == "" {
		return errors.Wrapf(ErrMapping, "%s: no index name declared", ent.typ)
	}
	return nil
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithRelaxedIndexNames makes entities without an Index declaration default to the
// simple name of their Go type.
func WithRelaxedIndexNames() StoreOption {
	return func(s *Store) {
		s.relaxed = true
	}
}

// Store caches entity metadata per type. Entries are built on first access, published
// atomically and never modified afterwards; failed resolutions are not cached.
// A Store is safe for concurrent use.
type Store struct {
	relaxed bool

	entries sync.Map // reflect.Type -> *Entity[T]
	group   singleflight.Group

	declMu sync.RWMutex
	decls  map[reflect.Type]any // reflect.Type -> func(*Mapper[T])
}

// NewStore creates an empty metadata store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{decls: make(map[reflect.Type]any)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Declare registers the mapping of a type that does not implement Mappable itself.
// It must be called before the type is first resolved.
func Declare[T any](s *Store, fn func(m *Mapper[T])) {
	s.declMu.Lock()
	defer s.declMu.Unlock()
	s.decls[reflect.TypeFor[T]()] = fn
}

// EntityFor returns the metadata of T, resolving it on first access.
// Repeated calls return the same *Entity.
func EntityFor[T any](s *Store) (*Entity[T], error) {
	ent, err := shapeFor[T](s)
	if err != nil {
		return nil, err
	}
	if err := ent.validate(); err != nil {
		return nil, err
	}
	return ent, nil
}

// shapeFor resolves T's fields without requiring an index name or identifier, which
// nested entities do not need.
func shapeFor[T any](s *Store) (*Entity[T], error) {
	typ := reflect.TypeFor[T]()
	if v, ok := s.entries.Load(typ); ok {
		return v.(*Entity[T]), nil
	}

	v, err, _ := s.group.Do(typ.PkgPath()+"."+typ.String(), func() (any, error) {
		if v, ok := s.entries.Load(typ); ok {
			return v, nil
		}
		ent, err := build[T](s, typ)
		if err != nil {
			return nil, err
		}
		actual, _ := s.entries.LoadOrStore(typ, ent)
		return actual, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entity[T]), nil
}

func build[T any](s *Store, typ reflect.Type) (*Entity[T], error) {
	m := &Mapper[T]{}
	if err := describe(s, m, typ); err != nil {
		return nil, err
	}
	if m.err != nil {
		return nil, errors.Wrapf(ErrMapping, "%s: %v", typ, m.err)
	}
	if m.indexSet && strings.TrimSpace(m.index) == "" {
		return nil, errors.Wrapf(ErrMapping, "%s: blank index name", typ)
	}

	ent := &Entity[T]{
		typ:       typ,
		indexName: m.index,
		indexSet:  m.indexSet,
		idIdx:     -1,
		explicit:  m.explicit,
		fields:    m.fields,
		accessors: m.accessors,
		byName:    make(map[string]int, len(m.fields)),
	}
	if !ent.indexSet && s.relaxed {
		ent.indexName = typ.Name()
	}

	for i, f := range ent.fields {
		ent.byName[f.Name] = i
		if f.Identifier && ent.idIdx < 0 {
			ent.idIdx = i
		}
	}
	if ent.idIdx < 0 {
		if i, ok := ent.byName[DefaultIDName]; ok {
			ent.idIdx = i
			ent.fields[i].Identifier = true
		}
	}
	return ent, nil
}

func describe[T any](s *Store, m *Mapper[T], typ reflect.Type) error {
	s.declMu.RLock()
	decl, ok := s.decls[typ]
	s.declMu.RUnlock()
	if ok {
		decl.(func(*Mapper[T]))(m)
		return nil
	}

	var zero T
	if mp, ok := any(zero).(Mappable[T]); ok {
		mp.Mapping(m)
		return nil
	}
	if mp, ok := any(&zero).(Mappable[T]); ok {
		mp.Mapping(m)
		return nil
	}
	return errors.Wrapf(ErrMapping, "%s: no mapping declared", typ)
}
