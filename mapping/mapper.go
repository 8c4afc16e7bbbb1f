package mapping

import (
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/searchodm/convert"
)

// Mappable is implemented by entity types to declare their index and fields.
// Implement it with a value receiver:
//
//	func (Movie) Mapping(m *mapping.Mapper[Movie]) {
//		m.Index("movies")
//		mapping.ID(m, "id", func(e *Movie) *string { return &e.ID })
//		mapping.Attr(m, "title", func(e *Movie) *string { return &e.Title })
//		mapping.List(m, "genres", func(e *Movie) *[]string { return &e.Genres })
//	}
//
// Mapping is called once per Store; it must not depend on the receiver's value.
type Mappable[T any] interface {
	Mapping(m *Mapper[T])
}

// Mapper collects the declarations of one entity type.
type Mapper[T any] struct {
	index    string
	indexSet bool

	fields    []Field
	accessors []accessor[T]
	explicit  int // number of ID declarations
	err       error
}

// accessor reads and writes one field of a T through the engine.
type accessor[T any] struct {
	get func(e *Engine, entity *T) (any, error)
	set func(e *Engine, entity *T, wire any) error
}

// Index declares the name of the index documents of T are stored in.
func (m *Mapper[T]) Index(name string) {
	if m.indexSet && m.index != name {
		m.fail(errors.Newf("conflicting index names %q and %q", m.index, name))
		return
	}
	m.index = name
	m.indexSet = true
}

func (m *Mapper[T]) fail(err error) {
	if m.err == nil {
		m.err = err
	}
}

// scalarType fails the mapping when typ has no document form of its own. Byte slices
// and byte arrays (uuid.UUID, ksuid.KSUID) are scalars written through converters.
func (m *Mapper[T]) scalarType(name string, typ reflect.Type) bool {
	switch typ.Kind() {
	case reflect.Slice, reflect.Array:
		if typ.Elem().Kind() == reflect.Uint8 {
			return true
		}
	case reflect.Map:
	default:
		return true
	}
	m.fail(errors.Newf("field %q: %s is not a scalar, declare collections with List", name, typ))
	return false
}

func (m *Mapper[T]) add(f Field, acc accessor[T]) {
	if strings.TrimSpace(f.Name) == "" {
		m.fail(errors.Newf("blank wire name for field #%d", len(m.fields)))
		return
	}
	for _, existing := range m.fields {
		if existing.Name == f.Name {
			m.fail(errors.Newf("duplicate wire name %q", f.Name))
			return
		}
	}
	if f.Identifier {
		m.explicit++
	}
	m.fields = append(m.fields, f)
	m.accessors = append(m.accessors, acc)
}

// ID declares the identifier field. An entity without an ID declaration falls back to
// the field whose wire name is "id".
func ID[T, V any](m *Mapper[T], name string, ref func(*T) *V) {
	if !m.scalarType(name, reflect.TypeFor[V]()) {
		return
	}
	f, acc := scalar(name, ref)
	f.Identifier = true
	m.add(f, acc)
}

// Attr declares a scalar field. Values of Mappable types are written as nested documents.
// Slices, arrays and maps are rejected; declare collections with List.
func Attr[T, V any](m *Mapper[T], name string, ref func(*T) *V) {
	if !m.scalarType(name, reflect.TypeFor[V]()) {
		return
	}
	m.add(scalar(name, ref))
}

// Embed declares a nested entity written as a nested document.
func Embed[T any, N Mappable[N]](m *Mapper[T], name string, ref func(*T) *N) {
	f, acc := scalar(name, ref)
	f.Embedded = true
	m.add(f, acc)
}

// Ptr declares a nullable field; a nil pointer is written as null.
func Ptr[T, V any](m *Mapper[T], name string, ref func(*T) **V) {
	if !m.scalarType(name, reflect.TypeFor[V]()) {
		return
	}
	f := Field{Name: name, Type: reflect.TypeFor[V](), Nullable: true}
	m.add(f, accessor[T]{
		get: func(e *Engine, entity *T) (any, error) {
			p := *ref(entity)
			if p == nil {
				return nil, nil
			}
			return encode(e, *p)
		},
		set: func(e *Engine, entity *T, wire any) error {
			if wire == nil {
				*ref(entity) = nil
				return nil
			}
			v, err := decode[V](e, wire)
			if err != nil {
				return err
			}
			*ref(entity) = &v
			return nil
		},
	})
}

// List declares a collection field, converted element-wise in order. A nil slice is
// written as null.
func List[T, V any](m *Mapper[T], name string, ref func(*T) *[]V) {
	if !m.scalarType(name, reflect.TypeFor[V]()) {
		return
	}
	f := Field{Name: name, Type: reflect.TypeFor[V](), Nullable: true, Collection: true}
	m.add(f, accessor[T]{
		get: func(e *Engine, entity *T) (any, error) {
			items := *ref(entity)
			if items == nil {
				return nil, nil
			}
			out := make([]any, len(items))
			for i, item := range items {
				w, err := encode(e, item)
				if err != nil {
					return nil, errors.Wrapf(err, "element %d", i)
				}
				out[i] = w
			}
			return out, nil
		},
		set: func(e *Engine, entity *T, wire any) error {
			if wire == nil {
				*ref(entity) = nil
				return nil
			}
			raw, ok := wire.([]any)
			if !ok {
				return errors.Wrapf(convert.ErrConversion, "expected array, got %T", wire)
			}
			out := make([]V, len(raw))
			for i, item := range raw {
				v, err := decode[V](e, item)
				if err != nil {
					return errors.Wrapf(err, "element %d", i)
				}
				out[i] = v
			}
			*ref(entity) = out
			return nil
		},
	})
}

func scalar[T, V any](name string, ref func(*T) *V) (Field, accessor[T]) {
	typ := reflect.TypeFor[V]()
	f := Field{Name: name, Type: typ, Nullable: nillable(typ)}
	return f, accessor[T]{
		get: func(e *Engine, entity *T) (any, error) {
			return encode(e, *ref(entity))
		},
		set: func(e *Engine, entity *T, wire any) error {
			v, err := decode[V](e, wire)
			if err != nil {
				return err
			}
			*ref(entity) = v
			return nil
		},
	}
}

func nillable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return true
	default:
		return false
	}
}
