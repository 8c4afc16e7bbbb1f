package mapping

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/searchodm/convert"
	"github.com/letmevibethatforyou/searchodm/document"
)

// Engine converts entities to documents and back using a Store and a Registry.
type Engine struct {
	store    *Store
	registry *convert.Registry
}

// NewEngine creates an engine. A nil store or registry is replaced by a fresh one.
func NewEngine(store *Store, registry *convert.Registry) *Engine {
	if store == nil {
		store = NewStore()
	}
	if registry == nil {
		registry = convert.New()
	}
	return &Engine{store: store, registry: registry}
}

// Store returns the engine's metadata store.
func (e *Engine) Store() *Store { return e.store }

// Registry returns the engine's converter registry.
func (e *Engine) Registry() *convert.Registry { return e.registry }

// Write stores every field of entity into target in declaration order. The identifier is
// also set as target's side-channel id unless it is null or empty.
// On error target is left unmodified.
func Write[T any](e *Engine, entity *T, target *document.Document) error {
	ent, err := EntityFor[T](e.store)
	if err != nil {
		return err
	}
	values, err := encodeFields(e, ent, entity)
	if err != nil {
		return err
	}

	for i, f := range ent.fields {
		if err := target.Set(f.Name, values[i]); err != nil {
			return errors.Wrapf(err, "%s.%s", ent.typ, f.Name)
		}
	}
	if id, ok := idString(values[ent.idIdx]); ok {
		target.SetID(id)
	}
	return nil
}

// ToDocument writes entity into a new document.
func ToDocument[T any](e *Engine, entity *T) (*document.Document, error) {
	doc := document.New()
	if err := Write(e, entity, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Read creates a new T and assigns every field present in source. Keys without a
// matching field are ignored; missing keys leave zero values. When the identifier key is
// absent, the side-channel id is used instead.
func Read[T any](e *Engine, source *document.Document) (*T, error) {
	ent, err := EntityFor[T](e.store)
	if err != nil {
		return nil, err
	}
	out, err := decodeFields(e, ent, source)
	if err != nil {
		return nil, err
	}

	idField := ent.fields[ent.idIdx]
	if !source.Has(idField.Name) && source.HasID() {
		id, _ := source.ID()
		var wire any = id
		if isNumeric(idField.Type) {
			wire = json.Number(id)
		}
		if err := ent.accessors[ent.idIdx].set(e, out, wire); err != nil {
			return nil, errors.Wrapf(err, "%s.%s", ent.typ, idField.Name)
		}
	}
	return out, nil
}

func encodeFields[T any](e *Engine, ent *Entity[T], entity *T) ([]any, error) {
	values := make([]any, len(ent.fields))
	for i, f := range ent.fields {
		v, err := ent.accessors[i].get(e, entity)
		if err != nil {
			return nil, errors.Wrapf(err, "%s.%s", ent.typ, f.Name)
		}
		values[i] = v
	}
	return values, nil
}

func decodeFields[T any](e *Engine, ent *Entity[T], source *document.Document) (*T, error) {
	out := new(T)
	var err error
	source.Range(func(key string, value any) bool {
		i, ok := ent.byName[key]
		if !ok {
			return true
		}
		if setErr := ent.accessors[i].set(e, out, value); setErr != nil {
			err = errors.Wrapf(setErr, "%s.%s", ent.typ, key)
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// encode converts a native value to its wire form. Mappable values become nested
// documents.
func encode[V any](e *Engine, v V) (any, error) {
	if nestable[V](e.store) {
		ent, err := shapeFor[V](e.store)
		if err != nil {
			return nil, err
		}
		values, err := encodeFields(e, ent, &v)
		if err != nil {
			return nil, err
		}
		doc := document.New()
		for i, f := range ent.fields {
			if err := doc.Set(f.Name, values[i]); err != nil {
				return nil, err
			}
		}
		return doc, nil
	}
	return e.registry.ToWire(v)
}

// decode converts a wire value into V. A null wire value yields V's zero value.
func decode[V any](e *Engine, wire any) (V, error) {
	var zero V
	if wire == nil {
		return zero, nil
	}

	if nestable[V](e.store) {
		doc, ok := wire.(*document.Document)
		if !ok {
			return zero, errors.Wrapf(convert.ErrConversion, "expected nested document for %s, got %T", reflect.TypeFor[V](), wire)
		}
		ent, err := shapeFor[V](e.store)
		if err != nil {
			return zero, err
		}
		out, err := decodeFields(e, ent, doc)
		if err != nil {
			return zero, err
		}
		return *out, nil
	}

	out, err := e.registry.Convert(wire, reflect.TypeFor[V]())
	if err != nil {
		return zero, err
	}
	if out == nil {
		return zero, nil
	}
	v, ok := out.(V)
	if !ok {
		return zero, errors.Wrapf(convert.ErrConversion, "converted %T is not %s", out, reflect.TypeFor[V]())
	}
	return v, nil
}

// nestable reports whether V has a mapping and is therefore written as a nested document.
func nestable[V any](s *Store) bool {
	s.declMu.RLock()
	_, declared := s.decls[reflect.TypeFor[V]()]
	s.declMu.RUnlock()
	if declared {
		return true
	}

	var zero V
	if _, ok := any(zero).(Mappable[V]); ok {
		return true
	}
	_, ok := any(&zero).(Mappable[V])
	return ok
}

func isNumeric(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

func idString(wire any) (string, bool) {
	switch v := wire.(type) {
	case nil:
		return "", false
	case string:
		return v, v != ""
	default:
		return fmt.Sprint(v), true
	}
}

// FromDocument is Read with the arguments in the order of ToDocument.
func FromDocument[T any](e *Engine, source *document.Document) (*T, error) {
	return Read[T](e, source)
}
