// Package document provides the ordered, string-keyed record exchanged with the search engine.
package document

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/cockroachdb/errors"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	// ErrInvalidKey is returned when a field is set with an empty key.
	ErrInvalidKey = errors.New("document: empty key")

	// ErrIDNotSet is returned when the side-channel identifier is read before it is set.
	ErrIDNotSet = errors.New("document: id not set")
)

// Document is an ordered mapping from field name to value.
// Values are scalars, *Document, []any of those, or nil.
// Iteration and JSON rendering follow insertion order.
type Document struct {
	fields *orderedmap.OrderedMap[string, any]
	id     string
	hasID  bool
}

// New creates an empty document.
func New() *Document {
	return &Document{fields: orderedmap.New[string, any]()}
}

// m returns the field map, allocating it for zero-value documents.
func (d *Document) m() *orderedmap.OrderedMap[string, any] {
	if d.fields == nil {
		d.fields = orderedmap.New[string, any]()
	}
	return d.fields
}

// Set stores value under key. Re-setting an existing key keeps its original position.
func (d *Document) Set(key string, value any) error {
	if key == "" {
		return ErrInvalidKey
	}
	d.m().Set(key, value)
	return nil
}

// Get returns the value stored under key.
func (d *Document) Get(key string) (any, bool) {
	return d.m().Get(key)
}

// Delete removes key and returns the removed value.
func (d *Document) Delete(key string) (any, bool) {
	return d.m().Delete(key)
}

// Has reports whether key is present.
func (d *Document) Has(key string) bool {
	_, ok := d.m().Get(key)
	return ok
}

// Len returns the number of fields.
func (d *Document) Len() int {
	return d.m().Len()
}

// Keys returns the field names in insertion order.
func (d *Document) Keys() []string {
	keys := make([]string, 0, d.Len())
	for pair := d.m().Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Range calls fn for every field in insertion order until fn returns false.
func (d *Document) Range(fn func(key string, value any) bool) {
	for pair := d.m().Oldest(); pair != nil; pair = pair.Next() {
		if !fn(pair.Key, pair.Value) {
			return
		}
	}
}

// SetID sets the side-channel identifier, which travels outside the field map.
func (d *Document) SetID(id string) {
	d.id = id
	d.hasID = true
}

// ID returns the side-channel identifier.
func (d *Document) ID() (string, error) {
	if !d.hasID {
		return "", ErrIDNotSet
	}
	return d.id, nil
}

// HasID reports whether the side-channel identifier has been set.
func (d *Document) HasID() bool {
	return d.hasID
}

// Clone returns a deep copy of the document, nested documents and slices included.
func (d *Document) Clone() *Document {
	out := New()
	out.id, out.hasID = d.id, d.hasID
	d.Range(func(key string, value any) bool {
		out.m().Set(key, cloneValue(value))
		return true
	})
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case *Document:
		return val.Clone()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// ToMap converts the document into plain nested maps. Ordering is lost.
func (d *Document) ToMap() map[string]any {
	out := make(map[string]any, d.Len())
	d.Range(func(key string, value any) bool {
		out[key] = toPlain(value)
		return true
	})
	return out
}

func toPlain(v any) any {
	switch val := v.(type) {
	case *Document:
		return val.ToMap()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = toPlain(item)
		}
		return out
	default:
		return v
	}
}

// FromMap builds a document from a plain map. Keys are sorted so the result is deterministic.
func FromMap(m map[string]any) *Document {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	d := New()
	for _, k := range keys {
		if k == "" {
			continue
		}
		d.m().Set(k, fromPlain(m[k]))
	}
	return d
}

func fromPlain(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return FromMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = fromPlain(item)
		}
		return out
	default:
		return v
	}
}

// MarshalJSON renders the document as a JSON object in insertion order.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	var err error
	d.Range(func(key string, value any) bool {
		if !first {
			buf.WriteByte(',')
		}
		first = false

		var k, v []byte
		if k, err = json.Marshal(key); err != nil {
			return false
		}
		if v, err = json.Marshal(value); err != nil {
			err = errors.Wrapf(err, "document: field %q", key)
			return false
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
		return true
	})
	if err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON replaces the document's fields with the parsed JSON object.
func (d *Document) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	d.fields = parsed.fields
	return nil
}
