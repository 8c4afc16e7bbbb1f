package document

import (
	"encoding/json"

	"github.com/buger/jsonparser"
	"github.com/cockroachdb/errors"
)

// Parse parses JSON object text into a Document, preserving key order at every nesting level.
// Objects become *Document, arrays []any and numbers json.Number.
func Parse(data []byte) (*Document, error) {
	value, dataType, _, err := jsonparser.Get(data)
	if err != nil {
		return nil, errors.Wrap(err, "document: parse")
	}
	if dataType != jsonparser.Object {
		return nil, errors.Newf("document: expected JSON object, got %v", dataType)
	}
	return parseObject(value)
}

// ParseArray parses a JSON array of objects.
func ParseArray(data []byte) ([]*Document, error) {
	value, dataType, _, err := jsonparser.Get(data)
	if err != nil {
		return nil, errors.Wrap(err, "document: parse")
	}
	if dataType != jsonparser.Array {
		return nil, errors.Newf("document: expected JSON array, got %v", dataType)
	}

	var docs []*Document
	var itemErr error
	_, err = jsonparser.ArrayEach(value, func(item []byte, dt jsonparser.ValueType, _ int, err error) {
		if itemErr != nil {
			return
		}
		if err != nil {
			itemErr = err
			return
		}
		if dt != jsonparser.Object {
			itemErr = errors.Newf("document: expected JSON object in array, got %v", dt)
			return
		}
		doc, err := parseObject(item)
		if err != nil {
			itemErr = err
			return
		}
		docs = append(docs, doc)
	})
	if err != nil {
		return nil, errors.Wrap(err, "document: parse array")
	}
	if itemErr != nil {
		return nil, itemErr
	}
	return docs, nil
}

func parseObject(data []byte) (*Document, error) {
	doc := New()
	err := jsonparser.ObjectEach(data, func(key, value []byte, dt jsonparser.ValueType, _ int) error {
		name, err := jsonparser.ParseString(key)
		if err != nil {
			return errors.Wrap(err, "document: parse key")
		}
		v, err := parseValue(value, dt)
		if err != nil {
			return errors.Wrapf(err, "document: field %q", name)
		}
		return doc.Set(name, v)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func parseValue(value []byte, dt jsonparser.ValueType) (any, error) {
	switch dt {
	case jsonparser.String:
		return jsonparser.ParseString(value)
	case jsonparser.Number:
		return json.Number(string(value)), nil
	case jsonparser.Boolean:
		return jsonparser.ParseBoolean(value)
	case jsonparser.Null:
		return nil, nil
	case jsonparser.Object:
		return parseObject(value)
	case jsonparser.Array:
		items := []any{}
		var itemErr error
		_, err := jsonparser.ArrayEach(value, func(item []byte, idt jsonparser.ValueType, _ int, err error) {
			if itemErr != nil {
				return
			}
			if err != nil {
				itemErr = err
				return
			}
			v, err := parseValue(item, idt)
			if err != nil {
				itemErr = err
				return
			}
			items = append(items, v)
		})
		if err != nil {
			return nil, err
		}
		if itemErr != nil {
			return nil, itemErr
		}
		return items, nil
	default:
		return nil, errors.Newf("unsupported JSON value type %v", dt)
	}
}
