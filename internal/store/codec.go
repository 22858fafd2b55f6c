package store

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Encode converts a bson-tagged struct or a map into document data. An
// "_id" string field, if set, is kept so that inserts can honor it.
func Encode(v interface{}) (map[string]interface{}, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return Plain(m).(map[string]interface{}), nil
}

// Decode fills v from doc using the bson tags of v.
func Decode(doc Document, v interface{}) error {
	m := make(map[string]interface{}, len(doc.Data)+1)
	for k, val := range doc.Data {
		m[k] = val
	}
	m["_id"] = doc.ID
	raw, err := bson.Marshal(m)
	if err != nil {
		return fmt.Errorf("decode document %s: %w", doc.ID, err)
	}
	if err := bson.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document %s: %w", doc.ID, err)
	}
	return nil
}

// NormalizeValue converts a single field value to the representation the
// store keeps: nested structs become maps, times become primitive.DateTime.
func NormalizeValue(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, ErrUndefinedValue
	}
	raw, err := bson.Marshal(bson.M{"v": v})
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	out := Plain(m["v"])
	if err := CheckDefined(out); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckDefined rejects explicit nil values anywhere inside v.
func CheckDefined(v interface{}) error {
	switch t := v.(type) {
	case nil:
		return ErrUndefinedValue
	case map[string]interface{}:
		for k, val := range t {
			if err := CheckDefined(val); err != nil {
				return fmt.Errorf("field %q: %w", k, err)
			}
		}
	case []interface{}:
		for i, val := range t {
			if err := CheckDefined(val); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
	}
	return nil
}

// Plain rewrites driver container types (primitive.M, primitive.D,
// primitive.A) into plain maps and slices, recursively.
func Plain(v interface{}) interface{} {
	switch t := v.(type) {
	case primitive.M:
		return plainMap(t)
	case map[string]interface{}:
		return plainMap(t)
	case primitive.D:
		m := make(map[string]interface{}, len(t))
		for _, e := range t {
			m[e.Key] = Plain(e.Value)
		}
		return m
	case primitive.A:
		return plainSlice(t)
	case []interface{}:
		return plainSlice(t)
	}
	return v
}

func plainMap(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, val := range in {
		out[k] = Plain(val)
	}
	return out
}

func plainSlice(in []interface{}) []interface{} {
	out := make([]interface{}, len(in))
	for i, val := range in {
		out[i] = Plain(val)
	}
	return out
}
