package marshal

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Object is a JSON object that preserves field order. Portable formats
// serialize nodes with a fixed canonical key order for diff-friendliness,
// and unrecognized fields must survive a round trip in their original
// position after the canonical set.
type Object struct {
	keys   []string
	values map[string]any
}

// NewObject creates an empty ordered object.
func NewObject() *Object {
	return &Object{values: make(map[string]any)}
}

// Set appends the field, or replaces its value keeping the position.
func (o *Object) Set(key string, value any) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

// Get returns the value of a field.
func (o *Object) Get(key string) (any, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Has reports whether the field is present.
func (o *Object) Has(key string) bool {
	_, ok := o.values[key]
	return ok
}

// Delete removes the field.
func (o *Object) Delete(key string) {
	if _, ok := o.values[key]; !ok {
		return
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Rename changes the key of a field, keeping its position and value.
func (o *Object) Rename(from, to string) {
	v, ok := o.values[from]
	if !ok || from == to {
		return
	}
	delete(o.values, from)
	o.values[to] = v
	for i, k := range o.keys {
		if k == from {
			o.keys[i] = to
			break
		}
	}
}

// Keys returns the field names in order.
func (o *Object) Keys() []string {
	keys := make([]string, len(o.keys))
	copy(keys, o.keys)
	return keys
}

// Len returns the number of fields.
func (o *Object) Len() int {
	return len(o.keys)
}

// Clone returns a copy of the object whose top-level fields can be
// mutated without affecting the original. Nested values are shared.
func (o *Object) Clone() *Object {
	clone := NewObject()
	for _, key := range o.keys {
		clone.Set(key, o.values[key])
	}
	return clone
}

// GetString returns a string field, or "" when absent or not a string.
func (o *Object) GetString(key string) string {
	if s, ok := o.values[key].(string); ok {
		return s
	}
	return ""
}

// GetInt64 returns a numeric field as int64.
func (o *Object) GetInt64(key string) (int64, bool) {
	return asInt64(o.values[key])
}

// GetBool returns a boolean field, or false when absent.
func (o *Object) GetBool(key string) bool {
	b, ok := o.values[key].(bool)
	return ok && b
}

// GetObject returns a nested object field, or nil.
func (o *Object) GetObject(key string) *Object {
	nested, _ := o.values[key].(*Object)
	return nested
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return i, true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// Reorder rearranges the fields so that the canonical keys come first, in
// canonical order; any remaining fields follow in their original order.
func (o *Object) Reorder(canonical []string) {
	ordered := make([]string, 0, len(o.keys))
	for _, key := range canonical {
		if _, ok := o.values[key]; ok {
			ordered = append(ordered, key)
		}
	}
	inCanonical := make(map[string]struct{}, len(ordered))
	for _, key := range ordered {
		inCanonical[key] = struct{}{}
	}
	for _, key := range o.keys {
		if _, ok := inCanonical[key]; !ok {
			ordered = append(ordered, key)
		}
	}
	o.keys = ordered
}

// MarshalJSON encodes the object preserving field order.
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		value, err := json.Marshal(o.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object preserving field order. Numbers are
// kept as json.Number to avoid float rounding of epoch timestamps; nested
// objects decode as *Object.
func (o *Object) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}

	parsed, err := decodeObject(dec)
	if err != nil {
		return err
	}

	*o = *parsed
	return nil
}

func decodeObject(dec *json.Decoder) (*Object, error) {
	obj := NewObject()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		value, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		obj.Set(key, value)
	}
	// consume closing brace
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return obj, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			var arr []any
			for dec.More() {
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", t)
		}
	default:
		return tok, nil
	}
}
