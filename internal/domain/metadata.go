package domain

import (
	"encoding/json"
	"fmt"
	"sort"
)

// MetaKind identifies the value kind held by a MetaValue.
type MetaKind int

const (
	MetaString MetaKind = iota
	MetaNumber
	MetaBool
	MetaStringList
)

// MetaValue is one typed metadata value. The kind set is closed: string,
// number, bool, or string list.
type MetaValue struct {
	Kind MetaKind
	Str  string
	Num  float64
	Bool bool
	List []string
}

// Metadata is the opaque key/value map carried on a chunk (price, url, tags).
type Metadata map[string]MetaValue

func String(s string) MetaValue       { return MetaValue{Kind: MetaString, Str: s} }
func Number(n float64) MetaValue      { return MetaValue{Kind: MetaNumber, Num: n} }
func Bool(b bool) MetaValue           { return MetaValue{Kind: MetaBool, Bool: b} }
func StringList(l []string) MetaValue { return MetaValue{Kind: MetaStringList, List: l} }

// GetString returns the string value for key, or "" if absent or not a string.
func (m Metadata) GetString(key string) string {
	v, ok := m[key]
	if !ok || v.Kind != MetaString {
		return ""
	}
	return v.Str
}

// MarshalJSON encodes metadata with sorted keys so the at-rest form is
// deterministic for identical input.
func (m Metadata) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := []byte{'{'}
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := m[k].marshalValue()
		if err != nil {
			return nil, err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	return append(buf, '}'), nil
}

func (v MetaValue) marshalValue() ([]byte, error) {
	switch v.Kind {
	case MetaString:
		return json.Marshal(v.Str)
	case MetaNumber:
		return json.Marshal(v.Num)
	case MetaBool:
		return json.Marshal(v.Bool)
	case MetaStringList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	default:
		return nil, fmt.Errorf("unknown metadata kind: %d", v.Kind)
	}
}

// UnmarshalJSON decodes metadata, mapping JSON value types onto the closed
// kind set. Unsupported value types (objects, mixed arrays) are rejected.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*m = nil
		return nil
	}

	out := make(Metadata, len(raw))
	for k, rv := range raw {
		v, err := unmarshalValue(rv)
		if err != nil {
			return fmt.Errorf("metadata key %q: %w", k, err)
		}
		out[k] = v
	}
	*m = out
	return nil
}

func unmarshalValue(data []byte) (MetaValue, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return String(s), nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		return Number(n), nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		return Bool(b), nil
	}
	var l []string
	if err := json.Unmarshal(data, &l); err == nil {
		return StringList(l), nil
	}
	return MetaValue{}, fmt.Errorf("unsupported value type")
}
