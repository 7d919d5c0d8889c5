// Package parameters implements the C5 parameter & setup engine: profile
// revision lifecycle, the dynamic parameter catalog, the static setup
// field surface, and HTTP-override TTL tracking. Grounded on
// original_source's app/repositories/parameter_profiles.py and
// app/services/parameter_dynamic_catalog.py.
package parameters

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind discriminates the closed Value sum type.
type Kind int

const (
	KindNumber Kind = iota
	KindText
	KindBool
	KindList
	KindMap
)

// Value is a closed sum type (Number|Text|Bool|List|Map) standing in for
// the dynamically-typed JSON payload fragments the parameter engine
// merges into profile revisions, modeled as a tagged union instead of
// `any` so callers exhaustively switch on Kind.
type Value struct {
	Kind   Kind
	Number float64
	Text   string
	Bool   bool
	List   []Value
	Map    map[string]Value
}

func NumberValue(v float64) Value        { return Value{Kind: KindNumber, Number: v} }
func TextValue(v string) Value           { return Value{Kind: KindText, Text: v} }
func BoolValue(v bool) Value             { return Value{Kind: KindBool, Bool: v} }
func ListValue(v []Value) Value          { return Value{Kind: KindList, List: v} }
func MapValue(v map[string]Value) Value  { return Value{Kind: KindMap, Map: v} }

// ToJSON converts a Value tree into plain JSON-marshalable data.
func (v Value) ToJSON() any {
	switch v.Kind {
	case KindNumber:
		return v.Number
	case KindText:
		return v.Text
	case KindBool:
		return v.Bool
	case KindList:
		items := make([]any, len(v.List))
		for i, item := range v.List {
			items[i] = item.ToJSON()
		}
		return items
	case KindMap:
		obj := make(map[string]any, len(v.Map))
		for k, item := range v.Map {
			obj[k] = item.ToJSON()
		}
		return obj
	default:
		return nil
	}
}

// ValueFromJSON builds a Value tree out of decoded JSON (the product of
// json.Unmarshal into an `any`).
func ValueFromJSON(raw any) Value {
	switch v := raw.(type) {
	case float64:
		return NumberValue(v)
	case string:
		return TextValue(v)
	case bool:
		return BoolValue(v)
	case []any:
		items := make([]Value, len(v))
		for i, item := range v {
			items[i] = ValueFromJSON(item)
		}
		return ListValue(items)
	case map[string]any:
		obj := make(map[string]Value, len(v))
		for k, item := range v {
			obj[k] = ValueFromJSON(item)
		}
		return MapValue(obj)
	default:
		return Value{Kind: KindText, Text: ""}
	}
}

// MarshalPayload renders a root Map Value as compact, key-sorted JSON —
// the canonical form stored in parameter_profile_revisions.payload_json.
func MarshalPayload(root Value) (string, error) {
	sorted, err := marshalSorted(root.ToJSON())
	if err != nil {
		return "", err
	}
	return sorted, nil
}

func marshalSorted(v any) (string, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			keyJSON, _ := json.Marshal(k)
			b.Write(keyJSON)
			b.WriteByte(':')
			nested, err := marshalSorted(val[k])
			if err != nil {
				return "", err
			}
			b.WriteString(nested)
		}
		b.WriteByte('}')
		return b.String(), nil
	case []any:
		var b strings.Builder
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			nested, err := marshalSorted(item)
			if err != nil {
				return "", err
			}
			b.WriteString(nested)
		}
		b.WriteByte(']')
		return b.String(), nil
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(encoded), nil
	}
}

// MergeAtPath merges value into root at a dotted path, creating
// intermediate maps as needed. A path segment of the form "name[]" with a
// non-empty selector matches (or creates) the list element whose "id"
// field equals selector; e.g. "devices.batteries[].min_soc_percentage"
// with selector "lfp" addresses the batteries[] entry with id "lfp".
func MergeAtPath(root Value, path string, selector string, value Value) (Value, error) {
	if root.Kind != KindMap {
		root = MapValue(map[string]Value{})
	}
	segments := strings.Split(path, ".")
	return mergeSegments(root, segments, selector, value)
}

func mergeSegments(node Value, segments []string, selector string, value Value) (Value, error) {
	if len(segments) == 0 {
		return value, nil
	}
	segment := segments[0]
	rest := segments[1:]

	if strings.HasSuffix(segment, "[]") {
		key := strings.TrimSuffix(segment, "[]")
		if selector == "" {
			return Value{}, fmt.Errorf("path segment %q requires a selector", segment)
		}
		if node.Kind != KindMap {
			node = MapValue(map[string]Value{})
		}
		list := node.Map[key]
		if list.Kind != KindList {
			list = ListValue(nil)
		}
		items := append([]Value(nil), list.List...)
		idx := -1
		for i, item := range items {
			if item.Kind == KindMap {
				if idField, ok := item.Map["id"]; ok && idField.Kind == KindText && idField.Text == selector {
					idx = i
					break
				}
			}
		}
		var element Value
		if idx >= 0 {
			element = items[idx]
		} else {
			element = MapValue(map[string]Value{"id": TextValue(selector)})
		}
		merged, err := mergeSegments(element, rest, "", value)
		if err != nil {
			return Value{}, err
		}
		if idx >= 0 {
			items[idx] = merged
		} else {
			items = append(items, merged)
		}
		next := node.Map
		if next == nil {
			next = map[string]Value{}
		}
		out := map[string]Value{}
		for k, v := range next {
			out[k] = v
		}
		out[key] = ListValue(items)
		return MapValue(out), nil
	}

	if node.Kind != KindMap {
		node = MapValue(map[string]Value{})
	}
	out := map[string]Value{}
	for k, v := range node.Map {
		out[k] = v
	}
	child := out[segment]
	merged, err := mergeSegments(child, rest, selector, value)
	if err != nil {
		return Value{}, err
	}
	out[segment] = merged
	return MapValue(out), nil
}

// ParseScalarValue coerces a raw string into the Value kind a catalog
// entry declares (number, enum/string, bool, or string_list).
func ParseScalarValue(raw string, valueType string) (Value, error) {
	switch valueType {
	case "number":
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return Value{}, fmt.Errorf("expected a number, got %q", raw)
		}
		return NumberValue(f), nil
	case "bool":
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return Value{}, fmt.Errorf("expected a bool, got %q", raw)
		}
		return BoolValue(b), nil
	case "string_list":
		trimmed := strings.TrimSpace(raw)
		if strings.HasPrefix(trimmed, "[") {
			var items []string
			if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
				return Value{}, fmt.Errorf("expected a JSON string list: %w", err)
			}
			values := make([]Value, len(items))
			for i, item := range items {
				values[i] = TextValue(item)
			}
			return ListValue(values), nil
		}
		parts := strings.Split(trimmed, ",")
		values := make([]Value, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			values = append(values, TextValue(part))
		}
		return ListValue(values), nil
	default:
		return TextValue(raw), nil
	}
}
