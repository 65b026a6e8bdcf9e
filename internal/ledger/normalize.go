package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"

	"github.com/spf13/cast"
)

// mapTag marks a map that the ledger serialised as an ordered entry list
const mapTag = "$map"

// Normalize converts any wire value into plain data: maps become
// map[string]interface{}, lists become []interface{}, JSON numbers become
// int64 (float64 when fractional, decimal string when out of range).
// It recurses to every depth and accepts any input.
func Normalize(value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case map[string]interface{}:
		if entries, ok := taggedEntries(v); ok {
			return normalizeEntries(entries)
		}
		out := make(map[string]interface{}, len(v))
		for key, item := range v {
			out[key] = Normalize(item)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, item := range v {
			out[keyString(key)] = Normalize(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = Normalize(item)
		}
		return out
	case json.Number:
		return normalizeNumber(v)
	case json.RawMessage:
		decoded, err := decodeJSON(v)
		if err != nil {
			return string(v)
		}
		return decoded
	case []byte:
		return v
	case string, bool, int64, float64:
		return v
	}

	return normalizeReflect(reflect.ValueOf(value))
}

// normalizeReflect handles typed maps and slices produced by other decoders
func normalizeReflect(rv reflect.Value) interface{} {
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		if n, ok := rv.Interface().(*big.Int); ok {
			if n.IsInt64() {
				return n.Int64()
			}
			return n.String()
		}
		return Normalize(rv.Elem().Interface())
	case reflect.Map:
		out := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[keyString(iter.Key().Interface())] = Normalize(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]interface{}, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > 1<<63-1 {
			return new(big.Int).SetUint64(u).String()
		}
		return int64(u)
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	}
	return rv.Interface()
}

func taggedEntries(m map[string]interface{}) ([]interface{}, bool) {
	if len(m) != 1 {
		return nil, false
	}
	raw, ok := m[mapTag]
	if !ok {
		return nil, false
	}
	entries, ok := raw.([]interface{})
	if !ok {
		return nil, false
	}
	for _, e := range entries {
		pair, ok := e.([]interface{})
		if !ok || len(pair) != 2 {
			return nil, false
		}
	}
	return entries, true
}

func normalizeEntries(entries []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(entries))
	for _, e := range entries {
		pair := e.([]interface{})
		out[keyString(Normalize(pair[0]))] = Normalize(pair[1])
	}
	return out
}

func keyString(key interface{}) string {
	if s, err := cast.ToStringE(key); err == nil {
		return s
	}
	return fmt.Sprint(key)
}

func normalizeNumber(n json.Number) interface{} {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if b, ok := new(big.Int).SetString(n.String(), 10); ok {
		return b.String()
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// decodeJSON decodes raw JSON keeping number precision, then normalises it
func decodeJSON(raw []byte) (interface{}, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out interface{}
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return Normalize(out), nil
}

// NormalizeBool canonicalises boolean-like wire values (bool, string, number)
// to a strict boolean. It is the only place that inspects those representations.
func NormalizeBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case json.Number:
		return cast.ToBoolE(normalizeNumber(v))
	case string:
		if v == "" {
			return false, nil
		}
	}
	return cast.ToBoolE(value)
}
