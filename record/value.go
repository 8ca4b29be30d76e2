// Package record implements the structured decoder: msgpack payloads become a
// schema-less tagged value tree with defaulted accessors.
//
// Accessors never panic. A missing key, an out-of-range index or a type
// mismatch yields the Null value or the zero of the requested type, so rule
// code can probe nested fields the way the payloads are actually shaped:
// "missing means skip".
package record

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Kind tags the dynamic type of a Value.
type Kind uint8

// Value kinds.
const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindArray
	KindMap
)

var kindNames = [...]string{"null", "bool", "int", "float", "string", "bytes", "array", "map"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Value is one node of a decoded payload. The zero Value is Null.
//
// Values are treated as immutable once built; use With to derive a copy with
// a replaced top-level field.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	raw  []byte
	arr  []Value
	m    map[string]Value
}

// Null is the absent value.
var Null = Value{}

// Bool builds a bool value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int builds an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float builds a float value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String builds a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Bytes builds a binary value.
func Bytes(b []byte) Value { return Value{kind: KindBytes, raw: b} }

// Array builds an array value.
func Array(items ...Value) Value { return Value{kind: KindArray, arr: items} }

// Map builds a map value. The map is owned by the returned Value.
func Map(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindMap, m: m}
}

// Kind returns the dynamic type.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is absent or explicitly nil.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsMap reports whether v is a map.
func (v Value) IsMap() bool { return v.kind == KindMap }

// Has reports whether a map value contains key, even if its value is nil.
func (v Value) Has(key string) bool {
	if v.kind != KindMap {
		return false
	}
	_, ok := v.m[key]
	return ok
}

// Get returns the value under key, or Null.
func (v Value) Get(key string) Value {
	if v.kind != KindMap {
		return Null
	}
	return v.m[key]
}

// Path walks nested maps. Path("a", "b") is Get("a").Get("b").
func (v Value) Path(keys ...string) Value {
	cur := v
	for _, k := range keys {
		cur = cur.Get(k)
	}
	return cur
}

// Index returns element i of an array; negative i counts from the end.
func (v Value) Index(i int) Value {
	if v.kind != KindArray {
		return Null
	}
	if i < 0 {
		i += len(v.arr)
	}
	if i < 0 || i >= len(v.arr) {
		return Null
	}
	return v.arr[i]
}

// Len is the number of elements of an array or map, the length of a string
// or byte value, and zero otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindMap:
		return len(v.m)
	case KindString:
		return len(v.s)
	case KindBytes:
		return len(v.raw)
	default:
		return 0
	}
}

// Array returns the elements of an array value, nil otherwise.
func (v Value) Array() []Value {
	if v.kind != KindArray {
		return nil
	}
	return v.arr
}

// Keys returns the sorted keys of a map value.
func (v Value) Keys() []string {
	if v.kind != KindMap {
		return nil
	}
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Int returns the value as an integer. Floats are truncated and numeric
// strings parsed; anything else is zero.
func (v Value) Int() int64 {
	n, _ := v.IntOK()
	return n
}

// IntOK is Int with a flag telling whether v held a number.
func (v Value) IntOK() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return 0, false
		}
		return int64(v.f), true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	case KindString:
		n, err := strconv.ParseInt(v.s, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// IntOr returns Int, or def when v is not numeric.
func (v Value) IntOr(def int64) int64 {
	if n, ok := v.IntOK(); ok {
		return n
	}
	return def
}

// Float returns the value as a float64.
func (v Value) Float() float64 {
	switch v.kind {
	case KindFloat:
		return v.f
	case KindInt:
		return float64(v.i)
	default:
		return 0
	}
}

// Str returns a string value, or the decimal form of a number.
func (v Value) Str() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindBytes:
		return string(v.raw)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	default:
		return ""
	}
}

// Bool returns a bool value; other kinds report Truthy.
func (v Value) Bool() bool {
	if v.kind == KindBool {
		return v.b
	}
	return v.Truthy()
}

// Raw returns the payload of a bytes value.
func (v Value) Raw() []byte {
	if v.kind != KindBytes {
		return nil
	}
	return v.raw
}

// Truthy follows the payload producers' notion of "set": null, false, zero,
// and empty strings, arrays and maps are false.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	default:
		return v.Len() > 0
	}
}

// With returns a copy of a map value with key set to val. The original map
// is left untouched; nested values are shared.
func (v Value) With(key string, val Value) Value {
	m := make(map[string]Value, len(v.m)+1)
	for k, e := range v.m {
		m[k] = e
	}
	m[key] = val
	return Map(m)
}

// Without returns a copy of a map value with the given keys removed.
func (v Value) Without(keys ...string) Value {
	if v.kind != KindMap {
		return v
	}
	m := make(map[string]Value, len(v.m))
	for k, e := range v.m {
		m[k] = e
	}
	for _, k := range keys {
		delete(m, k)
	}
	return Map(m)
}

// Clone deep-copies v.
func (v Value) Clone() Value {
	switch v.kind {
	case KindArray:
		arr := make([]Value, len(v.arr))
		for i, e := range v.arr {
			arr[i] = e.Clone()
		}
		return Array(arr...)
	case KindMap:
		m := make(map[string]Value, len(v.m))
		for k, e := range v.m {
			m[k] = e.Clone()
		}
		return Map(m)
	case KindBytes:
		return Bytes(append([]byte(nil), v.raw...))
	default:
		return v
	}
}

// Equal reports deep equality.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindBytes:
		return string(v.raw) == string(o.raw)
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, e := range v.m {
			oe, ok := o.m[k]
			if !ok || !e.Equal(oe) {
				return false
			}
		}
		return true
	}
	return false
}

// Ints collects the integer elements of an array, or the integer field
// named key of each map element when key is non-empty.
func (v Value) Ints(key string) []int {
	items := v.Array()
	out := make([]int, 0, len(items))
	for _, e := range items {
		if key != "" {
			e = e.Get(key)
		}
		if n, ok := e.IntOK(); ok {
			out = append(out, int(n))
		}
	}
	return out
}
