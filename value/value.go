// Package value implements the backend-neutral tagged value described in spec §3/§4.A: the
// common currency every adapter, the query builder and the ODM layer pass values around in.
// Grounded on spec §3/§4.A directly (no surviving Rust DataValue enum definition made it into
// the retrieval pack — original_source/src/model/conversion/*.rs shows call sites but not the
// type itself) plus two supplemented scalar kinds this expansion adds a home for: Decimal
// (github.com/shopspring/decimal, for exact-precision FieldType Decimal columns) and a
// dedicated Uuid representation backed by github.com/google/uuid rather than a bare string.
package value

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind tags which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindUuid
	KindDateTime
	KindJson
	KindArray
	KindObject
	KindDecimal
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindBool:
		return "Bool"
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindString:
		return "String"
	case KindBytes:
		return "Bytes"
	case KindUuid:
		return "Uuid"
	case KindDateTime:
		return "DateTime"
	case KindJson:
		return "Json"
	case KindArray:
		return "Array"
	case KindObject:
		return "Object"
	case KindDecimal:
		return "Decimal"
	default:
		return "Unknown"
	}
}

// maxExactInt is the spec §3 threshold above which integer ids widen to String to preserve
// exactness across backends with differing integer widths (snowflake-id compatibility).
const maxExactInt int64 = 1_000_000_000_000_000_000

// Value is a tagged variant over exactly one of the Kind cases. The zero Value is Null.
type Value struct {
	kind Kind

	b    bool
	i    int64
	f    float64
	s    string
	by   []byte
	u    uuid.UUID
	t    time.Time
	json json.RawMessage
	arr  []Value
	obj  map[string]Value
	dec  decimal.Decimal
}

func Null() Value                { return Value{kind: KindNull} }
func Bool(v bool) Value          { return Value{kind: KindBool, b: v} }
func String(v string) Value      { return Value{kind: KindString, s: v} }
func Bytes(v []byte) Value       { return Value{kind: KindBytes, by: v} }
func UuidValue(v uuid.UUID) Value { return Value{kind: KindUuid, u: v} }
func DateTime(v time.Time) Value { return Value{kind: KindDateTime, t: v} }
func Decimal(v decimal.Decimal) Value { return Value{kind: KindDecimal, dec: v} }

// Json wraps an opaque JSON tree; raw must already be valid JSON.
func Json(raw json.RawMessage) Value { return Value{kind: KindJson, json: raw} }

// Array builds an Array value from its elements.
func Array(items ...Value) Value { return Value{kind: KindArray, arr: items} }

// Object builds an Object value from a field map.
func Object(fields map[string]Value) Value { return Value{kind: KindObject, obj: fields} }

// Int builds an Int value, widening to String if the magnitude exceeds the spec §3
// exactness threshold (snowflake-id compatibility).
func Int(v int64) Value {
	if v > maxExactInt || v < -maxExactInt {
		return Value{kind: KindString, s: strconv.FormatInt(v, 10)}
	}
	return Value{kind: KindInt, i: v}
}

// Float builds a Float value.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsNull() bool  { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool)             { return v.b, v.kind == KindBool }
func (v Value) AsInt() (int64, bool)             { return v.i, v.kind == KindInt }
func (v Value) AsFloat() (float64, bool)         { return v.f, v.kind == KindFloat }
func (v Value) AsString() (string, bool)         { return v.s, v.kind == KindString }
func (v Value) AsBytes() ([]byte, bool)          { return v.by, v.kind == KindBytes }
func (v Value) AsUuid() (uuid.UUID, bool)        { return v.u, v.kind == KindUuid }
func (v Value) AsDateTime() (time.Time, bool)    { return v.t, v.kind == KindDateTime }
func (v Value) AsJson() (json.RawMessage, bool)  { return v.json, v.kind == KindJson }
func (v Value) AsArray() ([]Value, bool)         { return v.arr, v.kind == KindArray }
func (v Value) AsObject() (map[string]Value, bool) { return v.obj, v.kind == KindObject }
func (v Value) AsDecimal() (decimal.Decimal, bool) { return v.dec, v.kind == KindDecimal }

// ParseStringToValue implements spec §4.A parse_string_to_value: if s looks like a JSON
// object or array and parses, it is adopted as Object/Array; otherwise it stays a String.
// Used to recover JSON columns that SQL backends return as text.
func ParseStringToValue(s string) Value {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return String(s)
	}
	var raw any
	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return String(s)
	}
	return fromDecodedJSON(raw)
}

func fromDecodedJSON(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i)
		}
		f, _ := t.Float64()
		return Float(f)
	case string:
		return String(t)
	case []any:
		items := make([]Value, len(t))
		for i, e := range t {
			items[i] = fromDecodedJSON(e)
		}
		return Array(items...)
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, e := range t {
			fields[k] = fromDecodedJSON(e)
		}
		return Object(fields)
	default:
		return Null()
	}
}

// ToJSON serializes v losslessly modulo the string-auto-parse rule (spec §3 invariant).
func (v Value) ToJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil, fmt.Errorf("value: float %v is not JSON-representable", v.f)
		}
		return json.Marshal(v.f)
	case KindString:
		return json.Marshal(v.s)
	case KindBytes:
		return json.Marshal(base64.StdEncoding.EncodeToString(v.by))
	case KindUuid:
		return json.Marshal(v.u.String())
	case KindDateTime:
		return json.Marshal(v.t.UTC().Format(time.RFC3339Nano))
	case KindJson:
		if len(v.json) == 0 {
			return []byte("null"), nil
		}
		return v.json, nil
	case KindDecimal:
		return json.Marshal(v.dec.String())
	case KindArray:
		parts := make([]json.RawMessage, len(v.arr))
		for i, e := range v.arr {
			raw, err := e.ToJSON()
			if err != nil {
				return nil, err
			}
			parts[i] = raw
		}
		return json.Marshal(parts)
	case KindObject:
		m := make(map[string]json.RawMessage, len(v.obj))
		for k, e := range v.obj {
			raw, err := e.ToJSON()
			if err != nil {
				return nil, err
			}
			m[k] = raw
		}
		return json.Marshal(m)
	default:
		return nil, fmt.Errorf("value: unknown kind %v", v.kind)
	}
}

// FromJSON parses data into a Value. Objects/arrays decode recursively; strings are kept as
// String (the adopt-as-structured rule only applies via ParseStringToValue, used when
// recovering backend-returned text, not during a direct JSON parse).
func FromJSON(data []byte) (Value, error) {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return Value{}, err
	}
	return fromDecodedJSON(raw), nil
}

// SerializationMode selects between plain and typed-null JSON encoding (spec §3 typed-null
// invariant and DESIGN.md Open Question 3).
type SerializationMode uint8

const (
	Plain SerializationMode = iota
	Typed
)

// TypedSerialize produces the {variant_name: payload} wrapping spec §4.A describes for the
// bindings path. Recursive for arrays/objects; array elements are wrapped individually so the
// container and element type tags both survive.
func (v Value) TypedSerialize(mode SerializationMode) (json.RawMessage, error) {
	if mode == Plain {
		return v.ToJSON()
	}
	if v.kind == KindNull {
		return json.Marshal(map[string]any{"Null": nil})
	}

	var payload json.RawMessage
	var err error
	switch v.kind {
	case KindArray:
		parts := make([]json.RawMessage, len(v.arr))
		for i, e := range v.arr {
			if parts[i], err = e.TypedSerialize(mode); err != nil {
				return nil, err
			}
		}
		payload, err = json.Marshal(parts)
	case KindObject:
		m := make(map[string]json.RawMessage, len(v.obj))
		for k, e := range v.obj {
			if m[k], err = e.TypedSerialize(mode); err != nil {
				return nil, err
			}
		}
		payload, err = json.Marshal(m)
	default:
		payload, err = v.ToJSON()
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]json.RawMessage{v.kind.String(): payload})
}

// MarshalJSON implements json.Marshaler so a Value nested in an ordinary Go struct encodes
// via ToJSON.
func (v Value) MarshalJSON() ([]byte, error) { return v.ToJSON() }

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := FromJSON(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Equal implements spec §4.B equality: JSON semantics plus UTC-instant datetime comparison,
// strict (non-numeric) booleans, and Null equal only to Null.
func Equal(a, b Value) bool {
	if a.kind == KindNull || b.kind == KindNull {
		return a.kind == KindNull && b.kind == KindNull
	}
	if a.kind == KindDateTime && b.kind == KindDateTime {
		return a.t.UTC().Equal(b.t.UTC())
	}
	if a.kind == KindBool || b.kind == KindBool {
		return a.kind == KindBool && b.kind == KindBool && a.b == b.b
	}
	if isNumeric(a.kind) && isNumeric(b.kind) {
		return numeric(a) == numeric(b)
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindString:
		return a.s == b.s
	case KindBytes:
		return bytes.Equal(a.by, b.by)
	case KindUuid:
		return a.u == b.u
	case KindDecimal:
		return a.dec.Equal(b.dec)
	case KindJson:
		return string(a.json) == string(b.json)
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.obj) != len(b.obj) {
			return false
		}
		for k, av := range a.obj {
			bv, ok := b.obj[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func isNumeric(k Kind) bool { return k == KindInt || k == KindFloat }

func numeric(v Value) float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}

// Keys returns an Object's field names in sorted order, for callers that need deterministic
// iteration (cache fingerprinting, tests).
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	keys := make([]string, 0, len(v.obj))
	for k := range v.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
