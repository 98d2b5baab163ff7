package value_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/forbearing/polydb/value"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip_Scalars(t *testing.T) {
	cases := []value.Value{
		value.Null(),
		value.Bool(true),
		value.Int(42),
		value.Float(3.5),
		value.String("hello"),
		value.UuidValue(uuid.New()),
		value.Decimal(decimal.RequireFromString("19.99")),
	}
	for _, v := range cases {
		raw, err := v.ToJSON()
		require.NoError(t, err)
		back, err := value.FromJSON(raw)
		require.NoError(t, err)
		if v.Kind() == value.KindUuid || v.Kind() == value.KindDecimal {
			// uuid/decimal round-trip through FromJSON as String (no type hint in plain JSON).
			s, ok := back.AsString()
			require.True(t, ok)
			assert.NotEmpty(t, s)
			continue
		}
		assert.True(t, value.Equal(v, back), "kind %v did not round-trip", v.Kind())
	}
}

func TestRoundTrip_ArrayObject(t *testing.T) {
	v := value.Array(value.Int(1), value.String("a"), value.Object(map[string]value.Value{
		"nested": value.Bool(true),
	}))
	raw, err := v.ToJSON()
	require.NoError(t, err)
	back, err := value.FromJSON(raw)
	require.NoError(t, err)
	assert.True(t, value.Equal(v, back))
}

func TestLargeIntWidensToString(t *testing.T) {
	v := value.Int(1_000_000_000_000_000_001)
	s, ok := v.AsString()
	require.True(t, ok, "integer beyond 10^18 must widen to String")
	assert.Equal(t, "1000000000000000001", s)
}

func TestParseStringToValue_AdoptsJSON(t *testing.T) {
	v := value.ParseStringToValue(`{"a":1,"b":[1,2,3]}`)
	obj, ok := v.AsObject()
	require.True(t, ok)
	a, ok := obj["a"].AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(1), a)

	arr := value.ParseStringToValue(`[1,2,3]`)
	_, ok = arr.AsArray()
	assert.True(t, ok)

	plain := value.ParseStringToValue("just a string")
	s, ok := plain.AsString()
	require.True(t, ok)
	assert.Equal(t, "just a string", s)
}

func TestParseStringToValue_MalformedStaysString(t *testing.T) {
	v := value.ParseStringToValue(`{not valid json`)
	s, ok := v.AsString()
	require.True(t, ok)
	assert.Equal(t, `{not valid json`, s)
}

func TestTypedSerialize(t *testing.T) {
	v := value.DateTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	raw, err := v.TypedSerialize(value.Typed)
	require.NoError(t, err)

	var wrapper map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &wrapper))
	_, ok := wrapper["DateTime"]
	assert.True(t, ok)
}

func TestTypedSerialize_Null(t *testing.T) {
	raw, err := value.Null().TypedSerialize(value.Typed)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Null":null}`, string(raw))
}

func TestEqual_DateTimeUTCInstant(t *testing.T) {
	utc := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	offset := utc.In(time.FixedZone("x", 3600))
	assert.True(t, value.Equal(value.DateTime(utc), value.DateTime(offset)))
}

func TestEqual_BoolIsStrict(t *testing.T) {
	assert.False(t, value.Equal(value.Bool(true), value.Int(1)))
}

func TestEqual_NullOnlyEqualsNull(t *testing.T) {
	assert.True(t, value.Equal(value.Null(), value.Null()))
	assert.False(t, value.Equal(value.Null(), value.String("")))
}

func TestEqual_NumericCrossKind(t *testing.T) {
	assert.True(t, value.Equal(value.Int(5), value.Float(5.0)))
}
