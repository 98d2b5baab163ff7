package idstrategy_test

import (
	"testing"

	"github.com/forbearing/polydb/config"
	"github.com/forbearing/polydb/idstrategy"
	"github.com/forbearing/polydb/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_AutoIncrement(t *testing.T) {
	s, err := idstrategy.New(config.IDStrategyConfig{Kind: config.IDAutoIncrement})
	require.NoError(t, err)
	v, populate := s.Generate()
	assert.False(t, populate)
	assert.True(t, v.IsNull())
}

func TestNew_Uuid(t *testing.T) {
	s, err := idstrategy.New(config.IDStrategyConfig{Kind: config.IDUuid})
	require.NoError(t, err)
	v, populate := s.Generate()
	assert.True(t, populate)
	_, ok := v.AsUuid()
	assert.True(t, ok)
}

func TestNew_Custom_Xid(t *testing.T) {
	s, err := idstrategy.New(config.IDStrategyConfig{Kind: config.IDCustom, Custom: "xid"})
	require.NoError(t, err)
	v, populate := s.Generate()
	assert.True(t, populate)
	str, ok := v.AsString()
	require.True(t, ok)
	assert.NotEmpty(t, str)
}

func TestNew_Custom_Unknown(t *testing.T) {
	_, err := idstrategy.New(config.IDStrategyConfig{Kind: config.IDCustom, Custom: "nope"})
	assert.Error(t, err)
}

func TestSnowflake_MonotonicAndUnique(t *testing.T) {
	s, err := idstrategy.NewSnowflake(10, 1)
	require.NoError(t, err)

	seen := make(map[int64]struct{})
	var last int64
	for i := 0; i < 1000; i++ {
		v, populate := s.Generate()
		require.True(t, populate)
		id, ok := v.AsInt()
		require.True(t, ok)
		assert.Greater(t, id, last)
		_, dup := seen[id]
		assert.False(t, dup, "snowflake id collision")
		seen[id] = struct{}{}
		last = id
	}
}

func TestSnowflake_MachineIDOutOfRange(t *testing.T) {
	_, err := idstrategy.NewSnowflake(2, 100)
	assert.Error(t, err)
}

func TestRegisterCustom(t *testing.T) {
	idstrategy.RegisterCustom("fixed", func() (value.Value, error) { return value.String("fixed-id"), nil })
	s, err := idstrategy.New(config.IDStrategyConfig{Kind: config.IDCustom, Custom: "fixed"})
	require.NoError(t, err)
	v, populate := s.Generate()
	assert.True(t, populate)
	str, ok := v.AsString()
	require.True(t, ok)
	assert.Equal(t, "fixed-id", str)
}
