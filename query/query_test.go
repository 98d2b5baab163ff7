package query_test

import (
	"testing"

	"github.com/forbearing/polydb/query"
	"github.com/forbearing/polydb/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaf(t *testing.T) {
	g := query.Leaf("name", query.Eq, value.String("alice"))
	assert.True(t, g.IsLeaf())
	assert.Equal(t, "name", g.Cond.Field)
}

func TestGroupBuilder(t *testing.T) {
	g := query.NewAnd().
		Where("age", query.Gte, value.Int(18)).
		Where("active", query.Eq, value.Bool(true)).
		Nest(query.NewOr().Where("role", query.Eq, value.String("admin")).Build()).
		Build()

	require.False(t, g.IsLeaf())
	assert.Equal(t, query.And, g.Logical)
	assert.Len(t, g.Children, 3)
	assert.Equal(t, query.Or, g.Children[2].Logical)
}

func TestEmptyGroup(t *testing.T) {
	var g query.ConditionGroup
	assert.True(t, g.IsEmpty())
}

func TestOptionsChaining(t *testing.T) {
	opts := query.Options{}.
		WithSort("created_at", query.Desc).
		WithLimit(10).
		WithSkip(5)

	require.Len(t, opts.Sort, 1)
	assert.Equal(t, query.Desc, opts.Sort[0].Order)
	require.NotNil(t, opts.Limit)
	assert.Equal(t, int64(10), *opts.Limit)
	require.NotNil(t, opts.Skip)
	assert.Equal(t, int64(5), *opts.Skip)
}

func TestUpdateOperation(t *testing.T) {
	op := query.UpdateOperation{Field: "balance", Op: query.Increment, Value: value.Float(10)}
	assert.Equal(t, query.Increment, op.Op)
}
