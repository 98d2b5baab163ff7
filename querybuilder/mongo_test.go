package querybuilder_test

import (
	"testing"

	"github.com/forbearing/polydb/query"
	"github.com/forbearing/polydb/querybuilder"
	"github.com/forbearing/polydb/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestLowerMongoGroup_Leaf(t *testing.T) {
	g := query.Leaf("name", query.Eq, value.String("alice"))
	m, err := querybuilder.LowerMongoGroup(g)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"name": "alice"}, m)
}

func TestLowerMongoGroup_Empty(t *testing.T) {
	m, err := querybuilder.LowerMongoGroup(query.ConditionGroup{})
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestLowerMongoGroup_Singleton(t *testing.T) {
	g := query.AndGroup(query.Leaf("age", query.Gte, value.Int(18)))
	m, err := querybuilder.LowerMongoGroup(g)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"age": bson.M{"$gte": int64(18)}}, m)
}

func TestLowerMongoGroup_MultiChildAndOr(t *testing.T) {
	g := query.NewOr().
		Where("role", query.Eq, value.String("admin")).
		Nest(query.NewAnd().
			Where("age", query.Gte, value.Int(18)).
			Where("active", query.Eq, value.Bool(true)).
			Build()).
		Build()

	m, err := querybuilder.LowerMongoGroup(g)
	require.NoError(t, err)
	or, ok := m["$or"].(bson.A)
	require.True(t, ok)
	require.Len(t, or, 2)
}

func TestLowerMongoGroup_Operators(t *testing.T) {
	cases := []struct {
		op   query.Operator
		val  value.Value
		want bson.M
	}{
		{query.Ne, value.Int(5), bson.M{"n": bson.M{"$ne": int64(5)}}},
		{query.Lt, value.Int(5), bson.M{"n": bson.M{"$lt": int64(5)}}},
		{query.IsNull, value.Null(), bson.M{"n": nil}},
		{query.IsNotNull, value.Null(), bson.M{"n": bson.M{"$ne": nil}}},
	}
	for _, c := range cases {
		g := query.Leaf("n", c.op, c.val)
		m, err := querybuilder.LowerMongoGroup(g)
		require.NoError(t, err)
		assert.Equal(t, c.want, m)
	}
}

func TestLowerMongoGroup_InNotIn(t *testing.T) {
	g := query.Leaf("status", query.In, value.Array(value.String("a"), value.String("b")))
	m, err := querybuilder.LowerMongoGroup(g)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"status": bson.M{"$in": bson.A{"a", "b"}}}, m)
}

func TestLowerMongoGroup_ExistsAndRegex(t *testing.T) {
	g := query.Leaf("bio", query.Exists, value.Bool(true))
	m, err := querybuilder.LowerMongoGroup(g)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"bio": bson.M{"$exists": true}}, m)

	g2 := query.Leaf("name", query.StartsWith, value.String("al"))
	m2, err := querybuilder.LowerMongoGroup(g2)
	require.NoError(t, err)
	inner, ok := m2["name"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, "^al", inner["$regex"])
}

func TestMongoField_IDMapping(t *testing.T) {
	assert.Equal(t, "_id", querybuilder.MongoField("id"))
	assert.Equal(t, "name", querybuilder.MongoField("name"))
}

func TestLowerMongoGroup_IDFieldMapped(t *testing.T) {
	g := query.Leaf("id", query.Eq, value.String("507f1f77bcf86cd799439011"))
	m, err := querybuilder.LowerMongoGroup(g)
	require.NoError(t, err)
	oid, ok := m["_id"].(bson.ObjectID)
	require.True(t, ok)
	assert.Equal(t, "507f1f77bcf86cd799439011", oid.Hex())
}

func TestParseObjectID_BareHex(t *testing.T) {
	oid, ok := querybuilder.ParseObjectID("507f1f77bcf86cd799439011")
	require.True(t, ok)
	assert.Equal(t, "507f1f77bcf86cd799439011", oid.Hex())
}

func TestParseObjectID_Envelope(t *testing.T) {
	oid, ok := querybuilder.ParseObjectID(`ObjectId("507f1f77bcf86cd799439011")`)
	require.True(t, ok)
	assert.Equal(t, "507f1f77bcf86cd799439011", oid.Hex())
}

func TestParseObjectID_NotAnObjectID(t *testing.T) {
	_, ok := querybuilder.ParseObjectID("not-an-object-id")
	assert.False(t, ok)
}
