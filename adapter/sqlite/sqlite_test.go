package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/forbearing/polydb/adapter"
	"github.com/forbearing/polydb/adapter/sqlite"
	"github.com/forbearing/polydb/config"
	"github.com/forbearing/polydb/model"
	"github.com/forbearing/polydb/query"
	"github.com/forbearing/polydb/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestAdapter(t *testing.T) *adapter.SQLAdapter {
	t.Helper()
	a, err := sqlite.Open(context.Background(), &config.SqliteConnection{Path: ":memory:"}, time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func usersMeta() *model.ModelMeta {
	return &model.ModelMeta{
		Collection: "users",
		Fields: map[string]model.FieldDefinition{
			"name":   {Type: model.StringType(100, 0, ""), Required: true},
			"active": {Type: model.FieldType{Kind: model.FieldBoolean}},
			"score":  {Type: model.FieldType{Kind: model.FieldFloat}},
		},
	}
}

func TestSQLite_CreateAutoCreatesTableAndAssignsID(t *testing.T) {
	a := openTestAdapter(t)
	ctx := context.Background()

	exists, err := a.TableExists(ctx, "users")
	require.NoError(t, err)
	assert.False(t, exists)

	id, err := a.Create(ctx, "users", usersMeta(), adapter.Record{
		"name":   value.String("alice"),
		"active": value.Bool(true),
		"score":  value.Float(9.5),
	})
	require.NoError(t, err)
	asInt, ok := id.AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(1), asInt)

	exists, err = a.TableExists(ctx, "users")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSQLite_CreateWithoutMetadataFails(t *testing.T) {
	a := openTestAdapter(t)
	_, err := a.Create(context.Background(), "ghosts", nil, adapter.Record{"name": value.String("x")})
	assert.Error(t, err)
}

func TestSQLite_FindByIDAndFind(t *testing.T) {
	a := openTestAdapter(t)
	ctx := context.Background()
	meta := usersMeta()

	_, err := a.Create(ctx, "users", meta, adapter.Record{"name": value.String("alice"), "active": value.Bool(true), "score": value.Float(1)})
	require.NoError(t, err)
	id2, err := a.Create(ctx, "users", meta, adapter.Record{"name": value.String("bob"), "active": value.Bool(false), "score": value.Float(2)})
	require.NoError(t, err)

	rec, found, err := a.FindByID(ctx, "users", meta, id2)
	require.NoError(t, err)
	require.True(t, found)
	name, _ := rec["name"].AsString()
	assert.Equal(t, "bob", name)

	rows, err := a.Find(ctx, "users", meta, query.Leaf("active", query.Eq, value.Bool(true)), query.Options{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	n, _ := rows[0]["name"].AsString()
	assert.Equal(t, "alice", n)
}

func TestSQLite_UpdateAndDelete(t *testing.T) {
	a := openTestAdapter(t)
	ctx := context.Background()
	meta := usersMeta()

	id, err := a.Create(ctx, "users", meta, adapter.Record{"name": value.String("alice"), "active": value.Bool(true), "score": value.Float(1)})
	require.NoError(t, err)

	ok, err := a.UpdateByID(ctx, "users", meta, id, adapter.Record{"name": value.String("alicia")})
	require.NoError(t, err)
	assert.True(t, ok)

	rec, found, err := a.FindByID(ctx, "users", meta, id)
	require.NoError(t, err)
	require.True(t, found)
	name, _ := rec["name"].AsString()
	assert.Equal(t, "alicia", name)

	n, err := a.UpdateWithOperations(ctx, "users", meta, query.Leaf("id", query.Eq, id), []query.UpdateOperation{
		{Field: "score", Op: query.Increment, Value: value.Float(4)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rec, _, err = a.FindByID(ctx, "users", meta, id)
	require.NoError(t, err)
	score, _ := rec["score"].AsFloat()
	assert.Equal(t, 5.0, score)

	deleted, err := a.DeleteByID(ctx, "users", meta, id)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, found, err = a.FindByID(ctx, "users", meta, id)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLite_CountAndExists(t *testing.T) {
	a := openTestAdapter(t)
	ctx := context.Background()
	meta := usersMeta()

	require.NoError(t, a.CreateTable(ctx, "users", meta))
	_, err := a.Create(ctx, "users", meta, adapter.Record{"name": value.String("alice"), "active": value.Bool(true), "score": value.Float(1)})
	require.NoError(t, err)
	_, err = a.Create(ctx, "users", meta, adapter.Record{"name": value.String("bob"), "active": value.Bool(false), "score": value.Float(2)})
	require.NoError(t, err)

	count, err := a.Count(ctx, "users", meta, query.ConditionGroup{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	exists, err := a.Exists(ctx, "users", meta, query.Leaf("name", query.Eq, value.String("bob")))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSQLite_DropTable(t *testing.T) {
	a := openTestAdapter(t)
	ctx := context.Background()
	meta := usersMeta()
	require.NoError(t, a.CreateTable(ctx, "users", meta))
	require.NoError(t, a.DropTable(ctx, "users"))
	exists, err := a.TableExists(ctx, "users")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSQLite_ServerVersion(t *testing.T) {
	a := openTestAdapter(t)
	v, err := a.ServerVersion(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, v)
}

func TestSQLite_CreateIndex(t *testing.T) {
	a := openTestAdapter(t)
	ctx := context.Background()
	meta := usersMeta()
	require.NoError(t, a.CreateTable(ctx, "users", meta))
	require.NoError(t, a.CreateIndex(ctx, "users", model.IndexDefinition{Fields: []string{"name"}, Unique: true, Name: "idx_users_name"}))
}
