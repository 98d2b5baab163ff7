package odm_test

import (
	"context"
	"testing"
	"time"

	"github.com/forbearing/polydb/config"
	"github.com/forbearing/polydb/model"
	"github.com/forbearing/polydb/odm"
	"github.com/forbearing/polydb/query"
	"github.com/forbearing/polydb/registry"
	"github.com/forbearing/polydb/value"
)

type testUser struct {
	ID     value.Value `polydb:"-"`
	Name   string      `polydb:"name"`
	Active bool        `polydb:"active"`
	Score  int64       `polydb:"score"`
}

func (u *testUser) CollectionName() string { return "odm_users" }
func (u *testUser) GetID() value.Value     { return u.ID }
func (u *testUser) SetID(v value.Value)    { u.ID = v }
func (u *testUser) Meta() model.ModelMeta {
	return model.ModelMeta{
		Collection: "odm_users",
		Fields: map[string]model.FieldDefinition{
			"name":   {Type: model.StringType(0, 1, ""), Required: true},
			"active": {Type: model.FieldType{Kind: model.FieldBoolean}},
			"score":  {Type: model.FieldType{Kind: model.FieldInteger}},
		},
	}
}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	cfg := config.DatabaseConfig{
		Alias:  "default",
		DBType: config.SQLite,
		Connection: config.ConnectionConfig{
			Sqlite: &config.SqliteConnection{Path: ":memory:"},
		},
		Pool: config.PoolConfig{
			MinConnections:     1,
			MaxConnections:     1,
			MaxRetries:         1,
			RetryInterval:      time.Millisecond,
			HealthCheckTimeout: time.Hour,
			TableSettleDelay:   time.Millisecond,
		},
		Default: true,
	}
	cfg.SetDefault()
	if err := r.AddDatabase(context.Background(), cfg); err != nil {
		t.Fatalf("AddDatabase: %v", err)
	}
	t.Cleanup(func() { _ = r.RemoveDatabase("default") })
	return r
}

func TestODM_SaveAndFindByID(t *testing.T) {
	r := newTestRegistry(t)
	users, err := odm.New[*testUser](r, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	u := &testUser{Name: "alice", Active: true, Score: 42}
	id, err := users.Save(ctx, u)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if id.IsNull() {
		t.Fatal("expected a non-null assigned id")
	}

	got, found, err := users.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if !found {
		t.Fatal("expected to find the saved record")
	}
	if got.Name != "alice" || !got.Active || got.Score != 42 {
		t.Fatalf("unexpected hydrated record: %+v", got)
	}
}

func TestODM_SaveRejectsInvalidField(t *testing.T) {
	r := newTestRegistry(t)
	users, err := odm.New[*testUser](r, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	u := &testUser{Name: "", Active: false, Score: 1}
	if _, err := users.Save(context.Background(), u); err == nil {
		t.Fatal("expected a validation error for a required, empty name")
	}
}

func TestODM_FindUpdateDeleteCountExists(t *testing.T) {
	r := newTestRegistry(t)
	users, err := odm.New[*testUser](r, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	for _, name := range []string{"bob", "carol", "dave"} {
		if _, err := users.Save(ctx, &testUser{Name: name, Active: true, Score: 10}); err != nil {
			t.Fatalf("Save(%s): %v", name, err)
		}
	}

	all, err := users.Find(ctx, query.ConditionGroup{}, query.Options{})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}

	count, err := users.Count(ctx, query.ConditionGroup{})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected count 3, got %d", count)
	}

	exists, err := users.Exists(ctx, query.Leaf("name", query.Eq, value.String("bob")))
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Fatal("expected bob to exist")
	}

	affected, err := users.Update(ctx, query.Leaf("name", query.Eq, value.String("bob")), map[string]value.Value{"score": value.Int(99)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 row updated, got %d", affected)
	}

	deleted, err := users.Delete(ctx, query.Leaf("name", query.Eq, value.String("carol")))
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 row deleted, got %d", deleted)
	}

	remaining, err := users.Count(ctx, query.ConditionGroup{})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if remaining != 2 {
		t.Fatalf("expected 2 remaining after delete, got %d", remaining)
	}
}

func TestODM_FindWithGroups(t *testing.T) {
	r := newTestRegistry(t)
	users, err := odm.New[*testUser](r, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if _, err := users.Save(ctx, &testUser{Name: "erin", Active: true, Score: 5}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	groups := []query.ConditionGroup{
		query.Leaf("active", query.Eq, value.Bool(true)),
		query.Leaf("name", query.Eq, value.String("erin")),
	}
	found, err := users.FindWithGroups(ctx, groups, query.Options{})
	if err != nil {
		t.Fatalf("FindWithGroups: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected 1 match, got %d", len(found))
	}
}

func TestODM_CreateTableIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	users, err := odm.New[*testUser](r, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := users.CreateTable(ctx); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := users.CreateTable(ctx); err != nil {
		t.Fatalf("second CreateTable should be a no-op, got: %v", err)
	}
}
