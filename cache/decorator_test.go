package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/forbearing/polydb/adapter"
	"github.com/forbearing/polydb/cache"
	"github.com/forbearing/polydb/config"
	"github.com/forbearing/polydb/model"
	"github.com/forbearing/polydb/query"
	"github.com/forbearing/polydb/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingAdapter is a minimal in-memory adapter.Adapter used to verify the Decorator's
// caching and invalidation behavior without needing a live backend. Find counts its calls,
// FindByID panics if called, and every other operation returns a fixed result.
type countingAdapter struct {
	findCalls int
	rows      []adapter.Record
}

func (c *countingAdapter) Find(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup, opts query.Options) ([]adapter.Record, error) {
	c.findCalls++
	return c.rows, nil
}
func (c *countingAdapter) FindByID(ctx context.Context, table string, meta *model.ModelMeta, id value.Value) (adapter.Record, bool, error) {
	panic("unused")
}
func (c *countingAdapter) Create(ctx context.Context, table string, meta *model.ModelMeta, rec adapter.Record) (value.Value, error) {
	return value.Int(1), nil
}
func (c *countingAdapter) Update(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup, set adapter.Record) (int64, error) {
	return 1, nil
}
func (c *countingAdapter) UpdateByID(ctx context.Context, table string, meta *model.ModelMeta, id value.Value, set adapter.Record) (bool, error) {
	return true, nil
}
func (c *countingAdapter) UpdateWithOperations(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup, ops []query.UpdateOperation) (int64, error) {
	return 1, nil
}
func (c *countingAdapter) Delete(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup) (int64, error) {
	return 1, nil
}
func (c *countingAdapter) DeleteByID(ctx context.Context, table string, meta *model.ModelMeta, id value.Value) (bool, error) {
	return true, nil
}
func (c *countingAdapter) Count(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup) (int64, error) {
	return int64(len(c.rows)), nil
}
func (c *countingAdapter) Exists(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup) (bool, error) {
	return len(c.rows) > 0, nil
}
func (c *countingAdapter) CreateTable(ctx context.Context, table string, meta *model.ModelMeta) error {
	return nil
}
func (c *countingAdapter) CreateIndex(ctx context.Context, table string, idx model.IndexDefinition) error {
	return nil
}
func (c *countingAdapter) TableExists(ctx context.Context, table string) (bool, error) { return true, nil }
func (c *countingAdapter) DropTable(ctx context.Context, table string) error            { return nil }
func (c *countingAdapter) ServerVersion(ctx context.Context) (string, error)            { return "test", nil }
func (c *countingAdapter) Close() error                                                 { return nil }

func newDecorator(t *testing.T, underlying *countingAdapter) *cache.Decorator {
	t.Helper()
	store, err := cache.NewStore(config.CacheConfig{Backend: config.CacheRistretto, MaxCost: 1 << 20})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return cache.NewDecorator(underlying, store, time.Minute)
}

func TestDecorator_CachesReads(t *testing.T) {
	underlying := &countingAdapter{rows: []adapter.Record{{"name": value.String("alice")}}}
	d := newDecorator(t, underlying)
	ctx := context.Background()

	_, err := d.Find(ctx, "users", nil, query.ConditionGroup{}, query.Options{})
	require.NoError(t, err)
	_, err = d.Find(ctx, "users", nil, query.ConditionGroup{}, query.Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, underlying.findCalls, "second Find should be served from cache")
}

func TestDecorator_WriteInvalidatesTable(t *testing.T) {
	underlying := &countingAdapter{rows: []adapter.Record{{"name": value.String("alice")}}}
	d := newDecorator(t, underlying)
	ctx := context.Background()

	_, err := d.Find(ctx, "users", nil, query.ConditionGroup{}, query.Options{})
	require.NoError(t, err)

	_, err = d.Create(ctx, "users", nil, adapter.Record{"name": value.String("bob")})
	require.NoError(t, err)

	_, err = d.Find(ctx, "users", nil, query.ConditionGroup{}, query.Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, underlying.findCalls, "a write must invalidate the table's cached reads")
}

func TestDecorator_DifferentConditionsAreDifferentKeys(t *testing.T) {
	underlying := &countingAdapter{rows: []adapter.Record{{"name": value.String("alice")}}}
	d := newDecorator(t, underlying)
	ctx := context.Background()

	_, err := d.Find(ctx, "users", nil, query.Leaf("name", query.Eq, value.String("alice")), query.Options{})
	require.NoError(t, err)
	_, err = d.Find(ctx, "users", nil, query.Leaf("name", query.Eq, value.String("bob")), query.Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, underlying.findCalls)
}
