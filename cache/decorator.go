package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/forbearing/polydb/adapter"
	"github.com/forbearing/polydb/model"
	"github.com/forbearing/polydb/query"
	"github.com/forbearing/polydb/value"
)

// Decorator wraps an adapter.Adapter with a read-through cache (spec §4.E "cache decorator").
// Invalidation is generation-based: each table has a monotonically increasing generation
// number folded into every fingerprint for that table; a write bumps the generation instead of
// scanning the store for matching keys, so Store never needs prefix deletion.
type Decorator struct {
	next  adapter.Adapter
	store Store
	ttl   time.Duration
	gens  cmap.ConcurrentMap[string, int64]
}

// NewDecorator wraps next with store, caching reads for ttl.
func NewDecorator(next adapter.Adapter, store Store, ttl time.Duration) *Decorator {
	return &Decorator{next: next, store: store, ttl: ttl, gens: cmap.New[int64]()}
}

func (d *Decorator) generation(table string) int64 {
	g, _ := d.gens.Get(table)
	return g
}

// InvalidateTable bumps table's generation, making every previously cached fingerprint for it
// unreachable (spec §4.E: "writes targeting a table invalidate all cache entries for that
// table").
func (d *Decorator) InvalidateTable(table string) {
	d.gens.Upsert(table, 0, func(ok bool, existing, _ int64) int64 {
		if ok {
			return existing + 1
		}
		return 1
	})
}

func fingerprint(table string, gen int64, parts ...any) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d", table, gen)
	for _, p := range parts {
		b, _ := json.Marshal(p)
		h.Write([]byte{0})
		h.Write(b)
	}
	return "polydb:" + table + ":" + hex.EncodeToString(h.Sum(nil))
}

func (d *Decorator) cachedLookup(ctx context.Context, key string, dst any) bool {
	raw, ok, err := d.store.Get(ctx, key)
	if err != nil || !ok {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

func (d *Decorator) cacheStore(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = d.store.Set(ctx, key, raw, d.ttl)
}

func (d *Decorator) FindByID(ctx context.Context, table string, meta *model.ModelMeta, id value.Value) (adapter.Record, bool, error) {
	key := fingerprint(table, d.generation(table), "find_by_id", id)
	var cached struct {
		Rec   adapter.Record
		Found bool
	}
	if d.cachedLookup(ctx, key, &cached) {
		return cached.Rec, cached.Found, nil
	}
	rec, found, err := d.next.FindByID(ctx, table, meta, id)
	if err != nil {
		return nil, false, err
	}
	d.cacheStore(ctx, key, struct {
		Rec   adapter.Record
		Found bool
	}{rec, found})
	return rec, found, nil
}

func (d *Decorator) Find(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup, opts query.Options) ([]adapter.Record, error) {
	key := fingerprint(table, d.generation(table), "find", where, opts)
	var rows []adapter.Record
	if d.cachedLookup(ctx, key, &rows) {
		return rows, nil
	}
	rows, err := d.next.Find(ctx, table, meta, where, opts)
	if err != nil {
		return nil, err
	}
	d.cacheStore(ctx, key, rows)
	return rows, nil
}

func (d *Decorator) Count(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup) (int64, error) {
	key := fingerprint(table, d.generation(table), "count", where)
	var raw []byte
	if b, ok, err := d.store.Get(ctx, key); err == nil && ok {
		raw = b
		if n, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
			return n, nil
		}
	}
	n, err := d.next.Count(ctx, table, meta, where)
	if err != nil {
		return 0, err
	}
	_ = d.store.Set(ctx, key, []byte(strconv.FormatInt(n, 10)), d.ttl)
	return n, nil
}

func (d *Decorator) Exists(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup) (bool, error) {
	n, err := d.Count(ctx, table, meta, where)
	return n > 0, err
}

func (d *Decorator) Create(ctx context.Context, table string, meta *model.ModelMeta, rec adapter.Record) (value.Value, error) {
	id, err := d.next.Create(ctx, table, meta, rec)
	if err == nil {
		d.InvalidateTable(table)
	}
	return id, err
}

func (d *Decorator) Update(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup, set adapter.Record) (int64, error) {
	n, err := d.next.Update(ctx, table, meta, where, set)
	if err == nil {
		d.InvalidateTable(table)
	}
	return n, err
}

func (d *Decorator) UpdateByID(ctx context.Context, table string, meta *model.ModelMeta, id value.Value, set adapter.Record) (bool, error) {
	ok, err := d.next.UpdateByID(ctx, table, meta, id, set)
	if err == nil {
		d.InvalidateTable(table)
	}
	return ok, err
}

func (d *Decorator) UpdateWithOperations(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup, ops []query.UpdateOperation) (int64, error) {
	n, err := d.next.UpdateWithOperations(ctx, table, meta, where, ops)
	if err == nil {
		d.InvalidateTable(table)
	}
	return n, err
}

func (d *Decorator) Delete(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup) (int64, error) {
	n, err := d.next.Delete(ctx, table, meta, where)
	if err == nil {
		d.InvalidateTable(table)
	}
	return n, err
}

func (d *Decorator) DeleteByID(ctx context.Context, table string, meta *model.ModelMeta, id value.Value) (bool, error) {
	ok, err := d.next.DeleteByID(ctx, table, meta, id)
	if err == nil {
		d.InvalidateTable(table)
	}
	return ok, err
}

func (d *Decorator) CreateTable(ctx context.Context, table string, meta *model.ModelMeta) error {
	err := d.next.CreateTable(ctx, table, meta)
	if err == nil {
		d.InvalidateTable(table)
	}
	return err
}

func (d *Decorator) CreateIndex(ctx context.Context, table string, idx model.IndexDefinition) error {
	return d.next.CreateIndex(ctx, table, idx)
}

func (d *Decorator) TableExists(ctx context.Context, table string) (bool, error) {
	return d.next.TableExists(ctx, table)
}

func (d *Decorator) DropTable(ctx context.Context, table string) error {
	err := d.next.DropTable(ctx, table)
	if err == nil {
		d.InvalidateTable(table)
	}
	return err
}

func (d *Decorator) ServerVersion(ctx context.Context) (string, error) {
	return d.next.ServerVersion(ctx)
}

func (d *Decorator) Close() error {
	_ = d.store.Close()
	return d.next.Close()
}

var _ adapter.Adapter = (*Decorator)(nil)
