// Package registry implements spec §4.H's global registry: process-wide mutable state mapping
// alias to pool, alias to ID strategy, and tracking a single default_alias, built on top of
// model.Registry for the (alias,collection)->ModelMeta half. Grounded on spec §4.H directly and
// on forbearing-gst/database/database.go's package-level `DB *gorm.DB` plus its
// migratedModelMap run-once guard, generalized here from "one global connection" to "a map of
// aliased pools with explicit add/remove lifecycle".
package registry

import (
	"context"
	"sync"

	"github.com/forbearing/polydb/adapter"
	"github.com/forbearing/polydb/adapter/mongodb"
	"github.com/forbearing/polydb/adapter/mysql"
	"github.com/forbearing/polydb/adapter/postgres"
	"github.com/forbearing/polydb/adapter/sqlite"
	"github.com/forbearing/polydb/cache"
	"github.com/forbearing/polydb/config"
	"github.com/forbearing/polydb/dberrors"
	"github.com/forbearing/polydb/idstrategy"
	"github.com/forbearing/polydb/logger"
	"github.com/forbearing/polydb/metrics"
	"github.com/forbearing/polydb/model"
	"github.com/forbearing/polydb/pool"
)

// Entry is everything the ODM needs for one registered alias: the (possibly cache-decorated)
// operation surface and the ID strategy that governs its save path.
type Entry struct {
	Alias    string
	DBType   config.DBType
	Adapter  adapter.Adapter
	Strategy idstrategy.Strategy
}

// Registry holds every registered alias plus the model metadata registry shared across them.
// Read access (Get, Models lookups through Meta) is lock-biased via sync.RWMutex; write access
// (AddDatabase, RemoveDatabase) serializes, matching spec §4.H's "read access is lock-free or
// read-biased; write access serializes inserts/removes".
type Registry struct {
	mu           sync.RWMutex
	entries      map[string]*Entry
	defaultAlias string
	Meta         *model.Registry

	// Metrics, if set before AddDatabase is called, instruments every alias added afterwards
	// (spec §3.J). Nil by default, keeping the registry's ambient cost at zero for callers that
	// never register a prometheus.Registerer.
	Metrics *metrics.Collectors
}

// New builds an empty Registry. Default wraps a process-wide instance of this; call sites that
// want isolation (tests) construct their own.
func New() *Registry {
	return &Registry{entries: make(map[string]*Entry), Meta: model.NewRegistry()}
}

// Default is the process-wide registry instance, mirroring the teacher's package-level `DB`
// and spec §4.H's "process-wide mutable state".
var Default = New()

// AddDatabase builds a pool for cfg and inserts it under cfg.Alias, optionally wrapping it in
// the cache decorator when cfg.Cache is set (spec §4.H create half). If cfg.Default is true,
// this alias becomes the registry's default_alias; the last AddDatabase call with Default==true
// wins, matching config.DatabaseConfig.Default's documented "last one applied" rule.
func (r *Registry) AddDatabase(ctx context.Context, cfg config.DatabaseConfig) error {
	cfg.SetDefault()
	if err := cfg.Validate(); err != nil {
		return err
	}

	opener, err := connOpener(cfg, r.Metrics)
	if err != nil {
		return err
	}

	p, err := pool.Open(ctx, cfg.Alias, cfg.DBType, cfg.Pool, opener, aliasLogger(cfg.Alias), r.Metrics)
	if err != nil {
		return dberrors.NewConnectionError("registry: opening alias %q: %v", cfg.Alias, err)
	}

	var a adapter.Adapter = p
	if cfg.Cache != nil {
		store, err := cache.NewStore(*cfg.Cache)
		if err != nil {
			_ = p.Close()
			return dberrors.Wrap(err, "registry: building cache store for alias "+cfg.Alias)
		}
		a = cache.NewDecorator(p, store, cfg.Cache.TTL)
	}

	strategy, err := idstrategy.New(cfg.IDStrategy)
	if err != nil {
		_ = a.Close()
		return err
	}

	entry := &Entry{Alias: cfg.Alias, DBType: cfg.DBType, Adapter: a, Strategy: strategy}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[cfg.Alias]; ok {
		_ = existing.Adapter.Close()
	}
	r.entries[cfg.Alias] = entry
	if cfg.Default {
		r.defaultAlias = cfg.Alias
	}
	return nil
}

// RemoveDatabase closes alias's pool (and cache store, if any) and removes its registered
// models (spec §4.H remove_database).
func (r *Registry) RemoveDatabase(alias string) error {
	r.mu.Lock()
	entry, ok := r.entries[alias]
	if ok {
		delete(r.entries, alias)
		if r.defaultAlias == alias {
			r.defaultAlias = ""
		}
	}
	r.mu.Unlock()

	if !ok {
		return dberrors.NewAliasNotFound(alias)
	}
	r.Meta.RemoveAlias(alias)
	return entry.Adapter.Close()
}

// Get returns the entry registered for alias, or the default alias's entry when alias == "".
func (r *Registry) Get(alias string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if alias == "" {
		alias = r.defaultAlias
	}
	if alias == "" {
		return nil, dberrors.NewAliasNotFound("<no default alias configured>")
	}
	entry, ok := r.entries[alias]
	if !ok {
		return nil, dberrors.NewAliasNotFound(alias)
	}
	return entry, nil
}

// DefaultAlias reports the currently configured default_alias ("" if none).
func (r *Registry) DefaultAlias() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultAlias
}

// Aliases lists every registered alias in map iteration order, which is not stable; callers
// that need determinism sort the result themselves.
func (r *Registry) Aliases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for a := range r.entries {
		out = append(out, a)
	}
	return out
}

func aliasLogger(alias string) logger.Logger {
	return logger.Pool.WithAlias(alias)
}

// connOpener builds the openConn closure pool.Open uses both for the initial connection and
// for every later reconnect/rebuild (spec §4.F "reconnection ... using the same path used at
// startup"). Called only after cfg.SetDefault(), which always fills in the connection block
// matching cfg.DBType, so the per-backend connection pointers below are never nil. m, if
// non-nil, is wired onto every opened SQL adapter as its table-creation observer (spec §3.J).
func connOpener(cfg config.DatabaseConfig, m *metrics.Collectors) (func(ctx context.Context) (adapter.Adapter, error), error) {
	switch cfg.DBType {
	case config.SQLite:
		conn := cfg.Connection.Sqlite
		return func(ctx context.Context) (adapter.Adapter, error) {
			a, err := sqlite.Open(ctx, conn, cfg.Pool.TableSettleDelay)
			if err != nil {
				return nil, err
			}
			a.SetObserver(cfg.Alias, m)
			return a, nil
		}, nil
	case config.MySQL:
		conn := cfg.Connection.MySQL
		return func(ctx context.Context) (adapter.Adapter, error) {
			a, err := mysql.Open(ctx, conn, cfg.Pool)
			if err != nil {
				return nil, err
			}
			a.SetObserver(cfg.Alias, m)
			return a, nil
		}, nil
	case config.PostgreSQL:
		conn := cfg.Connection.Postgres
		return func(ctx context.Context) (adapter.Adapter, error) {
			a, err := postgres.Open(ctx, conn, cfg.Pool)
			if err != nil {
				return nil, err
			}
			a.SetObserver(cfg.Alias, m)
			return a, nil
		}, nil
	case config.MongoDB:
		conn := cfg.Connection.Mongo
		return func(ctx context.Context) (adapter.Adapter, error) {
			return mongodb.Open(ctx, conn)
		}, nil
	default:
		return nil, dberrors.NewUnsupportedDatabase(string(cfg.DBType))
	}
}
