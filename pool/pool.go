package pool

import (
	"context"
	"time"

	"github.com/forbearing/polydb/adapter"
	"github.com/forbearing/polydb/config"
	"github.com/forbearing/polydb/dberrors"
	"github.com/forbearing/polydb/logger"
	"github.com/forbearing/polydb/metrics"
	"github.com/forbearing/polydb/model"
	"github.com/forbearing/polydb/query"
	"github.com/forbearing/polydb/value"
)

// Pool is the facade spec §4.G describes: it implements adapter.Adapter itself, so registry and
// odm never distinguish "talking to a pooled connection" from "talking to a bare adapter". Every
// method builds an operation message carrying its arguments plus a single-shot reply channel,
// pushes it onto the dispatcher's mailbox, and awaits the reply. A dropped reply channel (the
// dispatcher closed underneath the caller) is surfaced as ConnectionError{"pool closed"}.
type Pool struct {
	d       dispatcher
	log     logger.Logger
	alias   string
	backend string
	metrics *metrics.Collectors
}

// Open starts the backend-appropriate dispatcher: a single sqliteWorker for config.SQLite, a
// multiManager slot pool for everything else (spec §4.F's backend split). m is the optional
// metrics.Collectors observing this alias's mailbox depth / slot counts / operation latency;
// pass nil to disable.
func Open(ctx context.Context, alias string, backend config.DBType, cfg config.PoolConfig, openConn func(ctx context.Context) (adapter.Adapter, error), log logger.Logger, m *metrics.Collectors) (*Pool, error) {
	initial, err := openConn(ctx)
	if err != nil {
		return nil, dberrors.NewConnectionError("pool: initial connection: %v", err)
	}

	var d dispatcher
	if backend == config.SQLite {
		d = newSQLiteWorker(ctx, alias, initial, cfg, openConn, log, m)
	} else {
		_ = initial.Close()
		mm, err := newMultiManager(ctx, alias, cfg, openConn, log, m)
		if err != nil {
			return nil, err
		}
		d = mm
	}
	return &Pool{d: d, log: log, alias: alias, backend: string(backend), metrics: m}, nil
}

func (p *Pool) Close() error { return p.d.close() }

// dispatch wraps the dispatcher's dispatch with operation-latency observation (spec §3.J), so
// every Adapter method below times the call without repeating the time.Since/ObserveOperation
// pair itself.
func (p *Pool) dispatch(ctx context.Context, operation string, fn func(adapter.Adapter) (any, error)) (any, error) {
	start := time.Now()
	res, err := p.d.dispatch(ctx, fn)
	p.metrics.ObserveOperation(p.alias, operation, p.backend, time.Since(start))
	return res, err
}

func (p *Pool) Create(ctx context.Context, table string, meta *model.ModelMeta, rec adapter.Record) (value.Value, error) {
	res, err := p.dispatch(ctx, "create", func(a adapter.Adapter) (any, error) {
		return a.Create(ctx, table, meta, rec)
	})
	if err != nil {
		return value.Null(), err
	}
	return res.(value.Value), nil
}

func (p *Pool) FindByID(ctx context.Context, table string, meta *model.ModelMeta, id value.Value) (adapter.Record, bool, error) {
	res, err := p.dispatch(ctx, "find_by_id", func(a adapter.Adapter) (any, error) {
		rec, found, ferr := a.FindByID(ctx, table, meta, id)
		return findByIDResult{rec, found}, ferr
	})
	if err != nil {
		return nil, false, err
	}
	r := res.(findByIDResult)
	return r.rec, r.found, nil
}

type findByIDResult struct {
	rec   adapter.Record
	found bool
}

func (p *Pool) Find(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup, opts query.Options) ([]adapter.Record, error) {
	res, err := p.dispatch(ctx, "find", func(a adapter.Adapter) (any, error) {
		return a.Find(ctx, table, meta, where, opts)
	})
	if err != nil {
		return nil, err
	}
	return res.([]adapter.Record), nil
}

func (p *Pool) Update(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup, set adapter.Record) (int64, error) {
	res, err := p.dispatch(ctx, "update", func(a adapter.Adapter) (any, error) {
		return a.Update(ctx, table, meta, where, set)
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

func (p *Pool) UpdateByID(ctx context.Context, table string, meta *model.ModelMeta, id value.Value, set adapter.Record) (bool, error) {
	res, err := p.dispatch(ctx, "update_by_id", func(a adapter.Adapter) (any, error) {
		return a.UpdateByID(ctx, table, meta, id, set)
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

func (p *Pool) UpdateWithOperations(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup, ops []query.UpdateOperation) (int64, error) {
	res, err := p.dispatch(ctx, "update_with_operations", func(a adapter.Adapter) (any, error) {
		return a.UpdateWithOperations(ctx, table, meta, where, ops)
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

func (p *Pool) Delete(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup) (int64, error) {
	res, err := p.dispatch(ctx, "delete", func(a adapter.Adapter) (any, error) {
		return a.Delete(ctx, table, meta, where)
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

func (p *Pool) DeleteByID(ctx context.Context, table string, meta *model.ModelMeta, id value.Value) (bool, error) {
	res, err := p.dispatch(ctx, "delete_by_id", func(a adapter.Adapter) (any, error) {
		return a.DeleteByID(ctx, table, meta, id)
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

func (p *Pool) Count(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup) (int64, error) {
	res, err := p.dispatch(ctx, "count", func(a adapter.Adapter) (any, error) {
		return a.Count(ctx, table, meta, where)
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

func (p *Pool) Exists(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup) (bool, error) {
	res, err := p.dispatch(ctx, "exists", func(a adapter.Adapter) (any, error) {
		return a.Exists(ctx, table, meta, where)
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

func (p *Pool) CreateTable(ctx context.Context, table string, meta *model.ModelMeta) error {
	_, err := p.dispatch(ctx, "create_table", func(a adapter.Adapter) (any, error) {
		return nil, a.CreateTable(ctx, table, meta)
	})
	return err
}

func (p *Pool) CreateIndex(ctx context.Context, table string, idx model.IndexDefinition) error {
	_, err := p.dispatch(ctx, "create_index", func(a adapter.Adapter) (any, error) {
		return nil, a.CreateIndex(ctx, table, idx)
	})
	return err
}

func (p *Pool) TableExists(ctx context.Context, table string) (bool, error) {
	res, err := p.dispatch(ctx, "table_exists", func(a adapter.Adapter) (any, error) {
		return a.TableExists(ctx, table)
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

func (p *Pool) DropTable(ctx context.Context, table string) error {
	_, err := p.dispatch(ctx, "drop_table", func(a adapter.Adapter) (any, error) {
		return nil, a.DropTable(ctx, table)
	})
	return err
}

func (p *Pool) ServerVersion(ctx context.Context) (string, error) {
	res, err := p.dispatch(ctx, "server_version", func(a adapter.Adapter) (any, error) {
		return a.ServerVersion(ctx)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

var _ adapter.Adapter = (*Pool)(nil)
