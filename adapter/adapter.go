// Package adapter defines the common per-backend operation surface (spec §4.E): create,
// find_by_id, find, find_with_groups, update, update_by_id, update_with_operations, delete,
// delete_by_id, count, exists, create_table, create_index, table_exists, drop_table and
// get_server_version, implemented once per backend in adapter/{sqlite,mysql,postgres,mongodb}.
// Grounded on original_source/src/adapter/{sqlite,mysql,postgres,mongodb}.rs's shared
// DatabaseAdapter trait shape, and on forbearing-gst/database/sqlite and database/postgres for
// the driver-open conventions (DSN assembly, ping-on-open).
package adapter

import (
	"context"

	"github.com/forbearing/polydb/model"
	"github.com/forbearing/polydb/query"
	"github.com/forbearing/polydb/value"
)

// Record is one row/document: field name to value, backend-neutral.
type Record map[string]value.Value

// Adapter is the operation contract every backend implements. Every method takes the
// collection/table name and, where relevant, the registered model.ModelMeta driving type
// mapping and auto-create-table (meta may be nil, in which case adapters fall back to a
// best-effort heuristic per spec §4.E policy 3).
type Adapter interface {
	Create(ctx context.Context, table string, meta *model.ModelMeta, rec Record) (value.Value, error)
	FindByID(ctx context.Context, table string, meta *model.ModelMeta, id value.Value) (Record, bool, error)
	Find(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup, opts query.Options) ([]Record, error)
	Update(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup, set Record) (int64, error)
	UpdateByID(ctx context.Context, table string, meta *model.ModelMeta, id value.Value, set Record) (bool, error)
	UpdateWithOperations(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup, ops []query.UpdateOperation) (int64, error)
	Delete(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup) (int64, error)
	DeleteByID(ctx context.Context, table string, meta *model.ModelMeta, id value.Value) (bool, error)
	Count(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup) (int64, error)
	Exists(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup) (bool, error)

	CreateTable(ctx context.Context, table string, meta *model.ModelMeta) error
	CreateIndex(ctx context.Context, table string, idx model.IndexDefinition) error
	TableExists(ctx context.Context, table string) (bool, error)
	DropTable(ctx context.Context, table string) error

	ServerVersion(ctx context.Context) (string, error)
	Close() error
}

// TableCreationObserver is notified exactly once per real CreateTable invocation issued by an
// adapter's auto-create-table double-checked lock (spec §8 property 6's "exactly one
// create_table invocation observable by instrumentation"). metrics.Collectors implements this;
// adapters accept one via SetObserver so this package need not import metrics.
type TableCreationObserver interface {
	ObserveTableCreation(alias, table string)
}
