// Package odm implements spec §4.I's typed operations over a registered model: save,
// find_by_id, find, find_with_groups, update, update_with_operations, delete, count, exists and
// create_table. Grounded on original_source/src/model/manager.rs's ModelManager/ModelOperations
// trait shape and on forbearing-gst/database/database.go's Database[M]/Create/List/Get/
// Update/Delete method family, generalized from M's GORM calls to registry/pool calls and from
// a single global *gorm.DB to an aliased registry.Entry.
package odm

import (
	"context"
	"reflect"

	"github.com/forbearing/polydb/adapter"
	"github.com/forbearing/polydb/dberrors"
	"github.com/forbearing/polydb/model"
	"github.com/forbearing/polydb/query"
	"github.com/forbearing/polydb/registry"
	"github.com/forbearing/polydb/value"
)

// Model is what a type must implement to be driven through an ODM[M]: collection identity,
// its field/index metadata, and id get/set for the save-path id strategies (spec §4.I).
// DatabaseAlias is optional — implement it to pin a model to a non-default alias; its absence
// is detected via a type assertion in New.
type Model interface {
	CollectionName() string
	Meta() model.ModelMeta
	GetID() value.Value
	SetID(value.Value)
}

type aliasedModel interface {
	DatabaseAlias() string
}

// ODM is a registered model's typed operation surface. M is the model's pointer receiver type
// (e.g. *User), mirroring forbearing-gst's Database[*model.User] generic shape.
type ODM[M Model] struct {
	reg        *registry.Registry
	collection string
	alias      string
}

// New registers M's metadata (idempotently — model.Registry.Register is a no-op on an identical
// re-registration, spec §4.H "the macro ... invokes registration once via a run-once guard") and
// returns its typed operation surface. alias overrides the model's own DatabaseAlias(), if any;
// pass "" to use the model's alias or the registry's default.
func New[M Model](reg *registry.Registry, alias string) (*ODM[M], error) {
	zero := newInstance[M]()
	meta := zero.Meta()
	collection := zero.CollectionName()
	if meta.Collection == "" {
		meta.Collection = collection
	}

	resolvedAlias := alias
	if resolvedAlias == "" {
		if a, ok := any(zero).(aliasedModel); ok {
			resolvedAlias = a.DatabaseAlias()
		}
	}
	entry, err := reg.Get(resolvedAlias)
	if err != nil {
		return nil, err
	}
	meta.Alias = entry.Alias
	meta.IDStrategy = entry.Strategy.Kind()

	if err := reg.Meta.Register(meta); err != nil {
		return nil, err
	}
	return &ODM[M]{reg: reg, collection: collection, alias: entry.Alias}, nil
}

func newInstance[M Model]() M {
	var m M
	t := reflect.TypeOf(m).Elem()
	return reflect.New(t).Interface().(M)
}

func (o *ODM[M]) resolve() (*registry.Entry, *model.ModelMeta, error) {
	entry, err := o.reg.Get(o.alias)
	if err != nil {
		return nil, nil, err
	}
	meta, _ := o.reg.Meta.Lookup(o.alias, o.collection)
	return entry, meta, nil
}

// Save validates instance against the registered metadata, assigns an id when the id strategy
// requires the caller to supply one (Uuid/Snowflake/Custom) and none is set, converts it to a
// backend-neutral record, and calls Create (spec §4.I save path). The allocated/assigned id is
// both returned and written back onto instance via SetID.
func (o *ODM[M]) Save(ctx context.Context, instance M) (value.Value, error) {
	entry, meta, err := o.resolve()
	if err != nil {
		return value.Null(), err
	}

	if id := instance.GetID(); id.IsNull() {
		if generated, mustSet := entry.Strategy.Generate(); mustSet {
			instance.SetID(generated)
		}
	}

	rec, err := toRecord(instance)
	if err != nil {
		return value.Null(), err
	}
	if meta != nil {
		for name, def := range meta.Fields {
			if err := model.ValidateField(name, def, rec[name]); err != nil {
				return value.Null(), err
			}
		}
	}
	if id := instance.GetID(); !id.IsNull() {
		rec["id"] = id
	}

	id, err := entry.Adapter.Create(ctx, o.collection, meta, rec)
	if err != nil {
		return value.Null(), err
	}
	instance.SetID(id)
	return id, nil
}

// FindByID looks up one record by id and hydrates it into a fresh M (spec §4.I find_by_id).
func (o *ODM[M]) FindByID(ctx context.Context, id value.Value) (M, bool, error) {
	var zero M
	entry, meta, err := o.resolve()
	if err != nil {
		return zero, false, err
	}
	rec, found, err := entry.Adapter.FindByID(ctx, o.collection, meta, id)
	if err != nil || !found {
		return zero, found, err
	}
	return o.hydrate(rec)
}

// Find runs where/opts against the collection and hydrates every result (spec §4.I find).
func (o *ODM[M]) Find(ctx context.Context, where query.ConditionGroup, opts query.Options) ([]M, error) {
	entry, meta, err := o.resolve()
	if err != nil {
		return nil, err
	}
	rows, err := entry.Adapter.Find(ctx, o.collection, meta, where, opts)
	if err != nil {
		return nil, err
	}
	return o.hydrateAll(rows)
}

// FindWithGroups ANDs together a list of pre-built condition groups before running Find,
// matching spec §4.I's separate find_with_groups(groups, options) entry point.
func (o *ODM[M]) FindWithGroups(ctx context.Context, groups []query.ConditionGroup, opts query.Options) ([]M, error) {
	return o.Find(ctx, query.AndGroup(groups...), opts)
}

// Update applies set to every record matching where (spec §4.I update).
func (o *ODM[M]) Update(ctx context.Context, where query.ConditionGroup, set adapter.Record) (int64, error) {
	entry, meta, err := o.resolve()
	if err != nil {
		return 0, err
	}
	return entry.Adapter.Update(ctx, o.collection, meta, where, set)
}

// UpdateWithOperations applies arithmetic update operators to every record matching where
// (spec §4.I update_with_operations).
func (o *ODM[M]) UpdateWithOperations(ctx context.Context, where query.ConditionGroup, ops []query.UpdateOperation) (int64, error) {
	entry, meta, err := o.resolve()
	if err != nil {
		return 0, err
	}
	return entry.Adapter.UpdateWithOperations(ctx, o.collection, meta, where, ops)
}

// Delete removes every record matching where (spec §4.I delete).
func (o *ODM[M]) Delete(ctx context.Context, where query.ConditionGroup) (int64, error) {
	entry, meta, err := o.resolve()
	if err != nil {
		return 0, err
	}
	return entry.Adapter.Delete(ctx, o.collection, meta, where)
}

// Count returns the number of records matching where (spec §4.I count).
func (o *ODM[M]) Count(ctx context.Context, where query.ConditionGroup) (int64, error) {
	entry, meta, err := o.resolve()
	if err != nil {
		return 0, err
	}
	return entry.Adapter.Count(ctx, o.collection, meta, where)
}

// Exists reports whether any record matches where (spec §4.I exists).
func (o *ODM[M]) Exists(ctx context.Context, where query.ConditionGroup) (bool, error) {
	entry, meta, err := o.resolve()
	if err != nil {
		return false, err
	}
	return entry.Adapter.Exists(ctx, o.collection, meta, where)
}

// CreateTable issues the collection's DDL if it does not already exist (spec §4.I create_table,
// idempotent).
func (o *ODM[M]) CreateTable(ctx context.Context) error {
	entry, meta, err := o.resolve()
	if err != nil {
		return err
	}
	if meta == nil {
		return dberrors.NewValidationError(o.collection, "no metadata registered for this model")
	}
	return entry.Adapter.CreateTable(ctx, o.collection, meta)
}

func (o *ODM[M]) hydrate(rec adapter.Record) (M, bool, error) {
	instance := newInstance[M]()
	if err := fromRecord(rec, instance); err != nil {
		var zero M
		return zero, false, err
	}
	if id, ok := rec["id"]; ok {
		instance.SetID(id)
	}
	return instance, true, nil
}

func (o *ODM[M]) hydrateAll(rows []adapter.Record) ([]M, error) {
	out := make([]M, 0, len(rows))
	for _, rec := range rows {
		instance, _, err := o.hydrate(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, instance)
	}
	return out, nil
}
