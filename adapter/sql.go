package adapter

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/shopspring/decimal"

	"github.com/forbearing/polydb/dberrors"
	"github.com/forbearing/polydb/idstrategy"
	"github.com/forbearing/polydb/model"
	"github.com/forbearing/polydb/query"
	"github.com/forbearing/polydb/querybuilder"
	"github.com/forbearing/polydb/value"
)

// SQLAdapter implements Adapter over any database/sql driver using querybuilder to lower
// queries to dialect-correct SQL text. The three SQL subpackages (sqlite, mysql, postgres)
// each just open their native driver and hand the resulting *sql.DB here. Grounded on
// original_source/src/adapter/{sqlite,mysql,postgres}.rs sharing nearly all of their control
// flow apart from DDL/type quirks, which ColumnType/IDColumnDDL isolate.
type SQLAdapter struct {
	db       *sql.DB
	dialect  querybuilder.Dialect
	settle   time.Duration
	creating cmap.ConcurrentMap[string, *tableCreationLock]

	alias    string
	observer TableCreationObserver
}

// tableCreationLock is the per-table creation guard behind spec §4.E policy 1's
// double-checked-locking rule: one mutex per table name, created once via Upsert and then
// shared by every goroutine racing to create that table.
type tableCreationLock struct {
	mu   sync.Mutex
	done bool
}

// NewSQL wraps db for dialect. settleDelay is the spec §4.E policy-1 pause after an
// auto-create-table before the triggering write proceeds; tests should pass a near-zero value.
func NewSQL(db *sql.DB, dialect querybuilder.Dialect, settleDelay time.Duration) *SQLAdapter {
	return &SQLAdapter{db: db, dialect: dialect, settle: settleDelay, creating: cmap.New[*tableCreationLock]()}
}

// SetObserver wires an alias-scoped table-creation observer (typically a metrics.Collectors).
// A nil obs disables observation; this is a no-op by default.
func (a *SQLAdapter) SetObserver(alias string, obs TableCreationObserver) {
	a.alias = alias
	a.observer = obs
}

func (a *SQLAdapter) builder(meta *model.ModelMeta) *querybuilder.Builder {
	return querybuilder.New(a.dialect, meta)
}

// ensureTable implements spec §4.E policy 1: double-checked per-table creation lock, metadata
// lookup, create_table, settle delay.
func (a *SQLAdapter) ensureTable(ctx context.Context, table string, meta *model.ModelMeta) error {
	exists, err := a.TableExists(ctx, table)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	lock, _ := a.creating.Upsert(table, nil, func(ok bool, existing, _ *tableCreationLock) *tableCreationLock {
		if ok && existing != nil {
			return existing
		}
		return &tableCreationLock{}
	})

	lock.mu.Lock()
	defer lock.mu.Unlock()
	if lock.done {
		return nil
	}

	exists, err = a.TableExists(ctx, table)
	if err != nil {
		return err
	}
	if exists {
		lock.done = true
		return nil
	}
	if meta == nil {
		return dberrors.NewValidationError("table_creation", "no model metadata registered for table %q", table)
	}
	if err := a.CreateTable(ctx, table, meta); err != nil {
		return err
	}
	lock.done = true
	if a.observer != nil {
		a.observer.ObserveTableCreation(a.alias, table)
	}
	time.Sleep(a.settle)
	return nil
}

// Create inserts rec into table, auto-creating the table on first write (spec §4.E policy 1).
// An AutoIncrement/ObjectId id strategy is recognized by an absent or empty-string "id" entry
// in rec and is omitted from the insert so the backend assigns it (spec §4.E policy 2).
func (a *SQLAdapter) Create(ctx context.Context, table string, meta *model.ModelMeta, rec Record) (value.Value, error) {
	if err := a.ensureTable(ctx, table, meta); err != nil {
		return value.Null(), err
	}

	values := make(map[string]value.Value, len(rec))
	for k, v := range rec {
		if k == "id" {
			if s, ok := v.AsString(); ok && s == "" {
				continue
			}
			if v.IsNull() {
				continue
			}
		}
		values[k] = v
	}

	var returning []string
	if a.dialect == querybuilder.PostgreSQL {
		returning = []string{"id"}
	}
	sqlText, params, err := a.builder(meta).Insert(querybuilder.InsertInput{Table: table, Values: values, Returning: returning})
	if err != nil {
		return value.Null(), err
	}
	args := toDriverArgs(params)

	if a.dialect == querybuilder.PostgreSQL && len(returning) > 0 {
		var id int64
		if err := a.db.QueryRowContext(ctx, sqlText, args...).Scan(&id); err != nil {
			return value.Null(), dberrors.Wrap(err, "postgres insert")
		}
		return value.Int(id), nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return value.Null(), dberrors.Wrap(err, "begin insert tx")
	}
	res, err := tx.ExecContext(ctx, sqlText, args...)
	if err != nil {
		_ = tx.Rollback()
		return value.Null(), dberrors.Wrap(err, "insert")
	}
	lastID, idErr := res.LastInsertId()
	if err := tx.Commit(); err != nil {
		return value.Null(), dberrors.Wrap(err, "commit insert tx")
	}
	if idErr == nil && lastID != 0 {
		return value.Int(lastID), nil
	}
	if existing, ok := rec["id"]; ok {
		return existing, nil
	}
	return value.Null(), nil
}

func (a *SQLAdapter) FindByID(ctx context.Context, table string, meta *model.ModelMeta, id value.Value) (Record, bool, error) {
	rows, err := a.Find(ctx, table, meta, query.Leaf("id", query.Eq, id), query.Options{Limit: ptrInt64(1)})
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}

func (a *SQLAdapter) Find(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup, opts query.Options) ([]Record, error) {
	exists, err := a.TableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	sortKeys := make([]query.SortKey, len(opts.Sort))
	copy(sortKeys, opts.Sort)
	sqlText, params, err := a.builder(meta).Select(querybuilder.SelectInput{
		Table: table, Where: where, Sort: sortKeys, Limit: opts.Limit, Skip: opts.Skip,
	})
	if err != nil {
		return nil, err
	}
	rows, err := a.db.QueryContext(ctx, sqlText, toDriverArgs(params)...)
	if err != nil {
		return nil, dberrors.Wrap(err, "select")
	}
	defer rows.Close()
	return scanRows(rows, meta)
}

func (a *SQLAdapter) Update(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup, set Record) (int64, error) {
	sqlText, params, err := a.builder(meta).Update(querybuilder.UpdateInput{Table: table, Where: where, Set: set})
	if err != nil {
		return 0, err
	}
	res, err := a.db.ExecContext(ctx, sqlText, toDriverArgs(params)...)
	if err != nil {
		return 0, dberrors.Wrap(err, "update")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (a *SQLAdapter) UpdateByID(ctx context.Context, table string, meta *model.ModelMeta, id value.Value, set Record) (bool, error) {
	n, err := a.Update(ctx, table, meta, query.Leaf("id", query.Eq, id), set)
	return n > 0, err
}

func (a *SQLAdapter) UpdateWithOperations(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup, ops []query.UpdateOperation) (int64, error) {
	sqlText, params, err := a.builder(meta).Update(querybuilder.UpdateInput{Table: table, Where: where, Ops: ops})
	if err != nil {
		return 0, err
	}
	res, err := a.db.ExecContext(ctx, sqlText, toDriverArgs(params)...)
	if err != nil {
		return 0, dberrors.Wrap(err, "update_with_operations")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (a *SQLAdapter) Delete(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup) (int64, error) {
	sqlText, params, err := a.builder(meta).Delete(querybuilder.DeleteInput{Table: table, Where: where})
	if err != nil {
		return 0, err
	}
	res, err := a.db.ExecContext(ctx, sqlText, toDriverArgs(params)...)
	if err != nil {
		return 0, dberrors.Wrap(err, "delete")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (a *SQLAdapter) DeleteByID(ctx context.Context, table string, meta *model.ModelMeta, id value.Value) (bool, error) {
	n, err := a.Delete(ctx, table, meta, query.Leaf("id", query.Eq, id))
	return n > 0, err
}

func (a *SQLAdapter) Count(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup) (int64, error) {
	sqlText, params, err := a.builder(meta).Select(querybuilder.SelectInput{Table: table, Where: where})
	if err != nil {
		return 0, err
	}
	sqlText = "SELECT COUNT(*) FROM (" + sqlText + ") AS polydb_count_subquery"
	var n int64
	if err := a.db.QueryRowContext(ctx, sqlText, toDriverArgs(params)...).Scan(&n); err != nil {
		return 0, dberrors.Wrap(err, "count")
	}
	return n, nil
}

func (a *SQLAdapter) Exists(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup) (bool, error) {
	n, err := a.Count(ctx, table, meta, where)
	return n > 0, err
}

func (a *SQLAdapter) CreateTable(ctx context.Context, table string, meta *model.ModelMeta) error {
	var idKind idstrategy.Kind
	if meta != nil {
		idKind = meta.IDStrategy
	}
	cols := []string{IDColumnDDL(a.dialect, idKind)}
	for _, name := range sortedFieldNames(meta) {
		if name == "id" {
			continue
		}
		def := meta.Fields[name]
		col := fmt.Sprintf("%s %s", name, ColumnType(a.dialect, def.Type))
		if def.Required {
			col += " NOT NULL"
		}
		if def.Unique {
			col += " UNIQUE"
		}
		cols = append(cols, col)
	}
	sqlText := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(cols, ", "))
	_, err := a.db.ExecContext(ctx, sqlText)
	if err != nil {
		return dberrors.Wrap(err, "create_table %q", table)
	}
	for _, idx := range meta.Indexes {
		if err := a.CreateIndex(ctx, table, idx); err != nil {
			return err
		}
	}
	return nil
}

func (a *SQLAdapter) CreateIndex(ctx context.Context, table string, idx model.IndexDefinition) error {
	name := idx.Name
	if name == "" {
		name = "idx_" + table + "_" + strings.Join(idx.Fields, "_")
	}
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	sqlText := fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)", unique, name, table, strings.Join(idx.Fields, ", "))
	_, err := a.db.ExecContext(ctx, sqlText)
	if err != nil {
		return dberrors.Wrap(err, "create_index %q on %q", name, table)
	}
	return nil
}

func (a *SQLAdapter) TableExists(ctx context.Context, table string) (bool, error) {
	var sqlText string
	switch a.dialect {
	case querybuilder.SQLite:
		sqlText = "SELECT 1 FROM sqlite_master WHERE type='table' AND name = ?"
	case querybuilder.MySQL:
		sqlText = "SELECT 1 FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?"
	default:
		sqlText = "SELECT 1 FROM information_schema.tables WHERE table_name = $1"
	}
	var one int
	err := a.db.QueryRowContext(ctx, sqlText, table).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, dberrors.Wrap(err, "table_exists %q", table)
	}
	return true, nil
}

func (a *SQLAdapter) DropTable(ctx context.Context, table string) error {
	_, err := a.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table)
	if err != nil {
		return dberrors.Wrap(err, "drop_table %q", table)
	}
	return nil
}

func (a *SQLAdapter) ServerVersion(ctx context.Context) (string, error) {
	var sqlText string
	switch a.dialect {
	case querybuilder.SQLite:
		sqlText = "SELECT sqlite_version()"
	case querybuilder.MySQL:
		sqlText = "SELECT VERSION()"
	default:
		sqlText = "SHOW server_version"
	}
	var v string
	if err := a.db.QueryRowContext(ctx, sqlText).Scan(&v); err != nil {
		return "", dberrors.Wrap(err, "get_server_version")
	}
	return v, nil
}

func (a *SQLAdapter) Close() error { return a.db.Close() }

func sortedFieldNames(meta *model.ModelMeta) []string {
	names := make([]string, 0, len(meta.Fields))
	for k := range meta.Fields {
		names = append(names, k)
	}
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	return names
}

func ptrInt64(v int64) *int64 { return &v }

func toDriverArgs(params []value.Value) []any {
	args := make([]any, len(params))
	for i, p := range params {
		args[i] = toDriverArg(p)
	}
	return args
}

// toDriverArg converts a value.Value to a driver-accepted Go type.
func toDriverArg(v value.Value) any {
	switch v.Kind() {
	case value.KindNull:
		return nil
	case value.KindBool:
		b, _ := v.AsBool()
		return b
	case value.KindInt:
		i, _ := v.AsInt()
		return i
	case value.KindFloat:
		f, _ := v.AsFloat()
		return f
	case value.KindString:
		s, _ := v.AsString()
		return s
	case value.KindBytes:
		b, _ := v.AsBytes()
		return b
	case value.KindUuid:
		u, _ := v.AsUuid()
		return u.String()
	case value.KindDateTime:
		t, _ := v.AsDateTime()
		return t.UTC()
	case value.KindDecimal:
		d, _ := v.AsDecimal()
		return d.String()
	case value.KindJson:
		raw, _ := v.AsJson()
		return string(raw)
	case value.KindArray, value.KindObject:
		raw, err := v.ToJSON()
		if err != nil {
			return nil
		}
		return string(raw)
	default:
		return nil
	}
}

// scanRows converts *sql.Rows into Records, using meta-driven decoding when available and
// falling back to the heuristic decoder of spec §4.E policy 3 / the MySQL multi-width
// defensive decode otherwise.
func scanRows(rows *sql.Rows, meta *model.ModelMeta) ([]Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, dberrors.Wrap(err, "columns")
	}
	var out []Record
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, dberrors.Wrap(err, "scan")
		}
		rec := Record{}
		for i, col := range cols {
			var def model.FieldDefinition
			var ok bool
			if meta != nil {
				def, ok = meta.Fields[col]
			}
			if ok {
				rec[col] = decodeTyped(raw[i], def.Type.Kind)
			} else {
				rec[col] = decodeHeuristic(col, raw[i])
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, dberrors.Wrap(err, "rows")
	}
	return out, nil
}

func decodeTyped(raw any, kind model.FieldKind) value.Value {
	if raw == nil {
		return value.Null()
	}
	switch kind {
	case model.FieldBoolean:
		return value.Bool(toBool(raw))
	case model.FieldInteger, model.FieldBigInteger:
		return value.Int(toInt64(raw))
	case model.FieldFloat, model.FieldDouble:
		return value.Float(toFloat64(raw))
	case model.FieldJson, model.FieldArray, model.FieldObject:
		return value.Json(toBytes(raw))
	case model.FieldDateTime, model.FieldDateTimeWithTz, model.FieldDate, model.FieldTime:
		if t, ok := raw.(time.Time); ok {
			return value.DateTime(t)
		}
		return value.ParseStringToValue(toString(raw))
	case model.FieldDecimal:
		if d, err := decimal.NewFromString(toString(raw)); err == nil {
			return value.Decimal(d)
		}
		return value.String(toString(raw))
	default:
		return value.String(toString(raw))
	}
}

// decodeHeuristic applies spec §4.E policy 3's fallback rules, and the MySQL adapter's
// defensive multi-width decode: native integer, float, bool and time values keep their kind;
// text is read as bool (only for a handful of boolean-named columns), then JSON if prefixed by
// '{' or '[', then int64, then float64, else a plain string.
func decodeHeuristic(col string, raw any) value.Value {
	if raw == nil {
		return value.Null()
	}
	switch t := raw.(type) {
	case int64:
		return value.Int(t)
	case int32:
		return value.Int(int64(t))
	case uint64:
		return value.Int(int64(t))
	case uint32:
		return value.Int(int64(t))
	case float64:
		return value.Float(t)
	case float32:
		return value.Float(float64(t))
	case bool:
		return value.Bool(t)
	case time.Time:
		return value.DateTime(t)
	case []byte:
		return decodeStringLike(col, string(t))
	case string:
		return decodeStringLike(col, t)
	default:
		return value.String(fmt.Sprintf("%v", t))
	}
}

func decodeStringLike(col, s string) value.Value {
	if isBoolLikeColumn(col) {
		if s == "1" || strings.EqualFold(s, "true") {
			return value.Bool(true)
		}
		if s == "0" || strings.EqualFold(s, "false") {
			return value.Bool(false)
		}
	}
	if len(s) > 0 && (s[0] == '{' || s[0] == '[') {
		return value.ParseStringToValue(s)
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return value.Int(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return value.Float(f)
	}
	return value.String(s)
}

func isBoolLikeColumn(col string) bool {
	c := strings.ToLower(col)
	for _, prefix := range []string{"is_", "has_"} {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	for _, suffix := range []string{"_flag", "_enabled", "_active"} {
		if strings.HasSuffix(c, suffix) {
			return true
		}
	}
	return c == "active" || c == "enabled" || c == "deleted"
}

func toBool(raw any) bool {
	switch t := raw.(type) {
	case bool:
		return t
	case int64:
		return t != 0
	case []byte:
		return string(t) == "1" || strings.EqualFold(string(t), "true")
	case string:
		return t == "1" || strings.EqualFold(t, "true")
	default:
		return false
	}
}

func toInt64(raw any) int64 {
	switch t := raw.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case uint64:
		return int64(t)
	case float64:
		return int64(t)
	case []byte:
		i, _ := strconv.ParseInt(string(t), 10, 64)
		return i
	case string:
		i, _ := strconv.ParseInt(t, 10, 64)
		return i
	default:
		return 0
	}
}

func toFloat64(raw any) float64 {
	switch t := raw.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int64:
		return float64(t)
	case []byte:
		f, _ := strconv.ParseFloat(string(t), 64)
		return f
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}

func toString(raw any) string {
	switch t := raw.(type) {
	case []byte:
		return string(t)
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

func toBytes(raw any) []byte {
	switch t := raw.(type) {
	case []byte:
		return t
	case string:
		return []byte(t)
	default:
		b, _ := json.Marshal(t)
		return b
	}
}
