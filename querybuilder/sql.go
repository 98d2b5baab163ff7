// Package querybuilder lowers the backend-neutral query.ConditionGroup tree to either SQL
// text + bound parameters (spec §4.D) or MongoDB BSON (spec §4.D′, see mongo.go). Grounded on
// original_source/src/adapter/query_builder.rs's staged SqlQueryBuilder (database_type/
// select/insert/update/delete/where_condition_groups/order_by/limit/offset chaining) and the
// per-backend src/adapter/{mysql,postgres,sqlite}/query.rs files; the identifier allow-list
// and never-interpolate-values discipline also follows
// forbearing-gst/database/database.go's WithQuery/structFieldToMap reflection walk, which
// already treats field names as trusted identifiers distinct from bound values.
package querybuilder

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/forbearing/polydb/dberrors"
	"github.com/forbearing/polydb/model"
	"github.com/forbearing/polydb/query"
	"github.com/forbearing/polydb/value"
	"github.com/stoewer/go-strcase"
)

// Dialect selects the target SQL backend (spec §4.D).
type Dialect int

const (
	SQLite Dialect = iota
	MySQL
	PostgreSQL
)

func (d Dialect) String() string {
	switch d {
	case SQLite:
		return "sqlite"
	case MySQL:
		return "mysql"
	case PostgreSQL:
		return "postgres"
	default:
		return "unknown"
	}
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Builder is a staged SQL builder parameterized by Dialect, mirroring the teacher's With*
// chaining texture while lowering query.ConditionGroup instead of building a GORM query.
type Builder struct {
	dialect Dialect
	meta    *model.ModelMeta
}

// New builds a Builder for dialect. meta is optional; when present it drives the
// PostgreSQL JSON-Contains special case (spec §4.D).
func New(dialect Dialect, meta *model.ModelMeta) *Builder {
	return &Builder{dialect: dialect, meta: meta}
}

// safeIdent validates name against the identifier allow-list (spec §4.D "Identifier
// safety"): ASCII letters/digits/underscore, leading letter or underscore, and already in
// canonical snake_case per stoewer/go-strcase — this rejects identifiers a caller obtained by
// splicing user input with mixed separators or casing meant to smuggle SQL.
func safeIdent(name string) (string, error) {
	if name == "" || !identPattern.MatchString(name) {
		return "", dberrors.NewValidationError(name, "identifier is not in the allow-list")
	}
	if strcase.SnakeCase(name) != name {
		return "", dberrors.NewValidationError(name, "identifier must be snake_case")
	}
	return name, nil
}

// placeholders returns a closure yielding the next bound-parameter placeholder in the
// dialect's convention: "$1, $2, ..." for PostgreSQL, "?" for SQLite/MySQL.
func (b *Builder) placeholders() func() string {
	n := 0
	return func() string {
		n++
		if b.dialect == PostgreSQL {
			return "$" + strconv.Itoa(n)
		}
		return "?"
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SelectInput is the input to Builder.Select.
type SelectInput struct {
	Table      string
	Projection []string
	Where      query.ConditionGroup
	Sort       []query.SortKey
	Limit      *int64
	Skip       *int64
}

// Select lowers in to a SELECT statement and its bound parameters.
func (b *Builder) Select(in SelectInput) (string, []value.Value, error) {
	table, err := safeIdent(in.Table)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if len(in.Projection) == 0 {
		sb.WriteString("*")
	} else {
		idents := make([]string, len(in.Projection))
		for i, f := range in.Projection {
			id, err := safeIdent(f)
			if err != nil {
				return "", nil, err
			}
			idents[i] = id
		}
		sb.WriteString(strings.Join(idents, ", "))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(table)

	params := make([]value.Value, 0, 4)
	next := b.placeholders()
	where, err := b.lowerGroup(in.Where, next, &params)
	if err != nil {
		return "", nil, err
	}
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}

	if len(in.Sort) > 0 {
		parts := make([]string, len(in.Sort))
		for i, s := range in.Sort {
			id, err := safeIdent(s.Field)
			if err != nil {
				return "", nil, err
			}
			dir := "ASC"
			if s.Order == query.Desc {
				dir = "DESC"
			}
			parts[i] = id + " " + dir
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}
	if in.Limit != nil {
		fmt.Fprintf(&sb, " LIMIT %d", *in.Limit)
	}
	if in.Skip != nil {
		fmt.Fprintf(&sb, " OFFSET %d", *in.Skip)
	}
	return sb.String(), params, nil
}

// InsertInput is the input to Builder.Insert.
type InsertInput struct {
	Table     string
	Values    map[string]value.Value
	Returning []string
}

// Insert lowers in to an INSERT statement. Entries whose value is Null are dropped, letting
// the backend apply its own default; if every entry is Null the call fails validation
// (spec §4.D "Insert").
func (b *Builder) Insert(in InsertInput) (string, []value.Value, error) {
	table, err := safeIdent(in.Table)
	if err != nil {
		return "", nil, err
	}

	params := make([]value.Value, 0, len(in.Values))
	next := b.placeholders()
	cols := make([]string, 0, len(in.Values))
	phs := make([]string, 0, len(in.Values))
	for _, k := range sortedKeys(in.Values) {
		v := in.Values[k]
		if v.IsNull() {
			continue
		}
		id, err := safeIdent(k)
		if err != nil {
			return "", nil, err
		}
		cols = append(cols, id)
		phs = append(phs, next())
		params = append(params, v)
	}
	if len(cols) == 0 {
		return "", nil, dberrors.NewValidationError("insert", "all values are Null, nothing to insert")
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(phs, ", "))
	if len(in.Returning) > 0 && b.dialect == PostgreSQL {
		idents := make([]string, len(in.Returning))
		for i, f := range in.Returning {
			id, err := safeIdent(f)
			if err != nil {
				return "", nil, err
			}
			idents[i] = id
		}
		sql += " RETURNING " + strings.Join(idents, ", ")
	}
	return sql, params, nil
}

// UpdateInput is the input to Builder.Update. Exactly one of Set or Ops should be populated:
// Set for a plain field->value update, Ops for the arithmetic update-operator lowering.
type UpdateInput struct {
	Table string
	Where query.ConditionGroup
	Set   map[string]value.Value
	Ops   []query.UpdateOperation
}

// Update lowers in to a single UPDATE statement (never read-modify-write, spec §4.D
// "Update-operator lowering").
func (b *Builder) Update(in UpdateInput) (string, []value.Value, error) {
	table, err := safeIdent(in.Table)
	if err != nil {
		return "", nil, err
	}

	params := make([]value.Value, 0, 4)
	next := b.placeholders()
	sets := make([]string, 0, 4)

	if len(in.Ops) > 0 {
		for _, op := range in.Ops {
			id, err := safeIdent(op.Field)
			if err != nil {
				return "", nil, err
			}
			p := next()
			var expr string
			switch op.Op {
			case query.Set:
				expr = id + " = " + p
			case query.Increment:
				expr = id + " = " + id + " + " + p
			case query.Decrement:
				expr = id + " = " + id + " - " + p
			case query.Multiply:
				expr = id + " = " + id + " * " + p
			case query.Divide:
				expr = id + " = " + id + " / " + p
			case query.PercentIncrease:
				expr = id + " = " + id + " * (1.0 + " + p + "/100.0)"
			case query.PercentDecrease:
				expr = id + " = " + id + " * (1.0 - " + p + "/100.0)"
			default:
				return "", nil, dberrors.NewUnsupportedOperator(string(op.Op), b.dialect.String())
			}
			sets = append(sets, expr)
			params = append(params, op.Value)
		}
	} else {
		for _, k := range sortedKeys(in.Set) {
			id, err := safeIdent(k)
			if err != nil {
				return "", nil, err
			}
			p := next()
			sets = append(sets, id+" = "+p)
			params = append(params, in.Set[k])
		}
	}
	if len(sets) == 0 {
		return "", nil, dberrors.NewValidationError("update", "no fields to update")
	}

	sql := fmt.Sprintf("UPDATE %s SET %s", table, strings.Join(sets, ", "))
	where, err := b.lowerGroup(in.Where, next, &params)
	if err != nil {
		return "", nil, err
	}
	if where != "" {
		sql += " WHERE " + where
	}
	return sql, params, nil
}

// DeleteInput is the input to Builder.Delete.
type DeleteInput struct {
	Table string
	Where query.ConditionGroup
}

// Delete lowers in to a DELETE statement.
func (b *Builder) Delete(in DeleteInput) (string, []value.Value, error) {
	table, err := safeIdent(in.Table)
	if err != nil {
		return "", nil, err
	}
	params := make([]value.Value, 0, 4)
	next := b.placeholders()
	where, err := b.lowerGroup(in.Where, next, &params)
	if err != nil {
		return "", nil, err
	}
	sql := "DELETE FROM " + table
	if where != "" {
		sql += " WHERE " + where
	}
	return sql, params, nil
}

// lowerGroup implements spec §4.D condition-tree lowering: an empty group contributes no
// text, a singleton group contributes its child without parentheses, and a multi-child group
// lowers to "(child1 lop child2 lop ...)".
func (b *Builder) lowerGroup(g query.ConditionGroup, next func() string, params *[]value.Value) (string, error) {
	if g.IsEmpty() {
		return "", nil
	}
	if g.IsLeaf() {
		return b.lowerCondition(*g.Cond, next, params)
	}

	parts := make([]string, 0, len(g.Children))
	for _, child := range g.Children {
		s, err := b.lowerGroup(child, next, params)
		if err != nil {
			return "", err
		}
		if s == "" {
			continue
		}
		parts = append(parts, s)
	}
	switch len(parts) {
	case 0:
		return "", nil
	case 1:
		return parts[0], nil
	default:
		joiner := " AND "
		if g.Logical == query.Or {
			joiner = " OR "
		}
		return "(" + strings.Join(parts, joiner) + ")", nil
	}
}

func (b *Builder) isJSONField(field string) bool {
	if b.meta == nil {
		return false
	}
	def, ok := b.meta.Fields[field]
	return ok && def.Type.Kind == model.FieldJson
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (b *Builder) lowerCondition(c query.Condition, next func() string, params *[]value.Value) (string, error) {
	field, err := safeIdent(c.Field)
	if err != nil {
		return "", err
	}

	switch c.Op {
	case query.Eq:
		p := next()
		*params = append(*params, c.Value)
		return field + " = " + p, nil
	case query.Ne:
		p := next()
		*params = append(*params, c.Value)
		return field + " <> " + p, nil
	case query.Lt:
		p := next()
		*params = append(*params, c.Value)
		return field + " < " + p, nil
	case query.Lte:
		p := next()
		*params = append(*params, c.Value)
		return field + " <= " + p, nil
	case query.Gt:
		p := next()
		*params = append(*params, c.Value)
		return field + " > " + p, nil
	case query.Gte:
		p := next()
		*params = append(*params, c.Value)
		return field + " >= " + p, nil

	case query.Contains:
		if b.dialect == PostgreSQL && b.isJSONField(c.Field) {
			raw, err := c.Value.ToJSON()
			if err != nil {
				return "", dberrors.NewSerializationError("contains operand: %v", err)
			}
			p := next()
			*params = append(*params, value.String(string(raw)))
			return field + " @> " + p + "::jsonb", nil
		}
		s, ok := c.Value.AsString()
		if !ok {
			return "", dberrors.NewValidationError(c.Field, "Contains requires a string operand on this backend")
		}
		p := next()
		*params = append(*params, value.String("%"+likeEscaper.Replace(s)+"%"))
		return field + " LIKE " + p, nil

	case query.StartsWith:
		s, ok := c.Value.AsString()
		if !ok {
			return "", dberrors.NewValidationError(c.Field, "StartsWith requires a string operand")
		}
		p := next()
		*params = append(*params, value.String(likeEscaper.Replace(s)+"%"))
		return field + " LIKE " + p, nil

	case query.EndsWith:
		s, ok := c.Value.AsString()
		if !ok {
			return "", dberrors.NewValidationError(c.Field, "EndsWith requires a string operand")
		}
		p := next()
		*params = append(*params, value.String("%"+likeEscaper.Replace(s)))
		return field + " LIKE " + p, nil

	case query.In, query.NotIn:
		arr, ok := c.Value.AsArray()
		if !ok {
			return "", dberrors.NewValidationError(c.Field, "%s requires an Array operand", c.Op)
		}
		if len(arr) == 0 {
			// An empty IN/NOT IN can never match/always matches; 1=0 / 1=1 says so without
			// emitting invalid SQL syntax.
			if c.Op == query.In {
				return "1 = 0", nil
			}
			return "1 = 1", nil
		}
		phs := make([]string, len(arr))
		for i, item := range arr {
			phs[i] = next()
			*params = append(*params, item)
		}
		kw := "IN"
		if c.Op == query.NotIn {
			kw = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", field, kw, strings.Join(phs, ", ")), nil

	case query.Regex:
		s, ok := c.Value.AsString()
		if !ok {
			return "", dberrors.NewValidationError(c.Field, "Regex requires a string operand")
		}
		switch b.dialect {
		case PostgreSQL:
			p := next()
			*params = append(*params, value.String(s))
			return field + " ~ " + p, nil
		case MySQL:
			p := next()
			*params = append(*params, value.String(s))
			return field + " REGEXP " + p, nil
		default:
			return "", dberrors.NewUnsupportedOperator("Regex", b.dialect.String())
		}

	case query.IsNull:
		return field + " IS NULL", nil
	case query.IsNotNull:
		return field + " IS NOT NULL", nil

	case query.Exists:
		present, ok := c.Value.AsBool()
		if !ok {
			return "", dberrors.NewValidationError(c.Field, "Exists requires a bool operand")
		}
		if present {
			return field + " IS NOT NULL", nil
		}
		return field + " IS NULL", nil

	default:
		return "", dberrors.NewUnsupportedOperator(string(c.Op), b.dialect.String())
	}
}
