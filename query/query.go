// Package query defines the backend-neutral condition tree, query options and update
// operations described in spec §3(B)/§4.B: the vocabulary querybuilder lowers to SQL or BSON.
// Grounded on spec §3/§4.B directly; the fluent Group builder is grounded on
// original_source/src/model/traits.rs's condition-group helper functions, generalized from
// Rust's builder-returning free functions into Go's With*-chaining idiom
// (forbearing-gst/database/database.go's WithQuery/WithOrder/WithPagination family).
package query

import "github.com/forbearing/polydb/value"

// Operator is a condition's comparison operator (spec §3(B)).
type Operator string

const (
	Eq         Operator = "eq"
	Ne         Operator = "ne"
	Lt         Operator = "lt"
	Lte        Operator = "lte"
	Gt         Operator = "gt"
	Gte        Operator = "gte"
	Contains   Operator = "contains"
	StartsWith Operator = "starts_with"
	EndsWith   Operator = "ends_with"
	In         Operator = "in"
	NotIn      Operator = "not_in"
	Regex      Operator = "regex"
	Exists     Operator = "exists"
	IsNull     Operator = "is_null"
	IsNotNull  Operator = "is_not_null"
)

// Condition is a single (field_path, operator, value) leaf.
type Condition struct {
	Field string
	Op    Operator
	Value value.Value
}

// Logical joins the children of a non-leaf ConditionGroup.
type Logical string

const (
	And Logical = "and"
	Or  Logical = "or"
)

// ConditionGroup is either a single Condition (Cond != nil) or a node of Logical-joined
// children. Nesting is arbitrary (spec §3(B)).
type ConditionGroup struct {
	Cond     *Condition
	Logical  Logical
	Children []ConditionGroup
}

// Leaf wraps a single condition as a ConditionGroup.
func Leaf(field string, op Operator, v value.Value) ConditionGroup {
	return ConditionGroup{Cond: &Condition{Field: field, Op: op, Value: v}}
}

// AndGroup joins children under logical AND.
func AndGroup(children ...ConditionGroup) ConditionGroup {
	return ConditionGroup{Logical: And, Children: children}
}

// OrGroup joins children under logical OR.
func OrGroup(children ...ConditionGroup) ConditionGroup {
	return ConditionGroup{Logical: Or, Children: children}
}

// IsLeaf reports whether g is a single condition rather than a logical node.
func (g ConditionGroup) IsLeaf() bool { return g.Cond != nil }

// IsEmpty reports whether g is an empty node (no condition, no children) — contributes no
// text when lowered (spec §4.D).
func (g ConditionGroup) IsEmpty() bool { return g.Cond == nil && len(g.Children) == 0 }

// Group is a fluent builder over ConditionGroup, letting Go callers chain And/Or the way
// forbearing-gst chains With* calls, instead of hand-nesting ConditionGroup literals.
type Group struct {
	logical  Logical
	children []ConditionGroup
}

// NewAnd starts a fluent AND group.
func NewAnd() *Group { return &Group{logical: And} }

// NewOr starts a fluent OR group.
func NewOr() *Group { return &Group{logical: Or} }

// Where appends a leaf condition and returns the same builder for chaining.
func (g *Group) Where(field string, op Operator, v value.Value) *Group {
	g.children = append(g.children, Leaf(field, op, v))
	return g
}

// Nest appends an already-built ConditionGroup (e.g. another Group's Build() result), for
// composing AND-of-ORs trees.
func (g *Group) Nest(child ConditionGroup) *Group {
	g.children = append(g.children, child)
	return g
}

// Build materializes the accumulated children into a ConditionGroup.
func (g *Group) Build() ConditionGroup {
	return ConditionGroup{Logical: g.logical, Children: g.children}
}

// SortOrder is the direction of a sort key.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// SortKey is one (field, direction) entry in a query's order clause.
type SortKey struct {
	Field string
	Order SortOrder
}

// Options bundles ordering and pagination (spec §3(B) "Query options").
type Options struct {
	Sort  []SortKey
	Limit *int64
	Skip  *int64
}

// WithSort appends a sort key and returns Options for chaining.
func (o Options) WithSort(field string, order SortOrder) Options {
	o.Sort = append(o.Sort, SortKey{Field: field, Order: order})
	return o
}

// WithLimit sets the page size.
func (o Options) WithLimit(limit int64) Options {
	o.Limit = &limit
	return o
}

// WithSkip sets the pagination offset.
func (o Options) WithSkip(skip int64) Options {
	o.Skip = &skip
	return o
}

// UpdateOperator is an update operation's arithmetic (spec §3(B) "Update operation").
type UpdateOperator string

const (
	Set             UpdateOperator = "set"
	Increment       UpdateOperator = "increment"
	Decrement       UpdateOperator = "decrement"
	Multiply        UpdateOperator = "multiply"
	Divide          UpdateOperator = "divide"
	PercentIncrease UpdateOperator = "percent_increase"
	PercentDecrease UpdateOperator = "percent_decrease"
)

// UpdateOperation is a single (field, operator, value) update instruction.
type UpdateOperation struct {
	Field string
	Op    UpdateOperator
	Value value.Value
}
