// Package model implements the model metadata and registry described in spec §3(C)/§4.C:
// FieldType/FieldDefinition/ModelMeta/IndexDefinition plus a process-wide Registry keyed by
// (alias, collection). Grounded on spec §4.C directly and on
// original_source/src/model/traits.rs's Model trait (collection_name/database_alias/meta());
// the registry's idempotent-registration-under-a-run-once-guard behavior generalizes
// forbearing-gst/database/database.go's migratedModelMap sync.Map keyed by
// "dbIdentifier:modelType" into a (alias,collection)-keyed map. Field-level validation for
// the "named validator" FieldDefinition.Validator (SPEC_FULL §3.C) is delegated to
// github.com/go-playground/validator/v10's Var, the same library the teacher uses for
// request-body validation.
package model

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/forbearing/polydb/dberrors"
	"github.com/forbearing/polydb/idstrategy"
	"github.com/forbearing/polydb/value"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// FieldKind is the tag on FieldType (spec §3(C)).
type FieldKind uint8

const (
	FieldString FieldKind = iota
	FieldInteger
	FieldBigInteger
	FieldFloat
	FieldDouble
	FieldText
	FieldBoolean
	FieldDateTime
	FieldDateTimeWithTz
	FieldDate
	FieldTime
	FieldUuid
	FieldJson
	FieldBinary
	FieldDecimal
	FieldArray
	FieldObject
	FieldReference
)

// FieldType describes one field's storage shape and constraints. Only the members relevant
// to Kind are populated; the rest are zero.
type FieldType struct {
	Kind FieldKind

	// String
	MaxLength *int
	MinLength *int
	Regex     string

	// Integer/BigInteger/Float/Double
	Min *float64
	Max *float64

	// DateTimeWithTz: Offset is minutes east of UTC. Per DESIGN.md Open Question 1, values of
	// this type are compared as UTC instants. Offset is kept as metadata only; no adapter,
	// decoder or ODM conversion reads it.
	Offset int

	// Decimal
	Precision int
	Scale     int

	// Array
	ItemType *FieldType
	MinItems *int
	MaxItems *int

	// Object
	Fields map[string]FieldDefinition

	// Reference
	TargetCollection string
}

// StringType builds a String FieldType with optional constraints (pass 0 to omit a bound).
func StringType(maxLength, minLength int, regex string) FieldType {
	ft := FieldType{Kind: FieldString, Regex: regex}
	if maxLength > 0 {
		ft.MaxLength = &maxLength
	}
	if minLength > 0 {
		ft.MinLength = &minLength
	}
	return ft
}

// IntegerType builds an Integer FieldType; pass nil for an unbounded min/max.
func IntegerType(min, max *float64) FieldType { return FieldType{Kind: FieldInteger, Min: min, Max: max} }

// ArrayType builds an Array FieldType.
func ArrayType(item FieldType, minItems, maxItems int) FieldType {
	ft := FieldType{Kind: FieldArray, ItemType: &item}
	if minItems > 0 {
		ft.MinItems = &minItems
	}
	if maxItems > 0 {
		ft.MaxItems = &maxItems
	}
	return ft
}

// ObjectType builds an Object FieldType from its subfields.
func ObjectType(fields map[string]FieldDefinition) FieldType {
	return FieldType{Kind: FieldObject, Fields: fields}
}

// DecimalType builds a Decimal FieldType.
func DecimalType(precision, scale int) FieldType {
	return FieldType{Kind: FieldDecimal, Precision: precision, Scale: scale}
}

// ReferenceType builds a Reference FieldType pointing at another collection.
func ReferenceType(targetCollection string) FieldType {
	return FieldType{Kind: FieldReference, TargetCollection: targetCollection}
}

// FieldDefinition pairs a FieldType with the constraints spec §3(C) lists.
type FieldDefinition struct {
	Type        FieldType
	Required    bool
	Default     *value.Value
	Unique      bool
	Indexed     bool
	Description string
	// Validator names a validator tag recognized by go-playground/validator/v10 (e.g.
	// "email", "uuid4"), applied in addition to the built-in length/regex/min/max checks.
	Validator string
}

// IndexDefinition is one entry in ModelMeta.Indexes.
type IndexDefinition struct {
	Fields []string
	Unique bool
	Name   string
}

// ModelMeta is the full registered shape of one collection (spec §3(C)). IDStrategy is filled
// in by the ODM at registration time from the resolved alias's idstrategy.Strategy (zero value
// AutoIncrement if never set, matching idstrategy.New's default), so SQL adapters can emit the
// matching primary-key DDL without importing the registry.
type ModelMeta struct {
	Collection  string
	Alias       string
	Fields      map[string]FieldDefinition
	Indexes     []IndexDefinition
	Description string
	IDStrategy  idstrategy.Kind
}

var validate = validator.New()

// ValidateField checks v against def, returning a *dberrors.ValidationError on violation
// (spec §4.C): required+null fails; string length/regex, numeric min/max, array min/max
// items, and object subfield recursion are enforced; Uuid accepts either a Uuid value or a
// parseable string.
func ValidateField(field string, def FieldDefinition, v value.Value) error {
	if v.IsNull() {
		if def.Required {
			return dberrors.NewValidationError(field, "required field is null")
		}
		return nil
	}

	switch def.Type.Kind {
	case FieldString, FieldText:
		s, ok := v.AsString()
		if !ok {
			return dberrors.NewValidationError(field, "expected a string, got %s", v.Kind())
		}
		if def.Type.MaxLength != nil && len(s) > *def.Type.MaxLength {
			return dberrors.NewValidationError(field, "length %d exceeds max_length %d", len(s), *def.Type.MaxLength)
		}
		if def.Type.MinLength != nil && len(s) < *def.Type.MinLength {
			return dberrors.NewValidationError(field, "length %d is below min_length %d", len(s), *def.Type.MinLength)
		}
		if def.Type.Regex != "" {
			re, err := regexp.Compile(def.Type.Regex)
			if err != nil {
				return dberrors.NewValidationError(field, "invalid regex %q: %v", def.Type.Regex, err)
			}
			if !re.MatchString(s) {
				return dberrors.NewValidationError(field, "value does not match pattern %q", def.Type.Regex)
			}
		}

	case FieldInteger, FieldBigInteger:
		f, ok := numericOf(v)
		if !ok {
			return dberrors.NewValidationError(field, "expected an integer, got %s", v.Kind())
		}
		if err := checkRange(field, f, def.Type.Min, def.Type.Max); err != nil {
			return err
		}

	case FieldFloat, FieldDouble:
		f, ok := numericOf(v)
		if !ok {
			return dberrors.NewValidationError(field, "expected a number, got %s", v.Kind())
		}
		if err := checkRange(field, f, def.Type.Min, def.Type.Max); err != nil {
			return err
		}

	case FieldBoolean:
		if _, ok := v.AsBool(); !ok {
			return dberrors.NewValidationError(field, "expected a bool, got %s", v.Kind())
		}

	case FieldUuid:
		if _, ok := v.AsUuid(); !ok {
			s, ok := v.AsString()
			if !ok {
				return dberrors.NewValidationError(field, "expected a uuid, got %s", v.Kind())
			}
			if _, err := uuid.Parse(s); err != nil {
				return dberrors.NewValidationError(field, "value %q is not a parseable uuid", s)
			}
		}

	case FieldDecimal:
		if _, ok := v.AsDecimal(); !ok {
			if _, ok := v.AsString(); !ok {
				return dberrors.NewValidationError(field, "expected a decimal, got %s", v.Kind())
			}
		}

	case FieldDateTime, FieldDateTimeWithTz, FieldDate, FieldTime:
		if _, ok := v.AsDateTime(); !ok {
			return dberrors.NewValidationError(field, "expected a datetime, got %s", v.Kind())
		}

	case FieldArray:
		arr, ok := v.AsArray()
		if !ok {
			return dberrors.NewValidationError(field, "expected an array, got %s", v.Kind())
		}
		if def.Type.MinItems != nil && len(arr) < *def.Type.MinItems {
			return dberrors.NewValidationError(field, "has %d items, below min_items %d", len(arr), *def.Type.MinItems)
		}
		if def.Type.MaxItems != nil && len(arr) > *def.Type.MaxItems {
			return dberrors.NewValidationError(field, "has %d items, exceeds max_items %d", len(arr), *def.Type.MaxItems)
		}
		if def.Type.ItemType != nil {
			itemDef := FieldDefinition{Type: *def.Type.ItemType, Required: true}
			for i, item := range arr {
				if err := ValidateField(fmt.Sprintf("%s[%d]", field, i), itemDef, item); err != nil {
					return err
				}
			}
		}

	case FieldObject:
		obj, ok := v.AsObject()
		if !ok {
			return dberrors.NewValidationError(field, "expected an object, got %s", v.Kind())
		}
		for name, subdef := range def.Type.Fields {
			sv, present := obj[name]
			if !present {
				sv = value.Null()
			}
			if err := ValidateField(field+"."+name, subdef, sv); err != nil {
				return err
			}
		}

	case FieldJson, FieldBinary, FieldReference:
		// no structural constraint beyond presence, already checked above.
	}

	if def.Validator != "" {
		if err := validateNamed(def.Validator, v); err != nil {
			return dberrors.NewValidationError(field, "failed validator %q: %v", def.Validator, err)
		}
	}
	return nil
}

func numericOf(v value.Value) (float64, bool) {
	if i, ok := v.AsInt(); ok {
		return float64(i), true
	}
	if f, ok := v.AsFloat(); ok {
		return f, true
	}
	if s, ok := v.AsString(); ok {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func checkRange(field string, f float64, min, max *float64) error {
	if min != nil && f < *min {
		return dberrors.NewValidationError(field, "value %v is below min %v", f, *min)
	}
	if max != nil && f > *max {
		return dberrors.NewValidationError(field, "value %v exceeds max %v", f, *max)
	}
	return nil
}

func validateNamed(tag string, v value.Value) error {
	var target any
	switch v.Kind() {
	case value.KindString:
		target, _ = v.AsString()
	case value.KindInt:
		target, _ = v.AsInt()
	case value.KindFloat:
		target, _ = v.AsFloat()
	case value.KindBool:
		target, _ = v.AsBool()
	default:
		raw, err := v.ToJSON()
		if err != nil {
			return err
		}
		target = string(raw)
	}
	return validate.Var(target, tag)
}

// Registry is the process-wide model metadata store (spec §4.H's model half): registration
// computes key (alias, collection) and is idempotent; re-registration with a differing
// schema is an error.
type Registry struct {
	mu    sync.RWMutex
	metas map[string]*ModelMeta
}

// NewRegistry builds an empty Registry. registry.Default wraps one of these as the
// process-wide instance; tests construct their own to stay isolated.
func NewRegistry() *Registry {
	return &Registry{metas: make(map[string]*ModelMeta)}
}

func metaKey(alias, collection string) string { return alias + "\x00" + collection }

// Register inserts meta under (meta.Alias, meta.Collection). Calling it again with an
// identical meta is a no-op; calling it with a differing meta for the same key is an error.
func (r *Registry) Register(meta ModelMeta) error {
	if meta.Collection == "" {
		return dberrors.NewValidationError("collection", "collection name must not be empty")
	}
	k := metaKey(meta.Alias, meta.Collection)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.metas[k]; ok {
		if !reflect.DeepEqual(existing, &meta) {
			return dberrors.NewValidationError("collection", "model %q is already registered on alias %q with a different schema", meta.Collection, meta.Alias)
		}
		return nil
	}
	m := meta
	r.metas[k] = &m
	return nil
}

// Lookup finds metadata by (alias, collection). An empty alias matches only metadata
// registered with an empty alias; callers resolve the default alias before calling Lookup.
func (r *Registry) Lookup(alias, collection string) (*ModelMeta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.metas[metaKey(alias, collection)]
	return m, ok
}

// Models lists the collection names registered under alias, sorted for deterministic
// iteration.
func (r *Registry) Models(alias string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	prefix := alias + "\x00"
	names := make([]string, 0)
	for k, m := range r.metas {
		if strings.HasPrefix(k, prefix) {
			names = append(names, m.Collection)
		}
	}
	sort.Strings(names)
	return names
}

// Remove deletes metadata for one (alias, collection). Tearing down a whole alias (spec §4.H
// remove_database) goes through RemoveAlias instead.
func (r *Registry) Remove(alias, collection string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.metas, metaKey(alias, collection))
}

// RemoveAlias deletes every collection registered under alias.
func (r *Registry) RemoveAlias(alias string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prefix := alias + "\x00"
	for k := range r.metas {
		if strings.HasPrefix(k, prefix) {
			delete(r.metas, k)
		}
	}
}
