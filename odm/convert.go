package odm

import (
	"fmt"
	"reflect"
	"time"

	"github.com/forbearing/polydb/adapter"
	"github.com/forbearing/polydb/dberrors"
	"github.com/forbearing/polydb/value"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stoewer/go-strcase"
)

// fieldName resolves the record key for a struct field: an explicit `polydb:"..."` tag wins,
// otherwise the field name is lowered to snake_case with stoewer/go-strcase, matching the
// identifier convention querybuilder enforces on the way out to SQL.
func fieldName(f reflect.StructField) (string, bool) {
	tag, ok := f.Tag.Lookup("polydb")
	if ok {
		if tag == "-" {
			return "", false
		}
		if tag != "" {
			return tag, true
		}
	}
	if !f.IsExported() {
		return "", false
	}
	return strcase.SnakeCase(f.Name), true
}

// toRecord walks instance's exported fields via reflection into a backend-neutral
// adapter.Record, the Go-idiomatic replacement for forbearing-gst's structFieldToMap reflection
// walk (there operating on map[string]string query conditions; here on value.Value payloads).
// The id field is excluded — callers that need it use Model.GetID/SetID directly, since id
// handling is strategy-driven rather than a plain field copy (spec §4.I save path).
func toRecord(instance any) (adapter.Record, error) {
	v := reflect.ValueOf(instance)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, dberrors.NewValidationError("instance", "cannot convert a nil instance")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, dberrors.NewValidationError("instance", "expected a struct, got %s", v.Kind())
	}

	t := v.Type()
	rec := adapter.Record{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, ok := fieldName(f)
		if !ok || name == "id" {
			continue
		}
		val, err := toValue(v.Field(i))
		if err != nil {
			return nil, dberrors.Wrap(err, "odm: converting field "+f.Name)
		}
		rec[name] = val
	}
	return rec, nil
}

// fromRecord is toRecord's inverse, setting out's fields (out must be a non-nil pointer to
// struct) from rec by the same tag/snake_case key convention. Unknown record keys and unset
// struct fields are both tolerated, matching the spec's "each returned value is expected to be
// an Object" load path loosely typed re-hydration.
func fromRecord(rec adapter.Record, out any) error {
	v := reflect.ValueOf(out)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return dberrors.NewValidationError("out", "expected a non-nil pointer, got %T", out)
	}
	v = v.Elem()
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, ok := fieldName(f)
		if !ok || name == "id" {
			continue
		}
		rv, present := rec[name]
		if !present {
			continue
		}
		if err := setValue(v.Field(i), rv); err != nil {
			return dberrors.Wrap(err, "odm: setting field "+f.Name)
		}
	}
	return nil
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	uuidType    = reflect.TypeOf(uuid.UUID{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
)

func toValue(fv reflect.Value) (value.Value, error) {
	switch fv.Kind() {
	case reflect.Ptr:
		if fv.IsNil() {
			return value.Null(), nil
		}
		return toValue(fv.Elem())
	case reflect.String:
		return value.String(fv.String()), nil
	case reflect.Bool:
		return value.Bool(fv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return value.Int(fv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return value.Int(int64(fv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return value.Float(fv.Float()), nil
	case reflect.Slice:
		if fv.Type().Elem().Kind() == reflect.Uint8 {
			return value.Bytes(fv.Bytes()), nil
		}
		items := make([]value.Value, fv.Len())
		for i := 0; i < fv.Len(); i++ {
			item, err := toValue(fv.Index(i))
			if err != nil {
				return value.Null(), err
			}
			items[i] = item
		}
		return value.Array(items...), nil
	case reflect.Map:
		fields := make(map[string]value.Value, fv.Len())
		iter := fv.MapRange()
		for iter.Next() {
			k := fmt.Sprintf("%v", iter.Key().Interface())
			item, err := toValue(iter.Value())
			if err != nil {
				return value.Null(), err
			}
			fields[k] = item
		}
		return value.Object(fields), nil
	case reflect.Struct:
		switch fv.Type() {
		case timeType:
			return value.DateTime(fv.Interface().(time.Time)), nil
		case uuidType:
			return value.UuidValue(fv.Interface().(uuid.UUID)), nil
		case decimalType:
			return value.Decimal(fv.Interface().(decimal.Decimal)), nil
		default:
			fields := make(map[string]value.Value, fv.NumField())
			t := fv.Type()
			for i := 0; i < t.NumField(); i++ {
				f := t.Field(i)
				name, ok := fieldName(f)
				if !ok {
					continue
				}
				item, err := toValue(fv.Field(i))
				if err != nil {
					return value.Null(), err
				}
				fields[name] = item
			}
			return value.Object(fields), nil
		}
	default:
		return value.Null(), fmt.Errorf("odm: unsupported field kind %s", fv.Kind())
	}
}

func setValue(fv reflect.Value, v value.Value) error {
	if v.IsNull() {
		return nil
	}
	if fv.Kind() == reflect.Ptr {
		if fv.IsNil() {
			fv.Set(reflect.New(fv.Type().Elem()))
		}
		return setValue(fv.Elem(), v)
	}

	switch fv.Kind() {
	case reflect.String:
		if s, ok := v.AsString(); ok {
			fv.SetString(s)
			return nil
		}
	case reflect.Bool:
		if b, ok := v.AsBool(); ok {
			fv.SetBool(b)
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if i, ok := v.AsInt(); ok {
			fv.SetInt(i)
			return nil
		}
		if f, ok := v.AsFloat(); ok {
			fv.SetInt(int64(f))
			return nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if i, ok := v.AsInt(); ok {
			fv.SetUint(uint64(i))
			return nil
		}
	case reflect.Float32, reflect.Float64:
		if f, ok := v.AsFloat(); ok {
			fv.SetFloat(f)
			return nil
		}
		if i, ok := v.AsInt(); ok {
			fv.SetFloat(float64(i))
			return nil
		}
	case reflect.Slice:
		if fv.Type().Elem().Kind() == reflect.Uint8 {
			if b, ok := v.AsBytes(); ok {
				fv.SetBytes(b)
				return nil
			}
		}
		if arr, ok := v.AsArray(); ok {
			out := reflect.MakeSlice(fv.Type(), len(arr), len(arr))
			for i, item := range arr {
				if err := setValue(out.Index(i), item); err != nil {
					return err
				}
			}
			fv.Set(out)
			return nil
		}
	case reflect.Struct:
		switch fv.Type() {
		case timeType:
			if t, ok := v.AsDateTime(); ok {
				fv.Set(reflect.ValueOf(t))
				return nil
			}
		case uuidType:
			if u, ok := v.AsUuid(); ok {
				fv.Set(reflect.ValueOf(u))
				return nil
			}
		case decimalType:
			if d, ok := v.AsDecimal(); ok {
				fv.Set(reflect.ValueOf(d))
				return nil
			}
		default:
			if obj, ok := v.AsObject(); ok {
				t := fv.Type()
				for i := 0; i < t.NumField(); i++ {
					f := t.Field(i)
					name, ok := fieldName(f)
					if !ok {
						continue
					}
					sv, present := obj[name]
					if !present {
						continue
					}
					if err := setValue(fv.Field(i), sv); err != nil {
						return err
					}
				}
				return nil
			}
		}
	}
	return fmt.Errorf("odm: cannot assign %s into field kind %s", v.Kind(), fv.Kind())
}
