package querybuilder

import (
	"encoding/json"
	"regexp"

	"github.com/forbearing/polydb/dberrors"
	"github.com/forbearing/polydb/query"
	"github.com/forbearing/polydb/value"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// objectIDEnvelope matches the textual ObjectId("...") wrapper spec §4.D′ allows alongside a
// bare 24-hex-digit string.
var (
	objectIDEnvelope = regexp.MustCompile(`^ObjectId\("([0-9a-fA-F]{24})"\)$`)
	objectIDHex      = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)
)

// LowerMongoGroup lowers a condition tree to a BSON filter document (spec §4.D′). Condition
// groups with And/Or emit $and/$or arrays; singleton groups collapse to their child; empty
// groups emit an empty document (matches everything).
func LowerMongoGroup(g query.ConditionGroup) (bson.M, error) {
	if g.IsEmpty() {
		return bson.M{}, nil
	}
	if g.IsLeaf() {
		return lowerMongoCondition(*g.Cond)
	}
	if len(g.Children) == 1 {
		return LowerMongoGroup(g.Children[0])
	}

	parts := make(bson.A, 0, len(g.Children))
	for _, child := range g.Children {
		m, err := LowerMongoGroup(child)
		if err != nil {
			return nil, err
		}
		if len(m) == 0 {
			continue
		}
		parts = append(parts, m)
	}
	if len(parts) == 0 {
		return bson.M{}, nil
	}
	key := "$and"
	if g.Logical == query.Or {
		key = "$or"
	}
	return bson.M{key: parts}, nil
}

func lowerMongoCondition(c query.Condition) (bson.M, error) {
	field := MongoField(c.Field)

	switch c.Op {
	case query.Eq:
		v, err := toBSONValue(field, c.Value)
		if err != nil {
			return nil, err
		}
		return bson.M{field: v}, nil
	case query.Ne:
		v, err := toBSONValue(field, c.Value)
		if err != nil {
			return nil, err
		}
		return bson.M{field: bson.M{"$ne": v}}, nil
	case query.Lt, query.Lte, query.Gt, query.Gte:
		v, err := toBSONValue(field, c.Value)
		if err != nil {
			return nil, err
		}
		return bson.M{field: bson.M{mongoCompareOp(c.Op): v}}, nil

	case query.Contains:
		if arr, ok := c.Value.AsArray(); ok {
			items := make(bson.A, len(arr))
			for i, it := range arr {
				v, err := toBSONValue(field, it)
				if err != nil {
					return nil, err
				}
				items[i] = v
			}
			return bson.M{field: bson.M{"$in": items}}, nil
		}
		s, ok := c.Value.AsString()
		if !ok {
			return nil, dberrors.NewValidationError(c.Field, "Contains requires a string or array operand")
		}
		return bson.M{field: bson.M{"$regex": regexp.QuoteMeta(s), "$options": "i"}}, nil

	case query.StartsWith:
		s, ok := c.Value.AsString()
		if !ok {
			return nil, dberrors.NewValidationError(c.Field, "StartsWith requires a string operand")
		}
		return bson.M{field: bson.M{"$regex": "^" + regexp.QuoteMeta(s), "$options": "i"}}, nil

	case query.EndsWith:
		s, ok := c.Value.AsString()
		if !ok {
			return nil, dberrors.NewValidationError(c.Field, "EndsWith requires a string operand")
		}
		return bson.M{field: bson.M{"$regex": regexp.QuoteMeta(s) + "$", "$options": "i"}}, nil

	case query.Regex:
		s, ok := c.Value.AsString()
		if !ok {
			return nil, dberrors.NewValidationError(c.Field, "Regex requires a string operand")
		}
		return bson.M{field: bson.M{"$regex": s, "$options": "i"}}, nil

	case query.In, query.NotIn:
		arr, ok := c.Value.AsArray()
		if !ok {
			return nil, dberrors.NewValidationError(c.Field, "%s requires an Array operand", c.Op)
		}
		items := make(bson.A, len(arr))
		for i, it := range arr {
			v, err := toBSONValue(field, it)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		op := "$in"
		if c.Op == query.NotIn {
			op = "$nin"
		}
		return bson.M{field: bson.M{op: items}}, nil

	case query.Exists:
		b, ok := c.Value.AsBool()
		if !ok {
			return nil, dberrors.NewValidationError(c.Field, "Exists requires a bool operand")
		}
		return bson.M{field: bson.M{"$exists": b}}, nil

	case query.IsNull:
		return bson.M{field: nil}, nil
	case query.IsNotNull:
		return bson.M{field: bson.M{"$ne": nil}}, nil

	default:
		return nil, dberrors.NewUnsupportedOperator(string(c.Op), "mongodb")
	}
}

func mongoCompareOp(op query.Operator) string {
	switch op {
	case query.Lt:
		return "$lt"
	case query.Lte:
		return "$lte"
	case query.Gt:
		return "$gt"
	case query.Gte:
		return "$gte"
	default:
		return "$eq"
	}
}

// MongoField maps the application-level "id" field to the wire field "_id" (spec §4.D′).
func MongoField(field string) string {
	if field == "id" {
		return "_id"
	}
	return field
}

// ParseObjectID reports whether s is an ObjectId-shaped string — either bare 24 hex digits or
// wrapped in the textual ObjectId("...") envelope (spec §4.D′) — returning the parsed
// bson.ObjectID on success.
func ParseObjectID(s string) (bson.ObjectID, bool) {
	if m := objectIDEnvelope.FindStringSubmatch(s); m != nil {
		if oid, err := bson.ObjectIDFromHex(m[1]); err == nil {
			return oid, true
		}
	}
	if objectIDHex.MatchString(s) {
		if oid, err := bson.ObjectIDFromHex(s); err == nil {
			return oid, true
		}
	}
	return bson.ObjectID{}, false
}

// toBSONValue converts a value.Value to a native Go value the mongo driver can encode.
// field lets the _id field attempt ObjectId detection on string operands, per spec §4.D′'s
// "string IDs matching the ObjectId format ... otherwise as strings".
func toBSONValue(field string, v value.Value) (any, error) {
	switch v.Kind() {
	case value.KindNull:
		return nil, nil
	case value.KindBool:
		b, _ := v.AsBool()
		return b, nil
	case value.KindInt:
		i, _ := v.AsInt()
		return i, nil
	case value.KindFloat:
		f, _ := v.AsFloat()
		return f, nil
	case value.KindString:
		s, _ := v.AsString()
		if field == "_id" {
			if oid, ok := ParseObjectID(s); ok {
				return oid, nil
			}
		}
		return s, nil
	case value.KindBytes:
		b, _ := v.AsBytes()
		return b, nil
	case value.KindUuid:
		u, _ := v.AsUuid()
		return u.String(), nil
	case value.KindDateTime:
		t, _ := v.AsDateTime()
		return t.UTC(), nil
	case value.KindDecimal:
		d, _ := v.AsDecimal()
		return d.String(), nil
	case value.KindJson:
		raw, _ := v.AsJson()
		var m any
		if len(raw) == 0 {
			return nil, nil
		}
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, dberrors.NewSerializationError("json operand: %v", err)
		}
		return m, nil
	case value.KindArray:
		arr, _ := v.AsArray()
		out := make(bson.A, len(arr))
		for i, e := range arr {
			bv, err := toBSONValue(field, e)
			if err != nil {
				return nil, err
			}
			out[i] = bv
		}
		return out, nil
	case value.KindObject:
		obj, _ := v.AsObject()
		out := bson.M{}
		for k, e := range obj {
			bv, err := toBSONValue(k, e)
			if err != nil {
				return nil, err
			}
			out[k] = bv
		}
		return out, nil
	default:
		return nil, dberrors.NewSerializationError("unsupported value kind %v", v.Kind())
	}
}
