package model_test

import (
	"testing"

	"github.com/forbearing/polydb/model"
	"github.com/forbearing/polydb/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_IdempotentRegistration(t *testing.T) {
	r := model.NewRegistry()
	meta := model.ModelMeta{
		Collection: "users",
		Alias:      "default",
		Fields: map[string]model.FieldDefinition{
			"name": {Type: model.StringType(100, 0, ""), Required: true},
		},
	}
	require.NoError(t, r.Register(meta))
	require.NoError(t, r.Register(meta), "re-registering with the same schema must be a no-op")

	got, ok := r.Lookup("default", "users")
	require.True(t, ok)
	assert.Equal(t, "users", got.Collection)
}

func TestRegistry_ConflictingSchemaRejected(t *testing.T) {
	r := model.NewRegistry()
	require.NoError(t, r.Register(model.ModelMeta{Collection: "users", Alias: "default"}))

	err := r.Register(model.ModelMeta{
		Collection: "users",
		Alias:      "default",
		Fields:     map[string]model.FieldDefinition{"extra": {Type: model.StringType(0, 0, "")}},
	})
	assert.Error(t, err)
}

func TestRegistry_Models(t *testing.T) {
	r := model.NewRegistry()
	require.NoError(t, r.Register(model.ModelMeta{Collection: "users", Alias: "default"}))
	require.NoError(t, r.Register(model.ModelMeta{Collection: "orders", Alias: "default"}))
	require.NoError(t, r.Register(model.ModelMeta{Collection: "sessions", Alias: "cache"}))

	assert.Equal(t, []string{"orders", "users"}, r.Models("default"))
	assert.Equal(t, []string{"sessions"}, r.Models("cache"))
}

func TestValidateField_RequiredNull(t *testing.T) {
	def := model.FieldDefinition{Type: model.StringType(0, 0, ""), Required: true}
	err := model.ValidateField("name", def, value.Null())
	assert.Error(t, err)
}

func TestValidateField_StringConstraints(t *testing.T) {
	def := model.FieldDefinition{Type: model.StringType(5, 2, "^[a-z]+$")}
	assert.NoError(t, model.ValidateField("code", def, value.String("abc")))
	assert.Error(t, model.ValidateField("code", def, value.String("a")))
	assert.Error(t, model.ValidateField("code", def, value.String("abcdefgh")))
	assert.Error(t, model.ValidateField("code", def, value.String("ABC")))
}

func TestValidateField_NumericRange(t *testing.T) {
	min, max := 0.0, 120.0
	def := model.FieldDefinition{Type: model.IntegerType(&min, &max)}
	assert.NoError(t, model.ValidateField("age", def, value.Int(30)))
	assert.Error(t, model.ValidateField("age", def, value.Int(200)))
	assert.Error(t, model.ValidateField("age", def, value.Int(-1)))
}

func TestValidateField_Uuid(t *testing.T) {
	def := model.FieldDefinition{Type: model.FieldType{Kind: model.FieldUuid}}
	assert.NoError(t, model.ValidateField("id", def, value.String("550e8400-e29b-41d4-a716-446655440000")))
	assert.Error(t, model.ValidateField("id", def, value.String("not-a-uuid")))
}

func TestValidateField_ArrayMinMaxAndRecursion(t *testing.T) {
	def := model.FieldDefinition{Type: model.ArrayType(model.StringType(3, 0, ""), 1, 2)}
	assert.NoError(t, model.ValidateField("tags", def, value.Array(value.String("a"))))
	assert.Error(t, model.ValidateField("tags", def, value.Array()), "below min_items")
	assert.Error(t, model.ValidateField("tags", def, value.Array(value.String("a"), value.String("b"), value.String("c"))), "exceeds max_items")
	assert.Error(t, model.ValidateField("tags", def, value.Array(value.String("toolong"))), "element fails subtype constraint")
}

func TestValidateField_ObjectRecursion(t *testing.T) {
	def := model.FieldDefinition{Type: model.ObjectType(map[string]model.FieldDefinition{
		"street": {Type: model.StringType(0, 0, ""), Required: true},
	})}
	assert.NoError(t, model.ValidateField("address", def, value.Object(map[string]value.Value{
		"street": value.String("Main St"),
	})))
	assert.Error(t, model.ValidateField("address", def, value.Object(map[string]value.Value{})))
}

func TestValidateField_NamedValidator(t *testing.T) {
	def := model.FieldDefinition{Type: model.StringType(0, 0, ""), Validator: "email"}
	assert.NoError(t, model.ValidateField("email", def, value.String("a@b.com")))
	assert.Error(t, model.ValidateField("email", def, value.String("not-an-email")))
}
