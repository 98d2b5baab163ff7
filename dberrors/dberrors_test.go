package dberrors_test

import (
	"testing"

	"github.com/forbearing/polydb/dberrors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, `config error: bad port`, dberrors.NewConfigError("bad port").Error())
	assert.Equal(t, `connection error: all in use`, dberrors.NewConnectionError("all in use").Error())
	assert.Equal(t, `query error: syntax`, dberrors.NewQueryError("syntax").Error())
	assert.Equal(t, `validation error on field "name": required`, dberrors.NewValidationError("name", "required").Error())
	assert.Equal(t, `validation error: table_creation missing metadata`, dberrors.NewValidationError("", "table_creation missing metadata").Error())
	assert.Equal(t, `unsupported database type: oracle`, dberrors.NewUnsupportedDatabase("oracle").Error())
	assert.Equal(t, `operator "Regex" is not supported by backend "sqlite"`, dberrors.NewUnsupportedOperator("Regex", "sqlite").Error())
	assert.Equal(t, `serialization error: bad column`, dberrors.NewSerializationError("bad column").Error())
	assert.Equal(t, `alias not found: "primary"`, dberrors.NewAliasNotFound("primary").Error())
	assert.Equal(t, `table "users" does not exist: select failed`, dberrors.NewTableNotExistError("users", "select failed").Error())
}

func TestWrap_PreservesAs(t *testing.T) {
	cause := dberrors.NewQueryError("duplicate key")
	wrapped := dberrors.Wrap(cause, "create failed")

	var qe *dberrors.QueryError
	assert.True(t, dberrors.As(wrapped, &qe))
	assert.Equal(t, cause, qe)
}

func TestWrap_NilCause(t *testing.T) {
	err := dberrors.Wrap(nil, "no cause")
	assert.EqualError(t, err, "no cause")
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, dberrors.IsNotFound(dberrors.NewAliasNotFound("x")))
	assert.True(t, dberrors.IsNotFound(dberrors.Wrap(dberrors.NewTableNotExistError("t", "gone"), "lookup")))
	assert.False(t, dberrors.IsNotFound(dberrors.NewQueryError("boom")))
}

func TestWrap_FormatArgs(t *testing.T) {
	cause := dberrors.NewQueryError("duplicate key")
	wrapped := dberrors.Wrap(cause, "create_table %q", "users")
	assert.Contains(t, wrapped.Error(), `create_table "users"`)

	wrappedf := dberrors.Wrapf(cause, "mongodb insert into %q", "widgets")
	assert.Contains(t, wrappedf.Error(), `mongodb insert into "widgets"`)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, dberrors.IsTransient(dberrors.NewValidationError("name", "required")))
	assert.False(t, dberrors.IsTransient(dberrors.NewUnsupportedOperator("Regex", "sqlite")))
	assert.False(t, dberrors.IsTransient(dberrors.NewUnsupportedDatabase("oracle")))
	assert.False(t, dberrors.IsTransient(dberrors.NewConfigError("bad port")))
	assert.False(t, dberrors.IsTransient(dberrors.NewSerializationError("bad column")))
	assert.False(t, dberrors.IsTransient(dberrors.NewTableNotExistError("users", "gone")))
	assert.False(t, dberrors.IsTransient(dberrors.NewAliasNotFound("primary")))
	assert.False(t, dberrors.IsTransient(nil))

	assert.True(t, dberrors.IsTransient(dberrors.NewConnectionError("refused")))
	assert.True(t, dberrors.IsTransient(dberrors.Wrap(assert.AnError, "driver error")))

	// Wrapping a non-transient kind still reports non-transient through errors.As.
	assert.False(t, dberrors.IsTransient(dberrors.Wrap(dberrors.NewValidationError("name", "required"), "save")))
}
