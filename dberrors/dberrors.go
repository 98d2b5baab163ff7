// Package dberrors defines the error taxonomy every other package in this module returns:
// one exported type per kind in spec §7, each carrying just enough structure for a caller to
// branch on with errors.As. Built on github.com/cockroachdb/errors, mirroring
// forbearing-gst/database/database.go's package-level sentinel errors and types/interface.go's
// ErrEntryNotFound, generalized from ad-hoc sentinels into a typed-struct taxonomy because
// several kinds (ValidationError, UnsupportedOperator, TableNotExistError) carry payload the
// caller needs, not just a message.
package dberrors

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ConfigError reports malformed or type-mismatched configuration.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config error: %s", e.Message) }

// NewConfigError builds a *ConfigError from a format string, in the teacher's Errorf-adjacent
// style.
func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}

// ConnectionError reports failure to open a connection, "all in use", "pool closed", or a
// connection-variant mismatch inside an adapter.
type ConnectionError struct {
	Message string
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("connection error: %s", e.Message) }

func NewConnectionError(format string, args ...any) *ConnectionError {
	return &ConnectionError{Message: fmt.Sprintf(format, args...)}
}

// QueryError reports a backend rejecting a statement or a row.
type QueryError struct {
	Message string
}

func (e *QueryError) Error() string { return fmt.Sprintf("query error: %s", e.Message) }

func NewQueryError(format string, args ...any) *QueryError {
	return &QueryError{Message: fmt.Sprintf(format, args...)}
}

// ValidationError reports a value violating a field constraint, a required field missing, an
// unsafe identifier, or a write against an unregistered collection. Field names the offending
// field, or a pseudo-field such as "table_creation" (spec §4.E policy 1); it may be empty, in
// which case Error omits it.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error on field %q: %s", e.Field, e.Message)
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// UnsupportedDatabase reports an attempt to build an adapter for a backend not compiled in.
type UnsupportedDatabase struct {
	DBType string
}

func (e *UnsupportedDatabase) Error() string {
	return fmt.Sprintf("unsupported database type: %s", e.DBType)
}

func NewUnsupportedDatabase(dbType string) *UnsupportedDatabase {
	return &UnsupportedDatabase{DBType: dbType}
}

// UnsupportedOperator reports a condition operator the target backend cannot express.
type UnsupportedOperator struct {
	Operator string
	Backend  string
}

func (e *UnsupportedOperator) Error() string {
	return fmt.Sprintf("operator %q is not supported by backend %q", e.Operator, e.Backend)
}

func NewUnsupportedOperator(operator, backend string) *UnsupportedOperator {
	return &UnsupportedOperator{Operator: operator, Backend: backend}
}

// SerializationError reports a value<->native conversion failure, e.g. a row column that
// could not be decoded.
type SerializationError struct {
	Message string
}

func (e *SerializationError) Error() string { return fmt.Sprintf("serialization error: %s", e.Message) }

func NewSerializationError(format string, args ...any) *SerializationError {
	return &SerializationError{Message: fmt.Sprintf(format, args...)}
}

// AliasNotFound reports a pool lookup that missed the registry.
type AliasNotFound struct {
	Alias string
}

func (e *AliasNotFound) Error() string { return fmt.Sprintf("alias not found: %q", e.Alias) }

func NewAliasNotFound(alias string) *AliasNotFound {
	return &AliasNotFound{Alias: alias}
}

// TableNotExistError reports a backend telling us a table/collection does not exist on a
// read. Writes never surface this — they auto-create instead (spec §4.E policy 1).
type TableNotExistError struct {
	Table   string
	Message string
}

func (e *TableNotExistError) Error() string {
	return fmt.Sprintf("table %q does not exist: %s", e.Table, e.Message)
}

func NewTableNotExistError(table, format string, args ...any) *TableNotExistError {
	return &TableNotExistError{Table: table, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a stack trace to cause and prefixes the formatted message, the way the adapters
// wrap a driver error exactly once at the boundary. Workers and the pool facade never call Wrap
// a second time on something that already came back as one of this package's types (spec §7
// propagation rule).
func Wrap(cause error, format string, args ...any) error {
	if cause == nil {
		return errors.Newf(format, args...)
	}
	return errors.Wrapf(cause, format, args...)
}

// Wrapf is Wrap; kept as a separate name for call sites that want to be explicit about passing
// a format string.
func Wrapf(cause error, format string, args ...any) error {
	return Wrap(cause, format, args...)
}

// As reports whether err's chain contains a *T, setting target on success. Thin wrapper over
// cockroachdb/errors.As so call sites do not need a second import for the common case.
func As[T error](err error, target *T) bool {
	return errors.As(err, target)
}

// IsNotFound reports whether err is, or wraps, an AliasNotFound or TableNotExistError — the
// two "lookup missed" kinds a caller commonly treats as absence rather than failure.
func IsNotFound(err error) bool {
	var alias *AliasNotFound
	if errors.As(err, &alias) {
		return true
	}
	var table *TableNotExistError
	return errors.As(err, &table)
}

// IsTransient reports whether err looks like a connection/driver failure worth retrying, as
// opposed to a semantic error that another attempt cannot fix (spec §7: "ValidationError is
// never retried ... retries only apply for transient-looking errors"). The pool layer consults
// this before spending a retry attempt or counting a failure against a slot's rebuild threshold.
// Unrecognized errors (an opaque driver error wrapped once at the adapter boundary) default to
// transient, matching today's retry-everything behavior for the errors that behavior was meant
// to catch.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var validation *ValidationError
	if errors.As(err, &validation) {
		return false
	}
	var op *UnsupportedOperator
	if errors.As(err, &op) {
		return false
	}
	var db *UnsupportedDatabase
	if errors.As(err, &db) {
		return false
	}
	var cfg *ConfigError
	if errors.As(err, &cfg) {
		return false
	}
	var ser *SerializationError
	if errors.As(err, &ser) {
		return false
	}
	var table *TableNotExistError
	if errors.As(err, &table) {
		return false
	}
	var alias *AliasNotFound
	return !errors.As(err, &alias)
}
