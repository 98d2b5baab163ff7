package adapter

import (
	"fmt"

	"github.com/forbearing/polydb/idstrategy"
	"github.com/forbearing/polydb/model"
	"github.com/forbearing/polydb/querybuilder"
)

// ColumnType maps a model.FieldType to its native column type for dialect, per spec §4.E's
// per-adapter type tables. The "id" column's shape is not chosen here; IDColumnDDL builds it
// from the id strategy.
func ColumnType(dialect querybuilder.Dialect, ft model.FieldType) string {
	switch dialect {
	case querybuilder.SQLite:
		return sqliteColumnType(ft)
	case querybuilder.MySQL:
		return mysqlColumnType(ft)
	default:
		return postgresColumnType(ft)
	}
}

func sqliteColumnType(ft model.FieldType) string {
	switch ft.Kind {
	case model.FieldString:
		if ft.MaxLength != nil {
			return fmt.Sprintf("VARCHAR(%d)", *ft.MaxLength)
		}
		return "TEXT"
	case model.FieldText:
		return "TEXT"
	case model.FieldInteger, model.FieldBigInteger:
		return "INTEGER"
	case model.FieldFloat, model.FieldDouble:
		return "REAL"
	case model.FieldBoolean:
		return "INTEGER"
	case model.FieldUuid, model.FieldDateTime, model.FieldDateTimeWithTz, model.FieldDate, model.FieldTime,
		model.FieldJson, model.FieldArray, model.FieldObject, model.FieldReference, model.FieldDecimal:
		return "TEXT"
	case model.FieldBinary:
		return "BLOB"
	default:
		return "TEXT"
	}
}

func mysqlColumnType(ft model.FieldType) string {
	switch ft.Kind {
	case model.FieldString:
		n := 1000
		if ft.MaxLength != nil {
			n = *ft.MaxLength
		}
		return fmt.Sprintf("VARCHAR(%d)", n)
	case model.FieldText:
		return "TEXT"
	case model.FieldInteger:
		return "INT"
	case model.FieldBigInteger:
		return "BIGINT"
	case model.FieldFloat:
		return "FLOAT"
	case model.FieldDouble:
		return "DOUBLE"
	case model.FieldDecimal:
		return fmt.Sprintf("DECIMAL(%d,%d)", nonZero(ft.Precision, 20), ft.Scale)
	case model.FieldBoolean:
		return "TINYINT(1)"
	case model.FieldUuid:
		return "VARCHAR(36)"
	case model.FieldDateTime, model.FieldDateTimeWithTz, model.FieldDate, model.FieldTime:
		return "DATETIME"
	case model.FieldJson, model.FieldArray, model.FieldObject, model.FieldReference:
		return "JSON"
	case model.FieldBinary:
		return "LONGBLOB"
	default:
		return "TEXT"
	}
}

func postgresColumnType(ft model.FieldType) string {
	switch ft.Kind {
	case model.FieldString:
		if ft.MaxLength != nil {
			return fmt.Sprintf("VARCHAR(%d)", *ft.MaxLength)
		}
		return "TEXT"
	case model.FieldText:
		return "TEXT"
	case model.FieldInteger:
		return "INTEGER"
	case model.FieldBigInteger:
		return "BIGINT"
	case model.FieldFloat:
		return "REAL"
	case model.FieldDouble:
		return "DOUBLE PRECISION"
	case model.FieldDecimal:
		return fmt.Sprintf("NUMERIC(%d,%d)", nonZero(ft.Precision, 20), ft.Scale)
	case model.FieldBoolean:
		return "BOOLEAN"
	case model.FieldUuid:
		return "UUID"
	case model.FieldDateTime, model.FieldDateTimeWithTz, model.FieldDate, model.FieldTime:
		return "TIMESTAMPTZ"
	case model.FieldJson, model.FieldArray, model.FieldObject, model.FieldReference:
		return "JSONB"
	case model.FieldBinary:
		return "BYTEA"
	default:
		return "TEXT"
	}
}

func nonZero(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

// IDColumnDDL returns the "id" column definition for an auto-created table, per spec §4.E's
// per-adapter id-strategy mapping. AutoIncrement (and the zero Kind, for callers that never set
// one) keeps the driver-assigned integer PK: INTEGER PRIMARY KEY AUTOINCREMENT on SQLite, BIGINT
// ... AUTO_INCREMENT on MySQL, SERIAL on PostgreSQL. Every other strategy supplies its own id
// value before Create, so the column has to be a plain primary key sized for that value:
// PostgreSQL gets a native UUID column for Uuid and BIGINT for Snowflake; SQLite/MySQL, which
// have no native UUID type, and ObjectId/Custom on any SQL backend, get a text/varint column
// wide enough for the runtime representation.
func IDColumnDDL(dialect querybuilder.Dialect, kind idstrategy.Kind) string {
	switch dialect {
	case querybuilder.SQLite:
		switch kind {
		case idstrategy.Snowflake:
			return "id INTEGER PRIMARY KEY"
		case idstrategy.AutoIncrement, "":
			return "id INTEGER PRIMARY KEY AUTOINCREMENT"
		default:
			return "id TEXT PRIMARY KEY"
		}
	case querybuilder.MySQL:
		switch kind {
		case idstrategy.Snowflake:
			return "id BIGINT PRIMARY KEY"
		case idstrategy.AutoIncrement, "":
			return "id BIGINT PRIMARY KEY AUTO_INCREMENT"
		default:
			return "id VARCHAR(64) PRIMARY KEY"
		}
	default: // PostgreSQL
		switch kind {
		case idstrategy.AutoIncrement, "":
			return "id SERIAL PRIMARY KEY"
		case idstrategy.Snowflake:
			return "id BIGINT PRIMARY KEY"
		case idstrategy.Uuid:
			return "id UUID PRIMARY KEY"
		default:
			return "id TEXT PRIMARY KEY"
		}
	}
}
