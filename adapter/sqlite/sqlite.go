// Package sqlite opens a modernc.org/sqlite connection and wraps it in an adapter.SQLAdapter.
// Grounded on forbearing-gst/database/sqlite's driver-open convention (DSN assembly, ping on
// open) adapted to the pure-Go modernc.org/sqlite driver, a non-cgo substitute for the native
// SQLite engine original_source links against.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/forbearing/polydb/adapter"
	"github.com/forbearing/polydb/config"
	"github.com/forbearing/polydb/dberrors"
	"github.com/forbearing/polydb/querybuilder"
)

// Open dials cfg and returns an *adapter.SQLAdapter. settleDelay is the spec §4.E policy-1
// pause after an auto-create-table; pass near-zero in tests. SQLite's single-writer nature
// means callers are expected to serialize access externally (the pool's single-threaded
// worker, spec §4.F) — Open pins the pool to one connection so database/sql's own internal
// pooling can't fight the driver's file lock.
func Open(ctx context.Context, cfg *config.SqliteConnection, settleDelay time.Duration) (*adapter.SQLAdapter, error) {
	dsn := cfg.Path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, dberrors.NewConnectionError("sqlite open %q: %v", dsn, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, dberrors.NewConnectionError("sqlite ping %q: %v", dsn, err)
	}
	return adapter.NewSQL(db, querybuilder.SQLite, settleDelay), nil
}
