// Package postgres opens a jackc/pgx/v5 connection (via its database/sql shim) and wraps it
// in an adapter.SQLAdapter. Grounded on original_source/src/adapter/postgres.rs's
// connection-string assembly and forbearing-gst/database/database.go's driver-open + pool-
// tuning convention.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/forbearing/polydb/adapter"
	"github.com/forbearing/polydb/config"
	"github.com/forbearing/polydb/dberrors"
	"github.com/forbearing/polydb/querybuilder"
)

// Open dials cfg/pool and returns an *adapter.SQLAdapter backed by pgx's database/sql driver
// ("pgx", registered by the stdlib subpackage import).
func Open(ctx context.Context, cfg *config.SQLConnection, pool config.PoolConfig) (*adapter.SQLAdapter, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.Username), url.QueryEscape(cfg.Password), cfg.Host, cfg.Port, cfg.Database, sslMode)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, dberrors.NewConnectionError("postgres open %s:%d: %v", cfg.Host, cfg.Port, err)
	}
	db.SetMaxOpenConns(pool.MaxConnections)
	db.SetMaxIdleConns(pool.MinConnections)
	db.SetConnMaxLifetime(pool.MaxLifetime)
	db.SetConnMaxIdleTime(pool.IdleTimeout)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, dberrors.NewConnectionError("postgres ping %s:%d: %v", cfg.Host, cfg.Port, err)
	}
	return adapter.NewSQL(db, querybuilder.PostgreSQL, pool.TableSettleDelay), nil
}
