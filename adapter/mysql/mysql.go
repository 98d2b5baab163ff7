// Package mysql opens a go-sql-driver/mysql connection and wraps it in an adapter.SQLAdapter.
// Grounded on original_source/src/adapter/mysql.rs's connection-string assembly and
// forbearing-gst/database/database.go's driver-open + pool-tuning convention
// (SetMaxOpenConns/SetMaxIdleConns/SetConnMaxLifetime sourced from config.PoolConfig).
package mysql

import (
	"context"
	"database/sql"
	"fmt"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/forbearing/polydb/adapter"
	"github.com/forbearing/polydb/config"
	"github.com/forbearing/polydb/dberrors"
	"github.com/forbearing/polydb/querybuilder"
)

// Open dials cfg/pool and returns an *adapter.SQLAdapter. The DSN is built with
// go-sql-driver/mysql's own Config type rather than hand-formatted, so TLS and special
// characters in credentials are escaped the way the driver expects (parseTime=true is set so
// DATETIME columns decode straight into time.Time for adapter.decodeTyped's datetime path).
func Open(ctx context.Context, cfg *config.SQLConnection, pool config.PoolConfig) (*adapter.SQLAdapter, error) {
	dsnCfg := mysqldriver.NewConfig()
	dsnCfg.User = cfg.Username
	dsnCfg.Passwd = cfg.Password
	dsnCfg.Net = "tcp"
	dsnCfg.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	dsnCfg.DBName = cfg.Database
	dsnCfg.ParseTime = true
	if cfg.TLSConfig != nil {
		if cfg.TLSConfig.InsecureSkipVerify {
			dsnCfg.TLSConfig = "skip-verify"
		} else {
			dsnCfg.TLSConfig = "true"
		}
	}

	db, err := sql.Open("mysql", dsnCfg.FormatDSN())
	if err != nil {
		return nil, dberrors.NewConnectionError("mysql open %s: %v", dsnCfg.Addr, err)
	}
	db.SetMaxOpenConns(pool.MaxConnections)
	db.SetMaxIdleConns(pool.MinConnections)
	db.SetConnMaxLifetime(pool.MaxLifetime)
	db.SetConnMaxIdleTime(pool.IdleTimeout)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, dberrors.NewConnectionError("mysql ping %s: %v", dsnCfg.Addr, err)
	}
	return adapter.NewSQL(db, querybuilder.MySQL, pool.TableSettleDelay), nil
}
