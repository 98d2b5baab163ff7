// Package config defines the configuration surface accepted by registry.AddDatabase: one
// DatabaseConfig per alias, covering connection parameters, pool tuning and the ID strategy.
// There is no file or environment loader here — per spec this core takes configuration
// explicitly from the caller; defaulting follows forbearing-gst's config.setDefault()
// convention, built on creasty/defaults struct tags instead of a config-file unmarshal.
package config

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
)

// DBType names one of the four backends this core adapts.
type DBType string

const (
	SQLite     DBType = "sqlite"
	MySQL      DBType = "mysql"
	PostgreSQL DBType = "postgres"
	MongoDB    DBType = "mongodb"
)

// IDStrategyKind selects how the primary key is populated at create-time.
type IDStrategyKind string

const (
	IDAutoIncrement IDStrategyKind = "auto_increment"
	IDUuid          IDStrategyKind = "uuid"
	IDSnowflake     IDStrategyKind = "snowflake"
	IDObjectId      IDStrategyKind = "object_id"
	IDCustom        IDStrategyKind = "custom"
)

// IDStrategyConfig configures the pool's ID strategy (spec §3 "ID strategy").
type IDStrategyConfig struct {
	Kind IDStrategyKind `json:"kind" mapstructure:"kind" default:"auto_increment"`
	// NodeBits is only meaningful for Snowflake; it splits the 22 bits below the 41-bit
	// timestamp between node and sequence bits.
	NodeBits uint8 `json:"node_bits,omitempty" mapstructure:"node_bits" default:"10"`
	// MachineID is only meaningful for Snowflake.
	MachineID int64 `json:"machine_id,omitempty" mapstructure:"machine_id"`
	// Custom names the registered custom generator to use when Kind == IDCustom (e.g. "xid").
	Custom string `json:"custom,omitempty" mapstructure:"custom"`
}

func (c *IDStrategyConfig) setDefault() {
	if err := defaults.Set(c); err != nil {
		c.Kind = IDAutoIncrement
		c.NodeBits = 10
	}
}

// TLSConfig is shared by every backend that can negotiate TLS.
type TLSConfig struct {
	CAFile             string `json:"ca_file,omitempty" mapstructure:"ca_file"`
	CertFile           string `json:"cert_file,omitempty" mapstructure:"cert_file"`
	KeyFile            string `json:"key_file,omitempty" mapstructure:"key_file"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify,omitempty" mapstructure:"insecure_skip_verify"`
	ServerName         string `json:"server_name,omitempty" mapstructure:"server_name"`
}

// SqliteConnection is the connection config for DBType SQLite.
type SqliteConnection struct {
	// Path is a filesystem path, or ":memory:" for an in-process database.
	Path            string `json:"path" mapstructure:"path" default:":memory:"`
	CreateIfMissing bool   `json:"create_if_missing" mapstructure:"create_if_missing" default:"true"`
}

func (c *SqliteConnection) setDefault() {
	_ = defaults.Set(c)
}

// SQLConnection is the connection config shared by MySQL and PostgreSQL.
type SQLConnection struct {
	Host     string `json:"host" mapstructure:"host" default:"127.0.0.1"`
	Port     int    `json:"port" mapstructure:"port"`
	Database string `json:"database" mapstructure:"database"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	// SSLMode is the PostgreSQL-style sslmode string ("disable", "require", "verify-full", ...).
	SSLMode   string     `json:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
	TLSConfig *TLSConfig `json:"tls_config,omitempty" mapstructure:"tls_config"`
}

func (c *SQLConnection) setDefault(dbType DBType) {
	_ = defaults.Set(c)
	if c.Port == 0 {
		switch dbType {
		case MySQL:
			c.Port = 3306
		case PostgreSQL:
			c.Port = 5432
		}
	}
}

// MongoConnection is the connection config for DBType MongoDB.
type MongoConnection struct {
	Host             string            `json:"host" mapstructure:"host" default:"127.0.0.1"`
	Port             int               `json:"port" mapstructure:"port" default:"27017"`
	Database         string            `json:"database" mapstructure:"database"`
	Username         string            `json:"username,omitempty" mapstructure:"username"`
	Password         string            `json:"password,omitempty" mapstructure:"password"`
	AuthSource       string            `json:"auth_source,omitempty" mapstructure:"auth_source"`
	DirectConnection bool              `json:"direct_connection" mapstructure:"direct_connection" default:"false"`
	TLSConfig        *TLSConfig        `json:"tls_config,omitempty" mapstructure:"tls_config"`
	ZstdCompression  bool              `json:"zstd_compression,omitempty" mapstructure:"zstd_compression"`
	Options          map[string]string `json:"options,omitempty" mapstructure:"options"`
}

func (c *MongoConnection) setDefault() {
	_ = defaults.Set(c)
}

// URI builds the mongodb:// connection string. Field order follows spec §6: scheme, userinfo,
// host:port, database, query options.
func (c *MongoConnection) URI() string {
	var b strings.Builder
	b.WriteString("mongodb://")
	if c.Username != "" {
		b.WriteString(url.QueryEscape(c.Username))
		if c.Password != "" {
			b.WriteString(":")
			b.WriteString(url.QueryEscape(c.Password))
		}
		b.WriteString("@")
	}
	b.WriteString(c.Host)
	b.WriteString(":")
	b.WriteString(strconv.Itoa(c.Port))
	b.WriteString("/")
	b.WriteString(c.Database)

	query := url.Values{}
	if c.AuthSource != "" {
		query.Set("authSource", c.AuthSource)
	}
	if c.DirectConnection {
		query.Set("directConnection", "true")
	}
	if c.ZstdCompression {
		query.Set("compressors", "zstd")
	}
	for k, v := range c.Options {
		query.Set(k, v)
	}
	if len(query) > 0 {
		b.WriteString("?")
		b.WriteString(query.Encode())
	}
	return b.String()
}

// ConnectionConfig holds exactly one of the four backend-specific connection shapes,
// selected by the enclosing DatabaseConfig.DBType.
type ConnectionConfig struct {
	Sqlite   *SqliteConnection `json:"sqlite,omitempty" mapstructure:"sqlite"`
	MySQL    *SQLConnection    `json:"mysql,omitempty" mapstructure:"mysql"`
	Postgres *SQLConnection    `json:"postgres,omitempty" mapstructure:"postgres"`
	Mongo    *MongoConnection  `json:"mongo,omitempty" mapstructure:"mongo"`
}

// CacheBackend selects the store behind the cache decorator (spec §4.E).
type CacheBackend string

const (
	CacheRistretto CacheBackend = "ristretto"
	CacheRedis     CacheBackend = "redis"
)

// CacheConfig is optional per DatabaseConfig; a nil *CacheConfig means reads go straight to
// the adapter with no decorator.
type CacheConfig struct {
	Backend CacheBackend  `json:"backend" mapstructure:"backend" default:"ristretto"`
	TTL     time.Duration `json:"ttl" mapstructure:"ttl" default:"5m"`
	// MaxCost bounds the ristretto backend's cost budget in bytes; unused for redis.
	MaxCost int64 `json:"max_cost,omitempty" mapstructure:"max_cost" default:"104857600"`
	// RedisAddr is required when Backend == CacheRedis.
	RedisAddr string `json:"redis_addr,omitempty" mapstructure:"redis_addr"`
	RedisDB   int    `json:"redis_db,omitempty" mapstructure:"redis_db"`
}

func (c *CacheConfig) setDefault() {
	_ = defaults.Set(c)
}

// PoolConfig carries the tunables listed in spec §4.F/§6, one set per alias.
type PoolConfig struct {
	MinConnections     int           `json:"min_connections" mapstructure:"min_connections" default:"1"`
	MaxConnections     int           `json:"max_connections" mapstructure:"max_connections" default:"10"`
	ConnectionTimeout  time.Duration `json:"connection_timeout" mapstructure:"connection_timeout" default:"5s"`
	IdleTimeout        time.Duration `json:"idle_timeout" mapstructure:"idle_timeout" default:"5m"`
	MaxLifetime        time.Duration `json:"max_lifetime" mapstructure:"max_lifetime" default:"30m"`
	MaxRetries         int           `json:"max_retries" mapstructure:"max_retries" default:"3"`
	RetryInterval      time.Duration `json:"retry_interval" mapstructure:"retry_interval" default:"100ms"`
	KeepaliveInterval  time.Duration `json:"keepalive_interval" mapstructure:"keepalive_interval" default:"30s"`
	HealthCheckTimeout time.Duration `json:"health_check_timeout" mapstructure:"health_check_timeout" default:"3s"`
	// TableSettleDelay is the pause after an auto-create-table before the triggering write
	// proceeds (spec §4.E policy 1). Tunable per-alias so tests can set it to near-zero.
	TableSettleDelay time.Duration `json:"table_settle_delay" mapstructure:"table_settle_delay" default:"100ms"`
}

func (c *PoolConfig) setDefault() {
	_ = defaults.Set(c)
}

// DatabaseConfig is the unit registry.AddDatabase consumes: one alias, one backend, its
// connection/pool/id-strategy/cache settings.
type DatabaseConfig struct {
	Alias      string           `json:"alias" mapstructure:"alias" default:"default"`
	DBType     DBType           `json:"db_type" mapstructure:"db_type"`
	Connection ConnectionConfig `json:"connection" mapstructure:"connection"`
	Pool       PoolConfig       `json:"pool" mapstructure:"pool"`
	IDStrategy IDStrategyConfig `json:"id_strategy" mapstructure:"id_strategy"`
	Cache      *CacheConfig     `json:"cache,omitempty" mapstructure:"cache"`
	// Default marks this alias as the registry's default_alias (spec §4.H); exactly one
	// DatabaseConfig registered with Default == true wins, the last one applied.
	Default bool `json:"default,omitempty" mapstructure:"default"`
}

// SetDefault applies creasty/defaults to every substruct that needs it and fills in the
// backend-specific connection struct if the caller left it nil, mirroring
// forbearing-gst's Config.setDefault() cascade.
func (c *DatabaseConfig) SetDefault() {
	if err := defaults.Set(c); err != nil {
		c.Alias = "default"
	}
	c.Pool.setDefault()
	c.IDStrategy.setDefault()
	if c.Cache != nil {
		c.Cache.setDefault()
	}

	switch c.DBType {
	case SQLite:
		if c.Connection.Sqlite == nil {
			c.Connection.Sqlite = &SqliteConnection{}
		}
		c.Connection.Sqlite.setDefault()
	case MySQL:
		if c.Connection.MySQL == nil {
			c.Connection.MySQL = &SQLConnection{}
		}
		c.Connection.MySQL.setDefault(MySQL)
	case PostgreSQL:
		if c.Connection.Postgres == nil {
			c.Connection.Postgres = &SQLConnection{}
		}
		c.Connection.Postgres.setDefault(PostgreSQL)
	case MongoDB:
		if c.Connection.Mongo == nil {
			c.Connection.Mongo = &MongoConnection{}
		}
		c.Connection.Mongo.setDefault()
	}
}

// Validate checks that the selected DBType has a matching connection block populated and
// that the alias is non-empty. It does not dial anything.
func (c *DatabaseConfig) Validate() error {
	if c.Alias == "" {
		return errors.New("config: alias must not be empty")
	}
	switch c.DBType {
	case SQLite:
		if c.Connection.Sqlite == nil {
			return errors.Newf("config: alias %q declares db_type sqlite with no sqlite connection block", c.Alias)
		}
	case MySQL:
		if c.Connection.MySQL == nil {
			return errors.Newf("config: alias %q declares db_type mysql with no mysql connection block", c.Alias)
		}
	case PostgreSQL:
		if c.Connection.Postgres == nil {
			return errors.Newf("config: alias %q declares db_type postgres with no postgres connection block", c.Alias)
		}
	case MongoDB:
		if c.Connection.Mongo == nil {
			return errors.Newf("config: alias %q declares db_type mongodb with no mongo connection block", c.Alias)
		}
	default:
		return errors.Newf("config: alias %q declares unknown db_type %q", c.Alias, c.DBType)
	}
	return nil
}
