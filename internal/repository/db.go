package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/invoice-trust/internal/common"
)

type Config struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ConfigFrom copies the database settings of the service configuration.
func ConfigFrom(c common.DatabaseConfig) Config {
	return Config{
		DSN:              c.DSN,
		MaxConns:         c.MaxConns,
		MinConns:         c.MinConns,
		MaxConnLifetime:  c.MaxConnLifetime,
		MaxConnIdleTime:  c.MaxConnIdleTime,
		DialTimeout:      c.DialTimeout,
		StatementTimeout: c.StatementTimeout,
	}
}

// DB is an open record store on either SQLite or Postgres.
type DB struct {
	drv     *entsql.Driver
	dialect string
	pool    *pgxpool.Pool
	logger  *slog.Logger
}

// Open connects to cfg.DSN: sqlite://<path>, sqlite://:memory:, or a postgres:// URL.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch {
	case strings.HasPrefix(cfg.DSN, "sqlite://"):
		return openSQLite(strings.TrimPrefix(cfg.DSN, "sqlite://"), logger)
	case strings.HasPrefix(cfg.DSN, "postgres://"), strings.HasPrefix(cfg.DSN, "postgresql://"):
		return openPostgres(ctx, cfg, logger)
	default:
		return nil, common.NewConfigError("DB_URL must start with sqlite:// or postgres://", nil)
	}
}

func openSQLite(path string, logger *slog.Logger) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)"
	if path == ":memory:" || path == "" {
		dsn = "file::memory:"
	}
	logger.Info("repository.sqlite.open", "path", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection: in-memory databases are per connection and sqlite serializes writers anyway
	db.SetMaxOpenConns(1)
	return &DB{drv: entsql.OpenDB(dialect.SQLite, db), dialect: dialect.SQLite, logger: logger}, nil
}

// openPostgres creates a pgx pool and wraps it as *sql.DB for the ent SQL driver.
func openPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	logger.Info("repository.postgres.connect", "dsn", redact(cfg.DSN))
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("repository.postgres.connect_failed", "error", err)
		return nil, common.NewConfigError("invalid DB_URL", err)
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "invoice-trust"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = cfg.StatementTimeout.String()
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("repository.postgres.connect_failed", "error", err)
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	logger.Info("repository.postgres.ok")
	return &DB{drv: entsql.OpenDB(dialect.Postgres, db), dialect: dialect.Postgres, pool: pool, logger: logger}, nil
}

// Dialect returns the ent dialect name ("sqlite3" or "postgres").
func (d *DB) Dialect() string { return d.dialect }

// Ping checks the connection, bounded by timeout when positive.
func (d *DB) Ping(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := d.drv.DB().PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", d.dialect, err)
	}
	d.logger.Debug("repository.ping.ok")
	return nil
}

// Close closes the database connections gracefully.
func (d *DB) Close() {
	d.logger.Info("repository.close")
	if err := d.drv.Close(); err != nil {
		d.logger.Error("repository.close_failed", "error", err)
	}
	if d.pool != nil {
		d.pool.Close()
	}
}

func redact(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	return dsn[:scheme+3] + "***" + dsn[at:]
}
