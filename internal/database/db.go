package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

//go:embed migrations
var migrations embed.FS

// DB is the metadata store: users and file records behind database/sql.
type DB struct {
	db     *sql.DB
	driver string
	logger *zap.Logger
}

// Open connects to the metadata store, applies pending migrations and
// verifies the connection. driver is DriverSQLite or DriverPostgres.
func Open(ctx context.Context, driver, dsn string, logger *zap.Logger) (*DB, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if err := runMigrations(driver, dsn, logger); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	logger.Info("metadata store ready", zap.String("driver", driver))
	return &DB{db: db, driver: driver, logger: logger}, nil
}

// SQLiteDSN builds a DSN for a SQLite file with foreign keys enforced.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"
}

func (p *DB) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *DB) Close() error {
	p.logger.Info("closing metadata store")
	return p.db.Close()
}

func (p *DB) qb() sq.StatementBuilderType {
	if p.driver == DriverPostgres {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// runMigrations applies the embedded schema on its own connection; the
// migrate driver closes that connection when done.
func runMigrations(driver, dsn string, logger *zap.Logger) error {
	sqldb, err := sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("sql.Open %s: %w", driver, err)
	}

	var target migratedb.Driver
	switch driver {
	case DriverPostgres:
		target, err = postgres.WithInstance(sqldb, &postgres.Config{})
	default:
		target, err = sqlite3.WithInstance(sqldb, &sqlite3.Config{})
	}
	if err != nil {
		sqldb.Close()
		return fmt.Errorf("%s migrate driver: %w", driver, err)
	}

	src, err := iofs.New(migrations, "migrations/"+driver)
	if err != nil {
		target.Close()
		return fmt.Errorf("iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driver, target)
	if err != nil {
		target.Close()
		return fmt.Errorf("migrate.New: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("no new migrations to apply")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}
	logger.Info("migrations applied")
	return nil
}
