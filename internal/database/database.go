// FilePath: internal/database/database.go
package database

import (
	"context"
	"fmt"

	"github.com/itsatony/sensorhub/internal/config"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	nuts "github.com/vaudience/go-nuts"
	_ "modernc.org/sqlite"
)

// Supported identity store drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not map to a bind type
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// DB is an interface that every relational connection must implement
type DB interface {
	Close() error
	Ping(ctx context.Context) error
	GetDB() *sqlx.DB
	Driver() string
}

// SQLDB represents a relational database connection
type SQLDB struct {
	db     *sqlx.DB
	driver string
}

// NewIdentityDB opens the relational store configured for sensor identities
func NewIdentityDB(cfg config.IdentityConfig) (DB, error) {
	switch cfg.Driver {
	case DriverPostgres, "":
		return NewPostgresDB(cfg)
	case DriverSQLite:
		return NewSQLiteDB(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported identity driver %q", cfg.Driver)
	}
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(cfg config.IdentityConfig) (DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("error connecting to PostgreSQL: %w", err)
	}

	nuts.L.Infof("[PostgresDB] Connected to %s:%d/%s", cfg.Host, cfg.Port, cfg.DBName)
	return &SQLDB{db: db, driver: DriverPostgres}, nil
}

// NewSQLiteDB opens an SQLite database. ":memory:" gives a private in-memory database.
func NewSQLiteDB(path string) (DB, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening SQLite %s: %w", path, err)
	}
	// every new connection to :memory: would see an empty database
	db.SetMaxOpenConns(1)

	nuts.L.Infof("[SQLiteDB] Opened %s", path)
	return &SQLDB{db: db, driver: DriverSQLite}, nil
}

func (p *SQLDB) Close() error {
	return p.db.Close()
}

func (p *SQLDB) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *SQLDB) GetDB() *sqlx.DB {
	return p.db
}

func (p *SQLDB) Driver() string {
	return p.driver
}
