// Package gorm provides GORM-based database operations for reflectra.
package gorm

import (
	"database/sql"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver registered as "sqlite"
)

// Store represents the GORM database connection.
type Store struct {
	DB    *gorm.DB
	sqlDB *sql.DB
}

// Config holds database configuration.
type Config struct {
	Path     string          // Path to SQLite database file (ignored when DSN is set)
	DSN      string          // PostgreSQL connection string; selects the Postgres dialect
	MaxConns int             // Maximum number of open connections (default: 4)
	LogLevel logger.LogLevel // GORM log level (logger.Silent for production)
}

// NewStore opens the database, configures the pool and runs migrations.
// SQLite runs in WAL mode with foreign keys enabled.
func NewStore(cfg Config) (*Store, error) {
	gormCfg := &gorm.Config{
		Logger:      logger.Default.LogMode(cfg.LogLevel),
		PrepareStmt: true,
	}

	var (
		db  *gorm.DB
		err error
	)
	if cfg.DSN != "" {
		db, err = gorm.Open(postgres.Open(cfg.DSN), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
	} else {
		// Per-connection pragmas go in the DSN so every pooled connection gets them
		dsn := cfg.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
		rawDB, openErr := sql.Open("sqlite", dsn)
		if openErr != nil {
			return nil, fmt.Errorf("open database: %w", openErr)
		}
		db, err = gorm.Open(sqlite.Dialector{DriverName: "sqlite", Conn: rawDB}, gormCfg)
		if err != nil {
			_ = rawDB.Close() // Explicitly ignore close error during cleanup
			return nil, fmt.Errorf("open gorm: %w", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns)
	sqlDB.SetConnMaxLifetime(0)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &Store{
		DB:    db,
		sqlDB: sqlDB,
	}

	// Run migrations FIRST (before PRAGMA commands)
	if err := runMigrations(db); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if db.Dialector.Name() == "sqlite" {
		if err := configureSQLite(sqlDB); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}

	return store, nil
}

// configureSQLite applies the database-wide pragmas.
func configureSQLite(sqlDB *sql.DB) error {
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return fmt.Errorf("set synchronous mode: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping() error {
	return s.sqlDB.Ping()
}

// GetRawDB returns the underlying *sql.DB for operations GORM can't handle.
func (s *Store) GetRawDB() *sql.DB {
	return s.sqlDB
}

// GetDB returns the GORM DB instance for standard queries.
func (s *Store) GetDB() *gorm.DB {
	return s.DB
}
