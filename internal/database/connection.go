package database

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver ("pgx")
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver ("postgres")
	"github.com/smarttransit/student-booking-engine/internal/config"
)

// DB is the subset of connection operations used outside the repositories
type DB interface {
	Ping() error
	PingContext(ctx context.Context) error
	Close() error
}

// PostgresDB implements the DB interface using sqlx
type PostgresDB struct {
	*sqlx.DB
}

// NewConnection creates a new database connection
func NewConnection(cfg config.DatabaseConfig) (*PostgresDB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}

	connectionURL := cfg.URL
	if driver == "pgx" {
		// Connection poolers (Supavisor, pgbouncer in transaction mode) reject
		// prepared statements; pgx falls back to the simple protocol with this flag.
		connectionURL = withSimpleProtocol(connectionURL)
	}

	db, err := sqlx.Connect(driver, connectionURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxLifetime / 2)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{DB: db}, nil
}

func withSimpleProtocol(url string) string {
	if strings.Contains(url, "default_query_exec_mode") {
		return url
	}
	separator := "?"
	if strings.Contains(url, "?") {
		separator = "&"
	}
	return url + separator + "default_query_exec_mode=simple_protocol"
}
