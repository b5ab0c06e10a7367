package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// postgresTable is the single KV table
const postgresTable = "agentrunner_kv"

// PostgresConfig contains settings for the PostgreSQL provider
type PostgresConfig struct {
	// Host is the database host
	Host string `json:"host,omitempty"`

	// Port is the database port; defaults to 5432
	Port int `json:"port,omitempty"`

	// User is the database user
	User string `json:"user,omitempty"`

	// Password is the database password
	Password string `json:"password,omitempty"`

	// Database is the database name
	Database string `json:"database,omitempty"`

	// SSLMode is the sslmode connection parameter; defaults to disable
	SSLMode string `json:"ssl_mode,omitempty"`

	// DSN overrides the individual connection fields when set
	DSN string `json:"dsn,omitempty"`
}

// connectionString builds the lib/pq connection string
func (c PostgresConfig) connectionString() string {
	if c.DSN != "" {
		return c.DSN
	}

	port := c.Port
	if port == 0 {
		port = 5432
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, port, c.User, c.Password, c.Database, sslMode,
	)
}

// PostgresProvider implements the Provider interface backed by PostgreSQL
type PostgresProvider struct {
	db *sql.DB
}

// NewPostgresProvider creates a PostgreSQL provider and verifies the
// connection
func NewPostgresProvider(config PostgresConfig) (*PostgresProvider, error) {
	db, err := sql.Open("postgres", config.connectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	return &PostgresProvider{db: db}, nil
}

// NewPostgresProviderWithDB creates a provider around an existing
// connection. Tests inject their own database through this constructor.
func NewPostgresProviderWithDB(db *sql.DB) *PostgresProvider {
	return &PostgresProvider{db: db}
}

// Initialize creates the KV table if it doesn't exist
func (p *PostgresProvider) Initialize() error {
	_, err := p.db.Exec(`
		CREATE TABLE IF NOT EXISTS ` + postgresTable + ` (
			kv_key TEXT PRIMARY KEY,
			kv_value TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", postgresTable, err)
	}
	return nil
}

// Get returns the value stored under key
func (p *PostgresProvider) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := p.db.QueryRowContext(ctx,
		`SELECT kv_value FROM `+postgresTable+` WHERE kv_key = $1`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return []byte(value), nil
}

// Put stores a value under key
func (p *PostgresProvider) Put(ctx context.Context, key string, value []byte) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO `+postgresTable+` (kv_key, kv_value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (kv_key) DO UPDATE SET kv_value = $2, updated_at = now()
	`, key, string(value))
	if err != nil {
		if isPostgresQuotaError(err) {
			return fmt.Errorf("postgres refused write for key %s: %w", key, ErrQuotaExceeded)
		}
		return fmt.Errorf("failed to put key %s: %w", key, err)
	}
	return nil
}

// Delete removes a key
func (p *PostgresProvider) Delete(ctx context.Context, key string) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM `+postgresTable+` WHERE kv_key = $1`, key,
	)
	if err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Keys returns all keys beginning with prefix, sorted
func (p *PostgresProvider) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT kv_key FROM `+postgresTable+` WHERE kv_key LIKE $1 || '%' ORDER BY kv_key`, prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return keys, nil
}

// Close releases the provider's resources
func (p *PostgresProvider) Close() error {
	return p.db.Close()
}

// isPostgresQuotaError reports whether the server refused a write for
// capacity reasons (SQLSTATE class 53: insufficient resources)
func isPostgresQuotaError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "53100", // disk_full
		"53200", // out_of_memory
		"53400": // configuration_limit_exceeded
		return true
	default:
		return false
	}
}
