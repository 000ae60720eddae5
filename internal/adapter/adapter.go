// Package adapter provides database adapter interfaces and implementations
// for the staging database that holds raw, curated, and metric tables.
package adapter

import (
	"context"
	"database/sql"
)

// Config holds the configuration for connecting to a database.
type Config struct {
	// Type specifies the database type (e.g., "duckdb")
	Type string

	// Path is the file path for file-based databases.
	// Use ":memory:" for an in-memory database.
	Path string

	// Schema is the default schema to use
	Schema string

	// Options contains additional driver-specific options
	Options map[string]string
}

// Column represents a column in a database table.
type Column struct {
	Name     string
	Type     string
	Nullable bool
	Position int
}

// Metadata holds metadata about a database table.
type Metadata struct {
	Schema   string
	Name     string
	Columns  []Column
	RowCount int64
}

// Rows wraps sql.Rows to provide a consistent interface across adapters.
type Rows struct {
	*sql.Rows
}

// Row wraps sql.Row.
type Row struct {
	*sql.Row
}

// Adapter is the interface the pipeline steps use to talk to the staging
// database. Statements may carry bind parameters; identifiers (table and
// column names) are validated by the registry before they reach an adapter.
type Adapter interface {
	// Connect establishes a connection using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the database connection and releases resources.
	Close() error

	// Exec executes a SQL statement that doesn't return rows.
	Exec(ctx context.Context, sql string, args ...any) error

	// ExecRows executes a statement and reports the number of affected rows.
	ExecRows(ctx context.Context, sql string, args ...any) (int64, error)

	// Query executes a SQL statement that returns rows.
	Query(ctx context.Context, sql string, args ...any) (*Rows, error)

	// QueryRow executes a statement expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...any) *Row

	// GetTableMetadata retrieves metadata for a specified table.
	GetTableMetadata(ctx context.Context, table string) (*Metadata, error)

	// ListTables returns the names of all base tables and views.
	ListTables(ctx context.Context) ([]string, error)

	// DialectName returns the SQL dialect name for this adapter.
	DialectName() string
}
