// Package store is the Postgres persistence layer for emission readings.
//
// It owns the table and index layout, the bulk insert used by the loader,
// and the single keyset range query behind the paginated query endpoint.
// All SQL lives here; callers deal in domain types only.
package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultTable is the reading collection used when no override is
// configured.
const DefaultTable = "emission_readings"

// tablePattern restricts configurable table names to plain identifiers.
var tablePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Store wraps a pgx connection pool and the target table.
type Store struct {
	pool  *pgxpool.Pool
	table string
}

// New creates a Store over pool writing to table. The table name is
// interpolated into DDL and DML, so it must be a plain identifier.
func New(pool *pgxpool.Pool, table string) (*Store, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tablePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: pool, table: table}, nil
}

// Ping verifies store connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Table returns the configured table name.
func (s *Store) Table() string {
	return s.table
}

// quoteIdentifier quotes a SQL identifier to prevent injection.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
