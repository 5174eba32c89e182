package store

// schema.go declares the reading table and the index set the query path
// depends on. EnsureSchema is idempotent and runs on every startup of
// both the loader and the server.
//
// The unique index on reading_id is the idempotent re-seeding contract:
// re-running the loader against an already-seeded file turns every row
// into a counted duplicate instead of a second copy. The two compound
// indexes make the (scope, time range) scans of the query path
// index-ordered rather than full-table sorts.

import (
	"context"
	"fmt"
)

// EnsureSchema creates the reading table and its indexes if absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	table := quoteIdentifier(s.table)

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id              BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			reading_id      TEXT NOT NULL,
			ts              TIMESTAMPTZ NOT NULL,
			site_id         TEXT NOT NULL,
			site_name       TEXT NOT NULL DEFAULT '',
			equipment_id    TEXT NOT NULL,
			emission_type   TEXT NOT NULL DEFAULT '',
			mass            DOUBLE PRECISION NOT NULL,
			unit            TEXT NOT NULL DEFAULT '',
			scan_duration_s INTEGER NOT NULL,
			confidence      DOUBLE PRECISION NOT NULL,
			num_detections  INTEGER NOT NULL,
			detections      JSONB NOT NULL DEFAULT '[]'
		)`, table),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (reading_id)`,
			quoteIdentifier(s.table+"_reading_id_key"), table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (site_id, equipment_id, ts DESC, id DESC)`,
			quoteIdentifier(s.table+"_scope_ts_idx"), table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (site_id, ts DESC, id DESC)`,
			quoteIdentifier(s.table+"_site_ts_idx"), table),
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
