package store

// query.go executes the single range query behind GET /emissions.
//
// Pagination is keyset-based over (ts DESC, id DESC): the cursor predicate
// `(ts, id) < (cursorTs, cursorId)` is Postgres row-value comparison,
// which under descending order expands to exactly
// `ts < cursorTs OR (ts = cursorTs AND id < cursorId)`, the tie-break
// that keeps pages gap-free and duplicate-free when many readings share a
// timestamp. One extra row beyond the requested limit is fetched purely
// to learn whether a further page exists; it is never returned.

import (
	"context"
	"fmt"
	"strings"

	"github.com/plumescan/emissions/internal/emissions"
)

// ListEmissions returns one page of readings matching p, ordered by
// (ts DESC, id DESC), plus the cursor for the following page.
func (s *Store) ListEmissions(ctx context.Context, p emissions.ListParams) (*emissions.Page, error) {
	query, args := buildListQuery(s.table, p)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	items := make([]emissions.EmissionRecord, 0, p.Limit)
	for rows.Next() {
		var rec emissions.EmissionRecord
		dest := []any{
			&rec.RecordID, &rec.ReadingID, &rec.Timestamp, &rec.SiteID, &rec.SiteName,
			&rec.EquipmentID, &rec.Type, &rec.Mass, &rec.Unit, &rec.ScanDuration,
			&rec.Confidence, &rec.NumDetections,
		}
		if p.IncludeDetections {
			dest = append(dest, &rec.Detections)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read readings: %w", err)
	}

	page := &emissions.Page{Items: items}
	if len(items) > p.Limit {
		// The lookahead row only proves another page exists; the cursor
		// comes from the last item actually returned.
		page.Items = items[:p.Limit]
		last := page.Items[len(page.Items)-1]
		page.NextCursor = &emissions.Cursor{Ts: last.Timestamp, ID: last.RecordID}
	}
	return page, nil
}

// buildListQuery assembles the one bounded range query for p. Split out
// of ListEmissions so the predicate shape is unit-testable without a
// database.
func buildListQuery(table string, p emissions.ListParams) (string, []any) {
	cols := `id, reading_id, ts, site_id, site_name, equipment_id, emission_type,
		mass, unit, scan_duration_s, confidence, num_detections`
	if p.IncludeDetections {
		cols += ", detections"
	}

	var sb strings.Builder
	args := []any{p.SiteID, p.EquipmentID, p.ConfidenceMin}
	fmt.Fprintf(&sb, "SELECT %s FROM %s WHERE site_id = $1 AND equipment_id = $2 AND confidence >= $3",
		cols, quoteIdentifier(table))

	if p.From != nil {
		args = append(args, *p.From)
		fmt.Fprintf(&sb, " AND ts >= $%d", len(args))
	}
	if p.To != nil {
		args = append(args, *p.To)
		fmt.Fprintf(&sb, " AND ts <= $%d", len(args))
	}
	if p.Cursor != nil {
		args = append(args, p.Cursor.Ts, p.Cursor.ID)
		fmt.Fprintf(&sb, " AND (ts, id) < ($%d, $%d)", len(args)-1, len(args))
	}

	args = append(args, p.Limit+1)
	fmt.Fprintf(&sb, " ORDER BY ts DESC, id DESC LIMIT $%d", len(args))

	return sb.String(), args
}
