package store

// insert.go performs the bulk write the ingestion batcher flushes into.
//
// The fast path is one multi-row INSERT over unnested arrays with
// ON CONFLICT (reading_id) DO NOTHING: natural-key collisions are skipped
// in place and can never roll back sibling rows in the batch, and the
// statement's rows-affected count gives the inserted/duplicate split
// directly. A batch can still fail wholesale if the table carries an
// additional operator-defined unique constraint; in that case the batch
// is replayed row by row inside a transaction with a savepoint per row,
// so only the genuinely conflicting rows are skipped. Any error that is
// not a classified unique violation propagates to the caller and aborts
// the ingestion run.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/plumescan/emissions/internal/emissions"
)

// BulkResult reports one bulk write. Inserted + Duplicates always equals
// the batch length on success.
type BulkResult struct {
	Inserted   int64
	Duplicates int64
}

const insertColumns = `reading_id, ts, site_id, site_name, equipment_id, emission_type,
		mass, unit, scan_duration_s, confidence, num_detections, detections`

// BulkInsert writes one batch of normalized records.
func (s *Store) BulkInsert(ctx context.Context, recs []emissions.EmissionRecord) (BulkResult, error) {
	if len(recs) == 0 {
		return BulkResult{}, nil
	}

	var (
		readingIDs    = make([]string, len(recs))
		timestamps    = make([]time.Time, len(recs))
		siteIDs       = make([]string, len(recs))
		siteNames     = make([]string, len(recs))
		equipmentIDs  = make([]string, len(recs))
		emissionTypes = make([]string, len(recs))
		masses        = make([]float64, len(recs))
		units         = make([]string, len(recs))
		scanDurations = make([]int32, len(recs))
		confidences   = make([]float64, len(recs))
		numDetections = make([]int32, len(recs))
		detections    = make([]string, len(recs))
	)
	for i := range recs {
		r := &recs[i]
		readingIDs[i] = r.ReadingID
		timestamps[i] = r.Timestamp
		siteIDs[i] = r.SiteID
		siteNames[i] = r.SiteName
		equipmentIDs[i] = r.EquipmentID
		emissionTypes[i] = r.Type
		masses[i] = r.Mass
		units[i] = r.Unit
		scanDurations[i] = int32(r.ScanDuration)
		confidences[i] = r.Confidence
		numDetections[i] = int32(r.NumDetections)
		if len(r.Detections) == 0 {
			detections[i] = "[]"
		} else {
			detections[i] = string(r.Detections)
		}
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s)
		SELECT t.reading_id, t.ts, t.site_id, t.site_name, t.equipment_id, t.emission_type,
		       t.mass, t.unit, t.scan_duration_s, t.confidence, t.num_detections, t.detections::jsonb
		FROM unnest(
			$1::text[], $2::timestamptz[], $3::text[], $4::text[], $5::text[], $6::text[],
			$7::float8[], $8::text[], $9::int4[], $10::float8[], $11::int4[], $12::text[]
		) AS t(reading_id, ts, site_id, site_name, equipment_id, emission_type,
		       mass, unit, scan_duration_s, confidence, num_detections, detections)
		ON CONFLICT (reading_id) DO NOTHING`,
		quoteIdentifier(s.table), insertColumns)

	tag, err := s.pool.Exec(ctx, query,
		readingIDs, timestamps, siteIDs, siteNames, equipmentIDs, emissionTypes,
		masses, units, scanDurations, confidences, numDetections, detections)
	if err != nil {
		if IsUniqueViolation(err) {
			return s.insertRowByRow(ctx, recs)
		}
		return BulkResult{}, fmt.Errorf("bulk insert: %w", err)
	}

	inserted := tag.RowsAffected()
	return BulkResult{
		Inserted:   inserted,
		Duplicates: int64(len(recs)) - inserted,
	}, nil
}

// insertRowByRow replays a batch one row at a time with a savepoint per
// row, so a unique violation skips that row without poisoning the
// transaction for the rest of the batch.
func (s *Store) insertRowByRow(ctx context.Context, recs []emissions.EmissionRecord) (BulkResult, error) {
	query := fmt.Sprintf(`INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::jsonb)
		ON CONFLICT (reading_id) DO NOTHING`,
		quoteIdentifier(s.table), insertColumns)

	var result BulkResult

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for i := range recs {
			r := &recs[i]
			dets := "[]"
			if len(r.Detections) > 0 {
				dets = string(r.Detections)
			}

			if _, err := tx.Exec(ctx, fmt.Sprintf("SAVEPOINT sp_%d", i)); err != nil {
				return fmt.Errorf("create savepoint: %w", err)
			}

			tag, err := tx.Exec(ctx, query,
				r.ReadingID, r.Timestamp, r.SiteID, r.SiteName, r.EquipmentID, r.Type,
				r.Mass, r.Unit, int32(r.ScanDuration), r.Confidence, int32(r.NumDetections), dets)
			switch {
			case err == nil && tag.RowsAffected() == 1:
				result.Inserted++
			case err == nil:
				result.Duplicates++
			case IsUniqueViolation(err):
				if _, rbErr := tx.Exec(ctx, fmt.Sprintf("ROLLBACK TO SAVEPOINT sp_%d", i)); rbErr != nil {
					return fmt.Errorf("rollback savepoint: %w", rbErr)
				}
				result.Duplicates++
				continue
			default:
				return fmt.Errorf("insert reading %q: %w", r.ReadingID, err)
			}

			if _, err := tx.Exec(ctx, fmt.Sprintf("RELEASE SAVEPOINT sp_%d", i)); err != nil {
				return fmt.Errorf("release savepoint: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return BulkResult{}, err
	}
	return result, nil
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation, the one write error class that is expected data rather than
// a fatal connectivity or schema problem.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
