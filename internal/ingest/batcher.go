package ingest

// batcher.go buffers normalized records into bounded batches and merges
// the per-batch write results into running counters.
//
// Add flushes synchronously when the buffer is full; the caller cannot
// hand over another record until the outstanding write has completed.
// That blocking call is the pipeline's backpressure mechanism, and it
// bounds resident memory at one batch regardless of input size.

import (
	"context"
	"fmt"

	"github.com/plumescan/emissions/internal/emissions"
	"github.com/plumescan/emissions/internal/metrics"
	"github.com/plumescan/emissions/internal/store"
)

// DefaultBatchSize is the flush threshold used when none is configured.
const DefaultBatchSize = 5000

// BulkWriter is the store-side bulk write the batcher flushes into. A
// duplicate natural key must be absorbed into the result counters without
// aborting sibling rows; only connectivity or schema problems surface as
// errors.
type BulkWriter interface {
	BulkInsert(ctx context.Context, recs []emissions.EmissionRecord) (store.BulkResult, error)
}

// NopWriter discards batches, reporting every record as inserted. Used by
// the loader's dry-run mode.
type NopWriter struct{}

// BulkInsert implements BulkWriter.
func (NopWriter) BulkInsert(_ context.Context, recs []emissions.EmissionRecord) (store.BulkResult, error) {
	return store.BulkResult{Inserted: int64(len(recs))}, nil
}

// Batcher accumulates records and flushes them through a BulkWriter.
// It is not safe for concurrent use; the pipeline drives it from a single
// goroutine.
type Batcher struct {
	writer BulkWriter
	size   int
	buf    []emissions.EmissionRecord

	inserted   int64
	duplicates int64
	flushes    int64
}

// NewBatcher creates a batcher flushing through w every size records.
func NewBatcher(w BulkWriter, size int) *Batcher {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &Batcher{
		writer: w,
		size:   size,
		buf:    make([]emissions.EmissionRecord, 0, size),
	}
}

// Add appends rec to the buffer and flushes once the buffer reaches the
// batch size, blocking the caller until the write completes. A flush
// error means the write failed for a non-duplicate reason and the
// ingestion run must abort.
func (b *Batcher) Add(ctx context.Context, rec *emissions.EmissionRecord) error {
	b.buf = append(b.buf, *rec)
	if len(b.buf) >= b.size {
		return b.Flush(ctx)
	}
	return nil
}

// Flush writes the buffered records as one bulk insert and folds the
// result into the running counters.
func (b *Batcher) Flush(ctx context.Context) error {
	if len(b.buf) == 0 {
		return nil
	}

	res, err := b.writer.BulkInsert(ctx, b.buf)
	if err != nil {
		return fmt.Errorf("flush batch of %d: %w", len(b.buf), err)
	}

	b.inserted += res.Inserted
	b.duplicates += res.Duplicates
	b.flushes++
	b.buf = b.buf[:0]

	metrics.RowsInserted.Add(float64(res.Inserted))
	metrics.RowsDuplicate.Add(float64(res.Duplicates))
	metrics.BatchFlushes.Inc()
	return nil
}

// Finalize flushes any remainder shorter than the batch size.
func (b *Batcher) Finalize(ctx context.Context) error {
	return b.Flush(ctx)
}

// Totals returns the running inserted and duplicate counts.
func (b *Batcher) Totals() (inserted, duplicates int64) {
	return b.inserted, b.duplicates
}

// Flushes returns how many bulk writes have been issued.
func (b *Batcher) Flushes() int64 {
	return b.flushes
}

// Pending returns the number of buffered, unflushed records.
func (b *Batcher) Pending() int {
	return len(b.buf)
}
