package ingest

// pipeline.go drives the streaming ingestion run: decompression, CSV row
// parsing, normalization, and batched writes, without ever holding the
// full input in memory.
//
// The run is a two-goroutine producer/consumer. The producer reads rows
// off the CSV stream into a bounded channel; the consumer normalizes and
// feeds the batcher, whose synchronous flush stalls channel drain. Once
// the channel fills, the producer blocks: row production is suspended
// exactly while a write is outstanding, which keeps resident memory at
// one batch plus the channel. There is never more than one write in
// flight.
//
// Failure taxonomy: a malformed row (bad CSV framing or a normalization
// failure) is counted and skipped; an unreadable source, a decompressor
// error, or a non-duplicate write error aborts the run and surfaces as
// the single terminal error.

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/plumescan/emissions/internal/emissions"
	"github.com/plumescan/emissions/internal/metrics"
)

// DefaultRowBuffer is the row channel capacity between the CSV producer
// and the batching consumer.
const DefaultRowBuffer = 512

// DefaultProgressEvery is how many rows pass between progress log lines.
const DefaultProgressEvery = 25000

// Options configures one ingestion run.
type Options struct {
	// Path is the input file; .gz and .zst inputs are decompressed on
	// the fly.
	Path string

	// BatchSize overrides DefaultBatchSize when positive.
	BatchSize int

	// RowBuffer overrides DefaultRowBuffer when positive.
	RowBuffer int

	// ProgressEvery overrides DefaultProgressEvery when positive.
	ProgressEvery int
}

// Summary reports a completed (or aborted) run.
type Summary struct {
	RowsRead   int64
	Inserted   int64
	Duplicates int64
	Skipped    int64
	Elapsed    time.Duration
}

// Pipeline ingests one input file into a BulkWriter.
type Pipeline struct {
	opts    Options
	writer  BulkWriter
	log     *slog.Logger
	skipped atomic.Int64
}

// NewPipeline creates a pipeline writing through w. log may be nil, in
// which case the default logger is used.
func NewPipeline(opts Options, w BulkWriter, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if opts.RowBuffer <= 0 {
		opts.RowBuffer = DefaultRowBuffer
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = DefaultProgressEvery
	}
	return &Pipeline{opts: opts, writer: w, log: log}
}

// Run executes the ingestion and returns its summary. The summary is
// returned even on error so the caller can report counts up to the
// failure point.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	summary := &Summary{}

	in, err := OpenInput(p.opts.Path)
	if err != nil {
		return summary, err
	}
	defer in.Close()

	reader := csv.NewReader(in.Reader)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	colIdx, err := readHeader(reader)
	if err != nil {
		return summary, err
	}

	batcher := NewBatcher(p.writer, p.opts.BatchSize)
	rows := make(chan []string, p.opts.RowBuffer)

	var rowsRead atomic.Int64

	g, ctx := errgroup.WithContext(ctx)

	// Producer: stream rows off the decompressed input. CSV framing
	// errors are row-level and skippable; anything else comes from the
	// source or decompressor and is terminal.
	g.Go(func() error {
		defer close(rows)
		for {
			row, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				var parseErr *csv.ParseError
				if errors.As(err, &parseErr) {
					rowsRead.Add(1)
					p.skipped.Add(1)
					p.log.Debug("skipping malformed row", "line", parseErr.Line, "error", parseErr.Err)
					continue
				}
				return fmt.Errorf("read input: %w", err)
			}

			rowsRead.Add(1)
			out := make([]string, len(row))
			copy(out, row)

			select {
			case rows <- out:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	// Consumer: normalize and batch. The batcher's synchronous flush is
	// what suspends the producer via the filled channel.
	g.Go(func() error {
		fields := make(map[string]string, len(colIdx))
		var seen int64

		for row := range rows {
			clear(fields)
			for col, idx := range colIdx {
				if idx < len(row) {
					fields[col] = row[idx]
				}
			}

			rec, err := emissions.NormalizeRow(fields)
			if err != nil {
				p.skipped.Add(1)
				p.log.Debug("skipping row", "error", err)
				continue
			}

			if err := batcher.Add(ctx, rec); err != nil {
				return err
			}

			seen++
			if seen%int64(p.opts.ProgressEvery) == 0 {
				p.logProgress(batcher, in.Counter, rowsRead.Load(), start)
			}
		}
		return batcher.Finalize(ctx)
	})

	runErr := g.Wait()

	summary.RowsRead = rowsRead.Load()
	summary.Inserted, summary.Duplicates = batcher.Totals()
	summary.Skipped = p.skipped.Load()
	summary.Elapsed = time.Since(start)

	metrics.RowsRead.Add(float64(summary.RowsRead))
	metrics.RowsSkipped.Add(float64(summary.Skipped))

	if runErr != nil {
		return summary, fmt.Errorf("ingestion aborted: %w", runErr)
	}
	return summary, nil
}

// logProgress emits a periodic progress line; purely observational.
func (p *Pipeline) logProgress(b *Batcher, counter *CountingReader, rowsRead int64, start time.Time) {
	inserted, duplicates := b.Totals()
	elapsed := time.Since(start).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(rowsRead) / elapsed
	}
	p.log.Info("ingestion progress",
		"rows_read", rowsRead,
		"inserted", inserted,
		"duplicates", duplicates,
		"skipped", p.skipped.Load(),
		"progress_pct", counter.Progress(),
		"rows_per_sec", int64(rate),
	)
}

// readHeader consumes the header row and maps canonical column names to
// positions. A file whose header lacks a required column cannot be
// ingested at all.
func readHeader(r *csv.Reader) (map[string]int, error) {
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		col := emissions.CanonicalColumn(name)
		if col == "" {
			continue
		}
		if _, dup := colIdx[col]; !dup {
			colIdx[col] = i
		}
	}

	for _, col := range emissions.RequiredColumns {
		if _, ok := colIdx[col]; !ok {
			return nil, fmt.Errorf("input header missing required column %q", col)
		}
	}
	return colIdx, nil
}
