package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/plumescan/emissions/internal/emissions"
	"github.com/plumescan/emissions/internal/store"
)

// fakeWriter records batches and simulates the store's duplicate
// accounting: reading IDs present in existing are reported as duplicates.
type fakeWriter struct {
	batches  [][]emissions.EmissionRecord
	existing map[string]bool
	err      error
}

func (w *fakeWriter) BulkInsert(_ context.Context, recs []emissions.EmissionRecord) (store.BulkResult, error) {
	if w.err != nil {
		return store.BulkResult{}, w.err
	}

	batch := make([]emissions.EmissionRecord, len(recs))
	copy(batch, recs)
	w.batches = append(w.batches, batch)

	var res store.BulkResult
	for _, r := range recs {
		if w.existing[r.ReadingID] {
			res.Duplicates++
		} else {
			res.Inserted++
		}
	}
	return res, nil
}

func testRecord(i int) *emissions.EmissionRecord {
	return &emissions.EmissionRecord{
		ReadingID:   fmt.Sprintf("r-%03d", i),
		SiteID:      "s1",
		EquipmentID: "e1",
		Confidence:  0.9,
	}
}

func TestBatcher_FlushAtBatchSize(t *testing.T) {
	w := &fakeWriter{}
	b := NewBatcher(w, 2)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := b.Add(ctx, testRecord(i)); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	// Two full batches flushed, one record still pending.
	if len(w.batches) != 2 {
		t.Fatalf("flushed batches = %d, want 2", len(w.batches))
	}
	for i, batch := range w.batches {
		if len(batch) != 2 {
			t.Errorf("batch %d size = %d, want 2", i, len(batch))
		}
	}
	if b.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", b.Pending())
	}

	if err := b.Finalize(ctx); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if len(w.batches) != 3 {
		t.Fatalf("flushed batches after finalize = %d, want 3", len(w.batches))
	}
	if len(w.batches[2]) != 1 {
		t.Errorf("remainder batch size = %d, want 1", len(w.batches[2]))
	}

	inserted, duplicates := b.Totals()
	if inserted != 5 || duplicates != 0 {
		t.Errorf("Totals() = (%d, %d), want (5, 0)", inserted, duplicates)
	}
}

func TestBatcher_FinalizeEmptyIsNoop(t *testing.T) {
	w := &fakeWriter{}
	b := NewBatcher(w, 10)

	if err := b.Finalize(context.Background()); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if len(w.batches) != 0 {
		t.Errorf("flushed batches = %d, want 0", len(w.batches))
	}
}

func TestBatcher_ReRunCountsAllDuplicates(t *testing.T) {
	// Every natural key already seeded: the second run must insert
	// nothing and count every row as a duplicate.
	w := &fakeWriter{existing: map[string]bool{}}
	for i := 0; i < 7; i++ {
		w.existing[fmt.Sprintf("r-%03d", i)] = true
	}

	b := NewBatcher(w, 3)
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		if err := b.Add(ctx, testRecord(i)); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	if err := b.Finalize(ctx); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	inserted, duplicates := b.Totals()
	if inserted != 0 {
		t.Errorf("inserted = %d, want 0", inserted)
	}
	if duplicates != 7 {
		t.Errorf("duplicates = %d, want 7", duplicates)
	}
}

func TestBatcher_CounterInvariant(t *testing.T) {
	// inserted + duplicates must equal rows accepted, with duplicates
	// scattered through the input.
	w := &fakeWriter{existing: map[string]bool{"r-001": true, "r-004": true}}
	b := NewBatcher(w, 2)
	ctx := context.Background()

	const total = 6
	for i := 0; i < total; i++ {
		if err := b.Add(ctx, testRecord(i)); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	if err := b.Finalize(ctx); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	inserted, duplicates := b.Totals()
	if inserted+duplicates != total {
		t.Errorf("inserted(%d) + duplicates(%d) != %d", inserted, duplicates, total)
	}
	if duplicates != 2 {
		t.Errorf("duplicates = %d, want 2", duplicates)
	}
}

func TestBatcher_FatalWriteErrorPropagates(t *testing.T) {
	writeErr := errors.New("connection refused")
	w := &fakeWriter{err: writeErr}
	b := NewBatcher(w, 2)
	ctx := context.Background()

	if err := b.Add(ctx, testRecord(0)); err != nil {
		t.Fatalf("Add() before flush error = %v", err)
	}
	err := b.Add(ctx, testRecord(1))
	if err == nil {
		t.Fatal("Add() expected error on flush")
	}
	if !errors.Is(err, writeErr) {
		t.Errorf("error %v does not wrap the write error", err)
	}
	if !strings.Contains(err.Error(), "flush batch") {
		t.Errorf("error %q lacks flush context", err)
	}
}

func TestNopWriter_ReportsAllInserted(t *testing.T) {
	recs := []emissions.EmissionRecord{*testRecord(0), *testRecord(1)}
	res, err := NopWriter{}.BulkInsert(context.Background(), recs)
	if err != nil {
		t.Fatalf("BulkInsert() error = %v", err)
	}
	if res.Inserted != 2 || res.Duplicates != 0 {
		t.Errorf("result = %+v, want inserted 2", res)
	}
}
