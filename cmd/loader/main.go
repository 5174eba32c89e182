// Command loader ingests a CSV emissions dump into Postgres. The input
// may be plain, gzip, or zstd compressed; re-running the same file is
// safe because already-seen readings count as duplicates rather than
// inserting twice.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/plumescan/emissions/internal/config"
	"github.com/plumescan/emissions/internal/ingest"
	"github.com/plumescan/emissions/internal/logging"
	"github.com/plumescan/emissions/internal/store"
)

var errMissingDatabaseURL = errors.New("DATABASE_URL is required unless -dry-run is set")

func main() {
	input := flag.String("input", "", "path to the CSV input file (.gz and .zst accepted)")
	batchSize := flag.Int("batch-size", 0, "records per bulk write (default from INGEST_BATCH_SIZE)")
	table := flag.String("table", "", "target table (default from INGEST_TABLE)")
	dryRun := flag.Bool("dry-run", false, "parse and count without writing to the database")
	flag.Parse()

	if err := godotenv.Overload(); err == nil {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if *input == "" {
		slog.Error("-input is required")
		flag.Usage()
		os.Exit(2)
	}
	if *batchSize <= 0 {
		*batchSize = cfg.Ingest.BatchSize
	}
	if *table == "" {
		*table = cfg.Ingest.Table
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	runLog := logging.WithFields(ctx,
		"run_id", runID,
		"input", *input,
		"table", *table,
		"batch_size", *batchSize,
		"dry_run", *dryRun,
	)
	runLog.Info("ingestion starting")

	writer, cleanup, err := openWriter(ctx, cfg, *table, *dryRun)
	if err != nil {
		runLog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	pipeline := ingest.NewPipeline(ingest.Options{
		Path:          *input,
		BatchSize:     *batchSize,
		RowBuffer:     cfg.Ingest.RowBuffer,
		ProgressEvery: cfg.Ingest.ProgressEvery,
	}, writer, runLog)

	summary, err := pipeline.Run(ctx)

	runLog.Info("ingestion finished",
		"rows_read", summary.RowsRead,
		"inserted", summary.Inserted,
		"duplicates", summary.Duplicates,
		"skipped", summary.Skipped,
		"elapsed_seconds", summary.Elapsed.Seconds(),
	)

	if err != nil {
		runLog.Error("ingestion failed", "error", err)
		os.Exit(1)
	}
}

// openWriter returns the bulk writer for the run. Dry runs never touch
// the database; otherwise the pool is opened and the schema ensured.
func openWriter(ctx context.Context, cfg *config.Config, table string, dryRun bool) (ingest.BulkWriter, func(), error) {
	if dryRun {
		return ingest.NopWriter{}, func() {}, nil
	}

	if cfg.Database.URL == "" {
		return nil, nil, errMissingDatabaseURL
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, err
	}

	st, err := store.New(pool, table)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := st.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	return st, pool.Close, nil
}
