package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/shoaibmehmood243/lensciaga/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	var (
		databaseURL string
		batchSize   int
		dryRun      bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&batchSize, "batch-size", 1000, "codes per upsert batch")
	flag.BoolVar(&dryRun, "dry-run", false, "parse and merge files without writing to the database")
	flag.Usage = func() {
		_, _ = os.Stderr.WriteString("usage: promo-import [flags] FILE...\n\nFILE holds CODE,DISCOUNT[,MAXDISCOUNT] lines, optionally gzip-compressed (.gz).\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, files, databaseURL, batchSize, dryRun); err != nil {
		slog.Error("promo import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("promo import completed successfully")
}

func run(ctx context.Context, files []string, databaseURL string, batchSize int, dryRun bool) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("reading promo files", slog.Int("files", len(files)))

	var st stats
	codes, err := collect(ctx, files, &st)
	if err != nil {
		return errors.Wrap(err, "collect codes")
	}

	slog.Info("codes collected",
		slog.Int("unique", len(codes)),
		slog.Int64("lines", st.lines.Load()),
		slog.Int64("invalid", st.invalid.Load()),
		slog.Int64("duplicates", st.duplicates.Load()),
		slog.Int64("conflicts", st.conflicts.Load()),
	)

	if len(codes) == 0 || dryRun {
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	written, err := write(ctx, postgres.NewPromoRepository(pool), codes, batchSize)
	if err != nil {
		return errors.Wrap(err, "write codes")
	}

	slog.Info("codes written", slog.Int64("rows", written))
	return nil
}
