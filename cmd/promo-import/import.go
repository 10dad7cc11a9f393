package main

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/shoaibmehmood243/lensciaga/internal/domain/promo"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
	maxCodeLen    = 64
	progressEvery = 100_000
)

// stats counts what the readers saw across all files.
type stats struct {
	lines      atomic.Int64
	invalid    atomic.Int64
	duplicates atomic.Int64
	conflicts  atomic.Int64
}

// parseLine parses a "CODE,DISCOUNT[,MAXDISCOUNT]" line. Blank lines and
// lines starting with '#' are skipped without being counted as invalid.
func parseLine(line string) (c promo.Code, ok, skip bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return c, false, true
	}

	fields := strings.Split(line, ",")
	if len(fields) < 2 || len(fields) > 3 {
		return c, false, false
	}

	c.Code = strings.TrimSpace(fields[0])
	if c.Code == "" || len(c.Code) > maxCodeLen || strings.ContainsAny(c.Code, " \t") {
		return c, false, false
	}

	discount, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil || discount < 1 || discount > 100 {
		return c, false, false
	}
	c.Discount = discount

	if len(fields) == 3 {
		if raw := strings.TrimSpace(fields[2]); raw != "" {
			limit, err := decimal.NewFromString(raw)
			if err != nil || !limit.IsPositive() {
				return c, false, false
			}
			c.MaxDiscount = decimal.NewNullDecimal(limit)
		}
	}

	return c, true, false
}

// collect streams every file concurrently and merges the codes. A code seen
// more than once keeps its lowest discount; on a discount tie the tighter
// cap wins.
func collect(ctx context.Context, files []string, st *stats) ([]promo.Code, error) {
	codes := make(chan promo.Code, 1024)

	g, gctx := errgroup.WithContext(ctx)
	readers, rctx := errgroup.WithContext(gctx)
	for i, path := range files {
		readers.Go(func() error {
			return readFile(rctx, i, path, codes, st)
		})
	}
	g.Go(func() error {
		defer close(codes)
		return readers.Wait()
	})

	var merged []promo.Code
	g.Go(func() error {
		merged = merge(codes, st)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return merged, nil
}

// merge drains codes. The bloom filter answers "definitely new" for most
// codes, so the exact index is only consulted on a possible hit.
func merge(codes <-chan promo.Code, st *stats) []promo.Code {
	var (
		filter = bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		index  = make(map[string]int)
		out    []promo.Code
	)
	for c := range codes {
		if filter.TestString(c.Code) {
			if i, ok := index[c.Code]; ok {
				st.duplicates.Add(1)
				if prev := out[i]; prev.Discount != c.Discount || !sameCap(prev.MaxDiscount, c.MaxDiscount) {
					st.conflicts.Add(1)
					out[i] = stricter(prev, c)
				}
				continue
			}
		}
		filter.AddString(c.Code)
		index[c.Code] = len(out)
		out = append(out, c)
	}
	return out
}

func sameCap(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}

func stricter(a, b promo.Code) promo.Code {
	switch {
	case b.Discount < a.Discount:
		return b
	case b.Discount > a.Discount:
		return a
	}
	switch {
	case !b.MaxDiscount.Valid:
		return a
	case !a.MaxDiscount.Valid:
		return b
	case b.MaxDiscount.Decimal.LessThan(a.MaxDiscount.Decimal):
		return b
	}
	return a
}

func readFile(ctx context.Context, idx int, path string, out chan<- promo.Code, st *stats) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if filepath.Ext(path) == ".gz" {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	var lines int64
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines++
		st.lines.Add(1)
		if lines%progressEvery == 0 {
			slog.Info("read progress", slog.Int("file", idx+1), slog.Int64("lines", lines))
		}

		c, ok, skip := parseLine(scanner.Text())
		if skip {
			continue
		}
		if !ok {
			st.invalid.Add(1)
			slog.Debug("invalid line", slog.String("file", path), slog.Int64("line", lines))
			continue
		}

		select {
		case out <- c:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	slog.Info("file complete", slog.Int("file", idx+1), slog.String("path", path), slog.Int64("lines", lines))
	return nil
}

type upserter interface {
	Upsert(ctx context.Context, codes []promo.Code) (int64, error)
}

// write upserts codes in batches and returns the number of rows written.
func write(ctx context.Context, repo upserter, codes []promo.Code, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = len(codes)
	}

	var written int64
	for start := 0; start < len(codes); start += batchSize {
		end := min(start+batchSize, len(codes))
		n, err := repo.Upsert(ctx, codes[start:end])
		written += n
		if err != nil {
			return written, errors.Wrapf(err, "upsert batch at %d", start)
		}
		slog.Info("write progress", slog.Int("written", end), slog.Int("total", len(codes)))
	}
	return written, nil
}
