package store

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"stocksync/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchivePricesMovesOldRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	bars := []domain.PriceBar{
		{Ticker: "AAPL", Date: "2019-06-03", Close: 44.3},
		{Ticker: "AAPL", Date: "2019-06-04", Close: 44.9},
		{Ticker: "AAPL", Date: "2024-01-02", Close: 185.5},
		{Ticker: "MSFT", Date: "2018-12-28", Close: 100.4},
	}
	if _, err := s.UpsertPrices(ctx, bars); err != nil {
		t.Fatalf("UpsertPrices: %v", err)
	}

	archived, err := s.ArchivePrices(ctx, dir, "2020-01-01", discardLogger())
	if err != nil {
		t.Fatalf("ArchivePrices: %v", err)
	}
	if archived != 3 {
		t.Errorf("archived = %d, want 3", archived)
	}

	// Only the recent row survives in SQLite.
	if n := countRows(t, s, "stock_prices"); n != 1 {
		t.Errorf("rows remaining = %d, want 1", n)
	}

	// Archived rows land in per-ticker, per-year Parquet files.
	records, err := readParquetFile[PriceRecord](filepath.Join(dir, "AAPL", "2019.parquet"))
	if err != nil {
		t.Fatalf("reading AAPL archive: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("AAPL 2019 records = %d, want 2", len(records))
	}
	if records[0].Date != "2019-06-03" || records[1].Date != "2019-06-04" {
		t.Errorf("records not sorted by date: %v, %v", records[0].Date, records[1].Date)
	}

	if _, err := os.Stat(filepath.Join(dir, "MSFT", "2018.parquet")); err != nil {
		t.Errorf("MSFT archive file missing: %v", err)
	}
}

func TestArchivePricesRerunMerges(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	if _, err := s.UpsertPrices(ctx, []domain.PriceBar{
		{Ticker: "AAPL", Date: "2019-06-03", Close: 44.3},
	}); err != nil {
		t.Fatalf("UpsertPrices: %v", err)
	}
	if _, err := s.ArchivePrices(ctx, dir, "2020-01-01", discardLogger()); err != nil {
		t.Fatalf("first ArchivePrices: %v", err)
	}

	// A later backfill writes an overlapping bar plus a new one. The rerun
	// must merge into the existing file without duplicating the overlap.
	if _, err := s.UpsertPrices(ctx, []domain.PriceBar{
		{Ticker: "AAPL", Date: "2019-06-03", Close: 44.5},
		{Ticker: "AAPL", Date: "2019-06-05", Close: 45.1},
	}); err != nil {
		t.Fatalf("UpsertPrices backfill: %v", err)
	}
	if _, err := s.ArchivePrices(ctx, dir, "2020-01-01", discardLogger()); err != nil {
		t.Fatalf("second ArchivePrices: %v", err)
	}

	records, err := readParquetFile[PriceRecord](filepath.Join(dir, "AAPL", "2019.parquet"))
	if err != nil {
		t.Fatalf("reading archive: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2 (merged, not duplicated)", len(records))
	}
	if records[0].Close != 44.5 {
		t.Errorf("overlapping bar close = %v, want 44.5 (newer wins)", records[0].Close)
	}
}

func TestArchivePricesNothingToArchive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertPrices(ctx, []domain.PriceBar{
		{Ticker: "AAPL", Date: "2024-01-02", Close: 185.5},
	}); err != nil {
		t.Fatalf("UpsertPrices: %v", err)
	}

	archived, err := s.ArchivePrices(ctx, t.TempDir(), "2020-01-01", discardLogger())
	if err != nil {
		t.Fatalf("ArchivePrices: %v", err)
	}
	if archived != 0 {
		t.Errorf("archived = %d, want 0", archived)
	}
	if n := countRows(t, s, "stock_prices"); n != 1 {
		t.Errorf("rows = %d, want 1 (untouched)", n)
	}
}

func TestMergePriceRecords(t *testing.T) {
	existing := []PriceRecord{
		{Ticker: "AAPL", Date: "2019-06-03", Close: 44.3},
		{Ticker: "AAPL", Date: "2019-06-04", Close: 44.9},
	}
	incoming := []PriceRecord{
		{Ticker: "AAPL", Date: "2019-06-04", Close: 45.0},
		{Ticker: "AAPL", Date: "2019-06-05", Close: 45.1},
	}
	merged := mergePriceRecords(existing, incoming)
	if len(merged) != 3 {
		t.Fatalf("merged = %d records, want 3", len(merged))
	}
	if merged[1].Close != 45.0 {
		t.Errorf("overlap close = %v, want incoming 45.0", merged[1].Close)
	}
}
