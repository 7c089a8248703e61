package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// PriceRecord is the Parquet schema for archived daily bars.
type PriceRecord struct {
	Ticker   string  `parquet:"ticker"`
	Date     string  `parquet:"date"` // YYYY-MM-DD
	Open     float64 `parquet:"open"`
	High     float64 `parquet:"high"`
	Low      float64 `parquet:"low"`
	Close    float64 `parquet:"close"`
	AdjClose float64 `parquet:"adj_close"`
	Volume   int64   `parquet:"volume"`
}

// ArchivePrices moves price bars older than cutoff (exclusive, YYYY-MM-DD)
// out of SQLite into Parquet files organized by ticker and year:
//
//	<dir>/<TICKER>/<YYYY>.parquet
//
// Archived rows are merged with any existing file contents, so rerunning
// over the same range is safe. Rows are deleted from SQLite only after
// their Parquet file has been written. Returns the number of rows archived.
func (s *SQLiteStore) ArchivePrices(ctx context.Context, dir, cutoff string, logger *slog.Logger) (int, error) {
	const q = `
		SELECT ticker, date, open, high, low, close, adj_close, volume
		FROM stock_prices
		WHERE date < ?
		ORDER BY ticker, date`
	rows, err := s.db.QueryContext(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	// Group by (ticker, year).
	type key struct {
		ticker string
		year   string
	}
	groups := make(map[key][]PriceRecord)
	total := 0
	for rows.Next() {
		var r PriceRecord
		if err := rows.Scan(&r.Ticker, &r.Date, &r.Open, &r.High, &r.Low, &r.Close, &r.AdjClose, &r.Volume); err != nil {
			return 0, err
		}
		if len(r.Date) < 4 {
			continue
		}
		k := key{ticker: strings.ToUpper(r.Ticker), year: r.Date[:4]}
		groups[k] = append(groups[k], r)
		total++
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}

	archived := 0
	for k, records := range groups {
		path := filepath.Join(dir, k.ticker, k.year+".parquet")

		existing, _ := readParquetFile[PriceRecord](path)
		merged := mergePriceRecords(existing, records)
		if err := writeParquetFile(path, merged); err != nil {
			return archived, fmt.Errorf("writing archive for %s/%s: %w", k.ticker, k.year, err)
		}

		res, err := s.db.ExecContext(ctx,
			`DELETE FROM stock_prices WHERE ticker = ? AND date < ? AND substr(date, 1, 4) = ?`,
			k.ticker, cutoff, k.year)
		if err != nil {
			return archived, fmt.Errorf("pruning archived rows for %s/%s: %w", k.ticker, k.year, err)
		}
		n, _ := res.RowsAffected()
		archived += int(n)
		logger.Info("archived price history",
			"ticker", k.ticker, "year", k.year, "rows", n, "path", path)
	}
	return archived, nil
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	return parquet.ReadFile[T](path)
}

// mergePriceRecords deduplicates records by (ticker, date), preferring new
// records over existing ones. Results are sorted by date.
func mergePriceRecords(existing, incoming []PriceRecord) []PriceRecord {
	type key struct {
		ticker string
		date   string
	}
	seen := make(map[key]PriceRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Ticker, r.Date}] = r
	}
	for _, r := range incoming {
		seen[key{r.Ticker, r.Date}] = r
	}

	merged := make([]PriceRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Ticker != merged[j].Ticker {
			return merged[i].Ticker < merged[j].Ticker
		}
		return merged[i].Date < merged[j].Date
	})
	return merged
}
