// Package store persists canonical market-data records to SQLite and
// archives aged price history to Parquet files on disk.
package store

import (
	"context"

	"stocksync/internal/domain"
)

// Result reports the outcome of a bulk upsert.
type Result struct {
	// Written is the number of rows inserted or updated.
	Written int
	// Deduped is the number of in-batch duplicates collapsed before the
	// write. When two records in one batch share a natural key, the later
	// one wins.
	Deduped int
}

// PriceStore persists daily OHLCV bars keyed by (ticker, date).
type PriceStore interface {
	UpsertPrices(ctx context.Context, bars []domain.PriceBar) (Result, error)
}

// FundamentalsStore persists financial metrics and analyst estimates.
type FundamentalsStore interface {
	UpsertMetrics(ctx context.Context, metrics []domain.Metric) (Result, error)
	UpsertEstimates(ctx context.Context, estimates []domain.Estimate) (Result, error)
}

// AnalystStore persists analyst rating actions keyed by
// (ticker, analyst, rating_date).
type AnalystStore interface {
	UpsertRatings(ctx context.Context, ratings []domain.Rating) (Result, error)
}

// CompanyStore persists company profiles and DCF valuations.
type CompanyStore interface {
	UpsertProfiles(ctx context.Context, profiles []domain.Profile) (Result, error)
	UpsertValuations(ctx context.Context, valuations []domain.Valuation) (Result, error)
}

// TickerLister reports the distinct tickers known to the store.
type TickerLister interface {
	ListTickers(ctx context.Context) ([]string, error)
}
