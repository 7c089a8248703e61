package ingest

import (
	"context"
	"time"

	"stocksync/internal/domain"
	"stocksync/internal/store"
	"stocksync/internal/transform"
)

// recordBatch carries the typed output of one transform call.
type recordBatch[T any] struct {
	records []T
	dropped int
}

func (b recordBatch[T]) Len() int     { return len(b.records) }
func (b recordBatch[T]) Dropped() int { return b.dropped }

// unitsFor expands a ticker list into per-ticker units for one domain.
func unitsFor(tickers []string, d domain.Domain, from, to time.Time) []domain.Unit {
	units := make([]domain.Unit, 0, len(tickers))
	for _, t := range tickers {
		units = append(units, domain.Unit{Ticker: t, Domain: d, From: from, To: to})
	}
	return units
}

// PricesTask syncs daily OHLCV bars over [from, to].
func PricesTask(f Fetcher, s store.PriceStore, tickers []string, from, to time.Time, concurrency int) Task {
	return Task{
		Name:        string(domain.DomainPrices),
		Units:       unitsFor(tickers, domain.DomainPrices, from, to),
		Concurrency: concurrency,
		Fetch:       f.Fetch,
		Transform: func(u domain.Unit, body []byte) (Batch, error) {
			bars, dropped, err := transform.Prices(u.Ticker, body)
			return recordBatch[domain.PriceBar]{bars, dropped}, err
		},
		Store: func(ctx context.Context, b Batch) (store.Result, error) {
			return s.UpsertPrices(ctx, b.(recordBatch[domain.PriceBar]).records)
		},
	}
}

// FundamentalsTask syncs per-period financial metrics.
func FundamentalsTask(f Fetcher, s store.FundamentalsStore, tickers []string, concurrency int) Task {
	return Task{
		Name:        string(domain.DomainFundamentals),
		Units:       unitsFor(tickers, domain.DomainFundamentals, time.Time{}, time.Time{}),
		Concurrency: concurrency,
		Fetch:       f.Fetch,
		Transform: func(u domain.Unit, body []byte) (Batch, error) {
			metrics, dropped, err := transform.Metrics(u.Ticker, body)
			return recordBatch[domain.Metric]{metrics, dropped}, err
		},
		Store: func(ctx context.Context, b Batch) (store.Result, error) {
			return s.UpsertMetrics(ctx, b.(recordBatch[domain.Metric]).records)
		},
	}
}

// RatingsTask syncs analyst rating actions.
func RatingsTask(f Fetcher, s store.AnalystStore, tickers []string, concurrency int) Task {
	return Task{
		Name:        string(domain.DomainRatings),
		Units:       unitsFor(tickers, domain.DomainRatings, time.Time{}, time.Time{}),
		Concurrency: concurrency,
		Fetch:       f.Fetch,
		Transform: func(u domain.Unit, body []byte) (Batch, error) {
			ratings, dropped, err := transform.Ratings(u.Ticker, body)
			return recordBatch[domain.Rating]{ratings, dropped}, err
		},
		Store: func(ctx context.Context, b Batch) (store.Result, error) {
			return s.UpsertRatings(ctx, b.(recordBatch[domain.Rating]).records)
		},
	}
}

// EstimatesTask syncs forward analyst estimates.
func EstimatesTask(f Fetcher, s store.FundamentalsStore, tickers []string, concurrency int) Task {
	return Task{
		Name:        string(domain.DomainEstimates),
		Units:       unitsFor(tickers, domain.DomainEstimates, time.Time{}, time.Time{}),
		Concurrency: concurrency,
		Fetch:       f.Fetch,
		Transform: func(u domain.Unit, body []byte) (Batch, error) {
			estimates, dropped, err := transform.Estimates(u.Ticker, body)
			return recordBatch[domain.Estimate]{estimates, dropped}, err
		},
		Store: func(ctx context.Context, b Batch) (store.Result, error) {
			return s.UpsertEstimates(ctx, b.(recordBatch[domain.Estimate]).records)
		},
	}
}

// ProfilesTask refreshes company profiles.
func ProfilesTask(f Fetcher, s store.CompanyStore, tickers []string, concurrency int) Task {
	return Task{
		Name:        string(domain.DomainProfiles),
		Units:       unitsFor(tickers, domain.DomainProfiles, time.Time{}, time.Time{}),
		Concurrency: concurrency,
		Fetch:       f.Fetch,
		Transform: func(u domain.Unit, body []byte) (Batch, error) {
			profiles, dropped, err := transform.Profiles(u.Ticker, body)
			return recordBatch[domain.Profile]{profiles, dropped}, err
		},
		Store: func(ctx context.Context, b Batch) (store.Result, error) {
			return s.UpsertProfiles(ctx, b.(recordBatch[domain.Profile]).records)
		},
	}
}

// ValuationTask syncs DCF valuations.
func ValuationTask(f Fetcher, s store.CompanyStore, tickers []string, concurrency int) Task {
	return Task{
		Name:        string(domain.DomainValuation),
		Units:       unitsFor(tickers, domain.DomainValuation, time.Time{}, time.Time{}),
		Concurrency: concurrency,
		Fetch:       f.Fetch,
		Transform: func(u domain.Unit, body []byte) (Batch, error) {
			valuations, dropped, err := transform.Valuations(u.Ticker, body)
			return recordBatch[domain.Valuation]{valuations, dropped}, err
		},
		Store: func(ctx context.Context, b Batch) (store.Result, error) {
			return s.UpsertValuations(ctx, b.(recordBatch[domain.Valuation]).records)
		},
	}
}
