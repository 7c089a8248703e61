package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"stocksync/internal/domain"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func countRows(t *testing.T, s *SQLiteStore, table string) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	return n
}

func TestUpsertPricesIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	bars := []domain.PriceBar{
		{Ticker: "AAPL", Date: "2024-01-02", Open: 185, High: 186.5, Low: 184, Close: 185.5, AdjClose: 185.1, Volume: 50_000_000},
		{Ticker: "AAPL", Date: "2024-01-03", Open: 185.5, High: 187, Low: 185, Close: 186.2, AdjClose: 186.0, Volume: 48_000_000},
	}

	res, err := s.UpsertPrices(ctx, bars)
	if err != nil {
		t.Fatalf("UpsertPrices: %v", err)
	}
	if res.Written != 2 || res.Deduped != 0 {
		t.Errorf("first upsert: %+v, want Written=2 Deduped=0", res)
	}

	// Replaying the exact same batch must not grow the table.
	if _, err := s.UpsertPrices(ctx, bars); err != nil {
		t.Fatalf("second UpsertPrices: %v", err)
	}
	if n := countRows(t, s, "stock_prices"); n != 2 {
		t.Errorf("rows after replay = %d, want 2", n)
	}
}

func TestUpsertPricesUpdatesInPlace(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := []domain.PriceBar{{Ticker: "AAPL", Date: "2024-01-02", Close: 185.5}}
	if _, err := s.UpsertPrices(ctx, first); err != nil {
		t.Fatalf("UpsertPrices: %v", err)
	}

	second := []domain.PriceBar{{Ticker: "AAPL", Date: "2024-01-02", Close: 190.0, Volume: 1000}}
	if _, err := s.UpsertPrices(ctx, second); err != nil {
		t.Fatalf("UpsertPrices: %v", err)
	}

	var closePx float64
	var volume int64
	err := s.db.QueryRow(`SELECT close, volume FROM stock_prices WHERE ticker = 'AAPL' AND date = '2024-01-02'`).Scan(&closePx, &volume)
	if err != nil {
		t.Fatalf("reading row back: %v", err)
	}
	if closePx != 190.0 || volume != 1000 {
		t.Errorf("row = close %v volume %v, want updated values", closePx, volume)
	}
	if n := countRows(t, s, "stock_prices"); n != 1 {
		t.Errorf("rows = %d, want 1", n)
	}
}

func TestUpsertPricesInBatchDedupe(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Two records with the same natural key in one batch: the later wins.
	bars := []domain.PriceBar{
		{Ticker: "AAPL", Date: "2024-01-02", Close: 100},
		{Ticker: "AAPL", Date: "2024-01-02", Close: 200},
	}
	res, err := s.UpsertPrices(ctx, bars)
	if err != nil {
		t.Fatalf("UpsertPrices: %v", err)
	}
	if res.Deduped != 1 {
		t.Errorf("Deduped = %d, want 1", res.Deduped)
	}

	var closePx float64
	if err := s.db.QueryRow(`SELECT close FROM stock_prices WHERE ticker = 'AAPL'`).Scan(&closePx); err != nil {
		t.Fatalf("reading row back: %v", err)
	}
	if closePx != 200 {
		t.Errorf("close = %v, want 200 (last record wins)", closePx)
	}
}

func TestUpsertPricesLargeBatchPaged(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// More rows than one page to exercise the paging path.
	bars := make([]domain.PriceBar, 0, pageSize+50)
	for i := 0; i < pageSize+50; i++ {
		bars = append(bars, domain.PriceBar{
			Ticker: "AAPL",
			Date:   dateFor(i),
			Close:  float64(i),
		})
	}
	res, err := s.UpsertPrices(ctx, bars)
	if err != nil {
		t.Fatalf("UpsertPrices: %v", err)
	}
	if res.Written != pageSize+50 {
		t.Errorf("Written = %d, want %d", res.Written, pageSize+50)
	}
	if n := countRows(t, s, "stock_prices"); n != pageSize+50 {
		t.Errorf("rows = %d, want %d", n, pageSize+50)
	}
}

func dateFor(i int) string {
	return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i).Format("2006-01-02")
}

func TestUpsertMetricsCompositeKey(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	metrics := []domain.Metric{
		{Ticker: "AAPL", MetricName: "pe_ratio", PeriodEndDate: "2024-09-30", Value: 32.5, Unit: "x", Period: "Q3", Source: "fmp"},
		{Ticker: "AAPL", MetricName: "roe", PeriodEndDate: "2024-09-30", Value: 1.6, Unit: "ratio", Period: "Q3", Source: "fmp"},
		{Ticker: "AAPL", MetricName: "pe_ratio", PeriodEndDate: "2024-06-30", Value: 30.1, Unit: "x", Period: "Q2", Source: "fmp"},
	}
	if _, err := s.UpsertMetrics(ctx, metrics); err != nil {
		t.Fatalf("UpsertMetrics: %v", err)
	}
	if n := countRows(t, s, "financial_metrics"); n != 3 {
		t.Errorf("rows = %d, want 3 (distinct composite keys)", n)
	}

	// Same key, new value: row updated, count unchanged.
	update := []domain.Metric{{Ticker: "AAPL", MetricName: "pe_ratio", PeriodEndDate: "2024-09-30", Value: 33.0, Unit: "x", Period: "Q3", Source: "fmp"}}
	if _, err := s.UpsertMetrics(ctx, update); err != nil {
		t.Fatalf("UpsertMetrics update: %v", err)
	}
	if n := countRows(t, s, "financial_metrics"); n != 3 {
		t.Errorf("rows after update = %d, want 3", n)
	}
	var v float64
	if err := s.db.QueryRow(`SELECT value FROM financial_metrics WHERE metric_name = 'pe_ratio' AND period_end_date = '2024-09-30'`).Scan(&v); err != nil {
		t.Fatalf("reading metric back: %v", err)
	}
	if v != 33.0 {
		t.Errorf("value = %v, want 33.0", v)
	}
}

func TestUpsertRatingsAndEstimates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ratings := []domain.Rating{
		{Ticker: "AAPL", Analyst: "Bank of America", RatingDate: "2024-11-15", Rating: "Buy", PriceTarget: 200},
		{Ticker: "AAPL", Analyst: "Morgan Stanley", RatingDate: "2024-11-15", Rating: "Overweight", PriceTarget: 210},
	}
	if _, err := s.UpsertRatings(ctx, ratings); err != nil {
		t.Fatalf("UpsertRatings: %v", err)
	}
	if n := countRows(t, s, "analyst_ratings"); n != 2 {
		t.Errorf("rating rows = %d, want 2 (keyed by analyst)", n)
	}

	estimates := []domain.Estimate{
		{Ticker: "AAPL", Date: "2025-06-30", RevenueAvg: 9e10, EPSAvg: 2.1, AnalystsRevenue: 18, AnalystsEPS: 21, Source: "fmp"},
	}
	if _, err := s.UpsertEstimates(ctx, estimates); err != nil {
		t.Fatalf("UpsertEstimates: %v", err)
	}
	var analystsEPS int64
	if err := s.db.QueryRow(`SELECT analysts_eps FROM analyst_estimates WHERE ticker = 'AAPL'`).Scan(&analystsEPS); err != nil {
		t.Fatalf("reading estimate back: %v", err)
	}
	if analystsEPS != 21 {
		t.Errorf("analysts_eps = %d, want 21", analystsEPS)
	}
}

func TestUpsertProfilesAndValuations(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	profiles := []domain.Profile{
		{Ticker: "AAPL", Name: "Apple Inc.", Exchange: "NASDAQ", Sector: "Technology", MarketCap: 2.9e12, ActivelyTrading: true},
	}
	if _, err := s.UpsertProfiles(ctx, profiles); err != nil {
		t.Fatalf("UpsertProfiles: %v", err)
	}

	// One profile row per ticker, replaced on refresh.
	profiles[0].Price = 185.5
	if _, err := s.UpsertProfiles(ctx, profiles); err != nil {
		t.Fatalf("UpsertProfiles refresh: %v", err)
	}
	if n := countRows(t, s, "company_profiles"); n != 1 {
		t.Errorf("profile rows = %d, want 1", n)
	}

	valuations := []domain.Valuation{{Ticker: "AAPL", Date: "2024-11-20", DCF: 172.3, StockPrice: 185.5}}
	if _, err := s.UpsertValuations(ctx, valuations); err != nil {
		t.Fatalf("UpsertValuations: %v", err)
	}
	if n := countRows(t, s, "dcf_valuations"); n != 1 {
		t.Errorf("valuation rows = %d, want 1", n)
	}
}

func TestListTickers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertPrices(ctx, []domain.PriceBar{
		{Ticker: "MSFT", Date: "2024-01-02", Close: 400},
		{Ticker: "AAPL", Date: "2024-01-02", Close: 185},
	}); err != nil {
		t.Fatalf("UpsertPrices: %v", err)
	}
	if _, err := s.UpsertProfiles(ctx, []domain.Profile{
		{Ticker: "GOOG", Name: "Alphabet Inc."},
		{Ticker: "AAPL", Name: "Apple Inc."},
	}); err != nil {
		t.Fatalf("UpsertProfiles: %v", err)
	}

	tickers, err := s.ListTickers(ctx)
	if err != nil {
		t.Fatalf("ListTickers: %v", err)
	}
	want := []string{"AAPL", "GOOG", "MSFT"}
	if len(tickers) != len(want) {
		t.Fatalf("tickers = %v, want %v", tickers, want)
	}
	for i := range want {
		if tickers[i] != want[i] {
			t.Errorf("tickers[%d] = %q, want %q", i, tickers[i], want[i])
		}
	}
}

func TestUpsertEmptyBatch(t *testing.T) {
	s := openTestStore(t)
	res, err := s.UpsertPrices(context.Background(), nil)
	if err != nil {
		t.Fatalf("empty batch should be a no-op, got %v", err)
	}
	if res.Written != 0 || res.Deduped != 0 {
		t.Errorf("empty batch result = %+v", res)
	}
}
