package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"stocksync/internal/domain"
	"stocksync/internal/util"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ PriceStore = (*SQLiteStore)(nil)
var _ FundamentalsStore = (*SQLiteStore)(nil)
var _ AnalystStore = (*SQLiteStore)(nil)
var _ CompanyStore = (*SQLiteStore)(nil)
var _ TickerLister = (*SQLiteStore)(nil)

// pageSize caps the number of rows written per INSERT statement. SQLite
// limits bound parameters per statement, so large batches are paged.
const pageSize = 500

const schema = `
CREATE TABLE IF NOT EXISTS stock_prices (
	ticker     TEXT NOT NULL,
	date       TEXT NOT NULL,
	open       REAL,
	high       REAL,
	low        REAL,
	close      REAL,
	adj_close  REAL,
	volume     INTEGER,
	PRIMARY KEY (ticker, date)
);

CREATE TABLE IF NOT EXISTS financial_metrics (
	ticker          TEXT NOT NULL,
	metric_name     TEXT NOT NULL,
	period_end_date TEXT NOT NULL,
	value           REAL,
	unit            TEXT,
	period          TEXT,
	source          TEXT,
	PRIMARY KEY (ticker, metric_name, period_end_date)
);

CREATE TABLE IF NOT EXISTS analyst_ratings (
	ticker          TEXT NOT NULL,
	analyst         TEXT NOT NULL,
	rating_date     TEXT NOT NULL,
	rating          TEXT,
	price_target    REAL,
	action          TEXT,
	previous_rating TEXT,
	PRIMARY KEY (ticker, analyst, rating_date)
);

CREATE TABLE IF NOT EXISTS analyst_estimates (
	ticker           TEXT NOT NULL,
	date             TEXT NOT NULL,
	revenue_avg      REAL,
	revenue_low      REAL,
	revenue_high     REAL,
	eps_avg          REAL,
	eps_low          REAL,
	eps_high         REAL,
	analysts_revenue INTEGER,
	analysts_eps     INTEGER,
	source           TEXT,
	PRIMARY KEY (ticker, date)
);

CREATE TABLE IF NOT EXISTS company_profiles (
	ticker           TEXT NOT NULL PRIMARY KEY,
	name             TEXT,
	exchange         TEXT,
	sector           TEXT,
	industry         TEXT,
	country          TEXT,
	market_cap       REAL,
	beta             REAL,
	price            REAL,
	ipo_date         TEXT,
	actively_trading INTEGER
);

CREATE TABLE IF NOT EXISTS dcf_valuations (
	ticker      TEXT NOT NULL,
	date        TEXT NOT NULL,
	dcf         REAL,
	stock_price REAL,
	PRIMARY KEY (ticker, date)
);
`

// SQLiteStore implements the store interfaces backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at dbPath, applies pragmas and
// the schema, and returns a ready-to-use SQLiteStore. maxConns bounds the
// connection pool; values <= 0 leave the pool unbounded.
func Open(dbPath string, maxConns int) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// DB exposes the underlying database handle for packages that share the
// same file, such as the sync log.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ListTickers returns the distinct tickers present in the price and profile
// tables, sorted ascending.
func (s *SQLiteStore) ListTickers(ctx context.Context) ([]string, error) {
	const q = `
		SELECT ticker FROM stock_prices
		UNION
		SELECT ticker FROM company_profiles
		ORDER BY ticker`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}

// ---------------------------------------------------------------------------
// Bulk upserts
// ---------------------------------------------------------------------------

// UpsertPrices writes price bars keyed by (ticker, date). Existing rows are
// updated in place; replaying the same batch is a no-op in content.
func (s *SQLiteStore) UpsertPrices(ctx context.Context, bars []domain.PriceBar) (Result, error) {
	type key struct{ ticker, date string }
	seen := make(map[key]int, len(bars))
	rows := make([][]any, 0, len(bars))
	deduped := 0
	for _, b := range bars {
		row := []any{b.Ticker, b.Date, b.Open, b.High, b.Low, b.Close, b.AdjClose, b.Volume}
		k := key{b.Ticker, b.Date}
		if i, ok := seen[k]; ok {
			rows[i] = row
			deduped++
			continue
		}
		seen[k] = len(rows)
		rows = append(rows, row)
	}

	const stmt = `INSERT INTO stock_prices (ticker, date, open, high, low, close, adj_close, volume) VALUES %s
		ON CONFLICT (ticker, date) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, adj_close = excluded.adj_close, volume = excluded.volume`
	written, err := s.upsertPaged(ctx, stmt, 8, rows)
	return Result{Written: written, Deduped: deduped}, err
}

// UpsertMetrics writes financial metrics keyed by
// (ticker, metric_name, period_end_date).
func (s *SQLiteStore) UpsertMetrics(ctx context.Context, metrics []domain.Metric) (Result, error) {
	type key struct{ ticker, name, date string }
	seen := make(map[key]int, len(metrics))
	rows := make([][]any, 0, len(metrics))
	deduped := 0
	for _, m := range metrics {
		row := []any{m.Ticker, m.MetricName, m.PeriodEndDate, m.Value, m.Unit, m.Period, m.Source}
		k := key{m.Ticker, m.MetricName, m.PeriodEndDate}
		if i, ok := seen[k]; ok {
			rows[i] = row
			deduped++
			continue
		}
		seen[k] = len(rows)
		rows = append(rows, row)
	}

	const stmt = `INSERT INTO financial_metrics (ticker, metric_name, period_end_date, value, unit, period, source) VALUES %s
		ON CONFLICT (ticker, metric_name, period_end_date) DO UPDATE SET
			value = excluded.value, unit = excluded.unit,
			period = excluded.period, source = excluded.source`
	written, err := s.upsertPaged(ctx, stmt, 7, rows)
	return Result{Written: written, Deduped: deduped}, err
}

// UpsertRatings writes analyst rating actions keyed by
// (ticker, analyst, rating_date).
func (s *SQLiteStore) UpsertRatings(ctx context.Context, ratings []domain.Rating) (Result, error) {
	type key struct{ ticker, analyst, date string }
	seen := make(map[key]int, len(ratings))
	rows := make([][]any, 0, len(ratings))
	deduped := 0
	for _, r := range ratings {
		row := []any{r.Ticker, r.Analyst, r.RatingDate, r.Rating, r.PriceTarget, r.Action, r.PreviousRating}
		k := key{r.Ticker, r.Analyst, r.RatingDate}
		if i, ok := seen[k]; ok {
			rows[i] = row
			deduped++
			continue
		}
		seen[k] = len(rows)
		rows = append(rows, row)
	}

	const stmt = `INSERT INTO analyst_ratings (ticker, analyst, rating_date, rating, price_target, action, previous_rating) VALUES %s
		ON CONFLICT (ticker, analyst, rating_date) DO UPDATE SET
			rating = excluded.rating, price_target = excluded.price_target,
			action = excluded.action, previous_rating = excluded.previous_rating`
	written, err := s.upsertPaged(ctx, stmt, 7, rows)
	return Result{Written: written, Deduped: deduped}, err
}

// UpsertEstimates writes analyst estimates keyed by (ticker, date).
func (s *SQLiteStore) UpsertEstimates(ctx context.Context, estimates []domain.Estimate) (Result, error) {
	type key struct{ ticker, date string }
	seen := make(map[key]int, len(estimates))
	rows := make([][]any, 0, len(estimates))
	deduped := 0
	for _, e := range estimates {
		row := []any{
			e.Ticker, e.Date,
			e.RevenueAvg, e.RevenueLow, e.RevenueHigh,
			e.EPSAvg, e.EPSLow, e.EPSHigh,
			e.AnalystsRevenue, e.AnalystsEPS, e.Source,
		}
		k := key{e.Ticker, e.Date}
		if i, ok := seen[k]; ok {
			rows[i] = row
			deduped++
			continue
		}
		seen[k] = len(rows)
		rows = append(rows, row)
	}

	const stmt = `INSERT INTO analyst_estimates (ticker, date, revenue_avg, revenue_low, revenue_high, eps_avg, eps_low, eps_high, analysts_revenue, analysts_eps, source) VALUES %s
		ON CONFLICT (ticker, date) DO UPDATE SET
			revenue_avg = excluded.revenue_avg, revenue_low = excluded.revenue_low,
			revenue_high = excluded.revenue_high, eps_avg = excluded.eps_avg,
			eps_low = excluded.eps_low, eps_high = excluded.eps_high,
			analysts_revenue = excluded.analysts_revenue,
			analysts_eps = excluded.analysts_eps, source = excluded.source`
	written, err := s.upsertPaged(ctx, stmt, 11, rows)
	return Result{Written: written, Deduped: deduped}, err
}

// UpsertProfiles writes company profiles keyed by ticker.
func (s *SQLiteStore) UpsertProfiles(ctx context.Context, profiles []domain.Profile) (Result, error) {
	seen := make(map[string]int, len(profiles))
	rows := make([][]any, 0, len(profiles))
	deduped := 0
	for _, p := range profiles {
		row := []any{
			p.Ticker, p.Name, p.Exchange, p.Sector, p.Industry, p.Country,
			p.MarketCap, p.Beta, p.Price, p.IPODate, p.ActivelyTrading,
		}
		if i, ok := seen[p.Ticker]; ok {
			rows[i] = row
			deduped++
			continue
		}
		seen[p.Ticker] = len(rows)
		rows = append(rows, row)
	}

	const stmt = `INSERT INTO company_profiles (ticker, name, exchange, sector, industry, country, market_cap, beta, price, ipo_date, actively_trading) VALUES %s
		ON CONFLICT (ticker) DO UPDATE SET
			name = excluded.name, exchange = excluded.exchange,
			sector = excluded.sector, industry = excluded.industry,
			country = excluded.country, market_cap = excluded.market_cap,
			beta = excluded.beta, price = excluded.price,
			ipo_date = excluded.ipo_date, actively_trading = excluded.actively_trading`
	written, err := s.upsertPaged(ctx, stmt, 11, rows)
	return Result{Written: written, Deduped: deduped}, err
}

// UpsertValuations writes DCF valuations keyed by (ticker, date).
func (s *SQLiteStore) UpsertValuations(ctx context.Context, valuations []domain.Valuation) (Result, error) {
	type key struct{ ticker, date string }
	seen := make(map[key]int, len(valuations))
	rows := make([][]any, 0, len(valuations))
	deduped := 0
	for _, v := range valuations {
		row := []any{v.Ticker, v.Date, v.DCF, v.StockPrice}
		k := key{v.Ticker, v.Date}
		if i, ok := seen[k]; ok {
			rows[i] = row
			deduped++
			continue
		}
		seen[k] = len(rows)
		rows = append(rows, row)
	}

	const stmt = `INSERT INTO dcf_valuations (ticker, date, dcf, stock_price) VALUES %s
		ON CONFLICT (ticker, date) DO UPDATE SET
			dcf = excluded.dcf, stock_price = excluded.stock_price`
	written, err := s.upsertPaged(ctx, stmt, 4, rows)
	return Result{Written: written, Deduped: deduped}, err
}

// ---------------------------------------------------------------------------
// Paged write helper
// ---------------------------------------------------------------------------

// upsertPaged executes stmt (a format string with one %s for the VALUES
// placeholders) over rows in pages of pageSize. Writes are retried on
// transient errors such as a busy database.
func (s *SQLiteStore) upsertPaged(ctx context.Context, stmt string, cols int, rows [][]any) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	written := 0
	for start := 0; start < len(rows); start += pageSize {
		end := start + pageSize
		if end > len(rows) {
			end = len(rows)
		}
		page := rows[start:end]

		query := fmt.Sprintf(stmt, valuesClause(len(page), cols))
		args := make([]any, 0, len(page)*cols)
		for _, row := range page {
			args = append(args, row...)
		}

		err := util.Retry(ctx, 3, 100*time.Millisecond, 50*time.Millisecond, func() error {
			res, err := s.db.ExecContext(ctx, query, args...)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			written += int(n)
			return nil
		})
		if err != nil {
			return written, fmt.Errorf("upserting rows %d..%d: %w", start, end, err)
		}
	}
	return written, nil
}

// valuesClause builds the "(?,?,...),(?,?,...)" placeholder list for a
// multi-row insert.
func valuesClause(nRows, nCols int) string {
	row := "(" + strings.TrimSuffix(strings.Repeat("?,", nCols), ",") + ")"
	var b strings.Builder
	b.Grow(nRows * (len(row) + 1))
	for i := 0; i < nRows; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(row)
	}
	return b.String()
}
