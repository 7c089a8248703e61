// Package domain defines the canonical record types shared by the ingestion
// pipeline: units of work, daily price bars, fundamental metrics, analyst
// data, company profiles, and DCF valuations.
package domain

import "time"

// Domain identifies one data domain served by the provider.
type Domain string

const (
	DomainPrices       Domain = "prices"
	DomainFundamentals Domain = "fundamentals"
	DomainRatings      Domain = "ratings"
	DomainEstimates    Domain = "estimates"
	DomainProfiles     Domain = "profiles"
	DomainValuation    Domain = "valuation"
)

// Unit is one unit of work: a (ticker, domain) pair to fetch in a single
// pipeline pass, with optional date-range bounds. Units are created when a
// task enumerates its work list and are not persisted beyond the run.
type Unit struct {
	Ticker string
	Domain Domain
	From   time.Time // zero when the domain has no date range
	To     time.Time
}

// Key returns the unit identifier used in logs and the dead-letter sink.
func (u Unit) Key() string {
	return u.Ticker + "/" + string(u.Domain)
}

// ---------------------------------------------------------------------------
// Canonical records (store-schema shaped, one type per domain)
// ---------------------------------------------------------------------------

// PriceBar is one daily OHLCV bar. Natural key: (ticker, date).
type PriceBar struct {
	Ticker   string
	Date     string // YYYY-MM-DD
	Open     float64
	High     float64
	Low      float64
	Close    float64
	AdjClose float64
	Volume   int64
}

// Metric is one fundamental metric observation.
// Natural key: (ticker, metric_name, period_end_date).
type Metric struct {
	Ticker        string
	MetricName    string
	Value         float64
	Unit          string // "x", "%", "USD"
	Period        string // "Q1", "FY", "TTM"
	PeriodEndDate string // YYYY-MM-DD
	Source        string
}

// Rating is one analyst rating action.
// Natural key: (ticker, analyst, rating_date).
type Rating struct {
	Ticker         string
	Analyst        string
	Rating         string
	PriceTarget    float64
	RatingDate     string // YYYY-MM-DD
	Action         string
	PreviousRating string
}

// Estimate is the consensus analyst estimate for one ticker and date.
// Natural key: (ticker, date).
type Estimate struct {
	Ticker          string
	Date            string // YYYY-MM-DD
	RevenueAvg      float64
	RevenueLow      float64
	RevenueHigh     float64
	EPSAvg          float64
	EPSLow          float64
	EPSHigh         float64
	AnalystsRevenue int64
	AnalystsEPS     int64
	Source          string
}

// Profile is the company reference record. Natural key: (ticker).
type Profile struct {
	Ticker          string
	Name            string
	Exchange        string
	Sector          string
	Industry        string
	Country         string
	MarketCap       int64
	Beta            float64
	Price           float64
	IPODate         string // YYYY-MM-DD, empty when unknown
	ActivelyTrading bool
}

// Valuation is one discounted-cash-flow valuation point.
// Natural key: (ticker, date).
type Valuation struct {
	Ticker     string
	Date       string // YYYY-MM-DD
	DCF        float64
	StockPrice float64
}
