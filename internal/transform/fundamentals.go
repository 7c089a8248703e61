package transform

import (
	"fmt"
	"strings"

	"stocksync/internal/domain"
)

// metricField is one entry in the fundamentals mapping table: the provider's
// JSON field, the canonical metric name stored in financial_metrics, and the
// unit recorded with it.
type metricField struct {
	provider string
	name     string
	unit     string
}

// metricFields maps the provider's key-metrics schema to canonical metric
// rows. Each provider field is mapped independently; in particular roa is
// sourced from returnOnAssets only, never from returnOnInvestedCapital.
var metricFields = []metricField{
	{"peRatio", "pe_ratio", "x"},
	{"pbRatio", "pb_ratio", "x"},
	{"revenuePerShare", "revenue_per_share", "USD"},
	{"netIncomePerShare", "net_income_per_share", "USD"},
	{"operatingCashFlowPerShare", "operating_cash_flow_per_share", "USD"},
	{"freeCashFlowPerShare", "free_cash_flow_per_share", "USD"},
	{"debtToEquity", "debt_to_equity", "x"},
	{"currentRatio", "current_ratio", "x"},
	{"returnOnEquity", "roe", "%"},
	{"returnOnAssets", "roa", "%"},
	{"returnOnInvestedCapital", "roic", "%"},
	{"dividendYield", "dividend_yield", "%"},
	{"marketCap", "market_cap", "USD"},
}

// Metrics maps a key-metrics payload to one Metric row per mapped field per
// period. A period record missing its end date is dropped entirely; a
// missing metric field simply produces no row for that metric (absence is
// not zero).
func Metrics(ticker string, raw []byte) ([]domain.Metric, int, error) {
	items, err := normalize(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("metrics payload for %s: %w", ticker, err)
	}

	sym := strings.ToUpper(ticker)
	var metrics []domain.Metric
	dropped := 0
	for _, item := range items {
		periodEnd := fstr(item, "date")
		if sym == "" || periodEnd == "" {
			dropped++
			continue
		}
		period := fstr(item, "period")

		for _, mf := range metricFields {
			value, ok := fnum(item, mf.provider)
			if !ok {
				continue
			}
			metrics = append(metrics, domain.Metric{
				Ticker:        sym,
				MetricName:    mf.name,
				Value:         value,
				Unit:          mf.unit,
				Period:        period,
				PeriodEndDate: periodEnd,
				Source:        sourceName,
			})
		}
	}
	return metrics, dropped, nil
}
