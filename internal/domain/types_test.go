package domain

import (
	"testing"
	"time"
)

func TestUnitKey(t *testing.T) {
	u := Unit{Ticker: "AAPL", Domain: DomainPrices}
	if u.Key() != "AAPL/prices" {
		t.Errorf("Key() = %q, want %q", u.Key(), "AAPL/prices")
	}

	u = Unit{Ticker: "MSFT", Domain: DomainFundamentals,
		From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	if u.Key() != "MSFT/fundamentals" {
		t.Errorf("Key() = %q, want %q", u.Key(), "MSFT/fundamentals")
	}
}

func TestDomainConstants(t *testing.T) {
	// The domain names are stored in run-log metadata and the dead-letter
	// sink; keep them stable.
	want := map[Domain]string{
		DomainPrices:       "prices",
		DomainFundamentals: "fundamentals",
		DomainRatings:      "ratings",
		DomainEstimates:    "estimates",
		DomainProfiles:     "profiles",
		DomainValuation:    "valuation",
	}
	for d, s := range want {
		if string(d) != s {
			t.Errorf("Domain constant = %q, want %q", d, s)
		}
	}
}

func TestZeroValues(t *testing.T) {
	// Zero-value records must carry empty natural keys so the transformer's
	// drop logic can detect them.
	bar := PriceBar{}
	if bar.Ticker != "" || bar.Date != "" {
		t.Error("expected empty natural key for zero-value PriceBar")
	}

	m := Metric{}
	if m.Ticker != "" || m.MetricName != "" || m.PeriodEndDate != "" {
		t.Error("expected empty natural key for zero-value Metric")
	}

	r := Rating{}
	if r.Ticker != "" || r.Analyst != "" || r.RatingDate != "" {
		t.Error("expected empty natural key for zero-value Rating")
	}
}
