package transform

import (
	"fmt"
	"strings"

	"stocksync/internal/domain"
)

// Profiles maps a company-profile payload to Profile rows.
//
// Provider fields: symbol, companyName, exchangeShortName, sector, industry,
// country, mktCap, beta, price, ipoDate, isActivelyTrading.
func Profiles(ticker string, raw []byte) ([]domain.Profile, int, error) {
	items, err := normalize(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("profile payload for %s: %w", ticker, err)
	}

	var profiles []domain.Profile
	dropped := 0
	for _, item := range items {
		sym := strings.ToUpper(fstr(item, "symbol"))
		if sym == "" {
			sym = strings.ToUpper(ticker)
		}
		if sym == "" {
			dropped++
			continue
		}

		mktCap, _ := inum(item, "mktCap")
		beta, _ := fnum(item, "beta")
		price, _ := fnum(item, "price")

		profiles = append(profiles, domain.Profile{
			Ticker:          sym,
			Name:            fstr(item, "companyName"),
			Exchange:        fstr(item, "exchangeShortName"),
			Sector:          fstr(item, "sector"),
			Industry:        fstr(item, "industry"),
			Country:         fstr(item, "country"),
			MarketCap:       mktCap,
			Beta:            beta,
			Price:           price,
			IPODate:         fstr(item, "ipoDate"),
			ActivelyTrading: fbool(item, "isActivelyTrading"),
		})
	}
	return profiles, dropped, nil
}

// Valuations maps a discounted-cash-flow payload to Valuation rows.
//
// Provider fields: symbol, date, dcf, and "Stock Price" — the provider
// ships that one with a literal space in the key.
func Valuations(ticker string, raw []byte) ([]domain.Valuation, int, error) {
	items, err := normalize(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("valuation payload for %s: %w", ticker, err)
	}

	var valuations []domain.Valuation
	dropped := 0
	for _, item := range items {
		sym := strings.ToUpper(fstr(item, "symbol"))
		if sym == "" {
			sym = strings.ToUpper(ticker)
		}
		date := fstr(item, "date")
		if sym == "" || date == "" {
			dropped++
			continue
		}

		dcf, _ := fnum(item, "dcf")
		price, ok := fnum(item, "Stock Price")
		if !ok {
			price, _ = fnum(item, "stockPrice")
		}

		valuations = append(valuations, domain.Valuation{
			Ticker:     sym,
			Date:       date,
			DCF:        dcf,
			StockPrice: price,
		})
	}
	return valuations, dropped, nil
}
