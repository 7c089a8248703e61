package transform

import (
	"fmt"
	"strings"

	"stocksync/internal/domain"
)

// Ratings maps an analyst-grades payload to Rating rows.
//
// Provider fields: date, gradingCompany, newGrade, previousGrade, action,
// priceTarget. Records missing any of (ticker, analyst, date) are dropped.
func Ratings(ticker string, raw []byte) ([]domain.Rating, int, error) {
	items, err := normalize(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("ratings payload for %s: %w", ticker, err)
	}

	sym := strings.ToUpper(ticker)
	var ratings []domain.Rating
	dropped := 0
	for _, item := range items {
		analyst := fstr(item, "gradingCompany")
		date := fstr(item, "date")
		if sym == "" || analyst == "" || date == "" {
			dropped++
			continue
		}

		target, _ := fnum(item, "priceTarget")
		ratings = append(ratings, domain.Rating{
			Ticker:         sym,
			Analyst:        analyst,
			Rating:         fstr(item, "newGrade"),
			PriceTarget:    target,
			RatingDate:     date,
			Action:         fstr(item, "action"),
			PreviousRating: fstr(item, "previousGrade"),
		})
	}
	return ratings, dropped, nil
}

// Estimates maps an analyst-estimates payload to consensus Estimate rows.
//
// Provider fields: date, estimatedRevenueAvg/Low/High,
// estimatedEpsAvg/Low/High, numberAnalystEstimatedRevenue,
// numberAnalystsEstimatedEps. The last two really do disagree on plurals in
// the provider schema.
func Estimates(ticker string, raw []byte) ([]domain.Estimate, int, error) {
	items, err := normalize(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("estimates payload for %s: %w", ticker, err)
	}

	sym := strings.ToUpper(ticker)
	var estimates []domain.Estimate
	dropped := 0
	for _, item := range items {
		date := fstr(item, "date")
		if sym == "" || date == "" {
			dropped++
			continue
		}

		revAvg, _ := fnum(item, "estimatedRevenueAvg")
		revLow, _ := fnum(item, "estimatedRevenueLow")
		revHigh, _ := fnum(item, "estimatedRevenueHigh")
		epsAvg, _ := fnum(item, "estimatedEpsAvg")
		epsLow, _ := fnum(item, "estimatedEpsLow")
		epsHigh, _ := fnum(item, "estimatedEpsHigh")
		nRev, _ := inum(item, "numberAnalystEstimatedRevenue")
		nEPS, _ := inum(item, "numberAnalystsEstimatedEps")

		estimates = append(estimates, domain.Estimate{
			Ticker:          sym,
			Date:            date,
			RevenueAvg:      revAvg,
			RevenueLow:      revLow,
			RevenueHigh:     revHigh,
			EPSAvg:          epsAvg,
			EPSLow:          epsLow,
			EPSHigh:         epsHigh,
			AnalystsRevenue: nRev,
			AnalystsEPS:     nEPS,
			Source:          sourceName,
		})
	}
	return estimates, dropped, nil
}
