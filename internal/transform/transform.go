// Package transform maps provider JSON payloads onto canonical store
// records, one function per data domain. All functions are pure: no I/O, no
// shared state. Records missing a natural-key field are dropped and counted
// rather than emitted; callers log the drop count.
//
// The provider's field names are the adaptation boundary between the
// external API and the store schema. Every mapping below is verified
// per-field by the package tests; do not add a mapping without one.
package transform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"stocksync/internal/domain"
)

// sourceName is stored in the source column of provider-derived rows.
const sourceName = "fmp"

// normalize decodes a provider payload into a list of objects. It tolerates
// an empty payload or empty array (no data, not an error) and a single
// object in place of an array (normalized to a one-element list).
func normalize(raw []byte) ([]map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("[]")) || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var list []map[string]any
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var single map[string]any
	if err := json.Unmarshal(raw, &single); err == nil {
		return []map[string]any{single}, nil
	}

	return nil, fmt.Errorf("payload is neither a JSON array nor an object")
}

// fnum reads a numeric field with NULL-safe coercion: missing, null, or
// blank values report ok=false; string-encoded numbers are parsed.
func fnum(m map[string]any, field string) (float64, bool) {
	v, present := m[field]
	if !present || v == nil {
		return 0, false
	}
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// inum is fnum truncated to int64.
func inum(m map[string]any, field string) (int64, bool) {
	f, ok := fnum(m, field)
	return int64(f), ok
}

// fstr reads a string field, returning "" when missing or not a string.
func fstr(m map[string]any, field string) string {
	if v, ok := m[field].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// fbool reads a boolean field.
func fbool(m map[string]any, field string) bool {
	b, _ := m[field].(bool)
	return b
}

// ---------------------------------------------------------------------------
// Prices
// ---------------------------------------------------------------------------

// Prices maps a historical-price payload to daily bars for ticker. Returns
// the bars, the count of records dropped for missing key fields, and an
// error only when the payload is not valid JSON.
//
// Provider fields: date, open, high, low, close, adjClose, volume.
func Prices(ticker string, raw []byte) ([]domain.PriceBar, int, error) {
	items, err := normalize(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("prices payload for %s: %w", ticker, err)
	}

	var bars []domain.PriceBar
	dropped := 0
	for _, item := range items {
		date := fstr(item, "date")
		sym := strings.ToUpper(fstr(item, "symbol"))
		if sym == "" {
			sym = strings.ToUpper(ticker)
		}
		if sym == "" || date == "" {
			dropped++
			continue
		}

		open, _ := fnum(item, "open")
		high, _ := fnum(item, "high")
		low, _ := fnum(item, "low")
		cls, _ := fnum(item, "close")
		adj, hasAdj := fnum(item, "adjClose")
		if !hasAdj {
			adj = cls
		}
		vol, _ := inum(item, "volume")

		bars = append(bars, domain.PriceBar{
			Ticker:   sym,
			Date:     date,
			Open:     open,
			High:     high,
			Low:      low,
			Close:    cls,
			AdjClose: adj,
			Volume:   vol,
		})
	}
	return bars, dropped, nil
}
