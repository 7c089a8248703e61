package ingest

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"stocksync/internal/store"
)

// LoadUniverse reads a ticker-per-line universe file. Blank lines and lines
// starting with '#' are skipped; tickers are uppercased and deduplicated
// preserving first-seen order.
func LoadUniverse(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening universe file: %w", err)
	}
	defer f.Close()

	seen := make(map[string]bool)
	var tickers []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sym := strings.ToUpper(line)
		if seen[sym] {
			continue
		}
		seen[sym] = true
		tickers = append(tickers, sym)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading universe file: %w", err)
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("universe file %s contains no tickers", path)
	}
	return tickers, nil
}

// ResolveUniverse returns the tickers to sync: the universe file when one
// is configured, otherwise the tickers already known to the store.
func ResolveUniverse(ctx context.Context, path string, lister store.TickerLister) ([]string, error) {
	if path != "" {
		return LoadUniverse(path)
	}
	tickers, err := lister.ListTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing stored tickers: %w", err)
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("no universe file configured and the store is empty")
	}
	return tickers, nil
}
