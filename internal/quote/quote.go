package quote

import "strings"

// Quote is one symbol's market data at a point in time. Instances are
// never mutated; a newer fetch produces a new Quote that supersedes the
// old one in the cache.
type Quote struct {
	Symbol          string  `json:"symbol"`
	Name            string  `json:"name"`
	Slug            string  `json:"slug"`
	PriceUSD        float64 `json:"price_usd"`
	PercentChange1H float64 `json:"percent_change_1h"`
	MarketCapUSD    float64 `json:"market_cap_usd"`
}

// NormalizeSymbols upper-cases and de-duplicates symbols, preserving
// first-seen order. Empty entries are dropped.
func NormalizeSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
