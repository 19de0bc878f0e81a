package tenant

import (
	"fmt"
	"slices"
	"strings"
)

// Config is one guild's configuration scope: its upstream credential,
// tracked symbols and output bindings. Zero IDs mean "not configured".
type Config struct {
	ID             int64
	APIKey         string
	AdminRole      int64
	UpdateCategory int64
	VoiceTickers   []string
	MessageTickers map[string]int64 // symbol -> channel
	RatioTickers   map[string]int64 // "A:B" pair key -> channel
}

// PairKey builds the canonical ratio key: both sides upper-cased,
// joined with a colon. A and B may be the same symbol.
func PairKey(a, b string) string {
	return fmt.Sprintf("%s:%s", strings.ToUpper(strings.TrimSpace(a)), strings.ToUpper(strings.TrimSpace(b)))
}

// SplitPairKey is the inverse of PairKey.
func SplitPairKey(key string) (a, b string, ok bool) {
	a, b, ok = strings.Cut(key, ":")
	return a, b, ok
}

// HasAPIKey reports whether fetches are enabled for this tenant.
func (c *Config) HasAPIKey() bool { return c.APIKey != "" }

// AddVoiceTicker appends a symbol to the ordered voice list. Duplicates
// are rejected.
func (c *Config) AddVoiceTicker(symbol string) bool {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" || slices.Contains(c.VoiceTickers, symbol) {
		return false
	}
	c.VoiceTickers = append(c.VoiceTickers, symbol)
	return true
}

// RemoveVoiceTicker drops a symbol, reporting whether it was tracked.
func (c *Config) RemoveVoiceTicker(symbol string) bool {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	i := slices.Index(c.VoiceTickers, symbol)
	if i < 0 {
		return false
	}
	c.VoiceTickers = slices.Delete(c.VoiceTickers, i, i+1)
	return true
}

// clone returns a deep copy safe to hand out of the registry.
func (c *Config) clone() Config {
	out := *c
	out.VoiceTickers = slices.Clone(c.VoiceTickers)
	out.MessageTickers = cloneMap(c.MessageTickers)
	out.RatioTickers = cloneMap(c.RatioTickers)
	return out
}

func cloneMap(m map[string]int64) map[string]int64 {
	if m == nil {
		return nil
	}
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
