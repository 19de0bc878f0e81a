package config

import (
	"encoding/json"
	"os"
)

// Styles holds the glyphs used in rendered output.
type Styles struct {
	PriceUp   string `json:"price_up_icon"`
	PriceDown string `json:"price_down_icon"`
}

func DefaultStyles() Styles {
	return Styles{PriceUp: "📈", PriceDown: "📉"}
}

// LoadStyles reads glyph overrides from path. An absent or unreadable
// file falls back to the defaults; a partial file overrides only the
// keys it sets.
func LoadStyles(path string) Styles {
	styles := DefaultStyles()
	b, err := os.ReadFile(path)
	if err != nil {
		return styles
	}
	var override Styles
	if err := json.Unmarshal(b, &override); err != nil {
		return styles
	}
	if override.PriceUp != "" {
		styles.PriceUp = override.PriceUp
	}
	if override.PriceDown != "" {
		styles.PriceDown = override.PriceDown
	}
	return styles
}
