// Package display renders quotes into the strings shown on the chat
// surfaces: channel names, price messages and swap-rate messages. All
// functions are pure.
package display

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"pricebot/internal/config"
	"pricebot/internal/quote"
)

// RatioUnavailable is shown when a swap rate cannot be computed.
const RatioUnavailable = "N/A"

// SortByMarketCap returns a copy sorted by market cap, largest first.
// Quotes without a market cap carry zero and sort last. Ties keep
// their input order.
func SortByMarketCap(quotes []quote.Quote) []quote.Quote {
	out := make([]quote.Quote, len(quotes))
	copy(out, quotes)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MarketCapUSD > out[j].MarketCapUSD
	})
	return out
}

// FormatPrice renders a USD price with precision matched to its
// magnitude, so small coins stay readable.
func FormatPrice(price float64) string {
	switch {
	case price < 0.01:
		return fmt.Sprintf("$%.6f", price)
	case price < 1:
		return fmt.Sprintf("$%.4f", price)
	case price < 1000:
		return fmt.Sprintf("$%.2f", price)
	default:
		return fmt.Sprintf("$%.0f", price)
	}
}

// ChannelName renders the voice-channel label for one quote.
func ChannelName(q quote.Quote, styles config.Styles) string {
	glyph := styles.PriceUp
	if q.PercentChange1H < 0 {
		glyph = styles.PriceDown
	}
	return fmt.Sprintf("%s %s %s", q.Symbol, glyph, FormatPrice(q.PriceUSD))
}

// PriceMessage renders the periodic price line for one quote.
func PriceMessage(q quote.Quote) string {
	url := fmt.Sprintf("<https://coinmarketcap.com/currencies/%s/>", q.Slug)
	return fmt.Sprintf("The price of %s (%s) is $%.2f USD on [CMC](%s)", q.Name, q.Symbol, q.PriceUSD, url)
}

// RatioLabel computes the integer swap rate counter/base, truncated
// toward zero. A zero base price, or a rate that does not fit an
// integer, yields the unavailable sentinel instead of an error.
func RatioLabel(base, counter quote.Quote) string {
	if base.PriceUSD == 0 {
		return RatioUnavailable
	}
	rate := counter.PriceUSD / base.PriceUSD
	if math.IsNaN(rate) || math.IsInf(rate, 0) || math.Abs(rate) >= math.MaxInt64 {
		return RatioUnavailable
	}
	return strconv.FormatInt(int64(rate), 10)
}

// RatioMessage renders the swap-rate line for a tracked pair. The link
// points at the counter symbol's listing.
func RatioMessage(baseSym, counterSym string, base, counter quote.Quote) string {
	url := fmt.Sprintf("<https://coinmarketcap.com/currencies/%s/>", counter.Slug)
	return fmt.Sprintf("The swap rate of %s:%s is %s:1 on [CMC](%s)", baseSym, counterSym, RatioLabel(base, counter), url)
}
