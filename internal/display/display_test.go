package display

import (
	"testing"

	"github.com/stretchr/testify/require"

	"pricebot/internal/config"
	"pricebot/internal/quote"
)

func TestSortByMarketCap(t *testing.T) {
	in := []quote.Quote{
		{Symbol: "DOGE", MarketCapUSD: 20e9},
		{Symbol: "NOCAP"}, // missing market cap sorts as zero, last
		{Symbol: "BTC", MarketCapUSD: 800e9},
		{Symbol: "ETH", MarketCapUSD: 300e9},
	}
	out := SortByMarketCap(in)

	var syms []string
	for _, q := range out {
		syms = append(syms, q.Symbol)
	}
	require.Equal(t, []string{"BTC", "ETH", "DOGE", "NOCAP"}, syms)
	require.Equal(t, "DOGE", in[0].Symbol, "input must not be reordered")
}

func TestFormatPrice_Tiers(t *testing.T) {
	require.Equal(t, "$0.000042", FormatPrice(0.000042))
	require.Equal(t, "$0.4200", FormatPrice(0.42))
	require.Equal(t, "$3.14", FormatPrice(3.14159))
	require.Equal(t, "$64001", FormatPrice(64000.9))
}

func TestChannelName(t *testing.T) {
	styles := config.DefaultStyles()
	up := quote.Quote{Symbol: "BTC", PriceUSD: 64000, PercentChange1H: 0.5}
	down := quote.Quote{Symbol: "ETH", PriceUSD: 3200, PercentChange1H: -0.1}
	flat := quote.Quote{Symbol: "USDT", PriceUSD: 1}

	require.Equal(t, "BTC 📈 $64000", ChannelName(up, styles))
	require.Equal(t, "ETH 📉 $3200", ChannelName(down, styles))
	// zero change counts as up, matching the glyph choice elsewhere
	require.Equal(t, "USDT 📈 $1.00", ChannelName(flat, styles))
}

func TestPriceMessage(t *testing.T) {
	q := quote.Quote{Symbol: "BTC", Name: "Bitcoin", Slug: "bitcoin", PriceUSD: 64000.5}
	require.Equal(t,
		"The price of Bitcoin (BTC) is $64000.50 USD on [CMC](<https://coinmarketcap.com/currencies/bitcoin/>)",
		PriceMessage(q))
}

func TestRatioLabel(t *testing.T) {
	btc := quote.Quote{Symbol: "BTC", PriceUSD: 64000}
	eth := quote.Quote{Symbol: "ETH", PriceUSD: 3200}

	// price(counter)/price(base), truncated toward zero
	require.Equal(t, "20", RatioLabel(eth, btc))
	require.Equal(t, "0", RatioLabel(btc, eth))

	// degenerate self-pair is exactly 1
	require.Equal(t, "1", RatioLabel(btc, btc))

	// zero base yields the sentinel, never a division error
	require.Equal(t, RatioUnavailable, RatioLabel(quote.Quote{Symbol: "ZERO"}, btc))
}

func TestRatioMessage(t *testing.T) {
	btc := quote.Quote{Symbol: "BTC", Slug: "bitcoin", PriceUSD: 64000}
	eth := quote.Quote{Symbol: "ETH", Slug: "ethereum", PriceUSD: 3200}
	require.Equal(t,
		"The swap rate of ETH:BTC is 20:1 on [CMC](<https://coinmarketcap.com/currencies/bitcoin/>)",
		RatioMessage("ETH", "BTC", eth, btc))
}
