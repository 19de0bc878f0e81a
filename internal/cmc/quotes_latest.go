package cmc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"pricebot/internal/quote"
)

// FetchBatch retrieves latest USD quotes for the given symbols in one
// request (never one request per symbol). The response maps each
// symbol to a list of listing records; the first record is
// authoritative, the rest are listing variants and are ignored.
// Symbols absent from the response are simply not returned.
func (c *Client) FetchBatch(ctx context.Context, apiKey string, symbols []string) ([]quote.Quote, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	if c.gates != nil {
		if err := c.gates.Gate(apiKey).Wait(ctx); err != nil {
			return nil, err
		}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	query := url.Values{}
	query.Set("symbol", strings.Join(symbols, ","))
	u := fmt.Sprintf("%s/v2/cryptocurrency/quotes/latest?%s", c.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()
	req.Header.Set("X-CMC_PRO_API_KEY", apiKey)
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		break

	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("unauthorized")

	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("rate limited")

	default:
		return nil, fmt.Errorf("unexpected status code: %d", res.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding quotes response: %w", err)
	}
	if body.Status.ErrorCode != 0 {
		return nil, fmt.Errorf("provider error: code=%d msg=%q", body.Status.ErrorCode, body.Status.ErrorMessage)
	}

	out := make([]quote.Quote, 0, len(body.Data))
	for symbol, listings := range body.Data {
		if len(listings) == 0 {
			continue
		}
		first := listings[0]
		usd, ok := first.Quote["USD"]
		if !ok {
			continue
		}
		out = append(out, quote.Quote{
			Symbol:          strings.ToUpper(symbol),
			Name:            first.Name,
			Slug:            first.Slug,
			PriceUSD:        usd.Price,
			PercentChange1H: usd.PercentChange1H,
			MarketCapUSD:    usd.MarketCap,
		})
	}
	return out, nil
}

type apiResponse struct {
	Status apiStatus            `json:"status"`
	Data   map[string][]listing `json:"data"`
}

type apiStatus struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

type listing struct {
	Name  string              `json:"name"`
	Slug  string              `json:"slug"`
	Quote map[string]usdQuote `json:"quote"`
}

type usdQuote struct {
	Price           float64 `json:"price"`
	PercentChange1H float64 `json:"percent_change_1h"`
	MarketCap       float64 `json:"market_cap"`
}
