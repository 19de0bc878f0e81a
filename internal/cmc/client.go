package cmc

import (
	"net/http"
	"time"

	"pricebot/internal/ratelimit"
)

const defaultBaseURL = "https://pro-api.coinmarketcap.com"

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=cmc_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a client for the CoinMarketCap API. The API key is not
// fixed at construction: every tenant holds its own key with its own
// quota, so the key travels with each FetchBatch call and rate gates
// are kept per key.
type Client struct {
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient is the HTTP client requests go through.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
	// timeout bounds each upstream request.
	timeout time.Duration
	// gates paces requests per API key; nil disables pacing.
	gates *ratelimit.PerKey
}

// Option is a configuration option for the CoinMarketCap client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithTimeout bounds each upstream request.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithRateLimit paces requests independently per API key.
func WithRateLimit(gates *ratelimit.PerKey) Option {
	return func(c *Client) {
		c.gates = gates
	}
}

// New creates a new CoinMarketCap client.
func New(options ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
		timeout:    10 * time.Second,
	}
	for _, option := range options {
		option(c)
	}
	return c
}
