// One-shot quote fetcher for poking the CoinMarketCap integration
// without running the bot.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"pricebot/internal/cmc"
	"pricebot/internal/httpx"
	"pricebot/internal/quote"
)

func main() {
	var symbolsCSV string
	var apiKey string
	var endpoint string
	var timeout int

	_ = godotenv.Load()

	flag.StringVar(&symbolsCSV, "symbols", getenv("SYMBOLS", "BTC,ETH"), "comma-separated ticker symbols")
	flag.StringVar(&apiKey, "api-key", getenv("CMC_API_KEY", ""), "CoinMarketCap API key")
	flag.StringVar(&endpoint, "endpoint", getenv("CMC_ENDPOINT", ""), "API base URL (optional)")
	flag.IntVar(&timeout, "timeout", getenvInt("REQUEST_TIMEOUT_SEC", 10), "request timeout seconds")
	flag.Parse()

	if apiKey == "" {
		log.Fatal("no API key; set -api-key or CMC_API_KEY")
	}
	symbols := quote.NormalizeSymbols(strings.Split(symbolsCSV, ","))
	if len(symbols) == 0 {
		log.Fatal("no symbols provided")
	}

	httpClient := httpx.New(time.Duration(timeout) * time.Second)
	options := []cmc.Option{
		cmc.WithHTTPClient(httpClient.HTTP),
		cmc.WithHeader(http.Header{"User-Agent": []string{httpClient.UserAgent}}),
		cmc.WithTimeout(time.Duration(timeout) * time.Second),
	}
	if endpoint != "" {
		options = append(options, cmc.WithBaseURL(endpoint))
	}
	client := cmc.New(options...)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	quotes, err := client.FetchBatch(ctx, apiKey, symbols)
	if err != nil {
		log.Fatalf("fetch: %v", err)
	}
	log.Printf("%d quotes", len(quotes))

	out := struct {
		Quotes []quote.Quote `json:"quotes"`
	}{Quotes: quotes}
	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var x int
		_, _ = fmt.Sscanf(v, "%d", &x)
		if x != 0 {
			return x
		}
	}
	return def
}
