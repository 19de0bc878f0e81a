package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pricebot/internal/cmc"
	"pricebot/internal/config"
	"pricebot/internal/discord"
	"pricebot/internal/httpx"
	"pricebot/internal/quote"
	"pricebot/internal/ratelimit"
	"pricebot/internal/refresh"
	"pricebot/internal/tenant"
)

func main() {
	// .env is optional, real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Bot.Token == "" {
		log.Fatal("DISCORD_BOT_TOKEN not set")
	}

	registry, err := tenant.Load(cfg.Bot.DataFile)
	if err != nil {
		log.Fatalf("tenant data: %v", err)
	}
	styles := config.LoadStyles(cfg.Bot.StylesFile)

	httpClient := httpx.New(time.Duration(cfg.Quotes.RequestTimeoutSec) * time.Second)
	httpClient.UserAgent = "pricebot/1.0"

	options := []cmc.Option{
		cmc.WithBaseURL(cfg.Quotes.Endpoint),
		cmc.WithHTTPClient(httpClient.HTTP),
		cmc.WithHeader(http.Header{"User-Agent": []string{httpClient.UserAgent}}),
		cmc.WithTimeout(time.Duration(cfg.Quotes.RequestTimeoutSec) * time.Second),
	}
	if newGate := gateFactory(cfg.Quotes); newGate != nil {
		options = append(options, cmc.WithRateLimit(&ratelimit.PerKey{New: newGate}))
	}
	source := cmc.New(options...)
	store := quote.NewStore(source, time.Duration(cfg.Quotes.CacheTTLSeconds)*time.Second)

	client, err := discord.New(cfg.Bot.Token)
	if err != nil {
		log.Fatalf("discord: %v", err)
	}

	scheduler := refresh.New(registry, store, client, styles, cfg.Refresh)
	discord.NewCommands(client, registry, store, scheduler)

	if err := client.Open(); err != nil {
		log.Fatalf("discord open: %v", err)
	}
	defer client.Close()
	log.Printf("bot connected, starting refresh loops")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go scheduler.RunVoiceLoop(ctx)
	go scheduler.RunMessageLoop(ctx)

	<-ctx.Done()
	log.Printf("shutting down")
}

// gateFactory builds the per-credential upstream gate. Token bucket
// with burst if an RPM limit is set, otherwise a plain minimum
// interval. Returns nil when no limiting is configured.
func gateFactory(q config.Quotes) func() ratelimit.Gate {
	switch {
	case q.MaxRequestsPerMinute > 0:
		rate := float64(q.MaxRequestsPerMinute) / 60.0
		burst := q.Burst
		if burst <= 0 {
			burst = 1
		}
		return func() ratelimit.Gate { return ratelimit.NewTokenBucket(rate, burst) }
	case q.MinRequestIntervalSec > 0:
		interval := time.Duration(q.MinRequestIntervalSec) * time.Second
		return func() ratelimit.Gate { return &ratelimit.MinInterval{Interval: interval} }
	default:
		return nil
	}
}
