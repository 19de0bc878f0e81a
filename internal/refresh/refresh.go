package refresh

import (
	"context"
	"log"
	"sort"

	"pricebot/internal/display"
	"pricebot/internal/quote"
	"pricebot/internal/tenant"
)

// RefreshVoice renames every configured tenant's voice board. Tenants
// are processed sequentially; one tenant's failure never blocks the
// rest. Also the forced-refresh entry point for voice tickers.
func (s *Scheduler) RefreshVoice(ctx context.Context) {
	log.Printf("refresh: voice updates for all guilds")
	for _, t := range s.registry.Snapshot() {
		s.refreshTenantVoice(ctx, t)
	}
}

func (s *Scheduler) refreshTenantVoice(ctx context.Context, t tenant.Config) {
	if t.UpdateCategory == 0 || len(t.VoiceTickers) == 0 || !t.HasAPIKey() {
		return
	}
	if !s.chat.HasGuild(t.ID) {
		log.Printf("refresh: guild %d not available, skipping voice update", t.ID)
		return
	}
	quotes := s.store.Fetch(ctx, t.APIKey, t.VoiceTickers, s.now())
	names := make([]string, 0, len(quotes))
	for _, q := range display.SortByMarketCap(quotes) {
		names = append(names, display.ChannelName(q, s.styles))
	}
	// Replace wholesale rather than diffing: the displayed order then
	// always matches the latest sort, at the cost of channel churn.
	if err := s.chat.ReplaceCategoryChannels(ctx, t.ID, t.UpdateCategory, names); err != nil {
		log.Printf("refresh: guild %d voice update failed: %v", t.ID, err)
	}
}

// RefreshMessages posts price and/or swap-rate messages for every
// configured tenant. Also the forced-refresh entry point for message
// and ratio tickers.
func (s *Scheduler) RefreshMessages(ctx context.Context, regular, ratio bool) {
	for _, t := range s.registry.Snapshot() {
		if !t.HasAPIKey() {
			continue
		}
		if !s.chat.HasGuild(t.ID) {
			log.Printf("refresh: guild %d not available, skipping message update", t.ID)
			continue
		}
		if regular && len(t.MessageTickers) > 0 {
			s.refreshTenantMessages(ctx, t)
		}
		if ratio && len(t.RatioTickers) > 0 {
			s.refreshTenantRatios(ctx, t)
		}
	}
}

func (s *Scheduler) refreshTenantMessages(ctx context.Context, t tenant.Config) {
	symbols := sortedKeys(t.MessageTickers)
	quotes := s.store.Fetch(ctx, t.APIKey, symbols, s.now())
	bySym := make(map[string]quote.Quote, len(quotes))
	for _, q := range quotes {
		bySym[q.Symbol] = q
	}
	for _, sym := range symbols {
		q, ok := bySym[sym]
		if !ok {
			// Temporarily unavailable upstream; try again next cycle.
			continue
		}
		if err := s.chat.SendMessage(ctx, t.MessageTickers[sym], display.PriceMessage(q)); err != nil {
			log.Printf("refresh: guild %d ticker %s message failed: %v", t.ID, sym, err)
		}
	}
}

func (s *Scheduler) refreshTenantRatios(ctx context.Context, t tenant.Config) {
	// Pairs are fetched independently; symbols shared between pairs
	// (or with the direct tickers above) are absorbed by the cache
	// rather than re-requested upstream.
	for _, pair := range sortedKeys(t.RatioTickers) {
		a, b, ok := tenant.SplitPairKey(pair)
		if !ok {
			log.Printf("refresh: guild %d malformed ratio key %q", t.ID, pair)
			continue
		}
		quotes := s.store.Fetch(ctx, t.APIKey, []string{a, b}, s.now())
		bySym := make(map[string]quote.Quote, len(quotes))
		for _, q := range quotes {
			bySym[q.Symbol] = q
		}
		qa, okA := bySym[a]
		qb, okB := bySym[b]
		if !okA || !okB {
			continue
		}
		if err := s.chat.SendMessage(ctx, t.RatioTickers[pair], display.RatioMessage(a, b, qa, qb)); err != nil {
			log.Printf("refresh: guild %d ratio %s message failed: %v", t.ID, pair, err)
		}
	}
}

func sortedKeys(m map[string]int64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
