package refresh

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pricebot/internal/config"
	"pricebot/internal/quote"
	"pricebot/internal/tenant"
)

type fakeSource struct {
	mu     sync.Mutex
	keys   []string
	quotes map[string]quote.Quote
}

func (f *fakeSource) FetchBatch(_ context.Context, apiKey string, symbols []string) ([]quote.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, apiKey)
	var out []quote.Quote
	for _, s := range symbols {
		if q, ok := f.quotes[s]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

type replaceCall struct {
	guildID, categoryID int64
	names               []string
}

type sentMessage struct {
	channelID int64
	content   string
}

type fakeChat struct {
	mu           sync.Mutex
	disconnected bool
	missing      map[int64]bool // guilds the session cannot see
	replaced     []replaceCall
	sent         []sentMessage
	sendErr      error
}

func (f *fakeChat) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.disconnected
}

func (f *fakeChat) HasGuild(guildID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.missing[guildID]
}

func (f *fakeChat) ReplaceCategoryChannels(_ context.Context, guildID, categoryID int64, names []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaced = append(f.replaced, replaceCall{guildID, categoryID, append([]string(nil), names...)})
	return nil
}

func (f *fakeChat) SendMessage(_ context.Context, channelID int64, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{channelID, content})
	return nil
}

func newTestScheduler(t *testing.T, src quote.Source, chat ChatClient) (*Scheduler, *tenant.Registry) {
	t.Helper()
	reg, err := tenant.Load(filepath.Join(t.TempDir(), "tenants.json"))
	require.NoError(t, err)
	s := New(reg, quote.NewStore(src, time.Minute), chat, config.DefaultStyles(), config.Refresh{
		VoiceCadenceSec:      3600,
		MessageCadenceSec:    1800,
		DisconnectedRetrySec: 180,
	})
	return s, reg
}

func marketQuotes() map[string]quote.Quote {
	return map[string]quote.Quote{
		"BTC":  {Symbol: "BTC", Name: "Bitcoin", Slug: "bitcoin", PriceUSD: 64000, PercentChange1H: 0.5, MarketCapUSD: 800e9},
		"ETH":  {Symbol: "ETH", Name: "Ethereum", Slug: "ethereum", PriceUSD: 3200, PercentChange1H: -0.2, MarketCapUSD: 300e9},
		"ZERO": {Symbol: "ZERO", Name: "Zero", Slug: "zero", PriceUSD: 0},
	}
}

func TestNextBoundary(t *testing.T) {
	hour := time.Hour
	at := time.Date(2025, 6, 1, 12, 34, 56, 0, time.UTC)
	require.Equal(t, 1504*time.Second, NextBoundary(at, hour))

	// At an exact boundary the next firing is one full cadence away.
	onTheHour := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	require.Equal(t, hour, NextBoundary(onTheHour, hour))

	require.Equal(t, 4*time.Second, NextBoundary(onTheHour.Add(26*time.Minute), 30*time.Minute))
}

func TestLoop_RealignsToWallClock(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeSource{}, &fakeChat{})

	clock := time.Date(2025, 6, 1, 12, 34, 56, 0, time.UTC)
	var slept []time.Duration
	s.now = func() time.Time { return clock }
	s.sleep = func(ctx context.Context, d time.Duration) error {
		if len(slept) == 3 {
			return context.Canceled
		}
		slept = append(slept, d)
		clock = clock.Add(d)
		return nil
	}

	var runs int
	s.loop(context.Background(), time.Hour, "test", func(context.Context) {
		runs++
		clock = clock.Add(7 * time.Second) // refresh work takes time
	})

	require.Equal(t, 3, runs)
	require.Equal(t, 1504*time.Second, slept[0], "first sleep lands on the next hour mark")
	// Work completed 7s past the boundary, so the next sleep is
	// cadence minus that overrun, not a full cadence from completion.
	require.Equal(t, time.Hour-7*time.Second, slept[1])
	require.Equal(t, time.Hour-7*time.Second, slept[2])
}

func TestLoop_RetriesWhileDisconnected(t *testing.T) {
	chat := &fakeChat{disconnected: true}
	s, _ := newTestScheduler(t, &fakeSource{}, chat)

	clock := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	var slept []time.Duration
	s.now = func() time.Time { return clock }
	s.sleep = func(ctx context.Context, d time.Duration) error {
		if len(slept) == 3 {
			return context.Canceled // one late run is enough for this test
		}
		slept = append(slept, d)
		clock = clock.Add(d)
		if len(slept) == 3 {
			// Connectivity returns during the second retry sleep.
			chat.mu.Lock()
			chat.disconnected = false
			chat.mu.Unlock()
		}
		return nil
	}

	var runs int
	s.loop(context.Background(), time.Hour, "test", func(context.Context) { runs++ })

	require.Equal(t, 1, runs, "the late refresh still runs once connectivity returns")
	require.Equal(t, []time.Duration{time.Hour, 180 * time.Second, 180 * time.Second}, slept,
		"boundary sleep, then fixed-interval retries until reconnect")
}

func TestRefreshVoice_SortedByMarketCap(t *testing.T) {
	src := &fakeSource{quotes: marketQuotes()}
	chat := &fakeChat{}
	s, reg := newTestScheduler(t, src, chat)

	require.NoError(t, reg.Update(42, func(c *tenant.Config) {
		c.APIKey = "key-t"
		c.UpdateCategory = 900
		c.AddVoiceTicker("ETH")
		c.AddVoiceTicker("BTC")
	}))

	s.RefreshVoice(context.Background())

	require.Len(t, chat.replaced, 1)
	call := chat.replaced[0]
	require.Equal(t, int64(42), call.guildID)
	require.Equal(t, int64(900), call.categoryID)
	require.Equal(t, []string{"BTC 📈 $64000", "ETH 📉 $3200"}, call.names,
		"largest market cap first, regardless of tracked order")
}

func TestRefreshVoice_SkipsUnusableTenants(t *testing.T) {
	src := &fakeSource{quotes: marketQuotes()}
	chat := &fakeChat{}
	s, reg := newTestScheduler(t, src, chat)

	// No credential: no network calls, no output.
	require.NoError(t, reg.Update(1, func(c *tenant.Config) {
		c.UpdateCategory = 900
		c.AddVoiceTicker("BTC")
	}))
	// No category: nothing to rename.
	require.NoError(t, reg.Update(2, func(c *tenant.Config) {
		c.APIKey = "key-2"
		c.AddVoiceTicker("BTC")
	}))
	// Fully configured: refreshes normally.
	require.NoError(t, reg.Update(3, func(c *tenant.Config) {
		c.APIKey = "key-3"
		c.UpdateCategory = 901
		c.AddVoiceTicker("BTC")
	}))

	s.RefreshVoice(context.Background())

	require.Equal(t, []string{"key-3"}, src.keys, "only the usable tenant touches the network")
	require.Len(t, chat.replaced, 1)
	require.Equal(t, int64(3), chat.replaced[0].guildID)
}

func TestRefreshMessages_DirectAndRatio(t *testing.T) {
	src := &fakeSource{quotes: marketQuotes()}
	chat := &fakeChat{}
	s, reg := newTestScheduler(t, src, chat)

	require.NoError(t, reg.Update(7, func(c *tenant.Config) {
		c.APIKey = "key"
		c.MessageTickers = map[string]int64{"BTC": 100}
		c.RatioTickers = map[string]int64{tenant.PairKey("ETH", "BTC"): 200}
	}))

	s.RefreshMessages(context.Background(), true, true)

	require.Len(t, chat.sent, 2)
	require.Equal(t, int64(100), chat.sent[0].channelID)
	require.Contains(t, chat.sent[0].content, "The price of Bitcoin (BTC)")
	require.Equal(t, int64(200), chat.sent[1].channelID)
	require.Contains(t, chat.sent[1].content, "The swap rate of ETH:BTC is 20:1")
}

func TestRefreshMessages_RatioSentinelOnZeroBase(t *testing.T) {
	src := &fakeSource{quotes: marketQuotes()}
	chat := &fakeChat{}
	s, reg := newTestScheduler(t, src, chat)

	require.NoError(t, reg.Update(7, func(c *tenant.Config) {
		c.APIKey = "key"
		c.RatioTickers = map[string]int64{tenant.PairKey("ZERO", "BTC"): 200}
	}))

	s.RefreshMessages(context.Background(), false, true)

	require.Len(t, chat.sent, 1)
	require.Contains(t, chat.sent[0].content, "N/A:1")
}

func TestRefreshMessages_MissingPairSymbolSkipsQuietly(t *testing.T) {
	src := &fakeSource{quotes: marketQuotes()}
	chat := &fakeChat{}
	s, reg := newTestScheduler(t, src, chat)

	require.NoError(t, reg.Update(7, func(c *tenant.Config) {
		c.APIKey = "key"
		c.RatioTickers = map[string]int64{tenant.PairKey("GONE", "BTC"): 200}
	}))

	s.RefreshMessages(context.Background(), false, true)
	require.Empty(t, chat.sent)
}

func TestRefresh_OneGuildFailureDoesNotBlockOthers(t *testing.T) {
	src := &fakeSource{quotes: marketQuotes()}
	chat := &fakeChat{missing: map[int64]bool{1: true}}
	s, reg := newTestScheduler(t, src, chat)

	for _, id := range []int64{1, 2} {
		require.NoError(t, reg.Update(id, func(c *tenant.Config) {
			c.APIKey = "key"
			c.UpdateCategory = 900
			c.AddVoiceTicker("BTC")
		}))
	}

	s.RefreshVoice(context.Background())

	require.Len(t, chat.replaced, 1)
	require.Equal(t, int64(2), chat.replaced[0].guildID)
}

func TestRefreshMessages_SendErrorIsNotFatal(t *testing.T) {
	src := &fakeSource{quotes: marketQuotes()}
	chat := &fakeChat{sendErr: errors.New("channel deleted")}
	s, reg := newTestScheduler(t, src, chat)

	require.NoError(t, reg.Update(7, func(c *tenant.Config) {
		c.APIKey = "key"
		c.MessageTickers = map[string]int64{"BTC": 100, "ETH": 101}
	}))

	require.NotPanics(t, func() { s.RefreshMessages(context.Background(), true, false) })
}
