// Package refresh drives the periodic, clock-aligned republishing of
// quotes to each tenant's output surfaces, and hosts the same refresh
// routines for out-of-band (forced) runs.
package refresh

import (
	"context"
	"log"
	"time"

	"pricebot/internal/config"
	"pricebot/internal/quote"
	"pricebot/internal/tenant"
)

// ChatClient is the boundary to the chat platform. Implementations
// report connectivity and perform the two output operations the
// refresh routines need.
type ChatClient interface {
	// Connected reports whether the underlying session is usable.
	Connected() bool
	// HasGuild reports whether the session can currently see a guild.
	HasGuild(guildID int64) bool
	// ReplaceCategoryChannels deletes every voice channel under the
	// category and recreates one per name, in order.
	ReplaceCategoryChannels(ctx context.Context, guildID, categoryID int64, names []string) error
	// SendMessage posts content to a channel.
	SendMessage(ctx context.Context, channelID int64, content string) error
}

// Scheduler owns the refresh loops. One Scheduler serves every cadence;
// each loop runs as its own goroutine via RunVoiceLoop/RunMessageLoop.
type Scheduler struct {
	registry *tenant.Registry
	store    *quote.Store
	chat     ChatClient
	styles   config.Styles

	voiceCadence      time.Duration
	messageCadence    time.Duration
	disconnectedRetry time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(reg *tenant.Registry, store *quote.Store, chat ChatClient, styles config.Styles, cfg config.Refresh) *Scheduler {
	return &Scheduler{
		registry:          reg,
		store:             store,
		chat:              chat,
		styles:            styles,
		voiceCadence:      time.Duration(cfg.VoiceCadenceSec) * time.Second,
		messageCadence:    time.Duration(cfg.MessageCadenceSec) * time.Second,
		disconnectedRetry: time.Duration(cfg.DisconnectedRetrySec) * time.Second,
		now:               time.Now,
		sleep:             sleepCtx,
	}
}

// NextBoundary computes the delay until the next multiple of cadence
// in absolute wall-clock time. Measuring from the clock rather than
// from the previous run keeps firings on predictable marks and free of
// cumulative drift; at an exact boundary the delay is one full cadence.
func NextBoundary(now time.Time, cadence time.Duration) time.Duration {
	rem := time.Duration(now.UnixNano() % int64(cadence))
	return cadence - rem
}

// RunVoiceLoop refreshes voice channels at every voice-cadence
// boundary until ctx is canceled.
func (s *Scheduler) RunVoiceLoop(ctx context.Context) {
	log.Printf("refresh: voice loop started (cadence %s)", s.voiceCadence)
	s.loop(ctx, s.voiceCadence, "voice channel", func(ctx context.Context) {
		s.RefreshVoice(ctx)
	})
}

// RunMessageLoop refreshes message and ratio tickers at every
// message-cadence boundary until ctx is canceled.
func (s *Scheduler) RunMessageLoop(ctx context.Context) {
	log.Printf("refresh: message loop started (cadence %s)", s.messageCadence)
	s.loop(ctx, s.messageCadence, "message ticker", func(ctx context.Context) {
		s.RefreshMessages(ctx, true, true)
	})
}

func (s *Scheduler) loop(ctx context.Context, cadence time.Duration, name string, fn func(ctx context.Context)) {
	for {
		delay := NextBoundary(s.now(), cadence)
		log.Printf("refresh: waiting %s until next %s update", delay.Round(time.Second), name)
		if err := s.sleep(ctx, delay); err != nil {
			return
		}
		// A boundary that fires while the session is down is not
		// skipped: retry on a short interval and run late, then
		// realign on the next natural boundary.
		for !s.chat.Connected() {
			log.Printf("refresh: client disconnected, retrying %s update in %s", name, s.disconnectedRetry)
			if err := s.sleep(ctx, s.disconnectedRetry); err != nil {
				return
			}
		}
		fn(ctx)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
