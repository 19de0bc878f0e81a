package quote

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a cached quote stays servable.
const DefaultTTL = 60 * time.Second

// maxFetchRounds bounds how often one Fetch call will go upstream for
// symbols that keep coming back stale (e.g. symbols the upstream does
// not know). One round is the common case; a second happens when a
// caller joins another caller's flight that did not cover its symbols.
const maxFetchRounds = 3

// Source performs the actual upstream fetch for a batch of symbols
// under one credential. Implementations send a single request per call
// and return whatever subset of the requested symbols the upstream had.
type Source interface {
	FetchBatch(ctx context.Context, apiKey string, symbols []string) ([]Quote, error)
}

// cached wraps a Quote with the time its fetch completed.
type cached struct {
	quote      Quote
	observedAt time.Time
}

// partition holds one credential's slice of the cache. Quotes fetched
// under one API key are never served to callers holding a different
// key, even for the same symbol.
type partition struct {
	mu      sync.Mutex // guards entries and pending
	entries map[string]cached
	pending map[string]struct{} // stale symbols awaiting the next flight

	upstreamMu sync.Mutex // at most one upstream call per credential
}

// Store is a TTL quote cache partitioned by API key. Concurrent
// fetches for the same credential are coalesced: callers either join
// an in-flight upstream call and share its result, or serialize behind
// it. A symbol already being fetched is never requested twice.
type Store struct {
	source Source
	ttl    time.Duration
	now    func() time.Time

	mu         sync.Mutex
	partitions map[string]*partition

	sf singleflight.Group // one flight per API key
}

func NewStore(source Source, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		source:     source,
		ttl:        ttl,
		now:        time.Now,
		partitions: make(map[string]*partition),
	}
}

// TTL reports the configured liveness window.
func (s *Store) TTL() time.Duration { return s.ttl }

// Fetch returns quotes for symbols under the given API key. Entries
// younger than the TTL relative to now are served from cache; the rest
// are fetched upstream in one batched call and written back. Symbols
// the upstream does not return are silently omitted. A full upstream
// failure drops the stale portion and still returns whatever was
// cached: the caller never sees an error, only a shorter list.
func (s *Store) Fetch(ctx context.Context, apiKey string, symbols []string, now time.Time) []Quote {
	symbols = NormalizeSymbols(symbols)
	if apiKey == "" || len(symbols) == 0 {
		return nil
	}
	p := s.partition(apiKey)

	covered := make(map[string]bool, len(symbols))
	for round := 0; round < maxFetchRounds; round++ {
		stale := p.enqueueStale(symbols, now, s.ttl, covered)
		if len(stale) == 0 {
			break
		}
		for _, sym := range s.flight(ctx, apiKey, p) {
			covered[sym] = true
		}
	}
	return p.snapshot(symbols, now, s.ttl)
}

// FetchUncached forces a full upstream fetch for the given symbols
// regardless of cache freshness. Results still land in the cache for
// later Fetch calls. Used to verify a ticker exists before an
// administrative change is persisted.
func (s *Store) FetchUncached(ctx context.Context, apiKey string, symbols []string) []Quote {
	symbols = NormalizeSymbols(symbols)
	if apiKey == "" || len(symbols) == 0 {
		return nil
	}
	p := s.partition(apiKey)
	p.upstreamMu.Lock()
	defer p.upstreamMu.Unlock()

	quotes, err := s.source.FetchBatch(ctx, apiKey, symbols)
	if err != nil {
		log.Printf("quote: uncached fetch for %s failed: %v", strings.Join(symbols, ","), err)
		return nil
	}
	p.store(quotes, s.now())
	return quotes
}

// flight runs (or joins) the single upstream call for this API key.
// The owner drains the partition's pending set, so symbols enqueued by
// concurrent callers before the drain ride along in one batch. The
// drained symbol list is shared with every joiner so each caller knows
// which of its symbols were covered.
func (s *Store) flight(ctx context.Context, apiKey string, p *partition) []string {
	v, _, _ := s.sf.Do(apiKey, func() (any, error) {
		p.upstreamMu.Lock()
		defer p.upstreamMu.Unlock()

		batch := p.drainPending()
		if len(batch) == 0 {
			return batch, nil
		}
		log.Printf("quote: fetching %s", strings.Join(batch, ","))
		quotes, err := s.source.FetchBatch(ctx, apiKey, batch)
		if err != nil {
			// Transient upstream failure: the stale portion simply
			// stays missing for this cycle.
			log.Printf("quote: fetch for %s failed: %v", strings.Join(batch, ","), err)
			return batch, nil
		}
		p.store(quotes, s.now())
		return batch, nil
	})
	batch, _ := v.([]string)
	return batch
}

func (s *Store) partition(apiKey string) *partition {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partitions[apiKey]
	if !ok {
		p = &partition{
			entries: make(map[string]cached),
			pending: make(map[string]struct{}),
		}
		s.partitions[apiKey] = p
	}
	return p
}

// enqueueStale adds every requested symbol that is neither fresh nor
// already covered by a previous round to the pending set and returns
// that subset.
func (p *partition) enqueueStale(symbols []string, now time.Time, ttl time.Duration, covered map[string]bool) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var stale []string
	for _, sym := range symbols {
		if covered[sym] {
			continue
		}
		if e, ok := p.entries[sym]; ok && now.Sub(e.observedAt) < ttl {
			continue
		}
		p.pending[sym] = struct{}{}
		stale = append(stale, sym)
	}
	return stale
}

func (p *partition) drainPending() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	batch := make([]string, 0, len(p.pending))
	for sym := range p.pending {
		batch = append(batch, sym)
	}
	clear(p.pending)
	return batch
}

// store writes fetched quotes, keeping observedAt monotonically
// non-decreasing per symbol: a fetch that completed out of order never
// overwrites a newer entry.
func (p *partition) store(quotes []Quote, observedAt time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, q := range quotes {
		if e, ok := p.entries[q.Symbol]; ok && e.observedAt.After(observedAt) {
			continue
		}
		p.entries[q.Symbol] = cached{quote: q, observedAt: observedAt}
	}
}

// snapshot returns the fresh quotes for the requested symbols in
// request order.
func (p *partition) snapshot(symbols []string, now time.Time, ttl time.Duration) []Quote {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Quote, 0, len(symbols))
	for _, sym := range symbols {
		if e, ok := p.entries[sym]; ok && now.Sub(e.observedAt) < ttl {
			out = append(out, e.quote)
		}
	}
	return out
}
