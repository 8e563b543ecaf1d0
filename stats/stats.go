// Package stats maintains the cached guild/user population totals gathered
// from every gateway shard.
package stats

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"jubilee/discord"
)

// Counters is the process-wide cached population snapshot. Readers tolerate
// up to one refresh cycle of staleness.
type Counters struct {
	GuildCount int
	UserCount  int
	CapturedAt time.Time
}

// ShardCounter reports per-shard population counts. All shards answer or
// the whole call fails.
type ShardCounter interface {
	MemberCountsPerShard() ([]discord.ShardCount, error)
}

// Tracker refreshes and serves the cached counters.
type Tracker struct {
	counter ShardCounter
	log     zerolog.Logger
	now     func() time.Time

	mu      sync.RWMutex
	current Counters
}

// NewTracker wires a tracker around the given shard counter.
func NewTracker(counter ShardCounter, log zerolog.Logger) *Tracker {
	return &Tracker{
		counter: counter,
		log:     log.With().Str("component", "stats").Logger(),
		now:     time.Now,
	}
}

// Refresh gathers counts from every shard and atomically replaces the
// cached value. If any shard fails, the previous snapshot is kept and no
// partial sum is published.
func (t *Tracker) Refresh() error {
	counts, err := t.counter.MemberCountsPerShard()
	if err != nil {
		return fmt.Errorf("count members per shard: %w", err)
	}

	next := Counters{CapturedAt: t.now()}
	for _, count := range counts {
		next.GuildCount += count.Guilds
		next.UserCount += count.Members
	}

	t.mu.Lock()
	t.current = next
	t.mu.Unlock()

	t.log.Debug().
		Int("guilds", next.GuildCount).
		Int("users", next.UserCount).
		Msg("counters refreshed")
	return nil
}

// Current returns the cached counters. A zero CapturedAt means no refresh
// has succeeded yet.
func (t *Tracker) Current() Counters {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}
