// Package quota enforces a per-provider soft daily request ceiling with a
// cooldown window after exhaustion. An upstream 429 is authoritative over the
// local estimate and trips the cooldown immediately.
package quota

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/finboard/finboard/internal/observ"
)

// DefaultCooldown is how long local requests stay blocked after exhaustion.
const DefaultCooldown = 30 * time.Minute

// Tracker counts attempted outbound calls per sub-category for one provider.
type Tracker struct {
	mu          sync.Mutex
	provider    string
	softCeiling int
	cooldown    time.Duration

	counts      map[string]int
	total       int
	windowStart time.Time
	exhausted   bool
	exhaustedAt time.Time

	log zerolog.Logger
	now func() time.Time // overridable in tests
}

// Snapshot is a read-only projection of the tracker state, suitable for UI display.
type Snapshot struct {
	Provider          string         `json:"provider"`
	Counts            map[string]int `json:"counts"`
	Total             int            `json:"total"`
	SoftCeiling       int            `json:"soft_ceiling"`
	Remaining         int            `json:"remaining"`
	WindowStart       time.Time      `json:"window_start"`
	Exhausted         bool           `json:"exhausted"`
	ExhaustedAt       time.Time      `json:"exhausted_at,omitzero"`
	CooldownRemaining time.Duration  `json:"cooldown_remaining"`
}

// NewTracker creates a Tracker for one upstream provider.
func NewTracker(provider string, softCeiling int, cooldown time.Duration, log zerolog.Logger) *Tracker {
	if softCeiling <= 0 {
		softCeiling = 250
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Tracker{
		provider:    provider,
		softCeiling: softCeiling,
		cooldown:    cooldown,
		counts:      make(map[string]int),
		log:         log.With().Str("component", "quota_tracker").Str("provider", provider).Logger(),
		now:         time.Now,
	}
}

// TryConsume accounts for one attempted outbound call in the given
// sub-category. It returns false, without mutating counts, when the tracker is
// exhausted and the cooldown has not elapsed. The call that tips the total
// over the soft ceiling is still allowed; subsequent calls are blocked.
func (t *Tracker) TryConsume(subCategory string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.rolloverLocked(now)

	if t.exhausted {
		if now.Sub(t.exhaustedAt) < t.cooldown {
			observ.IncCounter("quota_rejected_total", map[string]string{
				"provider": t.provider, "sub_category": subCategory,
			})
			return false
		}
		t.exhausted = false
		t.exhaustedAt = time.Time{}
		t.log.Info().Msg("cooldown elapsed, requests resumed")
	}

	t.counts[subCategory]++
	t.total++
	observ.IncCounter("quota_consumed_total", map[string]string{
		"provider": t.provider, "sub_category": subCategory,
	})

	if t.total >= t.softCeiling {
		t.exhausted = true
		t.exhaustedAt = now
		t.log.Warn().Int("total", t.total).Int("ceiling", t.softCeiling).
			Msg("soft ceiling reached, entering cooldown")
	}
	return true
}

// Record accounts for one wire attempt without gating. Retries of an already
// admitted call go through here: they still count toward the ceiling (and can
// trip it for future calls) but are never blocked themselves.
func (t *Tracker) Record(subCategory string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rolloverLocked(t.now())
	t.counts[subCategory]++
	t.total++
	observ.IncCounter("quota_consumed_total", map[string]string{
		"provider": t.provider, "sub_category": subCategory,
	})
	if t.total >= t.softCeiling && !t.exhausted {
		t.exhausted = true
		t.exhaustedAt = t.now()
		t.log.Warn().Int("total", t.total).Int("ceiling", t.softCeiling).
			Msg("soft ceiling reached, entering cooldown")
	}
}

// MarkUpstreamRateLimited records an upstream 429 and trips the cooldown
// unconditionally, regardless of local counts.
func (t *Tracker) MarkUpstreamRateLimited() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.exhausted = true
	t.exhaustedAt = t.now()
	observ.IncCounter("quota_upstream_rate_limited_total", map[string]string{"provider": t.provider})
	t.log.Warn().Msg("upstream rate limit reported, entering cooldown")
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	counts := make(map[string]int, len(t.counts))
	for k, v := range t.counts {
		counts[k] = v
	}

	var cooldownRemaining time.Duration
	if t.exhausted {
		if rem := t.cooldown - now.Sub(t.exhaustedAt); rem > 0 {
			cooldownRemaining = rem
		}
	}
	remaining := t.softCeiling - t.total
	if remaining < 0 {
		remaining = 0
	}

	return Snapshot{
		Provider:          t.provider,
		Counts:            counts,
		Total:             t.total,
		SoftCeiling:       t.softCeiling,
		Remaining:         remaining,
		WindowStart:       t.windowStart,
		Exhausted:         t.exhausted,
		ExhaustedAt:       t.exhaustedAt,
		CooldownRemaining: cooldownRemaining,
	}
}

// rolloverLocked resets all state when the counting day has changed.
// Rollover wins over any in-progress cooldown.
func (t *Tracker) rolloverLocked(now time.Time) {
	if t.windowStart.IsZero() {
		t.windowStart = now
		return
	}
	y1, m1, d1 := t.windowStart.Date()
	y2, m2, d2 := now.Date()
	if y1 == y2 && m1 == m2 && d1 == d2 {
		return
	}
	t.counts = make(map[string]int)
	t.total = 0
	t.exhausted = false
	t.exhaustedAt = time.Time{}
	t.windowStart = now
	t.log.Info().Msg("daily window rolled over, counters reset")
}
