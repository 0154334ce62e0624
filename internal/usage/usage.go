// Package usage assembles the introspection snapshot that drives the in-app
// usage indicator: per-provider quota state plus cache counters. UI code polls
// this instead of parsing diagnostic output.
package usage

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/finboard/finboard/internal/cache"
	"github.com/finboard/finboard/internal/quota"
)

// Snapshot is the combined read-only view.
type Snapshot struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Providers   []quota.Snapshot `json:"providers"`
	Cache       cache.Metrics    `json:"cache"`
}

// Reporter produces Snapshots from the live trackers and cache.
type Reporter struct {
	cache    *cache.ResponseCache
	trackers []*quota.Tracker
}

// NewReporter wires a Reporter to the shared cache and provider trackers.
func NewReporter(c *cache.ResponseCache, trackers ...*quota.Tracker) *Reporter {
	return &Reporter{cache: c, trackers: trackers}
}

// Snapshot returns the current usage view.
func (r *Reporter) Snapshot() Snapshot {
	snap := Snapshot{
		GeneratedAt: time.Now(),
		Cache:       r.cache.Metrics(),
	}
	for _, t := range r.trackers {
		snap.Providers = append(snap.Providers, t.Snapshot())
	}
	return snap
}

// Handler serves the snapshot as JSON.
func (r *Reporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(r.Snapshot())
	})
}
