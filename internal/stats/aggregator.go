package stats

import (
	"sync"
	"time"

	"github.com/sgerhart/authwatch/internal/model"
	"github.com/sgerhart/authwatch/internal/store"
)

// topListSize caps the IP and user top lists in the summary.
const topListSize = 10

// Aggregator derives presentation-ready summaries from the event store.
// It never mutates counters; the prune it issues is idempotent against
// the one the alert engine already ran this tick.
type Aggregator struct {
	mu        sync.RWMutex
	store     *store.EventStore
	retention time.Duration
	latest    model.Summary
}

// New creates an aggregator over the given store.
func New(s *store.EventStore, retention time.Duration) *Aggregator {
	return &Aggregator{store: s, retention: retention}
}

// SetRetention updates the prune window, used on config hot reload.
func (a *Aggregator) SetRetention(retention time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.retention = retention
}

// Refresh recomputes the summary from the store plus the current tick's
// alert list and stores it as the published snapshot.
func (a *Aggregator) Refresh(now time.Time, alerts []model.Alert) model.Summary {
	a.mu.RLock()
	retention := a.retention
	a.mu.RUnlock()

	a.store.Prune(now, retention)

	parsed, unparsed, failed, succeeded := a.store.Totals()
	summary := model.Summary{
		TotalParsed:    parsed,
		TotalUnparsed:  unparsed,
		TotalFailed:    failed,
		TotalSucceeded: succeeded,
		TopIPs:         a.store.TopN(store.IPFailures, topListSize),
		TopUsers:       a.store.TopN(store.UserFailures, topListSize),
		ErrorTypes:     a.store.ErrorTypes(),
		Alerts:         append([]model.Alert{}, alerts...),
		GeneratedAt:    now,
	}

	a.mu.Lock()
	a.latest = summary
	a.mu.Unlock()

	return summary
}

// Snapshot returns the most recently published summary. The copy means
// consumers can never observe a half-updated tick.
func (a *Aggregator) Snapshot() model.Summary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latest
}
