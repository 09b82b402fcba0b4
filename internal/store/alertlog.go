package store

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sgerhart/authwatch/internal/model"
)

// AlertLog keeps a bounded history of fired alerts plus an LRU cooldown
// cache keyed by rule and subject. The history is presentation-only;
// alert delivery guarantees are out of scope.
type AlertLog struct {
	mu       sync.RWMutex
	history  *Ring[model.Alert]
	cooldown *lru.Cache[string, time.Time]
}

// NewAlertLog creates an alert log retaining historySize alerts and
// tracking cooldown state for up to cooldownCap rule/subject pairs.
func NewAlertLog(historySize, cooldownCap int) *AlertLog {
	cache, _ := lru.New[string, time.Time](cooldownCap)
	return &AlertLog{
		history:  NewRing[model.Alert](historySize),
		cooldown: cache,
	}
}

// CanFire reports whether an alert for the given rule/subject key is
// outside its cooldown at now, without consuming it. A zero cooldown
// means alerts re-fire on every evaluation tick while their condition
// holds.
func (l *AlertLog) CanFire(key string, now time.Time, cooldown time.Duration) bool {
	if cooldown <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	last, ok := l.cooldown.Get(key)
	return !ok || now.Sub(last) >= cooldown
}

// MarkFired stamps the cooldown cache for an alert that was actually
// presented. Candidates dropped before presentation are never stamped,
// so they can still surface on a later tick.
func (l *AlertLog) MarkFired(key string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cooldown.Add(key, now)
}

// Record appends fired alerts to the bounded history.
func (l *AlertLog) Record(alerts []model.Alert) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range alerts {
		l.history.Add(a)
	}
}

// Recent returns up to limit retained alerts, newest first. A non
// positive limit returns the whole history.
func (l *AlertLog) Recent(limit int) []model.Alert {
	l.mu.RLock()
	defer l.mu.RUnlock()

	all := l.history.Values()
	out := make([]model.Alert, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// Len reports how many alerts the history currently holds.
func (l *AlertLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.history.Len()
}
