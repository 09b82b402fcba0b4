package rules

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/sgerhart/authwatch/internal/model"
	"github.com/sgerhart/authwatch/internal/store"
)

// Rule IDs, also used as cooldown key prefixes and metric labels.
const (
	RuleBruteForce   = "brute-force"
	RuleErrorRate    = "error-rate"
	RuleSuspiciousIP = "suspicious-ip"
)

// Rule is a stateless predicate evaluated against a pruned event store
// snapshot once per tick.
type Rule interface {
	ID() string
	Evaluate(s *store.EventStore, now time.Time) []model.Alert
}

// BruteForceRule fires a danger alert for every IP whose failure count
// within the window reaches the threshold.
type BruteForceRule struct {
	Threshold int
	Window    time.Duration
}

// ID returns the rule identifier.
func (r *BruteForceRule) ID() string { return RuleBruteForce }

// Evaluate emits one alert per offending IP, in deterministic key order.
func (r *BruteForceRule) Evaluate(s *store.EventStore, now time.Time) []model.Alert {
	counts := s.IPFailureCounts(now, r.Window)

	var alerts []model.Alert
	for _, ip := range sortedKeys(counts) {
		count := counts[ip]
		if count < r.Threshold {
			continue
		}
		alerts = append(alerts, newAlert(RuleBruteForce, model.SeverityDanger, ip, count, now,
			fmt.Sprintf("Possible brute force from %s (%d attempts)", ip, count)))
	}
	return alerts
}

// ErrorRateRule fires a single warning alert when the total failed-login
// count across all sources within the window reaches the threshold.
type ErrorRateRule struct {
	Threshold int
	Window    time.Duration
}

// ID returns the rule identifier.
func (r *ErrorRateRule) ID() string { return RuleErrorRate }

// Evaluate emits at most one global alert.
func (r *ErrorRateRule) Evaluate(s *store.EventStore, now time.Time) []model.Alert {
	count := s.FailureCountSince(now, r.Window)
	if count < r.Threshold {
		return nil
	}
	return []model.Alert{newAlert(RuleErrorRate, model.SeverityWarning, "", count, now,
		fmt.Sprintf("%d failed logins in %s", count, formatWindow(r.Window)))}
}

// SuspiciousIPRule gives an earlier, lower-severity signal for IPs whose
// failure count exceeds its threshold but has not yet crossed the brute
// force threshold.
type SuspiciousIPRule struct {
	Threshold      int
	BruteThreshold int
	Window         time.Duration
}

// ID returns the rule identifier.
func (r *SuspiciousIPRule) ID() string { return RuleSuspiciousIP }

// Evaluate emits one alert per IP sitting between the two thresholds.
func (r *SuspiciousIPRule) Evaluate(s *store.EventStore, now time.Time) []model.Alert {
	counts := s.IPFailureCounts(now, r.Window)

	var alerts []model.Alert
	for _, ip := range sortedKeys(counts) {
		count := counts[ip]
		if count <= r.Threshold || count >= r.BruteThreshold {
			continue
		}
		alerts = append(alerts, newAlert(RuleSuspiciousIP, model.SeverityWarning, ip, count, now,
			fmt.Sprintf("Suspicious activity from %s (%d failed attempts)", ip, count)))
	}
	return alerts
}

func newAlert(ruleID string, severity model.Severity, subject string, count int, now time.Time, message string) model.Alert {
	return model.Alert{
		ID:       uuid.New().String(),
		RuleID:   ruleID,
		Severity: severity,
		Message:  message,
		Subject:  subject,
		Count:    count,
		FiredAt:  now,
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatWindow renders a window for alert text, preferring whole minutes
// so the default reads "1 min".
func formatWindow(w time.Duration) string {
	if w >= time.Minute && w%time.Minute == 0 {
		return fmt.Sprintf("%d min", int(w/time.Minute))
	}
	return fmt.Sprintf("%d sec", int(w/time.Second))
}
