package rules

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgerhart/authwatch/internal/config"
	"github.com/sgerhart/authwatch/internal/model"
	"github.com/sgerhart/authwatch/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Sources:               map[string]string{"auth": "/var/log/auth.log"},
		FailedLoginThreshold:  20,
		FailedLoginWindowSec:  300,
		SuspiciousIPThreshold: 10,
		ErrorRateThreshold:    10,
		ErrorRateWindowSec:    60,
		MaxAlerts:             3,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(cfg *config.Config) (*Engine, *store.EventStore) {
	s := store.New(1000)
	l := store.NewAlertLog(100, 1000)
	return NewEngine(cfg, s, l, nil, testLogger()), s
}

func ingestFailures(s *store.EventStore, ip string, n int, now time.Time) {
	for i := 0; i < n; i++ {
		s.Ingest(&model.AuthEvent{
			Timestamp: now.Add(-time.Duration(i) * time.Second),
			Host:      "host",
			Program:   "sshd",
			User:      "root",
			SourceIP:  ip,
			Outcome:   model.OutcomeFailed,
		})
	}
}

// Boundary test: at threshold-1 the brute-force rule must stay silent;
// at the threshold it must fire.
func TestBruteForce_ThresholdBoundary(t *testing.T) {
	now := time.Now()

	engine, s := newTestEngine(testConfig())
	ingestFailures(s, "192.168.1.100", 19, now)
	alerts := engine.Evaluate(now)
	for _, a := range alerts {
		assert.NotEqual(t, RuleBruteForce, a.RuleID, "19 failures must not trip brute force")
	}

	engine, s = newTestEngine(testConfig())
	ingestFailures(s, "192.168.1.100", 20, now)
	alerts = engine.Evaluate(now)

	require.NotEmpty(t, alerts)
	top := alerts[0]
	assert.Equal(t, RuleBruteForce, top.RuleID)
	assert.Equal(t, model.SeverityDanger, top.Severity)
	assert.Equal(t, "192.168.1.100", top.Subject)
	assert.Equal(t, 20, top.Count)
	assert.Equal(t, "Possible brute force from 192.168.1.100 (20 attempts)", top.Message)
}

func TestBruteForce_IgnoresFailuresOutsideWindow(t *testing.T) {
	now := time.Now()
	engine, s := newTestEngine(testConfig())

	for i := 0; i < 25; i++ {
		s.Ingest(&model.AuthEvent{
			Timestamp: now.Add(-10 * time.Minute),
			SourceIP:  "192.168.1.100",
			User:      "root",
			Outcome:   model.OutcomeFailed,
		})
	}

	for _, a := range engine.Evaluate(now) {
		assert.NotEqual(t, RuleBruteForce, a.RuleID)
	}
}

func TestErrorRate_GlobalAlert(t *testing.T) {
	now := time.Now()
	cfg := testConfig()
	cfg.FailedLoginThreshold = 100 // keep brute force out of the way
	cfg.SuspiciousIPThreshold = 99
	engine, s := newTestEngine(cfg)

	// Ten failures inside the minute, spread over distinct IPs.
	for i := 0; i < 10; i++ {
		s.Ingest(&model.AuthEvent{
			Timestamp: now.Add(-time.Duration(i) * time.Second),
			SourceIP:  fmt.Sprintf("10.0.0.%d", i),
			User:      "root",
			Outcome:   model.OutcomeFailed,
		})
	}

	alerts := engine.Evaluate(now)
	require.Len(t, alerts, 1)
	assert.Equal(t, RuleErrorRate, alerts[0].RuleID)
	assert.Equal(t, model.SeverityWarning, alerts[0].Severity)
	assert.Equal(t, "10 failed logins in 1 min", alerts[0].Message)
}

func TestSuspiciousIP_BetweenThresholds(t *testing.T) {
	now := time.Now()
	engine, s := newTestEngine(testConfig())
	ingestFailures(s, "203.0.113.7", 12, now)

	alerts := engine.Evaluate(now)
	require.NotEmpty(t, alerts)

	var suspicious *model.Alert
	for i := range alerts {
		if alerts[i].RuleID == RuleSuspiciousIP {
			suspicious = &alerts[i]
		}
		assert.NotEqual(t, RuleBruteForce, alerts[i].RuleID)
	}
	require.NotNil(t, suspicious)
	assert.Equal(t, model.SeverityWarning, suspicious.Severity)
	assert.Equal(t, "203.0.113.7", suspicious.Subject)
	assert.Equal(t, 12, suspicious.Count)
}

// An IP past the brute-force threshold gets the danger alert only, not a
// second suspicious-IP warning for the same condition.
func TestSuspiciousIP_SilentOncePastBruteForce(t *testing.T) {
	now := time.Now()
	engine, s := newTestEngine(testConfig())
	ingestFailures(s, "203.0.113.7", 25, now)

	for _, a := range engine.Evaluate(now) {
		assert.NotEqual(t, RuleSuspiciousIP, a.RuleID)
	}
}

// Exactly at the suspicious threshold the rule stays silent: the count
// must exceed it.
func TestSuspiciousIP_ExclusiveLowerBound(t *testing.T) {
	now := time.Now()
	engine, s := newTestEngine(testConfig())
	ingestFailures(s, "203.0.113.7", 10, now)

	for _, a := range engine.Evaluate(now) {
		assert.NotEqual(t, RuleSuspiciousIP, a.RuleID)
	}
}

func TestEvaluate_SeverityOrderAndTruncation(t *testing.T) {
	now := time.Now()
	cfg := testConfig()
	cfg.MaxAlerts = 3
	engine, s := newTestEngine(cfg)

	// Two brute-force IPs, several suspicious ones, plus the global
	// error rate: far more candidate alerts than the cap.
	ingestFailures(s, "1.1.1.1", 21, now)
	ingestFailures(s, "2.2.2.2", 22, now)
	ingestFailures(s, "3.3.3.3", 12, now)
	ingestFailures(s, "4.4.4.4", 13, now)

	alerts := engine.Evaluate(now)
	require.Len(t, alerts, 3)

	assert.Equal(t, RuleBruteForce, alerts[0].RuleID)
	assert.Equal(t, RuleBruteForce, alerts[1].RuleID)
	assert.Equal(t, "1.1.1.1", alerts[0].Subject, "ties break by key order")
	assert.Equal(t, "2.2.2.2", alerts[1].Subject)
	assert.Equal(t, model.SeverityDanger, alerts[0].Severity)
	assert.Equal(t, model.SeverityWarning, alerts[2].Severity)
}

func TestEvaluate_Deterministic(t *testing.T) {
	now := time.Now()
	cfg := testConfig()
	engine, s := newTestEngine(cfg)
	ingestFailures(s, "5.5.5.5", 21, now)
	ingestFailures(s, "6.6.6.6", 21, now)

	first := engine.Evaluate(now)
	second := engine.Evaluate(now)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].RuleID, second[i].RuleID)
		assert.Equal(t, first[i].Subject, second[i].Subject)
		assert.Equal(t, first[i].Message, second[i].Message)
	}
}

func TestEvaluate_CooldownSuppressesRefire(t *testing.T) {
	now := time.Now()
	cfg := testConfig()
	cfg.AlertCooldownSec = 60
	engine, s := newTestEngine(cfg)
	ingestFailures(s, "7.7.7.7", 21, now)

	first := engine.Evaluate(now)
	require.NotEmpty(t, first)

	second := engine.Evaluate(now.Add(2 * time.Second))
	assert.Empty(t, second, "within cooldown the same alerts stay silent")

	third := engine.Evaluate(now.Add(2 * time.Minute))
	// The failures are still inside the 300s window, so once the
	// cooldown lapses the condition fires again.
	require.NotEmpty(t, third)
	assert.Equal(t, RuleBruteForce, third[0].RuleID)
}

// Truncated candidates must not consume their cooldown: with room for
// one alert per tick and two brute-force IPs, the second IP surfaces on
// the next tick instead of staying silent for the whole cooldown.
func TestEvaluate_TruncationDoesNotConsumeCooldown(t *testing.T) {
	now := time.Now()
	cfg := testConfig()
	cfg.AlertCooldownSec = 300
	cfg.MaxAlerts = 1
	engine, s := newTestEngine(cfg)

	ingestFailures(s, "1.1.1.1", 21, now)
	ingestFailures(s, "2.2.2.2", 21, now)

	first := engine.Evaluate(now)
	require.Len(t, first, 1)
	assert.Equal(t, RuleBruteForce, first[0].RuleID)
	assert.Equal(t, "1.1.1.1", first[0].Subject)

	second := engine.Evaluate(now.Add(2 * time.Second))
	require.Len(t, second, 1)
	assert.Equal(t, RuleBruteForce, second[0].RuleID)
	assert.Equal(t, "2.2.2.2", second[0].Subject)
}

func TestEvaluate_PrunesBeforeRules(t *testing.T) {
	now := time.Now()
	engine, s := newTestEngine(testConfig())

	ingestFailures(s, "8.8.8.8", 21, now.Add(-20*time.Minute))
	assert.Empty(t, engine.Evaluate(now))

	counts := s.IPFailureCounts(now, time.Hour)
	assert.Empty(t, counts, "evaluation prunes aged-out keys")
}

func TestReconfigure_AppliesNewThresholds(t *testing.T) {
	now := time.Now()
	cfg := testConfig()
	engine, s := newTestEngine(cfg)
	ingestFailures(s, "9.9.9.9", 15, now)

	for _, a := range engine.Evaluate(now) {
		assert.NotEqual(t, RuleBruteForce, a.RuleID)
	}

	next := testConfig()
	next.FailedLoginThreshold = 15
	next.SuspiciousIPThreshold = 5
	engine.Reconfigure(next)

	alerts := engine.Evaluate(now)
	require.NotEmpty(t, alerts)
	assert.Equal(t, RuleBruteForce, alerts[0].RuleID)
	assert.Equal(t, 15, alerts[0].Count)
}

func TestFormatWindow(t *testing.T) {
	assert.Equal(t, "1 min", formatWindow(time.Minute))
	assert.Equal(t, "5 min", formatWindow(5*time.Minute))
	assert.Equal(t, "90 sec", formatWindow(90*time.Second))
}
