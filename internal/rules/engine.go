package rules

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sgerhart/authwatch/internal/config"
	"github.com/sgerhart/authwatch/internal/metrics"
	"github.com/sgerhart/authwatch/internal/model"
	"github.com/sgerhart/authwatch/internal/store"
)

// Engine evaluates the alert rule set against the event store once per
// tick. Rules themselves are stateless; the only state the engine keeps
// across ticks is the cooldown cache inside the alert log.
type Engine struct {
	mu        sync.RWMutex
	rules     []Rule
	maxAlerts int
	cooldown  time.Duration
	retention time.Duration

	store    *store.EventStore
	alertLog *store.AlertLog
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewEngine builds an engine with the three threshold rules configured
// from cfg.
func NewEngine(cfg *config.Config, s *store.EventStore, alertLog *store.AlertLog, m *metrics.Metrics, logger *slog.Logger) *Engine {
	e := &Engine{
		store:    s,
		alertLog: alertLog,
		metrics:  m,
		logger:   logger,
	}
	e.Reconfigure(cfg)
	return e
}

// Reconfigure swaps the rule set and thresholds, used at startup and on
// config hot reload.
func (e *Engine) Reconfigure(cfg *config.Config) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.rules = []Rule{
		&BruteForceRule{
			Threshold: cfg.FailedLoginThreshold,
			Window:    cfg.FailedLoginWindow(),
		},
		&ErrorRateRule{
			Threshold: cfg.ErrorRateThreshold,
			Window:    cfg.ErrorRateWindow(),
		},
		&SuspiciousIPRule{
			Threshold:      cfg.SuspiciousIPThreshold,
			BruteThreshold: cfg.FailedLoginThreshold,
			Window:         cfg.FailedLoginWindow(),
		},
	}
	e.maxAlerts = cfg.MaxAlerts
	e.cooldown = cfg.AlertCooldown()
	e.retention = cfg.RetentionWindow()
}

// Evaluate prunes the store, runs every rule, and returns the surviving
// alerts most severe first, truncated for presentation. Fired alerts are
// recorded in the alert log.
func (e *Engine) Evaluate(now time.Time) []model.Alert {
	e.mu.RLock()
	ruleSet := e.rules
	maxAlerts := e.maxAlerts
	cooldown := e.cooldown
	retention := e.retention
	e.mu.RUnlock()

	e.store.Prune(now, retention)

	var alerts []model.Alert
	for _, rule := range ruleSet {
		alerts = append(alerts, rule.Evaluate(e.store, now)...)
	}

	kept := alerts[:0]
	for _, a := range alerts {
		if e.alertLog.CanFire(cooldownKey(a), now, cooldown) {
			kept = append(kept, a)
			continue
		}
		if e.metrics != nil {
			e.metrics.AlertsSuppressed.Inc()
		}
	}
	alerts = kept

	sortAlerts(alerts)
	if len(alerts) > maxAlerts {
		alerts = alerts[:maxAlerts]
	}

	// Only alerts that survive truncation consume their cooldown; a
	// candidate squeezed out by the cap can fire on the next tick.
	for _, a := range alerts {
		e.alertLog.MarkFired(cooldownKey(a), now)
		if e.metrics != nil {
			e.metrics.AlertsFired.WithLabelValues(a.RuleID, string(a.Severity)).Inc()
		}
		e.logger.Warn("alert fired",
			"rule_id", a.RuleID,
			"severity", a.Severity,
			"subject", a.Subject,
			"count", a.Count,
			"message", a.Message)
	}
	e.alertLog.Record(alerts)

	return alerts
}

func cooldownKey(a model.Alert) string {
	return a.RuleID + ":" + a.Subject
}

// sortAlerts orders alerts most severe first; ties break by rule id and
// then subject key so identical conditions always present identically.
func sortAlerts(alerts []model.Alert) {
	sort.Slice(alerts, func(i, j int) bool {
		ra, rb := model.SeverityRank(alerts[i].Severity), model.SeverityRank(alerts[j].Severity)
		if ra != rb {
			return ra > rb
		}
		if alerts[i].RuleID != alerts[j].RuleID {
			return alerts[i].RuleID < alerts[j].RuleID
		}
		return alerts[i].Subject < alerts[j].Subject
	})
}
