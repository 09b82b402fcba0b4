package rules

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sgerhart/authwatch/internal/model"
)

// AlertSubject is the NATS subject alerts are published on.
const AlertSubject = "authwatch.alerts"

// Retry policy for batch publishing. Kept short so a flaky broker
// cannot stall the tick loop for long.
const (
	publishRetries    = 2
	publishRetryDelay = 200 * time.Millisecond
)

// AlertPublisher pushes fired alerts onto NATS for downstream consumers.
// Publishing is fire-and-forget per tick; the engine itself never talks
// to the network.
type AlertPublisher struct {
	natsConn *nats.Conn
	logger   *slog.Logger
}

// NewAlertPublisher creates a publisher on an established connection.
func NewAlertPublisher(natsConn *nats.Conn, logger *slog.Logger) *AlertPublisher {
	return &AlertPublisher{
		natsConn: natsConn,
		logger:   logger,
	}
}

// PublishAlert publishes a single alert with identifying headers.
func (p *AlertPublisher) PublishAlert(alert *model.Alert) error {
	if p.natsConn == nil || !p.natsConn.IsConnected() {
		return fmt.Errorf("NATS connection not available")
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	headers := nats.Header{}
	headers.Set("x-alert-id", alert.ID)
	headers.Set("x-rule-id", alert.RuleID)
	headers.Set("x-severity", string(alert.Severity))
	headers.Set("x-subject-key", alert.Subject)

	msg := &nats.Msg{
		Subject: AlertSubject,
		Data:    payload,
		Header:  headers,
	}
	if err := p.natsConn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	p.logger.Info("published alert",
		"alert_id", alert.ID,
		"rule_id", alert.RuleID,
		"severity", alert.Severity,
		"subject", AlertSubject)
	return nil
}

// PublishAlerts publishes a batch, retrying each alert and continuing
// past individual failures.
func (p *AlertPublisher) PublishAlerts(alerts []model.Alert) error {
	var failed int
	for i := range alerts {
		if err := p.PublishAlertWithRetry(&alerts[i], publishRetries, publishRetryDelay); err != nil {
			failed++
			p.logger.Warn("alert publish failed",
				"alert_id", alerts[i].ID, "error", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to publish %d of %d alerts", failed, len(alerts))
	}
	return nil
}

// PublishAlertWithRetry retries a single alert with a fixed delay.
func (p *AlertPublisher) PublishAlertWithRetry(alert *model.Alert, maxRetries int, retryDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := p.PublishAlert(alert); err != nil {
			lastErr = err
			if attempt < maxRetries {
				time.Sleep(retryDelay)
				continue
			}
		} else {
			return nil
		}
	}
	return fmt.Errorf("failed to publish alert after %d attempts: %w", maxRetries+1, lastErr)
}
