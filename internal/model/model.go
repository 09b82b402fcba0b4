package model

import (
	"time"
)

// Outcome classifies an authentication log line.
type Outcome string

const (
	OutcomeFailed           Outcome = "failed"
	OutcomeAccepted         Outcome = "accepted"
	OutcomePermissionDenied Outcome = "permission-denied"
	OutcomeAuthFailure      Outcome = "auth-failure"
	OutcomeInvalidUser      Outcome = "invalid-user"
	OutcomeIllegalUser      Outcome = "illegal-user"
	OutcomeSudoCommand      Outcome = "sudo-command"
)

// Severity ranks an alert. Danger sorts before warning.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

// AuthEvent is a single parsed authentication event. Immutable once created.
type AuthEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Host      string    `json:"host"`
	Program   string    `json:"program"`
	PID       int       `json:"pid,omitempty"`
	User      string    `json:"user,omitempty"`
	SourceIP  string    `json:"source_ip,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	RawMsg    string    `json:"raw_msg"`
}

// Alert is an ephemeral alert instance produced by one evaluation tick.
// Alerts are not persisted and, unless a cooldown is configured, the same
// condition fires again on every tick while it holds.
type Alert struct {
	ID       string    `json:"id"`
	RuleID   string    `json:"rule_id"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	Subject  string    `json:"subject,omitempty"`
	Count    int       `json:"count"`
	FiredAt  time.Time `json:"fired_at"`
}

// KeyCount is one entry of a top-N counter query.
type KeyCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Summary is the presentation-ready snapshot consumed by renderers.
type Summary struct {
	TotalParsed    uint64         `json:"total_parsed"`
	TotalUnparsed  uint64         `json:"total_unparsed"`
	TotalFailed    uint64         `json:"total_failed"`
	TotalSucceeded uint64         `json:"total_succeeded"`
	TopIPs         []KeyCount     `json:"top_ips"`
	TopUsers       []KeyCount     `json:"top_users"`
	ErrorTypes     map[string]int `json:"error_types"`
	Alerts         []Alert        `json:"alerts"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

// SeverityRank maps a severity to a sortable level, highest most severe.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityDanger:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}
