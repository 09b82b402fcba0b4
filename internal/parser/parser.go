package parser

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sgerhart/authwatch/internal/model"
)

// ErrNoMatch marks a line that no pattern classified. The caller counts
// these; no partial fields are ever produced.
var ErrNoMatch = errors.New("line matched no pattern")

// Example auth log lines:
// Jan 22 10:15:01 host sshd[1234]: Failed password for invalid user admin from 192.168.1.100 port 40812 ssh2
// Jan 22 10:15:03 host sshd[1240]: Accepted publickey for deploy from 10.0.0.5 port 51044 ssh2
// Jan 22 10:16:40 host sudo:   alice : TTY=pts/0 ; PWD=/home/alice ; USER=root ; COMMAND=/usr/bin/apt update
// Jan 22 10:17:02 host sshd[1301]: pam_unix(sshd:auth): authentication failure; logname= uid=0
var prefixRe = regexp.MustCompile(`^(\w{3}\s+\d+\s+\d{2}:\d{2}:\d{2})\s+(\S+)\s+([\w./-]+)(?:\[(\d+)\])?:\s+(.*)$`)

// pattern classifies a message body. Patterns are tried in priority
// order and the first structural match wins, so "Failed password" is
// classified before the generic substring fallbacks below it.
type pattern struct {
	re      *regexp.Regexp
	outcome model.Outcome
	user    int // submatch index, 0 = none
	ip      int
}

// Parser applies a fixed, precompiled pattern table to log lines. It has
// no mutable state; Parse is safe for concurrent use.
type Parser struct {
	patterns []pattern
	now      func() time.Time
}

// New builds a parser with the authentication pattern table.
func New() *Parser {
	return &Parser{
		patterns: []pattern{
			{
				re:      regexp.MustCompile(`^Failed password for (?:invalid user )?(\S+) from (\S+)`),
				outcome: model.OutcomeFailed,
				user:    1,
				ip:      2,
			},
			{
				re:      regexp.MustCompile(`^Accepted (?:password|publickey) for (\S+) from (\S+)`),
				outcome: model.OutcomeAccepted,
				user:    1,
				ip:      2,
			},
			{
				re:      regexp.MustCompile(`^\s*(\S+) : .*COMMAND=`),
				outcome: model.OutcomeSudoCommand,
				user:    1,
			},
			{
				re:      regexp.MustCompile(`(?i)invalid user (\S+)`),
				outcome: model.OutcomeInvalidUser,
				user:    1,
			},
			{
				re:      regexp.MustCompile(`(?i)illegal user (\S+)`),
				outcome: model.OutcomeIllegalUser,
				user:    1,
			},
			{
				re:      regexp.MustCompile(`(?i)authentication failure`),
				outcome: model.OutcomeAuthFailure,
			},
			{
				re:      regexp.MustCompile(`(?i)permission denied`),
				outcome: model.OutcomePermissionDenied,
			},
		},
		now: time.Now,
	}
}

// Parse classifies one syslog-style line into an AuthEvent, or returns
// ErrNoMatch when no pattern applies.
func (p *Parser) Parse(line string) (*model.AuthEvent, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, ErrNoMatch
	}

	m := prefixRe.FindStringSubmatch(line)
	if m == nil {
		return nil, ErrNoMatch
	}
	msg := m[5]

	for _, pat := range p.patterns {
		sub := pat.re.FindStringSubmatch(msg)
		if sub == nil {
			continue
		}

		ts, err := parseTimestamp(m[1], p.now())
		if err != nil {
			return nil, ErrNoMatch
		}

		ev := &model.AuthEvent{
			Timestamp: ts,
			Host:      m[2],
			Program:   m[3],
			Outcome:   pat.outcome,
			RawMsg:    msg,
		}
		if m[4] != "" {
			ev.PID, _ = strconv.Atoi(m[4])
		}
		if pat.user > 0 && pat.user < len(sub) {
			ev.User = sub[pat.user]
		}
		if pat.ip > 0 && pat.ip < len(sub) {
			ev.SourceIP = sub[pat.ip]
		}
		return ev, nil
	}

	return nil, ErrNoMatch
}

// parseTimestamp handles the yearless syslog timestamp. The current year
// is assumed; a date that lands more than a day in the future is rolled
// back one year to cope with reading December entries in January.
// Known limitation: entries older than a year are still stamped with the
// most recent plausible year, since the log carries no year at all.
func parseTimestamp(text string, now time.Time) (time.Time, error) {
	t, err := time.ParseInLocation("Jan _2 15:04:05", text, time.Local)
	if err != nil {
		return time.Time{}, err
	}
	ts := time.Date(now.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.Local)
	if ts.After(now.Add(24 * time.Hour)) {
		ts = ts.AddDate(-1, 0, 0)
	}
	return ts, nil
}
