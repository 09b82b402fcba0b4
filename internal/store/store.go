package store

import (
	"sort"
	"sync"
	"time"

	"github.com/sgerhart/authwatch/internal/model"
)

// CounterKind selects which windowed counter a TopN query reads.
type CounterKind string

const (
	IPFailures   CounterKind = "ip-failures"
	UserFailures CounterKind = "user-failures"
)

// errorLabels maps outcomes to the lifetime error-type counter labels.
// Accepted logins and sudo invocations are not errors.
var errorLabels = map[model.Outcome]string{
	model.OutcomeFailed:           "failed-password",
	model.OutcomePermissionDenied: "permission-denied",
	model.OutcomeAuthFailure:      "authentication-failure",
	model.OutcomeInvalidUser:      "invalid-user",
	model.OutcomeIllegalUser:      "illegal-user",
}

// EventStore owns all counters and the bounded raw event buffer. One
// logical writer ingests per tick; readers take the lock and copy, so no
// snapshot can be mutated behind a consumer's back.
//
// Ingestion is not deduplicated: feeding the same line twice counts
// twice. Callers that re-read overlapping tail windows must drop lines
// they have already yielded (the log source does this by file offset).
type EventStore struct {
	mu sync.RWMutex

	// Windowed per-key timestamp sequences in ingestion order. With
	// multiple sources fetched in turn, ingestion order is not timestamp
	// order, so window logic must never assume ascending sequences.
	ipFailures    map[string][]time.Time
	userFailures  map[string][]time.Time
	userSuccesses map[string][]time.Time
	allFailures   []time.Time

	errorTypes map[string]int
	recent     *Ring[model.AuthEvent]

	totalParsed    uint64
	totalUnparsed  uint64
	totalFailed    uint64
	totalSucceeded uint64
}

// New creates an event store whose raw event buffer keeps at most
// historySize events.
func New(historySize int) *EventStore {
	return &EventStore{
		ipFailures:    make(map[string][]time.Time),
		userFailures:  make(map[string][]time.Time),
		userSuccesses: make(map[string][]time.Time),
		errorTypes:    make(map[string]int),
		recent:        NewRing[model.AuthEvent](historySize),
	}
}

// Ingest records one parsed event in the counters and the event buffer.
func (s *EventStore) Ingest(ev *model.AuthEvent) {
	if ev == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalParsed++
	s.recent.Add(*ev)

	if label, ok := errorLabels[ev.Outcome]; ok {
		s.errorTypes[label]++
	}

	switch ev.Outcome {
	case model.OutcomeFailed:
		s.totalFailed++
		s.allFailures = append(s.allFailures, ev.Timestamp)
		if ev.SourceIP != "" {
			s.ipFailures[ev.SourceIP] = append(s.ipFailures[ev.SourceIP], ev.Timestamp)
		}
		if ev.User != "" {
			s.userFailures[ev.User] = append(s.userFailures[ev.User], ev.Timestamp)
		}
	case model.OutcomeAccepted:
		s.totalSucceeded++
		if ev.User != "" {
			s.userSuccesses[ev.User] = append(s.userSuccesses[ev.User], ev.Timestamp)
		}
	}
}

// CountUnparsed records lines that matched no pattern.
func (s *EventStore) CountUnparsed(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalUnparsed += uint64(n)
}

// Prune drops every timestamp older than now minus the retention window
// and removes keys whose sequence becomes empty, bounding memory to
// currently active attackers and users. Idempotent at a fixed now.
func (s *EventStore) Prune(now time.Time, retention time.Duration) {
	cutoff := now.Add(-retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	pruneMap(s.ipFailures, cutoff)
	pruneMap(s.userFailures, cutoff)
	pruneMap(s.userSuccesses, cutoff)
	s.allFailures = pruneSeq(s.allFailures, cutoff)
}

func pruneMap(m map[string][]time.Time, cutoff time.Time) {
	for key, seq := range m {
		kept := pruneSeq(seq, cutoff)
		if len(kept) == 0 {
			delete(m, key)
		} else {
			m[key] = kept
		}
	}
}

// pruneSeq filters aged-out entries in place. A full pass: a stale
// entry can sit behind a fresh one when sources ingest out of time
// order.
func pruneSeq(seq []time.Time, cutoff time.Time) []time.Time {
	kept := seq[:0]
	for _, ts := range seq {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}

// TopN returns up to n (key, count) pairs for the requested counter,
// count descending. Ties break by ascending key so identical input
// always yields identical output.
func (s *EventStore) TopN(kind CounterKind, n int) []model.KeyCount {
	s.mu.RLock()
	var m map[string][]time.Time
	switch kind {
	case IPFailures:
		m = s.ipFailures
	case UserFailures:
		m = s.userFailures
	default:
		s.mu.RUnlock()
		return nil
	}

	out := make([]model.KeyCount, 0, len(m))
	for key, seq := range m {
		out = append(out, model.KeyCount{Key: key, Count: len(seq)})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if n < len(out) {
		out = out[:n]
	}
	return out
}

// FailureCountSince counts failed logins across all sources within the
// window ending at now.
func (s *EventStore) FailureCountSince(now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, ts := range s.allFailures {
		if !ts.Before(cutoff) {
			count++
		}
	}
	return count
}

// IPFailureCounts returns per-IP failure counts within the window ending
// at now. The retention window can be wider than a single rule's window,
// so rules count against their own cutoff instead of trusting the prune.
func (s *EventStore) IPFailureCounts(now time.Time, window time.Duration) map[string]int {
	cutoff := now.Add(-window)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int, len(s.ipFailures))
	for ip, seq := range s.ipFailures {
		count := 0
		for _, ts := range seq {
			if !ts.Before(cutoff) {
				count++
			}
		}
		if count > 0 {
			out[ip] = count
		}
	}
	return out
}

// Ratio returns failed/(failed+succeeded) for a user within the current
// window, or 0 when the user has no recorded attempts.
func (s *EventStore) Ratio(user string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	failed := len(s.userFailures[user])
	succeeded := len(s.userSuccesses[user])
	total := failed + succeeded
	if total == 0 {
		return 0
	}
	return float64(failed) / float64(total)
}

// ErrorTypes returns a copy of the lifetime error-type frequency table.
func (s *EventStore) ErrorTypes() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int, len(s.errorTypes))
	for label, count := range s.errorTypes {
		out[label] = count
	}
	return out
}

// Totals reports the lifetime parsed, unparsed, failed, and succeeded
// counts.
func (s *EventStore) Totals() (parsed, unparsed, failed, succeeded uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalParsed, s.totalUnparsed, s.totalFailed, s.totalSucceeded
}

// RecentEvents returns the retained raw events, oldest first.
func (s *EventStore) RecentEvents() []model.AuthEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recent.Values()
}

// TrackedKeys reports how many IPs and users currently hold windowed
// entries, for gauge export.
func (s *EventStore) TrackedKeys() (ips, users int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userSet := make(map[string]struct{}, len(s.userFailures)+len(s.userSuccesses))
	for u := range s.userFailures {
		userSet[u] = struct{}{}
	}
	for u := range s.userSuccesses {
		userSet[u] = struct{}{}
	}
	return len(s.ipFailures), len(userSet)
}
