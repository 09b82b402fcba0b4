package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgerhart/authwatch/internal/model"
)

func TestAlertLog_RecordAndRecent(t *testing.T) {
	l := NewAlertLog(10, 100)
	now := time.Now()

	l.Record([]model.Alert{
		{ID: "1", RuleID: "brute-force", FiredAt: now},
		{ID: "2", RuleID: "error-rate", FiredAt: now.Add(time.Second)},
	})

	recent := l.Recent(0)
	require.Len(t, recent, 2)
	assert.Equal(t, "2", recent[0].ID, "newest first")
	assert.Equal(t, "1", recent[1].ID)
	assert.Len(t, l.Recent(1), 1)
	assert.Equal(t, 2, l.Len())
}

func TestAlertLog_HistoryWrapsAtCapacity(t *testing.T) {
	l := NewAlertLog(3, 100)

	for i := 0; i < 5; i++ {
		l.Record([]model.Alert{{ID: fmt.Sprintf("%d", i)}})
	}

	recent := l.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "4", recent[0].ID)
	assert.Equal(t, "2", recent[2].ID, "oldest entries evicted")
}

func TestAlertLog_ZeroCooldownAlwaysFires(t *testing.T) {
	l := NewAlertLog(10, 100)
	now := time.Now()

	assert.True(t, l.CanFire("brute-force:1.2.3.4", now, 0))
	l.MarkFired("brute-force:1.2.3.4", now)
	assert.True(t, l.CanFire("brute-force:1.2.3.4", now, 0))
}

func TestAlertLog_CooldownSuppressesThenExpires(t *testing.T) {
	l := NewAlertLog(10, 100)
	now := time.Now()
	cooldown := time.Minute

	assert.True(t, l.CanFire("brute-force:1.2.3.4", now, cooldown))
	l.MarkFired("brute-force:1.2.3.4", now)
	assert.False(t, l.CanFire("brute-force:1.2.3.4", now.Add(30*time.Second), cooldown))
	assert.True(t, l.CanFire("error-rate:", now.Add(30*time.Second), cooldown),
		"different rule/subject key is independent")
	assert.True(t, l.CanFire("brute-force:1.2.3.4", now.Add(61*time.Second), cooldown))
}

// Checking is read-only: a key queried but never marked stays outside
// the cooldown.
func TestAlertLog_CanFireDoesNotStamp(t *testing.T) {
	l := NewAlertLog(10, 100)
	now := time.Now()
	cooldown := time.Minute

	assert.True(t, l.CanFire("brute-force:1.2.3.4", now, cooldown))
	assert.True(t, l.CanFire("brute-force:1.2.3.4", now.Add(time.Second), cooldown))
}
