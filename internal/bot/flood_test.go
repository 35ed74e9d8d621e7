package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFloodGuardRefills(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := NewFloodGuard(FloodConfig{Rate: 1, Burst: 2}, WithFloodClock(func() time.Time { return now }))

	assert.True(t, g.Allow(1))
	assert.True(t, g.Allow(1))
	assert.False(t, g.Allow(1))
	assert.True(t, g.Allow(2), "buckets are per user")

	now = now.Add(time.Second)
	assert.True(t, g.Allow(1))
	assert.False(t, g.Allow(1))
	assert.EqualValues(t, 2, g.Denied(1))
}

func TestFloodGuardIgnoresAnonymousAndDisabled(t *testing.T) {
	g := NewFloodGuard(FloodConfig{Rate: 1, Burst: 1})
	for i := 0; i < 5; i++ {
		assert.True(t, g.Allow(0))
	}

	off := NewFloodGuard(FloodConfig{Rate: -1})
	for i := 0; i < 5; i++ {
		assert.True(t, off.Allow(1))
	}

	var none *FloodGuard
	assert.True(t, none.Allow(1))
}

func TestFloodGuardSweepsIdleUsers(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := NewFloodGuard(FloodConfig{Rate: 1, Burst: 1, IdleTTL: time.Minute}, WithFloodClock(func() time.Time { return now }))

	g.Allow(1)
	g.Allow(2)
	assert.Equal(t, 2, g.Tracked())

	now = now.Add(2 * time.Minute)
	g.Allow(3)
	assert.Equal(t, 1, g.Tracked())
}
