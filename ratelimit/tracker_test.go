package ratelimit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"miner-api/ratelimit"
)

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) now() time.Time {
	return c.current
}

func (c *fakeClock) advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func TestSinceEarliestNoRecords(t *testing.T) {
	tracker := ratelimit.NewTracker(10)

	_, ok := tracker.SinceEarliest("hk-1")
	require.False(t, ok)
	require.Equal(t, 0, tracker.Count("hk-1"))
}

func TestSinceEarliest(t *testing.T) {
	clock := &fakeClock{current: time.Unix(1000, 0)}
	tracker := ratelimit.NewTrackerWithClock(10, clock.now)

	tracker.Record("hk-1")
	clock.advance(30 * time.Second)
	tracker.Record("hk-1")
	clock.advance(30 * time.Second)

	period, ok := tracker.SinceEarliest("hk-1")
	require.True(t, ok)
	require.Equal(t, time.Minute, period)
}

func TestRingTruncatesToMaxLen(t *testing.T) {
	clock := &fakeClock{current: time.Unix(1000, 0)}
	tracker := ratelimit.NewTrackerWithClock(3, clock.now)

	for i := 0; i < 5; i++ {
		tracker.Record("hk-1")
		clock.advance(time.Minute)
	}

	require.Equal(t, 3, tracker.Count("hk-1"))

	// The two oldest stamps are gone; the earliest retained one is the
	// third of the five, recorded three minutes ago.
	period, ok := tracker.SinceEarliest("hk-1")
	require.True(t, ok)
	require.Equal(t, 3*time.Minute, period)
}

func TestSinceNthNewest(t *testing.T) {
	clock := &fakeClock{current: time.Unix(1000, 0)}
	tracker := ratelimit.NewTrackerWithClock(10, clock.now)

	for i := 0; i < 4; i++ {
		tracker.Record("hk-1")
		clock.advance(time.Minute)
	}

	period, ok := tracker.SinceNthNewest("hk-1", 1)
	require.True(t, ok)
	require.Equal(t, time.Minute, period)

	period, ok = tracker.SinceNthNewest("hk-1", 4)
	require.True(t, ok)
	require.Equal(t, 4*time.Minute, period)

	_, ok = tracker.SinceNthNewest("hk-1", 5)
	require.False(t, ok)
	_, ok = tracker.SinceNthNewest("hk-1", 0)
	require.False(t, ok)
}

func TestCallersAreIndependent(t *testing.T) {
	tracker := ratelimit.NewTracker(10)

	tracker.Record("hk-1")
	require.Equal(t, 1, tracker.Count("hk-1"))
	require.Equal(t, 0, tracker.Count("hk-2"))

	_, ok := tracker.SinceEarliest("hk-2")
	require.False(t, ok)
}

func TestDefaultMaxLenApplied(t *testing.T) {
	tracker := ratelimit.NewTracker(0)
	for i := 0; i < ratelimit.DefaultMaxLen+5; i++ {
		tracker.Record("hk-1")
	}
	require.Equal(t, ratelimit.DefaultMaxLen, tracker.Count("hk-1"))
}
