package ratelimit

import (
	"sync"
	"time"
)

// Tracker keeps a bounded ring of request timestamps per caller hotkey. The
// blacklist chain reads the elapsed time since the earliest retained stamp;
// the priority function records a stamp per evaluated request. Rings are
// truncated to maxLen on every append, so memory per caller is bounded.
type Tracker struct {
	mu         sync.Mutex
	timestamps map[string][]time.Time
	maxLen     int

	now func() time.Time
}

const DefaultMaxLen = 10

func NewTracker(maxLen int) *Tracker {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &Tracker{
		timestamps: make(map[string][]time.Time),
		maxLen:     maxLen,
		now:        time.Now,
	}
}

// NewTrackerWithClock is used by tests to control time.
func NewTrackerWithClock(maxLen int, now func() time.Time) *Tracker {
	t := NewTracker(maxLen)
	t.now = now
	return t
}

// Record appends the current time to the caller's ring, keeping at most
// maxLen entries.
func (t *Tracker) Record(hotkey string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stamps := append(t.timestamps[hotkey], t.now())
	if len(stamps) > t.maxLen {
		stamps = stamps[len(stamps)-t.maxLen:]
	}
	t.timestamps[hotkey] = stamps
}

// SinceEarliest returns the elapsed time since the caller's oldest retained
// timestamp. ok is false when the caller has no recorded requests.
func (t *Tracker) SinceEarliest(hotkey string) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stamps := t.timestamps[hotkey]
	if len(stamps) == 0 {
		return 0, false
	}
	return t.now().Sub(stamps[0]), true
}

// SinceNthNewest returns the elapsed time since the caller's n-th most recent
// timestamp (n=1 is the newest). ok is false when fewer than n stamps exist.
func (t *Tracker) SinceNthNewest(hotkey string, n int) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stamps := t.timestamps[hotkey]
	if n <= 0 || len(stamps) < n {
		return 0, false
	}
	return t.now().Sub(stamps[len(stamps)-n]), true
}

// Count returns how many timestamps are retained for the caller.
func (t *Tracker) Count(hotkey string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timestamps[hotkey])
}
