package chain

import "sync"

// StateTracker is a thread-safe cache of the latest NetworkState snapshot.
// It is refreshed by the epoch control loop and read concurrently by the
// blacklist pipeline and the priority function, which must never block on a
// chain query while serving requests.
type StateTracker struct {
	mu sync.RWMutex

	currentBlock int64
	state        *NetworkState
}

func NewStateTracker() *StateTracker {
	return &StateTracker{}
}

// Update caches the latest snapshot. Called by the epoch loop on every
// refresh and once at startup.
func (t *StateTracker) Update(block int64, state *NetworkState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.currentBlock = block
	t.state = state
}

// Current returns the cached snapshot, nil before the first update.
func (t *StateTracker) Current() *NetworkState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// CurrentBlock returns the block height of the cached snapshot.
func (t *StateTracker) CurrentBlock() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.currentBlock
}
