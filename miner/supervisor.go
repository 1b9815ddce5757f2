package miner

import (
	"context"
	"time"

	"miner-api/logging"
	"miner-api/types"
)

// StartBackground launches the epoch control loop on a background goroutine.
// Calling it while the loop is already running is a no-op.
func (m *Miner) StartBackground() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isRunning {
		return
	}

	logging.Debug("Starting miner in background", types.System)
	m.shouldExit.Store(false)
	m.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		if err := m.Run(context.Background()); err != nil {
			logging.Error("Background miner loop terminated with error", types.System, "error", err)
		}
	}(m.done)
	m.isRunning = true
	logging.Debug("Started", types.System)
}

// StopBackground requests cooperative cancellation and waits up to timeout
// for the background goroutine to exit. The miner is marked not running even
// when the wait times out.
func (m *Miner) StopBackground(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isRunning {
		return
	}

	logging.Debug("Stopping miner in background", types.System)
	m.shouldExit.Store(true)
	select {
	case <-m.done:
	case <-time.After(timeout):
		logging.Warn("Timed out waiting for miner loop to stop", types.System, "timeout", timeout)
	}
	m.isRunning = false
	logging.Debug("Stopped", types.System)
}

// IsRunning reports whether the background loop has been started and not yet
// stopped.
func (m *Miner) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isRunning
}

// RunScoped runs fn with the miner serving in the background, guaranteeing
// the loop is stopped on every exit path, including a failing fn.
func (m *Miner) RunScoped(fn func() error) error {
	m.StartBackground()
	defer m.StopBackground(5 * time.Second)
	return fn()
}
