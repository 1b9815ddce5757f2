package miner

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"miner-api/logging"
	"miner-api/types"
)

// ErrNotRegistered is returned when the miner's hotkey is not registered on
// the configured subnet. This is a configuration error and is fatal: the
// caller is expected to terminate the process.
var ErrNotRegistered = errors.New("hotkey not registered on subnet")

// errStopRequested signals cooperative cancellation out of waitForEpoch. It
// never escapes Run.
var errStopRequested = errors.New("stop requested")

// Run executes the epoch control loop until a stop is requested or ctx is
// cancelled. A failed registration check terminates the loop with
// ErrNotRegistered; any error inside a steady-state iteration is logged with
// full detail and the loop continues with the next iteration.
func (m *Miner) Run(ctx context.Context) error {
	netuid := m.config.GetNetuid()
	hotkey := m.config.GetWalletConfig().Hotkey

	registered, err := m.chainClient.IsHotkeyRegistered(ctx, netuid, hotkey)
	if err != nil {
		return errors.Wrap(err, "registration check failed")
	}
	if !registered {
		logging.Error("Hotkey is not registered on subnet, register it before starting the miner",
			types.Chain, "netuid", netuid, "hotkey", hotkey)
		return ErrNotRegistered
	}

	if err := m.axon.Serve(ctx, netuid, m.chainClient); err != nil {
		return errors.Wrap(err, "announcing axon")
	}

	// Prime the network snapshot before serving. The blacklist and priority
	// functions read it from the first request on; without it the pipeline
	// would treat every caller as unregistered until the first epoch step.
	initialState, err := m.chainClient.NetworkState(ctx, netuid)
	if err != nil {
		return errors.Wrap(err, "fetching initial network state")
	}
	m.stateTracker.Update(initialState.Block, initialState)

	logging.Info("Starting axon server", types.Server, "port", m.config.GetApiConfig().Port)
	if err := m.axon.Start(); err != nil {
		return errors.Wrap(err, "starting axon")
	}

	startBlock, err := m.chainClient.CurrentBlock(ctx)
	if err != nil {
		logging.Warn("Could not read current block at startup, starting from persisted height",
			types.Chain, "error", err)
		startBlock = m.config.GetHeight()
	}
	_ = m.config.SetLastEpochBlock(startBlock)
	logging.Info("Miner starting main loop", types.System, "block", startBlock, "step", m.config.GetStep())

	for !m.shouldExit.Load() {
		if ctx.Err() != nil {
			break
		}
		if err := m.step(ctx); err != nil {
			if errors.Is(err, errStopRequested) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			// Transient chain failures must not kill the loop.
			logging.Error("Epoch iteration failed, continuing with next iteration",
				types.System, "error", err, "detail", fmt.Sprintf("%+v", err))
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.axon.Stop(stopCtx); err != nil {
		logging.Warn("Error stopping axon server", types.Server, "error", err)
	}
	logging.Info("Miner stopped", types.System, "step", m.config.GetStep())
	return nil
}

// step performs one epoch iteration: wait for the boundary, refresh network
// state, optionally submit weights, then advance the step counter. The
// counter only advances when the whole iteration succeeded.
func (m *Miner) step(ctx context.Context) error {
	if err := m.waitForEpoch(ctx); err != nil {
		return err
	}

	currentBlock, err := m.chainClient.CurrentBlock(ctx)
	if err != nil {
		return errors.Wrap(err, "reading current block")
	}
	_ = m.config.SetLastEpochBlock(currentBlock)
	_ = m.config.SetHeight(currentBlock)

	netuid := m.config.GetNetuid()
	state, err := m.chainClient.NetworkState(ctx, netuid)
	if err != nil {
		return errors.Wrap(err, "fetching network state")
	}
	m.stateTracker.Update(state.Block, state)

	hotkey := m.config.GetWalletConfig().Hotkey
	uid, ok := state.UIDOf(hotkey)
	if !ok {
		return errors.Errorf("hotkey %s disappeared from network state", hotkey)
	}

	step := m.config.GetStep()
	logging.Info("Epoch step", types.System,
		"step", step,
		"block", state.Block,
		"stake", state.Stake[uid],
		"rank", state.Rank[uid],
		"trust", state.Trust[uid],
		"consensus", state.Consensus[uid],
		"incentive", state.Incentive[uid],
		"emission", state.Emission[uid])
	m.sink.Log(map[string]any{
		"step":      step,
		"block":     state.Block,
		"stake":     state.Stake[uid],
		"rank":      state.Rank[uid],
		"trust":     state.Trust[uid],
		"consensus": state.Consensus[uid],
		"incentive": state.Incentive[uid],
		"emission":  state.Emission[uid],
	})

	if !m.config.GetMinerConfig().NoSetWeights {
		if err := m.setWeights(ctx, uid); err != nil {
			return errors.Wrap(err, "setting weights")
		}
	}

	return m.config.SetStep(step + 1)
}

// waitForEpoch polls the chain until the block height has advanced at least
// blocks_per_epoch past the last epoch block, checking the stop flag on every
// tick so cancellation is observed within one poll interval.
func (m *Miner) waitForEpoch(ctx context.Context) error {
	blocksPerEpoch := m.config.GetMinerConfig().BlocksPerEpoch

	currentBlock, err := m.chainClient.CurrentBlock(ctx)
	if err != nil {
		return errors.Wrap(err, "reading current block")
	}
	for currentBlock-m.config.GetLastEpochBlock() < blocksPerEpoch {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.pollInterval):
		}
		if m.shouldExit.Load() {
			return errStopRequested
		}
		currentBlock, err = m.chainClient.CurrentBlock(ctx)
		if err != nil {
			return errors.Wrap(err, "reading current block")
		}
	}
	return nil
}
