package priority

import (
	"time"

	"miner-api/chain"
	"miner-api/inference"
	"miner-api/logging"
	"miner-api/ratelimit"
	"miner-api/types"
)

// CustomFunc is an optional caller-supplied priority function. ok=false means
// no verdict and the default stake-weighted priority is used.
type CustomFunc func(req *inference.Request) (priority float64, ok bool, err error)

// Params configures the default priority calculation.
type Params struct {
	// Default is the priority assigned to unregistered callers.
	Default float64
	// TimeStakeMultiplicate scales the request-period bonus, in minutes.
	TimeStakeMultiplicate int
	// LenRequestTimestamps bounds the per-caller timestamp ring.
	LenRequestTimestamps int
}

// Calculator ranks requests so that higher-stake, less-chatty callers are
// served first. It records a timestamp for every evaluated request, which the
// blacklist rate-limit rule reads through the shared tracker.
type Calculator struct {
	params  Params
	state   *chain.StateTracker
	limiter *ratelimit.Tracker

	Custom CustomFunc
}

func NewCalculator(params Params, state *chain.StateTracker, limiter *ratelimit.Tracker) *Calculator {
	return &Calculator{params: params, state: state, limiter: limiter}
}

// Priority returns the request's scheduling priority. A custom function that
// fails or returns no verdict falls back to the default calculation; errors
// are logged, never propagated.
func (c *Calculator) Priority(req *inference.Request) float64 {
	if c.Custom != nil {
		priority, ok, err := c.Custom(req)
		if err != nil {
			logging.Error("Error in custom priority function, using default", types.Admission, "error", err)
		} else if ok {
			return priority
		}
	}
	return c.defaultPriority(req)
}

func (c *Calculator) defaultPriority(req *inference.Request) float64 {
	hotkey := req.CallerHotkey
	state := c.state.Current()

	registered := state != nil && state.IsRegistered(hotkey)
	if !registered {
		return c.params.Default
	}

	stake := state.StakeOf(hotkey)

	priority := c.params.Default
	if period, ok := c.limiter.SinceNthNewest(hotkey, ratelimit.DefaultMaxLen); ok {
		scale := float64(period) / float64(time.Duration(c.params.TimeStakeMultiplicate)*time.Minute)
		if scale < 1 {
			scale = 1
		}
		priority = scale * stake
	}

	c.limiter.Record(hotkey)

	return priority
}
