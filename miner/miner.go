package miner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"miner-api/admission"
	"miner-api/apiconfig"
	"miner-api/blacklist"
	"miner-api/chain"
	"miner-api/inference"
	"miner-api/logging"
	"miner-api/priority"
	"miner-api/ratelimit"
	"miner-api/requestcache"
	"miner-api/telemetry"
	"miner-api/types"
)

// ForwardFunc handles an admitted request after its payload is available.
type ForwardFunc func(ctx context.Context, req *inference.Request) error

// BlacklistFunc runs at the transport boundary, before the request body has
// been deserialized; only header-derived fields of the request are set.
type BlacklistFunc func(req *inference.Request) blacklist.Decision

// PriorityFunc ranks a request for scheduling.
type PriorityFunc func(req *inference.Request) float64

// Axon is the transport server serving validator requests. The miner core
// installs its handlers and drives the server's lifecycle; the wire protocol
// is the transport's concern.
type Axon interface {
	Attach(forward ForwardFunc, blacklistFn BlacklistFunc, priorityFn PriorityFunc)
	// Serve announces the endpoint for the subnet on the network.
	Serve(ctx context.Context, netuid uint32, client chain.Client) error
	Start() error
	Stop(ctx context.Context) error
}

// Miner is the request-admission and lifecycle-control layer of a network
// participant. It composes the blacklist pipeline, the dedup admission gate
// and the priority function onto the transport server, and drives the
// epoch-synchronized control loop.
type Miner struct {
	config      *apiconfig.ConfigManager
	chainClient chain.Client
	axon        Axon
	sink        telemetry.Sink

	stateTracker *chain.StateTracker
	limiter      *ratelimit.Tracker
	pipeline     *blacklist.Pipeline
	gate         *admission.Gate
	priority     *priority.Calculator

	// pollInterval bounds how quickly a stop request is observed while
	// waiting for the next epoch boundary.
	pollInterval time.Duration

	shouldExit atomic.Bool

	mu        sync.Mutex
	isRunning bool
	done      chan struct{}
}

// Options carries the optional override strategies a caller may supply in
// place of the default blacklist and priority behavior.
type Options struct {
	CustomBlacklist blacklist.CustomRule
	CustomPriority  priority.CustomFunc
}

func New(
	config *apiconfig.ConfigManager,
	chainClient chain.Client,
	axon Axon,
	predictor admission.Predictor,
	sink telemetry.Sink,
	opts Options,
) *Miner {
	if sink == nil {
		sink = telemetry.Noop{}
	}

	blacklistCfg := config.GetBlacklistConfig()
	priorityCfg := config.GetPriorityConfig()

	if !blacklistCfg.ForceValidatorPermit {
		logging.Warn("You are allowing non-validators to send requests to your miner. This is a security risk.", types.System)
	}
	if blacklistCfg.AllowNonRegistered {
		logging.Warn("You are allowing non-registered entities to send requests to your miner. This is a security risk.", types.System)
	}

	stateTracker := chain.NewStateTracker()
	limiter := ratelimit.NewTracker(priorityCfg.LenRequestTimestamps)

	pipeline := blacklist.NewPipeline(blacklist.Params{
		Whitelist:            blacklistCfg.Whitelist,
		Blacklist:            blacklistCfg.Blacklist,
		AllowNonRegistered:   blacklistCfg.AllowNonRegistered,
		ForceValidatorPermit: blacklistCfg.ForceValidatorPermit,
		MinRequestPeriod:     blacklistCfg.MinRequestPeriod,
	}, stateTracker, limiter, sink)
	pipeline.Custom = opts.CustomBlacklist

	cache := requestcache.New(blacklistCfg.RequestCacheBlockSpan, blacklistCfg.RequestCacheMaxEntries)
	gate := admission.NewGate(cache, stateTracker, predictor, blacklistCfg.UseRequestCache)

	calculator := priority.NewCalculator(priority.Params{
		Default:               priorityCfg.Default,
		TimeStakeMultiplicate: priorityCfg.TimeStakeMultiplicate,
		LenRequestTimestamps:  priorityCfg.LenRequestTimestamps,
	}, stateTracker, limiter)
	calculator.Custom = opts.CustomPriority

	m := &Miner{
		config:       config,
		chainClient:  chainClient,
		axon:         axon,
		sink:         sink,
		stateTracker: stateTracker,
		limiter:      limiter,
		pipeline:     pipeline,
		gate:         gate,
		priority:     calculator,
		pollInterval: time.Second,
	}

	logging.Info("Attaching forward function to axon", types.Server)
	axon.Attach(m.gate.Forward, m.pipeline.Evaluate, m.priority.Priority)

	return m
}

// StateTracker exposes the cached network state, read by the transport layer
// for status reporting.
func (m *Miner) StateTracker() *chain.StateTracker {
	return m.stateTracker
}
