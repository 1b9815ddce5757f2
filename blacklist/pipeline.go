package blacklist

import (
	"fmt"
	"time"

	"miner-api/chain"
	"miner-api/inference"
	"miner-api/logging"
	"miner-api/ratelimit"
	"miner-api/telemetry"
	"miner-api/types"
)

// Decision is the outcome of a blacklist evaluation. Blacklist true means
// reject. Reason is always non-empty and names the first rule that matched.
type Decision struct {
	Blacklist bool
	Reason    string
}

// CustomRule is an optional caller-supplied rule evaluated before the default
// chain. Returning ok=false means the rule produced no verdict and the
// default chain decides. Any returned error also falls through to the
// default chain; it is logged and never surfaced to the transport layer.
type CustomRule interface {
	Evaluate(req *inference.Request) (decision Decision, ok bool, err error)
}

// CustomRuleFunc adapts a function to the CustomRule interface.
type CustomRuleFunc func(req *inference.Request) (Decision, bool, error)

func (f CustomRuleFunc) Evaluate(req *inference.Request) (Decision, bool, error) {
	return f(req)
}

// Params holds the configuration slice the pipeline acts on.
type Params struct {
	Whitelist            []string
	Blacklist            []string
	AllowNonRegistered   bool
	ForceValidatorPermit bool
	// MinRequestPeriod is the minimum time between a caller's earliest
	// retained request and the current one, in minutes.
	MinRequestPeriod int
}

// Pipeline evaluates incoming requests against the layered rule chain. It is
// safe for concurrent use: the network state comes from the read-mostly
// StateTracker and the rate limit tracker locks internally.
type Pipeline struct {
	params  Params
	state   *chain.StateTracker
	limiter *ratelimit.Tracker
	sink    telemetry.Sink

	whitelist map[string]struct{}
	blacklist map[string]struct{}

	// Custom is the optional override rule. Nil means absent and the
	// default chain runs directly.
	Custom CustomRule
}

func NewPipeline(params Params, state *chain.StateTracker, limiter *ratelimit.Tracker, sink telemetry.Sink) *Pipeline {
	p := &Pipeline{
		params:    params,
		state:     state,
		limiter:   limiter,
		sink:      sink,
		whitelist: make(map[string]struct{}, len(params.Whitelist)),
		blacklist: make(map[string]struct{}, len(params.Blacklist)),
	}
	for _, hk := range params.Whitelist {
		p.whitelist[hk] = struct{}{}
	}
	for _, hk := range params.Blacklist {
		p.blacklist[hk] = struct{}{}
	}
	return p
}

// Evaluate runs the custom rule if present, falling back to the default chain
// when it is absent, fails, or returns no verdict. The returned decision is
// always well-formed; Evaluate never fails.
func (p *Pipeline) Evaluate(req *inference.Request) Decision {
	logging.Trace("run blacklist function", types.Blacklist, "hotkey", req.CallerHotkey)

	decision, decided := p.evaluateCustom(req)
	if !decided {
		decision = p.defaultChain(req)
	}

	logging.Trace("blacklist evaluated", types.Blacklist,
		"blacklisted", decision.Blacklist, "reason", decision.Reason)
	if decision.Blacklist && p.sink != nil {
		p.sink.Log(map[string]any{
			"blacklisted":    true,
			"return_message": decision.Reason,
			"hotkey":         req.CallerHotkey,
		})
	}
	return decision
}

func (p *Pipeline) evaluateCustom(req *inference.Request) (Decision, bool) {
	if p.Custom == nil {
		return Decision{}, false
	}

	decision, ok, err := func() (d Decision, ok bool, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("custom blacklist rule panicked: %v", r)
			}
		}()
		return p.Custom.Evaluate(req)
	}()
	if err != nil {
		logging.Error("Error in custom blacklist rule, using default chain", types.Blacklist, "error", err)
		return Decision{}, false
	}
	if !ok {
		return Decision{}, false
	}
	if decision.Reason == "" {
		decision.Reason = "no reason provided"
	}
	return decision, true
}

// defaultChain applies the documented rule order; first match wins.
func (p *Pipeline) defaultChain(req *inference.Request) Decision {
	hotkey := req.CallerHotkey

	if _, ok := p.whitelist[hotkey]; ok {
		return Decision{Blacklist: false, Reason: "whitelisted hotkey"}
	}

	if _, ok := p.blacklist[hotkey]; ok {
		return Decision{Blacklist: true, Reason: "blacklisted hotkey"}
	}

	// A missing snapshot means nobody is registered yet; the registration
	// rules fail closed rather than waving callers through.
	state := p.state.Current()
	registered := state != nil && state.IsRegistered(hotkey)

	if !p.params.AllowNonRegistered && !registered {
		return Decision{Blacklist: true, Reason: "hotkey not registered"}
	}

	if p.params.ForceValidatorPermit {
		if registered {
			if !state.HasValidatorPermit(hotkey) {
				return Decision{Blacklist: true, Reason: "validator permit required"}
			}
		} else {
			return Decision{Blacklist: true, Reason: "validator permit required, but hotkey not registered"}
		}
	}

	if period, ok := p.limiter.SinceEarliest(hotkey); ok {
		minPeriod := time.Duration(p.params.MinRequestPeriod) * time.Minute
		if period < minPeriod {
			return Decision{
				Blacklist: true,
				Reason: fmt.Sprintf("%s request frequency exceeded: %d requests in %d minutes",
					hotkey, p.limiter.Count(hotkey), p.params.MinRequestPeriod),
			}
		}
	}

	return Decision{Blacklist: false, Reason: "passed blacklist"}
}
