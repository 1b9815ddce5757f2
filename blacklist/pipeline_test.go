package blacklist_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"miner-api/blacklist"
	"miner-api/chain"
	"miner-api/inference"
	"miner-api/ratelimit"
)

const (
	validatorHotkey = "validator-hotkey"
	minerHotkey     = "miner-hotkey"
	unknownHotkey   = "unknown-hotkey"
)

type captureSink struct {
	mu      sync.Mutex
	records []map[string]any
}

func (s *captureSink) Log(record map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
}

func testState() *chain.StateTracker {
	tracker := chain.NewStateTracker()
	tracker.Update(100, &chain.NetworkState{
		Block:           100,
		Hotkeys:         []string{validatorHotkey, minerHotkey},
		ValidatorPermit: []bool{true, false},
		Stake:           []float64{1000, 10},
	})
	return tracker
}

func newPipeline(params blacklist.Params, limiter *ratelimit.Tracker) (*blacklist.Pipeline, *captureSink) {
	sink := &captureSink{}
	if limiter == nil {
		limiter = ratelimit.NewTracker(10)
	}
	return blacklist.NewPipeline(params, testState(), limiter, sink), sink
}

func request(hotkey string) *inference.Request {
	return &inference.Request{CallerHotkey: hotkey}
}

func TestWhitelistWinsOverEverything(t *testing.T) {
	p, _ := newPipeline(blacklist.Params{
		Whitelist:            []string{unknownHotkey},
		Blacklist:            []string{unknownHotkey},
		ForceValidatorPermit: true,
	}, nil)

	decision := p.Evaluate(request(unknownHotkey))
	require.False(t, decision.Blacklist)
	require.Equal(t, "whitelisted hotkey", decision.Reason)
}

func TestExplicitBlacklist(t *testing.T) {
	p, sink := newPipeline(blacklist.Params{
		Blacklist: []string{validatorHotkey},
	}, nil)

	decision := p.Evaluate(request(validatorHotkey))
	require.True(t, decision.Blacklist)
	require.Equal(t, "blacklisted hotkey", decision.Reason)

	require.Len(t, sink.records, 1)
	require.Equal(t, true, sink.records[0]["blacklisted"])
	require.Equal(t, "blacklisted hotkey", sink.records[0]["return_message"])
}

func TestUnregisteredRejected(t *testing.T) {
	p, _ := newPipeline(blacklist.Params{}, nil)

	decision := p.Evaluate(request(unknownHotkey))
	require.True(t, decision.Blacklist)
	require.Equal(t, "hotkey not registered", decision.Reason)
}

func TestUnregisteredAllowedWhenConfigured(t *testing.T) {
	p, _ := newPipeline(blacklist.Params{AllowNonRegistered: true}, nil)

	decision := p.Evaluate(request(unknownHotkey))
	require.False(t, decision.Blacklist)
	require.Equal(t, "passed blacklist", decision.Reason)
}

func TestValidatorPermitRequired(t *testing.T) {
	p, _ := newPipeline(blacklist.Params{ForceValidatorPermit: true}, nil)

	decision := p.Evaluate(request(validatorHotkey))
	require.False(t, decision.Blacklist)

	decision = p.Evaluate(request(minerHotkey))
	require.True(t, decision.Blacklist)
	require.Equal(t, "validator permit required", decision.Reason)
}

func TestValidatorPermitUnregistered(t *testing.T) {
	p, _ := newPipeline(blacklist.Params{
		AllowNonRegistered:   true,
		ForceValidatorPermit: true,
	}, nil)

	decision := p.Evaluate(request(unknownHotkey))
	require.True(t, decision.Blacklist)
	require.Equal(t, "validator permit required, but hotkey not registered", decision.Reason)
}

func TestRateLimit(t *testing.T) {
	now := time.Unix(1000, 0)
	limiter := ratelimit.NewTrackerWithClock(10, func() time.Time { return now })
	p, _ := newPipeline(blacklist.Params{MinRequestPeriod: 1}, limiter)

	limiter.Record(validatorHotkey)

	now = now.Add(30 * time.Second)
	decision := p.Evaluate(request(validatorHotkey))
	require.True(t, decision.Blacklist)
	require.Equal(t,
		fmt.Sprintf("%s request frequency exceeded: %d requests in %d minutes", validatorHotkey, 1, 1),
		decision.Reason)

	now = now.Add(31 * time.Second)
	decision = p.Evaluate(request(validatorHotkey))
	require.False(t, decision.Blacklist)
	require.Equal(t, "passed blacklist", decision.Reason)
}

func TestNoNetworkStateFailsClosed(t *testing.T) {
	// With no snapshot nobody counts as registered, so the registration
	// rules reject instead of waving callers through.
	sink := &captureSink{}
	p := blacklist.NewPipeline(blacklist.Params{},
		chain.NewStateTracker(), ratelimit.NewTracker(10), sink)

	decision := p.Evaluate(request(unknownHotkey))
	require.True(t, decision.Blacklist)
	require.Equal(t, "hotkey not registered", decision.Reason)
}

func TestNoNetworkStatePermitRuleFailsClosed(t *testing.T) {
	sink := &captureSink{}
	p := blacklist.NewPipeline(blacklist.Params{
		AllowNonRegistered:   true,
		ForceValidatorPermit: true,
	}, chain.NewStateTracker(), ratelimit.NewTracker(10), sink)

	decision := p.Evaluate(request(unknownHotkey))
	require.True(t, decision.Blacklist)
	require.Equal(t, "validator permit required, but hotkey not registered", decision.Reason)
}

func TestNoNetworkStateWhitelistStillWins(t *testing.T) {
	sink := &captureSink{}
	p := blacklist.NewPipeline(blacklist.Params{
		Whitelist:            []string{unknownHotkey},
		ForceValidatorPermit: true,
	}, chain.NewStateTracker(), ratelimit.NewTracker(10), sink)

	decision := p.Evaluate(request(unknownHotkey))
	require.False(t, decision.Blacklist)
	require.Equal(t, "whitelisted hotkey", decision.Reason)
}

func TestCustomRuleVerdictUsed(t *testing.T) {
	p, _ := newPipeline(blacklist.Params{}, nil)
	p.Custom = blacklist.CustomRuleFunc(func(req *inference.Request) (blacklist.Decision, bool, error) {
		return blacklist.Decision{Blacklist: true, Reason: "custom says no"}, true, nil
	})

	decision := p.Evaluate(request(validatorHotkey))
	require.True(t, decision.Blacklist)
	require.Equal(t, "custom says no", decision.Reason)
}

func TestCustomRuleEmptyReason(t *testing.T) {
	p, _ := newPipeline(blacklist.Params{}, nil)
	p.Custom = blacklist.CustomRuleFunc(func(req *inference.Request) (blacklist.Decision, bool, error) {
		return blacklist.Decision{Blacklist: true}, true, nil
	})

	decision := p.Evaluate(request(validatorHotkey))
	require.True(t, decision.Blacklist)
	require.Equal(t, "no reason provided", decision.Reason)
}

func TestCustomRuleNoVerdictFallsThrough(t *testing.T) {
	p, _ := newPipeline(blacklist.Params{Blacklist: []string{minerHotkey}}, nil)
	p.Custom = blacklist.CustomRuleFunc(func(req *inference.Request) (blacklist.Decision, bool, error) {
		return blacklist.Decision{}, false, nil
	})

	decision := p.Evaluate(request(minerHotkey))
	require.True(t, decision.Blacklist)
	require.Equal(t, "blacklisted hotkey", decision.Reason)
}

func TestCustomRuleErrorFallsThrough(t *testing.T) {
	p, _ := newPipeline(blacklist.Params{}, nil)
	p.Custom = blacklist.CustomRuleFunc(func(req *inference.Request) (blacklist.Decision, bool, error) {
		return blacklist.Decision{}, false, fmt.Errorf("rule backend unavailable")
	})

	decision := p.Evaluate(request(validatorHotkey))
	require.False(t, decision.Blacklist)
	require.Equal(t, "passed blacklist", decision.Reason)
}

func TestCustomRulePanicContained(t *testing.T) {
	p, _ := newPipeline(blacklist.Params{}, nil)
	p.Custom = blacklist.CustomRuleFunc(func(req *inference.Request) (blacklist.Decision, bool, error) {
		panic("boom")
	})

	require.NotPanics(t, func() {
		decision := p.Evaluate(request(validatorHotkey))
		require.False(t, decision.Blacklist)
		require.Equal(t, "passed blacklist", decision.Reason)
	})
}
