package chain

import "context"

// Client is the miner's view of the blockchain node. Implementations talk to
// an external chain process; the miner core only depends on this interface.
type Client interface {
	// IsHotkeyRegistered reports whether the hotkey is registered on the subnet.
	IsHotkeyRegistered(ctx context.Context, netuid uint32, hotkey string) (bool, error)
	// CurrentBlock returns the latest chain block height.
	CurrentBlock(ctx context.Context) (int64, error)
	// NetworkState returns a point-in-time snapshot of the subnet state.
	NetworkState(ctx context.Context, netuid uint32) (*NetworkState, error)
	// SetWeights submits a weight-setting transaction signed with the miner's
	// credentials. The transaction construction is the chain node's concern.
	SetWeights(ctx context.Context, req SetWeightsRequest) error
}

// SetWeightsRequest parameterizes a weight submission.
type SetWeightsRequest struct {
	Netuid  uint32   `json:"netuid"`
	Uid     int      `json:"uid"`
	Hotkey  string   `json:"hotkey"`
	Uids    []int    `json:"uids"`
	Weights []uint16 `json:"weights"`
}

// NetworkState is a snapshot of per-identity subnet metrics at one block.
// Slices are indexed by UID and share the same length as Hotkeys.
type NetworkState struct {
	Block           int64     `json:"block"`
	Hotkeys         []string  `json:"hotkeys"`
	ValidatorPermit []bool    `json:"validator_permit"`
	Stake           []float64 `json:"stake"`
	Rank            []float64 `json:"rank"`
	Trust           []float64 `json:"trust"`
	Consensus       []float64 `json:"consensus"`
	Incentive       []float64 `json:"incentive"`
	Emission        []float64 `json:"emission"`
}

// UIDOf returns the UID of a registered hotkey.
func (s *NetworkState) UIDOf(hotkey string) (int, bool) {
	for uid, hk := range s.Hotkeys {
		if hk == hotkey {
			return uid, true
		}
	}
	return 0, false
}

// IsRegistered reports whether the hotkey is present in the snapshot.
func (s *NetworkState) IsRegistered(hotkey string) bool {
	_, ok := s.UIDOf(hotkey)
	return ok
}

// HasValidatorPermit reports whether the registered hotkey holds a permit.
// A hotkey missing from the snapshot has no permit.
func (s *NetworkState) HasValidatorPermit(hotkey string) bool {
	uid, ok := s.UIDOf(hotkey)
	if !ok || uid >= len(s.ValidatorPermit) {
		return false
	}
	return s.ValidatorPermit[uid]
}

// StakeOf returns the stake of a registered hotkey, 0 when unknown.
func (s *NetworkState) StakeOf(hotkey string) float64 {
	uid, ok := s.UIDOf(hotkey)
	if !ok || uid >= len(s.Stake) {
		return 0
	}
	return s.Stake[uid]
}
