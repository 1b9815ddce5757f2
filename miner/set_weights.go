package miner

import (
	"context"

	"miner-api/chain"
	"miner-api/logging"
	"miner-api/types"
)

// maxWeight is the fixed-point representation of weight 1.0 on chain.
const maxWeight = uint16(65535)

// setWeights submits the miner's trust allocation for the current epoch. A
// plain miner asserts full weight on its own UID; the chain node owns the
// transaction construction and signing.
func (m *Miner) setWeights(ctx context.Context, uid int) error {
	req := chain.SetWeightsRequest{
		Netuid:  m.config.GetNetuid(),
		Uid:     uid,
		Hotkey:  m.config.GetWalletConfig().Hotkey,
		Uids:    []int{uid},
		Weights: []uint16{maxWeight},
	}

	if err := m.chainClient.SetWeights(ctx, req); err != nil {
		m.sink.Log(map[string]any{
			"set_weights": "failed",
			"uid":         uid,
			"error":       err.Error(),
		})
		return err
	}

	logging.Info("Successfully set weights", types.Weights, "netuid", req.Netuid, "uid", uid)
	m.sink.Log(map[string]any{
		"set_weights": "success",
		"uid":         uid,
	})
	return nil
}
