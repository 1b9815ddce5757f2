package admission

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"miner-api/chain"
	"miner-api/inference"
	"miner-api/logging"
	"miner-api/requestcache"
	"miner-api/types"
)

// ErrDuplicateRequest marks a request rejected because its fingerprint was
// seen within the configured block span. The transport layer turns it into a
// client-visible rejection; it is an expected decision, not a fault.
var ErrDuplicateRequest = errors.New("duplicate request")

// Predictor produces a completion for an admitted request. It is the
// domain-specific plug point; the gate only decides whether to invoke it.
type Predictor interface {
	Predict(ctx context.Context, req *inference.Request) error
}

// Gate wraps the predictor with fingerprint deduplication. Blacklisting has
// already happened at the transport boundary by the time Forward runs, so the
// payload is available here.
type Gate struct {
	cache     *requestcache.Cache
	state     *chain.StateTracker
	predictor Predictor
	enabled   bool
}

func NewGate(cache *requestcache.Cache, state *chain.StateTracker, predictor Predictor, enabled bool) *Gate {
	return &Gate{cache: cache, state: state, predictor: predictor, enabled: enabled}
}

// Forward admits or rejects the request, delegating admitted requests to the
// predictor. Duplicate requests fail with ErrDuplicateRequest wrapped with a
// reason citing the block span.
func (g *Gate) Forward(ctx context.Context, req *inference.Request) error {
	if g.enabled {
		fingerprint, err := req.Fingerprint()
		if err != nil {
			return errors.Wrap(err, "fingerprinting request")
		}
		if g.cache.CheckAndRecord(fingerprint, g.state.CurrentBlock) {
			logging.Debug("Rejecting duplicate request", types.Admission,
				"fingerprint", fingerprint, "block", g.state.CurrentBlock())
			return errors.Wrap(ErrDuplicateRequest,
				fmt.Sprintf("request sent recently in last %d blocks", g.cache.BlockSpan()))
		}
	}
	return g.predictor.Predict(ctx, req)
}
