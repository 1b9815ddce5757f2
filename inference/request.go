package inference

import (
	"encoding/json"
	"miner-api/utils"
)

// Message is one element of a request's ordered conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the payload served by the miner. The caller hotkey comes from the
// transport layer's authenticated sender headers, never from the body, so it is
// available before the body has been deserialized.
type Request struct {
	Id           string    `json:"id,omitempty"`
	Messages     []Message `json:"messages"`
	CallerHotkey string    `json:"-"`

	// Completion is filled by the predictor and returned to the caller.
	Completion string `json:"completion,omitempty"`
}

// Fingerprint returns a deterministic digest of the ordered message sequence.
// Identical sequences always produce identical fingerprints; any difference in
// role, content or order changes the digest.
func (r *Request) Fingerprint() (string, error) {
	messages := r.Messages
	if messages == nil {
		messages = []Message{}
	}
	raw, err := json.Marshal(messages)
	if err != nil {
		return "", err
	}
	canonical, err := utils.CanonicalizeJSON(raw)
	if err != nil {
		return "", err
	}
	return utils.GenerateSHA256Hash(canonical), nil
}
