package inference_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"miner-api/inference"
)

func TestFingerprintDeterministic(t *testing.T) {
	a := &inference.Request{
		Messages: []inference.Message{
			{Role: "user", Content: "what is the capital of France?"},
		},
	}
	b := &inference.Request{
		Messages: []inference.Message{
			{Role: "user", Content: "what is the capital of France?"},
		},
	}

	fpA, err := a.Fingerprint()
	require.NoError(t, err)
	fpB, err := b.Fingerprint()
	require.NoError(t, err)
	require.Equal(t, fpA, fpB)
	require.Len(t, fpA, 64)
}

func TestFingerprintIgnoresNonMessageFields(t *testing.T) {
	a := &inference.Request{
		Id:           "req-1",
		CallerHotkey: "hk-1",
		Messages:     []inference.Message{{Role: "user", Content: "hello"}},
	}
	b := &inference.Request{
		Id:           "req-2",
		CallerHotkey: "hk-2",
		Completion:   "hi there",
		Messages:     []inference.Message{{Role: "user", Content: "hello"}},
	}

	fpA, err := a.Fingerprint()
	require.NoError(t, err)
	fpB, err := b.Fingerprint()
	require.NoError(t, err)
	require.Equal(t, fpA, fpB)
}

func TestFingerprintSensitivity(t *testing.T) {
	base := &inference.Request{
		Messages: []inference.Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "hello"},
		},
	}
	baseFp, err := base.Fingerprint()
	require.NoError(t, err)

	differentContent := &inference.Request{
		Messages: []inference.Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "hello!"},
		},
	}
	fp, err := differentContent.Fingerprint()
	require.NoError(t, err)
	require.NotEqual(t, baseFp, fp)

	differentRole := &inference.Request{
		Messages: []inference.Message{
			{Role: "system", Content: "be brief"},
			{Role: "assistant", Content: "hello"},
		},
	}
	fp, err = differentRole.Fingerprint()
	require.NoError(t, err)
	require.NotEqual(t, baseFp, fp)

	differentOrder := &inference.Request{
		Messages: []inference.Message{
			{Role: "user", Content: "hello"},
			{Role: "system", Content: "be brief"},
		},
	}
	fp, err = differentOrder.Fingerprint()
	require.NoError(t, err)
	require.NotEqual(t, baseFp, fp)
}

func TestFingerprintEmptyMessages(t *testing.T) {
	a := &inference.Request{}
	b := &inference.Request{Messages: []inference.Message{}}

	fpA, err := a.Fingerprint()
	require.NoError(t, err)
	fpB, err := b.Fingerprint()
	require.NoError(t, err)

	// nil and empty slices both marshal as an empty list.
	require.Equal(t, fpA, fpB)
}
