package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// HTTPClient talks to the local chain node's REST gateway. It is the
// production Client implementation; the miner core never depends on it
// directly, only on the Client interface.
type HTTPClient struct {
	baseUrl string
	http    *http.Client
}

func NewHTTPClient(baseUrl string) *HTTPClient {
	return &HTTPClient{
		baseUrl: baseUrl,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *HTTPClient) IsHotkeyRegistered(ctx context.Context, netuid uint32, hotkey string) (bool, error) {
	var out struct {
		Registered bool `json:"registered"`
	}
	url := fmt.Sprintf("%s/subnets/%d/hotkeys/%s", c.baseUrl, netuid, hotkey)
	if err := c.getJSON(ctx, url, &out); err != nil {
		return false, err
	}
	return out.Registered, nil
}

func (c *HTTPClient) CurrentBlock(ctx context.Context) (int64, error) {
	var out struct {
		Height int64 `json:"height"`
	}
	if err := c.getJSON(ctx, c.baseUrl+"/block", &out); err != nil {
		return 0, err
	}
	return out.Height, nil
}

func (c *HTTPClient) NetworkState(ctx context.Context, netuid uint32) (*NetworkState, error) {
	var out NetworkState
	url := fmt.Sprintf("%s/subnets/%d/state", c.baseUrl, netuid)
	if err := c.getJSON(ctx, url, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) SetWeights(ctx context.Context, req SetWeightsRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/subnets/%d/weights", c.baseUrl, req.Netuid)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, "submitting weights")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Errorf("weight submission rejected: status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (c *HTTPClient) getJSON(ctx context.Context, url string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "querying %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("chain node returned status %d for %s", resp.StatusCode, url)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return errors.Wrapf(err, "decoding response from %s", url)
	}
	return nil
}
