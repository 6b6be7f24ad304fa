// Package callprovider wraps the external voice/IVR call API.
//
// Rules:
// - No provider HTTP calls outside this adapter.
// - Keep request/response types provider-agnostic; business logic consumes
//   CallInfo, never raw payloads.
package callprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"ivr-billing/internal/config"
)

// Status is the provider-reported queue/call state.
type Status string

const (
	StatusNew        Status = "new"
	StatusQueued     Status = "queued"
	StatusStarted    Status = "started"
	StatusComplete   Status = "complete"
	StatusTerminated Status = "terminated"
)

// Terminal reports whether no further provider updates are expected.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusTerminated
}

// CallInfo is the subset of the provider's call resource the billing core reads.
type CallInfo struct {
	CallID            string     `json:"call_id"`
	QueueStatus       Status     `json:"queue_status"`
	StartedAt         *time.Time `json:"started_at"`
	EndAt             *time.Time `json:"end_at"`
	CallLengthSeconds int        `json:"call_length"`
}

var ErrCallNotFound = errors.New("callprovider: call not found")

// Client is the provider-agnostic contract used by the usage tracker and
// the poll task.
type Client interface {
	GetCall(ctx context.Context, callID string) (CallInfo, error)
	// StopCall force-terminates an in-progress call. Used when a running
	// call exhausts its subscription minutes.
	StopCall(ctx context.Context, callID string) error
}

// HTTPClient implements Client against the REST API:
//   GET  {base}/calls/{id}
//   POST {base}/calls/{id}/stop
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewHTTPClient(cfg config.CallProviderConfig) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
	}
}

func (c *HTTPClient) GetCall(ctx context.Context, callID string) (CallInfo, error) {
	if callID == "" {
		return CallInfo{}, errors.New("callprovider: call id is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/calls/"+callID, nil)
	if err != nil {
		return CallInfo{}, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return CallInfo{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return CallInfo{}, ErrCallNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return CallInfo{}, fmt.Errorf("callprovider: get call status %d: %s", resp.StatusCode, body)
	}

	var out CallInfo
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return CallInfo{}, err
	}
	if out.CallID == "" {
		out.CallID = callID
	}
	return out, nil
}

func (c *HTTPClient) StopCall(ctx context.Context, callID string) error {
	if callID == "" {
		return errors.New("callprovider: call id is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/calls/"+callID+"/stop", nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("callprovider: stop call status %d: %s", resp.StatusCode, body)
	}
	return nil
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
