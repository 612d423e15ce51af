package toolserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/LY-Tri/Spider2/pkg/bench"
)

// Client dispatches tool invocations to a remote tool server over HTTP.
// It satisfies Dispatcher, so sessions cannot tell it from the in-process
// server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for a tool server at baseURL, e.g.
// "http://127.0.0.1:8321". The HTTP client carries no timeout of its own;
// per-call deadlines come from the dispatch context.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// Dispatch sends one invocation and decodes the observation.
func (c *Client) Dispatch(ctx context.Context, inv bench.ToolInvocation) (bench.Observation, error) {
	body, err := json.Marshal(ExecuteRequest{
		ToolName:  inv.Name,
		Arguments: inv.Arguments,
	})
	if err != nil {
		return bench.Observation{}, fmt.Errorf("failed to encode execute request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return bench.Observation{}, fmt.Errorf("failed to build execute request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return bench.Observation{}, fmt.Errorf("tool server request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return bench.Observation{}, fmt.Errorf("tool server returned %d: %s", resp.StatusCode, string(data))
	}

	var out ExecuteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return bench.Observation{}, fmt.Errorf("failed to decode execute response: %w", err)
	}

	return bench.Observation{
		Text:      out.Observation,
		Status:    bench.ObservationStatus(out.Status),
		Truncated: out.Truncated,
	}, nil
}

// WaitReady polls /health until the server responds or the deadline passes.
func (c *Client) WaitReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("tool server not ready after %v", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
