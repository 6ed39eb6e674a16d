// Package policy talks to an external policy evaluator service
// (OPA-shaped) over HTTP and keeps a local directory of policy bodies
// hot-reloaded in sync with it.
package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Result is the outcome of an Evaluate call.
type Result struct {
	OK     bool
	Result any
	Error  string
}

// evaluateTimeout bounds a single HTTP round trip so one slow evaluator
// never stalls the pipeline past its own retry budget.
const evaluateTimeout = 5 * time.Second

// Client is an HTTP client for the policy evaluator service. Every
// method fails soft: Evaluate returns (Result{OK:false}, err) rather
// than panicking or blocking indefinitely, since the orchestrator
// treats evaluator unreachability as a fallback trigger, not a hard
// error.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client against baseURL (e.g. "http://localhost:8181").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: evaluateTimeout},
	}
}

type evaluateRequest struct {
	Input any `json:"input"`
	Data  any `json:"data,omitempty"`
}

type evaluateResponse struct {
	Result any `json:"result"`
}

// Evaluate calls POST {base}/v1/data/{policyPath}. A transport error,
// context deadline, or non-2xx response all come back as
// (Result{OK:false}, err) — evaluator unreachable, not a hard failure.
func (c *Client) Evaluate(ctx context.Context, policyPath string, input any, data any) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, evaluateTimeout)
	defer cancel()

	body, err := json.Marshal(evaluateRequest{Input: input, Data: data})
	if err != nil {
		return Result{OK: false}, fmt.Errorf("policy: marshal evaluate request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/data/%s", c.baseURL, policyPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{OK: false}, fmt.Errorf("policy: build evaluate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{OK: false}, fmt.Errorf("policy: evaluate %s: %w", policyPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{OK: false}, fmt.Errorf("policy: evaluate %s: evaluator returned %s", policyPath, resp.Status)
	}

	var out evaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{OK: false}, fmt.Errorf("policy: decode evaluate response: %w", err)
	}
	return Result{OK: true, Result: out.Result}, nil
}

// Load uploads a policy body. PUT /v1/policies/{name}.
func (c *Client) Load(ctx context.Context, name string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, evaluateTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/v1/policies/%s", c.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("policy: build load request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("policy: load %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("policy: load %s: evaluator returned %s", name, resp.Status)
	}
	return nil
}

// Delete removes a policy. DELETE /v1/policies/{name}.
func (c *Client) Delete(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, evaluateTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/v1/policies/%s", c.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("policy: build delete request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("policy: delete %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("policy: delete %s: evaluator returned %s", name, resp.Status)
	}
	return nil
}

type listResponse struct {
	Result []struct {
		ID string `json:"id"`
	} `json:"result"`
}

// List returns the names of loaded policies. GET /v1/policies.
func (c *Client) List(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, evaluateTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/v1/policies", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("policy: build list request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("policy: list: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("policy: list: evaluator returned %s", resp.Status)
	}

	var out listResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("policy: decode list response: %w", err)
	}
	names := make([]string, len(out.Result))
	for i, p := range out.Result {
		names[i] = p.ID
	}
	return names, nil
}

// Health calls GET /health and returns nil only on a 2xx response.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, evaluateTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/health", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("policy: build health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("policy: health: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("policy: health: evaluator returned %s", resp.Status)
	}
	return nil
}
