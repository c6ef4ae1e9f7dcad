package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"relctl/internal/api"
	"relctl/internal/release"
)

// DefaultTimeout bounds every call but Run, which follows its context.
const DefaultTimeout = 30 * time.Second

// Client talks to a running `relctl serve` over HTTP. It implements the same
// surface as the local orchestrator so commands work against either.
type Client struct {
	endpoint string
	http     *http.Client
	timeout  time.Duration
}

var _ api.Releaser = (*Client)(nil)

// NewClient creates a client for the API at endpoint, e.g.
// "http://127.0.0.1:8085". A bare host:port is accepted.
func NewClient(endpoint string) *Client {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{},
		timeout:  DefaultTimeout,
	}
}

// RemoteError is an error reported by the server. It unwraps to the matching
// release sentinel so callers can use errors.Is regardless of transport.
type RemoteError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Unwrap() error {
	switch e.Code {
	case "release_in_progress":
		return release.ErrReleaseInProgress
	case "not_found":
		return release.ErrNotFound
	case "invalid_spec":
		return release.ErrInvalidSpec
	}
	return nil
}

// Problems returns the validation problems of an invalid_spec error.
func (e *RemoteError) Problems() []string {
	raw, _ := e.Details["problems"].([]any)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		out = append(out, fmt.Sprint(p))
	}
	return out
}

// Run submits a spec and waits for the terminal record. The server bounds
// the release by the remaining time of ctx, when ctx has a deadline.
func (c *Client) Run(ctx context.Context, spec release.Spec) (*release.Record, error) {
	body, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode release spec: %w", err)
	}

	path := "/v1/releases"
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline).Round(time.Second)
		if remaining > 0 {
			path += "?timeout=" + url.QueryEscape(remaining.String())
		}
	}

	var rec release.Record
	if err := c.do(ctx, http.MethodPost, path, bytes.NewReader(body), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) Current(ctx context.Context, namespace string) (*release.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var rec release.Record
	if err := c.do(ctx, http.MethodGet, "/v1/namespaces/"+url.PathEscape(namespace)+"/current", nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) History(ctx context.Context, namespace string) ([]release.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var records []release.Record
	if err := c.do(ctx, http.MethodGet, "/v1/namespaces/"+url.PathEscape(namespace)+"/releases", nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) Get(ctx context.Context, id string) (*release.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var rec release.Record
	if err := c.do(ctx, http.MethodGet, "/v1/releases/"+url.PathEscape(id), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) Abandon(ctx context.Context, namespace, reason string) (*release.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"reason": reason})
	if err != nil {
		return nil, err
	}
	var rec release.Record
	if err := c.do(ctx, http.MethodPost, "/v1/namespaces/"+url.PathEscape(namespace)+"/abandon", bytes.NewReader(body), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach relctl server at %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	remote := &RemoteError{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, remote); err != nil || remote.Message == "" {
		remote.Code = "http_error"
		remote.Message = fmt.Sprintf("server returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return remote
}
