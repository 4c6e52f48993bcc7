// Package registry talks to the metadata service that tracks runs, their
// tags and their attempts. When no service URL is configured a static
// registry stands in so tasks launch without network dependencies.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"taskplane/pkg/api"
)

// Registry is what the launch path needs from the metadata service.
type Registry interface {
	// RunTags returns the creator and system tags of a run.
	RunTags(ctx context.Context, flowName, runID string) (RunTags, error)
	// RegisterAttempt announces a launched attempt and returns its id.
	RegisterAttempt(ctx context.Context, req api.RegisterAttemptRequest) (string, error)
	// CompleteAttempt records an attempt's terminal outcome.
	CompleteAttempt(ctx context.Context, attemptID string, req api.CompleteAttemptRequest) error
}

// RunTags carries the registry's view of a run.
type RunTags struct {
	User    string
	SysTags []string
}

// APIError represents an error response from the registry service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("registry error (%d): %s", e.StatusCode, e.Message)
}

// Client is the HTTP registry client.
type Client struct {
	BaseURL    string
	Headers    map[string]string
	HTTPClient *http.Client
}

var _ Registry = (*Client)(nil)

// NewClient creates a client for the registry at baseURL. headers are added
// to every request, typically auth material from configuration.
func NewClient(baseURL string, headers map[string]string) *Client {
	return &Client{
		BaseURL: baseURL,
		Headers: headers,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Add("Content-Type", "application/json")
	httpReq.Header.Add("X-Request-ID", uuid.NewString())
	for k, v := range c.Headers {
		httpReq.Header.Add(k, v)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// RunTags sends GET /flows/{flow}/runs/{run}/tags.
func (c *Client) RunTags(ctx context.Context, flowName, runID string) (RunTags, error) {
	var resp api.RunTagsResponse
	path := fmt.Sprintf("/flows/%s/runs/%s/tags", flowName, runID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return RunTags{}, err
	}
	return RunTags{User: resp.User, SysTags: resp.SysTags}, nil
}

// RegisterAttempt sends POST /attempts.
func (c *Client) RegisterAttempt(ctx context.Context, req api.RegisterAttemptRequest) (string, error) {
	var resp api.RegisterAttemptResponse
	if err := c.do(ctx, http.MethodPost, "/attempts", req, &resp); err != nil {
		return "", err
	}
	return resp.AttemptID, nil
}

// CompleteAttempt sends POST /attempts/{id}/complete.
func (c *Client) CompleteAttempt(ctx context.Context, attemptID string, req api.CompleteAttemptRequest) error {
	path := fmt.Sprintf("/attempts/%s/complete", attemptID)
	return c.do(ctx, http.MethodPost, path, req, nil)
}

// Static serves fixed tags without a service. Attempt registration hands out
// local ids and completion is a no-op.
type Static struct {
	User string
	Tags []string
}

var _ Registry = (*Static)(nil)

func (s *Static) RunTags(ctx context.Context, flowName, runID string) (RunTags, error) {
	return RunTags{User: s.User, SysTags: s.Tags}, nil
}

func (s *Static) RegisterAttempt(ctx context.Context, req api.RegisterAttemptRequest) (string, error) {
	return uuid.NewString(), nil
}

func (s *Static) CompleteAttempt(ctx context.Context, attemptID string, req api.CompleteAttemptRequest) error {
	return nil
}
