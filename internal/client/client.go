// Package client talks to a remote flowry API.
package client

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

	"github.com/foxzi/flowry/internal/api"
	"github.com/foxzi/flowry/internal/readiness"
)

// Client is a flowry API client
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new client. token is an API key or a bearer token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Error is a non-2xx API response
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// request performs an HTTP request to the flowry API
func (c *Client) request(ctx context.Context, method, path string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// decodeError reads either {"error": ...} or {"errors": [...]}
func decodeError(resp *http.Response) error {
	var body struct {
		Error  string   `json:"error"`
		Errors []string `json:"errors"`
	}
	apiErr := &Error{StatusCode: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		apiErr.Message = body.Error
		if apiErr.Message == "" {
			apiErr.Message = strings.Join(body.Errors, ", ")
		}
	}
	return apiErr
}

// Health checks server health
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var resp api.HealthResponse
	if err := c.request(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListCampaigns lists the caller's campaigns
func (c *Client) ListCampaigns(ctx context.Context) (*api.CampaignListResponse, error) {
	var resp api.CampaignListResponse
	if err := c.request(ctx, http.MethodGet, "/api/v1/campaigns", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetCampaign gets one campaign
func (c *Client) GetCampaign(ctx context.Context, id string) (*api.CampaignResponse, error) {
	var resp api.CampaignResponse
	if err := c.request(ctx, http.MethodGet, "/api/v1/campaigns/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Preflight runs the readiness check on a stored campaign
func (c *Client) Preflight(ctx context.Context, id string) (*readiness.Report, error) {
	var resp readiness.Report
	if err := c.request(ctx, http.MethodPost, "/api/v1/campaigns/"+url.PathEscape(id)+"/preflight_check", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Export starts an export job
func (c *Client) Export(ctx context.Context, id, format string) (*api.JobAccepted, error) {
	path := "/api/v1/campaigns/" + url.PathEscape(id) + "/export"
	if format != "" {
		path += "?format=" + url.QueryEscape(format)
	}
	var resp api.JobAccepted
	if err := c.request(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetJob gets a background job
func (c *Client) GetJob(ctx context.Context, id string) (*api.JobResponse, error) {
	var resp api.JobResponse
	if err := c.request(ctx, http.MethodGet, "/api/v1/jobs/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// WaitJob polls a job until it leaves pending and processing or ctx is done
func (c *Client) WaitJob(ctx context.Context, id string, interval time.Duration) (*api.JobResponse, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := c.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}
