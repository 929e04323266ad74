package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dusk-indust/mailmerge/internal/export"
	"github.com/dusk-indust/mailmerge/internal/jobs"
	"github.com/dusk-indust/mailmerge/internal/lineage"
	"github.com/dusk-indust/mailmerge/internal/orchestrator"
)

// Client talks to a running mailmerge server.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the HTTP client timeout. Event streams ignore it.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithHTTPClient replaces the underlying *http.Client entirely.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit creates and starts a job.
func (c *Client) Submit(ctx context.Context, req orchestrator.Request) (*jobs.Job, error) {
	var job jobs.Job
	if err := c.do(ctx, http.MethodPost, "/api/v1/jobs", req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Get returns a job snapshot.
func (c *Client) Get(ctx context.Context, id string) (*jobs.Job, error) {
	var job jobs.Job
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+url.PathEscape(id), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// List returns one page of jobs.
func (c *Client) List(ctx context.Context, f jobs.ListFilter) (*jobs.ListResult, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.TemplateID != "" {
		q.Set("templateId", f.TemplateID)
	}
	if f.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(f.PageSize))
	}
	if f.PageToken != "" {
		q.Set("pageToken", f.PageToken)
	}
	path := "/api/v1/jobs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var res jobs.ListResult
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Cancel requests cancellation of a job.
func (c *Client) Cancel(ctx context.Context, id string) (*jobs.Job, error) {
	var job jobs.Job
	if err := c.do(ctx, http.MethodPost, "/api/v1/jobs/"+url.PathEscape(id)+"/cancel", nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Manifest returns the job's artifact manifest.
func (c *Client) Manifest(ctx context.Context, id string) (*export.JobManifest, error) {
	var m export.JobManifest
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+url.PathEscape(id)+"/manifest", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Fields compares template tokens with data source headers.
func (c *Client) Fields(ctx context.Context, req orchestrator.Request) (*orchestrator.FieldReport, error) {
	var rep orchestrator.FieldReport
	if err := c.do(ctx, http.MethodPost, "/api/v1/fields", req, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// Lineage returns the provenance graph recorded for a template.
func (c *Client) Lineage(ctx context.Context, templateID string) (*lineage.Graph, error) {
	var g lineage.Graph
	if err := c.do(ctx, http.MethodGet, lineagePath(templateID), nil, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// LineageMermaid returns the template's provenance as a Mermaid diagram.
func (c *Client) LineageMermaid(ctx context.Context, templateID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+lineagePath(templateID)+"?format=mermaid", nil)
	if err != nil {
		return "", fmt.Errorf("api: create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("api: lineage: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", decodeError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("api: read lineage: %w", err)
	}
	return string(data), nil
}

func lineagePath(templateID string) string {
	return "/api/v1/templates/" + url.PathEscape(templateID) + "/lineage"
}

// Events opens the job's event stream. The channel closes after the
// terminal event or when ctx is cancelled.
func (c *Client) Events(ctx context.Context, id string) (<-chan StreamEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/jobs/"+url.PathEscape(id)+"/events", nil)
	if err != nil {
		return nil, fmt.Errorf("api: create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// Streams outlive the request timeout.
	hc := *c.http
	hc.Timeout = 0
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api: events: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return ReadEvents(ctx, resp.Body), nil
}

// do sends a JSON request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("api: create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("api: decode response: %w", err)
		}
	}
	return nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	APIError
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: HTTP %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)
	se := &StatusError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(data, &se.APIError); err != nil || se.Code == "" {
		se.Code = http.StatusText(resp.StatusCode)
		se.Message = strings.TrimSpace(string(data))
	}
	return se
}
