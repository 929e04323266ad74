// Package google adapts the Docs, Sheets and Drive REST APIs to the merge
// engine: templates come from Docs, data grids from Sheets and artifacts are
// Drive copies exported through a direct link.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dusk-indust/mailmerge/internal/merge"
	"golang.org/x/oauth2"
)

// Default API endpoints.
const (
	DefaultDocsURL   = "https://docs.googleapis.com"
	DefaultSheetsURL = "https://sheets.googleapis.com"
	DefaultDriveURL  = "https://www.googleapis.com"
	DefaultExportURL = "https://docs.google.com"
)

// APIError is a non-success response from a Google API.
type APIError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("google %s: HTTP %d: %s", e.Service, e.StatusCode, body)
}

// Client is an authorized HTTP client for the Google APIs. Each Client
// owns its token source; nothing is shared between instances.
type Client struct {
	http   *http.Client
	tokens oauth2.TokenSource

	docsURL   string
	sheetsURL string
	driveURL  string
	exportURL string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying *http.Client. Its transport must
// add credentials itself.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithBaseURLs overrides API endpoints. Empty values keep the default.
func WithBaseURLs(docs, sheets, drive, export string) ClientOption {
	return func(c *Client) {
		if docs != "" {
			c.docsURL = strings.TrimRight(docs, "/")
		}
		if sheets != "" {
			c.sheetsURL = strings.TrimRight(sheets, "/")
		}
		if drive != "" {
			c.driveURL = strings.TrimRight(drive, "/")
		}
		if export != "" {
			c.exportURL = strings.TrimRight(export, "/")
		}
	}
}

// NewClient returns a Client whose requests are authorized by ts.
func NewClient(ctx context.Context, ts oauth2.TokenSource, opts ...ClientOption) *Client {
	hc := oauth2.NewClient(ctx, ts)
	hc.Timeout = 60 * time.Second
	c := &Client{
		http:      hc,
		tokens:    ts,
		docsURL:   DefaultDocsURL,
		sheetsURL: DefaultSheetsURL,
		driveURL:  DefaultDriveURL,
		exportURL: DefaultExportURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientWithToken authorizes requests with a fixed access token, as
// handed over by a browser OAuth flow.
func NewClientWithToken(ctx context.Context, accessToken string, opts ...ClientOption) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	return NewClient(ctx, ts, opts...)
}

// accessToken returns the current token for links that embed it.
func (c *Client) accessToken() (string, error) {
	tok, err := c.tokens.Token()
	if err != nil {
		return "", &merge.AuthExpiredError{Source: "google"}
	}
	return tok.AccessToken, nil
}

// do sends a JSON request and decodes a JSON response into out. Failures
// are classified: 401 and token refresh errors as expired credentials,
// 429/5xx and network timeouts as transient, anything else as *APIError.
func (c *Client) do(ctx context.Context, service, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("google %s: marshal request: %w", service, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("google %s: create request: %w", service, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransportError(service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &APIError{Service: service, StatusCode: resp.StatusCode, Body: string(raw)}
		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return &merge.AuthExpiredError{Source: "google " + service}
		case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
			return merge.Transient(apiErr)
		default:
			return apiErr
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("google %s: decode response: %w", service, err)
	}
	return nil
}

func classifyTransportError(service string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return &merge.AuthExpiredError{Source: "google " + service}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return merge.Transient(fmt.Errorf("google %s: %w", service, err))
	}
	if strings.Contains(err.Error(), "token expired") {
		return &merge.AuthExpiredError{Source: "google " + service}
	}
	return merge.Transient(fmt.Errorf("google %s: %w", service, err))
}

// statusCode extracts the HTTP status from a classified error, or 0.
func statusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
