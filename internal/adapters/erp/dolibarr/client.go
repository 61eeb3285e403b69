// Package dolibarr is a client for the Dolibarr ERP REST API.
//
// Only the endpoints needed for bank reconciliation are covered: invoices,
// third parties, bank accounts, bank lines and payments.
package dolibarr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/eshaffer321/bankrecon/internal/infrastructure/config"
)

var (
	// ErrNotFound is returned when Dolibarr answers 404. Listing endpoints
	// also answer 404 when nothing matches; list methods turn that into an
	// empty result.
	ErrNotFound = errors.New("dolibarr: not found")

	// ErrUnauthorized is returned on 401/403, usually a bad DOLAPIKEY.
	ErrUnauthorized = errors.New("dolibarr: unauthorized")
)

// APIError is any other non-2xx answer.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dolibarr: status %d: %s", e.StatusCode, e.Body)
}

const maxErrorBody = 500

// Options tunes the HTTP transport.
type Options struct {
	Timeout      time.Duration // Default: 30s
	RetryMax     int           // Default: 3
	RetryWaitMin time.Duration // Default: retryablehttp's
	RetryWaitMax time.Duration
	Logger       *slog.Logger
}

// Client talks to one Dolibarr instance.
type Client struct {
	baseURL string
	apiKey  string
	http    *retryablehttp.Client
	logger  *slog.Logger
}

// NewClient creates a client. baseURL may be the site root, ".../api" or
// ".../api/index.php".
func NewClient(baseURL, apiKey string, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.RetryMax
	if opts.RetryMax < 0 {
		rc.RetryMax = 0
	}
	if opts.RetryWaitMin > 0 {
		rc.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		rc.RetryWaitMax = opts.RetryWaitMax
	}
	rc.HTTPClient.Timeout = opts.Timeout
	if opts.Timeout <= 0 {
		rc.HTTPClient.Timeout = 30 * time.Second
	}
	rc.Logger = logger
	// Hand the last response back instead of a generic "giving up" error so
	// status codes can be mapped.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL: NormalizeBaseURL(baseURL),
		apiKey:  apiKey,
		http:    rc,
		logger:  logger,
	}
}

// NewClientFromConfig builds a client from the dolibarr config section
func NewClientFromConfig(cfg config.DolibarrConfig, apiKey string, logger *slog.Logger) *Client {
	return NewClient(cfg.URL, apiKey, Options{
		Timeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
		RetryMax: cfg.RetryMax,
		Logger:   logger,
	})
}

// NormalizeBaseURL appends the REST entry point to a Dolibarr URL when it is
// missing.
func NormalizeBaseURL(raw string) string {
	u := strings.TrimRight(strings.TrimSpace(raw), "/")
	switch {
	case strings.HasSuffix(u, "/api/index.php"):
		return u
	case strings.HasSuffix(u, "/api"):
		return u + "/index.php"
	default:
		return u + "/api/index.php"
	}
}

// BaseURL returns the normalized REST entry point
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do performs one API call and decodes the JSON answer into out (when not
// nil). It returns the raw body for callers that need it.
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body, out any) ([]byte, error) {
	u := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = b
	}

	var reqBody any
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("DOLAPIKEY", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dolibarr %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusNotImplemented && method == http.MethodPost:
		// Dolibarr sometimes answers 501 after creating the object.
		c.logger.Warn("dolibarr answered 501 on create, assuming success", "endpoint", endpoint)
	case resp.StatusCode >= 400:
		text := strings.TrimSpace(string(data))
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Body: text}
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return data, fmt.Errorf("failed to decode %s response: %w", endpoint, err)
		}
	}
	return data, nil
}

// list is do for listing endpoints: 404 means an empty list.
func (c *Client) list(ctx context.Context, endpoint string, query url.Values, out any) error {
	_, err := c.do(ctx, http.MethodGet, endpoint, query, nil, out)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// create posts body and returns the id Dolibarr answers with. A 501 without
// a usable id yields 0.
func (c *Client) create(ctx context.Context, endpoint string, body any) (int64, error) {
	data, err := c.do(ctx, http.MethodPost, endpoint, nil, body, nil)
	if err != nil {
		return 0, err
	}
	var id ID
	if len(bytes.TrimSpace(data)) == 0 {
		return 0, nil
	}
	if err := json.Unmarshal(data, &id); err != nil {
		return 0, fmt.Errorf("dolibarr %s: unexpected create response %q", endpoint, truncate(string(data), 100))
	}
	return int64(id), nil
}

// Ping checks connectivity and credentials
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "status", nil, nil, nil)
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
