// Package api is the REST client for the message-parsing backend.
//
// This package implements:
//   - One method per backend endpoint, returning decoded domain types
//   - Connection pooling through a shared, tuned http.Client
//   - Boundary validation: every decoded response is checked before it is
//     handed to callers
//
// Error mapping:
//   - Transport failures and non-2xx responses → errors.NetworkError
//   - Undecodable or invalid bodies → errors.MalformedResponseError
//   - 404 on a customer lookup → errors.NotFoundError
package api

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

	apperr "msgdash/internal/errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultBaseURL is the backend mount point used when none is configured.
const DefaultBaseURL = "http://localhost:8000/api"

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 32 << 20

// UploadFormat selects the upload and process-path endpoints.
type UploadFormat string

const (
	FormatJSON UploadFormat = "json"
	FormatCSV  UploadFormat = "csv"
)

// Client talks to the backend. It is safe for concurrent use.
type Client struct {
	baseURL          string
	http             *http.Client
	messagesEndpoint string
	messagesLimit    int
	format           UploadFormat
	csvDelimiter     string
	csvHasHeader     bool
	log              *logrus.Entry
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the pooled default client (useful for testing).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMessagesEndpoint selects the drill-down endpoint, e.g. /messages_demo
// or /messages. A positive limit is sent as the limit parameter.
func WithMessagesEndpoint(path string, limit int) Option {
	return func(c *Client) {
		c.messagesEndpoint = "/" + strings.TrimPrefix(path, "/")
		c.messagesLimit = limit
	}
}

// WithUploadFormat selects JSON or CSV ingestion. The delimiter and header
// flag are only sent for CSV.
func WithUploadFormat(format UploadFormat, delimiter string, hasHeader bool) Option {
	return func(c *Client) {
		c.format = format
		c.csvDelimiter = delimiter
		c.csvHasHeader = hasHeader
	}
}

// New creates a client for the backend mounted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:          strings.TrimRight(baseURL, "/"),
		http:             NewHTTPClient(30*time.Second, 0),
		messagesEndpoint: "/messages_demo",
		format:           FormatJSON,
		csvDelimiter:     ",",
		csvHasHeader:     true,
		log:              logrus.WithField("component", "api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Format returns the configured upload format.
func (c *Client) Format() UploadFormat {
	return c.format
}

// NewHTTPClient creates an HTTP client with connection pooling.
//
// Connection pool configuration:
//   - MaxIdleConns: 100 across all hosts
//   - MaxIdleConnsPerHost: 10, so one host cannot hold the whole pool
//   - IdleConnTimeout: 90 seconds
//   - MaxConnsPerHost: maxConns, 0 for no limit
//
// The dashboard fans out several requests per refresh against a single
// host, so keep-alive reuse matters more than raw connection count.
//
// Parameters:
//   - timeout: Maximum time for a complete request (including reading response)
//   - maxConns: Upper bound on concurrent connections to the backend
//
// Returns:
//   - *http.Client: Configured HTTP client
func NewHTTPClient(timeout time.Duration, maxConns int) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			MaxConnsPerHost:     maxConns,
			ForceAttemptHTTP2:   true,
		},
	}
}

// validator is implemented by every response type that has invariants.
type validator interface {
	Validate() error
}

// request describes one backend call.
type request struct {
	op          string
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
}

// getJSON issues a GET and decodes the response into out.
func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, out any) error {
	return c.do(ctx, request{op: op, method: http.MethodGet, path: path, query: query}, out)
}

// postJSON issues a POST with a JSON body and decodes the response into out.
func (c *Client) postJSON(ctx context.Context, op, path string, in, out any) error {
	req := request{op: op, method: http.MethodPost, path: path}
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		req.body = bytes.NewReader(payload)
		req.contentType = "application/json"
	}
	return c.do(ctx, req, out)
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, r.body)
	if err != nil {
		return apperr.NewNetworkError(r.op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	log := c.log.WithFields(logrus.Fields{
		"op":         r.op,
		"request_id": requestID,
	})

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.WithError(err).Debug("Request failed")
		return apperr.NewNetworkError(r.op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return apperr.NewNetworkError(r.op, fmt.Errorf("read response: %w", err))
	}

	log.WithFields(logrus.Fields{
		"status":   resp.StatusCode,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debugf("%s %s", r.method, r.path)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.NewStatusError(r.op, resp.StatusCode, errorDetail(data))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperr.NewMalformedResponseError(r.op, err)
	}
	if v, ok := out.(validator); ok {
		if err := v.Validate(); err != nil {
			return apperr.NewMalformedResponseError(r.op, err)
		}
	}
	return nil
}

// errorDetail extracts a readable message from an error body. FastAPI sends
// {"detail": "..."} or, for validation failures, {"detail": [{"msg": ...}]}.
func errorDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		var text string
		if json.Unmarshal(payload.Detail, &text) == nil && text != "" {
			return text
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if json.Unmarshal(payload.Detail, &items) == nil && len(items) > 0 {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				if it.Msg != "" {
					msgs = append(msgs, it.Msg)
				}
			}
			if len(msgs) > 0 {
				return strings.Join(msgs, "; ")
			}
		}
		if payload.Error != "" {
			return payload.Error
		}
	}

	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return text
}
