// Package client is the HTTP client for the local inference server: the
// OpenAI-compatible chat completions endpoint plus the model management,
// chat storage and document endpoints served next to it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/lumina/pkg/llm/provider"
)

// DefaultBaseURL is the address the inference server listens on by default.
const DefaultBaseURL = "http://localhost:6999"

// Client talks to a single inference server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	provider   provider.Provider
	logger     *zap.Logger

	// streamTee receives a raw copy of every streamed response body.
	streamTee io.Writer
	readSize  int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client. Streamed responses are
// read for as long as the server produces tokens, so the client should not
// carry a Timeout; bound requests with their context instead.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithProvider sets the wire format used for chat completions.
func WithProvider(p provider.Provider) Option {
	return func(c *Client) {
		if p != nil {
			c.provider = p
		}
	}
}

// WithStreamTee copies every raw byte of streamed responses to w.
func WithStreamTee(w io.Writer) Option {
	return func(c *Client) {
		c.streamTee = w
	}
}

// WithStreamReadSize sets the buffer size for each read of a streamed body.
func WithStreamReadSize(n int) Option {
	return func(c *Client) {
		c.readSize = n
	}
}

// New creates a Client for the server at baseURL. An empty baseURL uses
// DefaultBaseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("invalid api target %q: must start with http:// or https://", baseURL)
	}

	p, err := provider.New(provider.OpenAI)
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		provider:   p,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// BaseURL returns the server address without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// newRequest builds a request for path relative to the base URL. A non-nil
// body is encoded as JSON.
func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling %s %s request: %w", method, path, err)
		}
		r = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("creating %s %s request: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// send executes req. Network failures become *TransportError and non-2xx
// responses become *RequestFailedError; in both cases no body is returned.
// On success the caller owns resp.Body.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL.String()),
			zap.Error(err),
		)
		return nil, &TransportError{Method: req.Method, URL: req.URL.String(), Err: err}
	}

	c.logger.Debug("response received",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, newRequestFailedError(req, resp)
	}

	return resp, nil
}

// do sends a JSON request and decodes a JSON response into out, if non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}

	return nil
}
