package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/papercomputeco/lumina/pkg/utils"
)

// maxErrorBody caps how much of an error response body is kept.
const maxErrorBody = 64 * 1024

// TransportError is returned when a request could not be completed at the
// network level: connection refused, DNS failure, context cancellation
// before the response headers arrived.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("network error: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RequestFailedError is returned when the server answered with a non-2xx
// status. Body holds the decoded JSON error body when the server sent one,
// otherwise the raw text.
type RequestFailedError struct {
	Method     string
	Path       string
	Status     int
	StatusText string
	Body       any
}

func (e *RequestFailedError) Error() string {
	msg := fmt.Sprintf("API error: %d %s", e.Status, e.StatusText)
	if detail := e.Detail(); detail != "" {
		msg += ": " + detail
	}
	return msg
}

// Detail returns the server's explanation of the failure: the "detail" or
// "error" field of a JSON body, or the raw text body.
func (e *RequestFailedError) Detail() string {
	switch body := e.Body.(type) {
	case string:
		return utils.Truncate(strings.TrimSpace(body), 200)
	case map[string]any:
		for _, key := range []string{"detail", "error", "message"} {
			switch v := body[key].(type) {
			case string:
				return v
			case map[string]any:
				if m, ok := v["message"].(string); ok {
					return m
				}
			}
		}
	}
	return ""
}

// IsNotFound reports whether err is a RequestFailedError with status 404.
func IsNotFound(err error) bool {
	var reqErr *RequestFailedError
	return errors.As(err, &reqErr) && reqErr.Status == http.StatusNotFound
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}

func newRequestFailedError(req *http.Request, resp *http.Response) *RequestFailedError {
	e := &RequestFailedError{
		Method:     req.Method,
		Path:       req.URL.Path,
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return e
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err == nil {
		e.Body = decoded
	} else {
		e.Body = string(raw)
	}

	return e
}

// statusText returns the reason phrase of resp.Status, which carries the
// code as a prefix ("404 Not Found").
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		return http.StatusText(resp.StatusCode)
	}
	return text
}
