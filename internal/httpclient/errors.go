package httpclient

import (
	"errors"
	"fmt"
	"time"
)

// ErrRequestFailed marks a request that got no HTTP response at all:
// connection refused, DNS failure, timeout.
var ErrRequestFailed = errors.New("http request failed")

// maxBodyInError caps how much of a response body an error message quotes.
const maxBodyInError = 200

// RateLimitError is a 429 or 503 answer. Nothing in gamesync waits and
// retries; the error is reported and the breaker counts it.
type RateLimitError struct {
	URL        string
	StatusCode int
	// RetryAfter is the server's Retry-After hint, zero when absent.
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	msg := fmt.Sprintf("%s: rate limited (status %d)", e.URL, e.StatusCode)
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(", retry after %v", e.RetryAfter)
	}
	return msg
}

// HTTPError is any other non-2xx answer. Immich explains rejected uploads in
// the body, so short bodies are part of the message.
type HTTPError struct {
	URL        string
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	if n := len(e.Body); n > 0 && n <= maxBodyInError {
		return fmt.Sprintf("%s: status %d: %s", e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: status %d", e.URL, e.StatusCode)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.StatusCode
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}
