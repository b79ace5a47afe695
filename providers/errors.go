package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

var (
	// ErrRateLimited is matched by errors.Is for every throttling signal a
	// provider returns.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrUnknownKind is returned by Build for an unregistered provider kind.
	ErrUnknownKind = errors.New("unknown provider kind")
)

// RateLimitError reports a 429-style answer from an upstream.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	msg := fmt.Sprintf("%s: rate limited", e.Provider)
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is makes errors.Is(err, ErrRateLimited) true.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

func (e *RateLimitError) Unwrap() error { return e.Err }

// StatusError is a non-success HTTP answer that is not throttling.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s API error (%d)", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s API error (%d): %s", e.Provider, e.StatusCode, e.Body)
}

// IsRateLimited reports whether err carries a throttling signal.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// RetryAfter extracts the Retry-After hint from err, or 0.
func RetryAfter(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}

// statusError classifies a non-2xx HTTP response.
func statusError(provider string, resp *http.Response, body []byte) error {
	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{
			Provider:   provider,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	const maxBody = 512
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	return &StatusError{Provider: provider, StatusCode: resp.StatusCode, Body: string(body)}
}

// parseRetryAfter accepts both delay-seconds and HTTP-date forms.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// classifyHTTPStatus maps an SDK error's status code and header onto the
// package error types. Non-HTTP errors are returned unchanged.
func classifyHTTPStatus(provider string, status int, header http.Header, err error) error {
	switch {
	case status == http.StatusTooManyRequests:
		var retry time.Duration
		if header != nil {
			retry = parseRetryAfter(header.Get("Retry-After"))
		}
		return &RateLimitError{Provider: provider, RetryAfter: retry, Err: err}
	case status >= 400:
		return &StatusError{Provider: provider, StatusCode: status, Body: err.Error()}
	default:
		return err
	}
}

// ConfigError reports an invalid provider configuration.
type ConfigError struct {
	Provider string
	Field    string
	Reason   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("provider %q: %s %s", e.Provider, e.Field, e.Reason)
}
