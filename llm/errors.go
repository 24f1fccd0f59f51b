// Error classification for provider failures.
//
// Providers return wrapped SDK errors; callers need to distinguish
// transient overload (retryable) and authentication failures (actionable
// user message) from everything else. Classification uses status codes
// when the SDK exposes them and message heuristics otherwise.

package llm

import (
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
)

// IsOverloaded reports whether err represents transient provider overload
// (rate limiting, capacity errors). These are worth retrying with backoff.
func IsOverloaded(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429, 500, 503, 529:
			return true
		}
	}

	var anthErr *anthropic.Error
	if errors.As(err, &anthErr) {
		switch anthErr.StatusCode {
		case 429, 500, 503, 529:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{"overloaded", "rate limit", "too many requests", "capacity", "529"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// IsAuthError reports whether err looks like an authentication or
// authorization failure (bad or missing API key).
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403 {
			return true
		}
	}

	var anthErr *anthropic.Error
	if errors.As(err, &anthErr) {
		if anthErr.StatusCode == 401 || anthErr.StatusCode == 403 {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{"api key", "authentication", "unauthorized", "invalid_api_key", "401", "403"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
