// Web fetch tool.
//
// Notes often reference external URLs; this tool lets the agent pull them
// in. Responses are capped so a large page cannot flood the transcript.
//
// Information Hiding:
// - HTTP client implementation details hidden
// - Domain allowlisting hidden
// - Response truncation policy hidden

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// WebFetchName is the registered name of the web fetch tool.
const WebFetchName = "web_fetch"

// DefaultMaxFetchBytes caps the response body returned to the model.
const DefaultMaxFetchBytes = 64 * 1024

// WebFetchTool fetches the content of a URL.
type WebFetchTool struct {
	BaseTool
	client         *http.Client
	timeoutSecs    uint64
	maxBodyBytes   int64
	allowedDomains []string
}

// NewWebFetchTool creates a new web fetch tool with the given timeout.
func NewWebFetchTool(timeoutSecs uint64) *WebFetchTool {
	return &WebFetchTool{
		client: &http.Client{
			Timeout: time.Duration(timeoutSecs) * time.Second,
		},
		timeoutSecs:  timeoutSecs,
		maxBodyBytes: DefaultMaxFetchBytes,
	}
}

// WithAllowedDomains sets the allowed domains for requests.
func (t *WebFetchTool) WithAllowedDomains(domains []string) *WebFetchTool {
	t.allowedDomains = domains
	return t
}

// Metadata returns the tool metadata.
func (t *WebFetchTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        WebFetchName,
		Description: "Fetch the content of a URL referenced in a note",
		Parameters: []ToolParameter{
			{Name: "url", ParamType: "string", Description: "The URL to fetch", Required: true},
		},
	}
}

type webFetchArgs struct {
	URL string `json:"url"`
}

// Validate validates the arguments.
func (t *WebFetchTool) Validate(args json.RawMessage) error {
	var a webFetchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if a.URL == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	return nil
}

// Execute fetches the URL.
func (t *WebFetchTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a webFetchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return FailureResult(fmt.Errorf("invalid arguments: %w", err)), nil
	}

	if a.URL == "" {
		return FailureResultf("URL cannot be empty"), nil
	}
	if !t.isDomainAllowed(a.URL) {
		return FailureResultf("access to domain in '%s' is not allowed", a.URL), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return FailureResult(fmt.Errorf("failed to create request: %w", err)), nil
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return FailureResultf("request timed out after %d seconds", t.timeoutSecs), nil
		}
		return FailureResult(fmt.Errorf("request failed: %w", err)), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBodyBytes+1))
	if err != nil {
		return FailureResult(fmt.Errorf("failed to read response body: %w", err)), nil
	}

	truncated := ""
	if int64(len(body)) > t.maxBodyBytes {
		body = body[:t.maxBodyBytes]
		truncated = "\n\n(response truncated)"
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return SuccessResult(fmt.Sprintf("Status: %s\n\n%s%s", resp.Status, string(body), truncated)), nil
	}
	return FailureResultf("HTTP error: %s\n\n%s", resp.Status, string(body)), nil
}

// isDomainAllowed checks if the URL's domain is in the allowlist.
// Uses proper URL parsing to prevent bypass attacks.
func (t *WebFetchTool) isDomainAllowed(urlStr string) bool {
	if len(t.allowedDomains) == 0 {
		return true
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	host := u.Hostname()
	for _, domain := range t.allowedDomains {
		// Exact match or subdomain match
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
