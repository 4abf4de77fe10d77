package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateLimitHeaders contains parsed GitHub rate-limit response headers.
type RateLimitHeaders struct {
	Limited    bool
	Remaining  int
	ResetUnix  int64
	RetryAfter time.Duration
}

// ParseRateLimitHeaders parses the primary rate-limit headers of a response.
func ParseRateLimitHeaders(header http.Header) RateLimitHeaders {
	parsed := RateLimitHeaders{
		Remaining: parseInt(header.Get("X-RateLimit-Remaining")),
		ResetUnix: parseInt64(header.Get("X-RateLimit-Reset")),
	}
	parsed.Limited = header.Get("X-RateLimit-Remaining") == "0"
	if seconds := parseInt(header.Get("Retry-After")); seconds > 0 {
		parsed.RetryAfter = time.Duration(seconds) * time.Second
	}
	return parsed
}

// RateLimitError is returned when GitHub rejects a request because the
// primary rate limit is exhausted. Reset is when the budget refills.
type RateLimitError struct {
	StatusCode int
	Reset      time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("github rate limit exceeded (status %d), resets at %s", e.StatusCode, e.Reset.UTC().Format(time.RFC3339))
}

// GraphQLError is a GraphQL error that another attempt cannot fix, such as
// an unknown repository or a missing permission.
type GraphQLError struct {
	Type    string
	Message string
}

func (e *GraphQLError) Error() string {
	return fmt.Sprintf("graphql %s: %s", e.Type, e.Message)
}

// defaultGraphQLWait is assumed when a RATE_LIMITED response carries no reset header.
const defaultGraphQLWait = time.Minute

// rateLimitTransport turns rate-limited responses into *RateLimitError so
// REST and GraphQL calls surface the same error to the retry loop. GraphQL
// reports its limit with status 200 and a RATE_LIMITED error in the body.
type rateLimitTransport struct {
	base http.RoundTripper
	now  func() time.Time
}

func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusOK && strings.HasSuffix(req.URL.Path, "/graphql") {
		return t.inspectGraphQL(resp)
	}
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusTooManyRequests {
		return resp, nil
	}

	headers := ParseRateLimitHeaders(resp.Header)
	if !headers.Limited && headers.RetryAfter == 0 {
		return resp, nil
	}
	drain(resp)
	return nil, t.limitError(resp.StatusCode, headers, 0)
}

// inspectGraphQL reads the errors of a GraphQL response. A rate limit or a
// permanent error replaces the response; otherwise the body is restored.
func (t *rateLimitTransport) inspectGraphQL(resp *http.Response) (*http.Response, error) {
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	var doc struct {
		Errors []struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return resp, nil
	}
	for _, gqlErr := range doc.Errors {
		switch gqlErr.Type {
		case "RATE_LIMITED":
			return nil, t.limitError(resp.StatusCode, ParseRateLimitHeaders(resp.Header), defaultGraphQLWait)
		case "NOT_FOUND", "FORBIDDEN":
			return nil, &GraphQLError{Type: gqlErr.Type, Message: gqlErr.Message}
		}
	}
	return resp, nil
}

func (t *rateLimitTransport) limitError(status int, headers RateLimitHeaders, fallback time.Duration) *RateLimitError {
	now := time.Now
	if t.now != nil {
		now = t.now
	}
	var reset time.Time
	switch {
	case headers.ResetUnix > 0:
		reset = time.Unix(headers.ResetUnix, 0)
	case headers.RetryAfter > 0:
		reset = now().Add(headers.RetryAfter)
	default:
		reset = now().Add(fallback)
	}
	return &RateLimitError{StatusCode: status, Reset: reset}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func parseInt(raw string) int {
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}

func parseInt64(raw string) int64 {
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
