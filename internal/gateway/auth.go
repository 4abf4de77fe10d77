package gateway

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"golang.org/x/oauth2"
)

// AuthConfig selects how requests to GitHub are authenticated. A GitHub App
// installation is used when AppID is set, otherwise the static Token.
type AuthConfig struct {
	Token          string
	AppID          int64
	InstallationID int64
	PrivateKeyPath string

	// ResponseTimeout bounds the wait for the response headers of one request.
	// Secondary rate-limit sleeps happen above it and are not bounded.
	ResponseTimeout time.Duration
}

// NewHTTPClient builds the authenticated HTTP client shared by the REST and
// GraphQL clients. Secondary rate limits are absorbed by the waiter at the
// bottom of the transport chain; primary limits surface as *RateLimitError.
func NewHTTPClient(cfg AuthConfig) (*http.Client, error) {
	rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(newBaseTransport(cfg.ResponseTimeout), github_ratelimit.WithSingleSleepLimit(1*time.Hour, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
	}
	base := &rateLimitTransport{base: rateLimitWaiter}

	if cfg.AppID > 0 {
		if cfg.InstallationID <= 0 {
			return nil, fmt.Errorf("installation id must be > 0 when app id is set")
		}
		if strings.TrimSpace(cfg.PrivateKeyPath) == "" {
			return nil, fmt.Errorf("private key path is required when app id is set")
		}
		transport, err := ghinstallation.NewKeyFromFile(base, cfg.AppID, cfg.InstallationID, cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("create github app transport: %w", err)
		}
		return &http.Client{Transport: transport}, nil
	}

	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("GITHUB_TOKEN is not set and no GitHub App is configured")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	return &http.Client{
		Transport: &oauth2.Transport{
			Base:   base,
			Source: ts,
		},
	}, nil
}

// newBaseTransport is the network transport under the rate-limit waiter.
func newBaseTransport(responseTimeout time.Duration) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = responseTimeout
	return transport
}
