package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/go-github/v84/github"
	"github.com/naka-gawa/github-activity-report/internal/domain"
	"go.uber.org/zap"
)

// RetryConfig configures retry behavior for a single page request.
type RetryConfig struct {
	// MaxAttempts bounds attempts for transport and 5xx errors.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// ResetBuffer is added to the reported rate-limit reset before resuming.
	ResetBuffer time.Duration
}

// DefaultRetryConfig returns the retry policy used when none is configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		ResetBuffer:    time.Second,
	}
}

// withRetry runs call until it succeeds. A rate-limited call waits for the
// reset and is retried once; a second rate limit on the same call is fatal.
// Other failures are retried with exponential backoff up to MaxAttempts.
func (g *GitHubGateway) withRetry(ctx context.Context, call func(ctx context.Context) error) error {
	maxAttempts := max(g.retry.MaxAttempts, 1)
	rateLimited := false
	attempts := 0
	for {
		err := call(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}

		if reset, ok := g.rateLimitReset(err); ok {
			if rateLimited {
				return fmt.Errorf("%w: %w", domain.ErrRateLimitExhausted, err)
			}
			rateLimited = true
			wait := reset.Sub(g.now()) + g.retry.ResetBuffer
			g.logger.Warn("rate limit exceeded, suspending until reset",
				zap.Time("reset", reset), zap.Duration("wait", wait))
			if err := g.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		attempts++
		if !isRetryable(err) || attempts >= maxAttempts {
			return err
		}
		backoff := backoffForAttempt(g.retry, attempts)
		g.logger.Debug("request failed, retrying",
			zap.Int("attempt", attempts), zap.Duration("backoff", backoff), zap.Error(err))
		if err := g.sleep(ctx, backoff); err != nil {
			return err
		}
	}
}

func (g *GitHubGateway) rateLimitReset(err error) (time.Time, bool) {
	var limitErr *RateLimitError
	if errors.As(err, &limitErr) {
		return limitErr.Reset, true
	}
	var ghLimitErr *github.RateLimitError
	if errors.As(err, &ghLimitErr) {
		return ghLimitErr.Rate.Reset.Time, true
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return g.now().Add(abuseErr.GetRetryAfter()), true
	}
	return time.Time{}, false
}

// isRetryable reports whether err is worth another attempt. Client errors
// returned by the REST API and NOT_FOUND or FORBIDDEN GraphQL errors are permanent.
func isRetryable(err error) bool {
	var gqlErr *GraphQLError
	if errors.As(err, &gqlErr) {
		return false
	}
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		return respErr.Response.StatusCode >= 500
	}
	return true
}

func backoffForAttempt(retry RetryConfig, attempt int) time.Duration {
	backoff := retry.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if retry.MaxBackoff > 0 && backoff > retry.MaxBackoff {
			return retry.MaxBackoff
		}
	}
	if retry.MaxBackoff > 0 && backoff > retry.MaxBackoff {
		return retry.MaxBackoff
	}
	return backoff
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
