// Package usecase contains the business logic of the application.
package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/naka-gawa/github-activity-report/internal/domain"
	"github.com/naka-gawa/github-activity-report/internal/gateway"
)

// DefaultConcurrency bounds the number of repositories fetched at once.
const DefaultConcurrency = 4

// Collector fetches the raw activity of every repository of a window.
type Collector struct {
	fetcher     gateway.Fetcher
	logger      *zap.Logger
	concurrency int
	kinds       []domain.Kind
}

// NewCollector creates a Collector fetching kinds with at most concurrency
// repositories in flight.
func NewCollector(fetcher gateway.Fetcher, logger *zap.Logger, concurrency int, kinds []domain.Kind) *Collector {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if len(kinds) == 0 {
		kinds = domain.Kinds
	}
	return &Collector{
		fetcher:     fetcher,
		logger:      logger,
		concurrency: concurrency,
		kinds:       kinds,
	}
}

// Collect fetches every repository of window concurrently. Results keep
// the order of window.Repositories. A failing repository only marks its
// own result; the others are collected in full.
func (c *Collector) Collect(ctx context.Context, window domain.CollectionWindow) []domain.RepoResult {
	c.logger.Info("Starting collection",
		zap.Int("repositories", len(window.Repositories)),
		zap.String("since", window.SinceDate()),
		zap.String("until", window.UntilDate()),
	)

	results := make([]domain.RepoResult, len(window.Repositories))

	var eg errgroup.Group
	eg.SetLimit(c.concurrency)
	for i, repo := range window.Repositories {
		eg.Go(func() error {
			payloads, err := c.collectRepository(ctx, repo, window)
			if err != nil {
				c.logger.Warn("Failed to collect repository, skipping", zap.String("repository", repo), zap.Error(err))
				results[i] = domain.RepoResult{Repository: repo, Err: err}
				return nil
			}
			results[i] = domain.RepoResult{Repository: repo, Payloads: payloads}
			return nil
		})
	}
	_ = eg.Wait()

	c.logger.Info("Collection complete", zap.Int("failed", len(Failed(results))))
	return results
}

func (c *Collector) collectRepository(ctx context.Context, repo string, window domain.CollectionWindow) ([]domain.RawPayload, error) {
	var payloads []domain.RawPayload
	for _, kind := range c.kinds {
		var (
			fetched []domain.RawPayload
			err     error
		)
		switch kind {
		case domain.KindIssue:
			fetched, err = c.fetcher.FetchIssues(ctx, repo, window)
		case domain.KindPullRequest:
			fetched, err = c.fetcher.FetchPullRequests(ctx, repo, window)
		case domain.KindCommit:
			fetched, err = c.fetcher.FetchCommits(ctx, repo, window)
		default:
			err = fmt.Errorf("%w: %q", domain.ErrUnknownKind, kind)
		}
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", kind, err)
		}
		c.logger.Debug("Fetched activity", zap.String("repository", repo), zap.String("kind", string(kind)), zap.Int("count", len(fetched)))
		payloads = append(payloads, fetched...)
	}
	return payloads, nil
}

// Failed returns the repositories whose collection failed.
func Failed(results []domain.RepoResult) []string {
	var failed []string
	for _, result := range results {
		if result.Err != nil {
			failed = append(failed, result.Repository)
		}
	}
	return failed
}
