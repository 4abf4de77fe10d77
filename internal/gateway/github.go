// Package gateway provides a gateway to the GitHub API,
// abstracting away the underlying REST and GraphQL clients.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v84/github"
	"github.com/naka-gawa/github-activity-report/internal/domain"
	"github.com/shurcooL/githubv4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const defaultPageSize = 100

// Fetcher defines the behavior of a gateway for fetching activity from GitHub.
// Every Fetch method returns only items whose timestamp lies inside window.
type Fetcher interface {
	FetchIssues(ctx context.Context, repository string, window domain.CollectionWindow) ([]domain.RawPayload, error)
	FetchPullRequests(ctx context.Context, repository string, window domain.CollectionWindow) ([]domain.RawPayload, error)
	FetchCommits(ctx context.Context, repository string, window domain.CollectionWindow) ([]domain.RawPayload, error)
	ListOrgRepositories(ctx context.Context, org string) ([]string, error)
}

// Options tunes a GitHubGateway.
type Options struct {
	Retry    RetryConfig
	PageSize int
	Tracer   trace.Tracer
}

// GitHubGateway is the concrete implementation of the Fetcher interface.
type GitHubGateway struct {
	restClient    *github.Client
	graphqlClient *githubv4.Client
	logger        *zap.Logger
	retry         RetryConfig
	pageSize      int
	tracer        trace.Tracer
	sleep         func(ctx context.Context, d time.Duration) error
	now           func() time.Time
}

// pullRequestNode is one pull request as selected from the GraphQL API. The
// json tags mirror the GraphQL field names so raw payloads keep API naming.
type pullRequestNode struct {
	Number    int                       `json:"number"`
	Title     string                    `json:"title"`
	Body      string                    `json:"body"`
	State     githubv4.PullRequestState `json:"state"`
	Merged    bool                      `json:"merged"`
	CreatedAt githubv4.DateTime         `json:"createdAt"`
	UpdatedAt githubv4.DateTime         `json:"updatedAt"`
	ClosedAt  *githubv4.DateTime        `json:"closedAt"`
	MergedAt  *githubv4.DateTime        `json:"mergedAt"`
	URL       string                    `graphql:"url" json:"url"`
	Author    *struct {
		Login string `json:"login"`
	} `json:"author"`
	Labels struct {
		Nodes []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	} `graphql:"labels(first: 20)" json:"labels"`
	Comments struct {
		TotalCount int `json:"totalCount"`
	} `json:"comments"`
	Additions    int `json:"additions"`
	Deletions    int `json:"deletions"`
	ChangedFiles int `json:"changedFiles"`
}

// pullRequestsQuery lists pull requests of one repository, newest first.
type pullRequestsQuery struct {
	Repository struct {
		PullRequests struct {
			PageInfo struct {
				HasNextPage bool
				EndCursor   githubv4.String
			}
			Nodes []pullRequestNode
		} `graphql:"pullRequests(first: $pageSize, after: $cursor, orderBy: {field: CREATED_AT, direction: DESC})"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// NewGitHubGateway is a constructor that creates a new instance of GitHubGateway
// over an authenticated HTTP client (see NewHTTPClient).
func NewGitHubGateway(httpClient *http.Client, logger *zap.Logger, opts Options) *GitHubGateway {
	return newGateway(github.NewClient(httpClient), githubv4.NewClient(httpClient), logger, opts)
}

func newGateway(rest *github.Client, graphql *githubv4.Client, logger *zap.Logger, opts Options) *GitHubGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	retry := opts.Retry
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryConfig()
	}
	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > defaultPageSize {
		pageSize = defaultPageSize
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github-activity-report/internal/gateway")
	}
	return &GitHubGateway{
		restClient:    rest,
		graphqlClient: graphql,
		logger:        logger,
		retry:         retry,
		pageSize:      pageSize,
		tracer:        tracer,
		sleep:         sleepContext,
		now:           time.Now,
	}
}

// FetchIssues lists issues created inside window. Pull requests returned by
// the issues endpoint are skipped; FetchPullRequests covers them.
func (g *GitHubGateway) FetchIssues(ctx context.Context, repository string, window domain.CollectionWindow) (payloads []domain.RawPayload, err error) {
	owner, name, err := splitRepository(repository)
	if err != nil {
		return nil, err
	}
	ctx, finish := g.startSpan(ctx, repository, domain.KindIssue)
	pageCount := 0
	defer func() { finish(pageCount, err) }()

	g.logger.Debug("fetching issues", zap.String("repository", repository))
	pages := paginate(ctx, func(ctx context.Context, cursor string) ([]*github.Issue, string, error) {
		opts := &github.IssueListByRepoOptions{
			State:       "all",
			Sort:        "created",
			Direction:   "desc",
			ListOptions: github.ListOptions{PerPage: g.pageSize, Page: restPage(cursor)},
		}
		var issues []*github.Issue
		var resp *github.Response
		err := g.withRetry(ctx, func(ctx context.Context) error {
			var err error
			issues, resp, err = g.restClient.Issues.ListByRepo(ctx, owner, name, opts)
			return err
		})
		if err != nil {
			return nil, "", fmt.Errorf("failed to list issues with REST API: %w", err)
		}
		return issues, nextRESTCursor(resp), nil
	})

	issues, pageCount, err := collectWindow(pages, window, true, func(issue *github.Issue) time.Time {
		return issue.GetCreatedAt().Time
	})
	if err != nil {
		return nil, err
	}

	payloads = make([]domain.RawPayload, 0, len(issues))
	for _, issue := range issues {
		if issue.IsPullRequest() {
			continue
		}
		payload, err := newPayload(repository, domain.KindIssue, issue)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, payload)
	}
	g.logger.Debug("completed fetching issues",
		zap.String("repository", repository), zap.Int("count", len(payloads)), zap.Int("pages", pageCount))
	return payloads, nil
}

// FetchPullRequests lists pull requests created inside window using the GraphQL API,
// which exposes the merged flag and diff statistics in a single query.
func (g *GitHubGateway) FetchPullRequests(ctx context.Context, repository string, window domain.CollectionWindow) (payloads []domain.RawPayload, err error) {
	owner, name, err := splitRepository(repository)
	if err != nil {
		return nil, err
	}
	ctx, finish := g.startSpan(ctx, repository, domain.KindPullRequest)
	pageCount := 0
	defer func() { finish(pageCount, err) }()

	g.logger.Debug("fetching pull requests", zap.String("repository", repository))
	pages := paginate(ctx, func(ctx context.Context, cursor string) ([]pullRequestNode, string, error) {
		variables := map[string]interface{}{
			"owner":    githubv4.String(owner),
			"name":     githubv4.String(name),
			"pageSize": githubv4.Int(g.pageSize),
			"cursor":   (*githubv4.String)(nil),
		}
		if cursor != "" {
			variables["cursor"] = githubv4.NewString(githubv4.String(cursor))
		}
		var q pullRequestsQuery
		err := g.withRetry(ctx, func(ctx context.Context) error {
			return g.graphqlClient.Query(ctx, &q, variables)
		})
		if err != nil {
			return nil, "", fmt.Errorf("failed to execute GraphQL query for pull requests: %w", err)
		}
		next := ""
		if q.Repository.PullRequests.PageInfo.HasNextPage {
			next = string(q.Repository.PullRequests.PageInfo.EndCursor)
		}
		return q.Repository.PullRequests.Nodes, next, nil
	})

	nodes, pageCount, err := collectWindow(pages, window, true, func(node pullRequestNode) time.Time {
		return node.CreatedAt.Time
	})
	if err != nil {
		return nil, err
	}

	payloads = make([]domain.RawPayload, 0, len(nodes))
	for _, node := range nodes {
		payload, err := newPayload(repository, domain.KindPullRequest, node)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, payload)
	}
	g.logger.Debug("completed fetching pull requests",
		zap.String("repository", repository), zap.Int("count", len(payloads)), zap.Int("pages", pageCount))
	return payloads, nil
}

// FetchCommits lists commits committed inside window on the default branch.
func (g *GitHubGateway) FetchCommits(ctx context.Context, repository string, window domain.CollectionWindow) (payloads []domain.RawPayload, err error) {
	owner, name, err := splitRepository(repository)
	if err != nil {
		return nil, err
	}
	ctx, finish := g.startSpan(ctx, repository, domain.KindCommit)
	pageCount := 0
	defer func() { finish(pageCount, err) }()

	g.logger.Debug("fetching commits", zap.String("repository", repository))
	pages := paginate(ctx, func(ctx context.Context, cursor string) ([]*github.RepositoryCommit, string, error) {
		opts := &github.CommitsListOptions{
			Since:       window.Since,
			Until:       window.Until,
			ListOptions: github.ListOptions{PerPage: g.pageSize, Page: restPage(cursor)},
		}
		var commits []*github.RepositoryCommit
		var resp *github.Response
		err := g.withRetry(ctx, func(ctx context.Context) error {
			var err error
			commits, resp, err = g.restClient.Repositories.ListCommits(ctx, owner, name, opts)
			return err
		})
		if err != nil {
			return nil, "", fmt.Errorf("failed to list commits with REST API: %w", err)
		}
		return commits, nextRESTCursor(resp), nil
	})

	// The endpoint filters on the commit date server side and its order is
	// topological, so every page is drained.
	commits, pageCount, err := collectWindow(pages, window, false, commitDate)
	if err != nil {
		return nil, err
	}

	payloads = make([]domain.RawPayload, 0, len(commits))
	for _, commit := range commits {
		payload, err := newPayload(repository, domain.KindCommit, commit)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, payload)
	}
	g.logger.Debug("completed fetching commits",
		zap.String("repository", repository), zap.Int("count", len(payloads)), zap.Int("pages", pageCount))
	return payloads, nil
}

// commitDate is the committer date of commit, or its author date when the
// committer is missing. A rebased commit keeps its old author date.
func commitDate(commit *github.RepositoryCommit) time.Time {
	if date := commit.GetCommit().GetCommitter().GetDate(); !date.IsZero() {
		return date.Time
	}
	return commit.GetCommit().GetAuthor().GetDate().Time
}

// ListOrgRepositories returns owner/name identifiers of the public, non-archived
// repositories of org, sorted as the API returns them.
func (g *GitHubGateway) ListOrgRepositories(ctx context.Context, org string) ([]string, error) {
	org = strings.TrimSpace(org)
	if org == "" {
		return nil, fmt.Errorf("organization is required")
	}

	var names []string
	pages := paginate(ctx, func(ctx context.Context, cursor string) ([]*github.Repository, string, error) {
		opts := &github.RepositoryListByOrgOptions{
			Type:        "public",
			ListOptions: github.ListOptions{PerPage: g.pageSize, Page: restPage(cursor)},
		}
		var repos []*github.Repository
		var resp *github.Response
		err := g.withRetry(ctx, func(ctx context.Context) error {
			var err error
			repos, resp, err = g.restClient.Repositories.ListByOrg(ctx, org, opts)
			return err
		})
		if err != nil {
			return nil, "", fmt.Errorf("failed to list organization repositories: %w", err)
		}
		return repos, nextRESTCursor(resp), nil
	})
	for repos, err := range pages {
		if err != nil {
			return nil, err
		}
		for _, repo := range repos {
			if repo.GetArchived() {
				continue
			}
			names = append(names, repo.GetFullName())
		}
	}
	g.logger.Info("listed organization repositories", zap.String("org", org), zap.Int("count", len(names)))
	return names, nil
}

func (g *GitHubGateway) startSpan(ctx context.Context, repository string, kind domain.Kind) (context.Context, func(pages int, err error)) {
	ctx, span := g.tracer.Start(ctx, "gateway.fetch", trace.WithAttributes(
		attribute.String("github.repository", repository),
		attribute.String("github.kind", string(kind)),
	))
	return ctx, func(pages int, err error) {
		span.SetAttributes(attribute.Int("github.pages", pages))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "fetched")
		}
		span.End()
	}
}

func newPayload(repository string, kind domain.Kind, item any) (domain.RawPayload, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return domain.RawPayload{}, fmt.Errorf("failed to encode %s payload: %w", kind, err)
	}
	return domain.RawPayload{Repository: repository, Kind: kind, Data: data}, nil
}

func splitRepository(repository string) (string, string, error) {
	owner, name, ok := strings.Cut(repository, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("repository %q must be in owner/name form", repository)
	}
	return owner, name, nil
}
