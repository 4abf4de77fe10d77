package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/naka-gawa/github-activity-report/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockFetcher is a mock implementation of the gateway.Fetcher interface.
// It allows us to simulate the behavior of the GitHub gateway without making real API calls.
type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) FetchIssues(ctx context.Context, repository string, window domain.CollectionWindow) ([]domain.RawPayload, error) {
	args := m.Called(ctx, repository, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RawPayload), args.Error(1)
}

func (m *mockFetcher) FetchPullRequests(ctx context.Context, repository string, window domain.CollectionWindow) ([]domain.RawPayload, error) {
	args := m.Called(ctx, repository, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RawPayload), args.Error(1)
}

func (m *mockFetcher) FetchCommits(ctx context.Context, repository string, window domain.CollectionWindow) ([]domain.RawPayload, error) {
	args := m.Called(ctx, repository, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RawPayload), args.Error(1)
}

func (m *mockFetcher) ListOrgRepositories(ctx context.Context, org string) ([]string, error) {
	args := m.Called(ctx, org)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

var (
	testNow    = time.Date(2025, 5, 8, 0, 0, 0, 0, time.UTC)
	testWindow = domain.CollectionWindow{
		Since:        time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		Until:        testNow,
		Repositories: []string{"org/a", "org/b"},
	}
)

func issuePayload(repo string, number int, author string, created time.Time) domain.RawPayload {
	data, _ := json.Marshal(map[string]any{
		"number":     number,
		"title":      fmt.Sprintf("issue %d", number),
		"state":      "open",
		"created_at": created,
		"user":       map[string]string{"login": author},
	})
	return domain.RawPayload{Repository: repo, Kind: domain.KindIssue, Data: data}
}

func pullRequestPayload(repo string, number int, author string, created time.Time, merged bool) domain.RawPayload {
	state := "CLOSED"
	if merged {
		state = "MERGED"
	}
	data, _ := json.Marshal(map[string]any{
		"number":    number,
		"title":     fmt.Sprintf("pr %d", number),
		"state":     state,
		"merged":    merged,
		"createdAt": created,
		"author":    map[string]string{"login": author},
	})
	return domain.RawPayload{Repository: repo, Kind: domain.KindPullRequest, Data: data}
}

func commitPayload(repo, sha, author string, created time.Time) domain.RawPayload {
	data, _ := json.Marshal(map[string]any{
		"sha":    sha,
		"author": map[string]string{"login": author},
		"commit": map[string]any{
			"message": "commit " + sha,
			"author":  map[string]any{"name": author, "date": created},
		},
	})
	return domain.RawPayload{Repository: repo, Kind: domain.KindCommit, Data: data}
}

func TestCollector_Collect(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2025, 5, d, 9, 0, 0, 0, time.UTC) }
	errAPI := errors.New("github api error")

	testCases := []struct {
		name           string
		kinds          []domain.Kind
		setup          func(f *mockFetcher)
		expectedCounts map[string]int
		expectedFailed []string
	}{
		{
			name:  "happy path - every repository and kind is collected",
			kinds: []domain.Kind{domain.KindIssue, domain.KindPullRequest},
			setup: func(f *mockFetcher) {
				f.On("FetchIssues", mock.Anything, "org/a", testWindow).Return([]domain.RawPayload{issuePayload("org/a", 1, "alice", day(2))}, nil)
				f.On("FetchPullRequests", mock.Anything, "org/a", testWindow).Return([]domain.RawPayload{pullRequestPayload("org/a", 2, "bob", day(3), true)}, nil)
				f.On("FetchIssues", mock.Anything, "org/b", testWindow).Return([]domain.RawPayload{}, nil)
				f.On("FetchPullRequests", mock.Anything, "org/b", testWindow).Return([]domain.RawPayload{pullRequestPayload("org/b", 7, "bob", day(4), false)}, nil)
			},
			expectedCounts: map[string]int{"org/a": 2, "org/b": 1},
		},
		{
			name:  "partial failure - repository a fails, b is complete",
			kinds: []domain.Kind{domain.KindIssue, domain.KindPullRequest},
			setup: func(f *mockFetcher) {
				f.On("FetchIssues", mock.Anything, "org/a", testWindow).Return(nil, errAPI)
				f.On("FetchIssues", mock.Anything, "org/b", testWindow).Return([]domain.RawPayload{issuePayload("org/b", 1, "alice", day(2)), issuePayload("org/b", 2, "alice", day(2))}, nil)
				f.On("FetchPullRequests", mock.Anything, "org/b", testWindow).Return([]domain.RawPayload{pullRequestPayload("org/b", 3, "bob", day(3), true)}, nil)
			},
			expectedCounts: map[string]int{"org/a": 0, "org/b": 3},
			expectedFailed: []string{"org/a"},
		},
		{
			name:  "commits only",
			kinds: []domain.Kind{domain.KindCommit},
			setup: func(f *mockFetcher) {
				f.On("FetchCommits", mock.Anything, "org/a", testWindow).Return([]domain.RawPayload{commitPayload("org/a", "abc", "alice", day(2))}, nil)
				f.On("FetchCommits", mock.Anything, "org/b", testWindow).Return(nil, domain.ErrRateLimitExhausted)
			},
			expectedCounts: map[string]int{"org/a": 1, "org/b": 0},
			expectedFailed: []string{"org/b"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			fetcher := new(mockFetcher)
			tc.setup(fetcher)
			collector := NewCollector(fetcher, zap.NewNop(), 2, tc.kinds)

			// --- Act ---
			results := collector.Collect(context.Background(), testWindow)

			// --- Assert ---
			require.Len(t, results, 2)
			assert.Equal(t, "org/a", results[0].Repository)
			assert.Equal(t, "org/b", results[1].Repository)
			for _, res := range results {
				assert.Len(t, res.Payloads, tc.expectedCounts[res.Repository], res.Repository)
			}
			assert.Equal(t, tc.expectedFailed, Failed(results))
			fetcher.AssertExpectations(t)
		})
	}
}

func TestCollector_FailureStopsRemainingKinds(t *testing.T) {
	fetcher := new(mockFetcher)
	window := testWindow
	window.Repositories = []string{"org/a"}
	fetcher.On("FetchPullRequests", mock.Anything, "org/a", window).Return(nil, errors.New("boom"))

	results := NewCollector(fetcher, zap.NewNop(), 1, []domain.Kind{domain.KindPullRequest, domain.KindIssue}).Collect(context.Background(), window)

	require.Len(t, results, 1)
	assert.ErrorContains(t, results[0].Err, "fetch pull_request")
	fetcher.AssertNotCalled(t, "FetchIssues", mock.Anything, mock.Anything, mock.Anything)
}

func TestNewCollector_Defaults(t *testing.T) {
	collector := NewCollector(new(mockFetcher), zap.NewNop(), 0, nil)

	assert.Equal(t, DefaultConcurrency, collector.concurrency)
	assert.Equal(t, domain.Kinds, collector.kinds)
}
