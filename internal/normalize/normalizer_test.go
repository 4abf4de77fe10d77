package normalize

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/naka-gawa/github-activity-report/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payload(kind domain.Kind, data string) domain.RawPayload {
	return domain.RawPayload{Repository: "org/repo", Kind: kind, Data: json.RawMessage(data)}
}

func TestNormalize_Issue(t *testing.T) {
	raw := payload(domain.KindIssue, `{
		"number": 12,
		"title": "Crash on start",
		"body": "steps to reproduce",
		"state": "closed",
		"created_at": "2025-05-03T10:00:00Z",
		"closed_at": "2025-05-04T10:00:00Z",
		"user": {"login": "alice"},
		"labels": [{"name": "bug"}, {"name": ""}, {"name": "p1"}],
		"comments": 4,
		"html_url": "https://github.com/org/repo/issues/12"
	}`)

	record, err := Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, "org/repo", record.Repository)
	assert.Equal(t, domain.KindIssue, record.Kind)
	assert.Equal(t, "12", record.Identifier)
	assert.Equal(t, "alice", record.Author)
	assert.Equal(t, domain.StateClosed, record.State)
	assert.Equal(t, []string{"bug", "p1"}, record.Labels)
	assert.Equal(t, 4, record.Comments)
	assert.Equal(t, time.Date(2025, 5, 3, 10, 0, 0, 0, time.UTC), record.CreatedAt)
	require.NotNil(t, record.ClosedAt)
	assert.Nil(t, record.UpdatedAt)
	assert.Equal(t, "steps to reproduce", record.BodyExcerpt)
}

func TestNormalize_MissingOptionalFields(t *testing.T) {
	record, err := Normalize(payload(domain.KindIssue, `{"number": 1, "user": null, "body": null}`))
	require.NoError(t, err)

	assert.Equal(t, domain.UnknownContributor, record.Author)
	assert.Equal(t, domain.StateOpen, record.State)
	assert.Empty(t, record.Labels)
	assert.NotNil(t, record.Labels)
	assert.Equal(t, "", record.BodyExcerpt)
	assert.Equal(t, 0, record.Comments)
}

func TestNormalize_PullRequestState(t *testing.T) {
	testCases := []struct {
		name     string
		data     string
		expected domain.State
	}{
		{
			name:     "merged flag wins over closed state",
			data:     `{"number": 7, "state": "CLOSED", "merged": true, "closedAt": "2025-05-05T00:00:00Z"}`,
			expected: domain.StateMerged,
		},
		{
			name:     "mergedAt without merged flag",
			data:     `{"number": 7, "state": "CLOSED", "mergedAt": "2025-05-05T00:00:00Z"}`,
			expected: domain.StateMerged,
		},
		{
			name:     "MERGED state",
			data:     `{"number": 7, "state": "MERGED"}`,
			expected: domain.StateMerged,
		},
		{
			name:     "closed without merge",
			data:     `{"number": 7, "state": "CLOSED", "merged": false}`,
			expected: domain.StateClosed,
		},
		{
			name:     "open",
			data:     `{"number": 7, "state": "OPEN"}`,
			expected: domain.StateOpen,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			record, err := Normalize(payload(domain.KindPullRequest, tc.data))
			require.NoError(t, err)
			assert.Equal(t, tc.expected, record.State)
		})
	}
}

func TestNormalize_PullRequestFields(t *testing.T) {
	raw := payload(domain.KindPullRequest, `{
		"number": 42,
		"title": "Add exporter",
		"state": "OPEN",
		"createdAt": "2025-05-06T08:30:00Z",
		"url": "https://github.com/org/repo/pull/42",
		"author": {"login": "bob"},
		"labels": {"nodes": [{"name": "enhancement"}]},
		"comments": {"totalCount": 3},
		"additions": 120,
		"deletions": 8,
		"changedFiles": 5
	}`)

	record, err := Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, "42", record.Identifier)
	assert.Equal(t, "bob", record.Author)
	assert.Equal(t, []string{"enhancement"}, record.Labels)
	assert.Equal(t, 3, record.Comments)
	assert.Equal(t, 120, record.Additions)
	assert.Equal(t, 8, record.Deletions)
	assert.Equal(t, 5, record.ChangedFiles)
	assert.Equal(t, "https://github.com/org/repo/pull/42", record.URL)
}

func TestNormalize_CommitAuthorFallbacks(t *testing.T) {
	testCases := []struct {
		name     string
		data     string
		expected string
	}{
		{
			name:     "linked account login",
			data:     `{"sha": "abc", "author": {"login": "carol"}, "commit": {"author": {"name": "Carol C", "email": "c@example.com"}}}`,
			expected: "carol",
		},
		{
			name:     "git author name",
			data:     `{"sha": "abc", "author": null, "commit": {"author": {"name": "Carol C", "email": "c@example.com"}}}`,
			expected: "Carol C",
		},
		{
			name:     "noreply email",
			data:     `{"sha": "abc", "commit": {"author": {"email": "12345+dave@users.noreply.github.com"}}}`,
			expected: "dave",
		},
		{
			name:     "nothing known",
			data:     `{"sha": "abc", "commit": {}}`,
			expected: domain.UnknownContributor,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			record, err := Normalize(payload(domain.KindCommit, tc.data))
			require.NoError(t, err)
			assert.Equal(t, tc.expected, record.Author)
		})
	}
}

func TestNormalize_CommitMessage(t *testing.T) {
	raw := payload(domain.KindCommit, `{
		"sha": "deadbeef",
		"html_url": "https://github.com/org/repo/commit/deadbeef",
		"commit": {
			"author": {"name": "x", "date": "2025-05-02T12:00:00+09:00"},
			"message": "Fix parser\n\nHandle empty input."
		}
	}`)

	record, err := Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, "deadbeef", record.Identifier)
	assert.Equal(t, "Fix parser", record.Title)
	assert.Equal(t, "Handle empty input.", record.BodyExcerpt)
	assert.Equal(t, time.Date(2025, 5, 2, 3, 0, 0, 0, time.UTC), record.CreatedAt)
	assert.Equal(t, time.UTC, record.CreatedAt.Location())
}

func TestNormalize_CommitDate(t *testing.T) {
	testCases := []struct {
		name     string
		data     string
		expected time.Time
	}{
		{
			name:     "rebased commit uses the committer date",
			data:     `{"sha": "a1", "commit": {"author": {"date": "2025-04-20T00:00:00Z"}, "committer": {"date": "2025-05-06T00:00:00Z"}}}`,
			expected: time.Date(2025, 5, 6, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "missing committer falls back to the author date",
			data:     `{"sha": "a2", "commit": {"author": {"date": "2025-05-03T00:00:00Z"}}}`,
			expected: time.Date(2025, 5, 3, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			record, err := Normalize(payload(domain.KindCommit, tc.data))
			require.NoError(t, err)
			assert.Equal(t, tc.expected, record.CreatedAt)
		})
	}
}

func TestNormalize_Errors(t *testing.T) {
	testCases := []struct {
		name     string
		raw      domain.RawPayload
		expected error
	}{
		{"issue without number", payload(domain.KindIssue, `{"title": "x"}`), domain.ErrMissingIdentifier},
		{"pull request with zero number", payload(domain.KindPullRequest, `{"number": 0}`), domain.ErrMissingIdentifier},
		{"commit without sha", payload(domain.KindCommit, `{"sha": "  "}`), domain.ErrMissingIdentifier},
		{"unknown kind", payload(domain.Kind("discussion"), `{}`), domain.ErrUnknownKind},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Normalize(tc.raw)
			assert.ErrorIs(t, err, tc.expected)
		})
	}
}

func TestExcerpt(t *testing.T) {
	short := strings.Repeat("a", ExcerptLength)
	assert.Equal(t, short, Excerpt(short))

	long := strings.Repeat("日", ExcerptLength+1)
	got := Excerpt(long)
	assert.Equal(t, strings.Repeat("日", ExcerptLength)+"...", got)
}

func TestUsernameFromEmail(t *testing.T) {
	assert.Equal(t, "dave", UsernameFromEmail("999+dave@users.noreply.github.com"))
	assert.Equal(t, "erin", UsernameFromEmail("erin@example.com"))
	assert.Equal(t, domain.UnknownContributor, UsernameFromEmail(""))
}

func TestNormalizeAll(t *testing.T) {
	raws := []domain.RawPayload{
		payload(domain.KindIssue, `{"number": 2, "created_at": "2025-05-03T00:00:00Z"}`),
		payload(domain.KindIssue, `{"title": "no number"}`),
		payload(domain.KindPullRequest, `{"number": 5, "createdAt": "2025-05-03T00:00:00Z"}`),
		payload(domain.KindIssue, `{"number": 2, "created_at": "2025-05-03T00:00:00Z", "title": "duplicate"}`),
		payload(domain.KindCommit, `{"sha": "aaa", "commit": {"author": {"date": "2025-05-04T00:00:00Z"}}}`),
		payload(domain.KindIssue, `not json`),
	}

	result := NormalizeAll(raws)

	assert.Equal(t, 1, result.Dropped)
	assert.Equal(t, 1, result.Invalid)
	require.Len(t, result.Records, 3)
	assert.Equal(t, "aaa", result.Records[0].Identifier)
	// Same timestamp: pull requests before issues.
	assert.Equal(t, domain.KindPullRequest, result.Records[1].Kind)
	assert.Equal(t, domain.KindIssue, result.Records[2].Kind)
	assert.Equal(t, "", result.Records[2].Title)
}
