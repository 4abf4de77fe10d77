package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/naka-gawa/github-activity-report/internal/domain"
	"github.com/naka-gawa/github-activity-report/internal/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testWindow = domain.CollectionWindow{
	Since:        time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	Until:        time.Date(2025, 5, 8, 0, 0, 0, 0, time.UTC),
	Repositories: []string{"org/repoX"},
}

func at(day, hour int) time.Time {
	return time.Date(2025, 5, day, hour, 0, 0, 0, time.UTC)
}

func record(kind domain.Kind, id string, created time.Time, state domain.State, author string) domain.ActivityRecord {
	return domain.ActivityRecord{
		Repository: "org/repoX",
		Kind:       kind,
		Identifier: id,
		Title:      "title " + id,
		Author:     author,
		CreatedAt:  created,
		State:      state,
		Labels:     []string{},
	}
}

func sampleRecords() []domain.ActivityRecord {
	return []domain.ActivityRecord{
		record(domain.KindIssue, "3", at(2, 9), domain.StateOpen, "alice"),
		record(domain.KindIssue, "1", at(5, 9), domain.StateClosed, "bob"),
		record(domain.KindPullRequest, "10", at(5, 9), domain.StateMerged, "alice"),
		record(domain.KindIssue, "2", at(3, 9), domain.StateOpen, "devin-ai-integration[bot]"),
		record(domain.KindPullRequest, "11", at(4, 9), domain.StateClosed, "bob"),
	}
}

func sectionEntries(t *testing.T, markdown, section string) []string {
	t.Helper()
	start := strings.Index(markdown, "## "+section+"\n")
	require.NotEqual(t, -1, start, "section %q not found", section)
	rest := markdown[start+len(section)+4:]
	if end := strings.Index(rest, "\n## "); end >= 0 {
		rest = rest[:end]
	}
	var entries []string
	for _, line := range strings.Split(rest, "\n") {
		if strings.HasPrefix(line, "### ") {
			entries = append(entries, line)
		}
	}
	return entries
}

func TestRenderer_Render(t *testing.T) {
	renderer := NewRenderer(domain.AliasTable{"devin-ai-integration[bot]": "devin"}, nil)

	markdown := renderer.Render("repoX", testWindow, sampleRecords())

	assert.True(t, strings.HasPrefix(markdown, "# repoX GitHub Activity Report (2025-05-01 ~ 2025-05-08)\n"))
	assert.Contains(t, markdown, "- **Total items**: 5\n")
	assert.Contains(t, markdown, "- **Merged PRs**: 1\n")
	assert.Contains(t, markdown, "- **Author**: devin\n")
	assert.NotContains(t, markdown, "## Commits")

	assert.Equal(t, []string{"### PR #10: title 10", "### PR #11: title 11"}, sectionEntries(t, markdown, "Pull Requests"))
	assert.Equal(t, []string{"### Issue #1: title 1", "### Issue #2: title 2", "### Issue #3: title 3"}, sectionEntries(t, markdown, "Issues"))
	assert.Less(t, strings.Index(markdown, "## Pull Requests"), strings.Index(markdown, "## Issues"))
}

func TestRenderer_RenderIsDeterministic(t *testing.T) {
	renderer := NewRenderer(nil, nil)
	records := sampleRecords()

	first := renderer.Render("repoX", testWindow, records)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, renderer.Render("repoX", testWindow, records))
	}

	reversed := make([]domain.ActivityRecord, len(records))
	for i, r := range records {
		reversed[len(records)-1-i] = r
	}
	assert.Equal(t, first, renderer.Render("repoX", testWindow, reversed))
}

func TestRenderer_RenderTieBreak(t *testing.T) {
	renderer := NewRenderer(nil, nil)
	records := []domain.ActivityRecord{
		record(domain.KindIssue, "10", at(3, 0), domain.StateOpen, "a"),
		record(domain.KindIssue, "9", at(3, 0), domain.StateOpen, "a"),
	}

	markdown := renderer.Render("repoX", testWindow, records)

	assert.Equal(t, []string{"### Issue #9: title 9", "### Issue #10: title 10"}, sectionEntries(t, markdown, "Issues"))
}

func TestRenderer_RenderEmpty(t *testing.T) {
	markdown := NewRenderer(nil, nil).Render("repoX", testWindow, nil)

	assert.Equal(t, "# repoX GitHub Activity Report (2025-05-01 ~ 2025-05-08)\n\nNo activity in this period.\n", markdown)
}

func TestRenderer_RenderCommitAndPullRequestDetails(t *testing.T) {
	merged := at(6, 12)
	pr := record(domain.KindPullRequest, "5", at(6, 0), domain.StateMerged, "alice")
	pr.MergedAt = &merged
	pr.Additions, pr.Deletions, pr.ChangedFiles = 10, 2, 3
	pr.Labels = []string{"feature", "api"}
	pr.BodyExcerpt = "Adds the exporter."
	commit := record(domain.KindCommit, "0123456789abcdef", at(6, 1), domain.StateClosed, "bob")

	markdown := NewRenderer(nil, time.FixedZone("JST", 9*60*60)).Render("repoX", testWindow, []domain.ActivityRecord{pr, commit})

	assert.Contains(t, markdown, "- **Merged**: 2025-05-06 21:00\n")
	assert.Contains(t, markdown, "- **Changes**: +10 -2 (3 files)\n")
	assert.Contains(t, markdown, "- **Labels**: feature, api\n")
	assert.Contains(t, markdown, "**Summary**:\nAdds the exporter.\n")
	assert.Equal(t, []string{"### Commit 0123456: title 0123456789abcdef"}, sectionEntries(t, markdown, "Commits"))
}

func TestRenderer_WriteReport(t *testing.T) {
	layout := output.NewLayout(t.TempDir(), testWindow)
	renderer := NewRenderer(nil, nil)

	path, markdown, err := renderer.WriteReport(layout, "org/repoX", sampleRecords())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(layout.MarkdownDir(), "github_report-org_repoX.md"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, markdown, string(data))

	combined, err := renderer.WriteCombinedReport(layout, sampleRecords())
	require.NoError(t, err)
	assert.FileExists(t, combined)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "", Preview("   ", 80))

	rendered := Preview("# Title\n\nparagraph", 80)
	assert.Contains(t, rendered, "Title")
	assert.Contains(t, rendered, "paragraph")
}
