package output

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/naka-gawa/github-activity-report/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func window(since, until string) domain.CollectionWindow {
	s, _ := time.Parse("2006-01-02", since)
	u, _ := time.Parse("2006-01-02", until)
	return domain.CollectionWindow{Since: s, Until: u, Repositories: []string{"org/repo"}}
}

func TestLayout_Paths(t *testing.T) {
	layout := NewLayout("out", window("2025-05-01", "2025-05-08"))

	testCases := []struct {
		name     string
		got      string
		expected string
	}{
		{"raw", layout.RawPath("org/repo"), "out/2025-05-01_to_2025-05-08/raw/github/org_repo.json"},
		{"raw summary", layout.RawSummaryPath("org/repo"), "out/2025-05-01_to_2025-05-08/raw/github/org_repo_summary.json"},
		{"report", layout.ReportPath("org/repo"), "out/2025-05-01_to_2025-05-08/markdown/github/github_report-org_repo.md"},
		{"combined", layout.CombinedReportPath(), "out/2025-05-01_to_2025-05-08/markdown/github/github_report-combined.md"},
		{"ai report", layout.AIReportPath("org/repo"), "out/2025-05-01_to_2025-05-08/ai_reports/ai_report-org_repo.md"},
		{"export", layout.ExportPath("flat"), "out/2025-05-01_to_2025-05-08/export/stats_flat.json"},
		{"commits", layout.AggregatedCommitsPath(), "out/2025-05-01_to_2025-05-08/raw/commits/aggregated_commits.json"},
		{"run summary", layout.RunSummaryPath(), "out/2025-05-01_to_2025-05-08/run_summary.json"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, filepath.FromSlash(tc.expected), tc.got)
		})
	}
}

func TestLayout_DistinctWindowsNeverCollide(t *testing.T) {
	a := NewLayout("out", window("2025-05-01", "2025-05-08"))
	b := NewLayout("out", window("2025-05-02", "2025-05-09"))

	assert.NotEqual(t, a.ReportPath("org/repo"), b.ReportPath("org/repo"))
	assert.NotEqual(t, a.RawPath("org/repo"), b.RawPath("org/repo"))
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "data.json")

	require.NoError(t, WriteJSON(path, map[string]int{"b": 2, "a": 1}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1,\n  \"b\": 2\n}\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must not be left behind")
}

func TestWriteText_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.md")

	require.NoError(t, WriteText(path, "first"))
	require.NoError(t, WriteText(path, "second"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}
