// Package output owns the on-disk layout of a run and writes its artifacts.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/naka-gawa/github-activity-report/internal/domain"
)

// Layout resolves artifact paths below <root>/<since>_to_<until>.
type Layout struct {
	Root   string
	Window domain.CollectionWindow
}

// NewLayout returns the layout for window under root.
func NewLayout(root string, window domain.CollectionWindow) Layout {
	return Layout{Root: root, Window: window}
}

// Dir is the run directory. Runs over different windows never share it.
func (l Layout) Dir() string {
	return filepath.Join(l.Root, l.Window.DirName())
}

func (l Layout) RawGitHubDir() string  { return filepath.Join(l.Dir(), "raw", "github") }
func (l Layout) RawCommitsDir() string { return filepath.Join(l.Dir(), "raw", "commits") }
func (l Layout) MarkdownDir() string   { return filepath.Join(l.Dir(), "markdown", "github") }
func (l Layout) AIReportsDir() string  { return filepath.Join(l.Dir(), "ai_reports") }
func (l Layout) ExportDir() string     { return filepath.Join(l.Dir(), "export") }

// RawPath is where the raw payloads of repository are stored.
func (l Layout) RawPath(repository string) string {
	return filepath.Join(l.RawGitHubDir(), FileSafe(repository)+".json")
}

// RawSummaryPath is where the per-repository collection summary is stored.
func (l Layout) RawSummaryPath(repository string) string {
	return filepath.Join(l.RawGitHubDir(), FileSafe(repository)+"_summary.json")
}

// ReportPath is where the Markdown report of repository is stored.
func (l Layout) ReportPath(repository string) string {
	return filepath.Join(l.MarkdownDir(), "github_report-"+FileSafe(repository)+".md")
}

// CombinedReportPath is the multi-repository report.
func (l Layout) CombinedReportPath() string {
	return filepath.Join(l.MarkdownDir(), "github_report-combined.md")
}

// AIReportPath is where the AI summary of repository is stored.
func (l Layout) AIReportPath(repository string) string {
	return filepath.Join(l.AIReportsDir(), "ai_report-"+FileSafe(repository)+".md")
}

// ExportPath is the exported statistics document for format.
func (l Layout) ExportPath(format string) string {
	return filepath.Join(l.ExportDir(), "stats_"+format+".json")
}

func (l Layout) AggregatedCommitsPath() string {
	return filepath.Join(l.RawCommitsDir(), "aggregated_commits.json")
}

func (l Layout) CommitSummaryPath() string {
	return filepath.Join(l.RawCommitsDir(), "summary.json")
}

func (l Layout) RunSummaryPath() string { return filepath.Join(l.Dir(), "run_summary.json") }
func (l Layout) MetricsPath() string    { return filepath.Join(l.Dir(), "metrics.prom") }

// FileSafe turns "owner/name" into "owner_name".
func FileSafe(repository string) string {
	return strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(repository)
}

// WriteJSON writes v as indented JSON to path.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	return WriteFile(path, append(data, '\n'))
}

// WriteText writes text to path.
func WriteText(path, text string) error {
	return WriteFile(path, []byte(text))
}

// WriteFile writes data to path through a temporary file in the same
// directory and a rename, so readers never see a partial file.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
