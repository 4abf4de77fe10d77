package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/naka-gawa/github-activity-report/internal/domain"
	"github.com/naka-gawa/github-activity-report/internal/output"
)

// CombinedTitle is the report title used for multi-repository reports.
const CombinedTitle = "All Repositories"

// WriteReport renders the report of one repository and stores it under layout.
// It returns the path written and the rendered Markdown.
func (r *Renderer) WriteReport(layout output.Layout, repository string, records []domain.ActivityRecord) (string, string, error) {
	markdown := r.Render(domain.RepoName(repository), layout.Window, records)
	path := layout.ReportPath(repository)
	if err := output.WriteText(path, markdown); err != nil {
		return "", "", fmt.Errorf("write report for %s: %w", repository, err)
	}
	return path, markdown, nil
}

// WriteCombinedReport renders every record of the run into one report.
func (r *Renderer) WriteCombinedReport(layout output.Layout, records []domain.ActivityRecord) (string, error) {
	markdown := r.Render(CombinedTitle, layout.Window, records)
	path := layout.CombinedReportPath()
	if err := output.WriteText(path, markdown); err != nil {
		return "", fmt.Errorf("write combined report: %w", err)
	}
	return path, nil
}

// Preview renders markdown for a terminal of the given width. On renderer
// failure the plain Markdown is returned.
func Preview(markdown string, width int) string {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return ""
	}
	if width < 40 {
		width = 40
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return markdown
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.TrimRight(rendered, "\n")
}
