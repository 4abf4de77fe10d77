// Package render turns normalized activity into Markdown reports.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/naka-gawa/github-activity-report/internal/domain"
)

const timeLayout = "2006-01-02 15:04"

var sectionTitles = map[domain.Kind]string{
	domain.KindPullRequest: "Pull Requests",
	domain.KindIssue:       "Issues",
	domain.KindCommit:      "Commits",
}

var entryPrefixes = map[domain.Kind]string{
	domain.KindPullRequest: "PR #",
	domain.KindIssue:       "Issue #",
	domain.KindCommit:      "Commit ",
}

// Renderer builds Markdown reports. The output depends only on its inputs.
type Renderer struct {
	aliases  domain.AliasTable
	location *time.Location
}

// NewRenderer returns a Renderer that shows authors through aliases and
// timestamps in loc (UTC when nil).
func NewRenderer(aliases domain.AliasTable, loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{aliases: aliases, location: loc}
}

// Render returns the report for records collected under title over window.
// Records are grouped by kind in a fixed order and sorted inside each group;
// the input order does not matter.
func (r *Renderer) Render(title string, window domain.CollectionWindow, records []domain.ActivityRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s GitHub Activity Report (%s ~ %s)\n\n", title, window.SinceDate(), window.UntilDate())

	if len(records) == 0 {
		b.WriteString("No activity in this period.\n")
		return b.String()
	}

	groups := make(map[domain.Kind][]domain.ActivityRecord, len(domain.Kinds))
	for _, record := range records {
		groups[record.Kind] = append(groups[record.Kind], record)
	}

	b.WriteString("## Overview\n\n")
	fmt.Fprintf(&b, "- **Total items**: %d\n", len(records))
	fmt.Fprintf(&b, "- **Pull requests**: %d\n", len(groups[domain.KindPullRequest]))
	fmt.Fprintf(&b, "- **Issues**: %d\n", len(groups[domain.KindIssue]))
	fmt.Fprintf(&b, "- **Commits**: %d\n\n", len(groups[domain.KindCommit]))

	var open, closed, merged int
	for _, record := range records {
		if record.Kind == domain.KindCommit {
			continue
		}
		switch record.State {
		case domain.StateOpen:
			open++
		case domain.StateMerged:
			merged++
		default:
			closed++
		}
	}
	b.WriteString("### State Breakdown\n\n")
	fmt.Fprintf(&b, "- **Open**: %d\n", open)
	fmt.Fprintf(&b, "- **Closed**: %d\n", closed)
	if merged > 0 {
		fmt.Fprintf(&b, "- **Merged PRs**: %d\n", merged)
	}
	b.WriteString("\n")

	for _, kind := range domain.Kinds {
		group := groups[kind]
		if len(group) == 0 {
			continue
		}
		sorted := make([]domain.ActivityRecord, len(group))
		copy(sorted, group)
		domain.SortRecords(sorted)

		fmt.Fprintf(&b, "## %s\n\n", sectionTitles[kind])
		for _, record := range sorted {
			r.writeEntry(&b, record)
		}
	}
	return b.String()
}

func (r *Renderer) writeEntry(b *strings.Builder, record domain.ActivityRecord) {
	identifier := record.Identifier
	if record.Kind == domain.KindCommit && len(identifier) > 7 {
		identifier = identifier[:7]
	}
	fmt.Fprintf(b, "### %s%s: %s\n\n", entryPrefixes[record.Kind], identifier, record.Title)
	if record.Kind != domain.KindCommit {
		fmt.Fprintf(b, "- **State**: %s\n", record.State)
	}
	fmt.Fprintf(b, "- **Author**: %s\n", r.aliases.Resolve(record.Author))
	fmt.Fprintf(b, "- **Created**: %s\n", r.format(record.CreatedAt))
	if record.UpdatedAt != nil {
		fmt.Fprintf(b, "- **Updated**: %s\n", r.format(*record.UpdatedAt))
	}
	if record.MergedAt != nil {
		fmt.Fprintf(b, "- **Merged**: %s\n", r.format(*record.MergedAt))
	}
	if record.Kind == domain.KindPullRequest && (record.Additions > 0 || record.Deletions > 0 || record.ChangedFiles > 0) {
		fmt.Fprintf(b, "- **Changes**: +%d -%d (%d files)\n", record.Additions, record.Deletions, record.ChangedFiles)
	}
	if len(record.Labels) > 0 {
		fmt.Fprintf(b, "- **Labels**: %s\n", strings.Join(record.Labels, ", "))
	}
	if record.Comments > 0 {
		fmt.Fprintf(b, "- **Comments**: %d\n", record.Comments)
	}
	if record.URL != "" {
		fmt.Fprintf(b, "- **URL**: %s\n", record.URL)
	}
	b.WriteString("\n")
	if record.BodyExcerpt != "" {
		fmt.Fprintf(b, "**Summary**:\n%s\n\n", record.BodyExcerpt)
	}
}

func (r *Renderer) format(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(r.location).Format(timeLayout)
}
