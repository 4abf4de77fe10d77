// Package export serializes merged statistics in the unified (nested) and
// flat (row per bucket) formats.
package export

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"

	"github.com/naka-gawa/github-activity-report/internal/domain"
)

// Format selects the export layout.
type Format string

const (
	FormatFlat    Format = "flat"
	FormatUnified Format = "unified"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatFlat, FormatUnified:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}

// Metadata describes the run an export belongs to.
type Metadata struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Since       string    `json:"since"`
	Until       string    `json:"until"`
	DataSources []string  `json:"data_sources"`
	RecordCount int       `json:"record_count"`
}

// NewMetadata creates metadata with a fresh run id.
func NewMetadata(window domain.CollectionWindow, sources []string, recordCount int, now time.Time) Metadata {
	return Metadata{
		RunID:       uuid.NewString(),
		GeneratedAt: now.UTC(),
		Since:       window.SinceDate(),
		Until:       window.UntilDate(),
		DataSources: append([]string{"github"}, sources...),
		RecordCount: recordCount,
	}
}

// Unified is the canonical nested export: date -> contributor -> group.
type Unified struct {
	Metadata Metadata    `json:"metadata"`
	Dates    []DateEntry `json:"dates"`
	Summary  Summary     `json:"summary"`
}

type DateEntry struct {
	Date         string             `json:"date"`
	Contributors []ContributorEntry `json:"contributors"`
}

type ContributorEntry struct {
	Contributor string       `json:"contributor"`
	Groups      []GroupEntry `json:"repository_groups"`
}

type GroupEntry struct {
	RepositoryGroup string            `json:"repository_group"`
	Counts          domain.StatCounts `json:"counts"`
}

// Summary aggregates primary activity per contributor over the whole export.
type Summary struct {
	Contributors         int     `json:"contributors"`
	TotalActivity        int     `json:"total_activity"`
	MeanPerContributor   float64 `json:"mean_per_contributor"`
	MedianPerContributor float64 `json:"median_per_contributor"`
	MaxPerContributor    float64 `json:"max_per_contributor"`
}

// Flat is the spreadsheet-ready export.
type Flat struct {
	Metadata Metadata `json:"metadata"`
	Rows     []Row    `json:"rows"`
}

// Header is the column order of Row.Values.
var Header = []string{
	"date", "contributor", "repository_group",
	"issues", "pull_requests", "commits", "total",
	"ai_sessions", "ai_usage", "merged_prs",
}

// Row is one (date, contributor, repository group) bucket.
type Row struct {
	Date            string  `json:"date"`
	Contributor     string  `json:"contributor"`
	RepositoryGroup string  `json:"repository_group"`
	Issues          int     `json:"issues"`
	PullRequests    int     `json:"pull_requests"`
	Commits         int     `json:"commits"`
	Total           int     `json:"total"`
	AISessions      int     `json:"ai_sessions"`
	AIUsage         float64 `json:"ai_usage"`
	MergedPRs       int     `json:"merged_prs"`
}

// Values returns the row as strings in Header order.
func (r Row) Values() []string {
	return []string{
		r.Date, r.Contributor, r.RepositoryGroup,
		strconv.Itoa(r.Issues), strconv.Itoa(r.PullRequests), strconv.Itoa(r.Commits), strconv.Itoa(r.Total),
		strconv.Itoa(r.AISessions), strconv.FormatFloat(r.AIUsage, 'f', -1, 64), strconv.Itoa(r.MergedPRs),
	}
}

// FromRecords builds the unified document from merged records.
func FromRecords(records []domain.MergedStatRecord, meta Metadata) Unified {
	sorted := make([]domain.MergedStatRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return keyLess(sorted[i].StatKey, sorted[j].StatKey) })

	unified := Unified{Metadata: meta, Dates: []DateEntry{}}
	for _, record := range sorted {
		if n := len(unified.Dates); n == 0 || unified.Dates[n-1].Date != record.Date {
			unified.Dates = append(unified.Dates, DateEntry{Date: record.Date})
		}
		date := &unified.Dates[len(unified.Dates)-1]
		if n := len(date.Contributors); n == 0 || date.Contributors[n-1].Contributor != record.Contributor {
			date.Contributors = append(date.Contributors, ContributorEntry{Contributor: record.Contributor})
		}
		contributor := &date.Contributors[len(date.Contributors)-1]
		contributor.Groups = append(contributor.Groups, GroupEntry{RepositoryGroup: record.RepositoryGroup, Counts: record.StatCounts})
	}
	unified.Summary = summarize(sorted)
	return unified
}

// Records flattens the unified document back into merged records.
func (u Unified) Records() []domain.MergedStatRecord {
	var records []domain.MergedStatRecord
	for _, date := range u.Dates {
		for _, contributor := range date.Contributors {
			for _, group := range contributor.Groups {
				records = append(records, domain.MergedStatRecord{
					StatKey: domain.StatKey{
						Date:            date.Date,
						Contributor:     contributor.Contributor,
						RepositoryGroup: group.RepositoryGroup,
					},
					StatCounts: group.Counts,
				})
			}
		}
	}
	return records
}

// ToFlat converts a unified document to rows. No counter is lost.
func ToFlat(u Unified) Flat {
	records := u.Records()
	flat := Flat{Metadata: u.Metadata, Rows: make([]Row, 0, len(records))}
	for _, record := range records {
		flat.Rows = append(flat.Rows, Row{
			Date:            record.Date,
			Contributor:     record.Contributor,
			RepositoryGroup: record.RepositoryGroup,
			Issues:          record.Issues,
			PullRequests:    record.PullRequests,
			Commits:         record.Commits,
			Total:           record.Total(),
			AISessions:      record.AISessions,
			AIUsage:         record.AIUsage,
			MergedPRs:       record.MergedPRs,
		})
	}
	return flat
}

// ToUnified converts rows back to the unified document. The derived total
// column is recomputed, not read.
func ToUnified(f Flat) Unified {
	records := make([]domain.MergedStatRecord, 0, len(f.Rows))
	for _, row := range f.Rows {
		records = append(records, domain.MergedStatRecord{
			StatKey: domain.StatKey{Date: row.Date, Contributor: row.Contributor, RepositoryGroup: row.RepositoryGroup},
			StatCounts: domain.StatCounts{
				Issues:       row.Issues,
				PullRequests: row.PullRequests,
				Commits:      row.Commits,
				AISessions:   row.AISessions,
				AIUsage:      row.AIUsage,
				MergedPRs:    row.MergedPRs,
			},
		})
	}
	return FromRecords(records, f.Metadata)
}

// Export serializes records in format as indented JSON.
func Export(records []domain.MergedStatRecord, format Format, meta Metadata) ([]byte, error) {
	unified := FromRecords(records, meta)
	var doc any
	switch format {
	case FormatUnified:
		doc = unified
	case FormatFlat:
		doc = ToFlat(unified)
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal %s export: %w", format, err)
	}
	return data, nil
}

func summarize(records []domain.MergedStatRecord) Summary {
	perContributor := make(map[string]int)
	var summary Summary
	for _, record := range records {
		perContributor[record.Contributor] += record.Total()
		summary.TotalActivity += record.Total()
	}
	summary.Contributors = len(perContributor)
	if len(perContributor) == 0 {
		return summary
	}

	data := make(stats.Float64Data, 0, len(perContributor))
	for _, total := range perContributor {
		data = append(data, float64(total))
	}
	summary.MeanPerContributor, _ = stats.Round(statOrZero(data.Mean), 2)
	summary.MedianPerContributor = statOrZero(data.Median)
	summary.MaxPerContributor = statOrZero(data.Max)
	return summary
}

func statOrZero(fn func() (float64, error)) float64 {
	v, err := fn()
	if err != nil {
		return 0
	}
	return v
}

func keyLess(a, b domain.StatKey) bool {
	if a.Date != b.Date {
		return a.Date < b.Date
	}
	if a.Contributor != b.Contributor {
		return a.Contributor < b.Contributor
	}
	return a.RepositoryGroup < b.RepositoryGroup
}
