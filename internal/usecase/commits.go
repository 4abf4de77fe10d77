package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/naka-gawa/github-activity-report/internal/domain"
	"github.com/naka-gawa/github-activity-report/internal/export"
	"github.com/naka-gawa/github-activity-report/internal/output"
	"github.com/naka-gawa/github-activity-report/internal/secondary"
	"github.com/naka-gawa/github-activity-report/internal/sheets"
)

// StepAggregate is the commit aggregation step of the stats command.
const StepAggregate = "aggregate"

// CommitSheetHeader is the column order of commit statistics sheets.
var CommitSheetHeader = []string{"repository", "contributor", "date", "commits"}

// CommitStat counts the commits of one contributor to one repository on one day.
type CommitStat struct {
	Repository string `json:"repository"`
	Author     string `json:"author"`
	Date       string `json:"date"`
	Count      int    `json:"count"`
}

// Values returns the stat in CommitSheetHeader order.
func (c CommitStat) Values() []string {
	return []string{c.Repository, c.Author, c.Date, fmt.Sprint(c.Count)}
}

// CommitSummary is written next to the aggregated commits.
type CommitSummary struct {
	TotalCommits      int      `json:"total_commits"`
	AggregatedCommits int      `json:"aggregated_commits"`
	RepositoriesCount int      `json:"repositories_count"`
	Period            period   `json:"period"`
	Repositories      []string `json:"repositories"`
}

// CommitStatsResult is everything a stats run produced.
type CommitStatsResult struct {
	Summary       RunSummary
	Layout        output.Layout
	Stats         []CommitStat
	CommitSummary CommitSummary
}

// AggregateCommits counts commit records per (repository name, author, day).
func AggregateCommits(records []domain.ActivityRecord, aliases domain.AliasTable, loc *time.Location) []CommitStat {
	type key struct{ repo, author, date string }
	counts := make(map[key]int)
	for _, record := range records {
		if record.Kind != domain.KindCommit {
			continue
		}
		k := key{
			repo:   domain.RepoName(record.Repository),
			author: aliases.Resolve(record.Author),
			date:   domain.DateKey(record.CreatedAt, loc),
		}
		counts[k]++
	}
	stats := make([]CommitStat, 0, len(counts))
	for k, n := range counts {
		stats = append(stats, CommitStat{Repository: k.repo, Author: k.author, Date: k.date, Count: n})
	}
	sort.Slice(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Repository != b.Repository {
			return a.Repository < b.Repository
		}
		return a.Author < b.Author
	})
	return stats
}

// RunCommitStats collects commits over window, aggregates them per
// repository, contributor and day, and exports and uploads the result.
// The collector is expected to fetch commits only.
func (p *Pipeline) RunCommitStats(ctx context.Context, window domain.CollectionWindow) (*CommitStatsResult, error) {
	started := p.cfg.Now()
	layout := output.NewLayout(p.cfg.OutputDir, window)
	run := &RunResult{Layout: layout}
	run.Summary = RunSummary{
		RunID:        uuid.NewString(),
		StartedAt:    started.UTC(),
		Since:        window.SinceDate(),
		Until:        window.UntilDate(),
		Repositories: window.Repositories,
	}
	result := &CommitStatsResult{Layout: layout}
	summary := &run.Summary
	defer func() { result.Summary = run.Summary }()

	if err := window.Validate(started); err != nil {
		summary.fail(StepValidate, err.Error())
		return result, err
	}
	summary.succeed(StepValidate, "")

	repoResults := p.cfg.Collector.Collect(ctx, window)
	summary.FailedRepositories = Failed(repoResults)
	for _, repo := range summary.FailedRepositories {
		p.cfg.Metrics.FetchFailed(repo)
	}
	if len(summary.FailedRepositories) == len(repoResults) {
		summary.fail(StepCollect, "every repository failed")
		p.finish(run, layout)
		return result, ErrAllRepositoriesFailed
	}
	summary.succeed(StepCollect, fmt.Sprintf("%d of %d repositories collected", len(repoResults)-len(summary.FailedRepositories), len(repoResults)))

	var records []domain.ActivityRecord
	for _, repo := range p.normalize(summary, repoResults) {
		records = append(records, repo.records...)
	}
	summary.Records = len(records)

	result.Stats = AggregateCommits(records, p.cfg.Aliases, p.cfg.Location)
	result.CommitSummary = CommitSummary{
		TotalCommits:      len(records),
		AggregatedCommits: len(result.Stats),
		RepositoriesCount: len(window.Repositories),
		Period:            period{Since: window.SinceDate(), Until: window.UntilDate(), Days: window.Days()},
		Repositories:      window.Repositories,
	}
	if err := p.writeCommitFiles(layout, result); err != nil {
		p.cfg.Logger.Warn("Failed to write commit statistics", zap.String("step", StepAggregate), zap.Error(err))
		summary.fail(StepAggregate, err.Error())
	} else {
		summary.succeed(StepAggregate, fmt.Sprintf("%d commits in %d buckets", len(records), len(result.Stats)))
	}

	merged := NewMerger(p.cfg.Aliases, p.cfg.Groups, p.cfg.Location, p.cfg.AIAgent, window).Merge(records, secondary.Sources{})
	meta := export.NewMetadata(window, nil, len(merged.Records), p.cfg.Now())
	meta.RunID = summary.RunID
	p.export(summary, layout, merged.Records, meta)

	p.uploadCommits(ctx, summary, result.Stats)

	p.finish(run, layout)
	return result, nil
}

func (p *Pipeline) writeCommitFiles(layout output.Layout, result *CommitStatsResult) error {
	if err := output.WriteJSON(layout.AggregatedCommitsPath(), result.Stats); err != nil {
		return err
	}
	return output.WriteJSON(layout.CommitSummaryPath(), []CommitSummary{result.CommitSummary})
}

func (p *Pipeline) uploadCommits(ctx context.Context, summary *RunSummary, stats []CommitStat) {
	features := p.cfg.Features
	switch {
	case !features.SheetRequested:
		summary.skip(StepSheet, "not requested")
		return
	case !features.SheetEnabled || p.cfg.Sheet == nil:
		p.cfg.Logger.Warn("Sheet upload requested but Google Sheets credentials are not set", zap.String("step", StepSheet))
		summary.skip(StepSheet, "Google Sheets credentials are not set")
		return
	}

	rows := make([][]string, 0, len(stats))
	for _, stat := range stats {
		rows = append(rows, stat.Values())
	}
	batch := sheets.Batch{Sheet: p.cfg.SheetName, Header: CommitSheetHeader, Rows: rows, Clear: p.cfg.ClearSheet}
	if err := p.cfg.Sheet.WriteBatch(ctx, batch); err != nil {
		p.cfg.Logger.Warn("Sheet upload failed", zap.String("step", StepSheet), zap.Error(err))
		summary.fail(StepSheet, err.Error())
		return
	}
	summary.succeed(StepSheet, fmt.Sprintf("%d rows", len(rows)))
}
