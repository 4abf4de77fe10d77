package usecase

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/naka-gawa/github-activity-report/internal/config"
	"github.com/naka-gawa/github-activity-report/internal/domain"
	"github.com/naka-gawa/github-activity-report/internal/export"
	"github.com/naka-gawa/github-activity-report/internal/normalize"
	"github.com/naka-gawa/github-activity-report/internal/output"
	"github.com/naka-gawa/github-activity-report/internal/render"
	"github.com/naka-gawa/github-activity-report/internal/secondary"
	"github.com/naka-gawa/github-activity-report/internal/sheets"
	"github.com/naka-gawa/github-activity-report/internal/summarize"
	"github.com/naka-gawa/github-activity-report/internal/telemetry"
)

// Step names as they appear in the run summary.
const (
	StepValidate   = "validate"
	StepCollect    = "collect"
	StepPersistRaw = "persist_raw"
	StepNormalize  = "normalize"
	StepRender     = "render"
	StepSummarize  = "summarize"
	StepSecondary  = "secondary"
	StepMerge      = "merge"
	StepExport     = "export"
	StepSheet      = "sheet"
	StepMetrics    = "metrics"
)

// PipelineConfig wires a Pipeline. Optional collaborators are nil when their
// feature is disabled.
type PipelineConfig struct {
	Collector  *Collector
	Renderer   *render.Renderer
	Loader     *secondary.Loader
	Summarizer *summarize.Summarizer
	Sheet      sheets.Writer
	Metrics    *telemetry.RunMetrics
	Features   config.Features
	Logger     *zap.Logger

	Aliases  domain.AliasTable
	Groups   GroupResolver
	Location *time.Location
	AIAgent  string

	OutputDir    string
	Markdown     bool
	Preview      io.Writer
	PreviewWidth int
	Format       export.Format
	SheetName    string
	ClearSheet   bool
	Secondary    secondary.Paths

	Now func() time.Time
}

// Pipeline runs one reporting cycle: collect, normalize, render, summarize,
// merge, export and upload.
type Pipeline struct {
	cfg PipelineConfig
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.NewRunMetrics()
	}
	if cfg.Format == "" {
		cfg.Format = export.FormatFlat
	}
	if cfg.Loader == nil {
		cfg.Loader = secondary.NewLoader(cfg.Logger)
	}
	if cfg.Renderer == nil {
		cfg.Renderer = render.NewRenderer(cfg.Aliases, cfg.Location)
	}
	return &Pipeline{cfg: cfg}
}

// RunResult is everything a run produced.
type RunResult struct {
	Summary RunSummary
	Layout  output.Layout
	Records []domain.ActivityRecord
	Reports map[string]string
	Merge   MergeResult
}

type repoRecords struct {
	repository string
	records    []domain.ActivityRecord
}

// Run executes the pipeline over window. It returns an error only when the
// window is invalid or every repository failed; other step failures are
// reported in the summary.
func (p *Pipeline) Run(ctx context.Context, window domain.CollectionWindow) (*RunResult, error) {
	logger := p.cfg.Logger
	started := p.cfg.Now()
	layout := output.NewLayout(p.cfg.OutputDir, window)
	result := &RunResult{
		Layout:  layout,
		Reports: make(map[string]string),
		Summary: RunSummary{
			RunID:        uuid.NewString(),
			StartedAt:    started.UTC(),
			Since:        window.SinceDate(),
			Until:        window.UntilDate(),
			Repositories: window.Repositories,
		},
	}
	summary := &result.Summary

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
		p.finish(result, layout)
		return result, ErrAllRepositoriesFailed
	}
	summary.succeed(StepCollect, fmt.Sprintf("%d of %d repositories collected", len(repoResults)-len(summary.FailedRepositories), len(repoResults)))

	p.persistRaw(summary, layout, window, repoResults)

	perRepo := p.normalize(summary, repoResults)
	for _, repo := range perRepo {
		result.Records = append(result.Records, repo.records...)
	}
	domain.SortRecords(result.Records)
	summary.Records = len(result.Records)

	needMarkdown := p.cfg.Markdown || p.cfg.Features.AIEnabled || p.cfg.Preview != nil
	if needMarkdown {
		p.render(summary, layout, window, perRepo, result)
	} else {
		summary.skip(StepRender, "markdown not requested")
	}

	p.summarize(ctx, summary, layout, perRepo, result.Reports)

	sources := p.cfg.Loader.Load(p.cfg.Secondary)
	if names := sources.Names(); len(names) > 0 {
		summary.succeed(StepSecondary, fmt.Sprintf("sources: %v", names))
	} else {
		summary.skip(StepSecondary, "no secondary sources found")
	}

	merger := NewMerger(p.cfg.Aliases, p.cfg.Groups, p.cfg.Location, p.cfg.AIAgent, window)
	result.Merge = merger.Merge(result.Records, sources)
	if result.Merge.Unmatched > 0 {
		logger.Warn("Secondary entries without primary activity", zap.Int("unmatched", result.Merge.Unmatched))
	}
	summary.succeed(StepMerge, fmt.Sprintf("%d buckets, %d unmatched secondary entries", len(result.Merge.Records), result.Merge.Unmatched))

	meta := export.NewMetadata(window, sources.Names(), len(result.Merge.Records), p.cfg.Now())
	meta.RunID = summary.RunID
	p.export(summary, layout, result.Merge.Records, meta)
	p.upload(ctx, summary, result.Merge.Records, meta)

	p.finish(result, layout)
	return result, nil
}

func (p *Pipeline) persistRaw(summary *RunSummary, layout output.Layout, window domain.CollectionWindow, results []domain.RepoResult) {
	var failures int
	for _, res := range results {
		if res.Err != nil {
			continue
		}
		payloads := res.Payloads
		if payloads == nil {
			payloads = []domain.RawPayload{}
		}
		if err := output.WriteJSON(layout.RawPath(res.Repository), payloads); err != nil {
			p.cfg.Logger.Warn("Failed to persist raw payloads", zap.String("repository", res.Repository), zap.Error(err))
			failures++
			continue
		}
		if err := output.WriteJSON(layout.RawSummaryPath(res.Repository), newCollectionSummary(res, window)); err != nil {
			p.cfg.Logger.Warn("Failed to persist collection summary", zap.String("repository", res.Repository), zap.Error(err))
			failures++
		}
	}
	if failures > 0 {
		summary.fail(StepPersistRaw, fmt.Sprintf("%d files could not be written", failures))
		return
	}
	summary.succeed(StepPersistRaw, layout.RawGitHubDir())
}

func (p *Pipeline) normalize(summary *RunSummary, results []domain.RepoResult) []repoRecords {
	var perRepo []repoRecords
	for _, res := range results {
		if res.Err != nil {
			continue
		}
		normalized := normalize.NormalizeAll(res.Payloads)
		dropped := normalized.Dropped + normalized.Invalid
		if dropped > 0 {
			p.cfg.Logger.Warn("Dropped records during normalization",
				zap.String("repository", res.Repository),
				zap.Int("missing_identifier", normalized.Dropped),
				zap.Int("undecodable", normalized.Invalid),
			)
		}
		summary.DroppedRecords += dropped
		p.cfg.Metrics.AddDropped(dropped)
		counts := make(map[domain.Kind]int)
		for _, record := range normalized.Records {
			counts[record.Kind]++
		}
		for kind, n := range counts {
			p.cfg.Metrics.AddRecords(res.Repository, string(kind), n)
		}
		perRepo = append(perRepo, repoRecords{repository: res.Repository, records: normalized.Records})
	}
	summary.succeed(StepNormalize, fmt.Sprintf("%d records, %d dropped", countRecords(perRepo), summary.DroppedRecords))
	return perRepo
}

func (p *Pipeline) render(summary *RunSummary, layout output.Layout, window domain.CollectionWindow, perRepo []repoRecords, result *RunResult) {
	renderer := p.cfg.Renderer
	var failures int
	for _, repo := range perRepo {
		if !p.cfg.Markdown {
			result.Reports[repo.repository] = renderer.Render(domain.RepoName(repo.repository), window, repo.records)
			continue
		}
		path, markdown, err := renderer.WriteReport(layout, repo.repository, repo.records)
		if err != nil {
			p.cfg.Logger.Warn("Failed to write report", zap.String("repository", repo.repository), zap.Error(err))
			failures++
			markdown = renderer.Render(domain.RepoName(repo.repository), window, repo.records)
		} else {
			p.cfg.Logger.Info("Report written", zap.String("repository", repo.repository), zap.String("path", path))
		}
		result.Reports[repo.repository] = markdown
	}

	combined := ""
	if len(window.Repositories) > 1 {
		combined = renderer.Render(render.CombinedTitle, window, result.Records)
		if p.cfg.Markdown {
			if _, err := renderer.WriteCombinedReport(layout, result.Records); err != nil {
				p.cfg.Logger.Warn("Failed to write combined report", zap.Error(err))
				failures++
			}
		}
	}

	if p.cfg.Preview != nil {
		markdown := combined
		if markdown == "" && len(perRepo) > 0 {
			markdown = result.Reports[perRepo[0].repository]
		}
		fmt.Fprintln(p.cfg.Preview, render.Preview(markdown, p.cfg.PreviewWidth))
	}

	if failures > 0 {
		summary.fail(StepRender, fmt.Sprintf("%d reports could not be written", failures))
		return
	}
	summary.succeed(StepRender, fmt.Sprintf("%d reports", len(perRepo)))
}

func (p *Pipeline) summarize(ctx context.Context, summary *RunSummary, layout output.Layout, perRepo []repoRecords, reports map[string]string) {
	features := p.cfg.Features
	switch {
	case !features.AIRequested:
		summary.skip(StepSummarize, "not requested")
		return
	case !features.AIEnabled || p.cfg.Summarizer == nil:
		p.cfg.Logger.Warn("AI summary requested but OPENAI_API_KEY is not set", zap.String("step", StepSummarize))
		summary.skip(StepSummarize, "OPENAI_API_KEY is not set")
		return
	}

	var failures int
	for _, repo := range perRepo {
		if _, err := p.cfg.Summarizer.Summarize(ctx, layout, repo.repository, reports[repo.repository]); err != nil {
			p.cfg.Logger.Warn("AI summary failed, skipping", zap.String("repository", repo.repository), zap.String("step", StepSummarize), zap.Error(err))
			failures++
		}
	}
	if failures > 0 {
		summary.fail(StepSummarize, fmt.Sprintf("%d of %d summaries failed", failures, len(perRepo)))
		return
	}
	summary.succeed(StepSummarize, fmt.Sprintf("%d summaries", len(perRepo)))
}

func (p *Pipeline) export(summary *RunSummary, layout output.Layout, records []domain.MergedStatRecord, meta export.Metadata) {
	data, err := export.Export(records, p.cfg.Format, meta)
	if err == nil {
		err = output.WriteFile(layout.ExportPath(string(p.cfg.Format)), append(data, '\n'))
	}
	if err != nil {
		p.cfg.Logger.Warn("Export failed", zap.String("step", StepExport), zap.Error(err))
		summary.fail(StepExport, err.Error())
		return
	}
	summary.succeed(StepExport, layout.ExportPath(string(p.cfg.Format)))
}

func (p *Pipeline) upload(ctx context.Context, summary *RunSummary, records []domain.MergedStatRecord, meta export.Metadata) {
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

	flat := export.ToFlat(export.FromRecords(records, meta))
	rows := make([][]string, 0, len(flat.Rows))
	for _, row := range flat.Rows {
		rows = append(rows, row.Values())
	}
	batch := sheets.Batch{Sheet: p.cfg.SheetName, Header: export.Header, Rows: rows, Clear: p.cfg.ClearSheet}
	if err := p.cfg.Sheet.WriteBatch(ctx, batch); err != nil {
		p.cfg.Logger.Warn("Sheet upload failed", zap.String("step", StepSheet), zap.Error(err))
		summary.fail(StepSheet, err.Error())
		return
	}
	summary.succeed(StepSheet, fmt.Sprintf("%d rows", len(rows)))
}

// finish records metrics and writes the run summary. Both are best effort.
func (p *Pipeline) finish(result *RunResult, layout output.Layout) {
	summary := &result.Summary
	finished := p.cfg.Now()
	summary.FinishedAt = finished.UTC()

	for _, step := range summary.Steps {
		p.cfg.Metrics.StepFinished(step.Name, string(step.Status))
	}
	p.cfg.Metrics.Finish(summary.StartedAt, finished)
	if err := p.cfg.Metrics.WriteTextfile(layout.MetricsPath()); err != nil {
		p.cfg.Logger.Warn("Failed to write metrics", zap.String("step", StepMetrics), zap.Error(err))
		summary.fail(StepMetrics, err.Error())
	} else {
		summary.succeed(StepMetrics, layout.MetricsPath())
	}

	if err := output.WriteJSON(layout.RunSummaryPath(), summary); err != nil {
		p.cfg.Logger.Warn("Failed to write run summary", zap.Error(err))
	}
}

// collectionSummary is stored next to the raw payloads of a repository.
type collectionSummary struct {
	Repository string         `json:"repository"`
	Period     period         `json:"period"`
	Counts     map[string]int `json:"counts"`
	Total      int            `json:"total"`
}

type period struct {
	Since string `json:"since"`
	Until string `json:"until"`
	Days  int    `json:"days"`
}

func newCollectionSummary(res domain.RepoResult, window domain.CollectionWindow) collectionSummary {
	counts := make(map[string]int, len(domain.Kinds))
	for _, payload := range res.Payloads {
		counts[string(payload.Kind)]++
	}
	return collectionSummary{
		Repository: res.Repository,
		Period:     period{Since: window.SinceDate(), Until: window.UntilDate(), Days: window.Days()},
		Counts:     counts,
		Total:      len(res.Payloads),
	}
}

func countRecords(perRepo []repoRecords) int {
	var n int
	for _, repo := range perRepo {
		n += len(repo.records)
	}
	return n
}
