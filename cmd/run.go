package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/naka-gawa/github-activity-report/internal/config"
	"github.com/naka-gawa/github-activity-report/internal/domain"
	"github.com/naka-gawa/github-activity-report/internal/export"
	"github.com/naka-gawa/github-activity-report/internal/secondary"
	"github.com/naka-gawa/github-activity-report/internal/summarize"
	"github.com/naka-gawa/github-activity-report/internal/telemetry"
	"github.com/naka-gawa/github-activity-report/internal/usecase"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collects activity, renders reports and exports merged statistics",
	Long: `Collects issues, pull requests and commits of the given repositories over the
window, writes raw payloads and Markdown reports, optionally asks a model for a
summary, and exports per contributor statistics to JSON and Google Sheets.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		exitOnError(runReport(ctx, cmd))
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	flags := runCmd.Flags()
	flags.StringSlice("repo", nil, "Repositories to report on (comma separated, bare names are prefixed with --org)")
	flags.StringP("org", "o", "", "Owner used for bare repository names")
	flags.Int("last-days", 7, "Number of days to look back")
	flags.String("since", "", "Window start (YYYY-MM-DD), overrides --last-days")
	flags.String("until", "", "Window end (YYYY-MM-DD, exclusive)")
	flags.String("output-dir", "", "Output root directory (default $OUTPUT_DIR)")
	flags.Bool("markdown", false, "Write Markdown reports")
	flags.Bool("no-prs", false, "Skip pull requests")
	flags.String("format", string(export.FormatFlat), "Export format: flat or unified")
	flags.Bool("ai", false, "Generate AI summaries (requires OPENAI_API_KEY)")
	flags.String("prompt-dir", "", "Directory of prompt templates")
	flags.Bool("preview", false, "Render the report in the terminal")
	flags.Bool("sheet", false, "Upload statistics to Google Sheets")
	flags.Bool("clear-sheet", false, "Clear the worksheet before uploading")
	flags.String("ai-usage-file", "", "Path to an AI usage history JSON file")
	flags.String("pr-stats-dir", "", "Directory of per pull request statistics JSON files")
	flags.Int("concurrency", 0, "Repositories fetched in parallel (default from config)")
}

func runOptions(cmd *cobra.Command, cfg *config.Config) config.RunOptions {
	flags := cmd.Flags()
	opts := config.RunOptions{}
	opts.Repositories, _ = flags.GetStringSlice("repo")
	opts.Organization, _ = flags.GetString("org")
	opts.LastDays, _ = flags.GetInt("last-days")
	opts.Since, _ = flags.GetString("since")
	opts.Until, _ = flags.GetString("until")
	opts.OutputDir, _ = flags.GetString("output-dir")
	opts.Markdown, _ = flags.GetBool("markdown")
	opts.NoPRs, _ = flags.GetBool("no-prs")
	opts.Format, _ = flags.GetString("format")
	opts.AI, _ = flags.GetBool("ai")
	opts.PromptDir, _ = flags.GetString("prompt-dir")
	opts.Preview, _ = flags.GetBool("preview")
	opts.Sheet, _ = flags.GetBool("sheet")
	opts.ClearSheet, _ = flags.GetBool("clear-sheet")
	opts.AIUsageFile, _ = flags.GetString("ai-usage-file")
	opts.PRStatsDir, _ = flags.GetString("pr-stats-dir")
	opts.Concurrency, _ = flags.GetInt("concurrency")

	if opts.OutputDir == "" {
		opts.OutputDir = cfg.Env.OutputDir
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = cfg.File.Concurrency
	}
	if opts.PromptDir == "" {
		opts.PromptDir = cfg.File.AI.PromptDir
	}
	if opts.AIUsageFile == "" {
		opts.AIUsageFile = cfg.File.Secondary.AIUsageFile
	}
	if opts.PRStatsDir == "" {
		opts.PRStatsDir = cfg.File.Secondary.PullRequestDir
	}
	return opts
}

func runReport(ctx context.Context, cmd *cobra.Command) error {
	logger, cfg, err := setup(cmd)
	defer func() { _ = logger.Sync() }()
	if err != nil {
		return err
	}

	opts := runOptions(cmd, cfg)
	if err := config.ValidateStruct(opts); err != nil {
		return err
	}

	tracing, err := telemetry.SetupTracing(cfg.File.Tracing, logger)
	if err != nil {
		return err
	}
	defer func() { _ = tracing.Shutdown(context.Background()) }()

	gw, err := newGateway(cfg, logger, tracing)
	if err != nil {
		return err
	}
	repos, err := resolveRepositories(ctx, gw, opts.Repositories, opts.Organization, cfg)
	if err != nil {
		return err
	}
	window, err := opts.Window(time.Now(), cfg.Location(), repos)
	if err != nil {
		return err
	}

	kinds := slices.Clone(domain.Kinds)
	if opts.NoPRs {
		kinds = slices.DeleteFunc(kinds, func(k domain.Kind) bool { return k == domain.KindPullRequest })
	}

	features := cfg.Features(opts.AI, opts.Sheet)
	var summarizer *summarize.Summarizer
	if features.AIEnabled {
		completer := summarize.NewOpenAICompleter(summarize.OpenAIOptions{
			APIKey:    cfg.Env.OpenAIAPIKey,
			BaseURL:   cfg.Env.OpenAIBaseURL,
			Model:     cfg.File.AI.Model,
			MaxTokens: cfg.File.AI.MaxTokens,
		})
		summarizer = summarize.NewSummarizer(completer, opts.PromptDir, logger)
	}
	sheet, err := newSheetWriter(ctx, cfg, features, logger)
	if err != nil {
		return err
	}

	pipelineCfg := usecase.PipelineConfig{
		Collector:  usecase.NewCollector(gw, logger, opts.Concurrency, kinds),
		Summarizer: summarizer,
		Sheet:      sheet,
		Features:   features,
		Logger:     logger,
		Aliases:    cfg.Aliases(),
		Groups:     usecase.RepositoryGroups(cfg.File.RepositoryGroups),
		Location:   cfg.Location(),
		AIAgent:    cfg.File.AIAgent,
		OutputDir:  opts.OutputDir,
		Markdown:   opts.Markdown,
		Format:     export.Format(opts.Format),
		SheetName:  cfg.File.Sheets.SheetName,
		ClearSheet: opts.ClearSheet,
		Secondary:  secondary.Paths{AIUsageFile: opts.AIUsageFile, PullRequestDir: opts.PRStatsDir},
	}
	if opts.Preview {
		pipelineCfg.Preview = os.Stdout
		pipelineCfg.PreviewWidth = 100
	}

	logger.Info("Starting run",
		zap.Strings("repositories", window.Repositories),
		zap.String("since", window.SinceDate()),
		zap.String("until", window.UntilDate()),
	)
	result, err := usecase.NewPipeline(pipelineCfg).Run(ctx, window)
	if result != nil {
		printSummary(os.Stdout, result.Summary, result.Layout.Dir())
	}
	if errors.Is(err, usecase.ErrAllRepositoriesFailed) {
		logger.Error("Every repository failed to fetch", zap.Strings("repositories", window.Repositories))
	}
	return err
}
