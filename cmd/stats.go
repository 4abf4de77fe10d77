package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/naka-gawa/github-activity-report/internal/config"
	"github.com/naka-gawa/github-activity-report/internal/domain"
	"github.com/naka-gawa/github-activity-report/internal/export"
	"github.com/naka-gawa/github-activity-report/internal/telemetry"
	"github.com/naka-gawa/github-activity-report/internal/usecase"
)

const defaultSinceDate = "2025-05-01"

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregates commits per repository, contributor and day",
	Long: `Collects commits since the given date, aggregates them per repository,
contributor and day, writes the aggregate as JSON, and uploads it to Google Sheets
unless --no-upload is set.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		exitOnError(runStats(ctx, cmd))
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	flags := statsCmd.Flags()
	flags.StringSlice("repos", nil, "Repositories to aggregate (default: every public repository of --org)")
	flags.StringP("org", "o", "", "Organization owning the repositories")
	flags.String("since-date", defaultSinceDate, "Collect commits since this date (YYYY-MM-DD)")
	flags.String("output-dir", "", "Output root directory (default $OUTPUT_DIR)")
	flags.Bool("no-upload", false, "Skip the Google Sheets upload")
	flags.Bool("clear-sheet", false, "Clear the worksheet before uploading")
	flags.String("format", string(export.FormatFlat), "Export format: flat or unified")
	flags.Int("concurrency", 0, "Repositories fetched in parallel (default from config)")
}

func statsOptions(cmd *cobra.Command, cfg *config.Config) config.StatsOptions {
	flags := cmd.Flags()
	opts := config.StatsOptions{}
	opts.Repositories, _ = flags.GetStringSlice("repos")
	opts.Organization, _ = flags.GetString("org")
	opts.SinceDate, _ = flags.GetString("since-date")
	opts.OutputDir, _ = flags.GetString("output-dir")
	opts.NoUpload, _ = flags.GetBool("no-upload")
	opts.ClearSheet, _ = flags.GetBool("clear-sheet")
	opts.Format, _ = flags.GetString("format")
	opts.Concurrency, _ = flags.GetInt("concurrency")
	if opts.OutputDir == "" {
		opts.OutputDir = cfg.Env.OutputDir
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = cfg.File.Concurrency
	}
	return opts
}

func runStats(ctx context.Context, cmd *cobra.Command) error {
	logger, cfg, err := setup(cmd)
	defer func() { _ = logger.Sync() }()
	if err != nil {
		return err
	}

	opts := statsOptions(cmd, cfg)
	if err := config.ValidateStruct(opts); err != nil {
		return err
	}
	since, err := time.ParseInLocation("2006-01-02", opts.SinceDate, cfg.Location())
	if err != nil {
		return fmt.Errorf("%w: since-date: %w", domain.ErrInvalidWindow, err)
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
	window := domain.CollectionWindow{Since: since, Until: time.Now(), Repositories: repos}

	features := cfg.Features(false, !opts.NoUpload)
	sheet, err := newSheetWriter(ctx, cfg, features, logger)
	if err != nil {
		return err
	}

	pipeline := usecase.NewPipeline(usecase.PipelineConfig{
		Collector:  usecase.NewCollector(gw, logger, opts.Concurrency, []domain.Kind{domain.KindCommit}),
		Sheet:      sheet,
		Features:   features,
		Logger:     logger,
		Aliases:    cfg.Aliases(),
		Groups:     usecase.RepositoryGroups(cfg.File.RepositoryGroups),
		Location:   cfg.Location(),
		AIAgent:    cfg.File.AIAgent,
		OutputDir:  opts.OutputDir,
		Format:     export.Format(opts.Format),
		SheetName:  cfg.File.Sheets.StatsSheetName,
		ClearSheet: opts.ClearSheet,
	})

	logger.Info("Starting commit statistics",
		zap.Int("repositories", len(repos)),
		zap.String("since", window.SinceDate()),
	)
	result, err := pipeline.RunCommitStats(ctx, window)
	if result != nil {
		printSummary(os.Stdout, result.Summary, result.Layout.Dir())
		fmt.Fprintf(os.Stdout, "Commits: %d in %d buckets\n", result.CommitSummary.TotalCommits, result.CommitSummary.AggregatedCommits)
	}
	return err
}
