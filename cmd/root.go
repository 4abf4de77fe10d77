// Package cmd contains all the CLI commands for the application,
// built using the Cobra library.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/api/option"

	"github.com/naka-gawa/github-activity-report/internal/config"
	"github.com/naka-gawa/github-activity-report/internal/gateway"
	"github.com/naka-gawa/github-activity-report/internal/sheets"
	"github.com/naka-gawa/github-activity-report/internal/telemetry"
	"github.com/naka-gawa/github-activity-report/internal/usecase"
)

const httpTimeout = 30 * time.Second

var rootCmd = &cobra.Command{
	Use:   "github-activity-report",
	Short: "A CLI tool to report GitHub activity across repositories.",
	Long: `github-activity-report collects issues, pull requests and commits of a set of
GitHub repositories over a time window, renders Markdown reports, and exports
per contributor statistics merged with optional secondary sources.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	// Add a persistent flag for verbose output, available to all commands.
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose/debug logging")
	rootCmd.PersistentFlags().String("config", "", "Path to an optional YAML config file")
}

// exitOnError prints err and terminates with a non-zero status.
func exitOnError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// newLogger builds the console logger written to standard error.
func newLogger(verbose bool) *zap.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.Lock(os.Stderr), level)
	return zap.New(core)
}

// setup resolves the logger and configuration shared by every command.
func setup(cmd *cobra.Command) (*zap.Logger, *config.Config, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	path, _ := cmd.Flags().GetString("config")
	logger := newLogger(verbose)
	cfg, err := config.Load(path)
	if err != nil {
		return logger, nil, err
	}
	return logger, cfg, nil
}

// newGateway builds the authenticated GitHub gateway.
func newGateway(cfg *config.Config, logger *zap.Logger, tracing telemetry.Runtime) (*gateway.GitHubGateway, error) {
	if !cfg.HasGitHubCredentials() {
		return nil, fmt.Errorf("GITHUB_TOKEN is not set and no GitHub App is configured")
	}
	httpClient, err := gateway.NewHTTPClient(gateway.AuthConfig{
		Token:           cfg.Env.GitHubToken,
		AppID:           cfg.Env.GitHubAppID,
		InstallationID:  cfg.Env.GitHubInstallationID,
		PrivateKeyPath:  cfg.Env.GitHubPrivateKeyPath,
		ResponseTimeout: httpTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}
	retry := gateway.DefaultRetryConfig()
	retry.MaxAttempts = cfg.File.Retry.MaxAttempts
	retry.InitialBackoff = cfg.File.Retry.InitialBackoff
	retry.MaxBackoff = cfg.File.Retry.MaxBackoff
	return gateway.NewGitHubGateway(httpClient, logger, gateway.Options{
		Retry:  retry,
		Tracer: tracing.Tracer(),
	}), nil
}

// resolveRepositories qualifies repos with org. Without explicit repositories
// the config file list is used, and failing that every public repository of org.
func resolveRepositories(ctx context.Context, fetcher gateway.Fetcher, repos []string, org string, cfg *config.Config) ([]string, error) {
	if org == "" {
		org = cfg.File.Organization
	}
	if len(repos) == 0 {
		repos = cfg.File.Repositories
	}
	if len(repos) == 0 && org != "" {
		listed, err := fetcher.ListOrgRepositories(ctx, org)
		if err != nil {
			return nil, err
		}
		repos = listed
	}
	return config.QualifyRepositories(repos, org)
}

// newSheetWriter opens the configured spreadsheet when the upload is enabled.
func newSheetWriter(ctx context.Context, cfg *config.Config, features config.Features, logger *zap.Logger) (sheets.Writer, error) {
	if !features.SheetEnabled {
		return nil, nil
	}
	writer, err := sheets.NewGoogleWriter(ctx, cfg.Env.SpreadsheetID, logger, option.WithCredentialsFile(cfg.Env.SheetsCredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	return writer, nil
}

// printSummary writes a colored digest of a run to w.
func printSummary(w io.Writer, summary usecase.RunSummary, dir string) {
	bold := color.New(color.Bold)
	bold.Fprintf(w, "Run %s (%s ~ %s)\n", summary.RunID, summary.Since, summary.Until)
	for _, step := range summary.Steps {
		var status *color.Color
		switch step.Status {
		case usecase.StepSucceeded:
			status = color.New(color.FgGreen)
		case usecase.StepSkipped:
			status = color.New(color.FgYellow)
		default:
			status = color.New(color.FgRed)
		}
		fmt.Fprintf(w, "  %-12s %s", step.Name, status.Sprint(step.Status))
		if step.Detail != "" {
			fmt.Fprintf(w, "  %s", step.Detail)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Records: %d (dropped %d)\n", summary.Records, summary.DroppedRecords)
	if len(summary.FailedRepositories) > 0 {
		color.New(color.FgRed).Fprintf(w, "Failed repositories: %v\n", summary.FailedRepositories)
	}
	fmt.Fprintf(w, "Output: %s\n", dir)
}
