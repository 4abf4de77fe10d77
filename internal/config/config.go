// Package config loads the environment and the optional YAML file that
// drive a run.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"

	"github.com/naka-gawa/github-activity-report/internal/domain"
)

const (
	DefaultConcurrency = 4
	DefaultAIAgent     = "devin"
	DefaultOpenAIModel = "gpt-4o"
	DefaultMaxTokens   = 4000
	DefaultSheetName   = "github_activity"
	DefaultStatsSheet  = "commit_stats"
)

// DefaultAliases maps the AI agent's bot identities onto DefaultAIAgent.
var DefaultAliases = map[string]string{
	"devin-ai-integration[bot]": DefaultAIAgent,
	"devin-ai-integration":      DefaultAIAgent,
}

// Env holds secrets and paths read from the environment.
type Env struct {
	GitHubToken          string `env:"GITHUB_TOKEN"`
	GitHubAppID          int64  `env:"GITHUB_APP_ID"`
	GitHubInstallationID int64  `env:"GITHUB_INSTALLATION_ID"`
	GitHubPrivateKeyPath string `env:"GITHUB_PRIVATE_KEY_PATH"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	OpenAIModel   string `env:"OPENAI_MODEL"`

	SheetsCredentialsFile string `env:"GOOGLE_SHEETS_CREDENTIALS_FILE"`
	SpreadsheetID         string `env:"GOOGLE_SHEETS_SPREADSHEET_ID"`

	OutputDir string `env:"OUTPUT_DIR" env-default:"output"`
	Timezone  string `env:"TIMEZONE" env-default:"UTC"`
}

// File is the optional YAML configuration.
type File struct {
	Organization     string            `yaml:"organization"`
	Repositories     []string          `yaml:"repositories"`
	Aliases          map[string]string `yaml:"aliases"`
	RepositoryGroups map[string]string `yaml:"repository_groups"`
	AIAgent          string            `yaml:"ai_agent"`
	Concurrency      int               `yaml:"concurrency"`
	Tracing          bool              `yaml:"tracing"`
	Retry            RetryConfig       `yaml:"retry"`
	AI               AIConfig          `yaml:"ai"`
	Sheets           SheetsConfig      `yaml:"sheets"`
	Secondary        SecondaryConfig   `yaml:"secondary"`
}

// RetryConfig configures fetch retries.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// AIConfig configures the summary completion call.
type AIConfig struct {
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
	PromptDir string `yaml:"prompt_dir"`
}

// SheetsConfig names the target worksheets.
type SheetsConfig struct {
	SheetName      string `yaml:"sheet_name"`
	StatsSheetName string `yaml:"stats_sheet_name"`
}

// SecondaryConfig locates the optional secondary sources.
type SecondaryConfig struct {
	AIUsageFile    string `yaml:"ai_usage_file"`
	PullRequestDir string `yaml:"pr_stats_dir"`
}

// Config is the resolved configuration of one process.
type Config struct {
	Env  Env
	File File

	location *time.Location
}

// Load reads the environment and, when path is set, the YAML file at path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(&cfg.Env); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config file: %w", err)
		}
		defer f.Close()
		file, err := DecodeFile(f)
		if err != nil {
			return nil, err
		}
		cfg.File = *file
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DecodeFile decodes a YAML configuration, rejecting unknown keys.
func DecodeFile(reader io.Reader) (*File, error) {
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	var file File
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	return &file, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Env.OutputDir == "" {
		cfg.Env.OutputDir = "output"
	}
	if cfg.Env.Timezone == "" {
		cfg.Env.Timezone = "UTC"
	}
	f := &cfg.File
	if f.Concurrency == 0 {
		f.Concurrency = DefaultConcurrency
	}
	if f.AIAgent == "" {
		f.AIAgent = DefaultAIAgent
	}
	if f.Aliases == nil {
		f.Aliases = make(map[string]string, len(DefaultAliases))
	}
	for alias, canonical := range DefaultAliases {
		if _, ok := f.Aliases[alias]; !ok {
			f.Aliases[alias] = canonical
		}
	}
	if f.Retry.MaxAttempts == 0 {
		f.Retry.MaxAttempts = 3
	}
	if f.Retry.InitialBackoff == 0 {
		f.Retry.InitialBackoff = time.Second
	}
	if f.Retry.MaxBackoff == 0 {
		f.Retry.MaxBackoff = 30 * time.Second
	}
	if f.AI.Model == "" {
		f.AI.Model = cfg.Env.OpenAIModel
	}
	if f.AI.Model == "" {
		f.AI.Model = DefaultOpenAIModel
	}
	if f.AI.MaxTokens == 0 {
		f.AI.MaxTokens = DefaultMaxTokens
	}
	if f.AI.PromptDir == "" {
		f.AI.PromptDir = "prompts"
	}
	if f.Sheets.SheetName == "" {
		f.Sheets.SheetName = DefaultSheetName
	}
	if f.Sheets.StatsSheetName == "" {
		f.Sheets.StatsSheetName = DefaultStatsSheet
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []string

	loc, err := time.LoadLocation(c.Env.Timezone)
	if err != nil {
		errs = append(errs, fmt.Sprintf("TIMEZONE %q is not a known location", c.Env.Timezone))
	} else {
		c.location = loc
	}

	app := c.Env.GitHubAppID != 0 || c.Env.GitHubInstallationID != 0 || c.Env.GitHubPrivateKeyPath != ""
	if app && (c.Env.GitHubAppID <= 0 || c.Env.GitHubInstallationID <= 0 || c.Env.GitHubPrivateKeyPath == "") {
		errs = append(errs, "GITHUB_APP_ID, GITHUB_INSTALLATION_ID and GITHUB_PRIVATE_KEY_PATH must be set together")
	}

	f := c.File
	if f.Concurrency < 1 || f.Concurrency > 32 {
		errs = append(errs, "concurrency must be between 1 and 32")
	}
	if f.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry.max_attempts must be >= 1")
	}
	if f.Retry.InitialBackoff < 0 || f.Retry.MaxBackoff < f.Retry.InitialBackoff {
		errs = append(errs, "retry backoff must satisfy 0 <= initial_backoff <= max_backoff")
	}
	if f.AI.MaxTokens < 1 {
		errs = append(errs, "ai.max_tokens must be > 0")
	}
	for i, repo := range f.Repositories {
		if strings.TrimSpace(repo) == "" {
			errs = append(errs, fmt.Sprintf("repositories[%d] is empty", i))
		}
	}

	if len(errs) > 0 {
		return errors.New("invalid config: " + strings.Join(errs, "; "))
	}
	return nil
}

// Location is the time zone used for calendar-day keys.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// Aliases returns the contributor alias table.
func (c *Config) Aliases() domain.AliasTable {
	return domain.AliasTable(c.File.Aliases)
}

// HasGitHubCredentials reports whether any GitHub authentication is configured.
func (c *Config) HasGitHubCredentials() bool {
	return c.Env.GitHubToken != "" || c.Env.GitHubAppID > 0
}

// Features records which optional steps a run may perform. It is resolved
// once at startup and passed down; nothing else inspects the environment.
type Features struct {
	AIRequested    bool
	AIEnabled      bool
	SheetRequested bool
	SheetEnabled   bool
}

// Features resolves the optional steps from the CLI switches and the
// credentials present in c.
func (c *Config) Features(ai, sheet bool) Features {
	return Features{
		AIRequested:    ai,
		AIEnabled:      ai && c.Env.OpenAIAPIKey != "",
		SheetRequested: sheet,
		SheetEnabled:   sheet && c.Env.SheetsCredentialsFile != "" && c.Env.SpreadsheetID != "",
	}
}
