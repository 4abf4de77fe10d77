// Package summarize asks a language model for a narrative summary of a report.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/naka-gawa/github-activity-report/internal/domain"
	"github.com/naka-gawa/github-activity-report/internal/output"
)

// DefaultPromptFile is used for repositories without their own prompt.
const DefaultPromptFile = "default.md"

// ErrEmptyCompletion is returned when the model answers with no text.
var ErrEmptyCompletion = errors.New("completion returned no text")

// Usage is the token accounting of one completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is a model answer.
type Completion struct {
	Text  string
	Usage Usage
}

// Completer produces a completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (Completion, error)
}

// OpenAICompleter calls an OpenAI-compatible chat completion endpoint.
type OpenAICompleter struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// OpenAIOptions configures NewOpenAICompleter. BaseURL and HTTPClient are optional.
type OpenAIOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	HTTPClient openai.HTTPDoer
}

func NewOpenAICompleter(opts OpenAIOptions) *OpenAICompleter {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	return &OpenAICompleter{
		client:      openai.NewClientWithConfig(cfg),
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: 0.7,
	}
}

func (c *OpenAICompleter) Complete(ctx context.Context, prompt string) (Completion, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return Completion{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return Completion{}, ErrEmptyCompletion
	}
	return Completion{
		Text: resp.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// Summarizer produces the AI report of a repository.
type Summarizer struct {
	completer Completer
	promptDir string
	logger    *zap.Logger
}

func NewSummarizer(completer Completer, promptDir string, logger *zap.Logger) *Summarizer {
	return &Summarizer{completer: completer, promptDir: promptDir, logger: logger}
}

// Prompt returns the prompt of repository: <dir>/<name>.md, falling back to
// <dir>/default.md.
func (s *Summarizer) Prompt(repository string) (string, error) {
	candidates := []string{
		filepath.Join(s.promptDir, domain.RepoName(repository)+".md"),
		filepath.Join(s.promptDir, DefaultPromptFile),
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("read prompt %s: %w", path, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return "", fmt.Errorf("no prompt for %s in %s", repository, s.promptDir)
}

// Summarize sends the prompt followed by markdown to the model and writes
// the answer to the AI report path of repository.
func (s *Summarizer) Summarize(ctx context.Context, layout output.Layout, repository, markdown string) (string, error) {
	prompt, err := s.Prompt(repository)
	if err != nil {
		return "", err
	}
	completion, err := s.completer.Complete(ctx, prompt+"\n\n"+markdown)
	if err != nil {
		return "", err
	}
	s.logger.Info("AI summary generated",
		zap.String("repository", repository),
		zap.Int("prompt_tokens", completion.Usage.PromptTokens),
		zap.Int("completion_tokens", completion.Usage.CompletionTokens),
		zap.Int("total_tokens", completion.Usage.TotalTokens),
	)

	path := layout.AIReportPath(repository)
	if err := output.WriteText(path, completion.Text); err != nil {
		return "", fmt.Errorf("write AI report for %s: %w", repository, err)
	}
	return path, nil
}
