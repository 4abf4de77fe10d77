// Package secondary loads optional statistics produced by other tools:
// AI agent usage history and cross-repository pull request exports.
package secondary

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// AIUsageEntry is one AI agent session.
type AIUsageEntry struct {
	Session   string
	CreatedAt time.Time
	Usage     float64
}

// PullRequestStat is one pull request from a cross-repository export.
type PullRequestStat struct {
	Number    int
	State     string
	Author    string
	CreatedAt time.Time
	MergedAt  *time.Time
}

// Merged reports whether the pull request was merged.
func (p PullRequestStat) Merged() bool { return p.MergedAt != nil }

// Sources holds every secondary source found for a run. A source that was
// not configured or not found on disk is absent, not an error.
type Sources struct {
	AIUsage         []AIUsageEntry
	HasAIUsage      bool
	PullRequests    []PullRequestStat
	HasPullRequests bool
}

// Names lists the sources that were present.
func (s Sources) Names() []string {
	var names []string
	if s.HasAIUsage {
		names = append(names, "ai_usage")
	}
	if s.HasPullRequests {
		names = append(names, "pr_stats")
	}
	return names
}

// Paths locates the secondary sources. Empty paths disable a source.
type Paths struct {
	AIUsageFile    string
	PullRequestDir string
}

// Loader reads secondary sources from disk.
type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	return &Loader{logger: logger}
}

// Load reads every configured source. It never fails: missing inputs leave
// the source absent and malformed files are logged and skipped.
func (l *Loader) Load(paths Paths) Sources {
	var sources Sources
	if paths.AIUsageFile != "" {
		entries, err := LoadAIUsage(paths.AIUsageFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			l.logger.Info("AI usage history not found", zap.String("path", paths.AIUsageFile))
		case err != nil:
			l.logger.Warn("Skipping malformed AI usage history", zap.String("path", paths.AIUsageFile), zap.Error(err))
		default:
			sources.AIUsage, sources.HasAIUsage = entries, true
		}
	}
	if paths.PullRequestDir != "" {
		stats, found, err := l.loadPullRequests(paths.PullRequestDir)
		if err != nil {
			l.logger.Warn("Skipping pull request stats", zap.String("path", paths.PullRequestDir), zap.Error(err))
		} else if found {
			sources.PullRequests, sources.HasPullRequests = stats, true
		} else {
			l.logger.Info("Pull request stats directory not found", zap.String("path", paths.PullRequestDir))
		}
	}
	return sources
}

type usageDocument struct {
	Data []struct {
		Session   string  `json:"session"`
		CreatedAt string  `json:"created_at"`
		ACUsUsed  float64 `json:"acus_used"`
	} `json:"data"`
}

// LoadAIUsage reads a usage_history.json file. The document is either
// {"data": [...]} or a list whose first element has that shape.
// Sessions with an unparsable timestamp are skipped.
func LoadAIUsage(path string) ([]AIUsageEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc usageDocument
	if err := unmarshalMaybeWrapped(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	entries := make([]AIUsageEntry, 0, len(doc.Data))
	for _, session := range doc.Data {
		created, err := ParseTime(session.CreatedAt)
		if err != nil {
			continue
		}
		entries = append(entries, AIUsageEntry{Session: session.Session, CreatedAt: created, Usage: session.ACUsUsed})
	}
	return entries, nil
}

type pullRequestDocument struct {
	BasicInfo struct {
		Number    int    `json:"number"`
		State     string `json:"state"`
		CreatedAt string `json:"created_at"`
		MergedAt  string `json:"merged_at"`
		User      struct {
			Login string `json:"login"`
		} `json:"user"`
	} `json:"basic_info"`
}

func (l *Loader) loadPullRequests(dir string) ([]PullRequestStat, bool, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !info.IsDir() {
		return nil, false, fmt.Errorf("%s is not a directory", dir)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, false, err
	}
	sort.Strings(files)

	var stats []PullRequestStat
	for _, file := range files {
		stat, err := LoadPullRequest(file)
		if err != nil {
			l.logger.Warn("Skipping malformed pull request file", zap.String("path", file), zap.Error(err))
			continue
		}
		stats = append(stats, stat)
	}
	return stats, true, nil
}

// LoadPullRequest reads one prs/*.json file holding {"basic_info": {...}},
// optionally wrapped in a list.
func LoadPullRequest(path string) (PullRequestStat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PullRequestStat{}, err
	}
	var doc pullRequestDocument
	if err := unmarshalMaybeWrapped(data, &doc); err != nil {
		return PullRequestStat{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	info := doc.BasicInfo
	if info.Number <= 0 {
		return PullRequestStat{}, fmt.Errorf("decode %s: missing basic_info.number", filepath.Base(path))
	}
	created, err := ParseTime(info.CreatedAt)
	if err != nil {
		return PullRequestStat{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	stat := PullRequestStat{
		Number:    info.Number,
		State:     strings.ToLower(info.State),
		Author:    info.User.Login,
		CreatedAt: created,
	}
	if merged, err := ParseTime(info.MergedAt); err == nil {
		stat.MergedAt = &merged
	}
	return stat, nil
}

// unmarshalMaybeWrapped decodes data into v, accepting either the object
// itself or a list whose first element is the object.
func unmarshalMaybeWrapped(data []byte, v any) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var list []json.RawMessage
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		if len(list) == 0 {
			return nil
		}
		return json.Unmarshal(list[0], v)
	}
	return json.Unmarshal(data, v)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime accepts the timestamp formats seen in exported files.
// Values without a zone are read as UTC.
func ParseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
