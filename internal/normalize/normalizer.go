// Package normalize converts raw GitHub API payloads into ActivityRecords.
package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/naka-gawa/github-activity-report/internal/domain"
)

// ExcerptLength is the number of runes of a body kept for rendering.
const ExcerptLength = 200

const noreplyDomain = "@users.noreply.github.com"

type login struct {
	Login string `json:"login"`
}

type restIssue struct {
	Number    *int       `json:"number"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	State     string     `json:"state"`
	CreatedAt *time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at"`
	User      *login     `json:"user"`
	Labels    []struct {
		Name string `json:"name"`
	} `json:"labels"`
	Comments int    `json:"comments"`
	HTMLURL  string `json:"html_url"`
}

type graphPullRequest struct {
	Number    *int       `json:"number"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	State     string     `json:"state"`
	Merged    bool       `json:"merged"`
	CreatedAt *time.Time `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt"`
	ClosedAt  *time.Time `json:"closedAt"`
	MergedAt  *time.Time `json:"mergedAt"`
	URL       string     `json:"url"`
	Author    *login     `json:"author"`
	Labels    struct {
		Nodes []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	} `json:"labels"`
	Comments struct {
		TotalCount int `json:"totalCount"`
	} `json:"comments"`
	Additions    int `json:"additions"`
	Deletions    int `json:"deletions"`
	ChangedFiles int `json:"changedFiles"`
}

type restCommit struct {
	SHA    string `json:"sha"`
	Commit *struct {
		Author *struct {
			Name  string     `json:"name"`
			Email string     `json:"email"`
			Date  *time.Time `json:"date"`
		} `json:"author"`
		Committer *struct {
			Date *time.Time `json:"date"`
		} `json:"committer"`
		Message string `json:"message"`
	} `json:"commit"`
	Author  *login `json:"author"`
	HTMLURL string `json:"html_url"`
}

// Normalize maps one raw payload onto the canonical record shape. Missing
// optional fields take neutral defaults; a payload without an identifier
// yields domain.ErrMissingIdentifier.
func Normalize(raw domain.RawPayload) (domain.ActivityRecord, error) {
	switch raw.Kind {
	case domain.KindIssue:
		return normalizeIssue(raw)
	case domain.KindPullRequest:
		return normalizePullRequest(raw)
	case domain.KindCommit:
		return normalizeCommit(raw)
	default:
		return domain.ActivityRecord{}, fmt.Errorf("%w: %q", domain.ErrUnknownKind, raw.Kind)
	}
}

func normalizeIssue(raw domain.RawPayload) (domain.ActivityRecord, error) {
	var issue restIssue
	if err := json.Unmarshal(raw.Data, &issue); err != nil {
		return domain.ActivityRecord{}, fmt.Errorf("decode issue payload: %w", err)
	}
	if issue.Number == nil || *issue.Number <= 0 {
		return domain.ActivityRecord{}, domain.ErrMissingIdentifier
	}

	state := domain.StateOpen
	if strings.EqualFold(issue.State, "closed") || issue.ClosedAt != nil {
		state = domain.StateClosed
	}
	labels := make([]string, 0, len(issue.Labels))
	for _, label := range issue.Labels {
		if label.Name != "" {
			labels = append(labels, label.Name)
		}
	}

	return domain.ActivityRecord{
		Repository:  raw.Repository,
		Kind:        domain.KindIssue,
		Identifier:  strconv.Itoa(*issue.Number),
		Title:       issue.Title,
		Author:      loginOf(issue.User),
		CreatedAt:   timeOf(issue.CreatedAt),
		UpdatedAt:   utc(issue.UpdatedAt),
		ClosedAt:    utc(issue.ClosedAt),
		Labels:      labels,
		State:       state,
		BodyExcerpt: Excerpt(issue.Body),
		URL:         issue.HTMLURL,
		Comments:    issue.Comments,
	}, nil
}

func normalizePullRequest(raw domain.RawPayload) (domain.ActivityRecord, error) {
	var pr graphPullRequest
	if err := json.Unmarshal(raw.Data, &pr); err != nil {
		return domain.ActivityRecord{}, fmt.Errorf("decode pull request payload: %w", err)
	}
	if pr.Number == nil || *pr.Number <= 0 {
		return domain.ActivityRecord{}, domain.ErrMissingIdentifier
	}

	// Merged wins over the closed flag.
	var state domain.State
	switch {
	case pr.Merged || pr.MergedAt != nil || strings.EqualFold(pr.State, "merged"):
		state = domain.StateMerged
	case strings.EqualFold(pr.State, "closed") || pr.ClosedAt != nil:
		state = domain.StateClosed
	default:
		state = domain.StateOpen
	}
	labels := make([]string, 0, len(pr.Labels.Nodes))
	for _, label := range pr.Labels.Nodes {
		if label.Name != "" {
			labels = append(labels, label.Name)
		}
	}

	return domain.ActivityRecord{
		Repository:   raw.Repository,
		Kind:         domain.KindPullRequest,
		Identifier:   strconv.Itoa(*pr.Number),
		Title:        pr.Title,
		Author:       loginOf(pr.Author),
		CreatedAt:    timeOf(pr.CreatedAt),
		UpdatedAt:    utc(pr.UpdatedAt),
		ClosedAt:     utc(pr.ClosedAt),
		MergedAt:     utc(pr.MergedAt),
		Labels:       labels,
		State:        state,
		BodyExcerpt:  Excerpt(pr.Body),
		URL:          pr.URL,
		Comments:     pr.Comments.TotalCount,
		Additions:    pr.Additions,
		Deletions:    pr.Deletions,
		ChangedFiles: pr.ChangedFiles,
	}, nil
}

func normalizeCommit(raw domain.RawPayload) (domain.ActivityRecord, error) {
	var commit restCommit
	if err := json.Unmarshal(raw.Data, &commit); err != nil {
		return domain.ActivityRecord{}, fmt.Errorf("decode commit payload: %w", err)
	}
	if strings.TrimSpace(commit.SHA) == "" {
		return domain.ActivityRecord{}, domain.ErrMissingIdentifier
	}

	var (
		message, name, email string
		date                 *time.Time
	)
	if commit.Commit != nil {
		message = commit.Commit.Message
		if commit.Commit.Author != nil {
			name = commit.Commit.Author.Name
			email = commit.Commit.Author.Email
			date = commit.Commit.Author.Date
		}
		if commit.Commit.Committer != nil && commit.Commit.Committer.Date != nil {
			date = commit.Commit.Committer.Date
		}
	}

	author := loginOf(commit.Author)
	if author == domain.UnknownContributor && strings.TrimSpace(name) != "" {
		author = strings.TrimSpace(name)
	}
	if author == domain.UnknownContributor {
		author = UsernameFromEmail(email)
	}

	title, body, _ := strings.Cut(message, "\n")
	return domain.ActivityRecord{
		Repository:  raw.Repository,
		Kind:        domain.KindCommit,
		Identifier:  commit.SHA,
		Title:       strings.TrimSpace(title),
		Author:      author,
		CreatedAt:   timeOf(date),
		Labels:      []string{},
		State:       domain.StateClosed,
		BodyExcerpt: Excerpt(strings.TrimSpace(body)),
		URL:         commit.HTMLURL,
	}, nil
}

// Excerpt truncates body to ExcerptLength runes, appending "..." when cut.
func Excerpt(body string) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= ExcerptLength {
		return body
	}
	return string(runes[:ExcerptLength]) + "..."
}

// UsernameFromEmail derives a login from a commit e-mail address. GitHub
// noreply addresses of the form "id+login@users.noreply.github.com" yield login.
func UsernameFromEmail(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.UnknownContributor
	}
	local, _, _ := strings.Cut(email, "@")
	if strings.HasSuffix(email, noreplyDomain) {
		if _, after, ok := strings.Cut(local, "+"); ok {
			return after
		}
	}
	if local == "" {
		return domain.UnknownContributor
	}
	return local
}

func loginOf(l *login) string {
	if l == nil || strings.TrimSpace(l.Login) == "" {
		return domain.UnknownContributor
	}
	return l.Login
}

func timeOf(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
