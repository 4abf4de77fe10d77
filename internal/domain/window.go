package domain

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// CollectionWindow is the [Since, Until) time range and repository set driving one run.
type CollectionWindow struct {
	Since        time.Time
	Until        time.Time
	Repositories []string
}

// NewLookbackWindow builds a window ending at now and starting days before it.
func NewLookbackWindow(now time.Time, days int, repositories []string) CollectionWindow {
	return CollectionWindow{
		Since:        now.AddDate(0, 0, -days),
		Until:        now,
		Repositories: repositories,
	}
}

// Validate checks the window before any network call is made.
func (w CollectionWindow) Validate(now time.Time) error {
	if len(w.Repositories) == 0 {
		return ErrEmptyRepositories
	}
	for _, repo := range w.Repositories {
		owner, name, ok := strings.Cut(repo, "/")
		if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
			return fmt.Errorf("%w: repository %q must be owner/name", ErrInvalidWindow, repo)
		}
	}
	if w.Since.IsZero() || w.Until.IsZero() {
		return fmt.Errorf("%w: since and until are required", ErrInvalidWindow)
	}
	if w.Since.After(now) {
		return fmt.Errorf("%w: since %s", ErrWindowInFuture, w.Since.Format(time.RFC3339))
	}
	if !w.Since.Before(w.Until) {
		return fmt.Errorf("%w: since must be before until", ErrInvalidWindow)
	}
	return nil
}

// Contains reports whether t falls inside the window. Since is inclusive, Until exclusive.
func (w CollectionWindow) Contains(t time.Time) bool {
	return !t.Before(w.Since) && t.Before(w.Until)
}

// DirName is the run directory name, e.g. "2025-05-01_to_2025-05-08".
func (w CollectionWindow) DirName() string {
	return w.Since.Format(dateLayout) + "_to_" + w.Until.Format(dateLayout)
}

// SinceDate returns the start date formatted as YYYY-MM-DD.
func (w CollectionWindow) SinceDate() string { return w.Since.Format(dateLayout) }

// UntilDate returns the end date formatted as YYYY-MM-DD.
func (w CollectionWindow) UntilDate() string { return w.Until.Format(dateLayout) }

// Days returns the window length in whole days.
func (w CollectionWindow) Days() int {
	return int(w.Until.Sub(w.Since).Hours() / 24)
}

// RepoName returns the name part of an owner/name identifier.
func RepoName(repository string) string {
	if i := strings.LastIndex(repository, "/"); i >= 0 {
		return repository[i+1:]
	}
	return repository
}

// RepoOwner returns the owner part of an owner/name identifier.
func RepoOwner(repository string) string {
	owner, _, ok := strings.Cut(repository, "/")
	if !ok {
		return ""
	}
	return owner
}

// DateKey formats t as a calendar day in loc.
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(dateLayout)
}
