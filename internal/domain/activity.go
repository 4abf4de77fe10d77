// Package domain contains the core data structures and domain logic for the application.
package domain

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"
)

// Kind is the type of a collected activity item.
type Kind string

const (
	KindPullRequest Kind = "pull_request"
	KindIssue       Kind = "issue"
	KindCommit      Kind = "commit"
)

// Kinds lists every kind in rendering order.
var Kinds = []Kind{KindPullRequest, KindIssue, KindCommit}

// Priority returns the position of the kind in rendering order.
// Unknown kinds sort last.
func (k Kind) Priority() int {
	for i, kind := range Kinds {
		if kind == k {
			return i
		}
	}
	return len(Kinds)
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k.Priority() < len(Kinds)
}

// State is the lifecycle state of an issue, pull request or commit.
// Merged is a refinement of closed and only applies to pull requests.
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
	StateMerged State = "merged"
)

// ActivityRecord is the canonical, normalized unit of collected GitHub activity.
type ActivityRecord struct {
	Repository   string     `json:"repository"`
	Kind         Kind       `json:"kind"`
	Identifier   string     `json:"identifier"`
	Title        string     `json:"title"`
	Author       string     `json:"author"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	MergedAt     *time.Time `json:"merged_at,omitempty"`
	Labels       []string   `json:"labels"`
	State        State      `json:"state"`
	BodyExcerpt  string     `json:"body_excerpt"`
	URL          string     `json:"url,omitempty"`
	Comments     int        `json:"comments"`
	Additions    int        `json:"additions,omitempty"`
	Deletions    int        `json:"deletions,omitempty"`
	ChangedFiles int        `json:"changed_files,omitempty"`
}

// RecordKey identifies a record uniquely within one collection run.
type RecordKey struct {
	Repository string
	Kind       Kind
	Identifier string
}

// Key returns the unique key of the record.
func (r ActivityRecord) Key() RecordKey {
	return RecordKey{Repository: r.Repository, Kind: r.Kind, Identifier: r.Identifier}
}

// RawPayload is one item as returned by the source control API, kept as JSON
// so it can be persisted verbatim and normalized later.
type RawPayload struct {
	Repository string          `json:"repository"`
	Kind       Kind            `json:"kind"`
	Data       json.RawMessage `json:"data"`
}

// RepoResult is the outcome of collecting one repository.
type RepoResult struct {
	Repository string
	Payloads   []RawPayload
	Err        error
}

// Less orders records by created_at descending, then kind priority, then
// identifier ascending. Numeric identifiers compare numerically.
func Less(a, b ActivityRecord) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	if a.Kind != b.Kind {
		return a.Kind.Priority() < b.Kind.Priority()
	}
	if a.Repository != b.Repository {
		return a.Repository < b.Repository
	}
	return identifierLess(a.Identifier, b.Identifier)
}

// SortRecords sorts records in place using Less. The sort is stable.
func SortRecords(records []ActivityRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return Less(records[i], records[j])
	})
}

func identifierLess(a, b string) bool {
	an, aErr := strconv.ParseInt(a, 10, 64)
	bn, bErr := strconv.ParseInt(b, 10, 64)
	if aErr == nil && bErr == nil {
		return an < bn
	}
	return a < b
}
