package domain

// StatKey is the join key of a MergedStatRecord.
type StatKey struct {
	Date            string `json:"date"`
	Contributor     string `json:"contributor"`
	RepositoryGroup string `json:"repository_group"`
}

// StatCounts holds the counters of one merged bucket.
type StatCounts struct {
	Issues       int     `json:"issues"`
	PullRequests int     `json:"pull_requests"`
	Commits      int     `json:"commits"`
	AISessions   int     `json:"ai_sessions"`
	AIUsage      float64 `json:"ai_usage"`
	MergedPRs    int     `json:"merged_prs"`
}

// Total returns the primary activity count of the bucket.
func (c StatCounts) Total() int {
	return c.Issues + c.PullRequests + c.Commits
}

// Add increments the counter matching kind.
func (c *StatCounts) Add(kind Kind) {
	switch kind {
	case KindIssue:
		c.Issues++
	case KindPullRequest:
		c.PullRequests++
	case KindCommit:
		c.Commits++
	}
}

// MergedStatRecord is the per (date, contributor, repository group) aggregate
// combining primary activity counts with optional secondary-source counts.
// It is the core domain entity of the statistics path.
type MergedStatRecord struct {
	StatKey
	StatCounts
}
