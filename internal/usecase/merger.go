package usecase

import (
	"sort"
	"time"

	"github.com/naka-gawa/github-activity-report/internal/domain"
	"github.com/naka-gawa/github-activity-report/internal/secondary"
)

// GroupResolver maps a repository to its repository group.
type GroupResolver func(repository string) string

// RepositoryGroups resolves groups from an explicit mapping keyed by
// owner/name or bare name. Unmapped repositories group under their owner.
func RepositoryGroups(mapping map[string]string) GroupResolver {
	return func(repository string) string {
		if group, ok := mapping[repository]; ok && group != "" {
			return group
		}
		if group, ok := mapping[domain.RepoName(repository)]; ok && group != "" {
			return group
		}
		if owner := domain.RepoOwner(repository); owner != "" {
			return owner
		}
		return repository
	}
}

// MergeResult is the output of Merge.
type MergeResult struct {
	Records []domain.MergedStatRecord
	// Unmatched counts secondary entries whose (date, contributor) has no
	// primary activity. They are not part of Records.
	Unmatched int
}

// Merger joins secondary statistics onto primary activity.
type Merger struct {
	aliases  domain.AliasTable
	groups   GroupResolver
	location *time.Location
	aiAgent  string
	window   domain.CollectionWindow
}

// NewMerger creates a Merger. Calendar days are computed in loc; AI usage is
// attributed to aiAgent; secondary entries outside window are ignored.
func NewMerger(aliases domain.AliasTable, groups GroupResolver, loc *time.Location, aiAgent string, window domain.CollectionWindow) *Merger {
	if groups == nil {
		groups = RepositoryGroups(nil)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Merger{aliases: aliases, groups: groups, location: loc, aiAgent: aiAgent, window: window}
}

type dayContributor struct {
	date        string
	contributor string
}

// Merge buckets primary records by (date, contributor, repository group) and
// left-joins the secondary sources onto those buckets. Every primary record
// lands in exactly one bucket; absent sources leave their counters at zero.
func (m *Merger) Merge(records []domain.ActivityRecord, sources secondary.Sources) MergeResult {
	buckets := make(map[domain.StatKey]*domain.StatCounts)
	groupsByDay := make(map[dayContributor][]string)

	for _, record := range records {
		key := domain.StatKey{
			Date:            domain.DateKey(record.CreatedAt, m.location),
			Contributor:     m.aliases.Resolve(record.Author),
			RepositoryGroup: m.groups(record.Repository),
		}
		counts, ok := buckets[key]
		if !ok {
			counts = &domain.StatCounts{}
			buckets[key] = counts
			dc := dayContributor{key.Date, key.Contributor}
			groupsByDay[dc] = append(groupsByDay[dc], key.RepositoryGroup)
		}
		counts.Add(record.Kind)
	}
	for _, groups := range groupsByDay {
		sort.Strings(groups)
	}

	var result MergeResult
	attach := func(at time.Time, contributor string, apply func(*domain.StatCounts)) {
		if !m.inWindow(at) {
			return
		}
		dc := dayContributor{domain.DateKey(at, m.location), m.aliases.Resolve(contributor)}
		groups := groupsByDay[dc]
		if len(groups) == 0 {
			result.Unmatched++
			return
		}
		apply(buckets[domain.StatKey{Date: dc.date, Contributor: dc.contributor, RepositoryGroup: groups[0]}])
	}

	for _, entry := range sources.AIUsage {
		attach(entry.CreatedAt, m.aiAgent, func(c *domain.StatCounts) {
			c.AISessions++
			c.AIUsage += entry.Usage
		})
	}
	for _, pr := range sources.PullRequests {
		if !pr.Merged() {
			continue
		}
		attach(pr.CreatedAt, pr.Author, func(c *domain.StatCounts) {
			c.MergedPRs++
		})
	}

	result.Records = make([]domain.MergedStatRecord, 0, len(buckets))
	for key, counts := range buckets {
		result.Records = append(result.Records, domain.MergedStatRecord{StatKey: key, StatCounts: *counts})
	}
	sort.Slice(result.Records, func(i, j int) bool {
		a, b := result.Records[i].StatKey, result.Records[j].StatKey
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Contributor != b.Contributor {
			return a.Contributor < b.Contributor
		}
		return a.RepositoryGroup < b.RepositoryGroup
	})
	return result
}

func (m *Merger) inWindow(t time.Time) bool {
	if m.window.Since.IsZero() && m.window.Until.IsZero() {
		return true
	}
	return m.window.Contains(t)
}
