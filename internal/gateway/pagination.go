package gateway

import (
	"context"
	"iter"
	"strconv"
	"time"

	"github.com/google/go-github/v84/github"
	"github.com/naka-gawa/github-activity-report/internal/domain"
)

// pageFunc fetches the page at cursor and returns the cursor of the next
// page, or "" when there is none.
type pageFunc[T any] func(ctx context.Context, cursor string) ([]T, string, error)

// paginate exposes a paged endpoint as a lazy sequence. Pages are requested
// only as the consumer pulls them.
func paginate[T any](ctx context.Context, fetch pageFunc[T]) iter.Seq2[[]T, error] {
	return func(yield func([]T, error) bool) {
		cursor := ""
		for {
			items, next, err := fetch(ctx, cursor)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(items, nil) || next == "" {
				return
			}
			cursor = next
		}
	}
}

// collectWindow drains pages, keeping items inside window. With stopAtSince
// the pages must be ordered newest first by timestamp, and pulling stops once
// a page holds an item older than window.Since.
func collectWindow[T any](pages iter.Seq2[[]T, error], window domain.CollectionWindow, stopAtSince bool, timestamp func(T) time.Time) ([]T, int, error) {
	var kept []T
	pageCount := 0
	for page, err := range pages {
		if err != nil {
			return nil, pageCount, err
		}
		pageCount++
		crossed := false
		for _, item := range page {
			ts := timestamp(item)
			if ts.Before(window.Since) {
				crossed = true
				continue
			}
			if window.Contains(ts) {
				kept = append(kept, item)
			}
		}
		if crossed && stopAtSince {
			break
		}
	}
	return kept, pageCount, nil
}

func restPage(cursor string) int {
	page, err := strconv.Atoi(cursor)
	if err != nil {
		return 0
	}
	return page
}

func nextRESTCursor(resp *github.Response) string {
	if resp == nil || resp.NextPage == 0 {
		return ""
	}
	return strconv.Itoa(resp.NextPage)
}
