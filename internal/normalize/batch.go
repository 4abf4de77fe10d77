package normalize

import (
	"errors"

	"github.com/naka-gawa/github-activity-report/internal/domain"
)

// Result is the outcome of normalizing a batch of payloads.
type Result struct {
	Records []domain.ActivityRecord
	// Dropped counts payloads rejected for lacking an identifier.
	Dropped int
	// Invalid counts payloads that could not be decoded at all.
	Invalid int
}

// NormalizeAll normalizes raws, drops duplicates by (repository, kind,
// identifier) keeping the first occurrence, and returns records in
// canonical order.
func NormalizeAll(raws []domain.RawPayload) Result {
	result := Result{Records: make([]domain.ActivityRecord, 0, len(raws))}
	seen := make(map[domain.RecordKey]struct{}, len(raws))
	for _, raw := range raws {
		record, err := Normalize(raw)
		if err != nil {
			if errors.Is(err, domain.ErrMissingIdentifier) {
				result.Dropped++
			} else {
				result.Invalid++
			}
			continue
		}
		if _, ok := seen[record.Key()]; ok {
			continue
		}
		seen[record.Key()] = struct{}{}
		result.Records = append(result.Records, record)
	}
	domain.SortRecords(result.Records)
	return result
}
