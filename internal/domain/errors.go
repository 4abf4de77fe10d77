package domain

import "errors"

var (
	ErrEmptyRepositories = errors.New("repository list is empty")
	ErrInvalidWindow     = errors.New("invalid collection window")
	ErrWindowInFuture    = errors.New("collection window starts in the future")

	ErrMissingIdentifier = errors.New("record has no identifier")
	ErrUnknownKind       = errors.New("unknown activity kind")

	ErrRateLimitExhausted = errors.New("rate limit hit twice on the same page")
)
