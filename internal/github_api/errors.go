package githubapi

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound means the remote identity no longer exists. Terminal per
// entity: callers mark the entity inert and never retry.
var ErrNotFound = errors.New("github api: not found")

// RateLimitError means the shared API quota is exhausted. It applies to the
// whole run, not just the call that hit it.
type RateLimitError struct {
	Reset time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("github api: rate limited until %s", e.Reset.Format(time.RFC3339))
}

// TransientError covers network failures and 5xx responses. Retryable with
// bounded backoff.
type TransientError struct {
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("github api: transient failure: %v", e.Err)
	}
	return fmt.Sprintf("github api: transient failure: status %d", e.Status)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// MalformedError means the response decoded but is missing required fields,
// or did not decode at all. The single record or call is skipped.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("github api: malformed response: %s", e.Reason)
}
