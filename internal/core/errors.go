package core

import (
	"errors"
	"fmt"
)

// Error taxonomy for upstream platform failures. Workers translate every
// failure into one of these so the orchestrator can apply the right health
// update without inspecting transport details.
var (
	// ErrAuthRequired marks invalid or revoked upstream credentials.
	// Permanent until the user re-links the account.
	ErrAuthRequired = errors.New("upstream authentication required")

	// ErrRateLimited marks an upstream throttle (HTTP 429). Transient and
	// safe to retry next cycle; does not count against the failure streak.
	ErrRateLimited = errors.New("upstream rate limited")
)

// DataError marks a malformed or unexpected upstream payload. It carries
// enough context to diagnose the payload without logging credentials.
type DataError struct {
	Platform Platform
	Detail   string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s payload: %s: %v", e.Platform, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s payload: %s", e.Platform, e.Detail)
}

func (e *DataError) Unwrap() error { return e.Err }
