package pool

import (
	"fmt"

	"btctrack/pkg/models"
)

// AttemptError records one failed connection or call against one
// endpoint during failover.
type AttemptError struct {
	Endpoint models.Endpoint
	Err      error
}

func (a AttemptError) Error() string {
	return fmt.Sprintf("%s: %v", a.Endpoint, a.Err)
}

func (a AttemptError) Unwrap() error { return a.Err }

// ExhaustedError means every fallback tier failed: the ranked pool, the
// discovery-refreshed pool, and the hardcoded seeds. It carries the
// per-endpoint causes.
type ExhaustedError struct {
	Attempts []AttemptError
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return "all server attempts failed"
	}
	last := e.Attempts[len(e.Attempts)-1]
	return fmt.Sprintf("all %d server attempts failed (last: %v)", len(e.Attempts), last)
}

// DeadlineExceededError means the caller's cumulative deadline expired
// before the fallback tiers were exhausted.
type DeadlineExceededError struct {
	Attempts []AttemptError
}

func (e *DeadlineExceededError) Error() string {
	return fmt.Sprintf("deadline exceeded after %d server attempts", len(e.Attempts))
}
