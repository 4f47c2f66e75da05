// Package deploy orchestrates a full suite deployment against the local test
// network: owner neuron creation, the suite-creation proposal, participant
// funding, swap participation, finalization, and the deployment record.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"daoctl/config"
	"daoctl/rpc"
)

// ErrTimeout is wrapped by every exhausted wait loop.
var ErrTimeout = errors.New("deploy: timed out waiting for remote state")

// TimeoutError reports which wait loop exhausted its bound.
type TimeoutError struct {
	What     string
	Attempts int
	Interval time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("deploy: timed out waiting for %s after %d attempts at %s intervals",
		e.What, e.Attempts, e.Interval)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// Await polls probe at the configured interval until it reports done, the
// attempt bound is exhausted, or the context is cancelled. Probes are
// idempotent queries, so a transient transport failure counts as a missed
// attempt rather than aborting the wait; any other probe error aborts
// immediately.
func Await[T any](ctx context.Context, what string, poll config.Poll, probe func(context.Context) (T, bool, error)) (T, error) {
	var zero T
	for attempt := 1; attempt <= poll.MaxAttempts; attempt++ {
		value, done, err := probe(ctx)
		if err != nil && !rpc.IsNetwork(err) {
			return zero, fmt.Errorf("deploy: waiting for %s: %w", what, err)
		}
		if err == nil && done {
			return value, nil
		}
		if attempt == poll.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(poll.Interval()):
		}
	}
	return zero, &TimeoutError{What: what, Attempts: poll.MaxAttempts, Interval: poll.Interval()}
}
