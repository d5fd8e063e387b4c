// Package poller implements the generic "wait until terminal status" loop
// spec.md §4.13 (C11) describes, shared by Order/Authorization/Challenge/
// Certificate waits.
//
// No equivalent exists in the teacher (acmeshell's flat shell/poll.go did a
// single fixed-interval sleep loop with no back-off or cancellation); this
// is instead grounded on the retry/backoff idiom in
// 286951d4_tommie-acme-go__client.go.go's Certificate() loop (retryAfter
// header honored, default sleep otherwise), generalized to exponential
// back-off and context cancellation per spec.md §4.13 and §5.
package poller

import (
	"context"
	"time"

	"github.com/cpu/acmecore/acme/problems"
)

const (
	defaultBackoff    = 3 * time.Second
	backoffMultiplier = 1.5
	maxBackoff        = 30 * time.Second
)

// Refresh re-fetches the polled resource's current status. It returns the
// status string observed, which Poll tests with Done, returns, and reports
// in a timeout error.
type Refresh func(ctx context.Context) (status string, retryAfter time.Time, hasRetryAfter bool, err error)

// Done reports whether status is terminal for this poll.
type Done func(status string) bool

// Poll runs Refresh until Done(status) is true, the timeout elapses, or ctx
// is canceled. It performs at most one Refresh per tick and never mutates
// state itself — the caller's Refresh closure is responsible for updating
// the resource from the server's response.
func Poll(ctx context.Context, timeout time.Duration, refresh Refresh, done Done) (string, error) {
	deadline := time.Now().Add(timeout)
	backoff := defaultBackoff
	lastStatus := ""

	for {
		status, retryAfter, hasRetryAfter, err := refresh(ctx)
		if err != nil {
			return lastStatus, err
		}
		lastStatus = status
		if done(status) {
			return status, nil
		}

		if time.Now().After(deadline) {
			timeoutErr := problems.New(problems.KindTimeout,
				"polling timed out waiting for a terminal status (last observed: %q)", lastStatus)
			timeoutErr.LastStatus = lastStatus
			return lastStatus, timeoutErr
		}

		sleep := backoff
		if hasRetryAfter {
			if wait := time.Until(retryAfter); wait > sleep {
				sleep = wait
			}
		}
		if remaining := time.Until(deadline); sleep > remaining {
			sleep = remaining
		}

		select {
		case <-ctx.Done():
			return lastStatus, problems.New(problems.KindInterrupted, "polling canceled: %s", ctx.Err())
		case <-time.After(sleep):
		}

		backoff = time.Duration(float64(backoff) * backoffMultiplier)
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
