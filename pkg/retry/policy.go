// Package retry wraps a single backend call in bounded exponential backoff.
// Rate-limit failures are retried with doubling delays; everything else
// propagates immediately. The state machine is explicit so it can be tested
// without triggering real transport faults.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultInitialDelay = 5 * time.Second
	defaultMaxAttempts  = 3
)

// ErrExhausted reports that every permitted attempt hit a rate limit.
var ErrExhausted = errors.New("retry: rate limit retries exhausted")

// State enumerates the phases a single call moves through.
type State int

const (
	StateSuccess State = iota
	StateRetryWait
	StateExhausted
	StateFatal
)

// String renders the state for diagnostics.
func (s State) String() string {
	switch s {
	case StateSuccess:
		return "success"
	case StateRetryWait:
		return "retry-wait"
	case StateExhausted:
		return "exhausted"
	case StateFatal:
		return "fatal"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome is the assessment of one attempt: what to do next and how long to
// wait before doing it.
type Outcome struct {
	State State
	Delay time.Duration
	Err   error
}

// Policy holds the knobs for one top-level backend call. The zero value uses
// the defaults (5s initial delay, 3 attempts). No state carries across
// calls; Do re-enters the machine fresh every time.
type Policy struct {
	InitialDelay time.Duration
	MaxAttempts  int
	// Sleep is swapped in tests; nil means a context-aware real sleep.
	Sleep func(ctx context.Context, d time.Duration) error
	Log   logrus.FieldLogger
}

func (p Policy) initialDelay() time.Duration {
	if p.InitialDelay <= 0 {
		return defaultInitialDelay
	}
	return p.InitialDelay
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return p.MaxAttempts
}

// Retryable classifies an error: true iff its text carries a rate-limit
// indicator. Anything else is fatal for the current attempt.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") {
		return true
	}
	if strings.Contains(msg, "resource exhausted") || strings.Contains(msg, "resource_exhausted") {
		return true
	}
	return strings.Contains(msg, "rate limit")
}

// Assess maps the result of attempt number attempt (1-based) onto the next
// transition. The delay for attempt n is InitialDelay doubled n-1 times.
func (p Policy) Assess(attempt int, err error) Outcome {
	if err == nil {
		return Outcome{State: StateSuccess}
	}
	if !Retryable(err) {
		return Outcome{State: StateFatal, Err: err}
	}
	if attempt >= p.maxAttempts() {
		return Outcome{State: StateExhausted, Err: fmt.Errorf("%w after %d attempts: %v", ErrExhausted, attempt, err)}
	}
	return Outcome{State: StateRetryWait, Delay: p.initialDelay() << (attempt - 1), Err: err}
}

// Do executes call under the policy and returns its result, the original
// fatal error, or an ErrExhausted-wrapped error once retries run out.
func Do[T any](ctx context.Context, p Policy, call func(context.Context) (T, error)) (T, error) {
	var zero T
	log := p.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for attempt := 1; ; attempt++ {
		result, err := call(ctx)
		outcome := p.Assess(attempt, err)
		switch outcome.State {
		case StateSuccess:
			return result, nil
		case StateFatal:
			return zero, outcome.Err
		case StateExhausted:
			return zero, outcome.Err
		case StateRetryWait:
			log.WithFields(logrus.Fields{
				"attempt": attempt,
				"delay":   outcome.Delay,
			}).Info("rate limited, backing off")
			if err := sleep(ctx, outcome.Delay); err != nil {
				return zero, err
			}
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
