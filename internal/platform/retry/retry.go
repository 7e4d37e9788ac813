// Package retry polls an operation with capped exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

type Action int

const (
	Stop  Action = iota // permanent error, abort immediately
	Retry               // transient error, back off and try again
)

type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration // zero means uncapped
	OnRetry        func(attempt int, err error, backoff time.Duration)
}

type Classify func(err error) Action

// Transient retries everything except context cancellation.
func Transient(err error) Action {
	if errors.Is(err, context.Canceled) {
		return Stop
	}
	return Retry
}

// Do runs op until it succeeds, classify says Stop, attempts run out or ctx ends.
// Backoff waits use clock so callers can drive them in tests.
func Do(ctx context.Context, clock clockwork.Clock, p Policy, classify Classify, op func(context.Context) error) error {
	if p.MaxAttempts < 1 {
		return errors.New("retry: MaxAttempts must be >= 1")
	}
	backoff := p.InitialBackoff

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}

		if classify(err) == Stop {
			return &PermanentError{Err: err}
		}
		if attempt == p.MaxAttempts {
			return fmt.Errorf("failed after %d attempts: %w", p.MaxAttempts, err)
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err, backoff)
		}

		select {
		case <-clock.After(backoff):
			backoff *= 2
			if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
				backoff = p.MaxBackoff
			}
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}
}

type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }
