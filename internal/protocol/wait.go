package protocol

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/markasorgu/api/schemas"
)

// DefaultPollInterval is used when a wait is given a non-positive interval.
const DefaultPollInterval = 100 * time.Millisecond

// Condition is a predicate evaluated against the page.
type Condition func(ctx context.Context) (bool, error)

// Poll evaluates cond every interval until it holds, the timeout expires or ctx is done.
// It returns false without an error when the timeout expires. Predicate errors count as
// "not yet" because the page may be mid-render, except for a broken session.
func Poll(ctx context.Context, timeout, interval time.Duration, cond Condition) (bool, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := cond(pollCtx)
		switch {
		case err == nil && ok:
			return true, nil
		case errors.Is(err, schemas.ErrSessionBroken):
			return false, err
		}

		select {
		case <-pollCtx.Done():
			if ctxErr := ctx.Err(); ctxErr != nil {
				return false, ctxErr
			}
			return false, nil
		case <-ticker.C:
		}
	}
}

// Strict waits for cond and fails with onTimeout when it never holds.
func Strict(ctx context.Context, timeout, interval time.Duration, cond Condition, onTimeout error, what string) error {
	ok, err := Poll(ctx, timeout, interval, cond)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s not present after %s", onTimeout, what, timeout)
	}
	return nil
}

// Tolerant waits for cond and proceeds when the timeout expires.
func Tolerant(ctx context.Context, timeout, interval time.Duration, cond Condition) error {
	_, err := Poll(ctx, timeout, interval, cond)
	return err
}

// Settle sleeps for d. Only used where the page exposes no observable condition.
func Settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
