// Package wait is the only place where scenarios suspend: it polls
// predicates against a live page until they hold or a timeout elapses.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jakopako/sitecheckr/internal/types"
)

// Outcome is the result of waiting for a condition.
type Outcome int

const (
	TimedOut Outcome = iota
	Satisfied
)

func (o Outcome) String() string {
	if o == Satisfied {
		return "satisfied"
	}
	return "timed out"
}

// MinInterval is the fastest polling rate Until accepts.
const MinInterval = 10 * time.Millisecond

// A Condition reports whether the awaited state has been reached. An error
// counts as not reached yet.
type Condition func(ctx context.Context) (bool, error)

// Until evaluates cond immediately and then every interval until it is
// satisfied or timeout elapses. With a timeout <= 0 the first evaluation is
// final. If ctx is done before, ctx.Err() is returned with TimedOut.
// Otherwise the error of the last failed evaluation, if any, is returned along
// with TimedOut for diagnostics.
func Until(ctx context.Context, cond Condition, timeout, interval time.Duration) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return TimedOut, err
	}
	ok, lastErr := cond(ctx)
	if ok {
		return Satisfied, nil
	}
	if timeout <= 0 {
		return TimedOut, lastErr
	}
	if interval < MinInterval {
		interval = MinInterval
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-pollCtx.Done():
			if err := ctx.Err(); err != nil {
				return TimedOut, err
			}
			return TimedOut, lastErr
		case <-ticker.C:
			var err error
			ok, err = cond(pollCtx)
			if ok {
				return Satisfied, nil
			}
			// an evaluation cut short by the deadline says nothing about the page
			if err != nil && pollCtx.Err() == nil {
				lastErr = err
			}
		}
	}
}

// For waits like Until and converts anything but Satisfied into an error: a
// *types.Error of kind ErrTimeout naming what was awaited, or the context
// error if ctx is done.
func For(ctx context.Context, what string, cond Condition, timeout, interval time.Duration) error {
	outcome, err := Until(ctx, cond, timeout, interval)
	if outcome == Satisfied {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &types.Error{
		Kind: types.ErrTimeout,
		Op:   fmt.Sprintf("waiting %s for %s", timeout, what),
		Err:  err,
	}
}

// IsTimeout reports whether err is a wait that timed out.
func IsTimeout(err error) bool {
	var e *types.Error
	return errors.As(err, &e) && e.Kind == types.ErrTimeout
}
