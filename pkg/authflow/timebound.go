// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package authflow

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Per-operation budgets used by the strategies.
const (
	SilentTimeout      = 5 * time.Minute
	InteractiveTimeout = 15 * time.Minute
	DeviceCodeTimeout  = 15 * time.Minute
	IWATimeout         = 15 * time.Second
)

type boundOutcome[T any] struct {
	value    T
	err      error
	panicked bool
	panicVal any
}

// CompleteWithin runs op under timeout. When op finishes first its value and
// error are returned unchanged. When the timeout fires first op's context is
// cancelled, a *TimeoutError is appended to errs (if non-nil) and the zero
// value is returned with a nil error; op is not waited for. Cancellation of
// ctx itself is reported as a KindCancelled AuthError.
func CompleteWithin[T any](
	ctx context.Context,
	log *zap.SugaredLogger,
	timeout time.Duration,
	label string,
	op func(context.Context) (T, error),
	errs *[]error,
) (T, error) {
	var zero T
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log.Debugf("%s has %.1f minutes to complete", label, timeout.Minutes())

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan boundOutcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- boundOutcome[T]{panicked: true, panicVal: r}
			}
		}()
		v, err := op(opCtx)
		done <- boundOutcome[T]{value: v, err: err}
	}()

	timedOut := func() (T, error) {
		if ctx.Err() != nil {
			return zero, NewAuthError(KindCancelled, label, ctx.Err())
		}
		te := &TimeoutError{Label: label, After: timeout}
		log.Warn(te.Error())
		if errs != nil {
			*errs = append(*errs, te)
		}
		return zero, nil
	}

	select {
	case out := <-done:
		if out.panicked {
			panic(out.panicVal)
		}
		// op gave up on its own context before we noticed
		if out.err != nil && opCtx.Err() != nil && errors.Is(out.err, opCtx.Err()) {
			return timedOut()
		}
		return out.value, out.err
	case <-opCtx.Done():
		return timedOut()
	}
}
