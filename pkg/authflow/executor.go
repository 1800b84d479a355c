// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package authflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

const (
	// DefaultWarningDelay is how long a strategy may run before the user is
	// told to look for a prompt.
	DefaultWarningDelay = 20 * time.Second
	// DefaultPollInterval is how often the global deadline is checked after
	// the warning was shown.
	DefaultPollInterval = 5 * time.Minute
)

// Executor runs strategies one after another until one yields a token.
type Executor struct {
	Log          *zap.SugaredLogger
	Clock        clock.Clock
	WarningDelay time.Duration
	PollInterval time.Duration
	// NewID returns the correlation id of an attempt. Defaults to a random UUID.
	NewID func() string
}

// NewExecutor returns an executor with default timings on the wall clock.
func NewExecutor(log *zap.SugaredLogger) *Executor {
	return &Executor{
		Log:          log,
		Clock:        clock.RealClock{},
		WarningDelay: DefaultWarningDelay,
		PollInterval: DefaultPollInterval,
	}
}

func (e *Executor) log() *zap.SugaredLogger {
	if e.Log == nil {
		return zap.NewNop().Sugar()
	}
	return e.Log
}

func (e *Executor) clock() clock.Clock {
	if e.Clock == nil {
		return clock.RealClock{}
	}
	return e.Clock
}

func (e *Executor) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func positiveOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// Run executes strategies in order under deadline. It stops after the first
// success, on global deadline expiry (recording a GlobalTimeoutError attempt)
// and on an unexpected strategy fault, which is returned alongside the
// attempts made so far.
func (e *Executor) Run(ctx context.Context, strategies []Strategy, deadline *Deadline) (*Result, error) {
	result := &Result{}
	if len(strategies) == 0 {
		e.log().Warn("No auth flows to run, check the requested auth modes")
		return result, nil
	}
	if deadline == nil {
		deadline = NewDeadline(e.clock(), DefaultTimeout).Start()
	}

	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("auth flows interrupted before %s: %w", s.Name(), err)
		}
		attempt, stop, err := e.runOne(ctx, s, deadline)
		if attempt != nil {
			result.Attempts = append(result.Attempts, *attempt)
		}
		if err != nil {
			return result, err
		}
		if stop || attempt.Success() {
			break
		}
	}
	return result, nil
}

type strategyOutcome struct {
	attempt  *Attempt
	err      error
	panicked bool
	panicVal any
}

func (e *Executor) runOne(ctx context.Context, s Strategy, deadline *Deadline) (*Attempt, bool, error) {
	name := s.Name()
	id := e.newID()
	log := e.log().With("flow", name, "correlationID", id)
	clk := e.clock()

	if deadline.Expired() {
		log.Warnw("Global timeout hit before auth flow started", "budget", deadline.Budget())
		return &Attempt{Name: name, CorrelationID: id, Errors: []error{&GlobalTimeoutError{Flow: name}}}, true, nil
	}

	flowCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Debug("Starting auth flow")
	start := clk.Now()
	done := make(chan strategyOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- strategyOutcome{panicked: true, panicVal: r}
			}
		}()
		a, err := s.Attempt(flowCtx)
		done <- strategyOutcome{attempt: a, err: err}
	}()

	first := positiveOr(e.WarningDelay, DefaultWarningDelay)
	timer := clk.NewTimer(min(first, deadline.Remaining()))
	defer timer.Stop()
	warned := false

	for {
		select {
		case out := <-done:
			if out.panicked {
				panic(out.panicVal)
			}
			elapsed := clk.Since(start)
			if out.err != nil {
				log.Errorw("Auth flow failed unexpectedly", "error", out.err)
				if out.attempt != nil {
					out.attempt.Duration = elapsed
					out.attempt.CorrelationID = id
				}
				return out.attempt, true, fmt.Errorf("auth flow %s: %w", name, out.err)
			}
			a := out.attempt
			if a == nil {
				nilErr := &NilResultError{Flow: name}
				log.Warn(nilErr.Error())
				a = &Attempt{Name: name, Errors: []error{nilErr}}
			}
			if a.Name == "" {
				a.Name = name
			}
			a.Duration = elapsed
			a.CorrelationID = id
			log.Debugw("Auth flow finished", "success", a.Success(), "errors", len(a.Errors), "duration", elapsed)
			return a, false, nil

		case <-ctx.Done():
			cancel()
			log.Warnw("Auth flow cancelled", "error", ctx.Err())
			return &Attempt{
				Name:          name,
				CorrelationID: id,
				Duration:      clk.Since(start),
				Errors:        []error{NewAuthError(KindCancelled, name, ctx.Err())},
			}, true, fmt.Errorf("auth flow %s: %w", name, ctx.Err())

		case <-timer.C():
			if deadline.Expired() {
				cancel()
				gte := &GlobalTimeoutError{Flow: name}
				log.Warnw(gte.Error(), "budget", deadline.Budget())
				return &Attempt{Name: name, CorrelationID: id, Duration: clk.Since(start), Errors: []error{gte}}, true, nil
			}
			if !warned {
				log.Warnf("Waiting for %s authentication. Look for an auth prompt.", name)
				warned = true
			}
			remaining := deadline.Remaining()
			log.Infof("Timeout in %s", remaining.Round(time.Second))
			timer.Reset(min(positiveOr(e.PollInterval, DefaultPollInterval), remaining))
		}
	}
}
