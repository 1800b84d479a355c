// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package authflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

const (
	// DefaultLockTimeout is the longest AcquireToken waits for another
	// process holding the same client and tenant.
	DefaultLockTimeout = 15 * time.Minute
	// PromptHintPrefix is shown in front of every caller supplied prompt hint.
	PromptHintPrefix = "Azure Auth"
)

// ErrInvalidRequest is wrapped by every request validation failure.
var ErrInvalidRequest = errors.New("invalid token request")

// Request describes one token acquisition.
type Request struct {
	ClientID string
	TenantID string
	// Resource is used to derive the default scope when Scopes is empty.
	Resource string
	Scopes   []string
	Modes    []Mode
	// Domain filters cached accounts by UPN suffix.
	Domain         string
	PromptHint     string
	Timeout        time.Duration
	NonInteractive bool
}

// Validate checks the fields every strategy needs.
func (r Request) Validate() error {
	var missing []string
	if strings.TrimSpace(r.ClientID) == "" {
		missing = append(missing, "client")
	}
	if strings.TrimSpace(r.TenantID) == "" {
		missing = append(missing, "tenant")
	}
	if len(r.Scopes) == 0 && strings.TrimSpace(r.Resource) == "" {
		missing = append(missing, "resource or scope")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	if r.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidRequest)
	}
	return nil
}

// EffectiveScopes returns Scopes, or "<resource>/.default" when none are set.
func (r Request) EffectiveScopes() []string {
	if len(r.Scopes) > 0 {
		return r.Scopes
	}
	return []string{strings.TrimSuffix(r.Resource, "/") + "/.default"}
}

// LockKey identifies the credential guarded by the cross-process lock.
func (r Request) LockKey() string {
	return r.TenantID + "_" + r.ClientID
}

// FormatPromptHint prefixes hint so users can tell which tool prompts them.
func FormatPromptHint(hint string) string {
	hint = strings.TrimSpace(hint)
	switch {
	case hint == "":
		return PromptHintPrefix
	case strings.HasPrefix(hint, PromptHintPrefix):
		return hint
	default:
		return PromptHintPrefix + ": " + hint
	}
}

// Locker serializes work per key across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, maxWait time.Duration, fn func(context.Context) error) error
}

// Observer is told about every finished AcquireToken call.
type Observer interface {
	ObserveResult(req Request, result *Result, err error)
}

// Acquirer is the single entry point for obtaining a token.
type Acquirer struct {
	Log      *zap.SugaredLogger
	Platform Platform
	// Factory returns the strategy factory bound to one request.
	Factory     func(Request) Factory
	Locker      Locker
	Executor    *Executor
	Clock       clock.Clock
	LockTimeout time.Duration
	Observer    Observer
}

// AcquireToken resolves the request's modes on the platform, builds the
// strategy sequence and runs it while holding the lock for the request's
// tenant and client. Ordinary authentication failures are reported inside
// the result; an error is returned for invalid requests, lock timeouts and
// unexpected strategy faults.
func (a *Acquirer) AcquireToken(ctx context.Context, req Request) (result *Result, err error) {
	log := a.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	defer func() {
		if a.Observer != nil {
			a.Observer.ObserveResult(req, result, err)
		}
	}()

	if err = req.Validate(); err != nil {
		return nil, err
	}
	if a.Factory == nil {
		return nil, errors.New("acquirer has no strategy factory")
	}
	mode, err := Combine(req.Modes...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	mode = a.Platform.Resolve(mode)
	if req.NonInteractive {
		mode = a.Platform.PreventInteraction(mode)
		log.Debugw("User interaction disabled", "mode", mode.String())
	}
	req.PromptHint = FormatPromptHint(req.PromptHint)
	req.Scopes = req.EffectiveScopes()
	if req.Timeout == 0 {
		req.Timeout = DefaultTimeout
	}

	strategies, err := Build(mode, a.Platform, a.Factory(req))
	if err != nil {
		return nil, err
	}
	log.Debugw("Planned auth flows", "platform", a.Platform.Name, "mode", mode.String(), "flows", Plan(mode, a.Platform))

	executor := a.Executor
	if executor == nil {
		executor = NewExecutor(log)
	}
	clk := a.Clock
	if clk == nil {
		clk = executor.clock()
	}

	run := func(ctx context.Context) error {
		deadline := NewDeadline(clk, req.Timeout).Start()
		defer deadline.Stop()
		var runErr error
		result, runErr = executor.Run(ctx, strategies, deadline)
		log.Debugw("Auth flows finished", "elapsed", deadline.Elapsed(), "attempts", len(result.Attempts))
		return runErr
	}

	if a.Locker == nil {
		err = run(ctx)
		return result, err
	}
	lockTimeout := a.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	err = a.Locker.WithLock(ctx, req.LockKey(), lockTimeout, run)
	return result, err
}
