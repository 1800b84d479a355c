// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package authflow

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an expected, recoverable authentication failure.
type Kind int

const (
	// KindUIRequired means the identity provider needs user interaction,
	// possibly with an additional claims challenge.
	KindUIRequired Kind = iota + 1
	// KindService means the identity provider or the network failed.
	KindService
	// KindClient means the request or the client registration is wrong.
	KindClient
	// KindCancelled means the user or the caller aborted the operation.
	KindCancelled
	// KindNullResult means the identity client returned neither a token nor an error.
	KindNullResult
	// KindUnsupported means the technique is not available on this host.
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindUIRequired:
		return "ui_required"
	case KindService:
		return "service"
	case KindClient:
		return "client"
	case KindCancelled:
		return "cancelled"
	case KindNullResult:
		return "null_result"
	case KindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// AuthError is a categorized failure returned by the identity client.
type AuthError struct {
	Kind Kind
	Op   string
	// Claims carries the claims challenge of a KindUIRequired error, if any.
	Claims string
	Err    error
}

func (e *AuthError) Error() string {
	msg := e.Kind.String()
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NewAuthError builds an AuthError for op.
func NewAuthError(kind Kind, op string, err error) *AuthError {
	return &AuthError{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first AuthError in err's chain, or 0.
func KindOf(err error) Kind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return 0
}

// IsRecoverable reports whether err is an expected failure mode that a
// strategy records before falling through to the next strategy.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var (
		ae *AuthError
		te *TimeoutError
	)
	return errors.As(err, &ae) || errors.As(err, &te)
}

// TimeoutError reports that a single time bounded operation did not finish.
type TimeoutError struct {
	Label string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Label, formatClock(e.After))
}

// GlobalTimeoutError reports that the overall deadline expired while a
// strategy was still running.
type GlobalTimeoutError struct {
	Flow string
}

func (e *GlobalTimeoutError) Error() string {
	return fmt.Sprintf("global timeout hit during %s", e.Flow)
}

// NilResultError is recorded when a strategy returned no attempt at all.
type NilResultError struct {
	Flow string
}

func (e *NilResultError) Error() string {
	return fmt.Sprintf("auth flow '%s' returned a nil result", e.Flow)
}

// formatClock renders d as hh:mm:ss.
func formatClock(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
