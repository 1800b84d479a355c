// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package authflow

import (
	"fmt"
	"strings"
	"time"
)

// AuthType tells how a token was obtained.
type AuthType int

const (
	AuthTypeSilent AuthType = iota
	AuthTypeInteractive
	AuthTypeDeviceCode
)

func (t AuthType) String() string {
	switch t {
	case AuthTypeSilent:
		return "silent"
	case AuthTypeInteractive:
		return "interactive"
	case AuthTypeDeviceCode:
		return "devicecode"
	default:
		return "unknown"
	}
}

// Token is an access token together with the identity it was issued for.
type Token struct {
	AccessToken string
	IDToken     string
	TokenType   string
	ExpiresOn   time.Time
	User        string
	DisplayName string
	SID         string
	ObjectID    string
	AuthType    AuthType
}

// ValidFor returns how long the token stays valid from now.
func (t *Token) ValidFor() time.Duration {
	if t == nil || t.ExpiresOn.IsZero() {
		return 0
	}
	return time.Until(t.ExpiresOn)
}

func (t *Token) String() string {
	return fmt.Sprintf("Token cache warm for %s (%s)", t.User, t.DisplayName)
}

// Attempt is the outcome of running one strategy.
type Attempt struct {
	Token    *Token
	Errors   []error
	Name     string
	Duration time.Duration
	// CorrelationID identifies this attempt in logs and metrics.
	CorrelationID string
}

// NewAttempt returns an attempt for the named strategy.
func NewAttempt(name string, token *Token, errs []error) *Attempt {
	return &Attempt{Name: name, Token: token, Errors: errs}
}

// Success reports whether the attempt produced a token.
func (a *Attempt) Success() bool {
	return a != nil && a.Token != nil
}

// Result is the ordered record of every attempt made for one request.
type Result struct {
	Attempts []Attempt
}

// FirstSuccess returns the first successful attempt, or nil.
func (r *Result) FirstSuccess() *Attempt {
	if r == nil {
		return nil
	}
	for i := range r.Attempts {
		if r.Attempts[i].Success() {
			return &r.Attempts[i]
		}
	}
	return nil
}

// Token returns the token of the first successful attempt, or nil.
func (r *Result) Token() *Token {
	if a := r.FirstSuccess(); a != nil {
		return a.Token
	}
	return nil
}

// Errors returns every recorded error, attempts in execution order and
// errors in the order each strategy recorded them.
func (r *Result) Errors() []error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, a := range r.Attempts {
		errs = append(errs, a.Errors...)
	}
	return errs
}

// ErrorSummary renders Errors one per line as "<type>: <message>".
func (r *Result) ErrorSummary() string {
	return FormatErrors(r.Errors())
}

// FormatErrors renders errs one per line as "<type>: <message>" with line
// breaks and tabs removed from each message. It returns "" for no errors.
func FormatErrors(errs []error) string {
	if len(errs) == 0 {
		return ""
	}
	lines := make([]string, 0, len(errs))
	for _, err := range errs {
		lines = append(lines, singleLine(err))
	}
	return strings.Join(lines, "\n")
}

var lineBreaks = strings.NewReplacer("\n", "", "\r", "", "\t", "")

func singleLine(err error) string {
	if err == nil {
		return "nil"
	}
	return fmt.Sprintf("%T: %s", err, lineBreaks.Replace(err.Error()))
}
