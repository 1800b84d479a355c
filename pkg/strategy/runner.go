package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/telekom/azauth/pkg/authflow"
	"github.com/telekom/azauth/pkg/identity"
)

// Timeouts bounds the individual identity client calls of a flow.
type Timeouts struct {
	Silent      time.Duration
	Interactive time.Duration
	DeviceCode  time.Duration
	IWA         time.Duration
}

// DefaultTimeouts returns the budgets used outside of tests.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Silent:      authflow.SilentTimeout,
		Interactive: authflow.InteractiveTimeout,
		DeviceCode:  authflow.DeviceCodeTimeout,
		IWA:         authflow.IWATimeout,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Silent <= 0 {
		t.Silent = d.Silent
	}
	if t.Interactive <= 0 {
		t.Interactive = d.Interactive
	}
	if t.DeviceCode <= 0 {
		t.DeviceCode = d.DeviceCode
	}
	if t.IWA <= 0 {
		t.IWA = d.IWA
	}
	return t
}

// params is what every flow needs from the request.
type params struct {
	log        *zap.SugaredLogger
	client     identity.Client
	scopes     []string
	domain     string
	promptHint string
	timeouts   Timeouts
}

// flow adapts a token acquisition function to authflow.Strategy. Recoverable
// failures end up in the attempt's errors, anything else is returned as a
// fault.
type flow struct {
	params
	name string
	run  func(ctx context.Context, errs *[]error) (*authflow.Token, error)
}

var _ authflow.Strategy = (*flow)(nil)

func (f *flow) Name() string { return f.name }

func (f *flow) Attempt(ctx context.Context) (*authflow.Attempt, error) {
	var errs []error
	tok, err := f.run(ctx, &errs)
	if err != nil {
		if !authflow.IsRecoverable(err) {
			return nil, fmt.Errorf("%s auth flow: %w", f.name, err)
		}
		f.log.Debugf("Error caught during %s token acquisition: %v", f.name, err)
		errs = append(errs, err)
	}
	return authflow.NewAttempt(f.name, tok, errs), nil
}

// within runs one identity client call under timeout. A call that returns
// neither a token nor an error, without having timed out, is reported as a
// KindNullResult error.
func (p params) within(ctx context.Context, timeout time.Duration, label string, op func(context.Context) (*authflow.Token, error), errs *[]error) (*authflow.Token, error) {
	before := len(*errs)
	tok, err := authflow.CompleteWithin(ctx, p.log, timeout, label, op, errs)
	if err == nil && tok == nil && len(*errs) == before {
		return nil, authflow.NewAuthError(authflow.KindNullResult, label, errors.New("identity client returned no token"))
	}
	return tok, err
}

// account returns the first cached account matching the preferred domain, or
// nil. Lookup failures are recorded and treated as "no account".
func (p params) account(ctx context.Context, errs *[]error) *identity.Account {
	accounts, err := p.client.Accounts(ctx, p.domain)
	if err != nil {
		*errs = append(*errs, authflow.NewAuthError(authflow.KindClient, "accounts", err))
		p.log.Debugw("Could not read cached accounts", "error", err)
		return nil
	}
	if len(accounts) == 0 {
		p.log.Debugw("No cached account", "domain", p.domain)
		return nil
	}
	p.log.Debugf("Using cached account '%s'", accounts[0].Username)
	return &accounts[0]
}

// silent tries the token cache for account and marks the token as silent.
func (p params) silent(ctx context.Context, account *identity.Account, timeout time.Duration, errs *[]error) (*authflow.Token, error) {
	tok, err := p.within(ctx, timeout, "Get Token Silent", func(ctx context.Context) (*authflow.Token, error) {
		return p.client.Silent(ctx, p.scopes, account)
	}, errs)
	if tok != nil {
		tok.AuthType = authflow.AuthTypeSilent
	}
	return tok, err
}

// trySilent is silent for flows that fall back to a prompt: recoverable
// failures are recorded and reported as a nil token.
func (p params) trySilent(ctx context.Context, account *identity.Account, errs *[]error) (*authflow.Token, error) {
	tok, err := p.silent(ctx, account, p.timeouts.Silent, errs)
	if err != nil {
		if !authflow.IsRecoverable(err) {
			return nil, err
		}
		*errs = append(*errs, err)
		p.log.Debugw("Cached auth failed", "error", err)
		return nil, nil
	}
	return tok, nil
}

// withClaimsRetry runs an interactive call and repeats it once with the
// claims challenge when the identity provider asks for more interaction.
func (p params) withClaimsRetry(ctx context.Context, name string, call func(ctx context.Context, claims string) (*authflow.Token, error), errs *[]error) (*authflow.Token, error) {
	tok, err := p.within(ctx, p.timeouts.Interactive, name+" interactive auth", func(ctx context.Context) (*authflow.Token, error) {
		return call(ctx, "")
	}, errs)
	var ae *authflow.AuthError
	if err == nil || !errors.As(err, &ae) || ae.Kind != authflow.KindUIRequired {
		return tok, err
	}
	*errs = append(*errs, err)
	p.log.Debugf("Initial %s auth failed. Trying again with claims.\n%v", name, err)
	return p.within(ctx, p.timeouts.Interactive, name+" interactive auth (with extra claims)", func(ctx context.Context) (*authflow.Token, error) {
		return call(ctx, ae.Claims)
	}, errs)
}
