package strategy

import (
	"context"
	"strings"

	"github.com/telekom/azauth/pkg/authflow"
	"github.com/telekom/azauth/pkg/identity"
)

// mfaRequiredCode is the AAD error for a second factor the user did not provide.
const mfaRequiredCode = "AADSTS50076"

// newCached returns the flow that only uses the token cache.
func newCached(p params) authflow.Strategy {
	f := &flow{params: p, name: string(authflow.StrategyCached)}
	f.run = func(ctx context.Context, errs *[]error) (*authflow.Token, error) {
		account := f.account(ctx, errs)
		return f.silent(ctx, account, f.timeouts.Silent, errs)
	}
	return f
}

// newIWA returns the integrated Windows authentication flow. Both steps are
// non-interactive and use the short IWA budget.
func newIWA(p params) authflow.Strategy {
	f := &flow{params: p, name: string(authflow.StrategyIWA)}
	f.run = func(ctx context.Context, errs *[]error) (*authflow.Token, error) {
		account := f.account(ctx, errs)
		tok, err := f.silent(ctx, account, f.timeouts.IWA, errs)
		if err == nil || authflow.KindOf(err) != authflow.KindUIRequired {
			return tok, err
		}
		*errs = append(*errs, err)
		f.log.Debugw("Cached auth failed", "error", err)

		tok, err = f.within(ctx, f.timeouts.IWA, "Get Token Integrated Windows Authentication", func(ctx context.Context) (*authflow.Token, error) {
			return f.client.IntegratedWindows(ctx, f.scopes)
		}, errs)
		if tok != nil {
			tok.AuthType = authflow.AuthTypeSilent
		}
		if authflow.KindOf(err) == authflow.KindUIRequired && strings.Contains(err.Error(), mfaRequiredCode) {
			f.log.Warn("IWA failed, 2FA is required.")
			f.log.Warn("IWA can pass this requirement if you log into Windows with either a Smart Card or Windows Hello.")
			f.log.Warn(err.Error())
		}
		return tok, err
	}
	return f
}

// newBroker returns the flow that signs in through the platform broker.
func newBroker(p params) authflow.Strategy {
	f := &flow{params: p, name: string(authflow.StrategyBroker)}
	f.run = func(ctx context.Context, errs *[]error) (*authflow.Token, error) {
		account := f.account(ctx, errs)
		tok, err := f.trySilent(ctx, account, errs)
		if tok != nil || err != nil {
			return tok, err
		}
		return f.withClaimsRetry(ctx, f.name, func(ctx context.Context, claims string) (*authflow.Token, error) {
			return f.client.Broker(ctx, f.interactiveRequest(account, claims))
		}, errs)
	}
	return f
}

// newWeb returns the flow that signs in with the system browser.
func newWeb(p params) authflow.Strategy {
	f := &flow{params: p, name: string(authflow.StrategyWeb)}
	f.run = func(ctx context.Context, errs *[]error) (*authflow.Token, error) {
		account := f.account(ctx, errs)
		return f.withClaimsRetry(ctx, f.name, func(ctx context.Context, claims string) (*authflow.Token, error) {
			return f.client.Interactive(ctx, f.interactiveRequest(account, claims))
		}, errs)
	}
	return f
}

// newDeviceCode returns the device code flow. The code is shown as a warning
// so it reaches the user even at the default verbosity.
func newDeviceCode(p params) authflow.Strategy {
	f := &flow{params: p, name: string(authflow.StrategyDeviceCode)}
	f.run = func(ctx context.Context, errs *[]error) (*authflow.Token, error) {
		account := f.account(ctx, errs)
		tok, err := f.trySilent(ctx, account, errs)
		if tok != nil || err != nil {
			return tok, err
		}
		f.log.Warnf("Device Code Authentication for: %s", f.promptHint)
		tok, err = f.within(ctx, f.timeouts.DeviceCode, f.name+" interactive auth", func(ctx context.Context) (*authflow.Token, error) {
			return f.client.DeviceCode(ctx, f.scopes, func(prompt identity.DeviceCodePrompt) {
				f.log.Warn(prompt.Message)
			})
		}, errs)
		if tok != nil {
			tok.AuthType = authflow.AuthTypeDeviceCode
		}
		return tok, err
	}
	return f
}

func (p params) interactiveRequest(account *identity.Account, claims string) identity.InteractiveRequest {
	return identity.InteractiveRequest{
		Scopes:     p.scopes,
		Account:    account,
		Claims:     claims,
		PromptHint: p.promptHint,
		Domain:     p.domain,
	}
}
