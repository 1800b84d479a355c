package strategy

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/telekom/azauth/pkg/authflow"
	"github.com/telekom/azauth/pkg/identity"
)

// ErrUnknownKind is returned for a strategy kind the factory cannot build.
var ErrUnknownKind = errors.New("unknown auth flow")

// Factory builds the flows for one token request against one client.
type Factory struct {
	Log        *zap.SugaredLogger
	Client     identity.Client
	Scopes     []string
	Domain     string
	PromptHint string
	Timeouts   Timeouts
}

var _ authflow.Factory = (*Factory)(nil)

// NewFactory binds client to the scopes, domain and prompt hint of req.
func NewFactory(log *zap.SugaredLogger, client identity.Client, req authflow.Request) *Factory {
	return &Factory{
		Log:        log,
		Client:     client,
		Scopes:     req.EffectiveScopes(),
		Domain:     req.Domain,
		PromptHint: req.PromptHint,
		Timeouts:   DefaultTimeouts(),
	}
}

func (f *Factory) New(kind authflow.StrategyKind) (authflow.Strategy, error) {
	if f.Client == nil {
		return nil, errors.New("no identity client configured")
	}
	log := f.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	p := params{
		log:        log.With("flow", string(kind)),
		client:     f.Client,
		scopes:     f.Scopes,
		domain:     f.Domain,
		promptHint: f.PromptHint,
		timeouts:   f.Timeouts.withDefaults(),
	}
	switch kind {
	case authflow.StrategyCached:
		return newCached(p), nil
	case authflow.StrategyIWA:
		return newIWA(p), nil
	case authflow.StrategyBroker:
		return newBroker(p), nil
	case authflow.StrategyWeb:
		return newWeb(p), nil
	case authflow.StrategyDeviceCode:
		return newDeviceCode(p), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownKind, kind)
	}
}

// ClientFunc creates the identity client for a request.
type ClientFunc func(req authflow.Request) (identity.Client, error)

// Provider returns the per-request factory hook of authflow.Acquirer. A
// client construction failure surfaces when the first strategy is built.
func Provider(log *zap.SugaredLogger, clients ClientFunc) func(authflow.Request) authflow.Factory {
	return func(req authflow.Request) authflow.Factory {
		client, err := clients(req)
		if err != nil {
			return authflow.FactoryFunc(func(authflow.StrategyKind) (authflow.Strategy, error) {
				return nil, fmt.Errorf("create identity client: %w", err)
			})
		}
		return NewFactory(log, client, req)
	}
}
