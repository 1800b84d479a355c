package authflow

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeStrategy struct {
	name    string
	attempt func(ctx context.Context) (*Attempt, error)
	calls   atomic.Int32
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Attempt(ctx context.Context) (*Attempt, error) {
	f.calls.Add(1)
	return f.attempt(ctx)
}

func succeedingStrategy(name string) *fakeStrategy {
	return &fakeStrategy{name: name, attempt: func(context.Context) (*Attempt, error) {
		return NewAttempt(name, &Token{AccessToken: "token-" + name, ExpiresOn: time.Now().Add(time.Hour)}, nil), nil
	}}
}

func failingStrategy(name string, errs ...error) *fakeStrategy {
	return &fakeStrategy{name: name, attempt: func(context.Context) (*Attempt, error) {
		return NewAttempt(name, nil, errs), nil
	}}
}

func nilStrategy(name string) *fakeStrategy {
	return &fakeStrategy{name: name, attempt: func(context.Context) (*Attempt, error) {
		return nil, nil
	}}
}

func blockingStrategy(name string) *fakeStrategy {
	return &fakeStrategy{name: name, attempt: func(ctx context.Context) (*Attempt, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
}

func recoverable(msg string) error {
	return NewAuthError(KindService, "test", errors.New(msg))
}

func observedLogger() (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core).Sugar(), logs
}
