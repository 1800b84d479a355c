package authflow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

func TestExecutorStopsAtFirstSuccess(t *testing.T) {
	for n := 1; n <= 4; n++ {
		for k := 1; k <= n; k++ {
			t.Run(fmt.Sprintf("%d of %d", k, n), func(t *testing.T) {
				strategies := make([]Strategy, 0, n)
				fakes := make([]*fakeStrategy, 0, n)
				for i := 1; i <= n; i++ {
					var s *fakeStrategy
					if i == k {
						s = succeedingStrategy(fmt.Sprintf("s%d", i))
					} else {
						s = failingStrategy(fmt.Sprintf("s%d", i), recoverable("nope"))
					}
					fakes = append(fakes, s)
					strategies = append(strategies, s)
				}

				result, err := NewExecutor(nil).Run(context.Background(), strategies, nil)
				require.NoError(t, err)
				require.Len(t, result.Attempts, k)
				for _, a := range result.Attempts[:k-1] {
					assert.False(t, a.Success())
				}
				require.NotNil(t, result.FirstSuccess())
				assert.Same(t, &result.Attempts[k-1], result.FirstSuccess())
				for _, f := range fakes[k:] {
					assert.Zero(t, f.calls.Load(), "%s ran after success", f.name)
				}
			})
		}
	}
}

func TestExecutorAllFail(t *testing.T) {
	strategies := []Strategy{
		failingStrategy("cached", recoverable("a")),
		failingStrategy("web", recoverable("b"), recoverable("c")),
		failingStrategy("devicecode"),
	}
	result, err := NewExecutor(nil).Run(context.Background(), strategies, nil)
	require.NoError(t, err)
	assert.Nil(t, result.FirstSuccess())
	assert.Nil(t, result.Token())
	assert.Len(t, result.Attempts, len(strategies))
	assert.Len(t, result.Errors(), 3)
}

func TestExecutorThirdSucceeds(t *testing.T) {
	first := recoverable("first failed")
	second := NewAuthError(KindUIRequired, "web", errors.New("second failed"))
	strategies := []Strategy{
		failingStrategy("cached", first),
		failingStrategy("broker", second),
		succeedingStrategy("web"),
	}

	result, err := NewExecutor(nil).Run(context.Background(), strategies, nil)
	require.NoError(t, err)
	require.Len(t, result.Attempts, 3)
	assert.Same(t, &result.Attempts[2], result.FirstSuccess())
	assert.Empty(t, result.Attempts[2].Errors)

	errs := result.Errors()
	require.Len(t, errs, 2)
	assert.Same(t, first, errs[0])
	assert.Same(t, second, errs[1])

	for _, a := range result.Attempts {
		assert.NotEmpty(t, a.CorrelationID)
	}
}

func TestExecutorNilAttempt(t *testing.T) {
	log, logs := observedLogger()
	exec := NewExecutor(log)
	exec.NewID = func() string { return "fixed" }

	result, err := exec.Run(context.Background(), []Strategy{nilStrategy("broker"), succeedingStrategy("web")}, nil)
	require.NoError(t, err)
	require.Len(t, result.Attempts, 2)

	slot := result.Attempts[0]
	assert.False(t, slot.Success())
	assert.Equal(t, "broker", slot.Name)
	assert.Equal(t, "fixed", slot.CorrelationID)
	require.Len(t, slot.Errors, 1)
	var nre *NilResultError
	require.ErrorAs(t, slot.Errors[0], &nre)
	assert.Equal(t, "auth flow 'broker' returned a nil result", slot.Errors[0].Error())
	assert.Equal(t, 1, logs.FilterMessage("auth flow 'broker' returned a nil result").Len())
	assert.True(t, result.Attempts[1].Success())
}

func TestExecutorFatalError(t *testing.T) {
	boom := errors.New("unexpected")
	fatal := &fakeStrategy{name: "web", attempt: func(context.Context) (*Attempt, error) {
		return nil, boom
	}}
	after := succeedingStrategy("devicecode")

	result, err := NewExecutor(nil).Run(context.Background(), []Strategy{failingStrategy("cached", recoverable("x")), fatal, after}, nil)
	require.ErrorIs(t, err, boom)
	require.NotNil(t, result)
	assert.Len(t, result.Attempts, 1)
	assert.Zero(t, after.calls.Load())
}

func TestExecutorPanicPropagates(t *testing.T) {
	panicking := &fakeStrategy{name: "web", attempt: func(context.Context) (*Attempt, error) {
		panic("kaboom")
	}}
	assert.PanicsWithValue(t, "kaboom", func() {
		_, _ = NewExecutor(nil).Run(context.Background(), []Strategy{panicking}, nil)
	})
}

func TestExecutorEmpty(t *testing.T) {
	log, logs := observedLogger()
	result, err := NewExecutor(log).Run(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Attempts)
	assert.Nil(t, result.FirstSuccess())
	assert.Equal(t, 1, logs.FilterMessageSnippet("No auth flows").Len())
}

func TestExecutorGlobalTimeout(t *testing.T) {
	log, logs := observedLogger()
	fc := testingclock.NewFakeClock(time.Now())
	exec := &Executor{Log: log, Clock: fc, WarningDelay: 20 * time.Second, PollInterval: 5 * time.Minute}
	deadline := NewDeadline(fc, time.Minute).Start()

	blocked := blockingStrategy("web")
	next := succeedingStrategy("devicecode")

	type runResult struct {
		result *Result
		err    error
	}
	done := make(chan runResult, 1)
	go func() {
		r, err := exec.Run(context.Background(), []Strategy{blocked, next}, deadline)
		done <- runResult{r, err}
	}()

	require.Eventually(t, fc.HasWaiters, time.Second, time.Millisecond)
	fc.Step(20 * time.Second)
	require.Eventually(t, func() bool {
		return logs.FilterMessage("Waiting for web authentication. Look for an auth prompt.").Len() == 1
	}, time.Second, time.Millisecond)

	require.Eventually(t, fc.HasWaiters, time.Second, time.Millisecond)
	fc.Step(40 * time.Second)

	var got runResult
	select {
	case got = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("executor did not return after the global deadline expired")
	}
	require.NoError(t, got.err)
	require.Len(t, got.result.Attempts, 1)
	assert.Nil(t, got.result.FirstSuccess())
	require.Len(t, got.result.Attempts[0].Errors, 1)
	var gte *GlobalTimeoutError
	require.ErrorAs(t, got.result.Attempts[0].Errors[0], &gte)
	assert.Equal(t, "web", gte.Flow)
	assert.Zero(t, next.calls.Load())
	assert.True(t, deadline.Expired())
	assert.Equal(t, time.Duration(0), deadline.Remaining())
}

func TestExecutorExpiredBeforeStart(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Now())
	deadline := NewDeadline(fc, time.Second).Start()
	fc.Step(2 * time.Second)

	s := succeedingStrategy("cached")
	result, err := (&Executor{Clock: fc}).Run(context.Background(), []Strategy{s}, deadline)
	require.NoError(t, err)
	require.Len(t, result.Attempts, 1)
	assert.Zero(t, s.calls.Load())
	var gte *GlobalTimeoutError
	assert.ErrorAs(t, result.Attempts[0].Errors[0], &gte)
}

func TestExecutorParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	s := &fakeStrategy{name: "web", attempt: func(ctx context.Context) (*Attempt, error) {
		close(started)
		<-ctx.Done()
		return NewAttempt("web", nil, []error{NewAuthError(KindCancelled, "web", ctx.Err())}), nil
	}}
	go func() {
		<-started
		cancel()
	}()

	result, err := NewExecutor(nil).Run(ctx, []Strategy{s, succeedingStrategy("devicecode")}, nil)
	require.NotNil(t, result)
	assert.LessOrEqual(t, len(result.Attempts), 1)
	if err != nil {
		require.ErrorIs(t, err, context.Canceled)
	}
	assert.Nil(t, result.FirstSuccess())
}
