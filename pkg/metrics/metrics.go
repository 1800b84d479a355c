package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/telekom/azauth/pkg/authflow"
	"github.com/telekom/azauth/pkg/lock"
)

// Recorder holds the azauth collectors and the registry they are registered in.
type Recorder struct {
	Registry *prometheus.Registry

	Requests        *prometheus.CounterVec
	Attempts        *prometheus.CounterVec
	AttemptDuration *prometheus.HistogramVec
	AttemptErrors   *prometheus.CounterVec
	LockWait        prometheus.Histogram
	LockAcquired    *prometheus.CounterVec
}

var _ authflow.Observer = (*Recorder)(nil)

// New creates a Recorder with a fresh registry.
func New() *Recorder {
	r := &Recorder{
		Registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "azauth_token_requests_total",
			Help: "Total number of token requests by outcome (success, failure, error)",
		}, []string{"outcome"}),
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "azauth_flow_attempts_total",
			Help: "Total number of auth flow attempts by flow and outcome",
		}, []string{"flow", "outcome"}),
		AttemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "azauth_flow_attempt_duration_seconds",
			Help:    "Duration of auth flow attempts",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
		}, []string{"flow"}),
		AttemptErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "azauth_flow_errors_total",
			Help: "Errors recorded by auth flow attempts, by flow and error kind",
		}, []string{"flow", "kind"}),
		LockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "azauth_lock_wait_seconds",
			Help:    "Time spent waiting for the cross-process lock",
			Buckets: []float64{0.001, 0.01, 0.1, 1, 10, 60, 300, 900},
		}),
		LockAcquired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "azauth_lock_acquisitions_total",
			Help: "Lock acquisitions by result (acquired, abandoned, timeout, error)",
		}, []string{"result"}),
	}
	r.Registry.MustRegister(r.Requests, r.Attempts, r.AttemptDuration, r.AttemptErrors, r.LockWait, r.LockAcquired)
	return r
}

// ObserveResult records a finished token request.
func (r *Recorder) ObserveResult(_ authflow.Request, result *authflow.Result, err error) {
	switch {
	case err != nil:
		r.Requests.WithLabelValues("error").Inc()
	case result != nil && result.FirstSuccess() != nil:
		r.Requests.WithLabelValues("success").Inc()
	default:
		r.Requests.WithLabelValues("failure").Inc()
	}
	if result == nil {
		return
	}
	for _, a := range result.Attempts {
		outcome := "failure"
		if a.Success() {
			outcome = "success"
		}
		r.Attempts.WithLabelValues(a.Name, outcome).Inc()
		r.AttemptDuration.WithLabelValues(a.Name).Observe(a.Duration.Seconds())
		for _, e := range a.Errors {
			r.AttemptErrors.WithLabelValues(a.Name, ErrorKind(e)).Inc()
		}
	}
}

// ObserveLock matches lock.Locker.OnAcquire.
func (r *Recorder) ObserveLock(state lock.State, waited time.Duration, err error) {
	r.LockWait.Observe(waited.Seconds())
	var te *lock.TimeoutError
	switch {
	case errors.As(err, &te):
		r.LockAcquired.WithLabelValues("timeout").Inc()
	case err != nil:
		r.LockAcquired.WithLabelValues("error").Inc()
	case state == lock.StateAbandoned:
		r.LockAcquired.WithLabelValues("abandoned").Inc()
	default:
		r.LockAcquired.WithLabelValues("acquired").Inc()
	}
}

// ErrorKind is the metric label for an attempt error.
func ErrorKind(err error) string {
	var (
		ae  *authflow.AuthError
		te  *authflow.TimeoutError
		gte *authflow.GlobalTimeoutError
		nre *authflow.NilResultError
	)
	switch {
	case errors.As(err, &ae):
		return ae.Kind.String()
	case errors.As(err, &te):
		return "timeout"
	case errors.As(err, &gte):
		return "global_timeout"
	case errors.As(err, &nre):
		return "nil_result"
	default:
		return "other"
	}
}

// WriteTextfile writes every metric to path in the text exposition format,
// for the node-exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.Registry)
}
