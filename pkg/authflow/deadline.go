// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package authflow

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// DefaultTimeout bounds a whole AcquireToken call when the request sets none.
const DefaultTimeout = 15 * time.Minute

// Deadline is a stopwatch compared against a fixed budget. Each orchestrated
// call owns its own Deadline.
type Deadline struct {
	clock  clock.PassiveClock
	budget time.Duration

	mu      sync.Mutex
	started time.Time
	stopped time.Time
	running bool
}

// NewDeadline returns a stopped deadline with the given budget. A nil clock
// means the wall clock.
func NewDeadline(c clock.PassiveClock, budget time.Duration) *Deadline {
	if c == nil {
		c = clock.RealClock{}
	}
	return &Deadline{clock: c, budget: budget}
}

// Start (re)starts the stopwatch.
func (d *Deadline) Start() *Deadline {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = d.clock.Now()
	d.stopped = time.Time{}
	d.running = true
	return d
}

// Stop freezes Elapsed at its current value.
func (d *Deadline) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		d.stopped = d.clock.Now()
		d.running = false
	}
}

// Budget returns the configured budget.
func (d *Deadline) Budget() time.Duration {
	return d.budget
}

// Elapsed returns the time spent since Start. It is zero before Start.
func (d *Deadline) Elapsed() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case d.started.IsZero():
		return 0
	case d.running:
		return d.clock.Since(d.started)
	default:
		return d.stopped.Sub(d.started)
	}
}

// Remaining returns budget minus Elapsed, floored at zero.
func (d *Deadline) Remaining() time.Duration {
	r := d.budget - d.Elapsed()
	if r < 0 {
		return 0
	}
	return r
}

// Expired reports whether Elapsed has reached the budget.
func (d *Deadline) Expired() bool {
	return d.Elapsed() >= d.budget
}
