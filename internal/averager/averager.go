// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package averager accumulates periodic sensor samples and hands out their
// mean on demand.
//
// Sampling runs on a sched.Task. The reader calls ReadAndReset, which
// returns the element-wise mean of every sample folded since the previous
// read and clears the accumulator in the same critical section, so a read
// never observes a half-applied sample.
package averager

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/relabs-tech/inertial_rover/internal/sched"
)

// ErrSensorUnavailable is returned by ReadAndReset once the sampling
// function has failed maxFailures times in a row.
var ErrSensorUnavailable = errors.New("sensor unavailable")

// Sample is one reading: a scalar is a one-element Sample.
type Sample []float64

// SampleFunc takes one reading. It is called from the sampling goroutine.
type SampleFunc func() (Sample, error)

// TransientError reports failed ticks inside one averaging window. The
// samples that did succeed are still averaged and returned with it.
type TransientError struct {
	Failures int
	Last     error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%d failed sample(s) in window, last: %v", e.Failures, e.Last)
}

func (e *TransientError) Unwrap() error { return e.Last }

// Averager owns the running sum for one sampling function.
type Averager struct {
	sample      SampleFunc
	maxFailures int

	mu          sync.Mutex
	sum         Sample // nil until the first good sample of a window
	count       int
	failures    int // failed ticks in the current window
	consecutive int // failed ticks since the last good one
	lastErr     error

	task *sched.Task
}

// New returns an Averager that is not sampling yet. Tick drives it by hand;
// Start wires it to a periodic task. maxFailures <= 0 disables escalation.
func New(fn SampleFunc, maxFailures int) *Averager {
	return &Averager{sample: fn, maxFailures: maxFailures}
}

// Start creates an Averager and samples fn every period until Stop.
func Start(fn SampleFunc, period time.Duration, maxFailures int) *Averager {
	a := New(fn, maxFailures)
	a.task = sched.Every(period, func(time.Time) { a.Tick() })
	return a
}

// With runs body with a started Averager and stops it on every exit path,
// including a panic inside body.
func With(fn SampleFunc, period time.Duration, maxFailures int, body func(*Averager) error) error {
	a := Start(fn, period, maxFailures)
	defer a.Stop()
	return body(a)
}

// Tick takes one sample and folds it into the window.
func (a *Averager) Tick() {
	s, err := a.sample()

	a.mu.Lock()
	defer a.mu.Unlock()

	if err == nil && a.sum != nil && len(s) != len(a.sum) {
		err = fmt.Errorf("sample has %d components, window has %d", len(s), len(a.sum))
	}
	if err == nil && len(s) == 0 {
		err = errors.New("empty sample")
	}
	if err != nil {
		a.failures++
		a.consecutive++
		a.lastErr = err
		return
	}

	a.consecutive = 0
	if a.sum == nil {
		a.sum = append(Sample(nil), s...)
	} else {
		floats.Add(a.sum, s)
	}
	a.count++
}

// ReadAndReset returns the mean of the window and clears it.
//
// ok is false when no sample succeeded since the last read; that is "no
// data", not a mean of zero. A non-nil *TransientError may accompany a valid
// mean. Once the sampling function has failed maxFailures times in a row the
// error wraps ErrSensorUnavailable.
func (a *Averager) ReadAndReset() (mean Sample, ok bool, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.maxFailures > 0 && a.consecutive >= a.maxFailures {
		err = fmt.Errorf("%w: %d consecutive failed samples: %w", ErrSensorUnavailable, a.consecutive, a.lastErr)
		a.resetLocked()
		return nil, false, err
	}

	if a.failures > 0 {
		err = &TransientError{Failures: a.failures, Last: a.lastErr}
	}
	if a.count == 0 {
		a.resetLocked()
		return nil, false, err
	}

	mean = a.sum
	floats.Scale(1/float64(a.count), mean)
	a.resetLocked()
	return mean, true, err
}

// ReadScalar is ReadAndReset for one-component samples.
func (a *Averager) ReadScalar() (float64, bool, error) {
	mean, ok, err := a.ReadAndReset()
	if !ok {
		return 0, false, err
	}
	return mean[0], true, err
}

// Pending returns how many good samples the current window holds.
func (a *Averager) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Stop cancels periodic sampling. It waits for an in-flight tick and is
// safe to call repeatedly or on an Averager that was never started.
func (a *Averager) Stop() {
	a.task.Stop()
}

func (a *Averager) resetLocked() {
	a.sum = nil
	a.count = 0
	a.failures = 0
}

// Scalar adapts a float-returning reader into a SampleFunc.
func Scalar(fn func() (float64, error)) SampleFunc {
	return func() (Sample, error) {
		v, err := fn()
		if err != nil {
			return nil, err
		}
		return Sample{v}, nil
	}
}
