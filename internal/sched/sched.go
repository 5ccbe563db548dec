// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sched runs cancellable periodic tasks.
//
// Each Task owns one goroutine driven by a time.Ticker. Callbacks of a task
// never overlap each other, and Stop does not return until the goroutine has
// exited, so state owned by the callback can be torn down right after Stop.
package sched

import (
	"sync"
	"time"
)

// Task is a running periodic callback.
type Task struct {
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Every calls fn once per period on its own goroutine until Stop is called.
// The first call happens one period after Every returns.
func Every(period time.Duration, fn func(now time.Time)) *Task {
	t := &Task{
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	ticker := time.NewTicker(period)
	go func() {
		defer close(t.doneCh)
		defer ticker.Stop()
		for {
			select {
			case <-t.stopCh:
				return
			case now := <-ticker.C:
				// A stop requested while we were waiting wins over a
				// tick that became ready at the same time.
				select {
				case <-t.stopCh:
					return
				default:
				}
				fn(now)
			}
		}
	}()
	return t
}

// Stop cancels the task and waits for an in-flight callback to finish.
// It is safe to call more than once and on a nil Task.
// Stop must not be called from inside the task's own callback.
func (t *Task) Stop() {
	if t == nil {
		return
	}
	t.stopOnce.Do(func() { close(t.stopCh) })
	<-t.doneCh
}

// Done is closed once the task goroutine has exited.
func (t *Task) Done() <-chan struct{} {
	return t.doneCh
}
