// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the subset of the time package that authbridge components
// use.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After delivers the current time once d has elapsed. A
	// non-positive d delivers immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker delivers ticks every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker

	// Sleep blocks for d.
	Sleep(d time.Duration)
}

// Ticker delivers periodic ticks on C, which has capacity 1. Ticks
// that find C full are dropped.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop ends tick delivery. C is not closed.
func (t *Ticker) Stop() { t.stop() }
