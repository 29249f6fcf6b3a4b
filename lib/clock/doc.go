// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock lets time be injected. Production code takes a [Clock]
// and receives [Real]; tests pass a [FakeClock] and move time forward
// explicitly with Advance.
//
// Components that wait (the conversation worker's heartbeat, the
// public-key fetch backoff) register timers on the clock. A test calls
// WaitForTimers to learn that the component has reached its wait, then
// Advance to release it, so no test depends on wall-clock scheduling.
package clock
