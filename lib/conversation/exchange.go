// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"sync"

	"github.com/bureau-foundation/authbridge/lib/secret"
)

// exchange is the state shared by the caller and one worker. The
// caller writes through supply and cancel; the worker reads through
// take. Every write pokes signal so a waiting worker re-checks.
type exchange struct {
	mu            sync.Mutex
	pending       *secret.Buffer
	cancelled     bool
	everCancelled bool
	signal        chan struct{}
}

func newExchange() *exchange {
	return &exchange{signal: make(chan struct{}, 1)}
}

// supply stores credential, wiping any credential still pending.
// It reports whether one was replaced.
func (e *exchange) supply(credential *secret.Buffer) bool {
	e.mu.Lock()
	previous := e.pending
	e.pending = credential
	e.mu.Unlock()

	e.poke()
	if previous != nil {
		previous.Close()
		return true
	}
	return false
}

func (e *exchange) cancel() {
	e.mu.Lock()
	e.cancelled = true
	e.everCancelled = true
	e.mu.Unlock()
	e.poke()
}

// take consumes whatever the caller left. A cancel request wins over a
// pending credential, which is then wiped.
func (e *exchange) take() (credential *secret.Buffer, cancelled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancelled {
		e.cancelled = false
		if e.pending != nil {
			e.pending.Close()
			e.pending = nil
		}
		return nil, true
	}
	credential, e.pending = e.pending, nil
	return credential, false
}

// wasCancelled reports whether cancel was ever called, consumed or not.
func (e *exchange) wasCancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.everCancelled
}

// drain wipes anything left behind once the worker is gone.
func (e *exchange) drain() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending != nil {
		e.pending.Close()
		e.pending = nil
	}
}

func (e *exchange) poke() {
	select {
	case e.signal <- struct{}{}:
	default:
	}
}
