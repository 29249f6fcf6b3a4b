// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/authbridge/lib/auth"
	"github.com/bureau-foundation/authbridge/lib/clock"
	"github.com/bureau-foundation/authbridge/lib/display"
	"github.com/bureau-foundation/authbridge/lib/secret"
)

const (
	// DefaultDesktopService is the PAM service used with the desktop
	// profile.
	DefaultDesktopService = "common-auth"

	// DefaultSystemService is the fallback PAM service.
	DefaultSystemService = "password-auth"

	// DefaultPollInterval is the wait heartbeat period.
	DefaultPollInterval = time.Second
)

// Config configures a Bridge. Native is required; every other field
// has a default.
type Config struct {
	Native Native

	// DesktopProfile selects DesktopService over SystemService.
	DesktopProfile bool
	DesktopService string
	SystemService  string

	// PollInterval is how often a waiting worker logs that it is still
	// waiting. Supply and Cancel wake the worker immediately.
	PollInterval time.Duration

	Sink   auth.Sink
	Waker  display.Waker
	Clock  clock.Clock
	Logger *slog.Logger
}

// Bridge owns at most one verification worker.
type Bridge struct {
	native       Native
	service      string
	pollInterval time.Duration
	sink         auth.Sink
	waker        display.Waker
	clock        clock.Clock
	logger       *slog.Logger

	// lifecycle serializes Start, Teardown and Close.
	lifecycle sync.Mutex

	mu     sync.Mutex
	worker *worker
	closed bool

	// finishing holds workers that reported their outcome and were
	// replaced before their exit work completed.
	finishing map[*worker]struct{}

	method atomic.Int32
}

// New returns an idle Bridge.
func New(config Config) (*Bridge, error) {
	if config.Native == nil {
		return nil, errors.New("conversation: Config.Native is required")
	}
	if config.DesktopService == "" {
		config.DesktopService = DefaultDesktopService
	}
	if config.SystemService == "" {
		config.SystemService = DefaultSystemService
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.Sink == nil {
		config.Sink = auth.Discard
	}
	if config.Waker == nil {
		config.Waker = display.Nop{}
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	service := config.SystemService
	if config.DesktopProfile {
		service = config.DesktopService
	}

	return &Bridge{
		native:       config.Native,
		service:      service,
		pollInterval: config.PollInterval,
		sink:         config.Sink,
		waker:        config.Waker,
		clock:        config.Clock,
		logger:       config.Logger.With("component", "conversation", "service", service),
		finishing:    make(map[*worker]struct{}),
	}, nil
}

// Service returns the PAM service name workers open.
func (b *Bridge) Service() string { return b.service }

// Start begins verification for account. It returns at once if a
// worker for the same account is still verifying. A verifying worker
// for any other account is cancelled and joined first; ctx bounds that
// wait. A worker that has already reported its outcome is replaced
// without waiting, so Start may be called from the sink on that
// outcome.
//
// A worker that cannot be started is reported both as a *SpawnError
// and as an auth.StatusError notification.
func (b *Bridge) Start(ctx context.Context, account string) error {
	if account == "" {
		return b.spawnFailed(account, "empty account")
	}

	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	b.mu.Lock()
	closed, current := b.closed, b.worker
	finished := current != nil && current.finished
	b.mu.Unlock()

	if closed {
		return b.spawnFailed(account, "bridge closed")
	}
	if current != nil && !finished && current.account == account {
		b.logger.Debug("verification already running", "account", account, "attempt", current.attempt)
		return nil
	}
	if current != nil && !finished {
		b.logger.Info("replacing verification worker",
			"previous_account", current.account,
			"account", account,
		)
		if err := b.stop(ctx, current); err != nil {
			return fmt.Errorf("stopping verification for %q: %w", current.account, err)
		}
	}

	worker := newWorker(b, account)
	b.mu.Lock()
	if b.worker != nil && b.worker.finished {
		b.finishing[b.worker] = struct{}{}
	}
	b.worker = worker
	b.mu.Unlock()
	b.method.Store(int32(auth.MethodUnset))

	b.logger.Info("verification worker started", "account", account, "attempt", worker.attempt)
	go worker.run()
	return nil
}

// Supply hands credential to the running worker, which takes ownership
// of it. A credential still pending from an earlier Supply is replaced
// and wiped. With no worker running the credential is wiped and
// dropped.
func (b *Bridge) Supply(credential *secret.Buffer) {
	if credential == nil {
		return
	}
	length := credential.Len()

	worker := b.active()
	if worker == nil {
		credential.Close()
		b.logger.Warn("credential supplied with no verification running, dropped", "bytes", length)
		return
	}

	if worker.exchange.supply(credential) {
		b.logger.Warn("pending credential replaced before it was consumed",
			"account", worker.account,
			"attempt", worker.attempt,
		)
	}
	b.logger.Info("credential supplied", "account", worker.account, "attempt", worker.attempt, "bytes", length)
}

// Cancel asks the running worker to abort. It does not wait. With no
// worker running it does nothing.
func (b *Bridge) Cancel() {
	worker := b.active()
	if worker == nil {
		return
	}
	worker.exchange.cancel()
	b.logger.Info("verification cancel requested", "account", worker.account, "attempt", worker.attempt)
}

// Teardown cancels the running worker and waits for it to exit. It
// returns ctx.Err() if ctx ends first; the worker keeps running and a
// later Teardown can wait again.
func (b *Bridge) Teardown(ctx context.Context) error {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	return b.stopAll(ctx)
}

// Close tears down the running worker and rejects later Starts.
func (b *Bridge) Close(ctx context.Context) error {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return b.stopAll(ctx)
}

// Running returns the account of the running worker.
func (b *Bridge) Running() (account string, ok bool) {
	worker := b.active()
	if worker == nil {
		return "", false
	}
	return worker.account, true
}

// active returns the current worker unless it has already reported
// its outcome.
func (b *Bridge) active() *worker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.worker == nil || b.worker.finished {
		return nil
	}
	return b.worker
}

// LastMethod returns which kind of message produced the most recent
// reply: MethodPassword for a prompt answered with a credential,
// MethodBiometric for an error message from a non-password factor.
func (b *Bridge) LastMethod() auth.Method {
	return auth.Method(b.method.Load())
}

// stopAll cancels the current worker and waits for it and any
// replaced worker still finishing.
func (b *Bridge) stopAll(ctx context.Context) error {
	b.mu.Lock()
	workers := make([]*worker, 0, len(b.finishing)+1)
	if b.worker != nil {
		workers = append(workers, b.worker)
	}
	for worker := range b.finishing {
		workers = append(workers, worker)
	}
	b.mu.Unlock()
	for _, worker := range workers {
		if err := b.stop(ctx, worker); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) stop(ctx context.Context, worker *worker) error {
	worker.exchange.cancel()
	select {
	case <-worker.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finish marks worker as done verifying. From here on Start treats the
// account as idle.
func (b *Bridge) finish(worker *worker) {
	b.mu.Lock()
	worker.finished = true
	b.mu.Unlock()
	worker.exchange.drain()
}

// release marks the bridge idle if worker is still the current one.
func (b *Bridge) release(worker *worker) {
	b.mu.Lock()
	if b.worker == worker {
		b.worker = nil
	}
	delete(b.finishing, worker)
	b.mu.Unlock()
	worker.exchange.drain()
}

func (b *Bridge) publish(account string, code auth.StatusCode, message string) {
	b.sink.Publish(auth.StatusEvent(auth.Status{
		Account: account,
		Kind:    auth.KindSingle,
		Code:    code,
		Message: message,
	}))
}

func (b *Bridge) spawnFailed(account, reason string) error {
	b.logger.Error("cannot start verification worker", "account", account, "reason", reason)
	b.publish(account, auth.StatusError, reason)
	return &SpawnError{Account: account, Reason: reason}
}
