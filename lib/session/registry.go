// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bureau-foundation/authbridge/lib/auth"
	"github.com/bureau-foundation/authbridge/lib/clock"
)

const (
	DefaultCallTimeout        = 5 * time.Second
	DefaultKeyFetchAttempts   = 5
	DefaultKeyFetchBackoff    = 100 * time.Millisecond
	DefaultKeyFetchMaxBackoff = 2 * time.Second
)

// Config configures a Registry. Remote is required.
type Config struct {
	Remote Remote
	Sink   auth.Sink
	Clock  clock.Clock
	Logger *slog.Logger

	// CallTimeout bounds each remote round trip.
	CallTimeout time.Duration

	// KeyFetchAttempts, KeyFetchBackoff and KeyFetchMaxBackoff bound
	// the public key retry loop. The backoff doubles per attempt up to
	// the maximum.
	KeyFetchAttempts   int
	KeyFetchBackoff    time.Duration
	KeyFetchMaxBackoff time.Duration
}

// Registry maps accounts to live remote sessions.
type Registry struct {
	remote      Remote
	sink        auth.Sink
	clock       clock.Clock
	logger      *slog.Logger
	callTimeout time.Duration

	keyAttempts   int
	keyBackoff    time.Duration
	keyMaxBackoff time.Duration

	creating singleflight.Group

	mu               sync.Mutex
	entries          map[string]*entry
	closed           bool
	unwatchFramework func()
}

// entry is one account's session. The key cache and quit policy are
// guarded by mu; controller and unwatch never change.
type entry struct {
	account    string
	controller Controller
	unwatch    func()

	mu         sync.Mutex
	publicKey  string
	quitPolicy auth.QuitPolicy
}

// New returns an empty Registry subscribed to framework events.
func New(config Config) (*Registry, error) {
	if config.Remote == nil {
		return nil, errors.New("session: Config.Remote is required")
	}
	if config.Sink == nil {
		config.Sink = auth.Discard
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = DefaultCallTimeout
	}
	if config.KeyFetchAttempts <= 0 {
		config.KeyFetchAttempts = DefaultKeyFetchAttempts
	}
	if config.KeyFetchBackoff <= 0 {
		config.KeyFetchBackoff = DefaultKeyFetchBackoff
	}
	if config.KeyFetchMaxBackoff < config.KeyFetchBackoff {
		config.KeyFetchMaxBackoff = max(DefaultKeyFetchMaxBackoff, config.KeyFetchBackoff)
	}

	registry := &Registry{
		remote:        config.Remote,
		sink:          config.Sink,
		clock:         config.Clock,
		logger:        config.Logger.With("component", "session"),
		callTimeout:   config.CallTimeout,
		keyAttempts:   config.KeyFetchAttempts,
		keyBackoff:    config.KeyFetchBackoff,
		keyMaxBackoff: config.KeyFetchMaxBackoff,
		entries:       make(map[string]*entry),
	}

	unwatch, err := config.Remote.WatchFramework(registry.sink.Publish)
	if err != nil {
		registry.logger.Warn("framework events unavailable", "error", err)
		unwatch = func() {}
	}
	registry.unwatchFramework = unwatch
	return registry, nil
}

// Create opens a session for account unless a valid one already
// exists. A stale entry whose remote session has gone is replaced.
// After binding, the session's current properties are published as
// events so late subscribers see the present state.
//
// Concurrent Creates for the same account share one remote call.
func (r *Registry) Create(ctx context.Context, account string, kinds auth.Kind, app auth.AppKind) error {
	if account == "" {
		return errors.New("session: empty account")
	}
	_, err, _ := r.creating.Do(account, func() (any, error) {
		return nil, r.create(ctx, account, kinds, app)
	})
	return err
}

func (r *Registry) create(ctx context.Context, account string, kinds auth.Kind, app auth.AppKind) error {
	if existing := r.lookup(account); existing != nil {
		callCtx, cancel := r.callContext(ctx)
		valid := existing.controller.Valid(callCtx)
		cancel()
		if valid {
			r.logger.Debug("session already exists", "account", account, "path", existing.controller.Path())
			return nil
		}
		r.logger.Info("dropping stale session", "account", account, "path", existing.controller.Path())
		r.drop(existing)
	}

	callCtx, cancel := r.callContext(ctx)
	path, err := r.remote.Authenticate(callCtx, account, kinds, app)
	cancel()
	if err != nil {
		r.logger.Error("creating session", "account", account, "kinds", kinds, "error", err)
		return &RemoteError{Method: "Authenticate", Account: account, Err: err}
	}

	callCtx, cancel = r.callContext(ctx)
	controller, err := r.remote.Controller(callCtx, path)
	cancel()
	if err != nil {
		r.logger.Error("binding session", "account", account, "path", path, "error", err)
		return &RemoteError{Method: "Controller", Account: account, Err: err}
	}

	created := &entry{account: account, controller: controller}
	unwatch, err := controller.Watch(func(event auth.Event) { r.forward(account, event) })
	if err != nil {
		r.logger.Warn("session events unavailable", "account", account, "path", path, "error", err)
		unwatch = func() {}
	}
	created.unwatch = unwatch

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		unwatch()
		controller.Close()
		return ErrClosed
	}
	r.entries[account] = created
	r.mu.Unlock()

	r.logger.Info("session created", "account", account, "kinds", kinds, "app", app, "path", path)
	r.replay(ctx, created)
	return nil
}

// replay publishes the session's current properties.
func (r *Registry) replay(ctx context.Context, e *entry) {
	callCtx, cancel := r.callContext(ctx)
	properties, err := e.controller.Properties(callCtx)
	cancel()
	if err != nil {
		r.absorb(e, "Properties", err)
		return
	}
	r.sink.Publish(auth.Event{Type: auth.EventMultiFactor, Account: e.account, Flag: properties.MultiFactor})
	r.sink.Publish(auth.Event{Type: auth.EventFactors, Account: e.account, Factors: properties.Factors})
	r.sink.Publish(auth.Event{Type: auth.EventFuzzyMultiFactor, Account: e.account, Flag: properties.FuzzyMultiFactor})
	r.sink.Publish(auth.Event{Type: auth.EventPinLength, Account: e.account, Number: properties.PinLength})
	r.sink.Publish(auth.Event{Type: auth.EventPrompt, Account: e.account, Text: properties.Prompt})
}

// Destroy ends every factor with the abort sentinel, quits the session
// and removes it.
func (r *Registry) Destroy(ctx context.Context, account string) {
	r.mu.Lock()
	e := r.entries[account]
	delete(r.entries, account)
	r.mu.Unlock()
	if e == nil {
		return
	}
	r.shutdown(ctx, e)
	r.logger.Info("session destroyed", "account", account)
}

func (r *Registry) shutdown(ctx context.Context, e *entry) {
	e.unwatch()

	callCtx, cancel := r.callContext(ctx)
	if err := e.controller.End(callCtx, auth.KindAll); err != nil {
		r.logger.Warn("ending session", "account", e.account, "error", err)
	}
	cancel()

	callCtx, cancel = r.callContext(ctx)
	if err := e.controller.Quit(callCtx); err != nil {
		r.logger.Warn("quitting session", "account", e.account, "error", err)
	}
	cancel()

	if err := e.controller.Close(); err != nil {
		r.logger.Debug("closing session controller", "account", e.account, "error", err)
	}
	e.clearKey()
}

// Start begins authentication for kinds and returns the remote's
// failure count. An account without a session yields (0, nil).
func (r *Registry) Start(ctx context.Context, account string, kinds auth.Kind, timeout int32) (int32, error) {
	e := r.lookup(account)
	if e == nil {
		return 0, nil
	}
	callCtx, cancel := r.callContext(ctx)
	defer cancel()
	failures, err := e.controller.Start(callCtx, kinds, timeout)
	if err != nil {
		r.absorb(e, "Start", err)
		return 0, &RemoteError{Method: "Start", Account: account, Err: err}
	}
	r.logger.Info("authentication started", "account", account, "kinds", kinds, "timeout", timeout, "failures", failures)
	return failures, nil
}

// End stops authentication for kinds and keeps the session.
func (r *Registry) End(ctx context.Context, account string, kinds auth.Kind) {
	e := r.lookup(account)
	if e == nil {
		return
	}
	callCtx, cancel := r.callContext(ctx)
	defer cancel()
	if err := e.controller.End(callCtx, kinds); err != nil {
		r.absorb(e, "End", err)
		return
	}
	r.logger.Debug("authentication ended", "account", account, "kinds", kinds)
}

// SetQuitPolicy records and forwards policy.
func (r *Registry) SetQuitPolicy(ctx context.Context, account string, policy auth.QuitPolicy) {
	e := r.lookup(account)
	if e == nil {
		return
	}
	e.mu.Lock()
	e.quitPolicy = policy
	e.mu.Unlock()

	callCtx, cancel := r.callContext(ctx)
	defer cancel()
	if err := e.controller.SetQuitPolicy(callCtx, policy); err != nil {
		r.absorb(e, "SetQuitPolicy", err)
	}
}

// QuitPolicy returns the last policy set for account.
func (r *Registry) QuitPolicy(account string) auth.QuitPolicy {
	e := r.lookup(account)
	if e == nil {
		return auth.QuitAuto
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quitPolicy
}

// Properties returns the session's properties, or the zero value.
func (r *Registry) Properties(ctx context.Context, account string) Properties {
	e := r.lookup(account)
	if e == nil {
		return Properties{}
	}
	callCtx, cancel := r.callContext(ctx)
	defer cancel()
	properties, err := e.controller.Properties(callCtx)
	if err != nil {
		r.absorb(e, "Properties", err)
		return Properties{}
	}
	return properties
}

func (r *Registry) MultiFactor(ctx context.Context, account string) bool {
	return r.Properties(ctx, account).MultiFactor
}

func (r *Registry) Factors(ctx context.Context, account string) []auth.FactorInfo {
	return r.Properties(ctx, account).Factors
}

func (r *Registry) FuzzyMultiFactor(ctx context.Context, account string) bool {
	return r.Properties(ctx, account).FuzzyMultiFactor
}

func (r *Registry) PinLength(ctx context.Context, account string) int32 {
	return r.Properties(ctx, account).PinLength
}

func (r *Registry) Prompt(ctx context.Context, account string) string {
	return r.Properties(ctx, account).Prompt
}

// Path returns the session's object path, or "".
func (r *Registry) Path(account string) string {
	e := r.lookup(account)
	if e == nil {
		return ""
	}
	return e.controller.Path()
}

// Accounts lists accounts with a session, sorted.
func (r *Registry) Accounts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	accounts := make([]string, 0, len(r.entries))
	for account := range r.entries {
		accounts = append(accounts, account)
	}
	slices.Sort(accounts)
	return accounts
}

// SupportedFlags returns the factor kinds the remote supports, or
// KindNone.
func (r *Registry) SupportedFlags(ctx context.Context) auth.Kind {
	callCtx, cancel := r.callContext(ctx)
	defer cancel()
	flags, err := r.remote.SupportedFlags(callCtx)
	if err != nil {
		r.logger.Warn("reading supported flags", "error", err)
		return auth.KindNone
	}
	return flags
}

// SupportedEncrypts returns the remote's encryption list, or "".
func (r *Registry) SupportedEncrypts(ctx context.Context) string {
	callCtx, cancel := r.callContext(ctx)
	defer cancel()
	encrypts, err := r.remote.SupportedEncrypts(callCtx)
	if err != nil {
		r.logger.Warn("reading supported encrypts", "error", err)
		return ""
	}
	return encrypts
}

// FrameworkState returns FrameworkUnavailable when the remote cannot
// be reached.
func (r *Registry) FrameworkState(ctx context.Context) auth.FrameworkState {
	callCtx, cancel := r.callContext(ctx)
	defer cancel()
	state, err := r.remote.FrameworkState(callCtx)
	if err != nil {
		r.logger.Warn("reading framework state", "error", err)
		return auth.FrameworkUnavailable
	}
	return state
}

// Limits returns account's lockout information, or "". It does not
// need a session.
func (r *Registry) Limits(ctx context.Context, account string) string {
	callCtx, cancel := r.callContext(ctx)
	defer cancel()
	limits, err := r.remote.Limits(callCtx, account)
	if err != nil {
		r.logger.Warn("reading limits", "account", account, "error", err)
		return ""
	}
	return limits
}

// PreOneKeyLogin forwards flag and returns the remote's answer, or "".
func (r *Registry) PreOneKeyLogin(ctx context.Context, flag int32) string {
	callCtx, cancel := r.callContext(ctx)
	defer cancel()
	result, err := r.remote.PreOneKeyLogin(callCtx, flag)
	if err != nil {
		r.logger.Warn("one-key login", "flag", flag, "error", err)
		return ""
	}
	return result
}

// Close destroys every session and stops framework events. Later
// Creates fail with ErrClosed.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	r.unwatchFramework()
	for _, e := range entries {
		r.shutdown(ctx, e)
	}
	r.logger.Info("session registry closed", "sessions", len(entries))
}

func (r *Registry) lookup(account string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[account]
}

// drop removes e if it is still the entry for its account.
func (r *Registry) drop(e *entry) {
	r.mu.Lock()
	current := r.entries[e.account]
	if current == e {
		delete(r.entries, e.account)
	}
	r.mu.Unlock()
	if current != e {
		return
	}
	e.unwatch()
	e.controller.Close()
	e.clearKey()
}

// absorb logs a failed call on e and drops e if its session is gone.
func (r *Registry) absorb(e *entry, method string, err error) {
	if errors.Is(err, ErrSessionGone) {
		r.logger.Info("session gone, dropping", "account", e.account, "method", method)
		r.drop(e)
		return
	}
	r.logger.Warn("remote call failed", "account", e.account, "method", method, "error", err)
}

// forward stamps a session event with its account and publishes it.
func (r *Registry) forward(account string, event auth.Event) {
	event.Account = account
	if event.Status != nil {
		status := *event.Status
		status.Account = account
		event.Status = &status
	}
	r.sink.Publish(event)
}

func (r *Registry) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.callTimeout)
}

func (e *entry) cachedKey() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.publicKey
}

func (e *entry) setKey(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.publicKey = key
}

func (e *entry) clearKey() { e.setKey("") }
