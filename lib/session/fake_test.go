// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/bureau-foundation/authbridge/lib/auth"
)

// fakeRemote hands out fakeControllers. Fields set before use configure
// every controller it creates.
type fakeRemote struct {
	properties Properties
	keys       []string
	readErr    error
	authErr    error

	flags    auth.Kind
	encrypts string
	state    auth.FrameworkState
	limits   map[string]string

	mu                sync.Mutex
	authenticateCalls int
	controllers       map[string][]*fakeController
	frameworkHandler  func(auth.Event)
}

func newFakeRemote(keys ...string) *fakeRemote {
	return &fakeRemote{keys: keys, controllers: make(map[string][]*fakeController)}
}

func (r *fakeRemote) Authenticate(_ context.Context, account string, kinds auth.Kind, app auth.AppKind) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authenticateCalls++
	if r.authErr != nil {
		return "", r.authErr
	}
	path := fmt.Sprintf("/com/deepin/daemon/Authenticate/Session%d", r.authenticateCalls)
	r.controllers[account] = append(r.controllers[account], &fakeController{
		path:       path,
		account:    account,
		kinds:      kinds,
		app:        app,
		valid:      true,
		keys:       slices.Clone(r.keys),
		properties: r.properties,
	})
	return path, nil
}

func (r *fakeRemote) Controller(_ context.Context, path string) (Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, controllers := range r.controllers {
		for _, controller := range controllers {
			if controller.path == path {
				return controller, nil
			}
		}
	}
	return nil, fmt.Errorf("no session at %s", path)
}

// latest returns the most recent controller created for account.
func (r *fakeRemote) latest(account string) *fakeController {
	r.mu.Lock()
	defer r.mu.Unlock()
	controllers := r.controllers[account]
	if len(controllers) == 0 {
		return nil
	}
	return controllers[len(controllers)-1]
}

func (r *fakeRemote) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.authenticateCalls
}

func (r *fakeRemote) SupportedFlags(context.Context) (auth.Kind, error) {
	return r.flags, r.readErr
}

func (r *fakeRemote) SupportedEncrypts(context.Context) (string, error) {
	return r.encrypts, r.readErr
}

func (r *fakeRemote) FrameworkState(context.Context) (auth.FrameworkState, error) {
	return r.state, r.readErr
}

func (r *fakeRemote) Limits(_ context.Context, account string) (string, error) {
	return r.limits[account], r.readErr
}

func (r *fakeRemote) PreOneKeyLogin(_ context.Context, flag int32) (string, error) {
	return fmt.Sprintf("one-key %d", flag), r.readErr
}

func (r *fakeRemote) WatchFramework(handler func(auth.Event)) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frameworkHandler = handler
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.frameworkHandler = nil
	}, nil
}

func (r *fakeRemote) emitFramework(event auth.Event) {
	r.mu.Lock()
	handler := r.frameworkHandler
	r.mu.Unlock()
	if handler != nil {
		handler(event)
	}
}

type fakeController struct {
	path    string
	account string
	kinds   auth.Kind
	app     auth.AppKind

	mu         sync.Mutex
	valid      bool
	failWith   error
	keys       []string
	keyCalls   int
	properties Properties
	calls      []string
	ends       []auth.Kind
	tokens     [][]byte
	policy     auth.QuitPolicy
	handler    func(auth.Event)
	closed     bool
}

func (c *fakeController) record(call string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	return c.failWith
}

func (c *fakeController) Path() string { return c.path }

func (c *fakeController) Valid(context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.valid
}

func (c *fakeController) Start(_ context.Context, kinds auth.Kind, timeout int32) (int32, error) {
	if err := c.record(fmt.Sprintf("Start(%s,%d)", kinds, timeout)); err != nil {
		return 0, err
	}
	return 0, nil
}

func (c *fakeController) End(_ context.Context, kinds auth.Kind) error {
	c.mu.Lock()
	c.ends = append(c.ends, kinds)
	c.mu.Unlock()
	return c.record("End")
}

func (c *fakeController) Quit(context.Context) error { return c.record("Quit") }

func (c *fakeController) SetToken(_ context.Context, kinds auth.Kind, ciphertext []byte) error {
	if err := c.record("SetToken"); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = append(c.tokens, slices.Clone(ciphertext))
	return nil
}

func (c *fakeController) SetQuitPolicy(_ context.Context, policy auth.QuitPolicy) error {
	if err := c.record("SetQuitPolicy"); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policy = policy
	return nil
}

// PublicKey returns the configured keys in order, repeating the last.
func (c *fakeController) PublicKey(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keyCalls++
	if c.failWith != nil {
		return "", c.failWith
	}
	if len(c.keys) == 0 {
		return "", nil
	}
	key := c.keys[0]
	if len(c.keys) > 1 {
		c.keys = c.keys[1:]
	}
	return key, nil
}

func (c *fakeController) Properties(context.Context) (Properties, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWith != nil {
		return Properties{}, c.failWith
	}
	return c.properties, nil
}

func (c *fakeController) Watch(handler func(auth.Event)) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.handler = nil
	}, nil
}

func (c *fakeController) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// emit delivers event as if the remote had signalled it.
func (c *fakeController) emit(event auth.Event) {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler != nil {
		handler(event)
	}
}

func (c *fakeController) snapshot() (calls []string, tokens [][]byte, keyCalls int, closed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.calls), slices.Clone(c.tokens), c.keyCalls, c.closed
}

func (c *fakeController) setFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failWith = err
}

func (c *fakeController) setValid(valid bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = valid
}
