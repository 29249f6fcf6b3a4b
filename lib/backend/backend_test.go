// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/authbridge/lib/auth"
	"github.com/bureau-foundation/authbridge/lib/clock"
	"github.com/bureau-foundation/authbridge/lib/conversation"
	"github.com/bureau-foundation/authbridge/lib/secret"
	"github.com/bureau-foundation/authbridge/lib/session"
	"github.com/bureau-foundation/authbridge/lib/testutil"
)

const testTimeout = 5 * time.Second

var _ Backend = (*Local)(nil)
var _ Backend = (*Remote)(nil)

func mustSecret(t *testing.T, value string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromString(value)
	if err != nil {
		t.Fatalf("secret.NewFromString: %v", err)
	}
	return buffer
}

// promptNative asks for one password per attempt and reports what it
// received.
type promptNative struct {
	received chan string
}

func (n *promptNative) Start(_, _ string, conv conversation.Conversation) (conversation.Handle, error) {
	return &promptHandle{native: n, conv: conv}, nil
}

type promptHandle struct {
	native *promptNative
	conv   conversation.Conversation
}

func (h *promptHandle) Authenticate() error {
	replies, err := h.conv.Converse([]conversation.Message{{Style: conversation.StyleEchoOff, Text: "Password:"}})
	if err != nil {
		return err
	}
	defer replies[0].Response.Close()
	h.native.received <- replies[0].Response.String()
	return nil
}

func (h *promptHandle) End(error) error { return nil }

func newLocal(t *testing.T) (*Local, *promptNative, chan auth.Event) {
	t.Helper()
	native := &promptNative{received: make(chan string, 1)}
	events := make(chan auth.Event, 32)
	bridge, err := conversation.New(conversation.Config{
		Native: native,
		Sink:   auth.SinkFunc(func(event auth.Event) { events <- event }),
		Clock:  clock.Fake(time.Unix(0, 0)),
		Logger: testutil.Logger(t),
	})
	if err != nil {
		t.Fatalf("conversation.New: %v", err)
	}
	local := NewLocal(bridge)
	t.Cleanup(func() { local.Close(context.Background()) })
	return local, native, events
}

func waitForCode(t *testing.T, events <-chan auth.Event, code auth.StatusCode) auth.Status {
	t.Helper()
	for {
		event := testutil.RequireReceive(t, events, testTimeout, "waiting for %s", code)
		if event.Status != nil && event.Status.Code == code {
			return *event.Status
		}
	}
}

func TestLocalSubmitReachesBridge(t *testing.T) {
	local, native, events := newLocal(t)
	ctx := context.Background()

	if err := local.Create(ctx, "alice", auth.KindPassword, auth.AppLock); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if failures, err := local.Start(ctx, "alice", auth.KindPassword, -1); err != nil || failures != 0 {
		t.Fatalf("Start = (%d, %v)", failures, err)
	}
	waitForCode(t, events, auth.StatusPrompt)

	if info := local.Session(ctx, "alice"); !info.Active {
		t.Error("session not active while the worker waits")
	}
	if err := local.Submit(ctx, "alice", auth.KindPassword, mustSecret(t, "hunter2")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := testutil.RequireReceive(t, native.received, testTimeout, "credential"); got != "hunter2" {
		t.Errorf("PAM received %q", got)
	}
	if status := waitForCode(t, events, auth.StatusSuccess); status.Kind != auth.KindSingle {
		t.Errorf("status kind = %s", status.Kind)
	}
	if err := local.Destroy(ctx, "alice"); err != nil {
		t.Errorf("Destroy: %v", err)
	}
	if method := local.Session(ctx, "alice").Method; method != "password" {
		t.Errorf("method = %q", method)
	}
}

func TestLocalIgnoresOtherAccounts(t *testing.T) {
	local, _, events := newLocal(t)
	ctx := context.Background()

	if _, err := local.Start(ctx, "alice", auth.KindPassword, -1); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForCode(t, events, auth.StatusPrompt)

	stray := mustSecret(t, "bob's password")
	if err := local.Submit(ctx, "bob", auth.KindPassword, stray); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !stray.Closed() {
		t.Error("credential for inactive account not wiped")
	}
	local.Cancel(ctx, "bob")
	testutil.RequireNoReceive(t, events, 20*time.Millisecond, "event after cancelling another account")

	local.Cancel(ctx, "alice")
	waitForCode(t, events, auth.StatusCancelled)
}

func TestLocalStartFailureCountsAsFailedFactor(t *testing.T) {
	local, _, _ := newLocal(t)
	failures, err := local.Start(context.Background(), "", auth.KindPassword, -1)
	var spawnError *conversation.SpawnError
	if failures != 1 || !errors.As(err, &spawnError) {
		t.Errorf("Start = (%d, %v), want (1, SpawnError)", failures, err)
	}
}

func TestLocalFramework(t *testing.T) {
	local, _, _ := newLocal(t)
	info := local.Framework(context.Background())
	if info.Backend != "local" || info.State != auth.FrameworkAvailable || info.SupportedFlags != auth.KindSingle {
		t.Errorf("framework = %+v", info)
	}
}

// tokenRemote is a one-session session.Remote that records tokens.
type tokenRemote struct {
	key string

	mu     sync.Mutex
	tokens [][]byte
	ends   []auth.Kind
}

func (r *tokenRemote) Authenticate(context.Context, string, auth.Kind, auth.AppKind) (string, error) {
	return "/com/deepin/daemon/Authenticate/Session1", nil
}

func (r *tokenRemote) Controller(_ context.Context, path string) (session.Controller, error) {
	return &tokenController{remote: r, path: path}, nil
}

func (r *tokenRemote) SupportedFlags(context.Context) (auth.Kind, error) {
	return auth.KindPassword, nil
}

func (r *tokenRemote) SupportedEncrypts(context.Context) (string, error) { return "rsa", nil }

func (r *tokenRemote) FrameworkState(context.Context) (auth.FrameworkState, error) {
	return auth.FrameworkAvailable, nil
}

func (r *tokenRemote) Limits(context.Context, string) (string, error) { return "[]", nil }

func (r *tokenRemote) PreOneKeyLogin(context.Context, int32) (string, error) { return "ok", nil }

func (r *tokenRemote) WatchFramework(func(auth.Event)) (func(), error) { return func() {}, nil }

type tokenController struct {
	remote *tokenRemote
	path   string
}

func (c *tokenController) Path() string { return c.path }

func (c *tokenController) Valid(context.Context) bool { return true }

func (c *tokenController) Start(context.Context, auth.Kind, int32) (int32, error) {
	return 0, nil
}

func (c *tokenController) End(_ context.Context, kinds auth.Kind) error {
	c.remote.mu.Lock()
	defer c.remote.mu.Unlock()
	c.remote.ends = append(c.remote.ends, kinds)
	return nil
}

func (c *tokenController) Quit(context.Context) error { return nil }

func (c *tokenController) SetToken(_ context.Context, _ auth.Kind, ciphertext []byte) error {
	c.remote.mu.Lock()
	defer c.remote.mu.Unlock()
	c.remote.tokens = append(c.remote.tokens, ciphertext)
	return nil
}

func (c *tokenController) SetQuitPolicy(context.Context, auth.QuitPolicy) error { return nil }

func (c *tokenController) PublicKey(context.Context) (string, error) { return c.remote.key, nil }

func (c *tokenController) Properties(context.Context) (session.Properties, error) {
	return session.Properties{PinLength: 6, Prompt: "Password"}, nil
}

func (c *tokenController) Watch(func(auth.Event)) (func(), error) { return func() {}, nil }

func (c *tokenController) Close() error { return nil }

func newRemote(t *testing.T) (*Remote, *tokenRemote, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	remote := &tokenRemote{key: string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey),
	}))}
	registry, err := session.New(session.Config{Remote: remote, Logger: testutil.Logger(t)})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	backend := NewRemote(registry)
	t.Cleanup(func() { backend.Close(context.Background()) })
	return backend, remote, key
}

func TestRemoteSubmitIsSealed(t *testing.T) {
	backend, remote, key := newRemote(t)
	ctx := context.Background()

	if err := backend.Create(ctx, "alice", auth.KindPassword, auth.AppLogin); err != nil {
		t.Fatalf("Create: %v", err)
	}
	credential := mustSecret(t, "hunter2")
	if err := backend.Submit(ctx, "alice", auth.KindPassword, credential); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !credential.Closed() {
		t.Error("credential not wiped")
	}

	remote.mu.Lock()
	tokens := remote.tokens
	remote.mu.Unlock()
	if len(tokens) != 1 {
		t.Fatalf("%d tokens sent", len(tokens))
	}
	plaintext, err := rsa.DecryptPKCS1v15(nil, key, tokens[0])
	if err != nil || string(plaintext) != "hunter2" {
		t.Errorf("decrypted = %q, %v", plaintext, err)
	}
}

func TestRemoteSessionInfoAndCancel(t *testing.T) {
	backend, remote, _ := newRemote(t)
	ctx := context.Background()

	if info := backend.Session(ctx, "alice"); info.Active || info.Limits != "[]" {
		t.Errorf("info before Create = %+v", info)
	}
	if err := backend.Create(ctx, "alice", auth.KindPassword, auth.AppLogin); err != nil {
		t.Fatalf("Create: %v", err)
	}
	info := backend.Session(ctx, "alice")
	if !info.Active || info.PinLength != 6 || info.Prompt != "Password" || info.Path == "" {
		t.Errorf("info = %+v", info)
	}

	backend.Cancel(ctx, "alice")
	remote.mu.Lock()
	ends := remote.ends
	remote.mu.Unlock()
	if len(ends) != 1 || ends[0] != auth.KindAll {
		t.Errorf("ends = %v, want [all]", ends)
	}

	framework := backend.Framework(ctx)
	if framework.Backend != "remote" || framework.SupportedFlags != auth.KindPassword || framework.SupportedEncrypts != "rsa" {
		t.Errorf("framework = %+v", framework)
	}
	if backend.PreOneKeyLogin(ctx, 1) != "ok" {
		t.Error("PreOneKeyLogin not forwarded")
	}
}
