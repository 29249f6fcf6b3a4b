// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/authbridge/lib/auth"
	"github.com/bureau-foundation/authbridge/lib/clock"
	"github.com/bureau-foundation/authbridge/lib/seal"
	"github.com/bureau-foundation/authbridge/lib/secret"
	"github.com/bureau-foundation/authbridge/lib/testutil"
)

const testTimeout = 5 * time.Second

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

var (
	keyOnce    sync.Once
	privateKey *rsa.PrivateKey
	publicPEM  string
)

func testKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	keyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
		if err != nil {
			panic(err)
		}
		privateKey = key
		publicPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
	})
	return privateKey, publicPEM
}

type fixture struct {
	registry *Registry
	remote   *fakeRemote
	events   chan auth.Event
	clock    *clock.FakeClock
}

func newFixture(t *testing.T, remote *fakeRemote) *fixture {
	t.Helper()
	f := &fixture{
		remote: remote,
		events: make(chan auth.Event, 128),
		clock:  clock.Fake(epoch),
	}
	registry, err := New(Config{
		Remote:             remote,
		Sink:               auth.SinkFunc(func(event auth.Event) { f.events <- event }),
		Clock:              f.clock,
		Logger:             testutil.Logger(t),
		KeyFetchAttempts:   3,
		KeyFetchBackoff:    100 * time.Millisecond,
		KeyFetchMaxBackoff: 150 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.registry = registry
	t.Cleanup(func() { registry.Close(context.Background()) })
	return f
}

func (f *fixture) create(t *testing.T, account string) *fakeController {
	t.Helper()
	if err := f.registry.Create(context.Background(), account, auth.KindPassword, auth.AppDefault); err != nil {
		t.Fatalf("Create(%s): %v", account, err)
	}
	return f.remote.latest(account)
}

// drain discards queued events.
func (f *fixture) drain() {
	for {
		select {
		case <-f.events:
		default:
			return
		}
	}
}

func (f *fixture) nextEvent(t *testing.T) auth.Event {
	t.Helper()
	return testutil.RequireReceive(t, f.events, testTimeout, "waiting for event")
}

func mustSecret(t *testing.T, value string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromString(value)
	if err != nil {
		t.Fatalf("secret.NewFromString: %v", err)
	}
	return buffer
}

func decrypt(t *testing.T, key *rsa.PrivateKey, ciphertext []byte) string {
	t.Helper()
	plaintext, err := rsa.DecryptPKCS1v15(nil, key, ciphertext)
	if err != nil {
		t.Fatalf("decrypting token: %v", err)
	}
	return string(plaintext)
}

func TestCreateIsIdempotent(t *testing.T) {
	f := newFixture(t, newFakeRemote())
	f.create(t, "alice")
	f.create(t, "alice")

	if calls := f.remote.calls(); calls != 1 {
		t.Errorf("remote Authenticate called %d times, want 1", calls)
	}
	if accounts := f.registry.Accounts(); !slices.Equal(accounts, []string{"alice"}) {
		t.Errorf("Accounts = %v", accounts)
	}
}

func TestConcurrentCreatesYieldOneSession(t *testing.T) {
	f := newFixture(t, newFakeRemote())

	var group sync.WaitGroup
	for range 8 {
		group.Add(1)
		go func() {
			defer group.Done()
			if err := f.registry.Create(context.Background(), "alice", auth.KindPassword, auth.AppLogin); err != nil {
				t.Errorf("Create: %v", err)
			}
		}()
	}
	group.Wait()

	if calls := f.remote.calls(); calls != 1 {
		t.Errorf("remote Authenticate called %d times, want 1", calls)
	}
}

func TestCreateReplaysProperties(t *testing.T) {
	remote := newFakeRemote()
	remote.properties = Properties{
		MultiFactor:      true,
		Factors:          []auth.FactorInfo{{Kind: auth.KindPassword, Name: "password"}, {Kind: auth.KindFingerprint, Name: "fingerprint"}},
		FuzzyMultiFactor: true,
		PinLength:        6,
		Prompt:           "Enter your password",
	}
	f := newFixture(t, remote)
	f.create(t, "alice")

	want := []auth.EventType{auth.EventMultiFactor, auth.EventFactors, auth.EventFuzzyMultiFactor, auth.EventPinLength, auth.EventPrompt}
	var got []auth.Event
	for range want {
		event := f.nextEvent(t)
		if event.Account != "alice" {
			t.Errorf("%s event account = %q", event.Type, event.Account)
		}
		got = append(got, event)
	}
	for index, wantType := range want {
		if got[index].Type != wantType {
			t.Fatalf("event %d = %s, want %s", index, got[index].Type, wantType)
		}
	}
	if !got[0].Flag || len(got[1].Factors) != 2 || !got[2].Flag || got[3].Number != 6 || got[4].Text != "Enter your password" {
		t.Errorf("replayed values wrong: %+v", got)
	}
}

func TestCreateReplacesStaleSession(t *testing.T) {
	f := newFixture(t, newFakeRemote())
	stale := f.create(t, "alice")
	stale.setValid(false)

	fresh := f.create(t, "alice")
	if fresh == stale {
		t.Fatal("stale session was reused")
	}
	if _, _, _, closed := stale.snapshot(); !closed {
		t.Error("stale controller not closed")
	}
	if path := f.registry.Path("alice"); path != fresh.path {
		t.Errorf("Path = %q, want %q", path, fresh.path)
	}
}

func TestCreateRemoteFailure(t *testing.T) {
	remote := newFakeRemote()
	remote.authErr = errors.New("org.freedesktop.DBus.Error.ServiceUnknown")
	f := newFixture(t, remote)

	err := f.registry.Create(context.Background(), "alice", auth.KindPassword, auth.AppDefault)
	var remoteError *RemoteError
	if !errors.As(err, &remoteError) || remoteError.Method != "Authenticate" {
		t.Fatalf("Create = %v, want RemoteError from Authenticate", err)
	}
	if len(f.registry.Accounts()) != 0 {
		t.Error("failed Create left an entry")
	}
	if err := f.registry.Create(context.Background(), "", auth.KindPassword, auth.AppDefault); err == nil {
		t.Error("Create with empty account succeeded")
	}
}

func TestOperationsOnMissingAccount(t *testing.T) {
	f := newFixture(t, newFakeRemote())
	ctx := context.Background()

	if failures, err := f.registry.Start(ctx, "ghost", auth.KindPassword, -1); failures != 0 || err != nil {
		t.Errorf("Start = (%d, %v), want (0, nil)", failures, err)
	}
	f.registry.End(ctx, "ghost", auth.KindPassword)
	f.registry.SetQuitPolicy(ctx, "ghost", auth.QuitManual)
	f.registry.Destroy(ctx, "ghost")

	credential := mustSecret(t, "secret")
	if err := f.registry.SupplyToken(ctx, "ghost", auth.KindPassword, credential); err != nil {
		t.Errorf("SupplyToken = %v, want nil", err)
	}
	if !credential.Closed() {
		t.Error("credential for missing account not wiped")
	}

	if f.registry.MultiFactor(ctx, "ghost") || f.registry.FuzzyMultiFactor(ctx, "ghost") {
		t.Error("flag accessors not false")
	}
	if f.registry.Factors(ctx, "ghost") != nil || f.registry.PinLength(ctx, "ghost") != 0 || f.registry.Prompt(ctx, "ghost") != "" {
		t.Error("value accessors not zero")
	}
	if f.registry.Path("ghost") != "" || f.registry.QuitPolicy("ghost") != auth.QuitAuto {
		t.Error("local accessors not zero")
	}
	testutil.RequireNoReceive(t, f.events, 20*time.Millisecond, "event for missing account")
}

func TestPasswordLoginFlow(t *testing.T) {
	key, public := testKey(t)
	f := newFixture(t, newFakeRemote(public))
	ctx := context.Background()

	controller := f.create(t, "alice")
	f.drain()

	failures, err := f.registry.Start(ctx, "alice", auth.KindPassword, -1)
	if err != nil || failures != 0 {
		t.Fatalf("Start = (%d, %v)", failures, err)
	}

	controller.emit(auth.StatusEvent(auth.Status{Kind: auth.KindPassword, Code: auth.StatusPrompt, Message: "password:"}))
	prompt := f.nextEvent(t)
	if prompt.Account != "alice" || prompt.Status == nil || prompt.Status.Account != "alice" || prompt.Status.Code != auth.StatusPrompt {
		t.Fatalf("prompt event = %+v", prompt)
	}

	credential := mustSecret(t, "secret")
	if err := f.registry.SupplyToken(ctx, "alice", auth.KindPassword, credential); err != nil {
		t.Fatalf("SupplyToken: %v", err)
	}
	if !credential.Closed() {
		t.Error("credential not wiped after delivery")
	}
	_, tokens, _, _ := controller.snapshot()
	if len(tokens) != 1 {
		t.Fatalf("sent %d tokens, want 1", len(tokens))
	}
	if strings.Contains(string(tokens[0]), "secret") {
		t.Fatal("plaintext crossed the session boundary")
	}
	if got := decrypt(t, key, tokens[0]); got != "secret" {
		t.Errorf("decrypted token = %q", got)
	}

	controller.emit(auth.StatusEvent(auth.Status{Kind: auth.KindPassword, Code: auth.StatusSuccess}))
	if success := f.nextEvent(t); success.Status == nil || success.Status.Code != auth.StatusSuccess {
		t.Fatalf("success event = %+v", success)
	}

	f.registry.Destroy(ctx, "alice")
	if len(f.registry.Accounts()) != 0 {
		t.Error("entry survived Destroy")
	}
	calls, _, _, closed := controller.snapshot()
	if !closed {
		t.Error("controller not closed")
	}
	if tail := calls[len(calls)-2:]; !slices.Equal(tail, []string{"End", "Quit"}) {
		t.Errorf("final calls = %v, want End then Quit", tail)
	}
	controller.mu.Lock()
	lastEnd := controller.ends[len(controller.ends)-1]
	controller.mu.Unlock()
	if lastEnd != auth.KindAll {
		t.Errorf("Destroy ended %s, want %s", lastEnd, auth.KindAll)
	}
}

func TestAccountsAreIndependent(t *testing.T) {
	f := newFixture(t, newFakeRemote())
	ctx := context.Background()
	alice := f.create(t, "alice")
	bob := f.create(t, "bob")
	f.drain()

	f.registry.Destroy(ctx, "alice")

	alice.emit(auth.StatusEvent(auth.Status{Code: auth.StatusPrompt}))
	bob.emit(auth.StatusEvent(auth.Status{Code: auth.StatusPrompt, Message: "bob's prompt"}))

	event := f.nextEvent(t)
	if event.Account != "bob" || event.Status.Message != "bob's prompt" {
		t.Errorf("got %+v, want bob's prompt", event)
	}
	testutil.RequireNoReceive(t, f.events, 20*time.Millisecond, "event from destroyed session")

	if accounts := f.registry.Accounts(); !slices.Equal(accounts, []string{"bob"}) {
		t.Errorf("Accounts = %v", accounts)
	}
	if f.registry.Path("bob") != bob.path {
		t.Error("bob's entry changed")
	}
}

func TestPublicKeyRetriedUntilRecognized(t *testing.T) {
	key, public := testKey(t)
	f := newFixture(t, newFakeRemote("", "not a key", public))
	controller := f.create(t, "alice")

	result := make(chan error, 1)
	go func() {
		result <- f.registry.SupplyToken(context.Background(), "alice", auth.KindPassword, mustSecret(t, "secret"))
	}()

	f.clock.WaitForTimers(1)
	f.clock.Advance(100 * time.Millisecond)
	f.clock.WaitForTimers(1)
	f.clock.Advance(150 * time.Millisecond)

	if err := testutil.RequireReceive(t, result, testTimeout, "SupplyToken"); err != nil {
		t.Fatalf("SupplyToken: %v", err)
	}
	_, tokens, keyCalls, _ := controller.snapshot()
	if keyCalls != 3 {
		t.Errorf("key fetched %d times, want 3", keyCalls)
	}
	if len(tokens) != 1 || decrypt(t, key, tokens[0]) != "secret" {
		t.Fatalf("tokens = %d", len(tokens))
	}

	if err := f.registry.SupplyToken(context.Background(), "alice", auth.KindPassword, mustSecret(t, "again")); err != nil {
		t.Fatalf("second SupplyToken: %v", err)
	}
	if _, _, keyCalls, _ := controller.snapshot(); keyCalls != 3 {
		t.Errorf("cached key refetched: %d calls", keyCalls)
	}
}

func TestPublicKeyRetryIsBounded(t *testing.T) {
	f := newFixture(t, newFakeRemote(""))
	controller := f.create(t, "alice")

	result := make(chan error, 1)
	go func() {
		result <- f.registry.SupplyToken(context.Background(), "alice", auth.KindPassword, mustSecret(t, "secret"))
	}()
	for range 2 {
		f.clock.WaitForTimers(1)
		f.clock.Advance(time.Second)
	}

	err := testutil.RequireReceive(t, result, testTimeout, "SupplyToken")
	if !errors.Is(err, ErrPublicKeyNotReady) {
		t.Fatalf("SupplyToken = %v, want ErrPublicKeyNotReady", err)
	}
	if _, tokens, keyCalls, _ := controller.snapshot(); keyCalls != 3 || len(tokens) != 0 {
		t.Errorf("keyCalls = %d tokens = %d, want 3 and 0", keyCalls, len(tokens))
	}
}

func TestPublicKeyRetryHonorsContext(t *testing.T) {
	f := newFixture(t, newFakeRemote(""))
	f.create(t, "alice")

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		result <- f.registry.SupplyToken(ctx, "alice", auth.KindPassword, mustSecret(t, "secret"))
	}()
	f.clock.WaitForTimers(1)
	cancel()

	err := testutil.RequireReceive(t, result, testTimeout, "SupplyToken")
	if !errors.Is(err, ErrPublicKeyNotReady) || !errors.Is(err, context.Canceled) {
		t.Fatalf("SupplyToken = %v, want ErrPublicKeyNotReady wrapping context.Canceled", err)
	}
}

func TestSealingFailureSendsNothing(t *testing.T) {
	broken := "-----BEGIN PUBLIC KEY-----\n!!!!\n-----END PUBLIC KEY-----\n"
	f := newFixture(t, newFakeRemote(broken))
	controller := f.create(t, "alice")

	credential := mustSecret(t, "secret")
	err := f.registry.SupplyToken(context.Background(), "alice", auth.KindPassword, credential)
	if !errors.Is(err, seal.ErrMalformedKey) {
		t.Fatalf("SupplyToken = %v, want seal.ErrMalformedKey", err)
	}
	if !credential.Closed() {
		t.Error("credential not wiped after sealing failure")
	}

	f.registry.SupplyToken(context.Background(), "alice", auth.KindPassword, mustSecret(t, "secret"))
	if _, tokens, keyCalls, _ := controller.snapshot(); len(tokens) != 0 || keyCalls != 2 {
		t.Errorf("tokens = %d keyCalls = %d, want 0 and 2 (key dropped from cache)", len(tokens), keyCalls)
	}
}

func TestOversizedTokenRejected(t *testing.T) {
	_, public := testKey(t)
	f := newFixture(t, newFakeRemote(public))
	controller := f.create(t, "alice")

	oversized := mustSecret(t, strings.Repeat("x", 2048/8-11))
	err := f.registry.SupplyToken(context.Background(), "alice", auth.KindPassword, oversized)
	if !errors.Is(err, seal.ErrPlaintextTooLarge) {
		t.Fatalf("SupplyToken = %v, want seal.ErrPlaintextTooLarge", err)
	}
	if _, tokens, _, _ := controller.snapshot(); len(tokens) != 0 {
		t.Error("oversized token was sent")
	}

	// The key itself was fine, so the next token reuses it.
	if err := f.registry.SupplyToken(context.Background(), "alice", auth.KindPassword, mustSecret(t, "secret")); err != nil {
		t.Fatalf("SupplyToken after oversized token: %v", err)
	}
	if _, tokens, keyCalls, _ := controller.snapshot(); len(tokens) != 1 || keyCalls != 1 {
		t.Errorf("tokens = %d keyCalls = %d, want 1 and 1 (key kept in cache)", len(tokens), keyCalls)
	}
}

func TestGoneSessionIsDropped(t *testing.T) {
	f := newFixture(t, newFakeRemote())
	controller := f.create(t, "alice")
	controller.setFailure(ErrSessionGone)

	f.registry.End(context.Background(), "alice", auth.KindPassword)

	if len(f.registry.Accounts()) != 0 {
		t.Fatal("gone session still registered")
	}
	if _, _, _, closed := controller.snapshot(); !closed {
		t.Error("gone session controller not closed")
	}
}

func TestRemoteFailuresDegradeToZero(t *testing.T) {
	remote := newFakeRemote()
	remote.readErr = errors.New("no reply")
	f := newFixture(t, remote)
	ctx := context.Background()

	if state := f.registry.FrameworkState(ctx); state != auth.FrameworkUnavailable {
		t.Errorf("FrameworkState = %d, want unavailable", state)
	}
	if flags := f.registry.SupportedFlags(ctx); flags != auth.KindNone {
		t.Errorf("SupportedFlags = %s", flags)
	}
	if f.registry.SupportedEncrypts(ctx) != "" || f.registry.Limits(ctx, "alice") != "" || f.registry.PreOneKeyLogin(ctx, 1) != "" {
		t.Error("string reads not empty")
	}

	controller := f.create(t, "alice")
	controller.setFailure(errors.New("timeout"))
	if f.registry.PinLength(ctx, "alice") != 0 {
		t.Error("PinLength not zero on failure")
	}
	f.registry.SetQuitPolicy(ctx, "alice", auth.QuitManual)
	if len(f.registry.Accounts()) != 1 {
		t.Error("ordinary remote failure dropped the session")
	}
}

func TestFrameworkReads(t *testing.T) {
	remote := newFakeRemote()
	remote.flags = auth.KindPassword | auth.KindFingerprint
	remote.encrypts = "rsa,sm2"
	remote.limits = map[string]string{"alice": `[{"flag":1,"locked":false}]`}
	f := newFixture(t, remote)
	ctx := context.Background()

	if state := f.registry.FrameworkState(ctx); state != auth.FrameworkAvailable {
		t.Errorf("FrameworkState = %d", state)
	}
	if flags := f.registry.SupportedFlags(ctx); flags != remote.flags {
		t.Errorf("SupportedFlags = %s", flags)
	}
	if encrypts := f.registry.SupportedEncrypts(ctx); encrypts != "rsa,sm2" {
		t.Errorf("SupportedEncrypts = %q", encrypts)
	}
	if limits := f.registry.Limits(ctx, "alice"); limits != remote.limits["alice"] {
		t.Errorf("Limits = %q", limits)
	}
	if answer := f.registry.PreOneKeyLogin(ctx, 2); answer != "one-key 2" {
		t.Errorf("PreOneKeyLogin = %q", answer)
	}
}

func TestFrameworkEventsForwarded(t *testing.T) {
	remote := newFakeRemote()
	f := newFixture(t, remote)

	remote.emitFramework(auth.Event{Type: auth.EventLimits, Account: "alice"})
	event := f.nextEvent(t)
	if event.Type != auth.EventLimits || event.Account != "alice" {
		t.Errorf("event = %+v", event)
	}
}

func TestSetQuitPolicy(t *testing.T) {
	f := newFixture(t, newFakeRemote())
	controller := f.create(t, "alice")

	f.registry.SetQuitPolicy(context.Background(), "alice", auth.QuitManual)
	if got := f.registry.QuitPolicy("alice"); got != auth.QuitManual {
		t.Errorf("QuitPolicy = %d", got)
	}
	controller.mu.Lock()
	forwarded := controller.policy
	controller.mu.Unlock()
	if forwarded != auth.QuitManual {
		t.Errorf("remote policy = %d", forwarded)
	}
}

func TestCloseDestroysEverySession(t *testing.T) {
	f := newFixture(t, newFakeRemote())
	alice := f.create(t, "alice")
	bob := f.create(t, "bob")

	f.registry.Close(context.Background())

	for _, controller := range []*fakeController{alice, bob} {
		calls, _, _, closed := controller.snapshot()
		if !closed || !slices.Contains(calls, "Quit") {
			t.Errorf("%s: calls = %v closed = %v", controller.account, calls, closed)
		}
	}
	if err := f.registry.Create(context.Background(), "carol", auth.KindPassword, auth.AppDefault); !errors.Is(err, ErrClosed) {
		t.Errorf("Create after Close = %v, want ErrClosed", err)
	}
}
