// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"

	"github.com/bureau-foundation/authbridge/lib/auth"
	"github.com/bureau-foundation/authbridge/lib/conversation"
	"github.com/bureau-foundation/authbridge/lib/secret"
)

// Local runs verification on the host PAM stack. It has one worker,
// so only one account is active at a time; starting another account
// cancels the first. Create is a no-op and Start spawns the worker.
type Local struct {
	bridge *conversation.Bridge
}

// NewLocal wraps bridge.
func NewLocal(bridge *conversation.Bridge) *Local {
	return &Local{bridge: bridge}
}

func (l *Local) Name() string { return "local" }

func (l *Local) Create(context.Context, string, auth.Kind, auth.AppKind) error { return nil }

// Start spawns (or keeps) the worker for account. A spawn failure is
// already published as a status, so it counts as one failed factor.
func (l *Local) Start(ctx context.Context, account string, _ auth.Kind, _ int32) (int32, error) {
	if err := l.bridge.Start(ctx, account); err != nil {
		return 1, err
	}
	return 0, nil
}

// Submit hands credential to the worker if it is verifying account.
func (l *Local) Submit(_ context.Context, account string, _ auth.Kind, credential *secret.Buffer) error {
	if !l.active(account) {
		credential.Close()
		return nil
	}
	l.bridge.Supply(credential)
	return nil
}

// End cancels the worker; PAM cannot stop a single factor.
func (l *Local) End(ctx context.Context, account string, _ auth.Kind) {
	l.Cancel(ctx, account)
}

func (l *Local) Cancel(_ context.Context, account string) {
	if l.active(account) {
		l.bridge.Cancel()
	}
}

func (l *Local) Destroy(ctx context.Context, account string) error {
	if !l.active(account) {
		return nil
	}
	return l.bridge.Teardown(ctx)
}

func (l *Local) SetQuitPolicy(context.Context, string, auth.QuitPolicy) {}

func (l *Local) Session(_ context.Context, account string) SessionInfo {
	return SessionInfo{
		Account: account,
		Active:  l.active(account),
		Method:  l.bridge.LastMethod().String(),
	}
}

// Framework reports the PAM path as always available for the
// single-factor pseudo kind.
func (l *Local) Framework(context.Context) FrameworkInfo {
	return FrameworkInfo{
		Backend:        l.Name(),
		State:          auth.FrameworkAvailable,
		SupportedFlags: auth.KindSingle,
	}
}

func (l *Local) PreOneKeyLogin(context.Context, int32) string { return "" }

func (l *Local) Close(ctx context.Context) error { return l.bridge.Close(ctx) }

func (l *Local) active(account string) bool {
	running, ok := l.bridge.Running()
	return ok && running == account
}
