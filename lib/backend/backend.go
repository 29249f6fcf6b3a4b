// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package backend puts the two authentication paths behind one
// interface. [Local] drives the host PAM stack through a
// conversation.Bridge; [Remote] drives multi-factor sessions of the
// remote daemon through a session.Registry. The daemon picks one from
// configuration and never branches on which it has.
package backend

import (
	"context"

	"github.com/bureau-foundation/authbridge/lib/auth"
	"github.com/bureau-foundation/authbridge/lib/secret"
)

// Backend is an authentication session provider keyed by account.
// Operations on an account without a session are no-ops.
type Backend interface {
	// Name is "local" or "remote".
	Name() string

	// Create prepares a session for account. Creating an existing
	// session does nothing.
	Create(ctx context.Context, account string, kinds auth.Kind, app auth.AppKind) error

	// Start begins authentication and returns how many factors failed
	// to start.
	Start(ctx context.Context, account string, kinds auth.Kind, timeout int32) (int32, error)

	// Submit delivers credential for kinds. The backend owns
	// credential and wipes it.
	Submit(ctx context.Context, account string, kinds auth.Kind, credential *secret.Buffer) error

	// End stops authentication of kinds without destroying the
	// session.
	End(ctx context.Context, account string, kinds auth.Kind)

	// Cancel aborts whatever the account's session is waiting for.
	Cancel(ctx context.Context, account string)

	// Destroy removes the account's session.
	Destroy(ctx context.Context, account string) error

	SetQuitPolicy(ctx context.Context, account string, policy auth.QuitPolicy)
	Session(ctx context.Context, account string) SessionInfo
	Framework(ctx context.Context) FrameworkInfo
	PreOneKeyLogin(ctx context.Context, flag int32) string

	// Close destroys every session.
	Close(ctx context.Context) error
}

// SessionInfo is everything readable about one account's session.
type SessionInfo struct {
	Account          string            `cbor:"account"`
	Active           bool              `cbor:"active"`
	MultiFactor      bool              `cbor:"multi_factor"`
	Factors          []auth.FactorInfo `cbor:"factors,omitempty"`
	FuzzyMultiFactor bool              `cbor:"fuzzy_multi_factor"`
	PinLength        int32             `cbor:"pin_length"`
	Prompt           string            `cbor:"prompt,omitempty"`
	Path             string            `cbor:"path,omitempty"`
	Limits           string            `cbor:"limits,omitempty"`
	QuitPolicy       auth.QuitPolicy   `cbor:"quit_policy"`
	Method           string            `cbor:"method,omitempty"`
}

// FrameworkInfo describes the authentication provider as a whole.
type FrameworkInfo struct {
	Backend           string              `cbor:"backend"`
	State             auth.FrameworkState `cbor:"state"`
	SupportedFlags    auth.Kind           `cbor:"supported_flags"`
	SupportedEncrypts string              `cbor:"supported_encrypts,omitempty"`
}
