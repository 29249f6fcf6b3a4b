// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/authbridge/lib/auth"
)

// Remote is the top-level remote authentication service.
type Remote interface {
	// Authenticate asks for a new session and returns its path.
	Authenticate(ctx context.Context, account string, kinds auth.Kind, app auth.AppKind) (string, error)

	// Controller binds to the session at path.
	Controller(ctx context.Context, path string) (Controller, error)

	SupportedFlags(ctx context.Context) (auth.Kind, error)
	SupportedEncrypts(ctx context.Context) (string, error)
	FrameworkState(ctx context.Context) (auth.FrameworkState, error)

	// Limits returns the lockout information for account, as the
	// remote reports it.
	Limits(ctx context.Context, account string) (string, error)

	PreOneKeyLogin(ctx context.Context, flag int32) (string, error)

	// WatchFramework delivers framework-level events until the
	// returned function is called.
	WatchFramework(handler func(auth.Event)) (func(), error)
}

// Controller is one remote session.
type Controller interface {
	Path() string

	// Valid reports whether the remote session still exists.
	Valid(ctx context.Context) bool

	// Start begins authentication for kinds and returns how many
	// factors failed to start. A negative timeout means none.
	Start(ctx context.Context, kinds auth.Kind, timeout int32) (int32, error)
	End(ctx context.Context, kinds auth.Kind) error
	Quit(ctx context.Context) error
	SetToken(ctx context.Context, kinds auth.Kind, ciphertext []byte) error
	SetQuitPolicy(ctx context.Context, policy auth.QuitPolicy) error

	// PublicKey returns the PEM key credentials must be sealed with.
	// An empty or headerless key means the endpoint is not ready yet.
	PublicKey(ctx context.Context) (string, error)

	Properties(ctx context.Context) (Properties, error)

	// Watch delivers session events until the returned function is
	// called. Events need not carry an account; the registry stamps
	// them.
	Watch(handler func(auth.Event)) (func(), error)

	// Close releases local resources. It does not end the session.
	Close() error
}

// Properties is a snapshot of a session's readable state.
type Properties struct {
	MultiFactor      bool              `cbor:"multi_factor"`
	Factors          []auth.FactorInfo `cbor:"factors,omitempty"`
	FuzzyMultiFactor bool              `cbor:"fuzzy_multi_factor"`
	PinLength        int32             `cbor:"pin_length"`
	Prompt           string            `cbor:"prompt,omitempty"`
}

var (
	// ErrPublicKeyNotReady reports that no usable public key was
	// obtained within the configured attempts.
	ErrPublicKeyNotReady = errors.New("session: public key not ready")

	// ErrSessionGone is returned by a Controller whose remote session
	// no longer exists. The registry drops the entry when it sees it.
	ErrSessionGone = errors.New("session: remote session gone")

	// ErrClosed is returned by Create after Close.
	ErrClosed = errors.New("session: registry closed")
)

// RemoteError is a failed round trip to the remote service.
type RemoteError struct {
	Method  string
	Account string
	Err     error
}

func (e *RemoteError) Error() string {
	if e.Account == "" {
		return fmt.Sprintf("session: remote %s: %v", e.Method, e.Err)
	}
	return fmt.Sprintf("session: remote %s for %q: %v", e.Method, e.Account, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }
