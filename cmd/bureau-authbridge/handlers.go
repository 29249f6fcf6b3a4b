// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/authbridge/lib/auth"
	"github.com/bureau-foundation/authbridge/lib/backend"
	"github.com/bureau-foundation/authbridge/lib/clock"
	"github.com/bureau-foundation/authbridge/lib/codec"
	"github.com/bureau-foundation/authbridge/lib/notify"
	"github.com/bureau-foundation/authbridge/lib/secret"
	"github.com/bureau-foundation/authbridge/lib/service"
	"github.com/bureau-foundation/authbridge/lib/version"
)

// daemon is the socket-facing state of the bridge.
type daemon struct {
	backend     backend.Backend
	broadcaster *notify.Broadcaster
	clock       clock.Clock
	logger      *slog.Logger
	build       version.Build

	// heartbeat is the interval between heartbeat frames on subscribe
	// streams.
	heartbeat time.Duration
}

// errAccountRequired is returned for account-keyed actions without an
// account.
var errAccountRequired = errors.New("missing required field: account")

// registerActions registers every socket action on server.
func (d *daemon) registerActions(server *service.SocketServer) {
	server.Handle("create", d.handleCreate)
	server.Handle("destroy", d.handleDestroy)
	server.Handle("start", d.handleStart)
	server.Handle("end", d.handleEnd)
	server.Handle("token", d.handleToken)
	server.Handle("cancel", d.handleCancel)
	server.Handle("set-quit-policy", d.handleSetQuitPolicy)
	server.Handle("session-info", d.handleSessionInfo)
	server.Handle("framework-info", d.handleFrameworkInfo)
	server.Handle("one-key-login", d.handleOneKeyLogin)
	server.Handle("version", d.handleVersion)

	server.HandleStream("subscribe", d.handleSubscribe)
}

// accountRequest is the shape shared by every account-keyed action.
// Fields an action does not use are left zero.
type accountRequest struct {
	Account string          `cbor:"account"`
	Kinds   auth.Kind       `cbor:"kinds"`
	App     auth.AppKind    `cbor:"app"`
	Timeout int32           `cbor:"timeout"`
	Policy  auth.QuitPolicy `cbor:"policy"`
}

func decodeAccountRequest(raw []byte) (accountRequest, error) {
	var request accountRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return request, fmt.Errorf("invalid request: %w", err)
	}
	if request.Account == "" {
		return request, errAccountRequired
	}
	return request, nil
}

// startResponse reports how many factors failed to start.
type startResponse struct {
	Failures int32 `cbor:"failures"`
}

// oneKeyLoginResponse carries the framework's answer to PreOneKeyLogin.
type oneKeyLoginResponse struct {
	Value string `cbor:"value"`
}

func (d *daemon) handleCreate(ctx context.Context, raw []byte) (any, error) {
	request, err := decodeAccountRequest(raw)
	if err != nil {
		return nil, err
	}
	if err := d.backend.Create(ctx, request.Account, request.Kinds, request.App); err != nil {
		return nil, err
	}
	d.logger.Info("session created",
		"account", request.Account,
		"kinds", request.Kinds,
		"app", request.App,
	)
	return nil, nil
}

func (d *daemon) handleDestroy(ctx context.Context, raw []byte) (any, error) {
	request, err := decodeAccountRequest(raw)
	if err != nil {
		return nil, err
	}
	if err := d.backend.Destroy(ctx, request.Account); err != nil {
		return nil, err
	}
	d.logger.Info("session destroyed", "account", request.Account)
	return nil, nil
}

// handleStart passes an empty account through so the backend reports
// the failure on the notification stream as well.
func (d *daemon) handleStart(ctx context.Context, raw []byte) (any, error) {
	var request accountRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	failures, err := d.backend.Start(ctx, request.Account, request.Kinds, request.Timeout)
	if err != nil {
		return nil, err
	}
	return startResponse{Failures: failures}, nil
}

func (d *daemon) handleEnd(ctx context.Context, raw []byte) (any, error) {
	request, err := decodeAccountRequest(raw)
	if err != nil {
		return nil, err
	}
	d.backend.End(ctx, request.Account, request.Kinds)
	return nil, nil
}

// tokenRequest carries a credential. Credential is wiped as soon as it
// has been moved into protected memory.
type tokenRequest struct {
	Account    string    `cbor:"account"`
	Kinds      auth.Kind `cbor:"kinds"`
	Credential []byte    `cbor:"credential"`
}

func (d *daemon) handleToken(ctx context.Context, raw []byte) (any, error) {
	var request tokenRequest
	err := codec.Unmarshal(raw, &request)
	// The raw request holds the credential too.
	secret.Zero(raw)
	if err != nil {
		secret.Zero(request.Credential)
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	credential, err := secret.NewFromBytes(request.Credential)
	if err != nil {
		return nil, fmt.Errorf("protecting credential: %w", err)
	}
	if request.Account == "" {
		credential.Close()
		return nil, errAccountRequired
	}

	d.logger.Debug("token received",
		"account", request.Account,
		"kinds", request.Kinds,
		"bytes", credential.Len(),
	)
	if err := d.backend.Submit(ctx, request.Account, request.Kinds, credential); err != nil {
		return nil, err
	}
	return nil, nil
}

func (d *daemon) handleCancel(ctx context.Context, raw []byte) (any, error) {
	request, err := decodeAccountRequest(raw)
	if err != nil {
		return nil, err
	}
	d.backend.Cancel(ctx, request.Account)
	return nil, nil
}

func (d *daemon) handleSetQuitPolicy(ctx context.Context, raw []byte) (any, error) {
	request, err := decodeAccountRequest(raw)
	if err != nil {
		return nil, err
	}
	if request.Policy != auth.QuitAuto && request.Policy != auth.QuitManual {
		return nil, fmt.Errorf("invalid quit policy %d", request.Policy)
	}
	d.backend.SetQuitPolicy(ctx, request.Account, request.Policy)
	return nil, nil
}

func (d *daemon) handleSessionInfo(ctx context.Context, raw []byte) (any, error) {
	request, err := decodeAccountRequest(raw)
	if err != nil {
		return nil, err
	}
	return d.backend.Session(ctx, request.Account), nil
}

func (d *daemon) handleFrameworkInfo(ctx context.Context, _ []byte) (any, error) {
	return d.backend.Framework(ctx), nil
}

func (d *daemon) handleOneKeyLogin(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		Flag int32 `cbor:"flag"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return oneKeyLoginResponse{Value: d.backend.PreOneKeyLogin(ctx, request.Flag)}, nil
}

func (d *daemon) handleVersion(context.Context, []byte) (any, error) {
	return d.build, nil
}
