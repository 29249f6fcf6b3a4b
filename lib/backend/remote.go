// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"

	"github.com/bureau-foundation/authbridge/lib/auth"
	"github.com/bureau-foundation/authbridge/lib/secret"
	"github.com/bureau-foundation/authbridge/lib/session"
)

// Remote drives sessions of the remote authentication daemon.
type Remote struct {
	registry *session.Registry
}

// NewRemote wraps registry.
func NewRemote(registry *session.Registry) *Remote {
	return &Remote{registry: registry}
}

func (r *Remote) Name() string { return "remote" }

func (r *Remote) Create(ctx context.Context, account string, kinds auth.Kind, app auth.AppKind) error {
	return r.registry.Create(ctx, account, kinds, app)
}

func (r *Remote) Start(ctx context.Context, account string, kinds auth.Kind, timeout int32) (int32, error) {
	return r.registry.Start(ctx, account, kinds, timeout)
}

// Submit seals credential and sends it to the account's session.
func (r *Remote) Submit(ctx context.Context, account string, kinds auth.Kind, credential *secret.Buffer) error {
	return r.registry.SupplyToken(ctx, account, kinds, credential)
}

func (r *Remote) End(ctx context.Context, account string, kinds auth.Kind) {
	r.registry.End(ctx, account, kinds)
}

// Cancel ends every factor of the session.
func (r *Remote) Cancel(ctx context.Context, account string) {
	r.registry.End(ctx, account, auth.KindAll)
}

func (r *Remote) Destroy(ctx context.Context, account string) error {
	r.registry.Destroy(ctx, account)
	return nil
}

func (r *Remote) SetQuitPolicy(ctx context.Context, account string, policy auth.QuitPolicy) {
	r.registry.SetQuitPolicy(ctx, account, policy)
}

func (r *Remote) Session(ctx context.Context, account string) SessionInfo {
	path := r.registry.Path(account)
	info := SessionInfo{
		Account: account,
		Active:  path != "",
		Path:    path,
		Limits:  r.registry.Limits(ctx, account),
	}
	if !info.Active {
		return info
	}
	properties := r.registry.Properties(ctx, account)
	info.MultiFactor = properties.MultiFactor
	info.Factors = properties.Factors
	info.FuzzyMultiFactor = properties.FuzzyMultiFactor
	info.PinLength = properties.PinLength
	info.Prompt = properties.Prompt
	info.QuitPolicy = r.registry.QuitPolicy(account)
	return info
}

func (r *Remote) Framework(ctx context.Context) FrameworkInfo {
	return FrameworkInfo{
		Backend:           r.Name(),
		State:             r.registry.FrameworkState(ctx),
		SupportedFlags:    r.registry.SupportedFlags(ctx),
		SupportedEncrypts: r.registry.SupportedEncrypts(ctx),
	}
}

func (r *Remote) PreOneKeyLogin(ctx context.Context, flag int32) string {
	return r.registry.PreOneKeyLogin(ctx, flag)
}

func (r *Remote) Close(ctx context.Context) error {
	r.registry.Close(ctx)
	return nil
}
