// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dbusremote

import (
	"context"

	"github.com/godbus/dbus/v5"

	"github.com/bureau-foundation/authbridge/lib/auth"
	"github.com/bureau-foundation/authbridge/lib/session"
)

// encryptRSA is the EncryptKey method selector for RSA.
const encryptRSA int32 = 1

// Controller is one session object.
type Controller struct {
	remote *Remote
	path   dbus.ObjectPath
	object dbus.BusObject
}

func (c *Controller) Path() string { return string(c.path) }

// Valid reads a session property; any failure means the session is
// no longer usable.
func (c *Controller) Valid(ctx context.Context) bool {
	_, err := property[bool](ctx, c.object, SessionInterface, "IsMFA")
	return err == nil
}

func (c *Controller) Start(ctx context.Context, kinds auth.Kind, timeout int32) (int32, error) {
	var failures int32
	if err := c.call(ctx, "Start", int32(kinds), timeout).Store(&failures); err != nil {
		return 0, classify("Start", err)
	}
	return failures, nil
}

func (c *Controller) End(ctx context.Context, kinds auth.Kind) error {
	return classify("End", c.call(ctx, "End", int32(kinds)).Err)
}

func (c *Controller) Quit(ctx context.Context) error {
	return classify("Quit", c.call(ctx, "Quit").Err)
}

func (c *Controller) SetToken(ctx context.Context, kinds auth.Kind, ciphertext []byte) error {
	return classify("SetToken", c.call(ctx, "SetToken", int32(kinds), ciphertext).Err)
}

func (c *Controller) SetQuitPolicy(ctx context.Context, policy auth.QuitPolicy) error {
	return classify("SetQuitFlag", c.call(ctx, "SetQuitFlag", int32(policy)).Err)
}

// PublicKey calls EncryptKey for RSA and returns the key, the third
// value of the reply.
func (c *Controller) PublicKey(ctx context.Context) (string, error) {
	var (
		keyType int32
		methods []int32
		key     string
	)
	if err := c.call(ctx, "EncryptKey", int32(0), []int32{encryptRSA}).Store(&keyType, &methods, &key); err != nil {
		return "", classify("EncryptKey", err)
	}
	return key, nil
}

func (c *Controller) Properties(ctx context.Context) (session.Properties, error) {
	var values map[string]dbus.Variant
	if err := c.object.CallWithContext(ctx, propertiesInterface+".GetAll", 0, SessionInterface).Store(&values); err != nil {
		return session.Properties{}, classify("GetAll", err)
	}
	return decodeProperties(values)
}

func (c *Controller) Watch(handler func(auth.Event)) (func(), error) {
	return c.remote.dispatcher.subscribe(c.path, func(signal *dbus.Signal) {
		for _, event := range sessionEvents(signal) {
			handler(event)
		}
	})
}

// Close is a no-op; the shared connection belongs to the Remote.
func (c *Controller) Close() error { return nil }

func (c *Controller) call(ctx context.Context, method string, args ...any) *dbus.Call {
	return c.object.CallWithContext(ctx, SessionInterface+"."+method, 0, args...)
}
