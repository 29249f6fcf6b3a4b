// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dbusremote implements [session.Remote] and
// [session.Controller] against the deepin authentication daemon on
// D-Bus (com.deepin.daemon.Authenticate).
//
// One connection serves every session. A single dispatcher goroutine
// reads the connection's signal channel and routes each signal by
// object path to the handlers registered through Watch and
// WatchFramework. Session state changes arrive as the standard
// PropertiesChanged signal plus the session's own Status signal.
//
// Method errors naming an unknown object, interface, method or service
// are reported as [session.ErrSessionGone] so the registry drops the
// entry.
package dbusremote
