// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session tracks remote authentication sessions, one per
// account, and routes operations to them.
//
// The remote side is consumed through [Remote] (the top-level
// authentication service) and [Controller] (one session). The D-Bus
// implementation lives in the dbusremote subpackage.
//
// Every operation except [Registry.Create] is a no-op for an account
// without a session: writes return nil and reads return the zero
// value. Remote failures on fire-and-forget writes (end, quit, quit
// policy) and on reads are logged and absorbed; callers follow the
// notification stream published to the configured [auth.Sink].
//
// [Registry.SupplyToken] never sends a plaintext credential. It
// fetches the session's public key (retrying with bounded backoff
// while the remote key endpoint is not ready), seals the credential
// with lib/seal, and sends only the ciphertext. A sealing failure
// aborts delivery.
package session
