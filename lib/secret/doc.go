// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds credentials (passwords, PINs, one-time codes) in
// memory that the Go runtime never manages.
//
// A [Buffer] is backed by an anonymous mmap region that is locked into
// RAM (mlock) and excluded from core dumps (MADV_DONTDUMP). Close zeroes
// and unmaps it. An empty credential is legal (PAM accepts an empty
// password) and is represented by a Buffer with no mapping at all.
//
// Ownership moves with the pointer: the conversation bridge hands the
// pending credential to the reply it builds, the reply's consumer closes
// it. Every constructor's result must be closed exactly once; Close is
// idempotent so defer-and-also-close patterns are safe.
//
// Depends on golang.org/x/sys/unix.
package secret
