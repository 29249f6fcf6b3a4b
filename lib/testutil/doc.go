// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for authbridge packages.
//
// [RequireReceive], [RequireClosed], and [RequireNoReceive] wrap the
// select-with-deadline pattern so individual tests never call
// time.After directly. Production code under test always runs on an
// injected [clock.Clock]; the deadlines here are only a hang guard.
//
// [SocketDir] returns a short directory under /tmp for Unix sockets,
// whose paths are limited to 108 bytes.
//
// [Logger] routes slog output through t.Log so failing tests show
// what the component logged.
//
// [UniqueAccount] hands out distinct account names for tests that
// share a registry.
//
// Helpers call t.Fatalf on failure rather than returning errors.
//
// [clock.Clock]: github.com/bureau-foundation/authbridge/lib/clock.Clock
package testutil
