// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package conversation bridges a blocking native verification stack
// (PAM and anything with its start/converse/end shape) to callers that
// supply credentials asynchronously.
//
// A [Bridge] runs at most one verification worker at a time. The
// worker drives [Handle.Authenticate], which calls back into the
// bridge's [Conversation] once per round of messages. Prompts are
// published as [auth.StatusPrompt] and the worker blocks until the
// caller hands over a credential with [Bridge.Supply] or gives up with
// [Bridge.Cancel]. Informational and error messages are remembered and
// attached to the terminal status.
//
// The only state shared between the caller and the worker is a small
// exchange object holding the pending credential and the cancel flag,
// both behind a mutex with a wakeup channel. A second Supply before the
// first is consumed replaces it; the replaced credential is wiped. The
// worker logs a heartbeat every poll interval while it waits.
//
// When the worker exits it publishes exactly one terminal status
// (success, failure, or cancelled, always with [auth.KindSingle]), runs
// the display wake side effect once, and marks the bridge idle.
package conversation
