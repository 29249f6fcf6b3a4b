// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth is the vocabulary shared by the conversation bridge, the
// session registry and the daemon: factor kinds, status codes, the
// outward notification [Event], and the [Sink] that receives events.
//
// Numeric values of [Kind], [StatusCode], [QuitPolicy] and [AppKind]
// are the values the remote authentication service uses on the wire;
// they are converted without translation.
//
// Status is the only progress channel. Components publish it to a
// Sink; nothing polls for it.
package auth
