// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the Unix socket protocol the authbridge
// daemon speaks to its local clients.
//
// Every exchange is CBOR. A client connects, writes one request map
// carrying an "action" field, and the server routes it to the handler
// registered for that action:
//
//   - [SocketServer.Handle] registers a request-response action. The
//     server writes one [Response] envelope and closes the connection.
//   - [SocketServer.HandleStream] registers a streaming action. The
//     handler owns the connection and writes CBOR frames until it
//     returns or the server shuts down.
//
// # Caller filtering
//
// The socket is reachable by any process that can open the path, so
// the server reads the peer's kernel credentials (SO_PEERCRED) before
// reading the request. When [Access].AllowedUIDs is non-empty, callers
// whose UID is not listed receive a "permission denied" response and
// their request is never decoded. Handlers can read the verified
// credentials with [PeerFromContext].
//
// [Client] is the matching client: [Client.Call] for request-response
// actions and [Client.Stream] for streaming ones.
package service
