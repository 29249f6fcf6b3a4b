// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the CBOR configuration shared by the authbridge
// daemon and its clients. Requests, responses and subscribe-stream
// frames on the daemon socket are all CBOR values; CBOR is
// self-delimiting, so a stream of frames needs no extra framing.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2). Decoding
// ignores unknown fields so older clients keep working against newer
// daemons, and decodes untyped maps as map[string]any.
package codec
