// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for the authbridge
// daemon and its CLI. These functions centralize the two legitimate
// raw I/O patterns that exist before or after the structured logger:
//
//   - Fatal error reporting to stderr when the logger may not be
//     initialized (pre-logger).
//   - Process exit after an unrecoverable error in main().
//
// Nothing outside main() should call os.Exit; return an error (or an
// [ExitError] when the exit status matters) and let main hand it to
// [Fatal].
package process
