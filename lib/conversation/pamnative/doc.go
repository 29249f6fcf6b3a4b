// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pamnative binds [conversation.Native] to the system PAM
// stack through github.com/msteinert/pam/v2.
//
// libpam hands the Go binding one message at a time, so every call
// into the bridge's Conversation is a one-message round. A cancelled
// wait is returned to PAM as PAM_ABORT, any other conversation failure
// as PAM_CONV_ERR.
//
// The binding needs cgo on Linux. Other builds get a Native whose
// Start always fails with [ErrUnsupported].
package pamnative
