// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux || !cgo

package pamnative

import "github.com/bureau-foundation/authbridge/lib/conversation"

// Native reports ErrUnsupported from every Start.
type Native struct{}

// New returns a Native that cannot open transactions.
func New() *Native { return &Native{} }

// Start returns ErrUnsupported.
func (*Native) Start(string, string, conversation.Conversation) (conversation.Handle, error) {
	return nil, ErrUnsupported
}
