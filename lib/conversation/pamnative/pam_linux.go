// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux && cgo

package pamnative

import (
	"errors"
	"fmt"

	"github.com/msteinert/pam/v2"

	"github.com/bureau-foundation/authbridge/lib/conversation"
)

// Native opens PAM transactions.
type Native struct{}

// New returns a PAM-backed Native.
func New() *Native { return &Native{} }

// Start calls pam_start for account against service.
func (*Native) Start(service, account string, conv conversation.Conversation) (conversation.Handle, error) {
	transaction, err := pam.StartFunc(service, account, func(style pam.Style, text string) (string, error) {
		mapped, ok := styles[style]
		if !ok {
			mapped = conversation.Style(style)
		}
		reply, err := respond(conv, mapped, text)
		switch {
		case err == nil:
			return reply, nil
		case errors.Is(err, conversation.ErrAborted):
			return "", pam.ErrAbort
		default:
			return "", pam.ErrConv
		}
	})
	if err != nil {
		return nil, fmt.Errorf("pam_start %s for %q: %w", service, account, err)
	}
	return &handle{transaction: transaction}, nil
}

var styles = map[pam.Style]conversation.Style{
	pam.PromptEchoOff: conversation.StyleEchoOff,
	pam.PromptEchoOn:  conversation.StyleEchoOn,
	pam.ErrorMsg:      conversation.StyleErrorMsg,
	pam.TextInfo:      conversation.StyleTextInfo,
}

type handle struct {
	transaction *pam.Transaction
}

func (h *handle) Authenticate() error {
	if err := h.transaction.Authenticate(0); err != nil {
		return fmt.Errorf("pam_authenticate: %w", err)
	}
	return nil
}

func (h *handle) End(error) error {
	if err := h.transaction.End(); err != nil {
		return fmt.Errorf("pam_end: %w", err)
	}
	return nil
}
