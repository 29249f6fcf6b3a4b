// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pamnative

import (
	"errors"

	"github.com/bureau-foundation/authbridge/lib/conversation"
)

// ErrUnsupported is returned by Start on builds without PAM.
var ErrUnsupported = errors.New("pamnative: PAM requires linux and cgo")

// respond asks conv about one message and converts the reply to the
// string libpam copies. The reply buffer is wiped before returning.
func respond(conv conversation.Conversation, style conversation.Style, text string) (string, error) {
	replies, err := conv.Converse([]conversation.Message{{Style: style, Text: text}})
	if err != nil {
		return "", err
	}
	if len(replies) != 1 {
		for _, reply := range replies {
			if reply.Response != nil {
				reply.Response.Close()
			}
		}
		return "", conversation.ErrConversation
	}

	response := replies[0].Response
	if response == nil {
		return "", nil
	}
	defer response.Close()
	return response.String(), nil
}
