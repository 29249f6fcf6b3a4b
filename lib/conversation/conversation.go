// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/authbridge/lib/secret"
)

// MaxMessages is the largest round a conversation accepts, matching
// PAM_MAX_NUM_MSG.
const MaxMessages = 32

// Style is the kind of a conversation message. Values match the PAM
// message styles.
type Style int

const (
	StyleEchoOff  Style = 1
	StyleEchoOn   Style = 2
	StyleErrorMsg Style = 3
	StyleTextInfo Style = 4
)

func (s Style) String() string {
	switch s {
	case StyleEchoOff:
		return "echo_off"
	case StyleEchoOn:
		return "echo_on"
	case StyleErrorMsg:
		return "error_msg"
	case StyleTextInfo:
		return "text_info"
	default:
		return fmt.Sprintf("style(%d)", int(s))
	}
}

// Message is one item the native stack asks the conversation about.
type Message struct {
	Style Style
	Text  string
}

// Reply answers one Message. Response is nil for messages that need no
// content. The native side owns Response once Converse returns and
// must close it.
type Reply struct {
	Response *secret.Buffer
}

// Conversation answers rounds of messages. Converse returns exactly one
// reply per message, or an error and no replies.
type Conversation interface {
	Converse(messages []Message) ([]Reply, error)
}

// Native starts verification transactions.
type Native interface {
	// Start opens a transaction for account against service. The
	// returned Handle belongs to the calling goroutine.
	Start(service, account string, conversation Conversation) (Handle, error)
}

// Handle is one open verification transaction.
type Handle interface {
	// Authenticate runs the verification, calling the conversation as
	// needed. It returns nil on success.
	Authenticate() error

	// End releases the transaction. result is what Authenticate
	// returned.
	End(result error) error
}

var (
	// ErrConversation reports a round the bridge cannot answer: an
	// empty or oversized round, or an unknown message style.
	ErrConversation = errors.New("conversation: protocol error")

	// ErrAborted is returned from Converse when the caller cancelled
	// the attempt while the worker waited for a credential.
	ErrAborted = errors.New("conversation: aborted")
)

// SpawnError reports that a verification worker could not be started.
type SpawnError struct {
	Account string
	Reason  string
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("conversation: cannot start worker for %q: %s", e.Account, e.Reason)
}
