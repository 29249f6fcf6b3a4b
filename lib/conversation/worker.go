// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/bureau-foundation/authbridge/lib/auth"
	"github.com/bureau-foundation/authbridge/lib/secret"
)

// worker runs one verification attempt. Converse is called by the
// native stack on the goroutine running Authenticate, so lastMessage
// needs no lock.
type worker struct {
	bridge   *Bridge
	account  string
	attempt  string
	exchange *exchange
	done     chan struct{}

	lastMessage string
	aborted     atomic.Bool

	// finished is set under bridge.mu once the outcome is known.
	finished bool
}

func newWorker(bridge *Bridge, account string) *worker {
	return &worker{
		bridge:   bridge,
		account:  account,
		attempt:  uuid.NewString(),
		exchange: newExchange(),
		done:     make(chan struct{}),
	}
}

func (w *worker) run() {
	defer close(w.done)
	logger := w.bridge.logger.With("account", w.account, "attempt", w.attempt)

	code := w.verify()
	logger.Info("verification finished", "status", code)
	w.bridge.finish(w)
	w.bridge.publish(w.account, code, w.lastMessage)

	if err := w.bridge.waker.Wake(context.Background()); err != nil {
		logger.Warn("waking display", "error", err)
	}
	w.bridge.release(w)
}

func (w *worker) verify() auth.StatusCode {
	logger := w.bridge.logger.With("account", w.account, "attempt", w.attempt)

	handle, err := w.bridge.native.Start(w.bridge.service, w.account, w)
	if err != nil {
		logger.Error("starting verification", "error", err)
		return auth.StatusFailure
	}

	result := handle.Authenticate()
	if result != nil {
		logger.Warn("verification rejected", "error", result)
	} else {
		logger.Debug("verification accepted")
	}
	if err := handle.End(result); err != nil {
		logger.Error("ending verification", "error", err)
	}

	switch {
	case w.aborted.Load() || w.exchange.wasCancelled():
		return auth.StatusCancelled
	case result != nil:
		return auth.StatusFailure
	default:
		return auth.StatusSuccess
	}
}

// Converse answers one round. If any message fails, replies already
// built for the round are wiped and none are returned.
func (w *worker) Converse(messages []Message) ([]Reply, error) {
	if len(messages) == 0 || len(messages) > MaxMessages {
		w.bridge.logger.Warn("rejecting conversation round", "account", w.account, "messages", len(messages))
		return nil, fmt.Errorf("%w: %d messages in round", ErrConversation, len(messages))
	}

	replies := make([]Reply, 0, len(messages))
	for _, message := range messages {
		reply, err := w.answer(message)
		if err != nil {
			releaseReplies(replies)
			return nil, err
		}
		replies = append(replies, reply)
	}
	return replies, nil
}

func (w *worker) answer(message Message) (Reply, error) {
	switch message.Style {
	case StyleEchoOn, StyleEchoOff:
		w.bridge.logger.Debug("prompt", "account", w.account, "style", message.Style, "text", message.Text)
		w.bridge.publish(w.account, auth.StatusPrompt, message.Text)
		credential, err := w.awaitCredential()
		if err != nil {
			return Reply{}, err
		}
		w.bridge.method.Store(int32(auth.MethodPassword))
		return Reply{Response: credential}, nil

	case StyleErrorMsg:
		w.bridge.logger.Debug("error message", "account", w.account, "text", message.Text)
		w.lastMessage = message.Text
		w.bridge.method.Store(int32(auth.MethodBiometric))
		return Reply{}, nil

	case StyleTextInfo:
		w.bridge.logger.Debug("info message", "account", w.account, "text", message.Text)
		w.lastMessage = message.Text
		return Reply{}, nil

	default:
		w.bridge.logger.Warn("unsupported message style", "account", w.account, "style", message.Style)
		return Reply{}, fmt.Errorf("%w: unsupported style %s", ErrConversation, message.Style)
	}
}

// awaitCredential blocks until the caller supplies a credential or
// cancels.
func (w *worker) awaitCredential() (*secret.Buffer, error) {
	ticker := w.bridge.clock.NewTicker(w.bridge.pollInterval)
	defer ticker.Stop()

	polls := 0
	for {
		credential, cancelled := w.exchange.take()
		if cancelled {
			w.aborted.Store(true)
			w.bridge.logger.Info("verification aborted while waiting", "account", w.account, "attempt", w.attempt)
			return nil, ErrAborted
		}
		if credential != nil {
			return credential, nil
		}

		select {
		case <-w.exchange.signal:
		case <-ticker.C:
			polls++
			w.bridge.logger.Debug("waiting for credential", "account", w.account, "attempt", w.attempt, "polls", polls)
		}
	}
}

func releaseReplies(replies []Reply) {
	for _, reply := range replies {
		if reply.Response != nil {
			reply.Response.Close()
		}
	}
}
