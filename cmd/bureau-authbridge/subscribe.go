// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"net"
	"time"

	"github.com/bureau-foundation/authbridge/lib/auth"
	"github.com/bureau-foundation/authbridge/lib/codec"
)

const (
	// heartbeatInterval is the time between heartbeat frames on a
	// subscribe stream. A client should consider the connection dead
	// if no frame of any type arrives within 2x this interval.
	heartbeatInterval = 10 * time.Second

	// subscriberBuffer is the per-stream event backlog. Events that
	// find it full are dropped and counted.
	subscriberBuffer = 64

	// frameWriteTimeout bounds each frame write so a stalled client
	// cannot hold its handler forever.
	frameWriteTimeout = 10 * time.Second
)

// subscribeRequest optionally narrows the stream to one account.
// Framework events, which carry no account, are always delivered.
type subscribeRequest struct {
	Account string `cbor:"account"`
}

// subscribeFrame is a single CBOR value written on the subscribe
// stream. The Type field discriminates frame semantics:
//
//   - "ack": the subscription is registered; every event published
//     after this frame is delivered unless dropped
//   - "event": one notification (Event populated)
//   - "heartbeat": connection liveness probe (Dropped populated)
//   - "error": terminal error, connection will close (Message populated)
type subscribeFrame struct {
	Type    string      `cbor:"type"`
	Event   *auth.Event `cbor:"event,omitempty"`
	Dropped uint64      `cbor:"dropped,omitempty"`
	Message string      `cbor:"message,omitempty"`
}

// handleSubscribe is the stream handler for the "subscribe" action.
func (d *daemon) handleSubscribe(ctx context.Context, raw []byte, conn net.Conn) {
	encoder := codec.NewEncoder(conn)
	write := func(frame subscribeFrame) error {
		conn.SetWriteDeadline(time.Now().Add(frameWriteTimeout))
		return encoder.Encode(frame)
	}

	var request subscribeRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		write(subscribeFrame{Type: "error", Message: "invalid request: " + err.Error()})
		return
	}

	subscription := d.broadcaster.Subscribe(subscriberBuffer)
	defer subscription.Cancel()

	if err := write(subscribeFrame{Type: "ack"}); err != nil {
		return
	}

	d.logger.Info("subscribe stream started", "account", request.Account)
	defer func() {
		d.logger.Info("subscribe stream ended",
			"account", request.Account,
			"dropped", subscription.Dropped(),
		)
	}()

	heartbeat := d.clock.NewTicker(d.heartbeat)
	defer heartbeat.Stop()

	events := subscription.Events()
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			if request.Account != "" && event.Account != "" && event.Account != request.Account {
				continue
			}
			if err := write(subscribeFrame{Type: "event", Event: &event}); err != nil {
				d.logger.Debug("subscribe stream write error", "error", err)
				return
			}

		case <-heartbeat.C:
			if err := write(subscribeFrame{Type: "heartbeat", Dropped: subscription.Dropped()}); err != nil {
				d.logger.Debug("subscribe stream write error", "error", err)
				return
			}
		}
	}
}
