// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bureau-foundation/authbridge/lib/auth"
	"github.com/bureau-foundation/authbridge/lib/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublishReachesEverySubscriber(t *testing.T) {
	broadcaster := NewBroadcaster(quietLogger())
	first := broadcaster.Subscribe(4)
	second := broadcaster.Subscribe(4)

	broadcaster.Publish(auth.Event{Type: auth.EventPrompt, Account: "alice", Text: "password:"})

	for _, subscription := range []*Subscription{first, second} {
		event := testutil.RequireReceive(t, subscription.Events(), 5*time.Second, "waiting for event")
		if event.Text != "password:" {
			t.Errorf("event text = %q", event.Text)
		}
	}
}

func TestEventsArriveInOrder(t *testing.T) {
	broadcaster := NewBroadcaster(quietLogger())
	subscription := broadcaster.Subscribe(8)

	for number := int32(1); number <= 5; number++ {
		broadcaster.Publish(auth.Event{Type: auth.EventPinLength, Number: number})
	}
	for want := int32(1); want <= 5; want++ {
		event := testutil.RequireReceive(t, subscription.Events(), 5*time.Second, "event %d", want)
		if event.Number != want {
			t.Fatalf("got event %d, want %d", event.Number, want)
		}
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	broadcaster := NewBroadcaster(quietLogger())
	slow := broadcaster.Subscribe(1)
	fast := broadcaster.Subscribe(16)

	for range 10 {
		broadcaster.Publish(auth.Event{Type: auth.EventFrameworkState})
	}

	if slow.Dropped() != 9 {
		t.Errorf("slow subscriber dropped %d, want 9", slow.Dropped())
	}
	if fast.Dropped() != 0 {
		t.Errorf("fast subscriber dropped %d, want 0", fast.Dropped())
	}
}

func TestCancelClosesChannel(t *testing.T) {
	broadcaster := NewBroadcaster(quietLogger())
	subscription := broadcaster.Subscribe(1)
	subscription.Cancel()
	subscription.Cancel()

	if _, ok := <-subscription.Events(); ok {
		t.Error("channel still open after Cancel")
	}
	if broadcaster.Subscribers() != 0 {
		t.Errorf("Subscribers() = %d after Cancel", broadcaster.Subscribers())
	}
	broadcaster.Publish(auth.Event{Type: auth.EventPrompt})
}

func TestCloseEndsAllSubscriptions(t *testing.T) {
	broadcaster := NewBroadcaster(quietLogger())
	subscription := broadcaster.Subscribe(1)
	broadcaster.Close()

	if _, ok := <-subscription.Events(); ok {
		t.Error("channel still open after Close")
	}
	subscription.Cancel()

	late := broadcaster.Subscribe(1)
	if _, ok := <-late.Events(); ok {
		t.Error("subscription after Close is open")
	}
}
