// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package notify fans auth events out to any number of subscribers.
//
// Publish never blocks. Each subscriber has a bounded buffer; when it is
// full the event is dropped for that subscriber only and its Dropped
// count grows. A presentation layer that falls behind loses events
// rather than stalling the conversation worker or the remote signal
// dispatcher, and can compare Dropped against zero to know it should
// re-read state through the accessor operations.
package notify

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/authbridge/lib/auth"
)

// DefaultBuffer is the per-subscriber buffer used when Subscribe is
// given a non-positive size.
const DefaultBuffer = 64

// Broadcaster implements auth.Sink by copying each event to every
// current subscriber.
type Broadcaster struct {
	logger *slog.Logger

	mu          sync.Mutex
	subscribers map[*Subscription]struct{}
	closed      bool
}

// NewBroadcaster returns an empty Broadcaster. A nil logger means
// slog.Default().
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		logger:      logger,
		subscribers: make(map[*Subscription]struct{}),
	}
}

// Subscription is one subscriber's view of the stream.
type Subscription struct {
	events      chan auth.Event
	broadcaster *Broadcaster
	dropped     atomic.Uint64
	once        sync.Once
}

// Events delivers published events in order. It is closed when the
// subscription is cancelled or the broadcaster is closed.
func (s *Subscription) Events() <-chan auth.Event { return s.events }

// Dropped returns how many events this subscriber has missed.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Cancel detaches the subscription and closes its channel.
func (s *Subscription) Cancel() {
	s.broadcaster.remove(s)
}

// Subscribe registers a subscriber with the given buffer size. Events
// published after Subscribe returns are delivered; earlier ones are
// not.
func (b *Broadcaster) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	subscription := &Subscription{
		events:      make(chan auth.Event, buffer),
		broadcaster: b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(subscription.events)
		return subscription
	}
	b.subscribers[subscription] = struct{}{}
	return subscription
}

// Publish delivers event to every subscriber with room for it.
func (b *Broadcaster) Publish(event auth.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subscription := range b.subscribers {
		select {
		case subscription.events <- event:
		default:
			dropped := subscription.dropped.Add(1)
			b.logger.Warn("subscriber buffer full, event dropped",
				"type", event.Type,
				"account", event.Account,
				"dropped_total", dropped,
			)
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Close cancels every subscription. Later Subscribe calls return
// already-closed subscriptions and Publish becomes a no-op.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for subscription := range b.subscribers {
		subscription.once.Do(func() { close(subscription.events) })
		delete(b.subscribers, subscription)
	}
}

func (b *Broadcaster) remove(subscription *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[subscription]; !ok {
		return
	}
	delete(b.subscribers, subscription)
	subscription.once.Do(func() { close(subscription.events) })
}
