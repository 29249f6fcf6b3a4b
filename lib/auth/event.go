// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auth

// EventType names an outward notification.
type EventType string

const (
	EventStatus            EventType = "status"
	EventMultiFactor       EventType = "multi_factor"
	EventFactors           EventType = "factors"
	EventFuzzyMultiFactor  EventType = "fuzzy_multi_factor"
	EventPinLength         EventType = "pin_length"
	EventPrompt            EventType = "prompt"
	EventFrameworkState    EventType = "framework_state"
	EventLimits            EventType = "limits"
	EventSupportedFlags    EventType = "supported_flags"
	EventSupportedEncrypts EventType = "supported_encrypts"
)

// Event is an outward notification. Which payload field is meaningful
// depends on Type:
//
//	status                  Status
//	multi_factor            Flag
//	fuzzy_multi_factor      Flag
//	factors                 Factors
//	pin_length              Number
//	prompt                  Text
//	framework_state         Number
//	limits                  Account (whose limits changed)
//	supported_flags         Number (a Kind mask)
//	supported_encrypts      Text
//
// Framework-level events carry no Account except limits.
type Event struct {
	Type    EventType    `cbor:"type"`
	Account string       `cbor:"account,omitempty"`
	Status  *Status      `cbor:"status,omitempty"`
	Flag    bool         `cbor:"flag,omitempty"`
	Number  int32        `cbor:"number,omitempty"`
	Text    string       `cbor:"text,omitempty"`
	Factors []FactorInfo `cbor:"factors,omitempty"`
}

// StatusEvent wraps a Status.
func StatusEvent(status Status) Event {
	return Event{Type: EventStatus, Account: status.Account, Status: &status}
}

// Sink receives events. Publish must not block for long: it is called
// from the conversation worker and from remote signal dispatch.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Publish calls f.
func (f SinkFunc) Publish(event Event) { f(event) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})
