// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dbusremote

import (
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/bureau-foundation/authbridge/lib/auth"
	"github.com/bureau-foundation/authbridge/lib/session"
)

// goneErrors are the D-Bus error names that mean the object we talk to
// no longer exists.
var goneErrors = map[string]bool{
	"org.freedesktop.DBus.Error.UnknownObject":    true,
	"org.freedesktop.DBus.Error.UnknownInterface": true,
	"org.freedesktop.DBus.Error.UnknownMethod":    true,
	"org.freedesktop.DBus.Error.ServiceUnknown":   true,
}

// classify wraps a method error, marking errors for vanished objects
// with session.ErrSessionGone. A nil err stays nil.
func classify(method string, err error) error {
	if err == nil {
		return nil
	}
	if goneErrors[errorName(err)] {
		return fmt.Errorf("dbusremote: %s: %w: %w", method, session.ErrSessionGone, err)
	}
	return fmt.Errorf("dbusremote: %s: %w", method, err)
}

func errorName(err error) string {
	var value dbus.Error
	if errors.As(err, &value) {
		return value.Name
	}
	var pointer *dbus.Error
	if errors.As(err, &pointer) && pointer != nil {
		return pointer.Name
	}
	return ""
}

// sessionEvents turns a session signal into events. Unknown signals
// and properties yield nothing.
func sessionEvents(signal *dbus.Signal) []auth.Event {
	switch signal.Name {
	case SessionInterface + ".Status":
		var (
			kind, code int32
			message    string
		)
		if err := dbus.Store(signal.Body, &kind, &code, &message); err != nil {
			return nil
		}
		return []auth.Event{auth.StatusEvent(auth.Status{
			Kind:    auth.Kind(kind),
			Code:    auth.StatusCode(code),
			Message: message,
		})}

	case propertiesInterface + ".PropertiesChanged":
		changed, ok := changedProperties(signal, SessionInterface)
		if !ok {
			return nil
		}
		var events []auth.Event
		for name, variant := range changed {
			if event, ok := sessionPropertyEvent(name, variant.Value()); ok {
				events = append(events, event)
			}
		}
		return events
	}
	return nil
}

func sessionPropertyEvent(name string, value any) (auth.Event, bool) {
	switch name {
	case "IsMFA":
		flag, ok := value.(bool)
		return auth.Event{Type: auth.EventMultiFactor, Flag: flag}, ok
	case "IsFuzzyMFA":
		flag, ok := value.(bool)
		return auth.Event{Type: auth.EventFuzzyMultiFactor, Flag: flag}, ok
	case "PINLen":
		number, ok := value.(int32)
		return auth.Event{Type: auth.EventPinLength, Number: number}, ok
	case "Prompt":
		text, ok := value.(string)
		return auth.Event{Type: auth.EventPrompt, Text: text}, ok
	case "FactorsInfo":
		factors, err := decodeFactors(value)
		return auth.Event{Type: auth.EventFactors, Factors: factors}, err == nil
	}
	return auth.Event{}, false
}

// frameworkEvents turns a signal of the top-level object into events.
func frameworkEvents(signal *dbus.Signal) []auth.Event {
	switch signal.Name {
	case Interface + ".LimitUpdated":
		var account string
		if err := dbus.Store(signal.Body, &account); err != nil {
			return nil
		}
		return []auth.Event{{Type: auth.EventLimits, Account: account}}

	case propertiesInterface + ".PropertiesChanged":
		changed, ok := changedProperties(signal, Interface)
		if !ok {
			return nil
		}
		var events []auth.Event
		for name, variant := range changed {
			switch value := variant.Value().(type) {
			case int32:
				switch name {
				case "FrameworkState":
					events = append(events, auth.Event{Type: auth.EventFrameworkState, Number: value})
				case "SupportedFlags":
					events = append(events, auth.Event{Type: auth.EventSupportedFlags, Number: value})
				}
			case string:
				if name == "SupportEncrypts" {
					events = append(events, auth.Event{Type: auth.EventSupportedEncrypts, Text: value})
				}
			}
		}
		return events
	}
	return nil
}

// changedProperties extracts the changed-values map of a
// PropertiesChanged signal for iface.
func changedProperties(signal *dbus.Signal, iface string) (map[string]dbus.Variant, bool) {
	if len(signal.Body) < 2 {
		return nil, false
	}
	name, ok := signal.Body[0].(string)
	if !ok || name != iface {
		return nil, false
	}
	changed, ok := signal.Body[1].(map[string]dbus.Variant)
	return changed, ok
}

// decodeProperties converts a GetAll reply.
func decodeProperties(values map[string]dbus.Variant) (session.Properties, error) {
	var properties session.Properties
	for name, variant := range values {
		event, ok := sessionPropertyEvent(name, variant.Value())
		if !ok {
			if name == "FactorsInfo" {
				return session.Properties{}, fmt.Errorf("dbusremote: FactorsInfo has type %s", variant.Signature())
			}
			continue
		}
		switch event.Type {
		case auth.EventMultiFactor:
			properties.MultiFactor = event.Flag
		case auth.EventFuzzyMultiFactor:
			properties.FuzzyMultiFactor = event.Flag
		case auth.EventPinLength:
			properties.PinLength = event.Number
		case auth.EventPrompt:
			properties.Prompt = event.Text
		case auth.EventFactors:
			properties.Factors = event.Factors
		}
	}
	return properties, nil
}

// decodeFactors reads an a(is) value: each factor's kind and name.
func decodeFactors(value any) ([]auth.FactorInfo, error) {
	var items [][]any
	switch typed := value.(type) {
	case [][]any:
		items = typed
	case []any:
		for _, item := range typed {
			fields, ok := item.([]any)
			if !ok {
				return nil, fmt.Errorf("dbusremote: factor entry has type %T", item)
			}
			items = append(items, fields)
		}
	default:
		return nil, fmt.Errorf("dbusremote: factors have type %T", value)
	}

	factors := make([]auth.FactorInfo, 0, len(items))
	for _, fields := range items {
		if len(fields) < 1 {
			return nil, errors.New("dbusremote: empty factor entry")
		}
		kind, ok := fields[0].(int32)
		if !ok {
			return nil, fmt.Errorf("dbusremote: factor kind has type %T", fields[0])
		}
		factor := auth.FactorInfo{Kind: auth.Kind(kind)}
		if len(fields) > 1 {
			factor.Name, _ = fields[1].(string)
		}
		factors = append(factors, factor)
	}
	return factors, nil
}
