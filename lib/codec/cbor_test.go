// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

type tokenRequest struct {
	Action  string `cbor:"action"`
	Account string `cbor:"account"`
	Kinds   int32  `cbor:"kinds"`
}

func TestMarshalIsDeterministic(t *testing.T) {
	first, err := Marshal(map[string]any{"account": "alice", "action": "start", "kinds": 1})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := Marshal(map[string]any{"kinds": 1, "action": "start", "account": "alice"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("map insertion order changed the encoding:\n%x\n%x", first, second)
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	data, err := Marshal(map[string]any{
		"action":    "token",
		"account":   "bob",
		"kinds":     int32(1),
		"something": "from a newer client",
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var request tokenRequest
	if err := Unmarshal(data, &request); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if request.Account != "bob" || request.Kinds != 1 {
		t.Errorf("decoded %+v", request)
	}
}

func TestStreamOfFrames(t *testing.T) {
	var stream bytes.Buffer
	encoder := NewEncoder(&stream)
	for _, account := range []string{"alice", "bob"} {
		if err := encoder.Encode(tokenRequest{Action: "start", Account: account}); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&stream)
	for _, want := range []string{"alice", "bob"} {
		var frame tokenRequest
		if err := decoder.Decode(&frame); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if frame.Account != want {
			t.Errorf("frame account = %q, want %q", frame.Account, want)
		}
	}
}

func TestUntypedMapsUseStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"outer": map[string]any{"inner": "value"}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := decoded["outer"].(map[string]any); !ok {
		t.Errorf("nested map decoded as %T", decoded["outer"])
	}
}
