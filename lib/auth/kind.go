// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"fmt"
	"strings"
)

// Kind is a bitmask of authentication factors. A session may combine
// several; the remote service reports status per single factor.
type Kind int32

const (
	KindNone            Kind = 0
	KindPassword        Kind = 1 << 0
	KindFingerprint     Kind = 1 << 1
	KindFace            Kind = 1 << 2
	KindActiveDirectory Kind = 1 << 3
	KindUKey            Kind = 1 << 4
	KindFingerVein      Kind = 1 << 5
	KindIris            Kind = 1 << 6
	KindPIN             Kind = 1 << 7

	// KindSingle tags status from the local PAM conversation path,
	// which does not know which factor the PAM stack used.
	KindSingle Kind = 1 << 29
	KindCustom Kind = 1 << 30

	// KindAll addresses every factor of a session. Ending a session
	// with KindAll aborts it.
	KindAll Kind = -1
)

var kindNames = []struct {
	kind Kind
	name string
}{
	{KindPassword, "password"},
	{KindFingerprint, "fingerprint"},
	{KindFace, "face"},
	{KindActiveDirectory, "active-directory"},
	{KindUKey, "ukey"},
	{KindFingerVein, "finger-vein"},
	{KindIris, "iris"},
	{KindPIN, "pin"},
	{KindSingle, "single"},
	{KindCustom, "custom"},
}

// Has reports whether every bit of other is set in k.
func (k Kind) Has(other Kind) bool {
	return other != KindNone && k&other == other
}

// String renders the mask as names joined by "|", for logs.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindAll:
		return "all"
	}
	var names []string
	remaining := k
	for _, entry := range kindNames {
		if k&entry.kind != 0 {
			names = append(names, entry.name)
			remaining &^= entry.kind
		}
	}
	if remaining != 0 {
		names = append(names, fmt.Sprintf("0x%x", uint32(remaining)))
	}
	return strings.Join(names, "|")
}

// ParseKind converts a name, a "|"-joined list of names, or "all" into
// a Kind. Used by the CLI.
func ParseKind(text string) (Kind, error) {
	switch text {
	case "", "none":
		return KindNone, nil
	case "all":
		return KindAll, nil
	}
	var result Kind
	for _, part := range strings.Split(text, "|") {
		found := false
		for _, entry := range kindNames {
			if entry.name == part {
				result |= entry.kind
				found = true
				break
			}
		}
		if !found {
			return KindNone, fmt.Errorf("unknown authentication kind %q", part)
		}
	}
	return result, nil
}

// Method records which kind of conversation message produced the most
// recent reply on the local path.
type Method int

const (
	MethodUnset Method = iota
	MethodPassword
	MethodBiometric
)

func (m Method) String() string {
	switch m {
	case MethodPassword:
		return "password"
	case MethodBiometric:
		return "biometric"
	default:
		return "unset"
	}
}

// QuitPolicy controls how a remote session exits. With QuitAuto,
// ending the session with KindAll also quits it; with QuitManual the
// caller must quit explicitly.
type QuitPolicy int32

const (
	QuitAuto   QuitPolicy = 0
	QuitManual QuitPolicy = 1
)

// AppKind tells the remote service which application is asking.
type AppKind int32

const (
	AppDefault AppKind = 0
	AppLogin   AppKind = 1
	AppLock    AppKind = 2
)

// FrameworkState is the remote framework's availability.
type FrameworkState int32

const (
	FrameworkAvailable   FrameworkState = 0
	FrameworkUnavailable FrameworkState = 1
)

// FactorInfo describes one factor of a multi-factor session.
type FactorInfo struct {
	Kind Kind   `cbor:"kind"`
	Name string `cbor:"name,omitempty"`
}
