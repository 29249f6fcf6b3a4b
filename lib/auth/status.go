// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import "fmt"

// StatusCode is the progress or outcome of an authentication attempt.
type StatusCode int32

const (
	StatusSuccess   StatusCode = 0
	StatusFailure   StatusCode = 1
	StatusCancelled StatusCode = 2
	StatusTimeout   StatusCode = 3
	StatusError     StatusCode = 4
	StatusVerify    StatusCode = 5
	StatusException StatusCode = 6
	StatusPrompt    StatusCode = 7
	StatusStarted   StatusCode = 8
	StatusEnded     StatusCode = 9
	StatusLocked    StatusCode = 10
	StatusRecover   StatusCode = 11
	StatusUnlocked  StatusCode = 12
)

var statusNames = map[StatusCode]string{
	StatusSuccess:   "success",
	StatusFailure:   "failure",
	StatusCancelled: "cancelled",
	StatusTimeout:   "timeout",
	StatusError:     "error",
	StatusVerify:    "verify",
	StatusException: "exception",
	StatusPrompt:    "prompt",
	StatusStarted:   "started",
	StatusEnded:     "ended",
	StatusLocked:    "locked",
	StatusRecover:   "recover",
	StatusUnlocked:  "unlocked",
}

func (c StatusCode) String() string {
	if name, ok := statusNames[c]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int32(c))
}

// Terminal reports whether the code ends an attempt.
func (c StatusCode) Terminal() bool {
	switch c {
	case StatusSuccess, StatusFailure, StatusCancelled, StatusTimeout, StatusError, StatusLocked:
		return true
	}
	return false
}

// Status is one progress notification for an account and factor.
type Status struct {
	Account string     `cbor:"account"`
	Kind    Kind       `cbor:"kind"`
	Code    StatusCode `cbor:"code"`
	Message string     `cbor:"message,omitempty"`
}

func (s Status) String() string {
	if s.Message == "" {
		return fmt.Sprintf("%s %s %s", s.Account, s.Kind, s.Code)
	}
	return fmt.Sprintf("%s %s %s: %s", s.Account, s.Kind, s.Code, s.Message)
}
