// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
)

// Logger returns a debug-level slog.Logger that writes through t.Log.
// Output after the test finishes is discarded.
func Logger(t *testing.T) *slog.Logger {
	t.Helper()
	writer := &testWriter{t: t}
	t.Cleanup(func() { writer.done.Store(true) })
	return slog.New(slog.NewTextHandler(writer, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type testWriter struct {
	t    *testing.T
	done atomic.Bool
}

func (w *testWriter) Write(data []byte) (int, error) {
	if !w.done.Load() {
		w.t.Log(strings.TrimRight(string(data), "\n"))
	}
	return len(data), nil
}

var accountCounter atomic.Uint64

// UniqueAccount returns "prefix-N" with N increasing across the process.
func UniqueAccount(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, accountCounter.Add(1))
}
