// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package display wakes the screen after a local verification attempt.
//
// A lock screen blanks the display while the user is idle; once the
// attempt ends, whatever the outcome, the screen must come back on so
// the user sees the result. The default wake command forces DPMS on
// through xset.
package display

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// DefaultCommand forces DPMS on for the current X display.
var DefaultCommand = []string{"xset", "dpms", "force", "on"}

// DefaultTimeout bounds a single wake command.
const DefaultTimeout = 5 * time.Second

// Waker performs the wake side effect.
type Waker interface {
	Wake(ctx context.Context) error
}

// Nop is a Waker that does nothing.
type Nop struct{}

// Wake returns nil.
func (Nop) Wake(context.Context) error { return nil }

// Command runs an external program to wake the display.
type Command struct {
	// Argv is the program and its arguments. Empty means DefaultCommand.
	Argv []string

	// Timeout bounds one run. Zero means DefaultTimeout.
	Timeout time.Duration

	Logger *slog.Logger
}

// Wake runs the command and waits for it to exit.
func (c *Command) Wake(ctx context.Context) error {
	argv := c.Argv
	if len(argv) == 0 {
		argv = DefaultCommand
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	command := exec.CommandContext(ctx, argv[0], argv[1:]...)
	command.WaitDelay = time.Second
	output, err := command.CombinedOutput()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return fmt.Errorf("wake command %s exited %d: %s", argv[0], exitError.ExitCode(), output)
		}
		return fmt.Errorf("running wake command %s: %w", argv[0], err)
	}
	logger.Debug("display woken", "command", argv[0])
	return nil
}
