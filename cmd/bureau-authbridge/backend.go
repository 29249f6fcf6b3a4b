// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/bureau-foundation/authbridge/lib/auth"
	"github.com/bureau-foundation/authbridge/lib/backend"
	"github.com/bureau-foundation/authbridge/lib/config"
	"github.com/bureau-foundation/authbridge/lib/conversation"
	"github.com/bureau-foundation/authbridge/lib/conversation/pamnative"
	"github.com/bureau-foundation/authbridge/lib/display"
	"github.com/bureau-foundation/authbridge/lib/session"
	"github.com/bureau-foundation/authbridge/lib/session/dbusremote"
)

// newBackend builds the backend cfg selects. cleanup releases whatever
// the backend holds beyond its own Close, and must run after it.
func newBackend(cfg *config.Config, sink auth.Sink, logger *slog.Logger) (backend.Backend, func(), error) {
	switch cfg.Backend {
	case config.BackendLocal:
		bridge, err := conversation.New(localBridgeConfig(cfg, sink, logger))
		if err != nil {
			return nil, nil, err
		}
		return backend.NewLocal(bridge), func() {}, nil

	case config.BackendRemote:
		remote, err := dbusremote.Dial(dbusremote.Config{
			Bus:     cfg.Remote.Bus,
			Service: cfg.Remote.Service,
			Path:    cfg.Remote.Path,
			Logger:  logger,
		})
		if err != nil {
			return nil, nil, err
		}
		registry, err := session.New(session.Config{
			Remote:             remote,
			Sink:               sink,
			Logger:             logger,
			CallTimeout:        cfg.Remote.CallTimeout,
			KeyFetchAttempts:   cfg.Remote.KeyFetchAttempts,
			KeyFetchBackoff:    cfg.Remote.KeyFetchBackoff,
			KeyFetchMaxBackoff: cfg.Remote.KeyFetchMaxBackoff,
		})
		if err != nil {
			remote.Close()
			return nil, nil, err
		}
		cleanup := func() {
			if err := remote.Close(); err != nil {
				logger.Debug("closing bus connection", "error", err)
			}
		}
		return backend.NewRemote(registry), cleanup, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// localBridgeConfig maps the local section onto a bridge config. The
// desktop service is chosen when the profile marker file exists.
func localBridgeConfig(cfg *config.Config, sink auth.Sink, logger *slog.Logger) conversation.Config {
	desktop := false
	if cfg.Local.DesktopProfile != "" {
		if _, err := os.Stat(cfg.Local.DesktopProfile); err == nil {
			desktop = true
		}
	}

	var waker display.Waker = display.Nop{}
	if len(cfg.Local.WakeCommand) > 0 {
		waker = &display.Command{
			Argv:    cfg.Local.WakeCommand,
			Timeout: cfg.Local.WakeTimeout,
			Logger:  logger,
		}
	}

	return conversation.Config{
		Native:         pamnative.New(),
		DesktopProfile: desktop,
		DesktopService: cfg.Local.DesktopService,
		SystemService:  cfg.Local.SystemService,
		PollInterval:   cfg.Local.PollInterval,
		Sink:           sink,
		Waker:          waker,
		Logger:         logger,
	}
}
