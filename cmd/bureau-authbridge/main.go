// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/authbridge/lib/clock"
	"github.com/bureau-foundation/authbridge/lib/config"
	"github.com/bureau-foundation/authbridge/lib/notify"
	"github.com/bureau-foundation/authbridge/lib/process"
	"github.com/bureau-foundation/authbridge/lib/service"
	"github.com/bureau-foundation/authbridge/lib/version"
)

// shutdownTimeout bounds backend teardown after the socket server has
// drained.
const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		socketPath  string
		backendName string
		debug       bool
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("bureau-authbridge", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the YAML config file (default: $AUTHBRIDGE_CONFIG)")
	flagSet.StringVar(&socketPath, "socket", "", "override socket_path")
	flagSet.StringVar(&backendName, "backend", "", "override backend (remote or local)")
	flagSet.BoolVar(&debug, "debug", false, "log at debug level")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Println("bureau-authbridge", version.Full())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if socketPath != "" {
		cfg.SocketPath = socketPath
	}
	if backendName != "" {
		cfg.Backend = config.Backend(backendName)
	}
	if debug {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broadcaster := notify.NewBroadcaster(logger)
	defer broadcaster.Close()

	selected, cleanup, err := newBackend(cfg, broadcaster, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	d := &daemon{
		backend:     selected,
		broadcaster: broadcaster,
		clock:       clock.Real(),
		logger:      logger,
		build:       version.Current(),
		heartbeat:   heartbeatInterval,
	}

	access := &service.Access{AllowedUIDs: cfg.AllowedUIDs}
	if len(cfg.AllowedUIDs) > 0 {
		// Peer filtering replaces file permissions as the gate.
		access.Mode = 0o666
	}
	server := service.NewSocketServer(cfg.SocketPath, logger, access)
	d.registerActions(server)

	logger.Info("authbridge starting",
		"backend", selected.Name(),
		"socket", cfg.SocketPath,
		"version", version.Info(),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Serve(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		// Closes every subscription, so subscribe streams return and
		// Serve can drain.
		broadcaster.Close()
		return nil
	})

	serveErr := group.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := selected.Close(closeCtx); err != nil {
		logger.Error("closing backend", "error", err)
	}

	return serveErr
}

// loadConfig reads the file named by --config, or falls back to
// AUTHBRIDGE_CONFIG and the defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
