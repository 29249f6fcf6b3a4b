// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/authbridge/lib/config"
	"github.com/bureau-foundation/authbridge/lib/process"
	"github.com/bureau-foundation/authbridge/lib/service"
	"github.com/bureau-foundation/authbridge/lib/version"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		process.Fatal(err)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) < 1 {
		printUsage()
		return fmt.Errorf("subcommand required")
	}

	subcommand := args[0]
	switch subcommand {
	case "login":
		return runLogin(args[1:], stdout)
	case "cancel":
		return runAccountAction("cancel", args[1:], stdout)
	case "destroy":
		return runAccountAction("destroy", args[1:], stdout)
	case "info":
		return runInfo(args[1:], stdout)
	case "framework":
		return runFramework(args[1:], stdout)
	case "watch":
		return runWatch(args[1:], stdout)
	case "seal-password":
		return runSealPassword(args[1:], stdout)
	case "version":
		return runVersion(args[1:], stdout)
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand: %q", subcommand)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: bureau-authctl <subcommand> [flags]

Subcommands:
  login <account>      Authenticate an account interactively
  cancel <account>     Cancel the running attempt
  destroy <account>    Destroy the account's session
  info <account>       Print session properties
  framework            Print framework state and capabilities
  watch [account]      Print notifications as they arrive
  seal-password        Write an age-encrypted password file for login
  version              Print client and daemon versions

Run 'bureau-authctl <subcommand> --help' for subcommand flags.
`)
}

// newFlags returns a subcommand flag set whose usage lists its flags.
func newFlags(name string) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: bureau-authctl %s [flags]\n\nFlags:\n", name)
		flags.PrintDefaults()
	}
	return flags
}

// commonFlags returns a flag set carrying --socket.
func commonFlags(name string, socketPath *string) *pflag.FlagSet {
	flags := newFlags(name)
	flags.StringVar(socketPath, "socket", defaultSocketPath(), "path to the bureau-authbridge socket")
	return flags
}

func defaultSocketPath() string {
	if path := os.Getenv("AUTHBRIDGE_SOCKET"); path != "" {
		return path
	}
	return config.DefaultSocketPath
}

// parseFlags parses args and checks the positional argument count
// against usage. A --help request is reported as errHelp so the caller
// exits cleanly.
func parseFlags(flags *pflag.FlagSet, args []string, usage string, minPositional, maxPositional int) ([]string, error) {
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, errHelp
		}
		return nil, err
	}
	positional := flags.Args()
	if len(positional) < minPositional || len(positional) > maxPositional {
		flags.Usage()
		return nil, fmt.Errorf("usage: bureau-authctl %s %s", flags.Name(), usage)
	}
	return positional, nil
}

// errHelp ends a subcommand after its usage was printed.
var errHelp = &process.ExitError{Code: 0}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runAccountAction(action string, args []string, stdout io.Writer) error {
	var socketPath string
	flags := commonFlags(action, &socketPath)
	positional, err := parseFlags(flags, args, "<account>", 1, 1)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	client := service.NewClient(socketPath)
	if err := client.Call(ctx, action, map[string]any{"account": positional[0]}, nil); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s: %s\n", positional[0], action)
	return nil
}

func runVersion(args []string, stdout io.Writer) error {
	var socketPath string
	flags := commonFlags("version", &socketPath)
	if _, err := parseFlags(flags, args, "[flags]", 0, 0); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "bureau-authctl %s\n", version.Info())

	ctx, stop := signalContext()
	defer stop()

	var daemon version.Build
	if err := service.NewClient(socketPath).Call(ctx, "version", nil, &daemon); err != nil {
		return fmt.Errorf("querying daemon version: %w", err)
	}
	dirty := ""
	if daemon.Dirty {
		dirty = "-dirty"
	}
	fmt.Fprintf(stdout, "bureau-authbridge %s (%s%s, %s)\n", daemon.Version, daemon.Commit, dirty, daemon.Go)
	if daemon.Digest != "" {
		fmt.Fprintf(stdout, "  digest: %s\n", daemon.Digest)
	}
	return nil
}
