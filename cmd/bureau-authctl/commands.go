// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/bureau-foundation/authbridge/lib/auth"
	"github.com/bureau-foundation/authbridge/lib/backend"
	"github.com/bureau-foundation/authbridge/lib/service"
)

func runInfo(args []string, stdout io.Writer) error {
	var socketPath string
	flags := commonFlags("info", &socketPath)
	positional, err := parseFlags(flags, args, "<account>", 1, 1)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	var info backend.SessionInfo
	if err := service.NewClient(socketPath).Call(ctx, "session-info", map[string]any{"account": positional[0]}, &info); err != nil {
		return err
	}
	printSessionInfo(stdout, info)
	return nil
}

func printSessionInfo(w io.Writer, info backend.SessionInfo) {
	writer := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintf(writer, "account\t%s\n", info.Account)
	fmt.Fprintf(writer, "active\t%t\n", info.Active)
	fmt.Fprintf(writer, "multi-factor\t%t\n", info.MultiFactor)
	fmt.Fprintf(writer, "fuzzy multi-factor\t%t\n", info.FuzzyMultiFactor)
	fmt.Fprintf(writer, "factors\t%s\n", factorList(info.Factors))
	fmt.Fprintf(writer, "pin length\t%d\n", info.PinLength)
	if info.Prompt != "" {
		fmt.Fprintf(writer, "prompt\t%s\n", info.Prompt)
	}
	if info.Path != "" {
		fmt.Fprintf(writer, "path\t%s\n", info.Path)
	}
	if info.Limits != "" {
		fmt.Fprintf(writer, "limits\t%s\n", info.Limits)
	}
	fmt.Fprintf(writer, "quit policy\t%s\n", quitPolicyName(info.QuitPolicy))
	if info.Method != "" {
		fmt.Fprintf(writer, "method\t%s\n", info.Method)
	}
	writer.Flush()
}

func factorList(factors []auth.FactorInfo) string {
	if len(factors) == 0 {
		return "-"
	}
	names := make([]string, 0, len(factors))
	for _, factor := range factors {
		if factor.Name != "" {
			names = append(names, fmt.Sprintf("%s (%s)", factor.Kind, factor.Name))
		} else {
			names = append(names, factor.Kind.String())
		}
	}
	return strings.Join(names, ", ")
}

func quitPolicyName(policy auth.QuitPolicy) string {
	switch policy {
	case auth.QuitAuto:
		return "auto"
	case auth.QuitManual:
		return "manual"
	}
	return fmt.Sprintf("policy(%d)", int32(policy))
}

func runFramework(args []string, stdout io.Writer) error {
	var socketPath string
	flags := commonFlags("framework", &socketPath)
	if _, err := parseFlags(flags, args, "[flags]", 0, 0); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	var info backend.FrameworkInfo
	if err := service.NewClient(socketPath).Call(ctx, "framework-info", nil, &info); err != nil {
		return err
	}

	writer := tabwriter.NewWriter(stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintf(writer, "backend\t%s\n", info.Backend)
	fmt.Fprintf(writer, "state\t%s\n", frameworkStateName(info.State))
	fmt.Fprintf(writer, "supported factors\t%s\n", info.SupportedFlags)
	if info.SupportedEncrypts != "" {
		fmt.Fprintf(writer, "supported encryption\t%s\n", info.SupportedEncrypts)
	}
	return writer.Flush()
}

func frameworkStateName(state auth.FrameworkState) string {
	switch state {
	case auth.FrameworkAvailable:
		return "available"
	case auth.FrameworkUnavailable:
		return "unavailable"
	}
	return fmt.Sprintf("state(%d)", int32(state))
}

func runWatch(args []string, stdout io.Writer) error {
	var socketPath string
	flags := commonFlags("watch", &socketPath)
	positional, err := parseFlags(flags, args, "[account]", 0, 1)
	if err != nil {
		return err
	}
	fields := map[string]any{}
	if len(positional) == 1 {
		fields["account"] = positional[0]
	}

	ctx, stop := signalContext()
	defer stop()

	stream, err := service.NewClient(socketPath).Stream(ctx, "subscribe", fields)
	if err != nil {
		return fmt.Errorf("subscribing: %w", err)
	}
	defer stream.Close()

	for {
		var frame streamFrame
		if err := stream.Next(&frame); err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading notifications: %w", err)
		}
		switch frame.Type {
		case "event":
			if frame.Event != nil {
				fmt.Fprintln(stdout, formatEvent(*frame.Event))
			}
		case "heartbeat":
			if frame.Dropped > 0 {
				fmt.Fprintf(stdout, "(%d notification(s) dropped)\n", frame.Dropped)
			}
		case "error":
			return fmt.Errorf("subscribe: %s", frame.Message)
		}
	}
}

// formatEvent renders an event as a single line.
func formatEvent(event auth.Event) string {
	prefix := string(event.Type)
	if event.Account != "" {
		prefix = event.Account + " " + prefix
	}

	switch event.Type {
	case auth.EventStatus:
		if event.Status == nil {
			return prefix
		}
		return strings.TrimSpace(fmt.Sprintf("%s %s %s %s", prefix, event.Status.Kind, event.Status.Code, event.Status.Message))
	case auth.EventMultiFactor, auth.EventFuzzyMultiFactor:
		return fmt.Sprintf("%s %t", prefix, event.Flag)
	case auth.EventFactors:
		return fmt.Sprintf("%s %s", prefix, factorList(event.Factors))
	case auth.EventPinLength:
		return fmt.Sprintf("%s %d", prefix, event.Number)
	case auth.EventFrameworkState:
		return fmt.Sprintf("%s %s", prefix, frameworkStateName(auth.FrameworkState(event.Number)))
	case auth.EventSupportedFlags:
		return fmt.Sprintf("%s %s", prefix, auth.Kind(event.Number))
	case auth.EventPrompt, auth.EventSupportedEncrypts:
		return fmt.Sprintf("%s %q", prefix, event.Text)
	}
	return prefix
}
