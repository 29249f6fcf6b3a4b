// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/bureau-foundation/authbridge/lib/auth"
	"github.com/bureau-foundation/authbridge/lib/process"
	"github.com/bureau-foundation/authbridge/lib/seal"
	"github.com/bureau-foundation/authbridge/lib/secret"
	"github.com/bureau-foundation/authbridge/lib/service"
)

// Exit statuses for login outcomes.
const (
	exitFailed    = 2
	exitCancelled = 3
	exitLocked    = 4
)

// cleanupTimeout bounds the cancel and destroy calls made after the
// login context is gone.
const cleanupTimeout = 5 * time.Second

// streamFrame is one frame of the daemon's subscribe stream.
type streamFrame struct {
	Type    string      `cbor:"type"`
	Event   *auth.Event `cbor:"event,omitempty"`
	Dropped uint64      `cbor:"dropped,omitempty"`
	Message string      `cbor:"message,omitempty"`
}

type loginOptions struct {
	account string
	kinds   auth.Kind
	app     auth.AppKind
	timeout int32

	// keep leaves the session in place after login returns.
	keep bool
}

// passwordReader returns the answer to one prompt. The caller owns
// the returned buffer.
type passwordReader func(prompt string) (*secret.Buffer, error)

func runLogin(args []string, stdout io.Writer) error {
	var (
		socketPath   string
		kindsText    string
		app          string
		timeout      int32
		passwordFile string
		identityFile string
		keep         bool
	)
	flags := commonFlags("login", &socketPath)
	flags.StringVar(&kindsText, "kinds", "password", `factors to start, "|"-separated, or "all"`)
	flags.StringVar(&app, "app", "login", "requesting application: default, login or lock")
	flags.Int32Var(&timeout, "timeout", -1, "per-attempt timeout in seconds passed to the daemon (-1 for none)")
	flags.StringVar(&passwordFile, "password-file", "", `read answers from this file instead of the terminal ("-" for the terminal)`)
	flags.StringVar(&identityFile, "identity", "", "age identity file; --password-file is then an age-encrypted file (see seal-password)")
	flags.BoolVar(&keep, "keep", false, "keep the session after login finishes")
	positional, err := parseFlags(flags, args, "<account>", 1, 1)
	if err != nil {
		return err
	}

	if identityFile != "" && (passwordFile == "" || passwordFile == "-") {
		return fmt.Errorf("--identity requires --password-file")
	}

	kinds, err := auth.ParseKind(kindsText)
	if err != nil {
		return err
	}
	if kinds == auth.KindNone {
		return fmt.Errorf("--kinds must name at least one factor")
	}
	appKind, err := parseApp(app)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	options := loginOptions{
		account: positional[0],
		kinds:   kinds,
		app:     appKind,
		timeout: timeout,
		keep:    keep,
	}
	err = login(ctx, service.NewClient(socketPath), options, newPasswordReader(passwordFile, identityFile), os.Stderr)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s: authenticated\n", options.account)
	return nil
}

func parseApp(name string) (auth.AppKind, error) {
	switch name {
	case "default":
		return auth.AppDefault, nil
	case "login":
		return auth.AppLogin, nil
	case "lock":
		return auth.AppLock, nil
	}
	return auth.AppDefault, fmt.Errorf("unknown app %q (want default, login or lock)", name)
}

// login runs one authentication attempt for options.account. It
// returns nil once the attempt succeeds and an [process.ExitError]
// carrying the outcome's status otherwise.
func login(ctx context.Context, client *service.Client, options loginOptions, readPassword passwordReader, stderr io.Writer) error {
	account := options.account

	// Subscribe first: the daemon acknowledges only once the
	// subscription is registered, so no prompt can be missed.
	stream, err := client.Stream(ctx, "subscribe", map[string]any{"account": account})
	if err != nil {
		return fmt.Errorf("subscribing: %w", err)
	}
	defer stream.Close()

	var ack streamFrame
	if err := stream.Next(&ack); err != nil {
		return fmt.Errorf("reading subscribe ack: %w", err)
	}
	if ack.Type != "ack" {
		return fmt.Errorf("subscribe: unexpected %q frame: %s", ack.Type, ack.Message)
	}

	if err := client.Call(ctx, "create", map[string]any{
		"account": account,
		"kinds":   int32(options.kinds),
		"app":     int32(options.app),
	}, nil); err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	if !options.keep {
		defer func() {
			cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
			defer cancel()
			if err := client.Call(cleanupCtx, "destroy", map[string]any{"account": account}, nil); err != nil {
				fmt.Fprintf(stderr, "warning: destroying session: %v\n", err)
			}
		}()
	}

	var started struct {
		Failures int32 `cbor:"failures"`
	}
	if err := client.Call(ctx, "start", map[string]any{
		"account": account,
		"kinds":   int32(options.kinds),
		"timeout": options.timeout,
	}, &started); err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	if started.Failures > 0 {
		fmt.Fprintf(stderr, "warning: %d factor(s) failed to start\n", started.Failures)
	}

	attempt := &loginAttempt{
		options: options,
		pending: options.kinds,
	}
	for {
		var frame streamFrame
		if err := stream.Next(&frame); err != nil {
			if ctx.Err() != nil {
				return interrupted(ctx, client, account)
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("daemon closed the notification stream")
			}
			return fmt.Errorf("reading notifications: %w", err)
		}

		switch frame.Type {
		case "heartbeat":
			if frame.Dropped > 0 {
				fmt.Fprintf(stderr, "warning: daemon dropped %d notification(s)\n", frame.Dropped)
			}
			continue
		case "error":
			return fmt.Errorf("subscribe: %s", frame.Message)
		case "event":
		default:
			continue
		}
		if frame.Event == nil {
			continue
		}

		event := *frame.Event
		if event.Type != auth.EventStatus || event.Status == nil {
			attempt.observe(event)
			continue
		}

		status := *event.Status
		if status.Code == auth.StatusPrompt {
			if err := answer(ctx, client, account, attempt.promptFor(status), attempt.kindFor(status), readPassword); err != nil {
				if ctx.Err() != nil {
					return interrupted(ctx, client, account)
				}
				cancelAttempt(ctx, client, account)
				return err
			}
			continue
		}

		done, err := attempt.settle(status)
		if done {
			return err
		}
		if status.Message != "" {
			fmt.Fprintf(stderr, "%s: %s\n", status.Code, status.Message)
		}
	}
}

// answer reads one credential and passes it to the daemon. The buffer
// is wiped once the call returns.
func answer(ctx context.Context, client *service.Client, account, prompt string, kind auth.Kind, readPassword passwordReader) error {
	credential, err := readPassword(prompt)
	if err != nil {
		return err
	}
	defer credential.Close()

	return client.Call(ctx, "token", map[string]any{
		"account":    account,
		"kinds":      int32(kind),
		"credential": credential.Bytes(),
	}, nil)
}

// loginAttempt tracks what the notification stream has reported so
// far.
type loginAttempt struct {
	options     loginOptions
	multiFactor bool
	prompt      string

	// pending holds the factors that must still succeed when the
	// session requires every factor.
	pending auth.Kind
}

func (a *loginAttempt) observe(event auth.Event) {
	switch event.Type {
	case auth.EventMultiFactor:
		a.multiFactor = event.Flag
	case auth.EventPrompt:
		a.prompt = event.Text
	case auth.EventFactors:
		var kinds auth.Kind
		for _, factor := range event.Factors {
			kinds |= factor.Kind
		}
		if kinds != auth.KindNone {
			a.pending = kinds & a.options.kinds
		}
	}
}

func (a *loginAttempt) promptFor(status auth.Status) string {
	switch {
	case status.Message != "":
		return status.Message
	case a.prompt != "":
		return a.prompt
	}
	return "Password: "
}

func (a *loginAttempt) kindFor(status auth.Status) auth.Kind {
	if status.Kind != auth.KindNone {
		return status.Kind
	}
	return a.options.kinds
}

// settle applies a status to the attempt and reports whether login is
// finished and with what result.
func (a *loginAttempt) settle(status auth.Status) (bool, error) {
	if status.Code == auth.StatusSuccess {
		if !a.multiFactor || status.Kind == auth.KindSingle {
			return true, nil
		}
		a.pending &^= status.Kind
		return a.pending == auth.KindNone, nil
	}
	if status.Code.Terminal() {
		return true, outcomeError(status)
	}
	return false, nil
}

// outcomeError maps a terminal status onto the command's exit status.
func outcomeError(status auth.Status) error {
	detail := status.Code.String()
	if status.Message != "" {
		detail += ": " + status.Message
	}
	switch status.Code {
	case auth.StatusSuccess:
		return nil
	case auth.StatusFailure:
		return &process.ExitError{Code: exitFailed, Err: fmt.Errorf("authentication failed (%s)", detail)}
	case auth.StatusCancelled, auth.StatusTimeout:
		return &process.ExitError{Code: exitCancelled, Err: fmt.Errorf("authentication ended (%s)", detail)}
	case auth.StatusLocked:
		return &process.ExitError{Code: exitLocked, Err: fmt.Errorf("account locked (%s)", detail)}
	default:
		return fmt.Errorf("authentication error (%s)", detail)
	}
}

// interrupted cancels the daemon-side attempt after the user gave up.
func interrupted(ctx context.Context, client *service.Client, account string) error {
	cancelAttempt(ctx, client, account)
	return &process.ExitError{Code: exitCancelled, Err: errors.New("interrupted")}
}

func cancelAttempt(ctx context.Context, client *service.Client, account string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	client.Call(cleanupCtx, "cancel", map[string]any{"account": account}, nil)
}

// newPasswordReader reads answers from passwordFile, or from the
// terminal with echo disabled when passwordFile is empty or "-". With
// identityFile set the password file is age-encrypted.
func newPasswordReader(passwordFile, identityFile string) passwordReader {
	if passwordFile != "" && passwordFile != "-" {
		if identityFile != "" {
			return func(string) (*secret.Buffer, error) {
				return readSealedSecretFile(passwordFile, identityFile)
			}
		}
		return func(string) (*secret.Buffer, error) {
			return readSecretFile(passwordFile)
		}
	}
	return readTerminalPassword
}

func readTerminalPassword(prompt string) (*secret.Buffer, error) {
	stdinFileDescriptor := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFileDescriptor) {
		return nil, errors.New("no terminal available for the password prompt (use --password-file)")
	}

	fmt.Fprint(os.Stderr, prompt)
	passwordBytes, err := term.ReadPassword(stdinFileDescriptor)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}

	buffer, err := secret.NewFromBytes(passwordBytes)
	if err != nil {
		secret.Zero(passwordBytes)
		return nil, err
	}
	return buffer, nil
}

// readSecretFile reads a secret from path. Trailing newlines are
// stripped.
func readSecretFile(path string) (*secret.Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	trimmed := data
	for len(trimmed) > 0 && (trimmed[len(trimmed)-1] == '\n' || trimmed[len(trimmed)-1] == '\r') {
		trimmed = trimmed[:len(trimmed)-1]
	}
	if len(trimmed) == 0 {
		secret.Zero(data)
		return nil, fmt.Errorf("file %s is empty (after stripping trailing newlines)", path)
	}

	buffer, err := secret.NewFromBytes(trimmed)
	secret.Zero(data)
	if err != nil {
		return nil, err
	}
	return buffer, nil
}

// readSealedSecretFile decrypts the age file at path with the identity
// in identityFile. Trailing newlines of the plaintext are stripped.
func readSealedSecretFile(path, identityFile string) (*secret.Buffer, error) {
	identity, err := readSecretFile(identityFile)
	if err != nil {
		return nil, err
	}
	defer identity.Close()

	ciphertext, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	plaintext, err := seal.DecryptFile(ciphertext, identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting %s: %w", path, err)
	}
	defer plaintext.Close()

	trimmed := plaintext.Bytes()
	for len(trimmed) > 0 && (trimmed[len(trimmed)-1] == '\n' || trimmed[len(trimmed)-1] == '\r') {
		trimmed = trimmed[:len(trimmed)-1]
	}
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("file %s is empty (after stripping trailing newlines)", path)
	}
	buffer, err := secret.New(len(trimmed))
	if err != nil {
		return nil, err
	}
	copy(buffer.Bytes(), trimmed)
	return buffer, nil
}
