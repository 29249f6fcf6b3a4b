// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/authbridge/lib/auth"
	"github.com/bureau-foundation/authbridge/lib/seal"
	"github.com/bureau-foundation/authbridge/lib/secret"
)

// SupplyToken seals credential with the session's public key and sends
// the ciphertext. The registry takes ownership of credential and wipes
// it before returning, whatever the outcome. An account without a
// session yields nil.
//
// A key that is unrecognized or malformed is dropped from the cache so
// the next call fetches it again. A credential too large for the key
// leaves the key cached.
func (r *Registry) SupplyToken(ctx context.Context, account string, kinds auth.Kind, credential *secret.Buffer) error {
	defer credential.Close()

	e := r.lookup(account)
	if e == nil {
		r.logger.Debug("token for account without session dropped", "account", account)
		return nil
	}

	key, err := r.publicKey(ctx, e)
	if err != nil {
		r.logger.Error("no public key for token", "account", account, "error", err)
		return err
	}

	ciphertext, err := seal.Seal(credential.Bytes(), []byte(key))
	if err != nil {
		if errors.Is(err, seal.ErrUnrecognizedKey) || errors.Is(err, seal.ErrMalformedKey) {
			e.clearKey()
		}
		r.logger.Error("sealing token",
			"account", account,
			"key_fingerprint", seal.Fingerprint([]byte(key)),
			"bytes", credential.Len(),
			"error", err,
		)
		return err
	}

	callCtx, cancel := r.callContext(ctx)
	defer cancel()
	if err := e.controller.SetToken(callCtx, kinds, ciphertext); err != nil {
		r.absorb(e, "SetToken", err)
		return &RemoteError{Method: "SetToken", Account: account, Err: err}
	}
	r.logger.Info("token sent", "account", account, "kinds", kinds, "ciphertext_bytes", len(ciphertext))
	return nil
}

// publicKey returns the cached key or fetches one, retrying with
// doubling backoff while the remote hands back a key without a
// recognized header.
func (r *Registry) publicKey(ctx context.Context, e *entry) (string, error) {
	if key := e.cachedKey(); key != "" {
		return key, nil
	}

	backoff := r.keyBackoff
	var lastErr error
	for attempt := 1; ; attempt++ {
		callCtx, cancel := r.callContext(ctx)
		key, err := e.controller.PublicKey(callCtx)
		cancel()

		switch {
		case errors.Is(err, ErrSessionGone):
			r.absorb(e, "PublicKey", err)
			return "", &RemoteError{Method: "PublicKey", Account: e.account, Err: err}
		case err != nil:
			lastErr = err
		case !seal.HasRecognizedHeader([]byte(key)):
			lastErr = fmt.Errorf("key has no recognized header (%d bytes)", len(key))
		default:
			e.setKey(key)
			r.logger.Debug("public key cached",
				"account", e.account,
				"key_fingerprint", seal.Fingerprint([]byte(key)),
				"attempts", attempt,
			)
			return key, nil
		}

		r.logger.Debug("public key not ready", "account", e.account, "attempt", attempt, "error", lastErr)
		if attempt >= r.keyAttempts {
			return "", fmt.Errorf("%w after %d attempts: %w", ErrPublicKeyNotReady, attempt, lastErr)
		}

		select {
		case <-r.clock.After(backoff):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %w", ErrPublicKeyNotReady, ctx.Err())
		}
		backoff = min(backoff*2, r.keyMaxBackoff)
	}
}
