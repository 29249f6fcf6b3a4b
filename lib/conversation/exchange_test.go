// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"testing"
	"time"

	"github.com/bureau-foundation/authbridge/lib/testutil"
)

func TestExchangeTakeConsumesOnce(t *testing.T) {
	exchange := newExchange()
	credential := mustSecret(t, "hunter2")
	if exchange.supply(credential) {
		t.Error("first supply reported a replacement")
	}

	got, cancelled := exchange.take()
	if cancelled || got != credential {
		t.Fatalf("take = (%v, %v), want the supplied credential", got, cancelled)
	}
	if got, cancelled := exchange.take(); got != nil || cancelled {
		t.Errorf("second take = (%v, %v), want nothing", got, cancelled)
	}
	credential.Close()
}

func TestExchangeCancelIsConsumedOnObservation(t *testing.T) {
	exchange := newExchange()
	exchange.cancel()

	if _, cancelled := exchange.take(); !cancelled {
		t.Fatal("take did not observe cancel")
	}
	if _, cancelled := exchange.take(); cancelled {
		t.Error("cancel observed twice")
	}
	if !exchange.wasCancelled() {
		t.Error("wasCancelled forgot the request")
	}
}

func TestExchangeSignalsWaiter(t *testing.T) {
	exchange := newExchange()
	exchange.supply(mustSecret(t, "a"))
	exchange.supply(mustSecret(t, "b"))
	exchange.cancel()

	testutil.RequireReceive(t, exchange.signal, time.Second, "signal after writes")
	testutil.RequireNoReceive(t, exchange.signal, 10*time.Millisecond, "signal coalesces")
	exchange.drain()
}

func TestExchangeDrainWipesPending(t *testing.T) {
	exchange := newExchange()
	credential := mustSecret(t, "left behind")
	exchange.supply(credential)
	exchange.drain()

	if !credential.Closed() {
		t.Error("drain left the credential intact")
	}
	if got, _ := exchange.take(); got != nil {
		t.Error("take returned a drained credential")
	}
}
