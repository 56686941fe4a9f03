// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package settlement

import (
	"bytes"
	"errors"
	"testing"
)

func TestExecuteGovernanceInOrder(t *testing.T) {
	env := newTestEnv(t)
	payloads := [][]byte{{0x01}, {0x02}, {0x03}}

	if err := env.engine.ExecuteGovernance(testHub, payloads); err != nil {
		t.Fatalf("ExecuteGovernance: %v", err)
	}

	if len(env.gov.executed) != len(payloads) {
		t.Fatalf("executed: got %d, want %d", len(env.gov.executed), len(payloads))
	}
	for i, payload := range payloads {
		if !bytes.Equal(env.gov.executed[i], payload) {
			t.Fatalf("payload %d: got %x, want %x", i, env.gov.executed[i], payload)
		}
	}
}

func TestExecuteGovernanceAbortsOnFirstFailure(t *testing.T) {
	env := newTestEnv(t)
	env.gov.failAt = 1
	payloads := [][]byte{{0x01}, {0x02}, {0x03}}

	err := env.engine.ExecuteGovernance(testHub, payloads)
	if !errors.Is(err, ErrGovernanceExecutionFailed) {
		t.Fatalf("got %v, want ErrGovernanceExecutionFailed", err)
	}

	// The first call stays applied; nothing after the failure runs.
	if len(env.gov.executed) != 1 {
		t.Fatalf("executed: got %d, want 1", len(env.gov.executed))
	}
	if !bytes.Equal(env.gov.executed[0], payloads[0]) {
		t.Fatalf("applied payload: got %x, want %x", env.gov.executed[0], payloads[0])
	}
}

func TestExecuteGovernanceEmptyBatch(t *testing.T) {
	env := newTestEnv(t)

	if err := env.engine.ExecuteGovernance(testHub, nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
}

func TestExecuteGovernanceAuthorization(t *testing.T) {
	env := newTestEnv(t)

	if err := env.engine.ExecuteGovernance(testAuthority, [][]byte{{0x01}}); err != ErrUnauthorized {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
	if len(env.gov.executed) != 0 {
		t.Fatalf("executed for unauthorized caller: %d", len(env.gov.executed))
	}
}
