// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package settlement

import (
	"fmt"

	"github.com/luxfi/geth/common"
)

// ExecuteGovernance executes each opaque payload in order against the fixed
// governance target, aborting on the first failure. Already-applied calls are
// not rolled back; partial execution is observable in the target's state.
func (e *Engine) ExecuteGovernance(caller common.Address, payloads [][]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.hub {
		return ErrUnauthorized
	}

	for i, payload := range payloads {
		if err := e.governance.Execute(payload); err != nil {
			e.log.Warn("governance execution aborted", "index", i, "err", err)
			return errGovernancePayload(i, err)
		}
	}

	e.log.Info("governance payloads executed", "count", len(payloads))
	return nil
}

// errGovernancePayload wraps ErrGovernanceExecutionFailed with the index of
// the payload that aborted the batch. Matches with errors.Is.
func errGovernancePayload(index int, cause error) error {
	return fmt.Errorf("%w: payload %d: %v", ErrGovernanceExecutionFailed, index, cause)
}
