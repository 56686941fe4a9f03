// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package settlement

import (
	"math/big"

	"github.com/luxfi/geth/common"
)

// Ledger maps message identifiers to locked gas-fee amounts. Entries are
// created once by Lock and consumed exactly once by Take; the delete inside
// Take is the double-claim guard.
type Ledger struct {
	entries map[common.Hash]*big.Int
}

// NewLedger creates an empty escrow ledger.
func NewLedger() *Ledger {
	return &Ledger{
		entries: make(map[common.Hash]*big.Int),
	}
}

// Lock inserts [amount] under [messageID]. Reusing an identifier whose entry
// still holds a non-zero amount is a caller error and is rejected; callers
// must derive fresh, collision-resistant identifiers per lock.
func (l *Ledger) Lock(messageID common.Hash, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if existing := l.entries[messageID]; existing != nil && existing.Sign() > 0 {
		return ErrEscrowLocked
	}
	l.entries[messageID] = new(big.Int).Set(amount)
	return nil
}

// Take returns and deletes the entry under [messageID]. An absent or
// already-consumed entry yields ErrEscrowNotFound; deletion happens before any
// outbound transfer is attempted, closing the double-claim window.
func (l *Ledger) Take(messageID common.Hash) (*big.Int, error) {
	amount := l.entries[messageID]
	if amount == nil || amount.Sign() == 0 {
		return nil, ErrEscrowNotFound
	}
	delete(l.entries, messageID)
	return amount, nil
}

// Amount returns the locked amount under [messageID], zero if absent.
func (l *Ledger) Amount(messageID common.Hash) *big.Int {
	if amount := l.entries[messageID]; amount != nil {
		return new(big.Int).Set(amount)
	}
	return new(big.Int)
}

// Total returns the sum of all locked amounts. The aggregate pool balance must
// always cover this sum.
func (l *Ledger) Total() *big.Int {
	total := new(big.Int)
	for _, amount := range l.entries {
		total.Add(total, amount)
	}
	return total
}

// Len returns the number of live entries.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// restore reinstates a consumed entry during rollback of a failed operation.
func (l *Ledger) restore(messageID common.Hash, amount *big.Int) {
	l.entries[messageID] = new(big.Int).Set(amount)
}

// GasArbReserve records the surplus-gas arbitrage captured per message. The
// reserve is accounting-only: entries are never spent or deleted within this
// core, only folded into the pool balance and reported.
type GasArbReserve struct {
	captured map[common.Hash]*big.Int
	total    *big.Int
}

// NewGasArbReserve creates an empty reserve.
func NewGasArbReserve() *GasArbReserve {
	return &GasArbReserve{
		captured: make(map[common.Hash]*big.Int),
		total:    new(big.Int),
	}
}

// Capture records [delta] as captured for [messageID]. Zero deltas are not
// recorded.
func (r *GasArbReserve) Capture(messageID common.Hash, delta *big.Int) {
	if delta == nil || delta.Sign() <= 0 {
		return
	}
	r.captured[messageID] = new(big.Int).Set(delta)
	r.total.Add(r.total, delta)
}

// Captured returns the captured delta for [messageID], zero if none.
func (r *GasArbReserve) Captured(messageID common.Hash) *big.Int {
	if delta := r.captured[messageID]; delta != nil {
		return new(big.Int).Set(delta)
	}
	return new(big.Int)
}

// Total returns the sum of all captured deltas.
func (r *GasArbReserve) Total() *big.Int {
	return new(big.Int).Set(r.total)
}

// drop removes a capture during rollback of a failed settlement.
func (r *GasArbReserve) drop(messageID common.Hash) {
	if delta := r.captured[messageID]; delta != nil {
		r.total.Sub(r.total, delta)
		delete(r.captured, messageID)
	}
}
