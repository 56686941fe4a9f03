// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package settlement

import "math/big"

// RequiredFloor returns balance * minProfitBps / 10_000. Integer division
// truncates toward zero; truncation is the system-wide rounding policy.
func RequiredFloor(balance *big.Int, minProfitBps uint64) *big.Int {
	floor := new(big.Int).Mul(balance, new(big.Int).SetUint64(minProfitBps))
	return floor.Div(floor, new(big.Int).SetUint64(BasisPoints))
}

// CheckProfitFloor fails with ErrProfitFloorBreached when the pre-transfer
// [balance] cannot cover [withdrawAmount] plus the required floor. Callers
// must evaluate the guard against the true pre-transfer balance and perform
// the transfer immediately after, with no intervening external call.
func CheckProfitFloor(balance, withdrawAmount *big.Int, minProfitBps uint64) error {
	required := new(big.Int).Add(withdrawAmount, RequiredFloor(balance, minProfitBps))
	if balance.Cmp(required) < 0 {
		return ErrProfitFloorBreached
	}
	return nil
}
