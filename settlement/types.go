// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package settlement

import (
	"errors"
	"math/big"

	"github.com/luxfi/geth/common"
)

// Basis points denominator
const BasisPoints uint64 = 10_000

// Percent denominator for the legacy fee share
const Percent uint64 = 100

// Default and limit values for the two tunable parameters
const (
	// DefaultFeeShareBps is the legacy protocol fee share. Despite the name it
	// is expressed in percent units (5 = 5%); the divisor is 100.
	DefaultFeeShareBps uint64 = 5

	// DefaultMinProfitBps is the enforced minimum profit floor (3%).
	DefaultMinProfitBps uint64 = 300

	// MaxMinProfitBps is the hard ceiling for the profit floor (10%).
	MaxMinProfitBps uint64 = 1000

	// MaxFeeShare is the ceiling for the legacy fee share (100%).
	MaxFeeShare uint64 = 100
)

// Config holds the two tunable settlement parameters. Both are mutated only
// through the engine's authenticated setters and persist for the lifetime of
// the deployment.
type Config struct {
	FeeShareBps  uint64 // legacy percent-unit fee share, informational
	MinProfitBps uint64 // enforced profit floor in basis points
}

// DefaultConfig returns the deployment defaults.
func DefaultConfig() Config {
	return Config{
		FeeShareBps:  DefaultFeeShareBps,
		MinProfitBps: DefaultMinProfitBps,
	}
}

// Settlement is the record of a completed relayer reimbursement.
type Settlement struct {
	MessageID      common.Hash    // escrow entry consumed
	Relayer        common.Address // reimbursed relayer
	TotalFee       *big.Int       // locked amount released from escrow
	RelayerPayment *big.Int       // final payment to the relayer
	ProtocolCut    *big.Int       // final protocol cut deposited to the vault
	GasArbCaptured *big.Int       // surplus-gas arbitrage captured, zero if none
}

// Bank is the aggregate native-currency pool held by the settlement core.
// Credit records value attached to an inbound call; Transfer delivers value to
// a recipient and fails if the recipient rejects it. Snapshot/RevertToSnapshot
// provide the per-operation all-or-nothing guarantee.
type Bank interface {
	Balance() *big.Int
	Credit(amount *big.Int)
	Transfer(to common.Address, amount *big.Int) error
	Snapshot() int
	RevertToSnapshot(int)
}

// AssetMinter issues and retires a wrapped representative token.
type AssetMinter interface {
	Mint(token, to common.Address, amount *big.Int) error
	Burn(token, from common.Address, amount *big.Int) error
}

// TreasuryVault is the auto-compounding profit vault. The deposited value
// travels with the call.
type TreasuryVault interface {
	DepositProfit(amount *big.Int) error
}

// Transport submits opaque payloads to the cross-chain packet layer. Verified
// inbound payloads arrive through Engine.ReceivePacket, not through this
// interface.
type Transport interface {
	Send(channel string, payload []byte) error
}

// GovernanceExecutor executes an opaque call payload against the fixed
// remote-account governance target.
type GovernanceExecutor interface {
	Execute(payload []byte) error
}

// GasPaymentService observes gas-payment intents for the destination chain.
// Optional; a nil service is skipped.
type GasPaymentService interface {
	PayGas(sender common.Address, destinationID uint32, gasLimit uint64, value *big.Int) error
}

// Settlement errors
var (
	ErrUnauthorized              = errors.New("caller is not the recognized authority")
	ErrZeroGasPayment            = errors.New("gas payment requires attached value")
	ErrInvalidAmount             = errors.New("amount must be a non-negative integer")
	ErrEscrowNotFound            = errors.New("escrow entry not found or already claimed")
	ErrEscrowLocked              = errors.New("escrow entry already locked")
	ErrProfitFloorBreached       = errors.New("withdrawal would breach profit floor")
	ErrSettlementMath            = errors.New("settlement arithmetic mismatch")
	ErrRelayerTransferFailed     = errors.New("relayer rejected reimbursement transfer")
	ErrAutoCompoundFailed        = errors.New("treasury vault rejected profit deposit")
	ErrRefundTransferFailed      = errors.New("recipient rejected refund transfer")
	ErrUnknownPacketType         = errors.New("unknown packet discriminator")
	ErrInvalidPayload            = errors.New("malformed packet payload")
	ErrGovernanceExecutionFailed = errors.New("governance call execution failed")
	ErrValueOutOfRange           = errors.New("configuration value out of range")
	ErrMintFailed                = errors.New("asset mint rejected")
	ErrBurnFailed                = errors.New("asset burn rejected")
	ErrRedemptionSendFailed      = errors.New("redemption packet send rejected")
)
