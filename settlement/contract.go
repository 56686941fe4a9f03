// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package settlement

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"

	"github.com/luxfi/settle/contract"
)

// ContractAddress is the reserved address of the settlement precompile.
var ContractAddress = common.HexToAddress("0x0000000000000000000000000000000000006100")

// Gas costs
const (
	GasLock          uint64 = 100000 // Lock an attached gas payment
	GasSettle        uint64 = 50000  // Reimburse a relayer
	GasRefund        uint64 = 50000  // Refund a locked fee
	GasReceivePacket uint64 = 50000  // Dispatch a verified inbound payload
	GasGovernance    uint64 = 50000  // Forward a governance batch
	GasRedeem        uint64 = 50000  // Burn and send an outbound redemption
	GasConfigWrite   uint64 = 5000   // Mutate a configuration value
	GasRead          uint64 = 5000   // Query state
)

// Function selectors (first 4 bytes of keccak256 of the function signature,
// derived at init so they stay correct by construction)
var (
	SelectorPayGas             = mustSelector("payGas(uint32,uint64,uint256)")
	SelectorReimburseRelayer   = mustSelector("reimburseRelayer(address,bytes32,uint256)")
	SelectorRefundLockedGasFee = mustSelector("refundLockedGasFee(bytes32,address)")
	SelectorReceivePacket      = mustSelector("receivePacket(bytes)")
	SelectorExecuteGovernance  = mustSelector("executeGovernance(bytes[])")
	SelectorRedeemToRemote     = mustSelector("redeemToRemote(uint256)")
	SelectorSetMinProfitBps    = mustSelector("setMinProfitBps(uint256)")
	SelectorSetFeeShareBps     = mustSelector("setFeeShareBps(uint256)")

	SelectorGetEscrowedAmount = mustSelector("getEscrowedAmount(bytes32)")
	SelectorGetGasArbCaptured = mustSelector("getGasArbCaptured(bytes32)")
	SelectorGetTotalEscrowed  = mustSelector("getTotalEscrowed()")
	SelectorGetMinProfitBps   = mustSelector("getMinProfitBps()")
	SelectorGetFeeShareBps    = mustSelector("getFeeShareBps()")
)

func mustSelector(signature string) [4]byte {
	var selector [4]byte
	copy(selector[:], crypto.Keccak256([]byte(signature))[:4])
	return selector
}

// Contract-surface errors
var (
	ErrInsufficientGas = errors.New("insufficient gas")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotInitialized  = errors.New("settlement engine not initialized")
)

// SettlementContract exposes the engine as a stateful precompiled contract.
type SettlementContract struct {
	engine *Engine
}

// ContractInstance is the singleton registered at ContractAddress. The engine
// is wired during VM initialization once its collaborators exist.
var ContractInstance = &SettlementContract{}

var _ contract.StatefulPrecompiledContract = (*SettlementContract)(nil)

// SetEngine wires the settlement engine. Called during VM initialization.
func (c *SettlementContract) SetEngine(engine *Engine) {
	c.engine = engine
}

// Run executes the settlement precompile.
func (c *SettlementContract) Run(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if c.engine == nil {
		return nil, suppliedGas, ErrNotInitialized
	}
	if len(input) < 4 {
		return nil, suppliedGas, ErrInvalidInput
	}

	var selector [4]byte
	copy(selector[:], input[:4])
	args := input[4:]

	switch selector {
	case SelectorPayGas:
		return c.payGas(accessibleState, caller, args, suppliedGas, readOnly)
	case SelectorReimburseRelayer:
		return c.reimburseRelayer(accessibleState, caller, args, suppliedGas, readOnly)
	case SelectorRefundLockedGasFee:
		return c.refundLockedGasFee(accessibleState, caller, args, suppliedGas, readOnly)
	case SelectorReceivePacket:
		return c.receivePacket(accessibleState, caller, args, suppliedGas, readOnly)
	case SelectorExecuteGovernance:
		return c.executeGovernance(accessibleState, caller, args, suppliedGas, readOnly)
	case SelectorRedeemToRemote:
		return c.redeemToRemote(accessibleState, caller, args, suppliedGas, readOnly)
	case SelectorSetMinProfitBps:
		return c.setConfigValue(accessibleState, caller, args, suppliedGas, readOnly, c.engine.SetMinProfitBps)
	case SelectorSetFeeShareBps:
		return c.setConfigValue(accessibleState, caller, args, suppliedGas, readOnly, c.engine.SetFeeShareBps)

	case SelectorGetEscrowedAmount:
		return c.getAmountByID(args, suppliedGas, c.engine.EscrowedAmount)
	case SelectorGetGasArbCaptured:
		return c.getAmountByID(args, suppliedGas, c.engine.GasArbCaptured)
	case SelectorGetTotalEscrowed:
		return c.getAmount(suppliedGas, c.engine.TotalEscrowed)
	case SelectorGetMinProfitBps:
		return c.getUint64(suppliedGas, func() uint64 { return c.engine.GetConfig().MinProfitBps })
	case SelectorGetFeeShareBps:
		return c.getUint64(suppliedGas, func() uint64 { return c.engine.GetConfig().FeeShareBps })

	default:
		return nil, suppliedGas, ErrInvalidInput
	}
}

// payGas locks the attached gas payment. The value word in calldata mirrors
// the value the EVM has already credited to the precompile balance.
func (c *SettlementContract) payGas(
	accessibleState contract.AccessibleState,
	caller common.Address,
	args []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if readOnly {
		return nil, suppliedGas, ErrUnauthorized
	}
	if suppliedGas < GasLock {
		return nil, 0, ErrInsufficientGas
	}
	remainingGas := suppliedGas - GasLock

	if len(args) < 96 {
		return nil, remainingGas, ErrInvalidInput
	}
	destinationID := binary.BigEndian.Uint32(args[28:32])
	gasLimit := binary.BigEndian.Uint64(args[56:64])
	value := new(big.Int).SetBytes(args[64:96])

	// Deriving the message ID from the block timestamp keeps block
	// re-execution deterministic.
	timestamp := accessibleState.GetBlockContext().Timestamp()

	snapshot := accessibleState.GetStateDB().Snapshot()
	messageID, err := c.engine.PayGas(caller, destinationID, gasLimit, timestamp, value)
	if err != nil {
		accessibleState.GetStateDB().RevertToSnapshot(snapshot)
		return nil, remainingGas, err
	}

	return messageID.Bytes(), remainingGas, nil
}

func (c *SettlementContract) reimburseRelayer(
	accessibleState contract.AccessibleState,
	caller common.Address,
	args []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if readOnly {
		return nil, suppliedGas, ErrUnauthorized
	}
	if suppliedGas < GasSettle {
		return nil, 0, ErrInsufficientGas
	}
	remainingGas := suppliedGas - GasSettle

	if len(args) < 96 {
		return nil, remainingGas, ErrInvalidInput
	}
	relayer := common.BytesToAddress(args[12:32])
	messageID := common.BytesToHash(args[32:64])
	actualGasCost := new(big.Int).SetBytes(args[64:96])

	snapshot := accessibleState.GetStateDB().Snapshot()
	settled, err := c.engine.ReimburseRelayer(caller, relayer, messageID, actualGasCost)
	if err != nil {
		accessibleState.GetStateDB().RevertToSnapshot(snapshot)
		return nil, remainingGas, err
	}

	// Return relayer payment (32 bytes) + protocol cut (32 bytes)
	result := make([]byte, 64)
	settled.RelayerPayment.FillBytes(result[:32])
	settled.ProtocolCut.FillBytes(result[32:])
	return result, remainingGas, nil
}

func (c *SettlementContract) refundLockedGasFee(
	accessibleState contract.AccessibleState,
	caller common.Address,
	args []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if readOnly {
		return nil, suppliedGas, ErrUnauthorized
	}
	if suppliedGas < GasRefund {
		return nil, 0, ErrInsufficientGas
	}
	remainingGas := suppliedGas - GasRefund

	if len(args) < 64 {
		return nil, remainingGas, ErrInvalidInput
	}
	messageID := common.BytesToHash(args[:32])
	recipient := common.BytesToAddress(args[44:64])

	snapshot := accessibleState.GetStateDB().Snapshot()
	amount, err := c.engine.RefundLockedGasFee(caller, messageID, recipient)
	if err != nil {
		accessibleState.GetStateDB().RevertToSnapshot(snapshot)
		return nil, remainingGas, err
	}

	result := make([]byte, 32)
	amount.FillBytes(result)
	return result, remainingGas, nil
}

func (c *SettlementContract) receivePacket(
	accessibleState contract.AccessibleState,
	caller common.Address,
	args []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if readOnly {
		return nil, suppliedGas, ErrUnauthorized
	}
	if suppliedGas < GasReceivePacket {
		return nil, 0, ErrInsufficientGas
	}
	remainingGas := suppliedGas - GasReceivePacket

	values, err := bytesArg.Unpack(args)
	if err != nil {
		return nil, remainingGas, ErrInvalidInput
	}
	payload, ok := values[0].([]byte)
	if !ok {
		return nil, remainingGas, ErrInvalidInput
	}

	snapshot := accessibleState.GetStateDB().Snapshot()
	if err := c.engine.ReceivePacket(caller, payload); err != nil {
		accessibleState.GetStateDB().RevertToSnapshot(snapshot)
		return nil, remainingGas, err
	}

	return nil, remainingGas, nil
}

func (c *SettlementContract) executeGovernance(
	accessibleState contract.AccessibleState,
	caller common.Address,
	args []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if readOnly {
		return nil, suppliedGas, ErrUnauthorized
	}
	if suppliedGas < GasGovernance {
		return nil, 0, ErrInsufficientGas
	}
	remainingGas := suppliedGas - GasGovernance

	values, err := bytesArrayArg.Unpack(args)
	if err != nil {
		return nil, remainingGas, ErrInvalidInput
	}
	payloads, ok := values[0].([][]byte)
	if !ok {
		return nil, remainingGas, ErrInvalidInput
	}

	snapshot := accessibleState.GetStateDB().Snapshot()
	if err := c.engine.ExecuteGovernance(caller, payloads); err != nil {
		accessibleState.GetStateDB().RevertToSnapshot(snapshot)
		return nil, remainingGas, err
	}

	return nil, remainingGas, nil
}

func (c *SettlementContract) redeemToRemote(
	accessibleState contract.AccessibleState,
	caller common.Address,
	args []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if readOnly {
		return nil, suppliedGas, ErrUnauthorized
	}
	if suppliedGas < GasRedeem {
		return nil, 0, ErrInsufficientGas
	}
	remainingGas := suppliedGas - GasRedeem

	if len(args) < 32 {
		return nil, remainingGas, ErrInvalidInput
	}
	amount := new(big.Int).SetBytes(args[:32])

	snapshot := accessibleState.GetStateDB().Snapshot()
	if err := c.engine.RedeemToRemote(caller, amount); err != nil {
		accessibleState.GetStateDB().RevertToSnapshot(snapshot)
		return nil, remainingGas, err
	}

	return nil, remainingGas, nil
}

func (c *SettlementContract) setConfigValue(
	accessibleState contract.AccessibleState,
	caller common.Address,
	args []byte,
	suppliedGas uint64,
	readOnly bool,
	set func(common.Address, uint64) error,
) ([]byte, uint64, error) {
	if readOnly {
		return nil, suppliedGas, ErrUnauthorized
	}
	if suppliedGas < GasConfigWrite {
		return nil, 0, ErrInsufficientGas
	}
	remainingGas := suppliedGas - GasConfigWrite

	if len(args) < 32 {
		return nil, remainingGas, ErrInvalidInput
	}
	// Values above 2^64 cannot be valid for either parameter.
	if new(big.Int).SetBytes(args[:24]).Sign() != 0 {
		return nil, remainingGas, ErrValueOutOfRange
	}
	value := binary.BigEndian.Uint64(args[24:32])

	snapshot := accessibleState.GetStateDB().Snapshot()
	if err := set(caller, value); err != nil {
		accessibleState.GetStateDB().RevertToSnapshot(snapshot)
		return nil, remainingGas, err
	}

	return nil, remainingGas, nil
}

func (c *SettlementContract) getAmountByID(args []byte, suppliedGas uint64, get func(common.Hash) *big.Int) ([]byte, uint64, error) {
	if suppliedGas < GasRead {
		return nil, 0, ErrInsufficientGas
	}
	remainingGas := suppliedGas - GasRead

	if len(args) < 32 {
		return nil, remainingGas, ErrInvalidInput
	}

	result := make([]byte, 32)
	get(common.BytesToHash(args[:32])).FillBytes(result)
	return result, remainingGas, nil
}

func (c *SettlementContract) getAmount(suppliedGas uint64, get func() *big.Int) ([]byte, uint64, error) {
	if suppliedGas < GasRead {
		return nil, 0, ErrInsufficientGas
	}
	remainingGas := suppliedGas - GasRead

	result := make([]byte, 32)
	get().FillBytes(result)
	return result, remainingGas, nil
}

func (c *SettlementContract) getUint64(suppliedGas uint64, get func() uint64) ([]byte, uint64, error) {
	if suppliedGas < GasRead {
		return nil, 0, ErrInsufficientGas
	}
	remainingGas := suppliedGas - GasRead

	result := make([]byte, 32)
	binary.BigEndian.PutUint64(result[24:], get())
	return result, remainingGas, nil
}

// ABI argument lists for the dynamic calldata shapes
var (
	bytesArg      = mustArguments("bytes")
	bytesArrayArg = mustArguments("bytes[]")
)

// StateDBBank implements Bank over the precompile's own balance in the EVM
// state database. Credit is a no-op because the EVM credits attached value to
// the precompile address before Run executes.
type StateDBBank struct {
	state contract.StateDB
	self  common.Address
}

// NewStateDBBank creates a bank over [self]'s balance in [state].
func NewStateDBBank(state contract.StateDB, self common.Address) *StateDBBank {
	return &StateDBBank{state: state, self: self}
}

var _ Bank = (*StateDBBank)(nil)

var errPoolOverdraw = errors.New("transfer exceeds pool balance")

func (b *StateDBBank) Balance() *big.Int {
	return b.state.GetBalance(b.self).ToBig()
}

func (b *StateDBBank) Credit(*big.Int) {}

func (b *StateDBBank) Transfer(to common.Address, amount *big.Int) error {
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return ErrInvalidAmount
	}
	if b.state.GetBalance(b.self).Cmp(value) < 0 {
		return errPoolOverdraw
	}
	b.state.SubBalance(b.self, value, tracing.BalanceChangeTransfer)
	b.state.AddBalance(to, value, tracing.BalanceChangeTransfer)
	return nil
}

func (b *StateDBBank) Snapshot() int {
	return b.state.Snapshot()
}

func (b *StateDBBank) RevertToSnapshot(snapshot int) {
	b.state.RevertToSnapshot(snapshot)
}
