// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package settlement implements the fee-settlement core of the relay bridge:
// it escrows gas-fee payments from message senders, reimburses relayers for
// delivered messages, and skims the spread into the auto-compounding treasury
// vault, subject to a guaranteed minimum-profit floor.
package settlement

import (
	"encoding/binary"
	"math/big"
	"sync"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
)

// Params configures a settlement engine. Bank, Minter, Vault, Transport and
// Governance are required collaborators; GasService, Store and Log are
// optional.
type Params struct {
	Bank       Bank
	Minter     AssetMinter
	Vault      TreasuryVault
	Transport  Transport
	Governance GovernanceExecutor
	GasService GasPaymentService

	// WrappedAsset is the bridge's native wrapped token, minted on redemption
	// packets and burned on outbound redemptions.
	WrappedAsset common.Address

	// RedemptionChannel is the transport channel outbound redemption burns are
	// sent on.
	RedemptionChannel string

	// Authority may mutate configuration and drive the refund path. Hub may
	// deliver verified packets, forward governance calls, and settle relayer
	// reimbursements. Two distinct roles, checked independently.
	Authority common.Address
	Hub       common.Address

	Store *Store
	Log   log.Logger
}

// Engine is the settlement core. The platform serializes externally invoked
// operations; the mutex only guards direct library use.
type Engine struct {
	ledger *Ledger
	gasArb *GasArbReserve
	config Config
	nonces map[common.Address]uint64

	bank       Bank
	minter     AssetMinter
	vault      TreasuryVault
	transport  Transport
	governance GovernanceExecutor
	gasService GasPaymentService

	wrappedAsset      common.Address
	redemptionChannel string
	authority         common.Address
	hub               common.Address

	store *Store
	log   log.Logger

	mu sync.Mutex
}

// NewEngine creates a settlement engine and reloads any persisted escrow,
// arbitrage-reserve, and configuration state from the store.
func NewEngine(params Params) (*Engine, error) {
	logger := params.Log
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}

	e := &Engine{
		ledger:            NewLedger(),
		gasArb:            NewGasArbReserve(),
		config:            DefaultConfig(),
		nonces:            make(map[common.Address]uint64),
		bank:              params.Bank,
		minter:            params.Minter,
		vault:             params.Vault,
		transport:         params.Transport,
		governance:        params.Governance,
		gasService:        params.GasService,
		wrappedAsset:      params.WrappedAsset,
		redemptionChannel: params.RedemptionChannel,
		authority:         params.Authority,
		hub:               params.Hub,
		store:             params.Store,
		log:               logger,
	}

	if e.store != nil {
		if err := e.store.Load(e.ledger, e.gasArb, &e.config, e.nonces); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// PayGas locks an attached gas-fee payment against a freshly derived message
// identifier and reports the intent to the gas-payment service. The returned
// identifier keys later settlement or refund of the escrowed value.
//
// [timestamp] is the block timestamp of the enclosing call; deriving the
// identifier from it rather than wall-clock time keeps re-execution of the
// same block deterministic.
func (e *Engine) PayGas(sender common.Address, destinationID uint32, gasLimit, timestamp uint64, value *big.Int) (common.Hash, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if value == nil || value.Sign() <= 0 {
		return common.Hash{}, ErrZeroGasPayment
	}

	nonce := e.nonces[sender]
	e.nonces[sender] = nonce + 1

	messageID := deriveMessageID(sender, destinationID, timestamp, nonce)

	snapshot := e.bank.Snapshot()
	if err := e.ledger.Lock(messageID, value); err != nil {
		return common.Hash{}, err
	}
	e.bank.Credit(value)

	if e.gasService != nil {
		if err := e.gasService.PayGas(sender, destinationID, gasLimit, value); err != nil {
			e.bank.RevertToSnapshot(snapshot)
			delete(e.ledger.entries, messageID)
			return common.Hash{}, err
		}
	}

	if err := e.persistLock(messageID, sender); err != nil {
		e.bank.RevertToSnapshot(snapshot)
		delete(e.ledger.entries, messageID)
		return common.Hash{}, err
	}

	e.log.Info("gas fee locked",
		"messageID", messageID,
		"sender", sender,
		"destination", destinationID,
		"gasLimit", gasLimit,
		"value", value,
	)
	return messageID, nil
}

// ReimburseRelayer releases the escrow entry under [messageID], pays the
// relayer exactly its actual gas cost, and deposits the protocol cut into the
// treasury vault.
//
// The profit-floor guard on this path intentionally checks a zero withdrawal
// amount: it is a balance-integrity sanity check, not the floor enforcement.
// The floor itself is enforced through the effective-cut computation below.
// The refund path guards the real outflow.
func (e *Engine) ReimburseRelayer(caller, relayer common.Address, messageID common.Hash, actualGasCost *big.Int) (*Settlement, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.hub {
		return nil, ErrUnauthorized
	}
	if actualGasCost == nil || actualGasCost.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	// Delete-then-transfer: the entry is consumed before any outbound
	// transfer, closing the double-claim window.
	totalFee, err := e.ledger.Take(messageID)
	if err != nil {
		return nil, err
	}

	// Legacy split, informational input to the arbitrage capture.
	initialProtocolCut := new(big.Int).Mul(totalFee, new(big.Int).SetUint64(e.config.FeeShareBps))
	initialProtocolCut.Div(initialProtocolCut, new(big.Int).SetUint64(Percent))
	initialRelayerPayment := new(big.Int).Sub(totalFee, initialProtocolCut)

	// Surplus-gas arbitrage: half of the unspent nominal allotment is
	// retained; the truncated remainder stays with the relayer's notional
	// allotment.
	gasSpreadArb := new(big.Int)
	if initialRelayerPayment.Cmp(actualGasCost) > 0 {
		delta := new(big.Int).Sub(initialRelayerPayment, actualGasCost)
		gasSpreadArb.Rsh(delta, 1)
	}

	// The relayer is paid exactly its actual cost, never the stale allotment.
	// When the locked fee cannot cover the cost, the whole fee goes to the
	// relayer and the protocol takes nothing.
	reimbursement := new(big.Int).Set(actualGasCost)
	if reimbursement.Cmp(totalFee) > 0 {
		reimbursement.Set(totalFee)
	}

	requiredProfit := new(big.Int).Mul(totalFee, new(big.Int).SetUint64(e.config.MinProfitBps))
	requiredProfit.Div(requiredProfit, new(big.Int).SetUint64(BasisPoints))

	currentCut := new(big.Int).Sub(totalFee, reimbursement)
	effectiveCut := new(big.Int).Set(currentCut)
	if effectiveCut.Cmp(requiredProfit) < 0 {
		effectiveCut.Set(requiredProfit)
	}
	if effectiveCut.Cmp(totalFee) > 0 {
		effectiveCut.Set(totalFee)
	}

	// The cut can never exceed the actual surplus: reimbursement takes
	// priority over the floor when the floor would force underpayment.
	profit := new(big.Int).Sub(totalFee, reimbursement)
	if effectiveCut.Cmp(profit) > 0 {
		effectiveCut.Set(profit)
	}

	finalRelayerPayment := new(big.Int).Sub(totalFee, effectiveCut)
	finalProtocolCut := effectiveCut

	restore := func() {
		e.ledger.restore(messageID, totalFee)
		e.gasArb.drop(messageID)
	}

	// Conservation: no value created or destroyed by the split.
	check := new(big.Int).Add(finalRelayerPayment, finalProtocolCut)
	if check.Cmp(totalFee) != 0 {
		e.ledger.restore(messageID, totalFee)
		return nil, ErrSettlementMath
	}

	e.gasArb.Capture(messageID, gasSpreadArb)

	if err := CheckProfitFloor(e.bank.Balance(), new(big.Int), e.config.MinProfitBps); err != nil {
		restore()
		return nil, err
	}

	snapshot := e.bank.Snapshot()

	if err := e.bank.Transfer(relayer, finalRelayerPayment); err != nil {
		e.bank.RevertToSnapshot(snapshot)
		restore()
		e.log.Warn("relayer transfer rejected", "messageID", messageID, "relayer", relayer, "err", err)
		return nil, ErrRelayerTransferFailed
	}

	if err := e.vault.DepositProfit(finalProtocolCut); err != nil {
		e.bank.RevertToSnapshot(snapshot)
		restore()
		e.log.Warn("treasury deposit rejected", "messageID", messageID, "cut", finalProtocolCut, "err", err)
		return nil, ErrAutoCompoundFailed
	}

	if err := e.persistSettlement(messageID); err != nil {
		e.bank.RevertToSnapshot(snapshot)
		restore()
		return nil, err
	}

	e.log.Info("relayer reimbursed",
		"messageID", messageID,
		"relayer", relayer,
		"relayerPayment", finalRelayerPayment,
		"protocolCut", finalProtocolCut,
	)
	if gasSpreadArb.Sign() > 0 {
		e.log.Info("gas arbitrage captured", "messageID", messageID, "captured", gasSpreadArb)
	}

	return &Settlement{
		MessageID:      messageID,
		Relayer:        relayer,
		TotalFee:       totalFee,
		RelayerPayment: finalRelayerPayment,
		ProtocolCut:    finalProtocolCut,
		GasArbCaptured: gasSpreadArb,
	}, nil
}

// RefundLockedGasFee returns the full locked amount under [messageID] to
// [recipient]. No profit is extracted on this path; the profit-floor guard is
// evaluated against the actual amount about to leave the pool, and on a
// breach the entry remains locked.
func (e *Engine) RefundLockedGasFee(caller common.Address, messageID common.Hash, recipient common.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.authority {
		return nil, ErrUnauthorized
	}

	amount := e.ledger.Amount(messageID)
	if amount.Sign() == 0 {
		return nil, ErrEscrowNotFound
	}

	if err := CheckProfitFloor(e.bank.Balance(), amount, e.config.MinProfitBps); err != nil {
		return nil, err
	}

	if _, err := e.ledger.Take(messageID); err != nil {
		return nil, err
	}

	snapshot := e.bank.Snapshot()
	if err := e.bank.Transfer(recipient, amount); err != nil {
		e.bank.RevertToSnapshot(snapshot)
		e.ledger.restore(messageID, amount)
		e.log.Warn("refund transfer rejected", "messageID", messageID, "recipient", recipient, "err", err)
		return nil, ErrRefundTransferFailed
	}

	if err := e.persistSettlement(messageID); err != nil {
		e.bank.RevertToSnapshot(snapshot)
		e.ledger.restore(messageID, amount)
		return nil, err
	}

	e.log.Info("locked gas fee refunded", "messageID", messageID, "recipient", recipient, "amount", amount)
	return amount, nil
}

// SetMinProfitBps updates the enforced profit floor. Callable only by the
// governance authority; values above the 10% hard ceiling are rejected.
func (e *Engine) SetMinProfitBps(caller common.Address, value uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.authority {
		return ErrUnauthorized
	}
	if value > MaxMinProfitBps {
		return ErrValueOutOfRange
	}

	e.config.MinProfitBps = value
	if e.store != nil {
		if err := e.store.PutConfig(e.config); err != nil {
			return err
		}
	}

	e.log.Info("min profit floor updated", "minProfitBps", value)
	return nil
}

// SetFeeShareBps updates the legacy fee share. The value is retained for the
// informational cut computation only; the enforced floor is MinProfitBps.
func (e *Engine) SetFeeShareBps(caller common.Address, value uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.authority {
		return ErrUnauthorized
	}
	if value > MaxFeeShare {
		return ErrValueOutOfRange
	}

	e.config.FeeShareBps = value
	if e.store != nil {
		if err := e.store.PutConfig(e.config); err != nil {
			return err
		}
	}

	e.log.Info("fee share updated", "feeShareBps", value)
	return nil
}

// Views

// EscrowedAmount returns the locked amount under [messageID], zero if absent.
func (e *Engine) EscrowedAmount(messageID common.Hash) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Amount(messageID)
}

// TotalEscrowed returns the sum of all locked amounts.
func (e *Engine) TotalEscrowed() *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Total()
}

// GasArbCaptured returns the arbitrage captured for [messageID], zero if none.
func (e *Engine) GasArbCaptured(messageID common.Hash) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gasArb.Captured(messageID)
}

// TotalGasArbCaptured returns the aggregate captured arbitrage.
func (e *Engine) TotalGasArbCaptured() *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gasArb.Total()
}

// PoolBalance returns the aggregate native balance held by the core.
func (e *Engine) PoolBalance() *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return new(big.Int).Set(e.bank.Balance())
}

// GetConfig returns a copy of the current configuration.
func (e *Engine) GetConfig() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config
}

// persistLock writes the fresh escrow entry and the sender's advanced nonce
// through to the store, if one is configured. Callers roll the operation back
// when the write fails.
func (e *Engine) persistLock(messageID common.Hash, sender common.Address) error {
	if e.store == nil {
		return nil
	}
	return e.store.PutLock(messageID, e.ledger.Amount(messageID), sender, e.nonces[sender])
}

// persistSettlement records the consumption of an escrow entry and any
// arbitrage captured against it. Callers roll the operation back when the
// write fails.
func (e *Engine) persistSettlement(messageID common.Hash) error {
	if e.store == nil {
		return nil
	}
	return e.store.PutSettlement(messageID, e.gasArb.Captured(messageID))
}

// deriveMessageID derives a unique escrow key from the sender, lock
// timestamp, destination, and a per-sender nonce.
func deriveMessageID(sender common.Address, destinationID uint32, timestamp, nonce uint64) common.Hash {
	data := make([]byte, 0, common.AddressLength+20)
	data = append(data, sender.Bytes()...)
	data = binary.BigEndian.AppendUint64(data, timestamp)
	data = binary.BigEndian.AppendUint32(data, destinationID)
	data = binary.BigEndian.AppendUint64(data, nonce)
	return common.BytesToHash(crypto.Keccak256(data))
}
