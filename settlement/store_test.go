// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package settlement

import (
	"errors"
	"math/big"
	"testing"

	"github.com/luxfi/database"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

// faultyDB wraps a database and fails every batch write on demand.
type faultyDB struct {
	database.Database
	failWrite bool
}

var errWriteFailed = errors.New("write failed")

func (db *faultyDB) NewBatch() database.Batch {
	return &faultyBatch{Batch: db.Database.NewBatch(), db: db}
}

type faultyBatch struct {
	database.Batch
	db *faultyDB
}

func (b *faultyBatch) Write() error {
	if b.db.failWrite {
		return errWriteFailed
	}
	return b.Batch.Write()
}

func loadStore(t *testing.T, store *Store) (*Ledger, *GasArbReserve, Config, map[common.Address]uint64) {
	t.Helper()

	ledger := NewLedger()
	gasArb := NewGasArbReserve()
	config := DefaultConfig()
	nonces := make(map[common.Address]uint64)
	require.NoError(t, store.Load(ledger, gasArb, &config, nonces))
	return ledger, gasArb, config, nonces
}

func TestStoreLockRoundTrip(t *testing.T) {
	require := require.New(t)
	store := NewStore(memdb.New())

	first := common.HexToHash("0x01")
	second := common.HexToHash("0x02")
	require.NoError(store.PutLock(first, big.NewInt(100), testSender, 1))
	require.NoError(store.PutLock(second, big.NewInt(250), testSender, 2))
	require.NoError(store.PutSettlement(second, nil))

	ledger, _, _, nonces := loadStore(t, store)

	require.Zero(ledger.Amount(first).Cmp(big.NewInt(100)))
	require.Zero(ledger.Amount(second).Sign())
	require.Equal(1, ledger.Len())
	require.Equal(uint64(2), nonces[testSender])
}

func TestStoreSettlementRecordsCapture(t *testing.T) {
	require := require.New(t)
	store := NewStore(memdb.New())

	messageID := common.HexToHash("0x01")
	require.NoError(store.PutLock(messageID, big.NewInt(100), testSender, 1))
	require.NoError(store.PutSettlement(messageID, big.NewInt(17)))

	ledger, gasArb, _, _ := loadStore(t, store)

	require.Zero(ledger.Amount(messageID).Sign())
	require.Zero(gasArb.Captured(messageID).Cmp(big.NewInt(17)))
	require.Zero(gasArb.Total().Cmp(big.NewInt(17)))
}

func TestStoreConfigRoundTrip(t *testing.T) {
	require := require.New(t)
	store := NewStore(memdb.New())

	require.NoError(store.PutConfig(Config{FeeShareBps: 20, MinProfitBps: 777}))

	_, _, config, _ := loadStore(t, store)

	require.Equal(uint64(20), config.FeeShareBps)
	require.Equal(uint64(777), config.MinProfitBps)
}

func TestStoreConfigDefaultsWhenAbsent(t *testing.T) {
	require := require.New(t)
	store := NewStore(memdb.New())

	_, _, config, _ := loadStore(t, store)

	require.Equal(DefaultFeeShareBps, config.FeeShareBps)
	require.Equal(DefaultMinProfitBps, config.MinProfitBps)
}

func TestStoreConfigRejectsTruncatedValue(t *testing.T) {
	require := require.New(t)
	db := memdb.New()
	require.NoError(db.Put([]byte("settlement/config"), []byte{0x01, 0x02}))

	store := NewStore(db)
	config := DefaultConfig()
	err := store.Load(NewLedger(), NewGasArbReserve(), &config, make(map[common.Address]uint64))
	require.ErrorIs(err, ErrValueOutOfRange)
}

// A restarted engine over the same database sees live escrow entries, the
// arbitrage reserve, nonces, and the configured parameters exactly as left.
func TestEngineRestartRecoversState(t *testing.T) {
	require := require.New(t)
	db := memdb.New()

	env := newTestEnv(t)
	params := Params{
		Bank:       env.bank,
		Minter:     env.minter,
		Vault:      env.vault,
		Transport:  env.transport,
		Governance: env.gov,
		Authority:  testAuthority,
		Hub:        testHub,
		Store:      NewStore(db),
	}
	engine, err := NewEngine(params)
	require.NoError(err)

	settledID, err := engine.PayGas(testSender, 1, 21000, testLockTime, big.NewInt(100))
	require.NoError(err)
	liveID, err := engine.PayGas(testSender, 1, 21000, testLockTime, big.NewInt(50))
	require.NoError(err)

	_, err = engine.ReimburseRelayer(testHub, testRelayer, settledID, big.NewInt(60))
	require.NoError(err)
	require.NoError(engine.SetMinProfitBps(testAuthority, 777))

	restarted, err := NewEngine(params)
	require.NoError(err)

	require.Zero(restarted.EscrowedAmount(liveID).Cmp(big.NewInt(50)))
	require.Zero(restarted.EscrowedAmount(settledID).Sign())
	require.Zero(restarted.GasArbCaptured(settledID).Cmp(big.NewInt(17)))
	require.Equal(uint64(777), restarted.GetConfig().MinProfitBps)

	// The recovered nonce keeps derivation moving forward: a lock at the same
	// block timestamp yields a fresh identifier instead of colliding.
	freshID, err := restarted.PayGas(testSender, 1, 21000, testLockTime, big.NewInt(25))
	require.NoError(err)
	require.NotEqual(settledID, freshID)
	require.NotEqual(liveID, freshID)
}

func TestPayGasStoreFailureRollsBack(t *testing.T) {
	require := require.New(t)
	db := &faultyDB{Database: memdb.New(), failWrite: true}

	env := newTestEnv(t)
	engine, err := NewEngine(Params{
		Bank:       env.bank,
		Minter:     env.minter,
		Vault:      env.vault,
		Transport:  env.transport,
		Governance: env.gov,
		Authority:  testAuthority,
		Hub:        testHub,
		Store:      NewStore(db),
	})
	require.NoError(err)

	_, err = engine.PayGas(testSender, 1, 21000, testLockTime, big.NewInt(100))
	require.ErrorIs(err, errWriteFailed)

	require.Zero(engine.TotalEscrowed().Sign())
	require.Zero(engine.PoolBalance().Sign())
}

func TestReimburseStoreFailureRollsBack(t *testing.T) {
	require := require.New(t)
	db := &faultyDB{Database: memdb.New()}

	env := newTestEnv(t)
	engine, err := NewEngine(Params{
		Bank:       env.bank,
		Minter:     env.minter,
		Vault:      env.vault,
		Transport:  env.transport,
		Governance: env.gov,
		Authority:  testAuthority,
		Hub:        testHub,
		Store:      NewStore(db),
	})
	require.NoError(err)

	messageID, err := engine.PayGas(testSender, 1, 21000, testLockTime, big.NewInt(100))
	require.NoError(err)

	db.failWrite = true
	_, err = engine.ReimburseRelayer(testHub, testRelayer, messageID, big.NewInt(60))
	require.ErrorIs(err, errWriteFailed)

	require.Zero(engine.EscrowedAmount(messageID).Cmp(big.NewInt(100)))
	require.Zero(engine.GasArbCaptured(messageID).Sign())
	require.Zero(engine.PoolBalance().Cmp(big.NewInt(100)))
	require.Zero(env.bank.paid(testRelayer).Sign())

	// The operation can be re-driven once the store accepts writes again.
	db.failWrite = false
	settled, err := engine.ReimburseRelayer(testHub, testRelayer, messageID, big.NewInt(60))
	require.NoError(err)
	require.Zero(settled.RelayerPayment.Cmp(big.NewInt(60)))
	require.Zero(env.bank.paid(testRelayer).Cmp(big.NewInt(60)))
}

func TestRefundStoreFailureRollsBack(t *testing.T) {
	require := require.New(t)
	db := &faultyDB{Database: memdb.New()}

	env := newTestEnv(t)
	engine, err := NewEngine(Params{
		Bank:       env.bank,
		Minter:     env.minter,
		Vault:      env.vault,
		Transport:  env.transport,
		Governance: env.gov,
		Authority:  testAuthority,
		Hub:        testHub,
		Store:      NewStore(db),
	})
	require.NoError(err)

	messageID, err := engine.PayGas(testSender, 1, 21000, testLockTime, big.NewInt(100))
	require.NoError(err)

	db.failWrite = true
	_, err = engine.RefundLockedGasFee(testAuthority, messageID, testRecipient)
	require.ErrorIs(err, errWriteFailed)

	require.Zero(engine.EscrowedAmount(messageID).Cmp(big.NewInt(100)))
	require.Zero(engine.PoolBalance().Cmp(big.NewInt(100)))
	require.Zero(env.bank.paid(testRecipient).Sign())

	db.failWrite = false
	amount, err := engine.RefundLockedGasFee(testAuthority, messageID, testRecipient)
	require.NoError(err)
	require.Zero(amount.Cmp(big.NewInt(100)))
}

func TestStoreLoadPropagatesDatabaseError(t *testing.T) {
	require := require.New(t)
	db := memdb.New()
	store := NewStore(db)

	require.NoError(db.Close())
	config := DefaultConfig()
	err := store.Load(NewLedger(), NewGasArbReserve(), &config, make(map[common.Address]uint64))
	require.ErrorIs(err, database.ErrClosed)
}
