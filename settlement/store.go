// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package settlement

import (
	"encoding/binary"
	"math/big"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
)

// Store persists the settlement core's durable state: live escrow entries,
// the gas-arbitrage reserve, per-sender nonces, and the two configuration
// integers. Writes that span multiple keys go through a batch so a crash
// cannot leave a half-recorded operation; Load rebuilds everything at engine
// construction.
type Store struct {
	db database.Database
}

var (
	escrowPrefix = []byte("settlement/escrow/")
	gasArbPrefix = []byte("settlement/gasarb/")
	noncePrefix  = []byte("settlement/nonce/")
	configKey    = []byte("settlement/config")
)

// NewStore wraps a database for settlement state persistence.
func NewStore(db database.Database) *Store {
	return &Store{db: db}
}

// PutLock records a fresh escrow entry together with the sender's advanced
// nonce in one atomic batch.
func (s *Store) PutLock(messageID common.Hash, amount *big.Int, sender common.Address, nonce uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, nonce)

	batch := s.db.NewBatch()
	if err := batch.Put(escrowKey(messageID), amount.Bytes()); err != nil {
		return err
	}
	if err := batch.Put(nonceKey(sender), buf); err != nil {
		return err
	}
	return batch.Write()
}

// PutSettlement records the consumption of an escrow entry and, when non-zero,
// the arbitrage captured against it, in one atomic batch. Reserve entries are
// never deleted.
func (s *Store) PutSettlement(messageID common.Hash, captured *big.Int) error {
	batch := s.db.NewBatch()
	if err := batch.Delete(escrowKey(messageID)); err != nil {
		return err
	}
	if captured != nil && captured.Sign() > 0 {
		if err := batch.Put(gasArbKey(messageID), captured.Bytes()); err != nil {
			return err
		}
	}
	return batch.Write()
}

// PutConfig records both configuration integers.
func (s *Store) PutConfig(config Config) error {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], config.FeeShareBps)
	binary.BigEndian.PutUint64(buf[8:], config.MinProfitBps)
	return s.db.Put(configKey, buf)
}

// Load rebuilds the ledger, reserve, nonces, and configuration from the
// database. Absent keys leave the passed-in state untouched.
func (s *Store) Load(ledger *Ledger, gasArb *GasArbReserve, config *Config, nonces map[common.Address]uint64) error {
	iter := s.db.NewIteratorWithPrefix(escrowPrefix)
	defer iter.Release()
	for iter.Next() {
		messageID := common.BytesToHash(iter.Key()[len(escrowPrefix):])
		amount := new(big.Int).SetBytes(iter.Value())
		if err := ledger.Lock(messageID, amount); err != nil {
			return err
		}
	}
	if err := iter.Error(); err != nil {
		return err
	}

	arbIter := s.db.NewIteratorWithPrefix(gasArbPrefix)
	defer arbIter.Release()
	for arbIter.Next() {
		messageID := common.BytesToHash(arbIter.Key()[len(gasArbPrefix):])
		delta := new(big.Int).SetBytes(arbIter.Value())
		gasArb.Capture(messageID, delta)
	}
	if err := arbIter.Error(); err != nil {
		return err
	}

	nonceIter := s.db.NewIteratorWithPrefix(noncePrefix)
	defer nonceIter.Release()
	for nonceIter.Next() {
		if len(nonceIter.Value()) != 8 {
			return ErrValueOutOfRange
		}
		sender := common.BytesToAddress(nonceIter.Key()[len(noncePrefix):])
		nonces[sender] = binary.BigEndian.Uint64(nonceIter.Value())
	}
	if err := nonceIter.Error(); err != nil {
		return err
	}

	buf, err := s.db.Get(configKey)
	switch err {
	case nil:
		if len(buf) != 16 {
			return ErrValueOutOfRange
		}
		config.FeeShareBps = binary.BigEndian.Uint64(buf[:8])
		config.MinProfitBps = binary.BigEndian.Uint64(buf[8:])
	case database.ErrNotFound:
		// Fresh deployment, defaults stand.
	default:
		return err
	}

	return nil
}

func escrowKey(messageID common.Hash) []byte {
	return append(append([]byte{}, escrowPrefix...), messageID.Bytes()...)
}

func gasArbKey(messageID common.Hash) []byte {
	return append(append([]byte{}, gasArbPrefix...), messageID.Bytes()...)
}

func nonceKey(sender common.Address) []byte {
	return append(append([]byte{}, noncePrefix...), sender.Bytes()...)
}
