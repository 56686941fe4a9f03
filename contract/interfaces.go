// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package contract defines the interfaces a stateful precompiled contract uses
// to interact with chain state.
package contract

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"

	"github.com/luxfi/settle/precompileconfig"
)

// StateDB is the subset of the EVM state database available to stateful
// precompiles.
type StateDB interface {
	GetState(common.Address, common.Hash) common.Hash
	SetState(common.Address, common.Hash, common.Hash)

	GetBalance(common.Address) *uint256.Int
	AddBalance(common.Address, *uint256.Int, tracing.BalanceChangeReason)
	SubBalance(common.Address, *uint256.Int, tracing.BalanceChangeReason)

	// Snapshot and RevertToSnapshot provide the all-or-nothing guarantee for
	// a single precompile invocation.
	Snapshot() int
	RevertToSnapshot(int)
}

// BlockContext exposes block information to a running precompile.
type BlockContext interface {
	Number() *big.Int
	Timestamp() uint64
}

// ConfigurationBlockContext is the block context available during chain
// configuration.
type ConfigurationBlockContext interface {
	Number() *big.Int
	Timestamp() uint64
}

// AccessibleState is the chain state accessible to a stateful precompile
// during execution.
type AccessibleState interface {
	GetStateDB() StateDB
	GetBlockContext() BlockContext
}

// StatefulPrecompiledContract is the interface for executing a precompiled
// contract against chain state.
type StatefulPrecompiledContract interface {
	Run(
		accessibleState AccessibleState,
		caller common.Address,
		addr common.Address,
		input []byte,
		suppliedGas uint64,
		readOnly bool,
	) (ret []byte, remainingGas uint64, err error)
}

// Configurator updates the configuration of a precompile when it is activated
// or upgraded.
type Configurator interface {
	MakeConfig() precompileconfig.Config
	Configure(
		chainConfig precompileconfig.ChainConfig,
		precompileConfig precompileconfig.Config,
		state StateDB,
		blockContext ConfigurationBlockContext,
	) error
}
