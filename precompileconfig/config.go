// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package precompileconfig defines the configuration interfaces implemented by
// stateful precompile modules and consumed at chain configuration time.
package precompileconfig

import "math/big"

// Config is implemented by each precompile's configuration. Configs are
// compared for upgrade equality and verified against the chain config before
// activation.
type Config interface {
	// Key returns the unique key used in json config files.
	Key() string
	// Timestamp returns the timestamp at which this precompile activates,
	// or nil if it is never enabled.
	Timestamp() *uint64
	// IsDisabled returns true if this config disables the precompile.
	IsDisabled() bool
	// Equal reports whether the given config describes the same upgrade.
	Equal(Config) bool
	// Verify checks the config parameters against the chain config.
	Verify(ChainConfig) error
}

// ChainConfig exposes the chain rules a precompile config may validate
// against.
type ChainConfig interface {
	ChainID() *big.Int
}

// Upgrade carries the activation timestamp shared by all precompile configs.
type Upgrade struct {
	BlockTimestamp *uint64 `json:"blockTimestamp,omitempty"`
	Disable        bool    `json:"disable,omitempty"`
}

// Timestamp returns the timestamp this upgrade goes into effect.
func (u *Upgrade) Timestamp() *uint64 {
	return u.BlockTimestamp
}

// Equal reports whether [u] and [other] describe the same upgrade.
func (u *Upgrade) Equal(other *Upgrade) bool {
	if other == nil {
		return false
	}
	if u.Disable != other.Disable {
		return false
	}
	if (u.BlockTimestamp == nil) != (other.BlockTimestamp == nil) {
		return false
	}
	return u.BlockTimestamp == nil || *u.BlockTimestamp == *other.BlockTimestamp
}
