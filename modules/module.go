// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package modules registers stateful precompile modules at reserved addresses.
package modules

import (
	"bytes"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/settle/contract"
)

// Module is the registration unit for a stateful precompile: a config key for
// json chain configs, the reserved address the contract lives at, the contract
// itself, and its configurator.
type Module struct {
	ConfigKey    string
	Address      common.Address
	Contract     contract.StatefulPrecompiledContract
	Configurator contract.Configurator
}

type moduleArray []Module

func (m moduleArray) Len() int {
	return len(m)
}

func (m moduleArray) Swap(i, j int) {
	m[i], m[j] = m[j], m[i]
}

func (m moduleArray) Less(i, j int) bool {
	return bytes.Compare(m[i].Address.Bytes(), m[j].Address.Bytes()) < 0
}
