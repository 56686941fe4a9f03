// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package modules

import (
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

func TestReservedAddress(t *testing.T) {
	require := require.New(t)

	require.True(ReservedAddress(common.HexToAddress("0x0100000000000000000000000000000000000000")))
	require.True(ReservedAddress(common.HexToAddress("0x01000000000000000000000000000000000000ff")))
	require.True(ReservedAddress(common.HexToAddress("0x0000000000000000000000000000000000006100")))
	require.True(ReservedAddress(common.HexToAddress("0x0000000000000000000000000000000000006fff")))

	require.False(ReservedAddress(common.HexToAddress("0x0000000000000000000000000000000000007000")))
	require.False(ReservedAddress(common.HexToAddress("0x0300000000000000000000000000000000000000")))
	require.False(ReservedAddress(BlackholeAddr))
}

func TestRegisterModuleRejectsUnreservedAddress(t *testing.T) {
	err := RegisterModule(Module{
		ConfigKey: "outsideRangeConfig",
		Address:   common.HexToAddress("0x0000000000000000000000000000000000009999"),
	})
	require.Error(t, err)
}

func TestRegisterModuleRejectsDuplicates(t *testing.T) {
	require := require.New(t)

	module := Module{
		ConfigKey: "duplicateTestConfig",
		Address:   common.HexToAddress("0x0000000000000000000000000000000000006f00"),
	}
	require.NoError(RegisterModule(module))

	require.Error(RegisterModule(module))
	require.Error(RegisterModule(Module{
		ConfigKey: "duplicateTestConfigOther",
		Address:   module.Address,
	}))

	registered, ok := GetPrecompileModule("duplicateTestConfig")
	require.True(ok)
	require.Equal(module.Address, registered.Address)
}
