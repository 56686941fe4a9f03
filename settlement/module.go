// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package settlement

import (
	"fmt"

	"github.com/luxfi/settle/contract"
	"github.com/luxfi/settle/modules"
	"github.com/luxfi/settle/precompileconfig"
)

var _ contract.Configurator = (*configurator)(nil)

// ConfigKey is the key used in json config files to specify this precompile config.
const ConfigKey = "relaySettlementConfig"

// Module is the precompile module
var Module = modules.Module{
	ConfigKey:    ConfigKey,
	Address:      ContractAddress,
	Contract:     ContractInstance,
	Configurator: &configurator{},
}

type configurator struct{}

func init() {
	if err := modules.RegisterModule(Module); err != nil {
		panic(err)
	}
}

func (*configurator) MakeConfig() precompileconfig.Config {
	return new(SettlementConfig)
}

func (*configurator) Configure(
	chainConfig precompileconfig.ChainConfig,
	cfg precompileconfig.Config,
	state contract.StateDB,
	blockContext contract.ConfigurationBlockContext,
) error {
	config, ok := cfg.(*SettlementConfig)
	if !ok {
		return fmt.Errorf("expected config type %T, got %T: %v", &SettlementConfig{}, cfg, cfg)
	}

	if ContractInstance.engine == nil {
		// Engine is wired later during VM initialization; the upgrade values
		// are applied when SetEngine runs.
		return nil
	}

	ContractInstance.engine.applyConfig(config)
	return nil
}

// SettlementConfig implements the precompileconfig.Config interface and
// carries the deployment parameters of the settlement precompile.
type SettlementConfig struct {
	Upgrade      precompileconfig.Upgrade `json:"upgrade,omitempty"`
	FeeShareBps  *uint64                  `json:"feeShareBps,omitempty"`
	MinProfitBps *uint64                  `json:"minProfitBps,omitempty"`
}

func (c *SettlementConfig) Key() string {
	return ConfigKey
}

func (c *SettlementConfig) Timestamp() *uint64 {
	return c.Upgrade.Timestamp()
}

func (c *SettlementConfig) IsDisabled() bool {
	return c.Upgrade.Disable
}

func (c *SettlementConfig) Equal(cfg precompileconfig.Config) bool {
	other, ok := cfg.(*SettlementConfig)
	if !ok {
		return false
	}
	return c.Upgrade.Equal(&other.Upgrade) &&
		equalUint64Ptr(c.FeeShareBps, other.FeeShareBps) &&
		equalUint64Ptr(c.MinProfitBps, other.MinProfitBps)
}

func (c *SettlementConfig) Verify(chainConfig precompileconfig.ChainConfig) error {
	if c.FeeShareBps != nil && *c.FeeShareBps > MaxFeeShare {
		return fmt.Errorf("feeShareBps %d above maximum %d", *c.FeeShareBps, MaxFeeShare)
	}
	if c.MinProfitBps != nil && *c.MinProfitBps > MaxMinProfitBps {
		return fmt.Errorf("minProfitBps %d above maximum %d", *c.MinProfitBps, MaxMinProfitBps)
	}
	return nil
}

func equalUint64Ptr(a, b *uint64) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

// applyConfig installs upgrade values without the authority check; chain
// configuration is the authority at this layer.
func (e *Engine) applyConfig(config *SettlementConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if config.FeeShareBps != nil {
		e.config.FeeShareBps = *config.FeeShareBps
	}
	if config.MinProfitBps != nil {
		e.config.MinProfitBps = *config.MinProfitBps
	}
}
