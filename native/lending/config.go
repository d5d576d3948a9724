package lending

import (
	"fmt"
	"strings"
	"time"
)

// AssetConfig declares one money-market asset in the configuration file.
type AssetConfig struct {
	Symbol                  string `toml:"Symbol"`
	Decimals                uint8  `toml:"Decimals"`
	CollateralFactorBps     uint64 `toml:"CollateralFactorBps"`
	LiquidationThresholdBps uint64 `toml:"LiquidationThresholdBps"`
	ReserveFactorBps        uint64 `toml:"ReserveFactorBps"`
	Inactive                bool   `toml:"Inactive"`
}

// InterestConfig declares the kink interest curve in basis points.
type InterestConfig struct {
	BaseRateBps uint64 `toml:"BaseRateBps"`
	Slope1Bps   uint64 `toml:"Slope1Bps"`
	Slope2Bps   uint64 `toml:"Slope2Bps"`
	KinkBps     uint64 `toml:"KinkBps"`
}

// Config is the lending module's section of the node configuration file.
type Config struct {
	CloseFactorBps      uint64         `toml:"CloseFactorBps"`
	LiquidationBonusBps uint64         `toml:"LiquidationBonusBps"`
	MaxQuoteAgeSeconds  uint64         `toml:"MaxQuoteAgeSeconds"`
	RewardRateBps       uint64         `toml:"RewardRateBps"`
	RewardTreasury      string         `toml:"RewardTreasury"`
	Interest            InterestConfig `toml:"interest"`
	Assets              []AssetConfig  `toml:"assets"`
}

// DefaultConfig mirrors DefaultParams and DefaultInterestModel with an empty
// asset list.
func DefaultConfig() Config {
	params := DefaultParams()
	return Config{
		CloseFactorBps:      params.CloseFactorBps,
		LiquidationBonusBps: params.LiquidationBonusBps,
		MaxQuoteAgeSeconds:  uint64(params.MaxQuoteAge / time.Second),
		RewardRateBps:       params.RewardRateBps,
		Interest: InterestConfig{
			BaseRateBps: DefaultInterestModel.BaseRateBps,
			Slope1Bps:   DefaultInterestModel.Slope1Bps,
			Slope2Bps:   DefaultInterestModel.Slope2Bps,
			KinkBps:     DefaultInterestModel.KinkBps,
		},
	}
}

// Params converts the config into normalised engine parameters.
func (c Config) Params() Params {
	return Params{
		CloseFactorBps:      c.CloseFactorBps,
		LiquidationBonusBps: c.LiquidationBonusBps,
		MaxQuoteAge:         time.Duration(c.MaxQuoteAgeSeconds) * time.Second,
		RewardRateBps:       c.RewardRateBps,
		RewardTreasury:      strings.TrimSpace(c.RewardTreasury),
	}.Normalise()
}

// Model converts the config into an interest model, falling back to the
// default curve when the section is zero-valued.
func (c Config) Model() *InterestModel {
	if c.Interest == (InterestConfig{}) {
		return DefaultInterestModel.Clone()
	}
	return NewInterestModel(c.Interest.BaseRateBps, c.Interest.Slope1Bps, c.Interest.Slope2Bps, c.Interest.KinkBps)
}

// BuildRegistry registers every configured asset into a fresh registry.
func (c Config) BuildRegistry() (*Registry, error) {
	registry := NewRegistry()
	for _, entry := range c.Assets {
		asset := Asset{
			Symbol:                  entry.Symbol,
			Decimals:                entry.Decimals,
			CollateralFactorBps:     entry.CollateralFactorBps,
			LiquidationThresholdBps: entry.LiquidationThresholdBps,
			ReserveFactorBps:        entry.ReserveFactorBps,
			Active:                  !entry.Inactive,
		}
		if err := registry.Register(asset); err != nil {
			return nil, fmt.Errorf("lending config: asset %q: %w", entry.Symbol, err)
		}
	}
	return registry, nil
}
