package config

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/LeJamon/goVaultd/internal/core/amount"
	"github.com/LeJamon/goVaultd/internal/core/pool"
)

// PoolConfig represents the [pool] section
type PoolConfig struct {
	ValuationTTL time.Duration     `toml:"valuation_ttl" mapstructure:"valuation_ttl"`
	LayerRatios  map[string]uint64 `toml:"layer_ratios" mapstructure:"layer_ratios"`
	Market       string            `toml:"market" mapstructure:"market"`
	SpreadBps    uint64            `toml:"spread_bps" mapstructure:"spread_bps"`
	Assets       []AssetConfig     `toml:"assets" mapstructure:"assets"`
}

// AssetConfig represents one [[pool.assets]] entry
type AssetConfig struct {
	Token          string `toml:"token" mapstructure:"token"`
	Tier           string `toml:"tier" mapstructure:"tier"`
	Decimals       uint8  `toml:"decimals" mapstructure:"decimals"`
	MaxSlippageBps uint64 `toml:"max_slippage_bps" mapstructure:"max_slippage_bps"`
	Active         bool   `toml:"active" mapstructure:"active"`
	Price          string `toml:"price" mapstructure:"price"`
}

// Validate checks the [pool] section
func (p *PoolConfig) Validate(assetDecimals uint8) error {
	if p.ValuationTTL < 0 {
		return fmt.Errorf("valuation_ttl must be >= 0")
	}
	if p.SpreadBps > amount.BasisPointsDenominator {
		return fmt.Errorf("spread_bps must be <= %d", amount.BasisPointsDenominator)
	}
	if _, err := p.Ratios(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(p.Assets))
	for i := range p.Assets {
		a := &p.Assets[i]
		if seen[a.Token] {
			return fmt.Errorf("asset %s listed twice", a.Token)
		}
		seen[a.Token] = true
		cfg, err := a.Build()
		if err != nil {
			return fmt.Errorf("asset %d: %w", i, err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("asset %s: %w", a.Token, err)
		}
		if _, err := a.PriceUnits(assetDecimals); err != nil {
			return fmt.Errorf("asset %s: %w", a.Token, err)
		}
	}
	return nil
}

// Ratios parses layer_ratios keyed by tier name. Missing tiers are zero.
func (p *PoolConfig) Ratios() (map[pool.Tier]uint64, error) {
	out := make(map[pool.Tier]uint64, len(p.LayerRatios))
	var sum uint64
	for name, bps := range p.LayerRatios {
		tier, err := pool.ParseTier(name)
		if err != nil {
			return nil, fmt.Errorf("layer_ratios: %w", err)
		}
		out[tier] = bps
		sum += bps
	}
	if sum != amount.BasisPointsDenominator {
		return nil, fmt.Errorf("layer_ratios must sum to %d, got %d", amount.BasisPointsDenominator, sum)
	}
	return out, nil
}

// Build converts the entry into a pool asset configuration.
func (a *AssetConfig) Build() (pool.AssetConfig, error) {
	if a.Token == "" {
		return pool.AssetConfig{}, fmt.Errorf("token is required")
	}
	tier, err := pool.ParseTier(a.Tier)
	if err != nil {
		return pool.AssetConfig{}, err
	}
	return pool.AssetConfig{
		Token:          a.Token,
		Tier:           tier,
		Active:         a.Active,
		Decimals:       a.Decimals,
		MaxSlippageBps: a.MaxSlippageBps,
	}, nil
}

// PriceUnits returns the static price in asset base units per whole token.
// Empty means one asset unit.
func (a *AssetConfig) PriceUnits(assetDecimals uint8) (*uint256.Int, error) {
	if a.Price == "" {
		return amount.Units(1, assetDecimals), nil
	}
	return units("price", a.Price, assetDecimals)
}
