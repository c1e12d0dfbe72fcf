package pool

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"github.com/LeJamon/goVaultd/internal/core/vaulterr"
)

// Tier is a liquidity layer, ordered from most to least liquid.
type Tier uint8

const (
	// TierCash holds the stable asset and instantly redeemable cash equivalents.
	TierCash Tier = iota + 1
	// TierMoneyMarket holds short-duration money-market assets.
	TierMoneyMarket
	// TierHighYield holds longer-duration, higher-yield assets.
	TierHighYield
)

// Tiers lists every tier in waterfall order.
var Tiers = []Tier{TierCash, TierMoneyMarket, TierHighYield}

func (t Tier) String() string {
	switch t {
	case TierCash:
		return "cash"
	case TierMoneyMarket:
		return "money_market"
	case TierHighYield:
		return "high_yield"
	default:
		return fmt.Sprintf("tier(%d)", uint8(t))
	}
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t >= TierCash && t <= TierHighYield
}

// ParseTier accepts a tier name or its number ("1", "2", "3").
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cash", "1", "layer1":
		return TierCash, nil
	case "money_market", "2", "layer2":
		return TierMoneyMarket, nil
	case "high_yield", "3", "layer3":
		return TierHighYield, nil
	default:
		return 0, fmt.Errorf("%w: %q", vaulterr.ErrInvalidTier, s)
	}
}

// AssetConfig describes one investable asset.
type AssetConfig struct {
	Token          string
	Tier           Tier
	Active         bool
	Adapter        string
	MaxSlippageBps uint64
	Decimals       uint8
}

// Validate checks the static fields of an asset configuration.
func (a AssetConfig) Validate() error {
	if a.Token == "" {
		return vaulterr.ErrUnknownAsset
	}
	if !a.Tier.Valid() {
		return vaulterr.ErrInvalidTier
	}
	if a.MaxSlippageBps > 10_000 {
		return vaulterr.ErrInvalidRatio
	}
	return nil
}

// Holding is a read-only view of one position.
type Holding struct {
	Asset AssetConfig
	Units *uint256.Int
	Value *uint256.Int
}
