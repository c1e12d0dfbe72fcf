// Package pool implements the tiered asset pool behind the vault: the cash
// tier, the money-market tier and the high-yield tier. It values holdings
// through a PriceSource, converts between cash and assets through an
// Adapter, and funds shortfalls by liquidating tiers in waterfall order.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/LeJamon/goVaultd/internal/core/amount"
	"github.com/LeJamon/goVaultd/internal/core/journal"
	"github.com/LeJamon/goVaultd/internal/core/vaulterr"
	"github.com/LeJamon/goVaultd/internal/types"
)

// DefaultValuationTTL bounds the staleness of cached tier valuations.
const DefaultValuationTTL = 5 * time.Minute

// PriceSource quotes an asset in stable-asset base units per whole token.
type PriceSource interface {
	Price(ctx context.Context, token string) (*uint256.Int, error)
}

// Adapter executes conversions between the stable asset and an asset.
// Cash moves on the vault's cash ledger; the pool tracks asset units.
type Adapter interface {
	Buy(ctx context.Context, asset AssetConfig, cash *uint256.Int) (units *uint256.Int, err error)
	Sell(ctx context.Context, asset AssetConfig, units *uint256.Int) (proceeds *uint256.Int, err error)
}

// CashLedger is the stable-asset ledger holding the vault's raw cash.
type CashLedger interface {
	BalanceOf(owner types.Address) *uint256.Int
}

// Config wires a pool.
type Config struct {
	Vault        types.Address
	Cash         CashLedger
	Prices       PriceSource
	Adapter      Adapter
	ValuationTTL time.Duration
	LayerRatios  map[Tier]uint64
	Journal      *journal.Journal
	Logger       *zap.Logger
}

// DefaultLayerRatios is the target allocation in basis points.
func DefaultLayerRatios() map[Tier]uint64 {
	return map[Tier]uint64{TierCash: 3_000, TierMoneyMarket: 4_000, TierHighYield: 3_000}
}

// Pool is the vault's tiered asset pool.
type Pool struct {
	mu          sync.Mutex
	vault       types.Address
	cash        CashLedger
	prices      PriceSource
	adapter     Adapter
	assets      map[string]AssetConfig
	order       []string
	holdings    map[string]*uint256.Int
	layerRatios map[Tier]uint64

	valuations *expirable.LRU[Tier, *uint256.Int]
	flight     singleflight.Group

	journal *journal.Journal
	logger  *zap.Logger
}

// New creates a pool with no registered assets.
func New(cfg Config) (*Pool, error) {
	if cfg.Vault.IsZero() {
		return nil, vaulterr.ErrZeroAddress
	}
	if cfg.Cash == nil || cfg.Prices == nil || cfg.Adapter == nil {
		return nil, fmt.Errorf("pool: cash ledger, price source and adapter are required")
	}
	if cfg.ValuationTTL <= 0 {
		cfg.ValuationTTL = DefaultValuationTTL
	}
	if cfg.LayerRatios == nil {
		cfg.LayerRatios = DefaultLayerRatios()
	}
	if err := validateLayerRatios(cfg.LayerRatios); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Pool{
		vault:       cfg.Vault,
		cash:        cfg.Cash,
		prices:      cfg.Prices,
		adapter:     cfg.Adapter,
		assets:      make(map[string]AssetConfig),
		holdings:    make(map[string]*uint256.Int),
		layerRatios: copyRatios(cfg.LayerRatios),
		valuations:  expirable.NewLRU[Tier, *uint256.Int](len(Tiers), nil, cfg.ValuationTTL),
		journal:     cfg.Journal,
		logger:      cfg.Logger,
	}, nil
}

// RegisterAsset adds an investable asset.
func (p *Pool) RegisterAsset(cfg AssetConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.assets[cfg.Token]; ok {
		return vaulterr.ErrAssetExists
	}
	p.assets[cfg.Token] = cfg
	p.order = append(p.order, cfg.Token)
	p.valuations.Purge()
	p.logger.Info("asset registered",
		zap.String("token", cfg.Token),
		zap.Stringer("tier", cfg.Tier),
		zap.Bool("active", cfg.Active),
	)
	return nil
}

// SetAssetActive toggles an asset for purchases and liquidation.
func (p *Pool) SetAssetActive(token string, active bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cfg, ok := p.assets[token]
	if !ok {
		return vaulterr.ErrUnknownAsset
	}
	prev := cfg.Active
	cfg.Active = active
	p.assets[token] = cfg
	p.valuations.Purge()
	p.journal.Record(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		c := p.assets[token]
		c.Active = prev
		p.assets[token] = c
		p.valuations.Purge()
	})
	p.logger.Info("asset activity changed", zap.String("token", token), zap.Bool("active", active))
	return nil
}

// Asset returns the configuration of a registered asset.
func (p *Pool) Asset(token string) (AssetConfig, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cfg, ok := p.assets[token]
	return cfg, ok
}

// SetLayerRatios replaces the target allocation. Ratios must sum to 10000.
func (p *Pool) SetLayerRatios(ratios map[Tier]uint64) error {
	if err := validateLayerRatios(ratios); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.layerRatios
	p.layerRatios = copyRatios(ratios)
	p.journal.Record(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.layerRatios = prev
	})
	return nil
}

// LayerRatios returns a copy of the target allocation.
func (p *Pool) LayerRatios() map[Tier]uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return copyRatios(p.layerRatios)
}

// Cash returns the vault's raw stable-asset balance.
func (p *Pool) Cash() *uint256.Int {
	return p.cash.BalanceOf(p.vault)
}

// TierValue returns the value of a tier. The cash tier includes raw cash.
func (p *Pool) TierValue(ctx context.Context, tier Tier) (*uint256.Int, error) {
	if !tier.Valid() {
		return nil, vaulterr.ErrInvalidTier
	}
	held, err := p.cachedHoldingsValue(ctx, tier)
	if err != nil {
		return nil, err
	}
	if tier == TierCash {
		return amount.Add(held, p.Cash())
	}
	return held, nil
}

// GrossAssetValue returns cash plus the value of every holding.
func (p *Pool) GrossAssetValue(ctx context.Context) (*uint256.Int, error) {
	total := p.Cash()
	for _, tier := range Tiers {
		held, err := p.cachedHoldingsValue(ctx, tier)
		if err != nil {
			return nil, err
		}
		if total, err = amount.Add(total, held); err != nil {
			return nil, err
		}
	}
	return total, nil
}

// Holdings lists every registered asset with its units and current value.
func (p *Pool) Holdings(ctx context.Context) ([]Holding, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Holding, 0, len(p.order))
	for _, token := range p.order {
		cfg := p.assets[token]
		units := amount.Or(p.holdings[token]).Clone()
		value, err := p.valueLocked(ctx, cfg, units)
		if err != nil {
			return nil, err
		}
		out = append(out, Holding{Asset: cfg, Units: units, Value: value})
	}
	return out, nil
}

// Invalidate drops cached valuations.
func (p *Pool) Invalidate() {
	p.valuations.Purge()
}

// Purchase converts cash into an asset. Purchases into the money-market and
// high-yield tiers must keep the tier within its layer ratio of gross assets.
func (p *Pool) Purchase(ctx context.Context, token string, cash *uint256.Int) (*uint256.Int, error) {
	if cash.IsZero() {
		return nil, vaulterr.ErrZeroAmount
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	cfg, ok := p.assets[token]
	if !ok {
		return nil, vaulterr.ErrUnknownAsset
	}
	if !cfg.Active {
		return nil, vaulterr.ErrAssetInactive
	}
	if p.Cash().Lt(cash) {
		return nil, vaulterr.ErrInsufficientLiquidity
	}
	if cfg.Tier != TierCash {
		if err := p.checkLayerRatioLocked(ctx, cfg.Tier, cash); err != nil {
			return nil, err
		}
	}

	expected, err := p.unitsForValueLocked(ctx, cfg, cash, false)
	if err != nil {
		return nil, err
	}
	units, err := p.adapter.Buy(ctx, cfg, cash)
	if err != nil {
		return nil, fmt.Errorf("buy %s: %w", token, err)
	}
	if units.Lt(minAfterSlippage(expected, cfg.MaxSlippageBps)) {
		return nil, vaulterr.ErrSlippageExceeded
	}
	if err := p.addHoldingLocked(token, units); err != nil {
		return nil, err
	}

	p.logger.Info("asset purchased",
		zap.String("token", token),
		zap.String("cash", cash.Dec()),
		zap.String("units", units.Dec()),
	)
	return units, nil
}

// Liquidate sells holdings, lowest tier first and never above maxTier, until
// needed cash has been raised or the tiers are exhausted. It is best effort:
// an asset whose sale fails is skipped and the amount actually raised is
// returned.
func (p *Pool) Liquidate(ctx context.Context, needed *uint256.Int, maxTier Tier) (*uint256.Int, error) {
	if !maxTier.Valid() {
		return nil, vaulterr.ErrInvalidTier
	}
	funded := amount.Zero()
	if needed.IsZero() {
		return funded, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, tier := range Tiers {
		if tier > maxTier || !funded.Lt(needed) {
			break
		}
		for _, token := range p.order {
			if !funded.Lt(needed) {
				break
			}
			cfg := p.assets[token]
			if cfg.Tier != tier || !cfg.Active {
				continue
			}
			remaining := new(uint256.Int).Sub(needed, funded)

			var proceeds *uint256.Int
			err := p.journal.Run(func() error {
				var err error
				proceeds, err = p.sellLocked(ctx, cfg, remaining)
				return err
			})
			if err != nil {
				p.logger.Warn("liquidation skipped asset",
					zap.String("token", token),
					zap.Stringer("tier", tier),
					zap.Error(err),
				)
				continue
			}
			funded.Add(funded, proceeds)
		}
	}

	p.logger.Info("waterfall liquidation",
		zap.String("needed", needed.Dec()),
		zap.String("funded", funded.Dec()),
		zap.Stringer("maxTier", maxTier),
	)
	return funded, nil
}

// sellLocked sells enough units of one asset to raise up to target cash.
func (p *Pool) sellLocked(ctx context.Context, cfg AssetConfig, target *uint256.Int) (*uint256.Int, error) {
	held := amount.Or(p.holdings[cfg.Token])
	if held.IsZero() {
		return amount.Zero(), nil
	}
	units, err := p.unitsForValueLocked(ctx, cfg, target, true)
	if err != nil {
		return nil, err
	}
	units = amount.Min(units, held)
	if units.IsZero() {
		return amount.Zero(), nil
	}
	expected, err := p.valueLocked(ctx, cfg, units)
	if err != nil {
		return nil, err
	}

	proceeds, err := p.adapter.Sell(ctx, cfg, units)
	if err != nil {
		return nil, fmt.Errorf("sell %s: %w", cfg.Token, err)
	}
	if proceeds.Lt(minAfterSlippage(expected, cfg.MaxSlippageBps)) {
		return nil, vaulterr.ErrSlippageExceeded
	}
	if err := p.subHoldingLocked(cfg.Token, units); err != nil {
		return nil, err
	}
	return proceeds, nil
}

func (p *Pool) cachedHoldingsValue(ctx context.Context, tier Tier) (*uint256.Int, error) {
	if v, ok := p.valuations.Get(tier); ok {
		return v.Clone(), nil
	}
	v, err, _ := p.flight.Do(tier.String(), func() (any, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.holdingsValueLocked(ctx, tier)
	})
	if err != nil {
		return nil, err
	}
	return v.(*uint256.Int).Clone(), nil
}

func (p *Pool) holdingsValueLocked(ctx context.Context, tier Tier) (*uint256.Int, error) {
	if v, ok := p.valuations.Get(tier); ok {
		return v.Clone(), nil
	}
	total := amount.Zero()
	for _, token := range p.order {
		cfg := p.assets[token]
		if cfg.Tier != tier {
			continue
		}
		v, err := p.valueLocked(ctx, cfg, amount.Or(p.holdings[token]))
		if err != nil {
			return nil, err
		}
		if total, err = amount.Add(total, v); err != nil {
			return nil, err
		}
	}
	p.valuations.Add(tier, total.Clone())
	p.logger.Debug("tier valuation refreshed", zap.Stringer("tier", tier), zap.String("value", total.Dec()))
	return total, nil
}

func (p *Pool) valueLocked(ctx context.Context, cfg AssetConfig, units *uint256.Int) (*uint256.Int, error) {
	if units.IsZero() {
		return amount.Zero(), nil
	}
	price, err := p.prices.Price(ctx, cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("price %s: %w", cfg.Token, err)
	}
	return amount.MulDiv(units, price, amount.Pow10(cfg.Decimals))
}

func (p *Pool) unitsForValueLocked(ctx context.Context, cfg AssetConfig, value *uint256.Int, roundUp bool) (*uint256.Int, error) {
	price, err := p.prices.Price(ctx, cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("price %s: %w", cfg.Token, err)
	}
	if price.IsZero() {
		return nil, vaulterr.ErrDivisionByZero
	}
	if roundUp {
		return amount.MulDivCeil(value, amount.Pow10(cfg.Decimals), price)
	}
	return amount.MulDiv(value, amount.Pow10(cfg.Decimals), price)
}

func (p *Pool) checkLayerRatioLocked(ctx context.Context, tier Tier, cash *uint256.Int) error {
	gross := p.Cash()
	var tierValue *uint256.Int
	for _, t := range Tiers {
		held, err := p.holdingsValueLocked(ctx, t)
		if err != nil {
			return err
		}
		if gross, err = amount.Add(gross, held); err != nil {
			return err
		}
		if t == tier {
			tierValue = held
		}
	}
	limit, err := amount.Bps(gross, p.layerRatios[tier])
	if err != nil {
		return err
	}
	after, err := amount.Add(tierValue, cash)
	if err != nil {
		return err
	}
	if after.Gt(limit) {
		return vaulterr.Ef("purchase", vaulterr.ErrLayerRatioExceeded, "%s would hold %s of limit %s", tier, after.Dec(), limit.Dec())
	}
	return nil
}

func (p *Pool) addHoldingLocked(token string, units *uint256.Int) error {
	next, err := amount.Add(amount.Or(p.holdings[token]), units)
	if err != nil {
		return err
	}
	p.setHoldingLocked(token, next)
	return nil
}

func (p *Pool) subHoldingLocked(token string, units *uint256.Int) error {
	next, err := amount.Sub(amount.Or(p.holdings[token]), units)
	if err != nil {
		return err
	}
	p.setHoldingLocked(token, next)
	return nil
}

func (p *Pool) setHoldingLocked(token string, v *uint256.Int) {
	prev, had := p.holdings[token]
	p.holdings[token] = v
	p.valuations.Purge()
	p.journal.Record(func() {
		if had {
			p.holdings[token] = prev
		} else {
			delete(p.holdings, token)
		}
		p.valuations.Purge()
	})
}

func minAfterSlippage(expected *uint256.Int, slippageBps uint64) *uint256.Int {
	if slippageBps >= amount.BasisPointsDenominator {
		return amount.Zero()
	}
	v, err := amount.Bps(expected, amount.BasisPointsDenominator-slippageBps)
	if err != nil {
		return expected
	}
	return v
}

func validateLayerRatios(ratios map[Tier]uint64) error {
	var sum uint64
	for tier, bps := range ratios {
		if !tier.Valid() {
			return vaulterr.ErrInvalidTier
		}
		if bps > amount.BasisPointsDenominator {
			return vaulterr.Ef("layerRatios", vaulterr.ErrInvalidRatio, "%s ratio %d exceeds %d", tier, bps, amount.BasisPointsDenominator)
		}
		sum += bps
	}
	if sum != amount.BasisPointsDenominator {
		return vaulterr.Ef("layerRatios", vaulterr.ErrInvalidRatio, "ratios sum to %d", sum)
	}
	return nil
}

func copyRatios(in map[Tier]uint64) map[Tier]uint64 {
	out := make(map[Tier]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// SnapshotHoldings returns a copy of the units held per asset.
func (p *Pool) SnapshotHoldings() map[string]*uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]*uint256.Int, len(p.holdings))
	for token, units := range p.holdings {
		out[token] = units.Clone()
	}
	return out
}

// RestoreHoldings replaces the units held per asset. Unknown assets are rejected.
func (p *Pool) RestoreHoldings(holdings map[string]*uint256.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := make(map[string]*uint256.Int, len(holdings))
	for token, units := range holdings {
		if _, ok := p.assets[token]; !ok {
			return fmt.Errorf("%w: %s", vaulterr.ErrUnknownAsset, token)
		}
		next[token] = units.Clone()
	}
	p.holdings = next
	p.valuations.Purge()
	return nil
}

// Settings is the administrative pool state changed at runtime: target
// allocation and per-asset activity.
type Settings struct {
	LayerRatios map[Tier]uint64
	Active      map[string]bool
}

// SnapshotSettings returns a copy of the current settings.
func (p *Pool) SnapshotSettings() Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	active := make(map[string]bool, len(p.assets))
	for token, cfg := range p.assets {
		active[token] = cfg.Active
	}
	return Settings{LayerRatios: copyRatios(p.layerRatios), Active: active}
}

// RestoreSettings applies saved settings. Every asset named must already be
// registered; registered assets not named keep their flag.
func (p *Pool) RestoreSettings(s Settings) error {
	if err := validateLayerRatios(s.LayerRatios); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for token := range s.Active {
		if _, ok := p.assets[token]; !ok {
			return fmt.Errorf("%w: %s", vaulterr.ErrUnknownAsset, token)
		}
	}
	for token, active := range s.Active {
		cfg := p.assets[token]
		cfg.Active = active
		p.assets[token] = cfg
	}
	p.layerRatios = copyRatios(s.LayerRatios)
	p.valuations.Purge()
	return nil
}
