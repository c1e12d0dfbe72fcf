package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"github.com/LeJamon/goVaultd/internal/core/amount"
	"github.com/LeJamon/goVaultd/internal/core/vaulterr"
	"github.com/LeJamon/goVaultd/internal/types"
)

// StaticPrices is a PriceSource backed by a fixed price table.
type StaticPrices struct {
	mu     sync.RWMutex
	prices map[string]*uint256.Int
}

// NewStaticPrices returns an empty price table.
func NewStaticPrices() *StaticPrices {
	return &StaticPrices{prices: make(map[string]*uint256.Int)}
}

// Set quotes token at price stable base units per whole token.
func (s *StaticPrices) Set(token string, price *uint256.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[token] = price.Clone()
}

// Price implements PriceSource.
func (s *StaticPrices) Price(_ context.Context, token string) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[token]
	if !ok {
		return nil, fmt.Errorf("%w: no price for %s", vaulterr.ErrUnknownAsset, token)
	}
	return p.Clone(), nil
}

// CashTransferer moves stable asset between accounts.
type CashTransferer interface {
	CashLedger
	Transfer(from, to types.Address, amt *uint256.Int) error
}

// MarketAdapter settles conversions against a market-maker account on the
// cash ledger at the quoted price, less a fixed spread.
type MarketAdapter struct {
	cash      CashTransferer
	prices    PriceSource
	vault     types.Address
	market    types.Address
	spreadBps uint64
}

// NewMarketAdapter returns an adapter trading between vault and market.
func NewMarketAdapter(cash CashTransferer, prices PriceSource, vault, market types.Address, spreadBps uint64) *MarketAdapter {
	return &MarketAdapter{
		cash:      cash,
		prices:    prices,
		vault:     vault,
		market:    market,
		spreadBps: spreadBps,
	}
}

// Buy pays cash to the market and returns the units received.
func (m *MarketAdapter) Buy(ctx context.Context, asset AssetConfig, cash *uint256.Int) (*uint256.Int, error) {
	price, err := m.prices.Price(ctx, asset.Token)
	if err != nil {
		return nil, err
	}
	if price.IsZero() {
		return nil, vaulterr.ErrDivisionByZero
	}
	gross, err := amount.MulDiv(cash, amount.Pow10(asset.Decimals), price)
	if err != nil {
		return nil, err
	}
	units := minAfterSlippage(gross, m.spreadBps)
	if err := m.cash.Transfer(m.vault, m.market, cash); err != nil {
		return nil, err
	}
	return units, nil
}

// Sell delivers units to the market and returns the cash received.
func (m *MarketAdapter) Sell(ctx context.Context, asset AssetConfig, units *uint256.Int) (*uint256.Int, error) {
	price, err := m.prices.Price(ctx, asset.Token)
	if err != nil {
		return nil, err
	}
	gross, err := amount.MulDiv(units, price, amount.Pow10(asset.Decimals))
	if err != nil {
		return nil, err
	}
	proceeds := minAfterSlippage(gross, m.spreadBps)
	if m.cash.BalanceOf(m.market).Lt(proceeds) {
		return nil, fmt.Errorf("%w: market cannot pay %s", vaulterr.ErrInsufficientLiquidity, proceeds.Dec())
	}
	if err := m.cash.Transfer(m.market, m.vault, proceeds); err != nil {
		return nil, err
	}
	return proceeds, nil
}
