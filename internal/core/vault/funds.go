package vault

import (
	"context"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/LeJamon/goVaultd/internal/core/access"
	"github.com/LeJamon/goVaultd/internal/core/amount"
	"github.com/LeJamon/goVaultd/internal/core/vaulterr"
	"github.com/LeJamon/goVaultd/internal/types"
)

// PreviewDeposit returns the shares a deposit of assets would mint now.
func (a *Account) PreviewDeposit(ctx context.Context, assets *uint256.Int) (*uint256.Int, error) {
	price, err := a.SharePrice(ctx)
	if err != nil {
		return nil, err
	}
	if price.IsZero() {
		return nil, vaulterr.ErrDivisionByZero
	}
	return amount.MulDiv(assets, amount.Precision, price)
}

// Deposit takes assets from caller and mints shares to receiver at the
// current share price.
func (a *Account) Deposit(ctx context.Context, caller types.Address, assets *uint256.Int, receiver types.Address) (*uint256.Int, error) {
	if assets == nil || assets.IsZero() {
		return nil, vaulterr.ErrZeroAmount
	}
	if caller.IsZero() || receiver.IsZero() {
		return nil, vaulterr.ErrZeroAddress
	}
	shares, err := a.PreviewDeposit(ctx, assets)
	if err != nil {
		return nil, err
	}
	if shares.IsZero() {
		return nil, vaulterr.ErrZeroShares
	}
	if a.cash.BalanceOf(caller).Lt(assets) {
		return nil, vaulterr.ErrInsufficientBalance
	}
	if err := a.cash.Transfer(caller, a.address, assets); err != nil {
		return nil, err
	}
	if err := a.shares.Mint(receiver, shares); err != nil {
		return nil, err
	}
	a.logger.Info("deposit",
		zap.String("caller", caller.String()),
		zap.String("receiver", receiver.String()),
		zap.String("assets", assets.Dec()),
		zap.String("shares", shares.Dec()),
	)
	return shares, nil
}

// WithdrawFees pays withdrawable fees out of cash to a fee collector's
// chosen address.
func (a *Account) WithdrawFees(caller, to types.Address, amt *uint256.Int) error {
	if err := access.Require(a.access, caller, access.CapFeeCollector); err != nil {
		return err
	}
	if amt == nil || amt.IsZero() {
		return vaulterr.ErrZeroAmount
	}
	if to.IsZero() {
		return vaulterr.ErrZeroAddress
	}
	if err := a.reduceFee(amt); err != nil {
		return err
	}
	if a.RawCash().Lt(amt) {
		return vaulterr.Ef("withdrawFees", vaulterr.ErrInsufficientLiquidity, "cash %s", a.RawCash().Dec())
	}
	if err := a.cash.Transfer(a.address, to, amt); err != nil {
		return err
	}
	a.logger.Info("fees withdrawn", zap.String("to", to.String()), zap.String("amount", amt.Dec()))
	return nil
}

// Invest moves available cash into a pool asset.
func (a *Account) Invest(ctx context.Context, caller types.Address, token string, cash *uint256.Int) (*uint256.Int, error) {
	if err := access.Require(a.access, caller, access.CapAssetManager); err != nil {
		return nil, err
	}
	if cash == nil || cash.IsZero() {
		return nil, vaulterr.ErrZeroAmount
	}
	if avail := a.AvailableCash(); avail.Lt(cash) {
		return nil, vaulterr.Ef("invest", vaulterr.ErrInsufficientLiquidity, "available %s", avail.Dec())
	}
	units, err := a.pool.Purchase(ctx, token, cash)
	if err != nil {
		return nil, err
	}
	a.logger.Info("cash invested", zap.String("token", token), zap.String("cash", cash.Dec()), zap.String("units", units.Dec()))
	return units, nil
}
