package redemption

import (
	"context"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/LeJamon/goVaultd/internal/core/pool"
	"github.com/LeJamon/goVaultd/internal/core/vaulterr"
	"github.com/LeJamon/goVaultd/internal/types"
)

// Settlement is the outcome of a successful settlement.
type Settlement struct {
	Request  *Request
	Receiver types.Address
	Payout   *uint256.Int
	Fee      *uint256.Int
	// Liquidated is the cash raised through the waterfall for this settlement.
	Liquidated *uint256.Int
}

// SettleRedemption pays out a due request. Requests carrying a voucher can
// only be settled by the voucher's current holder, who receives the payout.
func (e *Engine) SettleRedemption(ctx context.Context, caller types.Address, id uint64) (*Settlement, error) {
	var out *Settlement
	err := e.execute(ctx, "settleRedemption", func() error {
		r, err := e.lookup(id)
		if err != nil {
			return err
		}
		out, err = e.settle(ctx, caller, r)
		return err
	})
	return out, err
}

// SettleWithVoucher settles the request a voucher was issued for.
func (e *Engine) SettleWithVoucher(ctx context.Context, caller types.Address, tokenID uint64) (*Settlement, error) {
	var out *Settlement
	err := e.execute(ctx, "settleWithVoucher", func() error {
		id, ok := e.byVoucher[tokenID]
		if !ok {
			return vaulterr.Ef("settleWithVoucher", vaulterr.ErrUnknownVoucher, "token %d", tokenID)
		}
		r, err := e.lookup(id)
		if err != nil {
			return err
		}
		out, err = e.settle(ctx, caller, r)
		return err
	})
	return out, err
}

func (e *Engine) settle(ctx context.Context, caller types.Address, r *Request) (*Settlement, error) {
	if e.paused {
		return nil, vaulterr.ErrPaused
	}
	if !r.Status.Settleable() {
		return nil, vaulterr.Ef("settle", vaulterr.ErrNotSettleable, "request %d is %s", r.ID, r.Status)
	}
	now := e.now()
	if now.Before(r.SettlementTime) {
		return nil, vaulterr.Ef("settle", vaulterr.ErrSettlementTimeNotReached,
			"request %d settles at %s", r.ID, r.SettlementTime.Format("2006-01-02T15:04:05Z"))
	}

	receiver := r.Receiver
	if r.HasVoucher {
		if e.vouchers == nil {
			return nil, vaulterr.ErrNoVoucherIssuer
		}
		holder, err := e.vouchers.OwnerOf(ctx, r.VoucherID)
		if err != nil {
			return nil, err
		}
		if holder != caller {
			return nil, vaulterr.Ef("settle", vaulterr.ErrNotVoucherHolder, "voucher %d", r.VoucherID)
		}
		receiver = holder
	}

	// The fee floats with the configuration in force at settlement.
	fee, err := e.params.fee(r.GrossAmount, r.Channel)
	if err != nil {
		return nil, err
	}
	payout := new(uint256.Int).Sub(r.GrossAmount, fee)

	liquidated, err := e.fund(ctx, r)
	if err != nil {
		return nil, err
	}

	e.liabilities.RemoveLiability(r.SettlementTime, r.GrossAmount)
	if err := e.vault.BurnLockedShares(e.address, r.Owner, r.Shares); err != nil {
		return nil, err
	}
	if err := e.vault.RemoveRedemptionLiability(e.address, r.GrossAmount); err != nil {
		return nil, err
	}
	if err := e.vault.AddRedemptionFee(e.address, fee); err != nil {
		return nil, err
	}
	if err := e.vault.PayOut(e.address, receiver, payout); err != nil {
		return nil, err
	}
	r = e.update(r, func(r *Request) { r.Status = StatusSettled })

	// Burning is not journaled, so it runs after every other fallible step.
	if r.HasVoucher {
		if err := e.vouchers.Burn(ctx, r.VoucherID); err != nil {
			return nil, err
		}
		e.unlinkVoucher(r.VoucherID)
	}

	e.raise(EventRequestSettled, r, func(ev *Event) {
		ev.Payout = payout.Dec()
		ev.Fee = fee.Dec()
		ev.VoucherID = r.VoucherID
	})
	e.metrics.transition(StatusSettled)
	e.logger.Info("redemption settled",
		zap.Uint64("requestID", r.ID),
		zap.String("receiver", receiver.String()),
		zap.String("payout", payout.Dec()),
		zap.String("fee", fee.Dec()),
		zap.String("liquidated", liquidated.Dec()),
	)
	return &Settlement{
		Request:    r.Clone(),
		Receiver:   receiver,
		Payout:     payout,
		Fee:        fee,
		Liquidated: liquidated,
	}, nil
}

// fund makes sure available cash covers the gross amount, liquidating the
// cash tier for any deficit. Longer-duration tiers are never touched here.
func (e *Engine) fund(ctx context.Context, r *Request) (*uint256.Int, error) {
	available := e.vault.AvailableCash()
	if !available.Lt(r.GrossAmount) {
		return new(uint256.Int), nil
	}
	deficit := new(uint256.Int).Sub(r.GrossAmount, available)
	funded, err := e.pool.Liquidate(ctx, deficit, pool.TierCash)
	if err != nil {
		return nil, err
	}
	if available = e.vault.AvailableCash(); available.Lt(r.GrossAmount) {
		e.metrics.shortfall()
		e.logger.Warn("settlement shortfall",
			zap.Uint64("requestID", r.ID),
			zap.String("grossAmount", r.GrossAmount.Dec()),
			zap.String("available", available.Dec()),
			zap.String("liquidated", funded.Dec()),
		)
		return nil, vaulterr.Ef("settle", vaulterr.ErrInsufficientLiquidity,
			"need %s, available %s after liquidating %s", r.GrossAmount.Dec(), available.Dec(), funded.Dec())
	}
	return funded, nil
}
