package redemption

import (
	"context"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/LeJamon/goVaultd/internal/core/amount"
	"github.com/LeJamon/goVaultd/internal/core/vaulterr"
	"github.com/LeJamon/goVaultd/internal/types"
)

// RequestRedemption submits caller's shares for redemption to receiver.
// Small requests lock shares and book liability immediately; requests over
// the channel's approval thresholds are parked until an approver decides.
func (e *Engine) RequestRedemption(ctx context.Context, caller types.Address, shares *uint256.Int, receiver types.Address, ch Channel) (*Request, error) {
	var out *Request
	err := e.execute(ctx, "requestRedemption", func() error {
		r, err := e.request(ctx, caller, shares, receiver, ch)
		out = r
		return err
	})
	if err != nil && out == nil {
		return nil, err
	}
	return out.Clone(), err
}

func (e *Engine) request(ctx context.Context, caller types.Address, shares *uint256.Int, receiver types.Address, ch Channel) (*Request, error) {
	if e.paused {
		return nil, vaulterr.ErrPaused
	}
	if shares == nil || shares.IsZero() {
		return nil, vaulterr.ErrZeroAmount
	}
	if caller.IsZero() || receiver.IsZero() {
		return nil, vaulterr.ErrZeroAddress
	}
	if !ch.Valid() {
		return nil, vaulterr.ErrInvalidChannel
	}
	if ch == ChannelEmergency && !e.vault.EmergencyMode() {
		return nil, vaulterr.ErrEmergencyModeDisabled
	}
	if e.vault.ShareSupply().IsZero() || e.sharesOf(caller).Lt(shares) {
		return nil, vaulterr.ErrInsufficientShares
	}

	nav, err := e.vault.SharePrice(ctx)
	if err != nil {
		return nil, err
	}
	gross, err := amount.MulDiv(shares, nav, amount.Precision)
	if err != nil {
		return nil, err
	}
	if gross.IsZero() {
		return nil, vaulterr.Ef("requestRedemption", vaulterr.ErrZeroAmount, "shares are worth nothing at nav %s", nav.Dec())
	}

	if ch == ChannelEmergency {
		if err := e.vault.ConsumeEmergencyQuota(e.address, gross); err != nil {
			return nil, err
		}
	}

	needsApproval, _, err := e.requiresApproval(ctx, gross, ch)
	if err != nil {
		return nil, err
	}
	fee, err := e.params.fee(gross, ch)
	if err != nil {
		return nil, err
	}

	now := e.now()
	r := &Request{
		ID:               e.allocateID(),
		Owner:            caller,
		Receiver:         receiver,
		Shares:           shares.Clone(),
		GrossAmount:      gross,
		LockedNav:        nav,
		EstimatedFee:     fee,
		RequestTime:      now,
		Channel:          ch,
		RequiresApproval: needsApproval,
	}

	if needsApproval {
		r.Status = StatusPendingApproval
		if err := e.vault.AddPendingApprovalShares(e.address, caller, shares); err != nil {
			return nil, err
		}
		e.pending.add(r.ID, e.journal)
		if err := e.addPendingTotal(gross); err != nil {
			return nil, err
		}
	} else {
		r.Status = StatusPending
		r.SettlementTime = now.Add(e.params.delay(ch))
		if err := e.vault.LockShares(e.address, caller, shares); err != nil {
			return nil, err
		}
		if err := e.vault.AddRedemptionLiability(e.address, gross); err != nil {
			return nil, err
		}
		if err := e.liabilities.AddDailyLiability(r.SettlementTime, gross); err != nil {
			return nil, err
		}
	}

	e.putRequest(r)
	e.indexOwner(caller, r.ID)
	e.raise(EventRequestCreated, r, nil)
	e.metrics.requested(ch, needsApproval)

	e.logger.Info("redemption requested",
		zap.Uint64("requestID", r.ID),
		zap.String("owner", caller.String()),
		zap.Stringer("channel", ch),
		zap.Stringer("status", r.Status),
		zap.String("grossAmount", gross.Dec()),
		zap.String("estimatedFee", fee.Dec()),
	)
	return r, nil
}

func (e *Engine) sharesOf(owner types.Address) *uint256.Int {
	return e.vault.ShareBalanceOf(owner)
}
