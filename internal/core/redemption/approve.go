package redemption

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/LeJamon/goVaultd/internal/core/access"
	"github.com/LeJamon/goVaultd/internal/core/amount"
	"github.com/LeJamon/goVaultd/internal/core/vaulterr"
	"github.com/LeJamon/goVaultd/internal/types"
)

// ApproveRedemption moves a parked request to APPROVED, locking its shares
// and booking its liability. A zero settlementTime selects the channel's
// minimum delay; an explicit one may not be earlier than that. Settlements
// further out than the voucher threshold get a transferable voucher when an
// issuer is configured.
func (e *Engine) ApproveRedemption(ctx context.Context, caller types.Address, id uint64, settlementTime time.Time) (*Request, error) {
	var out *Request
	err := e.execute(ctx, "approveRedemption", func() error {
		r, err := e.approve(ctx, caller, id, settlementTime)
		out = r
		return err
	})
	if out == nil {
		return nil, err
	}
	return out.Clone(), err
}

func (e *Engine) approve(ctx context.Context, caller types.Address, id uint64, custom time.Time) (*Request, error) {
	if err := access.Require(e.access, caller, access.CapApprover); err != nil {
		return nil, err
	}
	r, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusPendingApproval {
		return nil, vaulterr.Ef("approveRedemption", vaulterr.ErrNotPendingApproval, "request %d is %s", id, r.Status)
	}

	now := e.now()
	earliest := now.Add(e.params.delay(r.Channel))
	settleAt := earliest
	if !custom.IsZero() {
		if custom.Before(earliest) {
			return nil, vaulterr.Ef("approveRedemption", vaulterr.ErrInvalidSettlementTime,
				"%s is before the earliest allowed %s", custom.UTC().Format(time.RFC3339), earliest.Format(time.RFC3339))
		}
		settleAt = custom.UTC()
	}

	r = e.update(r, func(r *Request) {
		r.Status = StatusApproved
		r.SettlementTime = settleAt
	})

	if err := e.vault.ConvertPendingToLocked(e.address, r.Owner, r.Shares); err != nil {
		return nil, err
	}
	if err := e.vault.AddRedemptionLiability(e.address, r.GrossAmount); err != nil {
		return nil, err
	}
	if err := e.liabilities.AddDailyLiability(settleAt, r.GrossAmount); err != nil {
		return nil, err
	}
	if !e.pending.remove(id, e.journal) {
		return nil, vaulterr.Ef("approveRedemption", vaulterr.ErrArithmeticUnderflow, "request %d missing from pending index", id)
	}
	if err := e.subPendingTotal(r.GrossAmount); err != nil {
		return nil, err
	}

	// Minting is not journaled, so it runs after every other fallible step.
	if settleAt.Sub(now) > e.params.VoucherThreshold && e.vouchers != nil {
		fee, err := e.params.fee(r.GrossAmount, r.Channel)
		if err != nil {
			return nil, err
		}
		net := amount.SubFloor(r.GrossAmount, fee)
		tokenID, err := e.vouchers.Mint(ctx, r.Owner, r.ID, net, settleAt)
		if err != nil {
			return nil, err
		}
		r = e.update(r, func(r *Request) {
			r.HasVoucher = true
			r.VoucherID = tokenID
		})
		e.linkVoucher(tokenID, r.ID)
		e.raise(EventVoucherMinted, r, func(ev *Event) { ev.VoucherID = tokenID })
	}

	e.raise(EventRequestApproved, r, nil)
	e.metrics.transition(StatusApproved)
	e.logger.Info("redemption approved",
		zap.Uint64("requestID", r.ID),
		zap.String("approver", caller.String()),
		zap.Time("settlementTime", settleAt),
		zap.Bool("hasVoucher", r.HasVoucher),
	)
	return r, nil
}

// RejectRedemption cancels a parked request and returns its shares. Any
// emergency quota the request consumed is given back.
func (e *Engine) RejectRedemption(ctx context.Context, caller types.Address, id uint64, reason string) (*Request, error) {
	var out *Request
	err := e.execute(ctx, "rejectRedemption", func() error {
		r, err := e.reject(caller, id, reason)
		out = r
		return err
	})
	if out == nil {
		return nil, err
	}
	return out.Clone(), err
}

func (e *Engine) reject(caller types.Address, id uint64, reason string) (*Request, error) {
	if err := access.Require(e.access, caller, access.CapApprover); err != nil {
		return nil, err
	}
	r, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusPendingApproval {
		return nil, vaulterr.Ef("rejectRedemption", vaulterr.ErrNotPendingApproval, "request %d is %s", id, r.Status)
	}

	// A cancelled request never settles; its settlement time records when
	// it was closed so only PENDING_APPROVAL carries a zero time.
	now := e.now()
	r = e.update(r, func(r *Request) {
		r.Status = StatusCancelled
		r.SettlementTime = now
		r.RejectReason = reason
	})
	if err := e.vault.RemovePendingApprovalShares(e.address, r.Owner, r.Shares); err != nil {
		return nil, err
	}
	if r.Channel == ChannelEmergency {
		if err := e.vault.RefundEmergencyQuota(e.address, r.GrossAmount); err != nil {
			return nil, err
		}
	}
	if !e.pending.remove(id, e.journal) {
		return nil, vaulterr.Ef("rejectRedemption", vaulterr.ErrArithmeticUnderflow, "request %d missing from pending index", id)
	}
	if err := e.subPendingTotal(r.GrossAmount); err != nil {
		return nil, err
	}

	e.raise(EventRequestRejected, r, func(ev *Event) { ev.Reason = reason })
	e.metrics.transition(StatusCancelled)
	e.logger.Info("redemption rejected",
		zap.Uint64("requestID", r.ID),
		zap.String("approver", caller.String()),
		zap.String("reason", reason),
	)
	return r, nil
}
