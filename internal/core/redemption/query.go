package redemption

import (
	"context"

	"github.com/holiman/uint256"

	"github.com/LeJamon/goVaultd/internal/core/amount"
	"github.com/LeJamon/goVaultd/internal/core/pool"
	"github.com/LeJamon/goVaultd/internal/core/vaulterr"
	"github.com/LeJamon/goVaultd/internal/types"
)

// GetRequest returns a copy of a request.
func (e *Engine) GetRequest(id uint64) (*Request, error) {
	r, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	return r.Clone(), nil
}

// GetUserRequests returns copies of owner's requests in submission order.
func (e *Engine) GetUserRequests(owner types.Address) []*Request {
	ids := e.byOwner[owner]
	out := make([]*Request, 0, len(ids))
	for _, id := range ids {
		if r, ok := e.requests[id]; ok {
			out = append(out, r.Clone())
		}
	}
	return out
}

// GetPendingApprovals returns the ids awaiting a decision. Order is not
// meaningful.
func (e *Engine) GetPendingApprovals() []uint64 {
	return e.pending.list()
}

// PendingApprovalTotal returns the gross amount awaiting a decision.
func (e *Engine) PendingApprovalTotal() *uint256.Int {
	return e.pendingTotal.Clone()
}

// RequestCount returns how many requests have been created.
func (e *Engine) RequestCount() uint64 {
	return e.nextID - 1
}

// PreviewRedemption evaluates a redemption of shares without changing state.
func (e *Engine) PreviewRedemption(ctx context.Context, shares *uint256.Int, ch Channel) (*Preview, error) {
	if shares == nil || shares.IsZero() {
		return nil, vaulterr.ErrZeroAmount
	}
	if !ch.Valid() {
		return nil, vaulterr.ErrInvalidChannel
	}
	nav, err := e.vault.SharePrice(ctx)
	if err != nil {
		return nil, err
	}
	gross, err := amount.MulDiv(shares, nav, amount.Precision)
	if err != nil {
		return nil, err
	}
	fee, err := e.params.fee(gross, ch)
	if err != nil {
		return nil, err
	}
	needsApproval, quota, err := e.requiresApproval(ctx, gross, ch)
	if err != nil {
		return nil, err
	}
	return &Preview{
		Channel:          ch,
		Shares:           shares.Clone(),
		Nav:              nav,
		GrossAmount:      gross,
		Fee:              fee,
		NetAmount:        amount.SubFloor(gross, fee),
		RequiresApproval: needsApproval,
		ChannelQuota:     quota,
		SettlementDelay:  e.params.delay(ch),
	}, nil
}

// LiquiditySnapshot reports cash, tier values, quotas and liabilities.
func (e *Engine) LiquiditySnapshot(ctx context.Context) (*Liquidity, error) {
	tiers := make(map[string]*uint256.Int, len(pool.Tiers))
	for _, tier := range pool.Tiers {
		v, err := e.pool.TierValue(ctx, tier)
		if err != nil {
			return nil, err
		}
		tiers[tier.String()] = v
	}
	totalAssets, err := e.vault.TotalAssets(ctx)
	if err != nil {
		return nil, err
	}
	price, err := e.vault.SharePrice(ctx)
	if err != nil {
		return nil, err
	}
	quota, err := e.vault.StandardChannelQuota(ctx)
	if err != nil {
		return nil, err
	}
	return &Liquidity{
		RawCash:                  e.vault.RawCash(),
		AvailableCash:            e.vault.AvailableCash(),
		TierValues:               tiers,
		TotalAssets:              totalAssets,
		SharePrice:               price,
		ShareSupply:              e.vault.ShareSupply(),
		EffectiveSupply:          e.vault.EffectiveSupply(),
		StandardQuota:            quota,
		EmergencyQuota:           e.vault.EmergencyQuota(),
		SevenDayLiability:        e.liabilities.SevenDayLiability(),
		OverdueLiability:         e.liabilities.OverdueLiability(),
		TotalRedemptionLiability: e.vault.TotalRedemptionLiability(),
		WithdrawableFees:         e.vault.WithdrawableFees(),
		LockedMintAssets:         e.vault.LockedMintAssets(),
		PendingApprovalTotal:     e.pendingTotal.Clone(),
		PendingApprovals:         e.pending.len(),
		Paused:                   e.paused,
		EmergencyMode:            e.vault.EmergencyMode(),
	}, nil
}
