package rpc

import (
	"context"

	"github.com/holiman/uint256"

	"github.com/LeJamon/goVaultd/internal/core/amount"
	"github.com/LeJamon/goVaultd/internal/core/redemption"
)

// Info is the JSON rendering of a liquidity snapshot. Amounts are human
// decimal strings in asset units; the share price uses 18 decimals.
type Info struct {
	RawCash                  string            `json:"raw_cash"`
	AvailableCash            string            `json:"available_cash"`
	Tiers                    map[string]string `json:"tiers"`
	TotalAssets              string            `json:"total_assets"`
	SharePrice               string            `json:"share_price"`
	ShareSupply              string            `json:"share_supply"`
	EffectiveSupply          string            `json:"effective_supply"`
	StandardQuota            string            `json:"standard_quota"`
	EmergencyQuota           string            `json:"emergency_quota"`
	SevenDayLiability        string            `json:"seven_day_liability"`
	OverdueLiability         string            `json:"overdue_liability"`
	TotalRedemptionLiability string            `json:"total_redemption_liability"`
	WithdrawableFees         string            `json:"withdrawable_fees"`
	LockedMintAssets         string            `json:"locked_mint_assets"`
	PendingApprovalTotal     string            `json:"pending_approval_total"`
	PendingApprovals         int               `json:"pending_approvals"`
	RequestCount             uint64            `json:"request_count"`
	Paused                   bool              `json:"paused"`
	EmergencyMode            bool              `json:"emergency_mode"`
}

func NewInfo(l *redemption.Liquidity, requests uint64, decimals uint8) *Info {
	f := func(x *uint256.Int) string { return amount.FormatUnits(amount.Or(x), decimals) }
	info := &Info{
		RawCash:                  f(l.RawCash),
		AvailableCash:            f(l.AvailableCash),
		Tiers:                    make(map[string]string, len(l.TierValues)),
		TotalAssets:              f(l.TotalAssets),
		SharePrice:               amount.FormatUnits(amount.Or(l.SharePrice), amount.PrecisionDecimals),
		ShareSupply:              f(l.ShareSupply),
		EffectiveSupply:          f(l.EffectiveSupply),
		StandardQuota:            f(l.StandardQuota),
		EmergencyQuota:           f(l.EmergencyQuota),
		SevenDayLiability:        f(l.SevenDayLiability),
		OverdueLiability:         f(l.OverdueLiability),
		TotalRedemptionLiability: f(l.TotalRedemptionLiability),
		WithdrawableFees:         f(l.WithdrawableFees),
		LockedMintAssets:         f(l.LockedMintAssets),
		PendingApprovalTotal:     f(l.PendingApprovalTotal),
		PendingApprovals:         l.PendingApprovals,
		RequestCount:             requests,
		Paused:                   l.Paused,
		EmergencyMode:            l.EmergencyMode,
	}
	for tier, v := range l.TierValues {
		info.Tiers[tier] = f(v)
	}
	return info
}

// Snapshot takes a consistent Info under the engine lock.
func Snapshot(ctx context.Context, vault *redemption.Serialized, decimals uint8) (*Info, error) {
	var info *Info
	err := vault.Do(func(e *redemption.Engine) error {
		l, err := e.LiquiditySnapshot(ctx)
		if err != nil {
			return err
		}
		info = NewInfo(l, e.RequestCount(), decimals)
		return nil
	})
	return info, err
}
