package redemption

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/LeJamon/goVaultd/internal/core/access"
	"github.com/LeJamon/goVaultd/internal/core/amount"
	"github.com/LeJamon/goVaultd/internal/core/pool"
	"github.com/LeJamon/goVaultd/internal/core/vaulterr"
	"github.com/LeJamon/goVaultd/internal/core/voucher"
	"github.com/LeJamon/goVaultd/internal/types"
)

// adminChange runs mutate as an admin operation and audits it.
func (e *Engine) adminChange(ctx context.Context, caller types.Address, action string, mutate func() (old, next string, err error)) error {
	return e.guardedChange(ctx, caller, access.CapAdmin, action, "", mutate)
}

func (e *Engine) guardedChange(ctx context.Context, caller types.Address, capability access.Capability, action, target string, mutate func() (old, next string, err error)) error {
	return e.execute(ctx, action, func() error {
		if err := access.Require(e.access, caller, capability); err != nil {
			return err
		}
		old, next, err := mutate()
		if err != nil {
			return err
		}
		e.record(caller, action, target, old, next)
		e.logger.Info("configuration changed",
			zap.String("action", action),
			zap.String("admin", caller.String()),
			zap.String("old", old),
			zap.String("new", next),
		)
		return nil
	})
}

// SetBaseFeeBps changes the fee rate applied to every channel.
func (e *Engine) SetBaseFeeBps(ctx context.Context, caller types.Address, bps uint64) error {
	return e.adminChange(ctx, caller, "setBaseFeeBps", func() (string, string, error) {
		next := e.params
		next.BaseFeeBps = bps
		if err := next.Validate(); err != nil {
			return "", "", err
		}
		old := e.params.BaseFeeBps
		e.setParams(next)
		return fmtUint(old), fmtUint(bps), nil
	})
}

// SetEmergencyPenaltyFeeBps changes the surcharge of the emergency channel.
func (e *Engine) SetEmergencyPenaltyFeeBps(ctx context.Context, caller types.Address, bps uint64) error {
	return e.adminChange(ctx, caller, "setEmergencyPenaltyFeeBps", func() (string, string, error) {
		next := e.params
		next.EmergencyPenaltyFeeBps = bps
		if err := next.Validate(); err != nil {
			return "", "", err
		}
		old := e.params.EmergencyPenaltyFeeBps
		e.setParams(next)
		return fmtUint(old), fmtUint(bps), nil
	})
}

// SetStandardApprovalThresholds changes the standard channel's absolute and
// quota-relative approval triggers.
func (e *Engine) SetStandardApprovalThresholds(ctx context.Context, caller types.Address, absolute *uint256.Int, ratioBps uint64) error {
	return e.adminChange(ctx, caller, "setStandardApprovalThresholds", func() (string, string, error) {
		if absolute == nil {
			return "", "", vaulterr.ErrZeroAmount
		}
		next := e.params
		next.StandardApprovalAmount = absolute.Clone()
		next.StandardApprovalQuotaRatioBps = ratioBps
		if err := next.Validate(); err != nil {
			return "", "", err
		}
		old := thresholds(e.params.StandardApprovalAmount, e.params.StandardApprovalQuotaRatioBps)
		e.setParams(next)
		return old, thresholds(absolute, ratioBps), nil
	})
}

// SetEmergencyApprovalThresholds changes the emergency channel's approval
// triggers.
func (e *Engine) SetEmergencyApprovalThresholds(ctx context.Context, caller types.Address, absolute *uint256.Int, ratioBps uint64) error {
	return e.adminChange(ctx, caller, "setEmergencyApprovalThresholds", func() (string, string, error) {
		if absolute == nil {
			return "", "", vaulterr.ErrZeroAmount
		}
		next := e.params
		next.EmergencyApprovalAmount = absolute.Clone()
		next.EmergencyApprovalQuotaRatioBps = ratioBps
		if err := next.Validate(); err != nil {
			return "", "", err
		}
		old := thresholds(e.params.EmergencyApprovalAmount, e.params.EmergencyApprovalQuotaRatioBps)
		e.setParams(next)
		return old, thresholds(absolute, ratioBps), nil
	})
}

// SetVoucherThreshold changes the delay beyond which approvals mint vouchers.
func (e *Engine) SetVoucherThreshold(ctx context.Context, caller types.Address, d time.Duration) error {
	return e.adminChange(ctx, caller, "setVoucherThreshold", func() (string, string, error) {
		if d < 0 {
			return "", "", vaulterr.ErrInvalidSettlementTime
		}
		next := e.params
		next.VoucherThreshold = d
		old := e.params.VoucherThreshold
		e.setParams(next)
		return old.String(), d.String(), nil
	})
}

// SetVoucherIssuer installs or removes (nil) the voucher capability.
// Requests that already carry a voucher need an issuer to settle.
func (e *Engine) SetVoucherIssuer(ctx context.Context, caller types.Address, issuer voucher.Issuer) error {
	return e.adminChange(ctx, caller, "setVoucherIssuer", func() (string, string, error) {
		prev := e.vouchers
		e.vouchers = issuer
		e.journal.Record(func() { e.vouchers = prev })
		return issuerName(prev), issuerName(issuer), nil
	})
}

// SetStandardQuotaRatio changes the share of tier 1 and 2 liquidity that
// backs the standard channel quota.
func (e *Engine) SetStandardQuotaRatio(ctx context.Context, caller types.Address, bps uint64) error {
	return e.adminChange(ctx, caller, "setStandardQuotaRatio", func() (string, string, error) {
		old := e.vault.StandardQuotaRatioBps()
		if err := e.vault.SetStandardQuotaRatio(e.address, bps); err != nil {
			return "", "", err
		}
		return fmtUint(old), fmtUint(bps), nil
	})
}

// SetEmergencyQuota replaces the emergency channel's remaining capacity.
func (e *Engine) SetEmergencyQuota(ctx context.Context, caller types.Address, quota *uint256.Int) error {
	return e.adminChange(ctx, caller, "setEmergencyQuota", func() (string, string, error) {
		if quota == nil {
			return "", "", vaulterr.ErrZeroAmount
		}
		old := e.vault.EmergencyQuota()
		if err := e.vault.SetEmergencyQuota(e.address, quota); err != nil {
			return "", "", err
		}
		return old.Dec(), quota.Dec(), nil
	})
}

// SetEmergencyMode opens or closes the emergency channel.
func (e *Engine) SetEmergencyMode(ctx context.Context, caller types.Address, on bool) error {
	return e.adminChange(ctx, caller, "setEmergencyMode", func() (string, string, error) {
		old := e.vault.EmergencyMode()
		if err := e.vault.SetEmergencyMode(e.address, on); err != nil {
			return "", "", err
		}
		return strconv.FormatBool(old), strconv.FormatBool(on), nil
	})
}

// SetLayerRatios changes the pool's target allocation.
func (e *Engine) SetLayerRatios(ctx context.Context, caller types.Address, ratios map[pool.Tier]uint64) error {
	return e.adminChange(ctx, caller, "setLayerRatios", func() (string, string, error) {
		old := e.pool.LayerRatios()
		if err := e.pool.SetLayerRatios(ratios); err != nil {
			return "", "", err
		}
		return fmtRatios(old), fmtRatios(ratios), nil
	})
}

// SetAssetActive enables or disables a pool asset for purchases and
// liquidation. It requires the asset manager capability.
func (e *Engine) SetAssetActive(ctx context.Context, caller types.Address, token string, active bool) error {
	return e.guardedChange(ctx, caller, access.CapAssetManager, "setAssetActive", token, func() (string, string, error) {
		cfg, ok := e.pool.Asset(token)
		if !ok {
			return "", "", vaulterr.E("setAssetActive", vaulterr.ErrUnknownAsset)
		}
		if err := e.pool.SetAssetActive(token, active); err != nil {
			return "", "", err
		}
		return strconv.FormatBool(cfg.Active), strconv.FormatBool(active), nil
	})
}

// Pause blocks new requests and settlements. Approvals and rejections stay
// available.
func (e *Engine) Pause(ctx context.Context, caller types.Address) error {
	return e.adminChange(ctx, caller, "pause", func() (string, string, error) {
		old := e.paused
		e.setPaused(true)
		return strconv.FormatBool(old), "true", nil
	})
}

// Unpause lifts a pause.
func (e *Engine) Unpause(ctx context.Context, caller types.Address) error {
	return e.adminChange(ctx, caller, "unpause", func() (string, string, error) {
		old := e.paused
		e.setPaused(false)
		return strconv.FormatBool(old), "false", nil
	})
}

// Paused reports whether the engine is paused.
func (e *Engine) Paused() bool { return e.paused }

// Params returns a copy of the current configuration.
func (e *Engine) Params() Params {
	p := e.params
	p.StandardApprovalAmount = p.StandardApprovalAmount.Clone()
	p.EmergencyApprovalAmount = p.EmergencyApprovalAmount.Clone()
	return p
}

// OverrideDailyLiability sets one day's liability bucket directly. It skips
// every consistency check and is meant for incident recovery only.
func (e *Engine) OverrideDailyLiability(ctx context.Context, caller types.Address, day int64, amt *uint256.Int) error {
	return e.execute(ctx, "overrideDailyLiability", func() error {
		if err := access.Require(e.access, caller, access.CapLiabilityRecovery); err != nil {
			return err
		}
		if amt == nil {
			return vaulterr.ErrZeroAmount
		}
		old := e.liabilities.OverrideDailyLiability(day, amt)
		e.record(caller, "overrideDailyLiability", strconv.FormatInt(day, 10), old.Dec(), amt.Dec())
		return nil
	})
}

// OverrideOverdueLiability sets the overdue cache directly. Incident
// recovery only.
func (e *Engine) OverrideOverdueLiability(ctx context.Context, caller types.Address, amt *uint256.Int) error {
	return e.execute(ctx, "overrideOverdueLiability", func() error {
		if err := access.Require(e.access, caller, access.CapLiabilityRecovery); err != nil {
			return err
		}
		if amt == nil {
			return vaulterr.ErrZeroAmount
		}
		old := e.liabilities.OverrideOverdueLiability(amt)
		e.record(caller, "overrideOverdueLiability", "overdue", old.Dec(), amt.Dec())
		return nil
	})
}

// Deposit takes assets from caller and mints shares to receiver.
func (e *Engine) Deposit(ctx context.Context, caller types.Address, assets *uint256.Int, receiver types.Address) (*uint256.Int, error) {
	var shares *uint256.Int
	err := e.execute(ctx, "deposit", func() error {
		var err error
		shares, err = e.vault.Deposit(ctx, caller, assets, receiver)
		return err
	})
	return shares, err
}

// WithdrawFees pays withdrawable fees to a fee collector.
func (e *Engine) WithdrawFees(ctx context.Context, caller, to types.Address, amt *uint256.Int) error {
	return e.execute(ctx, "withdrawFees", func() error {
		return e.vault.WithdrawFees(caller, to, amt)
	})
}

// Invest moves available cash into a pool asset.
func (e *Engine) Invest(ctx context.Context, caller types.Address, token string, cash *uint256.Int) (*uint256.Int, error) {
	var units *uint256.Int
	err := e.execute(ctx, "invest", func() error {
		var err error
		units, err = e.vault.Invest(ctx, caller, token, cash)
		return err
	})
	return units, err
}

// LockMintAssets reserves cash for mints that are not issued yet.
func (e *Engine) LockMintAssets(ctx context.Context, caller types.Address, amt *uint256.Int) error {
	return e.execute(ctx, "lockMintAssets", func() error {
		if err := access.Require(e.access, caller, access.CapOperator); err != nil {
			return err
		}
		return e.vault.LockMintAssets(e.address, amt)
	})
}

// UnlockMintAssets releases a mint reservation.
func (e *Engine) UnlockMintAssets(ctx context.Context, caller types.Address, amt *uint256.Int) error {
	return e.execute(ctx, "unlockMintAssets", func() error {
		if err := access.Require(e.access, caller, access.CapOperator); err != nil {
			return err
		}
		return e.vault.UnlockMintAssets(e.address, amt)
	})
}

func fmtUint(v uint64) string { return strconv.FormatUint(v, 10) }

// fmtRatios renders ratios in tier order, e.g. "cash=3000 money_market=4000".
func fmtRatios(ratios map[pool.Tier]uint64) string {
	var parts []string
	for _, tier := range pool.Tiers {
		if bps, ok := ratios[tier]; ok {
			parts = append(parts, fmt.Sprintf("%s=%d", tier, bps))
		}
	}
	return strings.Join(parts, " ")
}

func thresholds(absolute *uint256.Int, ratioBps uint64) string {
	return fmt.Sprintf("amount=%s ratioBps=%d", amount.Or(absolute).Dec(), ratioBps)
}

func issuerName(i voucher.Issuer) string {
	if i == nil {
		return "none"
	}
	return fmt.Sprintf("%T", i)
}
