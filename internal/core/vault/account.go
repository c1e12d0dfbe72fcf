// Package vault implements the VaultAccount: share custody buckets, the
// redemption liability total, fee balances and the NAV derivations built on
// top of them. Every balance-affecting call is gated by a capability check.
//
// An Account is not safe for concurrent use; it is owned by the redemption
// engine, which serializes access.
package vault

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/LeJamon/goVaultd/internal/core/access"
	"github.com/LeJamon/goVaultd/internal/core/amount"
	"github.com/LeJamon/goVaultd/internal/core/journal"
	"github.com/LeJamon/goVaultd/internal/core/pool"
	"github.com/LeJamon/goVaultd/internal/core/vaulterr"
	"github.com/LeJamon/goVaultd/internal/types"
)

// ShareLedger is the fungible ledger for vault shares.
type ShareLedger interface {
	BalanceOf(owner types.Address) *uint256.Int
	TotalSupply() *uint256.Int
	Transfer(from, to types.Address, amt *uint256.Int) error
	Mint(to types.Address, amt *uint256.Int) error
	Burn(from types.Address, amt *uint256.Int) error
}

// CashLedger is the ledger of the stable asset paid in and out.
type CashLedger interface {
	BalanceOf(owner types.Address) *uint256.Int
	Transfer(from, to types.Address, amt *uint256.Int) error
}

// AssetPool values the vault's holdings and invests idle cash.
type AssetPool interface {
	GrossAssetValue(ctx context.Context) (*uint256.Int, error)
	TierValue(ctx context.Context, tier pool.Tier) (*uint256.Int, error)
	Purchase(ctx context.Context, token string, cash *uint256.Int) (*uint256.Int, error)
}

// LiabilityView exposes the forward-looking liability sums.
type LiabilityView interface {
	OverdueLiability() *uint256.Int
	SevenDayLiability() *uint256.Int
}

// Config wires an Account.
type Config struct {
	Address               types.Address
	Shares                ShareLedger
	Cash                  CashLedger
	Pool                  AssetPool
	Liabilities           LiabilityView
	Access                access.Checker
	Journal               *journal.Journal
	Logger                *zap.Logger
	StandardQuotaRatioBps uint64
	EmergencyQuota        *uint256.Int
	EmergencyMode         bool
}

// Account is the vault's share and liability bookkeeping.
type Account struct {
	address     types.Address
	shares      ShareLedger
	cash        CashLedger
	pool        AssetPool
	liabilities LiabilityView
	access      access.Checker
	journal     *journal.Journal
	logger      *zap.Logger

	lockedShares     *uint256.Int
	lockedByOwner    map[types.Address]*uint256.Int
	pendingByOwner   map[types.Address]*uint256.Int
	pendingShares    *uint256.Int
	liability        *uint256.Int
	withdrawableFees *uint256.Int
	accumulatedFees  *uint256.Int
	lockedMintAssets *uint256.Int
	emergencyQuota   *uint256.Int
	emergencyMode    bool
	quotaRatioBps    uint64
}

// New creates an account with empty buckets.
func New(cfg Config) (*Account, error) {
	if cfg.Address.IsZero() {
		return nil, vaulterr.ErrZeroAddress
	}
	if cfg.Shares == nil || cfg.Cash == nil || cfg.Pool == nil || cfg.Liabilities == nil {
		return nil, fmt.Errorf("vault: share ledger, cash ledger, pool and liability view are required")
	}
	if cfg.StandardQuotaRatioBps > amount.BasisPointsDenominator {
		return nil, vaulterr.ErrInvalidRatio
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Account{
		address:          cfg.Address,
		shares:           cfg.Shares,
		cash:             cfg.Cash,
		pool:             cfg.Pool,
		liabilities:      cfg.Liabilities,
		access:           cfg.Access,
		journal:          cfg.Journal,
		logger:           cfg.Logger,
		lockedShares:     amount.Zero(),
		lockedByOwner:    make(map[types.Address]*uint256.Int),
		pendingByOwner:   make(map[types.Address]*uint256.Int),
		pendingShares:    amount.Zero(),
		liability:        amount.Zero(),
		withdrawableFees: amount.Zero(),
		accumulatedFees:  amount.Zero(),
		lockedMintAssets: amount.Zero(),
		emergencyQuota:   amount.Or(cfg.EmergencyQuota).Clone(),
		emergencyMode:    cfg.EmergencyMode,
		quotaRatioBps:    cfg.StandardQuotaRatioBps,
	}, nil
}

// Address returns the vault's own account on the share and cash ledgers.
func (a *Account) Address() types.Address { return a.address }

// ShareSupply returns the total share supply.
func (a *Account) ShareSupply() *uint256.Int { return a.shares.TotalSupply() }

// ShareBalanceOf returns owner's free share balance.
func (a *Account) ShareBalanceOf(owner types.Address) *uint256.Int { return a.shares.BalanceOf(owner) }

// LockedShares returns the total of shares locked for settlement.
func (a *Account) LockedShares() *uint256.Int { return a.lockedShares.Clone() }

// LockedSharesOf returns the shares owner has locked for settlement.
func (a *Account) LockedSharesOf(owner types.Address) *uint256.Int {
	return amount.Or(a.lockedByOwner[owner]).Clone()
}

// PendingApprovalShares returns the shares owner has parked awaiting approval.
func (a *Account) PendingApprovalShares(owner types.Address) *uint256.Int {
	return amount.Or(a.pendingByOwner[owner]).Clone()
}

// TotalPendingApprovalShares returns the sum of every owner's pending bucket.
func (a *Account) TotalPendingApprovalShares() *uint256.Int { return a.pendingShares.Clone() }

// TotalRedemptionLiability returns the booked but unsettled gross amounts.
func (a *Account) TotalRedemptionLiability() *uint256.Int { return a.liability.Clone() }

// WithdrawableFees returns fees not yet withdrawn.
func (a *Account) WithdrawableFees() *uint256.Int { return a.withdrawableFees.Clone() }

// AccumulatedFees returns every fee ever booked.
func (a *Account) AccumulatedFees() *uint256.Int { return a.accumulatedFees.Clone() }

// LockedMintAssets returns cash reserved for pending mints.
func (a *Account) LockedMintAssets() *uint256.Int { return a.lockedMintAssets.Clone() }

// EmergencyQuota returns the remaining emergency-channel capacity.
func (a *Account) EmergencyQuota() *uint256.Int { return a.emergencyQuota.Clone() }

// EmergencyMode reports whether the emergency channel is open.
func (a *Account) EmergencyMode() bool { return a.emergencyMode }

// StandardQuotaRatioBps returns the share of tier 1+2 liquidity offered to
// the standard channel.
func (a *Account) StandardQuotaRatioBps() uint64 { return a.quotaRatioBps }

// RawCash returns the vault's stable-asset balance.
func (a *Account) RawCash() *uint256.Int { return a.cash.BalanceOf(a.address) }

// AvailableCash is raw cash minus withdrawable fees and locked mint assets,
// floored at zero.
func (a *Account) AvailableCash() *uint256.Int {
	return amount.SubFloor(amount.SubFloor(a.RawCash(), a.withdrawableFees), a.lockedMintAssets)
}

// EffectiveSupply is share supply minus locked shares. Pending-approval
// shares stay in supply.
func (a *Account) EffectiveSupply() *uint256.Int {
	return amount.SubFloor(a.shares.TotalSupply(), a.lockedShares)
}

// TotalAssets is gross asset value net of liabilities and withdrawable fees,
// floored at zero at each step.
func (a *Account) TotalAssets(ctx context.Context) (*uint256.Int, error) {
	gross, err := a.pool.GrossAssetValue(ctx)
	if err != nil {
		return nil, err
	}
	return amount.SubFloor(amount.SubFloor(gross, a.liability), a.withdrawableFees), nil
}

// SharePrice is TotalAssets * Precision / EffectiveSupply, or Precision
// when nothing is outstanding.
func (a *Account) SharePrice(ctx context.Context) (*uint256.Int, error) {
	supply := a.EffectiveSupply()
	if supply.IsZero() {
		return amount.Precision.Clone(), nil
	}
	assets, err := a.TotalAssets(ctx)
	if err != nil {
		return nil, err
	}
	return amount.MulDiv(assets, amount.Precision, supply)
}

// StandardChannelQuota is the dynamic ceiling used for standard-channel
// approval decisions. It is recomputed on every call.
func (a *Account) StandardChannelQuota(ctx context.Context) (*uint256.Int, error) {
	l1, err := a.pool.TierValue(ctx, pool.TierCash)
	if err != nil {
		return nil, err
	}
	l2, err := a.pool.TierValue(ctx, pool.TierMoneyMarket)
	if err != nil {
		return nil, err
	}
	liquid, err := amount.Add(l1, l2)
	if err != nil {
		return nil, err
	}
	quota, err := amount.Bps(liquid, a.quotaRatioBps)
	if err != nil {
		return nil, err
	}
	for _, reserved := range []*uint256.Int{
		a.emergencyQuota,
		a.withdrawableFees,
		a.lockedMintAssets,
		a.liabilities.OverdueLiability(),
		a.liabilities.SevenDayLiability(),
	} {
		quota = amount.SubFloor(quota, reserved)
	}
	return quota, nil
}

// LockShares moves shares from owner into the vault's custody for settlement.
func (a *Account) LockShares(caller, owner types.Address, shares *uint256.Int) error {
	if err := a.requireOperator(caller, shares); err != nil {
		return err
	}
	if err := a.custody(owner, shares); err != nil {
		return err
	}
	if err := a.addOwner(a.lockedByOwner, owner, shares); err != nil {
		return err
	}
	return a.add(&a.lockedShares, shares)
}

// UnlockShares returns locked shares to owner.
func (a *Account) UnlockShares(caller, owner types.Address, shares *uint256.Int) error {
	if err := a.requireOperator(caller, shares); err != nil {
		return err
	}
	if err := a.subOwner(a.lockedByOwner, owner, shares); err != nil {
		return vaulterr.E("unlockShares", err)
	}
	if err := a.sub(&a.lockedShares, shares); err != nil {
		return vaulterr.E("unlockShares", err)
	}
	return a.shares.Transfer(a.address, owner, shares)
}

// BurnLockedShares destroys locked shares at settlement.
func (a *Account) BurnLockedShares(caller, owner types.Address, shares *uint256.Int) error {
	if err := a.requireOperator(caller, shares); err != nil {
		return err
	}
	if err := a.subOwner(a.lockedByOwner, owner, shares); err != nil {
		return vaulterr.E("burnLockedShares", err)
	}
	if err := a.sub(&a.lockedShares, shares); err != nil {
		return vaulterr.E("burnLockedShares", err)
	}
	return a.shares.Burn(a.address, shares)
}

// AddPendingApprovalShares parks shares in the vault without touching
// effective supply or liabilities.
func (a *Account) AddPendingApprovalShares(caller, owner types.Address, shares *uint256.Int) error {
	if err := a.requireOperator(caller, shares); err != nil {
		return err
	}
	if err := a.custody(owner, shares); err != nil {
		return err
	}
	if err := a.addOwner(a.pendingByOwner, owner, shares); err != nil {
		return err
	}
	return a.add(&a.pendingShares, shares)
}

// RemovePendingApprovalShares returns parked shares to owner.
func (a *Account) RemovePendingApprovalShares(caller, owner types.Address, shares *uint256.Int) error {
	if err := a.requireOperator(caller, shares); err != nil {
		return err
	}
	if err := a.subOwner(a.pendingByOwner, owner, shares); err != nil {
		return vaulterr.E("removePendingApprovalShares", err)
	}
	if err := a.sub(&a.pendingShares, shares); err != nil {
		return vaulterr.E("removePendingApprovalShares", err)
	}
	return a.shares.Transfer(a.address, owner, shares)
}

// ConvertPendingToLocked moves parked shares into the locked bucket. The
// vault already holds them, so no transfer happens.
func (a *Account) ConvertPendingToLocked(caller, owner types.Address, shares *uint256.Int) error {
	if err := a.requireOperator(caller, shares); err != nil {
		return err
	}
	if err := a.subOwner(a.pendingByOwner, owner, shares); err != nil {
		return vaulterr.E("convertPendingToLocked", err)
	}
	if err := a.sub(&a.pendingShares, shares); err != nil {
		return vaulterr.E("convertPendingToLocked", err)
	}
	if err := a.addOwner(a.lockedByOwner, owner, shares); err != nil {
		return err
	}
	return a.add(&a.lockedShares, shares)
}

// AddRedemptionLiability books a gross amount owed.
func (a *Account) AddRedemptionLiability(caller types.Address, amt *uint256.Int) error {
	if err := a.requireOperator(caller, amt); err != nil {
		return err
	}
	return a.add(&a.liability, amt)
}

// RemoveRedemptionLiability releases a booked amount. Removing more than is
// booked is an invariant violation.
func (a *Account) RemoveRedemptionLiability(caller types.Address, amt *uint256.Int) error {
	if err := a.requireOperator(caller, amt); err != nil {
		return err
	}
	if err := a.sub(&a.liability, amt); err != nil {
		return vaulterr.Ef("removeRedemptionLiability", err, "remove %s of %s", amt.Dec(), a.liability.Dec())
	}
	return nil
}

// AddRedemptionFee books a fee into both fee totals.
func (a *Account) AddRedemptionFee(caller types.Address, fee *uint256.Int) error {
	if err := access.Require(a.access, caller, access.CapOperator); err != nil {
		return err
	}
	if fee.IsZero() {
		return nil
	}
	if err := a.add(&a.accumulatedFees, fee); err != nil {
		return err
	}
	return a.add(&a.withdrawableFees, fee)
}

// ReduceRedemptionFee lowers the withdrawable total only.
func (a *Account) ReduceRedemptionFee(caller types.Address, fee *uint256.Int) error {
	if err := a.requireOperator(caller, fee); err != nil {
		return err
	}
	return a.reduceFee(fee)
}

// PayOut transfers cash from the vault to a receiver.
func (a *Account) PayOut(caller, to types.Address, amt *uint256.Int) error {
	if err := access.Require(a.access, caller, access.CapOperator); err != nil {
		return err
	}
	if to.IsZero() {
		return vaulterr.ErrZeroAddress
	}
	if amt.IsZero() {
		return nil
	}
	if err := a.cash.Transfer(a.address, to, amt); err != nil {
		return fmt.Errorf("%w: %v", vaulterr.ErrInsufficientLiquidity, err)
	}
	return nil
}

// LockMintAssets reserves cash for mints that have not been issued yet.
func (a *Account) LockMintAssets(caller types.Address, amt *uint256.Int) error {
	if err := a.requireOperator(caller, amt); err != nil {
		return err
	}
	return a.add(&a.lockedMintAssets, amt)
}

// UnlockMintAssets releases a mint reservation.
func (a *Account) UnlockMintAssets(caller types.Address, amt *uint256.Int) error {
	if err := a.requireOperator(caller, amt); err != nil {
		return err
	}
	if err := a.sub(&a.lockedMintAssets, amt); err != nil {
		return vaulterr.E("unlockMintAssets", err)
	}
	return nil
}

// ConsumeEmergencyQuota deducts amt from the emergency quota.
func (a *Account) ConsumeEmergencyQuota(caller types.Address, amt *uint256.Int) error {
	if err := access.Require(a.access, caller, access.CapOperator); err != nil {
		return err
	}
	if amt.Gt(a.emergencyQuota) {
		return vaulterr.Ef("consumeEmergencyQuota", vaulterr.ErrEmergencyQuotaExceeded,
			"requested %s, remaining %s", amt.Dec(), a.emergencyQuota.Dec())
	}
	a.set(&a.emergencyQuota, new(uint256.Int).Sub(a.emergencyQuota, amt))
	return nil
}

// RefundEmergencyQuota gives amt back to the emergency quota.
func (a *Account) RefundEmergencyQuota(caller types.Address, amt *uint256.Int) error {
	if err := access.Require(a.access, caller, access.CapOperator); err != nil {
		return err
	}
	return a.add(&a.emergencyQuota, amt)
}

// SetEmergencyQuota replaces the emergency quota.
func (a *Account) SetEmergencyQuota(caller types.Address, quota *uint256.Int) error {
	if err := access.Require(a.access, caller, access.CapOperator); err != nil {
		return err
	}
	a.set(&a.emergencyQuota, quota.Clone())
	return nil
}

// SetEmergencyMode opens or closes the emergency channel.
func (a *Account) SetEmergencyMode(caller types.Address, on bool) error {
	if err := access.Require(a.access, caller, access.CapOperator); err != nil {
		return err
	}
	prev := a.emergencyMode
	a.emergencyMode = on
	a.journal.Record(func() { a.emergencyMode = prev })
	return nil
}

// SetStandardQuotaRatio replaces the standard-channel liquidity share.
func (a *Account) SetStandardQuotaRatio(caller types.Address, bps uint64) error {
	if err := access.Require(a.access, caller, access.CapOperator); err != nil {
		return err
	}
	if bps > amount.BasisPointsDenominator {
		return vaulterr.ErrInvalidRatio
	}
	prev := a.quotaRatioBps
	a.quotaRatioBps = bps
	a.journal.Record(func() { a.quotaRatioBps = prev })
	return nil
}

func (a *Account) requireOperator(caller types.Address, amt *uint256.Int) error {
	if err := access.Require(a.access, caller, access.CapOperator); err != nil {
		return err
	}
	if amt == nil || amt.IsZero() {
		return vaulterr.ErrZeroAmount
	}
	return nil
}

// custody transfers shares from owner to the vault.
func (a *Account) custody(owner types.Address, shares *uint256.Int) error {
	if owner.IsZero() {
		return vaulterr.ErrZeroAddress
	}
	if a.shares.BalanceOf(owner).Lt(shares) {
		return vaulterr.ErrInsufficientShares
	}
	return a.shares.Transfer(owner, a.address, shares)
}

func (a *Account) reduceFee(fee *uint256.Int) error {
	if fee.Gt(a.withdrawableFees) {
		return vaulterr.Ef("reduceRedemptionFee", vaulterr.ErrInsufficientBalance,
			"withdrawable %s", a.withdrawableFees.Dec())
	}
	a.set(&a.withdrawableFees, new(uint256.Int).Sub(a.withdrawableFees, fee))
	return nil
}

func (a *Account) add(field **uint256.Int, amt *uint256.Int) error {
	v, err := amount.Add(*field, amt)
	if err != nil {
		return err
	}
	a.set(field, v)
	return nil
}

func (a *Account) sub(field **uint256.Int, amt *uint256.Int) error {
	v, err := amount.Sub(*field, amt)
	if err != nil {
		return err
	}
	a.set(field, v)
	return nil
}

func (a *Account) set(field **uint256.Int, v *uint256.Int) {
	prev := *field
	*field = v
	a.journal.Record(func() { *field = prev })
}

func (a *Account) addOwner(m map[types.Address]*uint256.Int, owner types.Address, amt *uint256.Int) error {
	v, err := amount.Add(amount.Or(m[owner]), amt)
	if err != nil {
		return err
	}
	a.setOwner(m, owner, v)
	return nil
}

func (a *Account) subOwner(m map[types.Address]*uint256.Int, owner types.Address, amt *uint256.Int) error {
	v, err := amount.Sub(amount.Or(m[owner]), amt)
	if err != nil {
		return err
	}
	a.setOwner(m, owner, v)
	return nil
}

func (a *Account) setOwner(m map[types.Address]*uint256.Int, owner types.Address, v *uint256.Int) {
	prev, had := m[owner]
	if v.IsZero() {
		delete(m, owner)
	} else {
		m[owner] = v
	}
	a.journal.Record(func() {
		if had {
			m[owner] = prev
		} else {
			delete(m, owner)
		}
	})
}
