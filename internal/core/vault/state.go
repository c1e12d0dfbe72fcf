package vault

import (
	"github.com/holiman/uint256"

	"github.com/LeJamon/goVaultd/internal/core/amount"
	"github.com/LeJamon/goVaultd/internal/types"
)

// State is the persisted form of an Account's scalars and buckets. Share
// supply lives in the share ledger.
type State struct {
	LockedShares          *uint256.Int
	LockedByOwner         map[types.Address]*uint256.Int
	PendingByOwner        map[types.Address]*uint256.Int
	PendingShares         *uint256.Int
	Liability             *uint256.Int
	WithdrawableFees      *uint256.Int
	AccumulatedFees       *uint256.Int
	LockedMintAssets      *uint256.Int
	EmergencyQuota        *uint256.Int
	EmergencyMode         bool
	StandardQuotaRatioBps uint64
}

// Snapshot copies the account state.
func (a *Account) Snapshot() State {
	return State{
		LockedShares:          a.lockedShares.Clone(),
		LockedByOwner:         copyOwners(a.lockedByOwner),
		PendingByOwner:        copyOwners(a.pendingByOwner),
		PendingShares:         a.pendingShares.Clone(),
		Liability:             a.liability.Clone(),
		WithdrawableFees:      a.withdrawableFees.Clone(),
		AccumulatedFees:       a.accumulatedFees.Clone(),
		LockedMintAssets:      a.lockedMintAssets.Clone(),
		EmergencyQuota:        a.emergencyQuota.Clone(),
		EmergencyMode:         a.emergencyMode,
		StandardQuotaRatioBps: a.quotaRatioBps,
	}
}

// Restore replaces the account state. It is not journaled.
func (a *Account) Restore(s State) {
	a.lockedShares = amount.Or(s.LockedShares).Clone()
	a.lockedByOwner = copyOwners(s.LockedByOwner)
	a.pendingByOwner = copyOwners(s.PendingByOwner)
	a.pendingShares = amount.Or(s.PendingShares).Clone()
	a.liability = amount.Or(s.Liability).Clone()
	a.withdrawableFees = amount.Or(s.WithdrawableFees).Clone()
	a.accumulatedFees = amount.Or(s.AccumulatedFees).Clone()
	a.lockedMintAssets = amount.Or(s.LockedMintAssets).Clone()
	a.emergencyQuota = amount.Or(s.EmergencyQuota).Clone()
	a.emergencyMode = s.EmergencyMode
	a.quotaRatioBps = s.StandardQuotaRatioBps
}

func copyOwners(in map[types.Address]*uint256.Int) map[types.Address]*uint256.Int {
	out := make(map[types.Address]*uint256.Int, len(in))
	for owner, v := range in {
		if v != nil && !v.IsZero() {
			out[owner] = v.Clone()
		}
	}
	return out
}
