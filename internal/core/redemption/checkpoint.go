package redemption

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"github.com/LeJamon/goVaultd/internal/core/amount"
	"github.com/LeJamon/goVaultd/internal/core/liability"
	"github.com/LeJamon/goVaultd/internal/core/vault"
	"github.com/LeJamon/goVaultd/internal/types"
)

// Checkpoint is the persisted engine state. When written after an operation
// Requests holds only the requests that operation touched; a loaded
// checkpoint holds all of them.
type Checkpoint struct {
	NextID       uint64
	Requests     []*Request
	Owners       map[types.Address][]uint64
	Pending      []uint64
	PendingTotal *uint256.Int
	Params       Params
	Paused       bool
	Vault        vault.State
	Liability    liability.State
}

// Checkpoint returns the full engine state.
func (e *Engine) Checkpoint() *Checkpoint {
	return e.checkpoint(false)
}

func (e *Engine) checkpoint(dirtyOnly bool) *Checkpoint {
	cp := &Checkpoint{
		NextID:       e.nextID,
		Owners:       make(map[types.Address][]uint64, len(e.byOwner)),
		Pending:      e.pending.list(),
		PendingTotal: e.pendingTotal.Clone(),
		Params:       e.Params(),
		Paused:       e.paused,
		Vault:        e.vault.Snapshot(),
		Liability:    e.liabilities.Snapshot(),
	}
	for owner, ids := range e.byOwner {
		cp.Owners[owner] = append([]uint64(nil), ids...)
	}
	if dirtyOnly {
		for id := range e.dirty {
			if r, ok := e.requests[id]; ok {
				cp.Requests = append(cp.Requests, r.Clone())
			}
		}
	} else {
		for _, r := range e.requests {
			cp.Requests = append(cp.Requests, r.Clone())
		}
	}
	sort.Slice(cp.Requests, func(i, j int) bool { return cp.Requests[i].ID < cp.Requests[j].ID })
	return cp
}

// Restore loads a full checkpoint into an engine that has not run any
// operation yet.
func (e *Engine) Restore(cp *Checkpoint) error {
	if e.entered {
		return fmt.Errorf("restore during an operation")
	}
	if len(e.requests) > 0 {
		return fmt.Errorf("restore into a non-empty engine")
	}
	if err := cp.Params.Validate(); err != nil {
		return fmt.Errorf("restore params: %w", err)
	}

	requests := make(map[uint64]*Request, len(cp.Requests))
	vouchers := make(map[uint64]uint64)
	next := cp.NextID
	for _, r := range cp.Requests {
		requests[r.ID] = r.Clone()
		if r.HasVoucher && !r.Status.Terminal() {
			vouchers[r.VoucherID] = r.ID
		}
		if r.ID >= next {
			next = r.ID + 1
		}
	}
	if next == 0 {
		next = 1
	}
	owners := make(map[types.Address][]uint64, len(cp.Owners))
	for owner, ids := range cp.Owners {
		owners[owner] = append([]uint64(nil), ids...)
	}

	e.requests = requests
	e.byVoucher = vouchers
	e.byOwner = owners
	e.nextID = next
	e.pending.reset(cp.Pending)
	e.pendingTotal = amount.Or(cp.PendingTotal).Clone()
	e.params = cp.Params
	e.paused = cp.Paused
	e.vault.Restore(cp.Vault)
	e.liabilities.Restore(cp.Liability)
	return nil
}
