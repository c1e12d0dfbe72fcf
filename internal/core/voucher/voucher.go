// Package voucher provides the capability used to issue transferable
// settlement claims for long-delay redemptions.
package voucher

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/LeJamon/goVaultd/internal/core/vaulterr"
	"github.com/LeJamon/goVaultd/internal/types"
)

// Issuer mints and burns vouchers and resolves their holders.
type Issuer interface {
	Mint(ctx context.Context, owner types.Address, requestID uint64, net *uint256.Int, settlementTime time.Time) (uint64, error)
	Burn(ctx context.Context, tokenID uint64) error
	OwnerOf(ctx context.Context, tokenID uint64) (types.Address, error)
	LookupByRequest(ctx context.Context, requestID uint64) (tokenID uint64, ok bool, err error)
}

// Voucher is one outstanding claim.
type Voucher struct {
	TokenID        uint64
	RequestID      uint64
	Owner          types.Address
	NetAmount      *uint256.Int
	SettlementTime time.Time
}

// Registry is an in-memory Issuer with holder transfers.
type Registry struct {
	mu        sync.RWMutex
	nextID    uint64
	vouchers  map[uint64]Voucher
	byRequest map[uint64]uint64
}

// NewRegistry returns an empty registry. Token ids start at 1.
func NewRegistry() *Registry {
	return &Registry{
		nextID:    1,
		vouchers:  make(map[uint64]Voucher),
		byRequest: make(map[uint64]uint64),
	}
}

// Mint implements Issuer.
func (r *Registry) Mint(_ context.Context, owner types.Address, requestID uint64, net *uint256.Int, settlementTime time.Time) (uint64, error) {
	if owner.IsZero() {
		return 0, vaulterr.ErrZeroAddress
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byRequest[requestID]; ok {
		return 0, fmt.Errorf("request %d already has voucher %d", requestID, existing)
	}
	id := r.nextID
	r.nextID++
	r.vouchers[id] = Voucher{
		TokenID:        id,
		RequestID:      requestID,
		Owner:          owner,
		NetAmount:      net.Clone(),
		SettlementTime: settlementTime,
	}
	r.byRequest[requestID] = id
	return id, nil
}

// Burn implements Issuer.
func (r *Registry) Burn(_ context.Context, tokenID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.vouchers[tokenID]
	if !ok {
		return vaulterr.ErrUnknownVoucher
	}
	delete(r.vouchers, tokenID)
	delete(r.byRequest, v.RequestID)
	return nil
}

// OwnerOf implements Issuer.
func (r *Registry) OwnerOf(_ context.Context, tokenID uint64) (types.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vouchers[tokenID]
	if !ok {
		return "", vaulterr.ErrUnknownVoucher
	}
	return v.Owner, nil
}

// LookupByRequest implements Issuer.
func (r *Registry) LookupByRequest(_ context.Context, requestID uint64) (uint64, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byRequest[requestID]
	return id, ok, nil
}

// Get returns a copy of a voucher.
func (r *Registry) Get(tokenID uint64) (Voucher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vouchers[tokenID]
	if ok {
		v.NetAmount = v.NetAmount.Clone()
	}
	return v, ok
}

// Transfer hands a voucher to a new holder.
func (r *Registry) Transfer(from, to types.Address, tokenID uint64) error {
	if to.IsZero() {
		return vaulterr.ErrZeroAddress
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.vouchers[tokenID]
	if !ok {
		return vaulterr.ErrUnknownVoucher
	}
	if v.Owner != from {
		return vaulterr.ErrNotVoucherHolder
	}
	v.Owner = to
	r.vouchers[tokenID] = v
	return nil
}

// Snapshot lists outstanding vouchers ordered by token id, and the next id.
func (r *Registry) Snapshot() ([]Voucher, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Voucher, 0, len(r.vouchers))
	for _, v := range r.vouchers {
		v.NetAmount = v.NetAmount.Clone()
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return out, r.nextID
}

// Restore replaces the registry contents.
func (r *Registry) Restore(vouchers []Voucher, nextID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vouchers = make(map[uint64]Voucher, len(vouchers))
	r.byRequest = make(map[uint64]uint64, len(vouchers))
	for _, v := range vouchers {
		r.vouchers[v.TokenID] = v
		r.byRequest[v.RequestID] = v.TokenID
		if v.TokenID >= nextID {
			nextID = v.TokenID + 1
		}
	}
	if nextID == 0 {
		nextID = 1
	}
	r.nextID = nextID
}
