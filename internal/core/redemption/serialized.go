package redemption

import (
	"context"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/LeJamon/goVaultd/internal/types"
)

// Serialized totally orders calls into an Engine with a single mutex.
// Collaborators invoked by the engine must not call back through the same
// Serialized; direct re-entry into the Engine is rejected by its own guard.
type Serialized struct {
	mu     sync.Mutex
	engine *Engine
}

// NewSerialized wraps e.
func NewSerialized(e *Engine) *Serialized {
	return &Serialized{engine: e}
}

// Do runs fn with exclusive access to the engine.
func (s *Serialized) Do(fn func(e *Engine) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.engine)
}

// RequestRedemption is Engine.RequestRedemption under the lock.
func (s *Serialized) RequestRedemption(ctx context.Context, caller types.Address, shares *uint256.Int, receiver types.Address, ch Channel) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.RequestRedemption(ctx, caller, shares, receiver, ch)
}

// ApproveRedemption is Engine.ApproveRedemption under the lock.
func (s *Serialized) ApproveRedemption(ctx context.Context, caller types.Address, id uint64, settlementTime time.Time) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.ApproveRedemption(ctx, caller, id, settlementTime)
}

// RejectRedemption is Engine.RejectRedemption under the lock.
func (s *Serialized) RejectRedemption(ctx context.Context, caller types.Address, id uint64, reason string) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.RejectRedemption(ctx, caller, id, reason)
}

// SettleRedemption is Engine.SettleRedemption under the lock.
func (s *Serialized) SettleRedemption(ctx context.Context, caller types.Address, id uint64) (*Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.SettleRedemption(ctx, caller, id)
}

// SettleWithVoucher is Engine.SettleWithVoucher under the lock.
func (s *Serialized) SettleWithVoucher(ctx context.Context, caller types.Address, tokenID uint64) (*Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.SettleWithVoucher(ctx, caller, tokenID)
}

// GetRequest is Engine.GetRequest under the lock.
func (s *Serialized) GetRequest(id uint64) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.GetRequest(id)
}

// LiquiditySnapshot is Engine.LiquiditySnapshot under the lock.
func (s *Serialized) LiquiditySnapshot(ctx context.Context) (*Liquidity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.LiquiditySnapshot(ctx)
}
