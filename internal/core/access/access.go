package access

import (
	"strings"
	"sync"

	"github.com/LeJamon/goVaultd/internal/core/vaulterr"
	"github.com/LeJamon/goVaultd/internal/types"
)

// Capability is a role bit. An account may hold several.
type Capability uint32

const (
	// CapOperator may mutate vault balances (redemption engine, asset manager).
	CapOperator Capability = 1 << iota
	// CapApprover may approve or reject redemptions awaiting review.
	CapApprover
	// CapAdmin may change fees, thresholds, quotas and pause the vault.
	CapAdmin
	// CapFeeCollector may withdraw accumulated redemption fees.
	CapFeeCollector
	// CapLiabilityRecovery may override liability buckets during incident recovery.
	CapLiabilityRecovery
	// CapAssetManager may register assets and move cash between tiers.
	CapAssetManager
)

var capabilityNames = map[Capability]string{
	CapOperator:          "operator",
	CapApprover:          "approver",
	CapAdmin:             "admin",
	CapFeeCollector:      "fee_collector",
	CapLiabilityRecovery: "liability_recovery",
	CapAssetManager:      "asset_manager",
}

func (c Capability) String() string {
	var names []string
	for bit := CapOperator; bit <= CapAssetManager; bit <<= 1 {
		if c&bit != 0 {
			names = append(names, capabilityNames[bit])
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// ParseCapability maps a configuration name to its bit.
func ParseCapability(name string) (Capability, bool) {
	for bit, n := range capabilityNames {
		if n == name {
			return bit, true
		}
	}
	return 0, false
}

// Checker answers capability questions for the core.
type Checker interface {
	HasCapability(caller types.Address, capability Capability) bool
}

// Require returns ErrUnauthorized unless caller holds capability.
func Require(c Checker, caller types.Address, capability Capability) error {
	if c == nil || !c.HasCapability(caller, capability) {
		return vaulterr.ErrUnauthorized
	}
	return nil
}

// Registry is an in-memory Checker.
type Registry struct {
	mu    sync.RWMutex
	roles map[types.Address]Capability
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{roles: make(map[types.Address]Capability)}
}

// Grant adds capabilities to addr.
func (r *Registry) Grant(addr types.Address, capability Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles[addr] |= capability
}

// Revoke removes capabilities from addr.
func (r *Registry) Revoke(addr types.Address, capability Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles[addr] &^= capability
	if r.roles[addr] == 0 {
		delete(r.roles, addr)
	}
}

// HasCapability implements Checker. All requested bits must be held.
func (r *Registry) HasCapability(caller types.Address, capability Capability) bool {
	if caller.IsZero() || capability == 0 {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.roles[caller]&capability == capability
}

// Roles returns the capabilities held by addr.
func (r *Registry) Roles(addr types.Address) Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.roles[addr]
}
