// Package token implements the fungible ledger the vault uses for its shares
// and for the stable asset it pays out. Every mutation is recorded in the
// shared journal so a failed vault operation leaves balances untouched.
package token

import (
	"sync"

	"github.com/holiman/uint256"

	"github.com/LeJamon/goVaultd/internal/core/amount"
	"github.com/LeJamon/goVaultd/internal/core/journal"
	"github.com/LeJamon/goVaultd/internal/core/vaulterr"
	"github.com/LeJamon/goVaultd/internal/types"
)

// Ledger is an in-memory fungible token.
type Ledger struct {
	mu       sync.RWMutex
	symbol   string
	balances map[types.Address]*uint256.Int
	supply   *uint256.Int
	journal  *journal.Journal
}

// NewLedger creates an empty ledger. j may be nil.
func NewLedger(symbol string, j *journal.Journal) *Ledger {
	return &Ledger{
		symbol:   symbol,
		balances: make(map[types.Address]*uint256.Int),
		supply:   amount.Zero(),
		journal:  j,
	}
}

// Symbol returns the ticker the ledger was created with.
func (l *Ledger) Symbol() string {
	return l.symbol
}

// BalanceOf returns a copy of owner's balance.
func (l *Ledger) BalanceOf(owner types.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return amount.Or(l.balances[owner]).Clone()
}

// TotalSupply returns a copy of the total supply.
func (l *Ledger) TotalSupply() *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.supply.Clone()
}

// Transfer moves amt from one account to another.
func (l *Ledger) Transfer(from, to types.Address, amt *uint256.Int) error {
	if from.IsZero() || to.IsZero() {
		return vaulterr.ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	fromBal := amount.Or(l.balances[from])
	if fromBal.Lt(amt) {
		return vaulterr.ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	toBal, err := amount.Add(amount.Or(l.balances[to]), amt)
	if err != nil {
		return err
	}
	l.setBalance(from, new(uint256.Int).Sub(fromBal, amt))
	l.setBalance(to, toBal)
	return nil
}

// Mint creates amt new tokens for to.
func (l *Ledger) Mint(to types.Address, amt *uint256.Int) error {
	if to.IsZero() {
		return vaulterr.ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	supply, err := amount.Add(l.supply, amt)
	if err != nil {
		return err
	}
	bal, err := amount.Add(amount.Or(l.balances[to]), amt)
	if err != nil {
		return err
	}
	l.setSupply(supply)
	l.setBalance(to, bal)
	return nil
}

// Burn destroys amt tokens held by from.
func (l *Ledger) Burn(from types.Address, amt *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	bal := amount.Or(l.balances[from])
	if bal.Lt(amt) {
		return vaulterr.ErrInsufficientBalance
	}
	supply, err := amount.Sub(l.supply, amt)
	if err != nil {
		return err
	}
	l.setSupply(supply)
	l.setBalance(from, new(uint256.Int).Sub(bal, amt))
	return nil
}

func (l *Ledger) setBalance(owner types.Address, v *uint256.Int) {
	prev, had := l.balances[owner]
	if v.IsZero() {
		delete(l.balances, owner)
	} else {
		l.balances[owner] = v
	}
	l.journal.Record(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if had {
			l.balances[owner] = prev
		} else {
			delete(l.balances, owner)
		}
	})
}

func (l *Ledger) setSupply(v *uint256.Int) {
	prev := l.supply
	l.supply = v
	l.journal.Record(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.supply = prev
	})
}

// Snapshot returns copies of every non-zero balance.
func (l *Ledger) Snapshot() map[types.Address]*uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[types.Address]*uint256.Int, len(l.balances))
	for owner, bal := range l.balances {
		out[owner] = bal.Clone()
	}
	return out
}

// Restore replaces all balances and recomputes the supply. It is not journaled.
func (l *Ledger) Restore(balances map[types.Address]*uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	supply := amount.Zero()
	next := make(map[types.Address]*uint256.Int, len(balances))
	for owner, bal := range balances {
		var err error
		if supply, err = amount.Add(supply, bal); err != nil {
			return err
		}
		if !bal.IsZero() {
			next[owner] = bal.Clone()
		}
	}
	l.balances = next
	l.supply = supply
	return nil
}
