package redemption

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/LeJamon/goVaultd/internal/core/access"
	"github.com/LeJamon/goVaultd/internal/core/amount"
	"github.com/LeJamon/goVaultd/internal/core/clock"
	"github.com/LeJamon/goVaultd/internal/core/journal"
	"github.com/LeJamon/goVaultd/internal/core/liability"
	"github.com/LeJamon/goVaultd/internal/core/pool"
	"github.com/LeJamon/goVaultd/internal/core/token"
	"github.com/LeJamon/goVaultd/internal/core/vault"
	"github.com/LeJamon/goVaultd/internal/core/voucher"
	"github.com/LeJamon/goVaultd/internal/types"
)

const (
	vaultAddr  types.Address = "vault"
	engineAddr types.Address = "engine"
	marketAddr types.Address = "market"
	admin      types.Address = "admin"
	approver   types.Address = "approver"
	recovery   types.Address = "recovery"
	manager    types.Address = "manager"
	alice      types.Address = "alice"
	bob        types.Address = "bob"
	carol      types.Address = "carol"
)

var genesis = time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)

func u(v uint64) *uint256.Int { return amount.Units(v, 6) }

type harness struct {
	t        *testing.T
	ctx      context.Context
	engine   *Engine
	vault    *vault.Account
	ledger   *liability.Ledger
	pool     *pool.Pool
	shares   *token.Ledger
	cash     *token.Ledger
	clock    *clock.Clock
	vouchers *voucher.Registry
	events   *Recorder
	store    *memStore
	audit    *memAudit
}

type options struct {
	issuer  voucher.Issuer
	noStore bool
}

func newHarness(t *testing.T, opts ...func(*options)) *harness {
	t.Helper()
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	j := journal.New()
	c := clock.At(genesis)
	shares := token.NewLedger("fofUSD", j)
	cash := token.NewLedger("USDC", j)
	ledger := liability.New(c, j, nil)

	prices := pool.NewStaticPrices()
	prices.Set("USYC", u(1))
	prices.Set("TBILL", u(1))
	p, err := pool.New(pool.Config{
		Vault:   vaultAddr,
		Cash:    cash,
		Prices:  prices,
		Adapter: pool.NewMarketAdapter(cash, prices, vaultAddr, marketAddr, 0),
		Journal: j,
	})
	require.NoError(t, err)
	require.NoError(t, p.RegisterAsset(pool.AssetConfig{Token: "USYC", Tier: pool.TierCash, Active: true, Decimals: 6, MaxSlippageBps: 10}))
	require.NoError(t, p.RegisterAsset(pool.AssetConfig{Token: "TBILL", Tier: pool.TierMoneyMarket, Active: true, Decimals: 6, MaxSlippageBps: 10}))
	require.NoError(t, cash.Mint(marketAddr, u(100_000_000)))

	roles := access.NewRegistry()
	roles.Grant(engineAddr, access.CapOperator)
	roles.Grant(admin, access.CapAdmin|access.CapOperator)
	roles.Grant(approver, access.CapApprover)
	roles.Grant(recovery, access.CapLiabilityRecovery)
	roles.Grant(manager, access.CapAssetManager)

	acct, err := vault.New(vault.Config{
		Address:               vaultAddr,
		Shares:                shares,
		Cash:                  cash,
		Pool:                  p,
		Liabilities:           ledger,
		Access:                roles,
		Journal:               j,
		StandardQuotaRatioBps: 7_000,
	})
	require.NoError(t, err)

	registry := voucher.NewRegistry()
	var issuer voucher.Issuer = registry
	if o.issuer != nil {
		issuer = o.issuer
	}

	h := &harness{
		t:        t,
		ctx:      context.Background(),
		vault:    acct,
		ledger:   ledger,
		pool:     p,
		shares:   shares,
		cash:     cash,
		clock:    c,
		vouchers: registry,
		events:   &Recorder{},
		audit:    &memAudit{},
	}
	cfg := Config{
		Address:     engineAddr,
		Vault:       acct,
		Liabilities: ledger,
		Pool:        p,
		Vouchers:    issuer,
		Access:      roles,
		Clock:       c,
		Journal:     j,
		Params:      DefaultParams(6),
		Events:      h.events,
		Audit:       h.audit,
	}
	if !o.noStore {
		h.store = &memStore{}
		cfg.Store = h.store
	}
	h.engine, err = New(cfg)
	require.NoError(t, err)
	return h
}

func withIssuer(i voucher.Issuer) func(*options) {
	return func(o *options) { o.issuer = i }
}

// seed mints shares to owner and backs them 1:1 with vault cash.
func (h *harness) seed(owner types.Address, v uint64) {
	h.t.Helper()
	require.NoError(h.t, h.shares.Mint(owner, u(v)))
	require.NoError(h.t, h.cash.Mint(vaultAddr, u(v)))
}

func (h *harness) request(owner types.Address, shares uint64, ch Channel) *Request {
	h.t.Helper()
	r, err := h.engine.RequestRedemption(h.ctx, owner, u(shares), owner, ch)
	require.NoError(h.t, err)
	return r
}

func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
}

type memStore struct {
	mu    sync.Mutex
	saves []*Checkpoint
	err   error
}

func (s *memStore) Save(_ context.Context, cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saves = append(s.saves, cp)
	return nil
}

func (s *memStore) last() *Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saves) == 0 {
		return nil
	}
	return s.saves[len(s.saves)-1]
}

type memAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (a *memAudit) Record(_ context.Context, entry AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}
