package statestore

import (
	"context"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeJamon/goVaultd/internal/core/amount"
	"github.com/LeJamon/goVaultd/internal/core/journal"
	"github.com/LeJamon/goVaultd/internal/core/liability"
	"github.com/LeJamon/goVaultd/internal/core/pool"
	"github.com/LeJamon/goVaultd/internal/core/redemption"
	"github.com/LeJamon/goVaultd/internal/core/token"
	"github.com/LeJamon/goVaultd/internal/core/vault"
	"github.com/LeJamon/goVaultd/internal/core/voucher"
	"github.com/LeJamon/goVaultd/internal/storage/kv"
	"github.com/LeJamon/goVaultd/internal/storage/kv/backend"
	"github.com/LeJamon/goVaultd/internal/types"
)

const (
	alice types.Address = "alice"
	bob   types.Address = "bob"
)

var at = time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)

func u(v uint64) *uint256.Int { return amount.Units(v, 6) }

func checkpoint() *redemption.Checkpoint {
	return &redemption.Checkpoint{
		NextID: 3,
		Requests: []*redemption.Request{
			{
				ID: 1, Owner: alice, Receiver: bob,
				Shares: u(10_000), GrossAmount: u(10_000), LockedNav: u(1), EstimatedFee: u(100),
				RequestTime: at, SettlementTime: at.Add(7 * 24 * time.Hour),
				Status: redemption.StatusPending, Channel: redemption.ChannelStandard,
			},
			{
				ID: 2, Owner: alice, Receiver: alice,
				Shares: u(60_000), GrossAmount: u(60_000), LockedNav: u(1), EstimatedFee: u(1_200),
				RequestTime: at, Status: redemption.StatusPendingApproval,
				Channel: redemption.ChannelEmergency, RequiresApproval: true,
			},
		},
		Owners:       map[types.Address][]uint64{alice: {1, 2}},
		Pending:      []uint64{2},
		PendingTotal: u(60_000),
		Params:       redemption.DefaultParams(6),
		Vault: vault.State{
			LockedShares:          u(10_000),
			LockedByOwner:         map[types.Address]*uint256.Int{alice: u(10_000)},
			PendingByOwner:        map[types.Address]*uint256.Int{alice: u(60_000)},
			PendingShares:         u(60_000),
			Liability:             u(10_000),
			WithdrawableFees:      u(12),
			AccumulatedFees:       u(40),
			LockedMintAssets:      new(uint256.Int),
			EmergencyQuota:        u(440_000),
			EmergencyMode:         true,
			StandardQuotaRatioBps: 7_000,
		},
		Liability: liability.State{
			Buckets:       []liability.Bucket{{Day: 20_101, Amount: u(10_000)}},
			Overdue:       u(5),
			LastRolledDay: 20_094,
		},
	}
}

func newStore(t *testing.T, db kv.DB, compression string) *Store {
	t.Helper()
	s, err := New(Config{DB: db, Compression: compression})
	require.NoError(t, err)
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, name := range []string{backend.Memory, backend.Pebble} {
		for _, comp := range []string{"lz4", "none"} {
			t.Run(name+"/"+comp, func(t *testing.T) {
				ctx := context.Background()
				m, err := backend.NewManager(name, t.TempDir())
				require.NoError(t, err)
				defer m.Close()
				db, err := m.OpenDB("state")
				require.NoError(t, err)

				s := newStore(t, db, comp)
				want := checkpoint()
				require.NoError(t, s.Save(ctx, want))

				got, err := s.Load(ctx)
				require.NoError(t, err)
				assert.Equal(t, want, got)
			})
		}
	}
}

func TestSaveKeepsUntouchedRequests(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, backendDB(t), "lz4")

	full := checkpoint()
	require.NoError(t, s.Save(ctx, full))

	touched := checkpoint()
	settled := touched.Requests[0].Clone()
	settled.Status = redemption.StatusSettled
	touched.Requests = []*redemption.Request{settled}
	touched.NextID = 4
	require.NoError(t, s.Save(ctx, touched))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got.Requests, 2)
	assert.Equal(t, redemption.StatusSettled, got.Requests[0].Status)
	assert.Equal(t, redemption.StatusPendingApproval, got.Requests[1].Status)
	assert.Equal(t, uint64(4), got.NextID)
}

func TestLoadEmpty(t *testing.T) {
	s := newStore(t, backendDB(t), "")
	_, err := s.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoState)
}

func TestLoadRejectsCorruptRecords(t *testing.T) {
	ctx := context.Background()
	db := backendDB(t)
	s := newStore(t, db, "lz4")
	require.NoError(t, s.Save(ctx, checkpoint()))

	require.NoError(t, db.Write(ctx, requestKey(1), []byte{7, 7, 7}))
	_, err := s.Load(ctx)
	assert.Error(t, err)
}

func TestCollaboratorsRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := backendDB(t)

	j := journal.New()
	shares := token.NewLedger("fofUSD", j)
	cash := token.NewLedger("USDC", j)
	require.NoError(t, shares.Mint(alice, u(70_000)))
	require.NoError(t, cash.Mint("vault", u(1_000_000)))

	prices := pool.NewStaticPrices()
	prices.Set("TBILL", u(1))
	p, err := pool.New(pool.Config{
		Vault:   "vault",
		Cash:    cash,
		Prices:  prices,
		Adapter: pool.NewMarketAdapter(cash, prices, "vault", "market", 0),
		Journal: j,
	})
	require.NoError(t, err)
	require.NoError(t, p.RegisterAsset(pool.AssetConfig{Token: "TBILL", Tier: pool.TierMoneyMarket, Active: true, Decimals: 6}))
	require.NoError(t, p.RestoreHoldings(map[string]*uint256.Int{"TBILL": u(250_000)}))
	ratios := map[pool.Tier]uint64{pool.TierCash: 5_000, pool.TierMoneyMarket: 5_000}
	require.NoError(t, p.SetLayerRatios(ratios))
	require.NoError(t, p.SetAssetActive("TBILL", false))

	vouchers := voucher.NewRegistry()
	id, err := vouchers.Mint(ctx, alice, 2, u(59_400), at.Add(30*24*time.Hour))
	require.NoError(t, err)

	s, err := New(Config{
		DB:          db,
		Compression: "lz4",
		Tokens:      []TokenLedger{shares, cash},
		Pool:        p,
		Vouchers:    vouchers,
	})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, checkpoint()))

	// a fresh process
	j2 := journal.New()
	shares2 := token.NewLedger("fofUSD", j2)
	cash2 := token.NewLedger("USDC", j2)
	p2, err := pool.New(pool.Config{
		Vault:   "vault",
		Cash:    cash2,
		Prices:  prices,
		Adapter: pool.NewMarketAdapter(cash2, prices, "vault", "market", 0),
		Journal: j2,
	})
	require.NoError(t, err)
	require.NoError(t, p2.RegisterAsset(pool.AssetConfig{Token: "TBILL", Tier: pool.TierMoneyMarket, Active: true, Decimals: 6}))
	vouchers2 := voucher.NewRegistry()

	s2, err := New(Config{
		DB:       db,
		Tokens:   []TokenLedger{shares2, cash2},
		Pool:     p2,
		Vouchers: vouchers2,
	})
	require.NoError(t, err)
	_, err = s2.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, u(70_000), shares2.BalanceOf(alice))
	assert.Equal(t, u(70_000), shares2.TotalSupply())
	assert.Equal(t, u(1_000_000), cash2.BalanceOf("vault"))
	assert.Equal(t, u(250_000), p2.SnapshotHoldings()["TBILL"])
	assert.Equal(t, ratios, p2.LayerRatios())
	tbill, ok := p2.Asset("TBILL")
	require.True(t, ok)
	assert.False(t, tbill.Active)

	owner, err := vouchers2.OwnerOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, alice, owner)
	next, err := vouchers2.Mint(ctx, bob, 9, u(1), at)
	require.NoError(t, err)
	assert.Equal(t, id+1, next)
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{DB: backendDB(t), Compression: "zstd"})
	assert.Error(t, err)
}

func backendDB(t *testing.T) kv.DB {
	t.Helper()
	m, err := backend.NewManager(backend.Memory, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	db, err := m.OpenDB("state")
	require.NoError(t, err)
	return db
}
