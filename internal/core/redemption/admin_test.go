package redemption

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeJamon/goVaultd/internal/core/liability"
	"github.com/LeJamon/goVaultd/internal/core/pool"
	"github.com/LeJamon/goVaultd/internal/core/vaulterr"
)

func TestAdminSettersAreAudited(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.engine.SetBaseFeeBps(h.ctx, approver, 50), vaulterr.ErrUnauthorized)
	assert.ErrorIs(t, h.engine.SetBaseFeeBps(h.ctx, admin, 1_001), vaulterr.ErrFeeTooHigh)
	assert.ErrorIs(t, h.engine.SetEmergencyPenaltyFeeBps(h.ctx, admin, 5_000), vaulterr.ErrFeeTooHigh)

	require.NoError(t, h.engine.SetBaseFeeBps(h.ctx, admin, 50))
	require.NoError(t, h.engine.SetEmergencyPenaltyFeeBps(h.ctx, admin, 150))
	require.NoError(t, h.engine.SetStandardApprovalThresholds(h.ctx, admin, u(10_000), 1_000))
	require.NoError(t, h.engine.SetEmergencyApprovalThresholds(h.ctx, admin, u(5_000), 500))
	require.NoError(t, h.engine.SetVoucherThreshold(h.ctx, admin, 3*day))
	require.NoError(t, h.engine.SetStandardQuotaRatio(h.ctx, admin, 6_000))
	assert.ErrorIs(t, h.engine.SetStandardQuotaRatio(h.ctx, admin, 10_001), vaulterr.ErrInvalidRatio)
	require.NoError(t, h.engine.SetLayerRatios(h.ctx, admin, map[pool.Tier]uint64{
		pool.TierCash: 5_000, pool.TierMoneyMarket: 3_000, pool.TierHighYield: 2_000,
	}))
	assert.ErrorIs(t, h.engine.SetLayerRatios(h.ctx, admin, map[pool.Tier]uint64{pool.TierCash: 1}), vaulterr.ErrInvalidRatio)

	p := h.engine.Params()
	assert.Equal(t, uint64(50), p.BaseFeeBps)
	assert.Equal(t, uint64(150), p.EmergencyPenaltyFeeBps)
	assert.Equal(t, u(10_000), p.StandardApprovalAmount)
	assert.Equal(t, uint64(1_000), p.StandardApprovalQuotaRatioBps)
	assert.Equal(t, u(5_000), p.EmergencyApprovalAmount)
	assert.Equal(t, 3*day, p.VoucherThreshold)
	assert.Equal(t, uint64(6_000), h.vault.StandardQuotaRatioBps())

	actions := make([]string, 0, len(h.audit.entries))
	for _, e := range h.audit.entries {
		assert.Equal(t, admin, e.Actor)
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{
		"setBaseFeeBps",
		"setEmergencyPenaltyFeeBps",
		"setStandardApprovalThresholds",
		"setEmergencyApprovalThresholds",
		"setVoucherThreshold",
		"setStandardQuotaRatio",
		"setLayerRatios",
	}, actions)
	assert.Equal(t, "100", h.audit.entries[0].Old)
	assert.Equal(t, "50", h.audit.entries[0].New)
}

func TestLayerRatiosAuditRecordsOldAndNew(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.SetLayerRatios(h.ctx, admin, map[pool.Tier]uint64{
		pool.TierCash: 5_000, pool.TierMoneyMarket: 3_000, pool.TierHighYield: 2_000,
	}))
	require.Len(t, h.audit.entries, 1)
	assert.Equal(t, "cash=3000 money_market=4000 high_yield=3000", h.audit.entries[0].Old)
	assert.Equal(t, "cash=5000 money_market=3000 high_yield=2000", h.audit.entries[0].New)
}

func TestSetAssetActive(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.engine.SetAssetActive(h.ctx, admin, "TBILL", false), vaulterr.ErrUnauthorized)
	assert.ErrorIs(t, h.engine.SetAssetActive(h.ctx, manager, "NOPE", false), vaulterr.ErrUnknownAsset)
	require.NoError(t, h.engine.SetAssetActive(h.ctx, manager, "TBILL", false))

	cfg, ok := h.pool.Asset("TBILL")
	require.True(t, ok)
	assert.False(t, cfg.Active)

	require.Len(t, h.audit.entries, 1)
	e := h.audit.entries[0]
	assert.Equal(t, manager, e.Actor)
	assert.Equal(t, "setAssetActive", e.Action)
	assert.Equal(t, "TBILL", e.Target)
	assert.Equal(t, "true", e.Old)
	assert.Equal(t, "false", e.New)
}

func TestVoucherIssuerCanBeRemoved(t *testing.T) {
	h := newHarness(t)
	h.seed(alice, 1_000_000)
	require.NoError(t, h.engine.SetVoucherIssuer(h.ctx, admin, nil))

	r := h.request(alice, 60_000, ChannelStandard)
	approved, err := h.engine.ApproveRedemption(h.ctx, approver, r.ID, genesis.Add(30*day))
	require.NoError(t, err)
	assert.False(t, approved.HasVoucher)

	h.advance(30 * day)
	_, err = h.engine.SettleRedemption(h.ctx, bob, r.ID)
	require.NoError(t, err)
	assert.Equal(t, u(59_400), h.cash.BalanceOf(alice))
}

func TestLiabilityOverrides(t *testing.T) {
	h := newHarness(t)
	today := liability.DayIndex(genesis)

	err := h.engine.OverrideDailyLiability(h.ctx, admin, today+3, u(1))
	assert.ErrorIs(t, err, vaulterr.ErrUnauthorized)

	require.NoError(t, h.engine.OverrideDailyLiability(h.ctx, recovery, today+3, u(2_500)))
	require.NoError(t, h.engine.OverrideOverdueLiability(h.ctx, recovery, u(700)))

	assert.Equal(t, u(2_500), h.ledger.SevenDayLiability())
	assert.Equal(t, u(700), h.ledger.OverdueLiability())

	require.Len(t, h.audit.entries, 2)
	assert.Equal(t, "overrideDailyLiability", h.audit.entries[0].Action)
	assert.Equal(t, "0", h.audit.entries[0].Old)
	assert.Equal(t, "2500000000", h.audit.entries[0].New)
	assert.Equal(t, recovery, h.audit.entries[1].Actor)
}

func TestFailedOperationDoesNotAudit(t *testing.T) {
	h := newHarness(t)
	assert.Error(t, h.engine.SetBaseFeeBps(h.ctx, admin, 9_999))
	assert.Empty(t, h.audit.entries)
}

func TestDepositWithdrawAndMintLocks(t *testing.T) {
	h := newHarness(t)
	h.seed(alice, 1_000_000)
	require.NoError(t, h.cash.Mint(bob, u(1_000)))

	shares, err := h.engine.Deposit(h.ctx, bob, u(1_000), bob)
	require.NoError(t, err)
	assert.Equal(t, u(1_000), shares)

	require.NoError(t, h.engine.LockMintAssets(h.ctx, admin, u(300)))
	assert.ErrorIs(t, h.engine.LockMintAssets(h.ctx, bob, u(1)), vaulterr.ErrUnauthorized)
	assert.Equal(t, u(1_000_700), h.vault.AvailableCash())
	require.NoError(t, h.engine.UnlockMintAssets(h.ctx, admin, u(300)))

	r := h.request(bob, 500, ChannelStandard)
	h.advance(7 * day)
	_, err = h.engine.SettleRedemption(h.ctx, bob, r.ID)
	require.NoError(t, err)
	assert.Equal(t, u(5), h.vault.WithdrawableFees())

	collector := alice
	err = h.engine.WithdrawFees(h.ctx, collector, collector, u(5))
	assert.ErrorIs(t, err, vaulterr.ErrUnauthorized)
}

func TestPersistsTouchedRequests(t *testing.T) {
	h := newHarness(t)
	h.seed(alice, 1_000_000)
	r := h.request(alice, 60_000, ChannelStandard)

	cp := h.store.last()
	require.NotNil(t, cp)
	require.Len(t, cp.Requests, 1)
	assert.Equal(t, r.ID, cp.Requests[0].ID)
	assert.Equal(t, uint64(2), cp.NextID)
	assert.Equal(t, []uint64{r.ID}, cp.Pending)
	assert.Equal(t, []uint64{r.ID}, cp.Owners[alice])
	assert.Equal(t, u(60_000), cp.Vault.PendingByOwner[alice])

	saves := len(h.store.saves)
	_, err := h.engine.ApproveRedemption(h.ctx, approver, 77, time.Time{})
	require.Error(t, err)
	assert.Len(t, h.store.saves, saves)
}

func TestPersistFailureKeepsCommittedState(t *testing.T) {
	h := newHarness(t)
	h.seed(alice, 1_000_000)
	h.store.err = errors.New("disk full")

	r, err := h.engine.RequestRedemption(h.ctx, alice, u(1_000), alice, ChannelStandard)
	require.Error(t, err)
	require.NotNil(t, r)
	got, err := h.engine.GetRequest(r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

func TestFailedSaveIsCarriedByNextSave(t *testing.T) {
	h := newHarness(t)
	h.seed(alice, 1_000_000)
	h.store.err = errors.New("disk full")

	first, err := h.engine.RequestRedemption(h.ctx, alice, u(1_000), alice, ChannelStandard)
	require.Error(t, err)
	require.NotNil(t, first)
	assert.Empty(t, h.store.saves)

	h.store.err = nil
	// A rejected operation must not drop rows still waiting to be saved.
	_, err = h.engine.RequestRedemption(h.ctx, alice, u(10_000_000), alice, ChannelStandard)
	require.Error(t, err)

	second := h.request(alice, 2_000, ChannelStandard)

	saved := make(map[uint64]bool)
	for _, cp := range h.store.saves {
		for _, r := range cp.Requests {
			saved[r.ID] = true
		}
	}
	assert.Equal(t, map[uint64]bool{first.ID: true, second.ID: true}, saved)
	last := h.store.last()
	assert.Equal(t, []uint64{first.ID, second.ID}, last.Owners[alice])
	assert.Equal(t, uint64(3), last.NextID)

	// Once saved, the first request is no longer rewritten.
	third := h.request(alice, 3_000, ChannelStandard)
	last = h.store.last()
	require.Len(t, last.Requests, 1)
	assert.Equal(t, third.ID, last.Requests[0].ID)
}

func TestCheckpointRestore(t *testing.T) {
	h := newHarness(t)
	h.seed(alice, 1_000_000)
	direct := h.request(alice, 10_000, ChannelStandard)
	parked := h.request(alice, 60_000, ChannelStandard)
	voucherReq := h.request(alice, 70_000, ChannelStandard)
	_, err := h.engine.ApproveRedemption(h.ctx, approver, voucherReq.ID, genesis.Add(15*day))
	require.NoError(t, err)
	require.NoError(t, h.engine.Pause(h.ctx, admin))

	cp := h.engine.Checkpoint()
	require.Len(t, cp.Requests, 3)

	g := newHarness(t)
	g.seed(alice, 1_000_000)
	require.NoError(t, g.engine.Restore(cp))

	assert.True(t, g.engine.Paused())
	assert.Equal(t, uint64(3), g.engine.RequestCount())
	assert.Equal(t, []uint64{parked.ID}, g.engine.GetPendingApprovals())
	assert.Equal(t, u(60_000), g.engine.PendingApprovalTotal())
	assert.Equal(t, u(80_000), g.vault.TotalRedemptionLiability())
	assert.Equal(t, u(10_000), g.ledger.DailyLiability(liability.DayIndex(genesis.Add(7*day))))
	assert.Len(t, g.engine.GetUserRequests(alice), 3)

	got, err := g.engine.GetRequest(direct.ID)
	require.NoError(t, err)
	assert.Equal(t, direct.GrossAmount, got.GrossAmount)

	assert.Error(t, g.engine.Restore(cp))
}

func TestMetricsFollowLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := newHarness(t)
	h.engine.metrics = NewMetrics(reg)
	h.seed(alice, 1_000_000)

	direct := h.request(alice, 10_000, ChannelStandard)
	h.request(alice, 60_000, ChannelStandard)

	assert.Equal(t, 1.0, value(t, h.engine.metrics.requests.WithLabelValues("STANDARD", "direct")))
	assert.Equal(t, 1.0, value(t, h.engine.metrics.requests.WithLabelValues("STANDARD", "approval")))
	assert.Equal(t, 10_000e6, value(t, h.engine.metrics.liability))
	assert.Equal(t, 60_000e6, value(t, h.engine.metrics.pendingTotal))

	h.advance(7 * day)
	_, err := h.engine.SettleRedemption(h.ctx, alice, direct.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, value(t, h.engine.metrics.transitions.WithLabelValues("SETTLED")))
	assert.Equal(t, 0.0, value(t, h.engine.metrics.liability))
}

func TestSerializedOrdersConcurrentRequests(t *testing.T) {
	h := newHarness(t)
	h.seed(alice, 1_000_000)
	s := NewSerialized(h.engine)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.RequestRedemption(h.ctx, alice, u(1_000), alice, ChannelStandard)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(20), h.engine.RequestCount())
	assert.Equal(t, u(20_000), h.vault.LockedShares())

	err := s.Do(func(e *Engine) error {
		assert.Len(t, e.GetUserRequests(alice), 20)
		return nil
	})
	require.NoError(t, err)
}

func value(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	var m dto.Metric
	require.NoError(t, (<-ch).Write(&m))
	switch {
	case m.Gauge != nil:
		return m.GetGauge().GetValue()
	case m.Counter != nil:
		return m.GetCounter().GetValue()
	}
	t.Fatalf("unsupported metric type")
	return 0
}
