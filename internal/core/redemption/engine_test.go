package redemption

import (
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeJamon/goVaultd/internal/core/liability"
	"github.com/LeJamon/goVaultd/internal/core/pool"
	"github.com/LeJamon/goVaultd/internal/core/vaulterr"
	"github.com/LeJamon/goVaultd/internal/core/voucher"
	"github.com/LeJamon/goVaultd/internal/types"
)

const day = 24 * time.Hour

func TestDirectStandardRequestLocksAndBooks(t *testing.T) {
	h := newHarness(t)
	h.seed(alice, 1_000_000)

	r := h.request(alice, 10_000, ChannelStandard)

	assert.Equal(t, uint64(1), r.ID)
	assert.Equal(t, u(10_000), r.GrossAmount)
	assert.Equal(t, u(100), r.EstimatedFee)
	assert.False(t, r.RequiresApproval)
	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, genesis.Add(7*day), r.SettlementTime)
	assert.Equal(t, u(10_000), h.vault.LockedShares())
	assert.Equal(t, u(10_000), h.vault.TotalRedemptionLiability())
	assert.Equal(t, u(10_000), h.ledger.DailyLiability(liability.DayIndex(r.SettlementTime)))
	assert.Equal(t, u(990_000), h.shares.BalanceOf(alice))
	assert.Equal(t, []EventKind{EventRequestCreated}, h.events.Kinds())
}

func TestLargeRequestParksForApproval(t *testing.T) {
	h := newHarness(t)
	h.seed(alice, 1_000_000)

	r := h.request(alice, 60_000, ChannelStandard)

	assert.True(t, r.RequiresApproval)
	assert.Equal(t, StatusPendingApproval, r.Status)
	assert.True(t, r.SettlementTime.IsZero())
	assert.True(t, h.vault.TotalRedemptionLiability().IsZero())
	assert.True(t, h.vault.LockedShares().IsZero())
	assert.Equal(t, u(60_000), h.vault.PendingApprovalShares(alice))
	assert.Equal(t, u(1_000_000), h.vault.EffectiveSupply())
	assert.Equal(t, []uint64{r.ID}, h.engine.GetPendingApprovals())
	assert.Equal(t, u(60_000), h.engine.PendingApprovalTotal())
}

func TestApprovalWithLongDelayMintsVoucher(t *testing.T) {
	h := newHarness(t)
	h.seed(alice, 1_000_000)
	r := h.request(alice, 60_000, ChannelStandard)

	settleAt := genesis.Add(20 * day)
	approved, err := h.engine.ApproveRedemption(h.ctx, approver, r.ID, settleAt)
	require.NoError(t, err)

	assert.Equal(t, StatusApproved, approved.Status)
	assert.True(t, approved.HasVoucher)
	assert.Equal(t, settleAt, approved.SettlementTime)

	v, ok := h.vouchers.Get(approved.VoucherID)
	require.True(t, ok)
	assert.Equal(t, u(59_400), v.NetAmount)
	assert.Equal(t, alice, v.Owner)
	assert.Equal(t, r.ID, v.RequestID)

	assert.Equal(t, u(60_000), h.ledger.DailyLiability(liability.DayIndex(settleAt)))
	assert.Equal(t, u(60_000), h.vault.TotalRedemptionLiability())
	assert.Equal(t, u(60_000), h.vault.LockedSharesOf(alice))
	assert.True(t, h.vault.PendingApprovalShares(alice).IsZero())
	assert.Empty(t, h.engine.GetPendingApprovals())
	assert.True(t, h.engine.PendingApprovalTotal().IsZero())
	assert.Equal(t, []EventKind{EventRequestCreated, EventVoucherMinted, EventRequestApproved}, h.events.Kinds())
}

func TestSettlementFundsDeficitFromCashTier(t *testing.T) {
	h := newHarness(t)
	h.seed(alice, 1_000_000)
	_, err := h.engine.Invest(h.ctx, manager, "USYC", u(995_000))
	require.NoError(t, err)
	require.Equal(t, u(5_000), h.vault.RawCash())

	r := h.request(alice, 10_000, ChannelStandard)

	_, err = h.engine.SettleRedemption(h.ctx, bob, r.ID)
	assert.ErrorIs(t, err, vaulterr.ErrSettlementTimeNotReached)
	assert.Equal(t, vaulterr.KindTemporalGuard, vaulterr.KindOf(err))

	h.advance(7 * day)
	s, err := h.engine.SettleRedemption(h.ctx, bob, r.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusSettled, s.Request.Status)
	assert.Equal(t, alice, s.Receiver)
	assert.Equal(t, u(9_900), s.Payout)
	assert.Equal(t, u(100), s.Fee)
	assert.Equal(t, u(5_000), s.Liquidated)

	holdings := h.pool.SnapshotHoldings()
	assert.Equal(t, u(990_000), holdings["USYC"])
	assert.Equal(t, u(9_900), h.cash.BalanceOf(alice))
	assert.Equal(t, u(100), h.vault.RawCash())
	assert.Equal(t, u(100), h.vault.WithdrawableFees())
	assert.True(t, h.vault.LockedShares().IsZero())
	assert.True(t, h.vault.TotalRedemptionLiability().IsZero())
	assert.True(t, h.ledger.DailyLiability(liability.DayIndex(r.SettlementTime)).IsZero())
	assert.Equal(t, u(990_000), h.vault.ShareSupply())
}

func TestEmergencyQuotaExceededRejected(t *testing.T) {
	h := newHarness(t)
	h.seed(alice, 1_000_000)
	require.NoError(t, h.engine.SetEmergencyMode(h.ctx, admin, true))
	require.NoError(t, h.engine.SetEmergencyQuota(h.ctx, admin, u(5_000)))

	_, err := h.engine.RequestRedemption(h.ctx, alice, u(10_000), alice, ChannelEmergency)
	assert.ErrorIs(t, err, vaulterr.ErrEmergencyQuotaExceeded)
	assert.Equal(t, vaulterr.KindQuotaExceeded, vaulterr.KindOf(err))
	assert.True(t, vaulterr.Retryable(err))

	assert.Equal(t, u(5_000), h.vault.EmergencyQuota())
	assert.Equal(t, uint64(0), h.engine.RequestCount())
	assert.Empty(t, h.engine.GetUserRequests(alice))
	assert.Equal(t, u(1_000_000), h.shares.BalanceOf(alice))
	assert.Empty(t, h.events.Kinds())
}

func TestSettleTwiceFailsWithoutDoublePayout(t *testing.T) {
	h := newHarness(t)
	h.seed(alice, 1_000_000)
	r := h.request(alice, 10_000, ChannelStandard)
	h.advance(7 * day)

	_, err := h.engine.SettleRedemption(h.ctx, alice, r.ID)
	require.NoError(t, err)
	paid := h.cash.BalanceOf(alice)
	fees := h.vault.AccumulatedFees()

	_, err = h.engine.SettleRedemption(h.ctx, alice, r.ID)
	assert.ErrorIs(t, err, vaulterr.ErrNotSettleable)
	assert.Equal(t, vaulterr.KindStateConflict, vaulterr.KindOf(err))
	assert.Equal(t, paid, h.cash.BalanceOf(alice))
	assert.Equal(t, fees, h.vault.AccumulatedFees())
}

func TestApprovalGatingIsMonotonic(t *testing.T) {
	h := newHarness(t)
	h.seed(alice, 10_000_000)

	flipped := false
	for shares := uint64(49_990); shares <= 50_010; shares++ {
		p, err := h.engine.PreviewRedemption(h.ctx, u(shares), ChannelStandard)
		require.NoError(t, err)
		if flipped {
			assert.True(t, p.RequiresApproval, "shares %d", shares)
			continue
		}
		if p.RequiresApproval {
			flipped = true
			assert.Equal(t, uint64(50_001), shares)
		}
	}
	assert.True(t, flipped)
}

func TestQuotaRatioTriggersApproval(t *testing.T) {
	h := newHarness(t)
	h.seed(alice, 100_000)

	// Quota is 70 000; its 20% is 14 000.
	p, err := h.engine.PreviewRedemption(h.ctx, u(14_000), ChannelStandard)
	require.NoError(t, err)
	assert.False(t, p.RequiresApproval)
	assert.Equal(t, u(70_000), p.ChannelQuota)

	p, err = h.engine.PreviewRedemption(h.ctx, u(14_001), ChannelStandard)
	require.NoError(t, err)
	assert.True(t, p.RequiresApproval)

	// Booked liability inside the seven-day window shrinks the quota.
	h.request(alice, 10_000, ChannelStandard)
	p, err = h.engine.PreviewRedemption(h.ctx, u(12_000), ChannelStandard)
	require.NoError(t, err)
	assert.Equal(t, u(60_000), p.ChannelQuota)
	assert.False(t, p.RequiresApproval)
	p, err = h.engine.PreviewRedemption(h.ctx, u(13_000), ChannelStandard)
	require.NoError(t, err)
	assert.True(t, p.RequiresApproval)
}

func TestInvariantsAcrossLifecycle(t *testing.T) {
	h := newHarness(t)
	h.seed(alice, 600_000)
	h.seed(bob, 400_000)

	check := func() {
		t.Helper()
		supply := h.vault.ShareSupply()
		custody := new(uint256.Int).Add(h.vault.LockedShares(), h.vault.TotalPendingApprovalShares())
		assert.False(t, custody.Gt(supply))
		assert.Equal(t, new(uint256.Int).Sub(supply, h.vault.LockedShares()), h.vault.EffectiveSupply())
		assert.Equal(t, h.ledger.RecomputeOverdue(), h.ledger.OverdueLiability())
	}

	a1 := h.request(alice, 20_000, ChannelStandard)
	check()
	b1 := h.request(bob, 70_000, ChannelStandard)
	check()
	a2 := h.request(alice, 55_000, ChannelStandard)
	check()

	_, err := h.engine.ApproveRedemption(h.ctx, approver, b1.ID, time.Time{})
	require.NoError(t, err)
	check()
	_, err = h.engine.RejectRedemption(h.ctx, approver, a2.ID, "documents missing")
	require.NoError(t, err)
	check()

	h.advance(9 * day)
	check()
	for _, id := range []uint64{a1.ID, b1.ID} {
		s, err := h.engine.SettleRedemption(h.ctx, carol, id)
		require.NoError(t, err)
		assert.True(t, h.ledger.DailyLiability(liability.DayIndex(s.Request.SettlementTime)).IsZero())
		check()
	}
	assert.True(t, h.ledger.OverdueLiability().IsZero())
	assert.True(t, h.vault.TotalRedemptionLiability().IsZero())
	assert.Equal(t, u(600_000-20_000), h.shares.BalanceOf(alice))
}

func TestOverdueLiabilityClearedBySettlement(t *testing.T) {
	h := newHarness(t)
	h.seed(alice, 1_000_000)
	r := h.request(alice, 10_000, ChannelStandard)

	h.advance(8 * day)
	assert.Equal(t, u(10_000), h.ledger.OverdueLiability())
	assert.True(t, h.ledger.SevenDayLiability().IsZero())

	_, err := h.engine.SettleRedemption(h.ctx, alice, r.ID)
	require.NoError(t, err)
	assert.True(t, h.ledger.OverdueLiability().IsZero())
}

func TestReentrantCallIsRejectedAndReverted(t *testing.T) {
	ctrl := gomock.NewController(t)
	issuer := voucher.NewMockIssuer(ctrl)
	h := newHarness(t, withIssuer(issuer))
	h.seed(alice, 1_000_000)
	direct := h.request(alice, 10_000, ChannelStandard)
	parked := h.request(alice, 60_000, ChannelStandard)
	h.advance(7 * day)

	var reentryErr error
	issuer.EXPECT().
		Mint(gomock.Any(), alice, parked.ID, u(59_400), gomock.Any()).
		DoAndReturn(func(_, _, _, _, _ interface{}) (uint64, error) {
			_, reentryErr = h.engine.SettleRedemption(h.ctx, alice, direct.ID)
			return 0, reentryErr
		})

	_, err := h.engine.ApproveRedemption(h.ctx, approver, parked.ID, h.clock.Now().Add(30*day))
	require.Error(t, err)
	assert.ErrorIs(t, reentryErr, vaulterr.ErrReentrantCall)
	assert.Equal(t, vaulterr.KindReentrancy, vaulterr.KindOf(err))

	got, err := h.engine.GetRequest(parked.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingApproval, got.Status)
	assert.True(t, got.SettlementTime.IsZero())
	assert.Equal(t, u(60_000), h.vault.PendingApprovalShares(alice))
	assert.Equal(t, u(10_000), h.vault.TotalRedemptionLiability())
	assert.Equal(t, []uint64{parked.ID}, h.engine.GetPendingApprovals())

	got, err = h.engine.GetRequest(direct.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	// The guard is released after the failed call.
	_, err = h.engine.SettleRedemption(h.ctx, alice, direct.ID)
	require.NoError(t, err)
}

func TestVoucherBurnFailureRevertsSettlement(t *testing.T) {
	ctrl := gomock.NewController(t)
	issuer := voucher.NewMockIssuer(ctrl)
	h := newHarness(t, withIssuer(issuer))
	h.seed(alice, 1_000_000)
	r := h.request(alice, 60_000, ChannelStandard)

	issuer.EXPECT().Mint(gomock.Any(), alice, r.ID, gomock.Any(), gomock.Any()).Return(uint64(42), nil)
	_, err := h.engine.ApproveRedemption(h.ctx, approver, r.ID, genesis.Add(10*day))
	require.NoError(t, err)

	h.advance(10 * day)
	issuer.EXPECT().OwnerOf(gomock.Any(), uint64(42)).Return(bob, nil)
	issuer.EXPECT().Burn(gomock.Any(), uint64(42)).Return(errors.New("issuer offline"))

	_, err = h.engine.SettleRedemption(h.ctx, bob, r.ID)
	require.Error(t, err)

	got, err := h.engine.GetRequest(r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
	assert.True(t, h.cash.BalanceOf(bob).IsZero())
	assert.Equal(t, u(60_000), h.vault.TotalRedemptionLiability())
	assert.Equal(t, u(60_000), h.vault.LockedShares())
	assert.True(t, h.vault.WithdrawableFees().IsZero())
	assert.Equal(t, u(60_000), h.ledger.DailyLiability(liability.DayIndex(genesis.Add(10*day))))
}

func TestVoucherHolderReceivesPayout(t *testing.T) {
	h := newHarness(t)
	h.seed(alice, 1_000_000)
	r := h.request(alice, 60_000, ChannelStandard)
	approved, err := h.engine.ApproveRedemption(h.ctx, approver, r.ID, genesis.Add(20*day))
	require.NoError(t, err)
	require.NoError(t, h.vouchers.Transfer(alice, carol, approved.VoucherID))

	h.advance(20 * day)
	_, err = h.engine.SettleRedemption(h.ctx, alice, r.ID)
	assert.ErrorIs(t, err, vaulterr.ErrNotVoucherHolder)
	assert.Equal(t, vaulterr.KindAuthorization, vaulterr.KindOf(err))

	s, err := h.engine.SettleWithVoucher(h.ctx, carol, approved.VoucherID)
	require.NoError(t, err)
	assert.Equal(t, carol, s.Receiver)
	assert.Equal(t, u(59_400), h.cash.BalanceOf(carol))
	assert.True(t, h.cash.BalanceOf(alice).IsZero())

	_, ok := h.vouchers.Get(approved.VoucherID)
	assert.False(t, ok)
	_, err = h.engine.SettleWithVoucher(h.ctx, carol, approved.VoucherID)
	assert.ErrorIs(t, err, vaulterr.ErrUnknownVoucher)
}

func TestInsufficientLiquidityIsRetryable(t *testing.T) {
	h := newHarness(t)
	h.seed(alice, 1_000_000)
	_, err := h.engine.Invest(h.ctx, manager, "TBILL", u(400_000))
	require.NoError(t, err)
	_, err = h.engine.Invest(h.ctx, manager, "USYC", u(598_000))
	require.NoError(t, err)
	r := h.request(alice, 45_000, ChannelStandard)
	h.advance(7 * day)

	// Pull the tier-1 asset so only the money-market tier could fund it.
	require.NoError(t, h.pool.SetAssetActive("USYC", false))
	_, err = h.engine.SettleRedemption(h.ctx, alice, r.ID)
	assert.ErrorIs(t, err, vaulterr.ErrInsufficientLiquidity)
	assert.Equal(t, vaulterr.KindLiquidityShortfall, vaulterr.KindOf(err))
	assert.True(t, vaulterr.Retryable(err))

	got, err := h.engine.GetRequest(r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, u(400_000), h.pool.SnapshotHoldings()["TBILL"])

	require.NoError(t, h.pool.SetAssetActive("USYC", true))
	s, err := h.engine.SettleRedemption(h.ctx, alice, r.ID)
	require.NoError(t, err)
	assert.Equal(t, u(43_000), s.Liquidated)
	assert.Equal(t, u(400_000), h.pool.SnapshotHoldings()["TBILL"])
}

func TestFeeFloatsUntilSettlement(t *testing.T) {
	h := newHarness(t)
	h.seed(alice, 1_000_000)
	r := h.request(alice, 10_000, ChannelStandard)
	require.Equal(t, u(100), r.EstimatedFee)

	require.NoError(t, h.engine.SetBaseFeeBps(h.ctx, admin, 200))
	h.advance(7 * day)
	s, err := h.engine.SettleRedemption(h.ctx, alice, r.ID)
	require.NoError(t, err)
	assert.Equal(t, u(200), s.Fee)
	assert.Equal(t, u(9_800), s.Payout)
}

func TestEmergencyRequestLifecycle(t *testing.T) {
	h := newHarness(t)
	h.seed(alice, 1_000_000)

	_, err := h.engine.RequestRedemption(h.ctx, alice, u(1_000), alice, ChannelEmergency)
	assert.ErrorIs(t, err, vaulterr.ErrEmergencyModeDisabled)

	require.NoError(t, h.engine.SetEmergencyMode(h.ctx, admin, true))
	require.NoError(t, h.engine.SetEmergencyQuota(h.ctx, admin, u(200_000)))

	direct := h.request(alice, 10_000, ChannelEmergency)
	assert.Equal(t, StatusPending, direct.Status)
	assert.Equal(t, u(200), direct.EstimatedFee)
	assert.Equal(t, genesis.Add(day), direct.SettlementTime)
	assert.Equal(t, u(190_000), h.vault.EmergencyQuota())

	parked := h.request(alice, 40_000, ChannelEmergency)
	assert.Equal(t, StatusPendingApproval, parked.Status)
	assert.Equal(t, u(150_000), h.vault.EmergencyQuota())

	rejected, err := h.engine.RejectRedemption(h.ctx, approver, parked.ID, "over limit")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, rejected.Status)
	assert.Equal(t, "over limit", rejected.RejectReason)
	assert.Equal(t, h.clock.Now(), rejected.SettlementTime)
	assert.True(t, h.ledger.DailyLiability(liability.DayIndex(rejected.SettlementTime)).IsZero())
	assert.Equal(t, u(190_000), h.vault.EmergencyQuota())
	assert.Equal(t, u(990_000), h.shares.BalanceOf(alice))

	_, err = h.engine.RejectRedemption(h.ctx, approver, parked.ID, "again")
	assert.ErrorIs(t, err, vaulterr.ErrNotPendingApproval)

	h.advance(day)
	s, err := h.engine.SettleRedemption(h.ctx, alice, direct.ID)
	require.NoError(t, err)
	assert.Equal(t, u(9_800), s.Payout)
	// Settlement does not give quota back.
	assert.Equal(t, u(190_000), h.vault.EmergencyQuota())
}

func TestApproveValidation(t *testing.T) {
	h := newHarness(t)
	h.seed(alice, 1_000_000)
	direct := h.request(alice, 10_000, ChannelStandard)
	parked := h.request(alice, 60_000, ChannelStandard)

	_, err := h.engine.ApproveRedemption(h.ctx, approver, direct.ID, time.Time{})
	assert.ErrorIs(t, err, vaulterr.ErrNotPendingApproval)

	_, err = h.engine.ApproveRedemption(h.ctx, bob, parked.ID, time.Time{})
	assert.ErrorIs(t, err, vaulterr.ErrUnauthorized)

	_, err = h.engine.ApproveRedemption(h.ctx, approver, parked.ID, genesis.Add(6*day))
	assert.ErrorIs(t, err, vaulterr.ErrInvalidSettlementTime)
	assert.Equal(t, vaulterr.KindTemporalGuard, vaulterr.KindOf(err))

	_, err = h.engine.ApproveRedemption(h.ctx, approver, 99, time.Time{})
	assert.ErrorIs(t, err, vaulterr.ErrUnknownRequest)

	// The default delay equals the voucher threshold, so no voucher.
	approved, err := h.engine.ApproveRedemption(h.ctx, approver, parked.ID, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, genesis.Add(7*day), approved.SettlementTime)
	assert.False(t, approved.HasVoucher)
}

func TestRequestValidation(t *testing.T) {
	h := newHarness(t)
	h.seed(alice, 1_000)

	cases := []struct {
		name     string
		shares   *uint256.Int
		receiver types.Address
		ch       Channel
		want     error
	}{
		{"zero shares", u(0), "alice", ChannelStandard, vaulterr.ErrZeroAmount},
		{"zero receiver", u(1), "", ChannelStandard, vaulterr.ErrZeroAddress},
		{"too many shares", u(1_001), "alice", ChannelStandard, vaulterr.ErrInsufficientShares},
		{"bad channel", u(1), "alice", Channel(7), vaulterr.ErrInvalidChannel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.engine.RequestRedemption(h.ctx, alice, tc.shares, tc.receiver, tc.ch)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, vaulterr.KindValidation, vaulterr.KindOf(err))
		})
	}
	assert.Equal(t, uint64(0), h.engine.RequestCount())
}

func TestPauseBlocksRequestAndSettle(t *testing.T) {
	h := newHarness(t)
	h.seed(alice, 1_000_000)
	direct := h.request(alice, 10_000, ChannelStandard)
	parked := h.request(alice, 60_000, ChannelStandard)

	assert.ErrorIs(t, h.engine.Pause(h.ctx, bob), vaulterr.ErrUnauthorized)
	require.NoError(t, h.engine.Pause(h.ctx, admin))
	assert.True(t, h.engine.Paused())

	_, err := h.engine.RequestRedemption(h.ctx, alice, u(1), alice, ChannelStandard)
	assert.ErrorIs(t, err, vaulterr.ErrPaused)

	h.advance(7 * day)
	_, err = h.engine.SettleRedemption(h.ctx, alice, direct.ID)
	assert.ErrorIs(t, err, vaulterr.ErrPaused)

	_, err = h.engine.ApproveRedemption(h.ctx, approver, parked.ID, time.Time{})
	require.NoError(t, err)

	require.NoError(t, h.engine.Unpause(h.ctx, admin))
	_, err = h.engine.SettleRedemption(h.ctx, alice, direct.ID)
	require.NoError(t, err)
}

func TestUserRequestsAndPendingIndex(t *testing.T) {
	h := newHarness(t)
	h.seed(alice, 1_000_000)
	h.seed(bob, 1_000_000)

	p1 := h.request(alice, 60_000, ChannelStandard)
	p2 := h.request(bob, 70_000, ChannelStandard)
	p3 := h.request(alice, 80_000, ChannelStandard)
	h.request(alice, 1_000, ChannelStandard)

	_, err := h.engine.RejectRedemption(h.ctx, approver, p1.ID, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{p2.ID, p3.ID}, h.engine.GetPendingApprovals())
	assert.Equal(t, u(150_000), h.engine.PendingApprovalTotal())

	reqs := h.engine.GetUserRequests(alice)
	require.Len(t, reqs, 3)
	assert.Equal(t, []uint64{1, 3, 4}, []uint64{reqs[0].ID, reqs[1].ID, reqs[2].ID})
	assert.Equal(t, StatusCancelled, reqs[0].Status)
}

func TestLiquiditySnapshot(t *testing.T) {
	h := newHarness(t)
	h.seed(alice, 1_000_000)
	_, err := h.engine.Invest(h.ctx, manager, "TBILL", u(300_000))
	require.NoError(t, err)
	h.request(alice, 10_000, ChannelStandard)

	snap, err := h.engine.LiquiditySnapshot(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, u(700_000), snap.RawCash)
	assert.Equal(t, u(700_000), snap.TierValues[pool.TierCash.String()])
	assert.Equal(t, u(300_000), snap.TierValues[pool.TierMoneyMarket.String()])
	assert.Equal(t, u(990_000), snap.TotalAssets)
	assert.Equal(t, u(10_000), snap.SevenDayLiability)
	assert.Equal(t, u(690_000), snap.StandardQuota)
	assert.Equal(t, u(990_000), snap.EffectiveSupply)
}
