package statestore

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/LeJamon/goVaultd/internal/core/liability"
	"github.com/LeJamon/goVaultd/internal/core/pool"
	"github.com/LeJamon/goVaultd/internal/core/redemption"
	"github.com/LeJamon/goVaultd/internal/core/vault"
	"github.com/LeJamon/goVaultd/internal/core/voucher"
	"github.com/LeJamon/goVaultd/internal/types"
)

// Amounts are stored as decimal strings and times as unix nanoseconds with
// zero meaning unset.

type metaRecord struct {
	Version      uint32       `codec:"v"`
	NextID       uint64       `codec:"next"`
	PendingTotal string       `codec:"pendingTotal"`
	Paused       bool         `codec:"paused"`
	Params       paramsRecord `codec:"params"`
}

type paramsRecord struct {
	BaseFeeBps                     uint64 `codec:"baseFee"`
	EmergencyPenaltyFeeBps         uint64 `codec:"emergencyFee"`
	MaxFeeBps                      uint64 `codec:"maxFee"`
	StandardDelay                  int64  `codec:"standardDelay"`
	EmergencyDelay                 int64  `codec:"emergencyDelay"`
	VoucherThreshold               int64  `codec:"voucherThreshold"`
	StandardApprovalAmount         string `codec:"standardAmount"`
	StandardApprovalQuotaRatioBps  uint64 `codec:"standardRatio"`
	EmergencyApprovalAmount        string `codec:"emergencyAmount"`
	EmergencyApprovalQuotaRatioBps uint64 `codec:"emergencyRatio"`
}

type requestRecord struct {
	ID               uint64 `codec:"id"`
	Owner            string `codec:"owner"`
	Receiver         string `codec:"receiver"`
	Shares           string `codec:"shares"`
	GrossAmount      string `codec:"gross"`
	LockedNav        string `codec:"nav"`
	EstimatedFee     string `codec:"fee"`
	RequestTime      int64  `codec:"requested"`
	SettlementTime   int64  `codec:"settles"`
	Status           uint8  `codec:"status"`
	Channel          uint8  `codec:"channel"`
	RequiresApproval bool   `codec:"approval"`
	HasVoucher       bool   `codec:"hasVoucher"`
	VoucherID        uint64 `codec:"voucher"`
	RejectReason     string `codec:"reason,omitempty"`
}

type vaultRecord struct {
	LockedShares          string            `codec:"locked"`
	LockedByOwner         map[string]string `codec:"lockedBy"`
	PendingByOwner        map[string]string `codec:"pendingBy"`
	PendingShares         string            `codec:"pending"`
	Liability             string            `codec:"liability"`
	WithdrawableFees      string            `codec:"fees"`
	AccumulatedFees       string            `codec:"accumulated"`
	LockedMintAssets      string            `codec:"mintLocked"`
	EmergencyQuota        string            `codec:"emergencyQuota"`
	EmergencyMode         bool              `codec:"emergencyMode"`
	StandardQuotaRatioBps uint64            `codec:"quotaRatio"`
}

type bucketRecord struct {
	Day    int64  `codec:"day"`
	Amount string `codec:"amount"`
}

type liabilityRecord struct {
	Buckets       []bucketRecord `codec:"buckets"`
	Overdue       string         `codec:"overdue"`
	LastRolledDay int64          `codec:"lastRolled"`
}

type poolSettingsRecord struct {
	LayerRatios map[string]uint64 `codec:"ratios"`
	Active      map[string]bool   `codec:"active"`
}

type voucherRecord struct {
	TokenID        uint64 `codec:"id"`
	RequestID      uint64 `codec:"request"`
	Owner          string `codec:"owner"`
	NetAmount      string `codec:"net"`
	SettlementTime int64  `codec:"settles"`
}

type vouchersRecord struct {
	NextID   uint64          `codec:"next"`
	Vouchers []voucherRecord `codec:"vouchers"`
}

func dec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func parse(field, s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("decode %s %q: %w", field, s, err)
	}
	return v, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func encodeOwners(in map[types.Address]*uint256.Int) map[string]string {
	out := make(map[string]string, len(in))
	for owner, v := range in {
		out[owner.String()] = dec(v)
	}
	return out
}

func decodeOwners(field string, in map[string]string) (map[types.Address]*uint256.Int, error) {
	out := make(map[types.Address]*uint256.Int, len(in))
	for owner, s := range in {
		v, err := parse(field, s)
		if err != nil {
			return nil, err
		}
		out[types.Address(owner)] = v
	}
	return out, nil
}

func toParams(p redemption.Params) paramsRecord {
	return paramsRecord{
		BaseFeeBps:                     p.BaseFeeBps,
		EmergencyPenaltyFeeBps:         p.EmergencyPenaltyFeeBps,
		MaxFeeBps:                      p.MaxFeeBps,
		StandardDelay:                  int64(p.StandardDelay),
		EmergencyDelay:                 int64(p.EmergencyDelay),
		VoucherThreshold:               int64(p.VoucherThreshold),
		StandardApprovalAmount:         dec(p.StandardApprovalAmount),
		StandardApprovalQuotaRatioBps:  p.StandardApprovalQuotaRatioBps,
		EmergencyApprovalAmount:        dec(p.EmergencyApprovalAmount),
		EmergencyApprovalQuotaRatioBps: p.EmergencyApprovalQuotaRatioBps,
	}
}

func (r paramsRecord) params() (redemption.Params, error) {
	std, err := parse("standard approval amount", r.StandardApprovalAmount)
	if err != nil {
		return redemption.Params{}, err
	}
	emg, err := parse("emergency approval amount", r.EmergencyApprovalAmount)
	if err != nil {
		return redemption.Params{}, err
	}
	return redemption.Params{
		BaseFeeBps:                     r.BaseFeeBps,
		EmergencyPenaltyFeeBps:         r.EmergencyPenaltyFeeBps,
		MaxFeeBps:                      r.MaxFeeBps,
		StandardDelay:                  time.Duration(r.StandardDelay),
		EmergencyDelay:                 time.Duration(r.EmergencyDelay),
		VoucherThreshold:               time.Duration(r.VoucherThreshold),
		StandardApprovalAmount:         std,
		StandardApprovalQuotaRatioBps:  r.StandardApprovalQuotaRatioBps,
		EmergencyApprovalAmount:        emg,
		EmergencyApprovalQuotaRatioBps: r.EmergencyApprovalQuotaRatioBps,
	}, nil
}

func toRequest(r *redemption.Request) requestRecord {
	return requestRecord{
		ID:               r.ID,
		Owner:            r.Owner.String(),
		Receiver:         r.Receiver.String(),
		Shares:           dec(r.Shares),
		GrossAmount:      dec(r.GrossAmount),
		LockedNav:        dec(r.LockedNav),
		EstimatedFee:     dec(r.EstimatedFee),
		RequestTime:      unixNano(r.RequestTime),
		SettlementTime:   unixNano(r.SettlementTime),
		Status:           uint8(r.Status),
		Channel:          uint8(r.Channel),
		RequiresApproval: r.RequiresApproval,
		HasVoucher:       r.HasVoucher,
		VoucherID:        r.VoucherID,
		RejectReason:     r.RejectReason,
	}
}

func (r requestRecord) request() (*redemption.Request, error) {
	out := &redemption.Request{
		ID:               r.ID,
		Owner:            types.Address(r.Owner),
		Receiver:         types.Address(r.Receiver),
		RequestTime:      fromUnixNano(r.RequestTime),
		SettlementTime:   fromUnixNano(r.SettlementTime),
		Status:           redemption.Status(r.Status),
		Channel:          redemption.Channel(r.Channel),
		RequiresApproval: r.RequiresApproval,
		HasVoucher:       r.HasVoucher,
		VoucherID:        r.VoucherID,
		RejectReason:     r.RejectReason,
	}
	var err error
	if out.Shares, err = parse("shares", r.Shares); err != nil {
		return nil, err
	}
	if out.GrossAmount, err = parse("gross amount", r.GrossAmount); err != nil {
		return nil, err
	}
	if out.LockedNav, err = parse("nav", r.LockedNav); err != nil {
		return nil, err
	}
	if out.EstimatedFee, err = parse("fee", r.EstimatedFee); err != nil {
		return nil, err
	}
	return out, nil
}

func toVault(s vault.State) vaultRecord {
	return vaultRecord{
		LockedShares:          dec(s.LockedShares),
		LockedByOwner:         encodeOwners(s.LockedByOwner),
		PendingByOwner:        encodeOwners(s.PendingByOwner),
		PendingShares:         dec(s.PendingShares),
		Liability:             dec(s.Liability),
		WithdrawableFees:      dec(s.WithdrawableFees),
		AccumulatedFees:       dec(s.AccumulatedFees),
		LockedMintAssets:      dec(s.LockedMintAssets),
		EmergencyQuota:        dec(s.EmergencyQuota),
		EmergencyMode:         s.EmergencyMode,
		StandardQuotaRatioBps: s.StandardQuotaRatioBps,
	}
}

func (r vaultRecord) state() (vault.State, error) {
	s := vault.State{
		EmergencyMode:         r.EmergencyMode,
		StandardQuotaRatioBps: r.StandardQuotaRatioBps,
	}
	var err error
	if s.LockedByOwner, err = decodeOwners("locked shares", r.LockedByOwner); err != nil {
		return s, err
	}
	if s.PendingByOwner, err = decodeOwners("pending shares", r.PendingByOwner); err != nil {
		return s, err
	}
	scalars := []struct {
		name string
		src  string
		dst  **uint256.Int
	}{
		{"locked shares", r.LockedShares, &s.LockedShares},
		{"pending shares", r.PendingShares, &s.PendingShares},
		{"liability", r.Liability, &s.Liability},
		{"withdrawable fees", r.WithdrawableFees, &s.WithdrawableFees},
		{"accumulated fees", r.AccumulatedFees, &s.AccumulatedFees},
		{"locked mint assets", r.LockedMintAssets, &s.LockedMintAssets},
		{"emergency quota", r.EmergencyQuota, &s.EmergencyQuota},
	}
	for _, f := range scalars {
		if *f.dst, err = parse(f.name, f.src); err != nil {
			return s, err
		}
	}
	return s, nil
}

func toLiability(s liability.State) liabilityRecord {
	r := liabilityRecord{Overdue: dec(s.Overdue), LastRolledDay: s.LastRolledDay}
	for _, b := range s.Buckets {
		r.Buckets = append(r.Buckets, bucketRecord{Day: b.Day, Amount: dec(b.Amount)})
	}
	return r
}

func (r liabilityRecord) state() (liability.State, error) {
	overdue, err := parse("overdue", r.Overdue)
	if err != nil {
		return liability.State{}, err
	}
	s := liability.State{Overdue: overdue, LastRolledDay: r.LastRolledDay}
	for _, b := range r.Buckets {
		v, err := parse("bucket", b.Amount)
		if err != nil {
			return liability.State{}, err
		}
		s.Buckets = append(s.Buckets, liability.Bucket{Day: b.Day, Amount: v})
	}
	return s, nil
}

func toVouchers(vs []voucher.Voucher, next uint64) vouchersRecord {
	r := vouchersRecord{NextID: next}
	for _, v := range vs {
		r.Vouchers = append(r.Vouchers, voucherRecord{
			TokenID:        v.TokenID,
			RequestID:      v.RequestID,
			Owner:          v.Owner.String(),
			NetAmount:      dec(v.NetAmount),
			SettlementTime: unixNano(v.SettlementTime),
		})
	}
	return r
}

func (r vouchersRecord) vouchers() ([]voucher.Voucher, error) {
	out := make([]voucher.Voucher, 0, len(r.Vouchers))
	for _, v := range r.Vouchers {
		net, err := parse("voucher amount", v.NetAmount)
		if err != nil {
			return nil, err
		}
		out = append(out, voucher.Voucher{
			TokenID:        v.TokenID,
			RequestID:      v.RequestID,
			Owner:          types.Address(v.Owner),
			NetAmount:      net,
			SettlementTime: fromUnixNano(v.SettlementTime),
		})
	}
	return out, nil
}

func toPoolSettings(s pool.Settings) poolSettingsRecord {
	out := poolSettingsRecord{
		LayerRatios: make(map[string]uint64, len(s.LayerRatios)),
		Active:      make(map[string]bool, len(s.Active)),
	}
	for tier, bps := range s.LayerRatios {
		out.LayerRatios[tier.String()] = bps
	}
	for token, active := range s.Active {
		out.Active[token] = active
	}
	return out
}

func (r poolSettingsRecord) settings() (pool.Settings, error) {
	out := pool.Settings{
		LayerRatios: make(map[pool.Tier]uint64, len(r.LayerRatios)),
		Active:      make(map[string]bool, len(r.Active)),
	}
	for name, bps := range r.LayerRatios {
		tier, err := pool.ParseTier(name)
		if err != nil {
			return pool.Settings{}, fmt.Errorf("pool settings: %w", err)
		}
		out.LayerRatios[tier] = bps
	}
	for token, active := range r.Active {
		out.Active[token] = active
	}
	return out, nil
}
