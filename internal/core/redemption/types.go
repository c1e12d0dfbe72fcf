package redemption

import (
	"fmt"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"github.com/LeJamon/goVaultd/internal/core/amount"
	"github.com/LeJamon/goVaultd/internal/core/vaulterr"
	"github.com/LeJamon/goVaultd/internal/types"
)

// Status is the lifecycle state of a redemption request.
type Status uint8

const (
	StatusPending Status = iota
	StatusPendingApproval
	StatusApproved
	StatusSettled
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusPendingApproval:
		return "PENDING_APPROVAL"
	case StatusApproved:
		return "APPROVED"
	case StatusSettled:
		return "SETTLED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusSettled || s == StatusCancelled
}

// Settleable reports whether settlement may be attempted.
func (s Status) Settleable() bool {
	return s == StatusPending || s == StatusApproved
}

// Channel selects the delay, fee and approval rules of a request.
type Channel uint8

const (
	ChannelStandard Channel = iota
	ChannelEmergency
)

func (c Channel) String() string {
	switch c {
	case ChannelStandard:
		return "STANDARD"
	case ChannelEmergency:
		return "EMERGENCY"
	default:
		return fmt.Sprintf("Channel(%d)", uint8(c))
	}
}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelStandard || c == ChannelEmergency
}

// ParseChannel accepts "standard" or "emergency" in any case.
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "standard":
		return ChannelStandard, nil
	case "emergency":
		return ChannelEmergency, nil
	default:
		return 0, fmt.Errorf("%w: %q", vaulterr.ErrInvalidChannel, s)
	}
}

// Request is one redemption attempt. SettlementTime is zero exactly while
// the request is PENDING_APPROVAL; for a CANCELLED request it is the time of
// rejection.
type Request struct {
	ID               uint64
	Owner            types.Address
	Receiver         types.Address
	Shares           *uint256.Int
	GrossAmount      *uint256.Int
	LockedNav        *uint256.Int
	EstimatedFee     *uint256.Int
	RequestTime      time.Time
	SettlementTime   time.Time
	Status           Status
	Channel          Channel
	RequiresApproval bool
	HasVoucher       bool
	VoucherID        uint64
	RejectReason     string
}

// Clone returns a deep copy.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	c.Shares = amount.Or(r.Shares).Clone()
	c.GrossAmount = amount.Or(r.GrossAmount).Clone()
	c.LockedNav = amount.Or(r.LockedNav).Clone()
	c.EstimatedFee = amount.Or(r.EstimatedFee).Clone()
	return &c
}

// Params are the administratively configurable inputs of the engine.
type Params struct {
	BaseFeeBps             uint64
	EmergencyPenaltyFeeBps uint64
	MaxFeeBps              uint64

	StandardDelay    time.Duration
	EmergencyDelay   time.Duration
	VoucherThreshold time.Duration

	StandardApprovalAmount         *uint256.Int
	StandardApprovalQuotaRatioBps  uint64
	EmergencyApprovalAmount        *uint256.Int
	EmergencyApprovalQuotaRatioBps uint64
}

// DefaultParams returns the stock configuration for an asset with the given
// decimals.
func DefaultParams(decimals uint8) Params {
	return Params{
		BaseFeeBps:                     100,
		EmergencyPenaltyFeeBps:         100,
		MaxFeeBps:                      1_000,
		StandardDelay:                  7 * 24 * time.Hour,
		EmergencyDelay:                 24 * time.Hour,
		VoucherThreshold:               7 * 24 * time.Hour,
		StandardApprovalAmount:         amount.Units(50_000, decimals),
		StandardApprovalQuotaRatioBps:  2_000,
		EmergencyApprovalAmount:        amount.Units(30_000, decimals),
		EmergencyApprovalQuotaRatioBps: 2_000,
	}
}

// Validate checks ceilings and ratios.
func (p Params) Validate() error {
	if p.MaxFeeBps > amount.BasisPointsDenominator {
		return vaulterr.ErrInvalidRatio
	}
	if p.BaseFeeBps > p.MaxFeeBps || p.EmergencyPenaltyFeeBps > p.MaxFeeBps ||
		p.BaseFeeBps+p.EmergencyPenaltyFeeBps > amount.BasisPointsDenominator {
		return vaulterr.ErrFeeTooHigh
	}
	if p.StandardApprovalQuotaRatioBps > amount.BasisPointsDenominator ||
		p.EmergencyApprovalQuotaRatioBps > amount.BasisPointsDenominator {
		return vaulterr.ErrInvalidRatio
	}
	if p.StandardDelay < 0 || p.EmergencyDelay < 0 || p.VoucherThreshold < 0 {
		return vaulterr.ErrInvalidSettlementTime
	}
	if p.StandardApprovalAmount == nil || p.EmergencyApprovalAmount == nil {
		return vaulterr.ErrZeroAmount
	}
	return nil
}

// Preview is the outcome a redemption would have if requested now.
type Preview struct {
	Channel          Channel
	Shares           *uint256.Int
	Nav              *uint256.Int
	GrossAmount      *uint256.Int
	Fee              *uint256.Int
	NetAmount        *uint256.Int
	RequiresApproval bool
	ChannelQuota     *uint256.Int
	SettlementDelay  time.Duration
}

// Liquidity is a point-in-time view of the vault's funding position.
type Liquidity struct {
	RawCash                  *uint256.Int
	AvailableCash            *uint256.Int
	TierValues               map[string]*uint256.Int
	TotalAssets              *uint256.Int
	SharePrice               *uint256.Int
	ShareSupply              *uint256.Int
	EffectiveSupply          *uint256.Int
	StandardQuota            *uint256.Int
	EmergencyQuota           *uint256.Int
	SevenDayLiability        *uint256.Int
	OverdueLiability         *uint256.Int
	TotalRedemptionLiability *uint256.Int
	WithdrawableFees         *uint256.Int
	LockedMintAssets         *uint256.Int
	PendingApprovalTotal     *uint256.Int
	PendingApprovals         int
	Paused                   bool
	EmergencyMode            bool
}
