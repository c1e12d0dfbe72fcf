package redemption

import (
	"context"
	"time"

	"github.com/holiman/uint256"

	"github.com/LeJamon/goVaultd/internal/core/amount"
)

// feeBps returns the fee rate of a channel.
func (p Params) feeBps(ch Channel) uint64 {
	if ch == ChannelEmergency {
		return p.BaseFeeBps + p.EmergencyPenaltyFeeBps
	}
	return p.BaseFeeBps
}

// delay returns the minimum settlement delay of a channel.
func (p Params) delay(ch Channel) time.Duration {
	if ch == ChannelEmergency {
		return p.EmergencyDelay
	}
	return p.StandardDelay
}

// fee computes gross * feeBps / 10000 for a channel.
func (p Params) fee(gross *uint256.Int, ch Channel) (*uint256.Int, error) {
	return amount.Bps(gross, p.feeBps(ch))
}

// exceedsThresholds applies the two approval triggers: an absolute amount
// and a share of the channel quota.
func exceedsThresholds(gross, absolute *uint256.Int, ratioBps uint64, quota *uint256.Int) (bool, error) {
	if gross.Gt(absolute) {
		return true, nil
	}
	limit, err := amount.Bps(quota, ratioBps)
	if err != nil {
		return false, err
	}
	return gross.Gt(limit), nil
}

// channelQuota returns the quota the approval rule of ch compares against.
func (e *Engine) channelQuota(ctx context.Context, ch Channel) (*uint256.Int, error) {
	if ch == ChannelEmergency {
		return e.vault.EmergencyQuota(), nil
	}
	return e.vault.StandardChannelQuota(ctx)
}

// requiresApproval evaluates the approval rule of ch against a fresh quota.
func (e *Engine) requiresApproval(ctx context.Context, gross *uint256.Int, ch Channel) (bool, *uint256.Int, error) {
	quota, err := e.channelQuota(ctx, ch)
	if err != nil {
		return false, nil, err
	}
	var need bool
	if ch == ChannelEmergency {
		need, err = exceedsThresholds(gross, e.params.EmergencyApprovalAmount, e.params.EmergencyApprovalQuotaRatioBps, quota)
	} else {
		need, err = exceedsThresholds(gross, e.params.StandardApprovalAmount, e.params.StandardApprovalQuotaRatioBps, quota)
	}
	return need, quota, err
}
