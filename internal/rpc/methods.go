package rpc

import (
	"encoding/json"
	"time"

	"github.com/holiman/uint256"

	"github.com/LeJamon/goVaultd/internal/core/amount"
	"github.com/LeJamon/goVaultd/internal/core/redemption"
	"github.com/LeJamon/goVaultd/internal/types"
)

func (s *Server) registerAllMethods() {
	// Queries
	s.registry.RegisterQuery("vault_info", MethodFunc(s.vaultInfo))
	s.registry.RegisterQuery("preview_redemption", MethodFunc(s.previewRedemption))
	s.registry.RegisterQuery("redemption", MethodFunc(s.redemption))
	s.registry.RegisterQuery("account_redemptions", MethodFunc(s.accountRedemptions))
	s.registry.RegisterQuery("pending_approvals", MethodFunc(s.pendingApprovals))

	// Redemption lifecycle
	s.registry.Register("request_redemption", MethodFunc(s.requestRedemption))
	s.registry.Register("approve_redemption", MethodFunc(s.approveRedemption))
	s.registry.Register("reject_redemption", MethodFunc(s.rejectRedemption))
	s.registry.Register("settle_redemption", MethodFunc(s.settleRedemption))
	s.registry.Register("settle_voucher", MethodFunc(s.settleVoucher))

	// Vault balances
	s.registry.Register("deposit", MethodFunc(s.deposit))
	s.registry.Register("withdraw_fees", MethodFunc(s.withdrawFees))
	s.registry.Register("invest", MethodFunc(s.invest))
	s.registry.Register("lock_mint_assets", MethodFunc(s.lockMintAssets))
	s.registry.Register("unlock_mint_assets", MethodFunc(s.unlockMintAssets))

	// Administration
	s.registry.Register("set_base_fee", MethodFunc(s.setBaseFee))
	s.registry.Register("set_emergency_penalty_fee", MethodFunc(s.setEmergencyPenaltyFee))
	s.registry.Register("set_approval_thresholds", MethodFunc(s.setApprovalThresholds))
	s.registry.Register("set_voucher_threshold", MethodFunc(s.setVoucherThreshold))
	s.registry.Register("set_standard_quota_ratio", MethodFunc(s.setStandardQuotaRatio))
	s.registry.Register("set_emergency_quota", MethodFunc(s.setEmergencyQuota))
	s.registry.Register("set_emergency_mode", MethodFunc(s.setEmergencyMode))
	s.registry.Register("set_layer_ratios", MethodFunc(s.setLayerRatios))
	s.registry.Register("set_asset_active", MethodFunc(s.setAssetActive))
	s.registry.Register("pause", MethodFunc(s.pause))
	s.registry.Register("unpause", MethodFunc(s.unpause))
	s.registry.Register("override_daily_liability", MethodFunc(s.overrideDailyLiability))
	s.registry.Register("override_overdue_liability", MethodFunc(s.overrideOverdueLiability))
}

// callerParams is embedded by every mutating method's params.
type callerParams struct {
	Caller string `json:"caller"`
}

func (p callerParams) caller() (types.Address, *Error) {
	if p.Caller == "" {
		return "", ErrorInvalidParams("caller is required")
	}
	return types.Address(p.Caller), nil
}

func parseParams(params json.RawMessage, v interface{}) *Error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return ErrorInvalidParams("invalid params: " + err.Error())
	}
	return nil
}

// units parses a required decimal amount in asset units.
func (s *Server) units(field, v string) (*uint256.Int, *Error) {
	if v == "" {
		return nil, ErrorInvalidParams(field + " is required")
	}
	x, err := amount.ParseUnits(v, s.decimals)
	if err != nil {
		return nil, ErrorInvalidParams(field + ": " + err.Error())
	}
	return x, nil
}

func (s *Server) format(x *uint256.Int) string {
	return amount.FormatUnits(amount.Or(x), s.decimals)
}

func parseChannel(v string) (redemption.Channel, *Error) {
	if v == "" {
		return redemption.ChannelStandard, nil
	}
	ch, err := redemption.ParseChannel(v)
	if err != nil {
		return ch, ErrorInvalidParams("channel: " + err.Error())
	}
	return ch, nil
}

func (s *Server) requestJSON(r *redemption.Request) map[string]interface{} {
	m := map[string]interface{}{
		"id":                r.ID,
		"owner":             r.Owner.String(),
		"receiver":          r.Receiver.String(),
		"shares":            s.format(r.Shares),
		"gross_amount":      s.format(r.GrossAmount),
		"locked_nav":        amount.FormatUnits(amount.Or(r.LockedNav), amount.PrecisionDecimals),
		"estimated_fee":     s.format(r.EstimatedFee),
		"request_time":      r.RequestTime.UTC().Format(time.RFC3339),
		"status":            r.Status.String(),
		"channel":           r.Channel.String(),
		"requires_approval": r.RequiresApproval,
	}
	if !r.SettlementTime.IsZero() {
		m["settlement_time"] = r.SettlementTime.UTC().Format(time.RFC3339)
	}
	if r.HasVoucher {
		m["voucher_id"] = r.VoucherID
	}
	if r.RejectReason != "" {
		m["reject_reason"] = r.RejectReason
	}
	return m
}

func (s *Server) settlementJSON(st *redemption.Settlement) map[string]interface{} {
	return map[string]interface{}{
		"request":    s.requestJSON(st.Request),
		"receiver":   st.Receiver.String(),
		"payout":     s.format(st.Payout),
		"fee":        s.format(st.Fee),
		"liquidated": s.format(st.Liquidated),
	}
}
