package config

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/LeJamon/goVaultd/internal/core/amount"
	"github.com/LeJamon/goVaultd/internal/core/redemption"
)

// VaultConfig represents the [vault] section
type VaultConfig struct {
	Address               string `toml:"address" mapstructure:"address"`
	Operator              string `toml:"operator" mapstructure:"operator"`
	AssetSymbol           string `toml:"asset_symbol" mapstructure:"asset_symbol"`
	ShareSymbol           string `toml:"share_symbol" mapstructure:"share_symbol"`
	AssetDecimals         uint8  `toml:"asset_decimals" mapstructure:"asset_decimals"`
	StandardQuotaRatioBps uint64 `toml:"standard_quota_ratio_bps" mapstructure:"standard_quota_ratio_bps"`
	EmergencyQuota        string `toml:"emergency_quota" mapstructure:"emergency_quota"`
	EmergencyMode         bool   `toml:"emergency_mode" mapstructure:"emergency_mode"`
}

// Validate checks the [vault] section
func (v *VaultConfig) Validate() error {
	if v.Address == "" {
		return fmt.Errorf("address is required")
	}
	if v.Operator == "" {
		return fmt.Errorf("operator is required")
	}
	if v.Operator == v.Address {
		return fmt.Errorf("operator must differ from the vault address")
	}
	if v.AssetDecimals > 36 {
		return fmt.Errorf("asset_decimals must be <= 36, got %d", v.AssetDecimals)
	}
	if v.StandardQuotaRatioBps > amount.BasisPointsDenominator {
		return fmt.Errorf("standard_quota_ratio_bps must be <= %d, got %d", amount.BasisPointsDenominator, v.StandardQuotaRatioBps)
	}
	if _, err := v.EmergencyQuotaUnits(); err != nil {
		return err
	}
	return nil
}

// EmergencyQuotaUnits returns emergency_quota in asset base units.
func (v *VaultConfig) EmergencyQuotaUnits() (*uint256.Int, error) {
	return units("emergency_quota", v.EmergencyQuota, v.AssetDecimals)
}

// RedemptionConfig represents the [redemption] section
type RedemptionConfig struct {
	BaseFeeBps                     uint64        `toml:"base_fee_bps" mapstructure:"base_fee_bps"`
	EmergencyPenaltyFeeBps         uint64        `toml:"emergency_penalty_fee_bps" mapstructure:"emergency_penalty_fee_bps"`
	MaxFeeBps                      uint64        `toml:"max_fee_bps" mapstructure:"max_fee_bps"`
	StandardDelay                  time.Duration `toml:"standard_delay" mapstructure:"standard_delay"`
	EmergencyDelay                 time.Duration `toml:"emergency_delay" mapstructure:"emergency_delay"`
	VoucherThreshold               time.Duration `toml:"voucher_threshold" mapstructure:"voucher_threshold"`
	StandardApprovalAmount         string        `toml:"standard_approval_amount" mapstructure:"standard_approval_amount"`
	StandardApprovalQuotaRatioBps  uint64        `toml:"standard_approval_quota_ratio_bps" mapstructure:"standard_approval_quota_ratio_bps"`
	EmergencyApprovalAmount        string        `toml:"emergency_approval_amount" mapstructure:"emergency_approval_amount"`
	EmergencyApprovalQuotaRatioBps uint64        `toml:"emergency_approval_quota_ratio_bps" mapstructure:"emergency_approval_quota_ratio_bps"`
	VouchersEnabled                bool          `toml:"vouchers_enabled" mapstructure:"vouchers_enabled"`
}

// EngineParams scales the configured amounts by decimals and returns
// validated engine parameters.
func (r *RedemptionConfig) EngineParams(decimals uint8) (redemption.Params, error) {
	std, err := units("standard_approval_amount", r.StandardApprovalAmount, decimals)
	if err != nil {
		return redemption.Params{}, err
	}
	emg, err := units("emergency_approval_amount", r.EmergencyApprovalAmount, decimals)
	if err != nil {
		return redemption.Params{}, err
	}
	p := redemption.Params{
		BaseFeeBps:                     r.BaseFeeBps,
		EmergencyPenaltyFeeBps:         r.EmergencyPenaltyFeeBps,
		MaxFeeBps:                      r.MaxFeeBps,
		StandardDelay:                  r.StandardDelay,
		EmergencyDelay:                 r.EmergencyDelay,
		VoucherThreshold:               r.VoucherThreshold,
		StandardApprovalAmount:         std,
		StandardApprovalQuotaRatioBps:  r.StandardApprovalQuotaRatioBps,
		EmergencyApprovalAmount:        emg,
		EmergencyApprovalQuotaRatioBps: r.EmergencyApprovalQuotaRatioBps,
	}
	if err := p.Validate(); err != nil {
		return redemption.Params{}, fmt.Errorf("redemption parameters: %w", err)
	}
	return p, nil
}

func units(field, s string, decimals uint8) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	v, err := amount.ParseUnits(s, decimals)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return v, nil
}
