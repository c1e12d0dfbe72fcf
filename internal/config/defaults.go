package config

import "github.com/spf13/viper"

// setDefaults sets every key so environment overrides resolve for all of
// them
func setDefaults(v *viper.Viper) {
	// Vault defaults
	v.SetDefault("vault.address", "vault")
	v.SetDefault("vault.operator", "engine")
	v.SetDefault("vault.asset_symbol", "USDC")
	v.SetDefault("vault.share_symbol", "fofUSD")
	v.SetDefault("vault.asset_decimals", 6)
	v.SetDefault("vault.standard_quota_ratio_bps", 7000)
	v.SetDefault("vault.emergency_quota", "0")
	v.SetDefault("vault.emergency_mode", false)

	// Redemption defaults
	v.SetDefault("redemption.base_fee_bps", 100)
	v.SetDefault("redemption.emergency_penalty_fee_bps", 100)
	v.SetDefault("redemption.max_fee_bps", 1000)
	v.SetDefault("redemption.standard_delay", "168h")
	v.SetDefault("redemption.emergency_delay", "24h")
	v.SetDefault("redemption.voucher_threshold", "168h")
	v.SetDefault("redemption.standard_approval_amount", "50000")
	v.SetDefault("redemption.standard_approval_quota_ratio_bps", 2000)
	v.SetDefault("redemption.emergency_approval_amount", "30000")
	v.SetDefault("redemption.emergency_approval_quota_ratio_bps", 2000)
	v.SetDefault("redemption.vouchers_enabled", true)

	// Pool defaults
	v.SetDefault("pool.valuation_ttl", "5m")
	v.SetDefault("pool.layer_ratios", map[string]interface{}{
		"cash":         3000,
		"money_market": 4000,
		"high_yield":   3000,
	})
	v.SetDefault("pool.market", "market")
	v.SetDefault("pool.spread_bps", 0)
	v.SetDefault("pool.assets", []map[string]interface{}{})

	// Storage defaults
	v.SetDefault("storage.backend", "pebble")
	v.SetDefault("storage.path", "/var/lib/vaultd/state")
	v.SetDefault("storage.compression", "lz4")

	// Audit defaults
	v.SetDefault("audit.driver", "none")
	v.SetDefault("audit.dsn", "")

	// Server defaults
	v.SetDefault("server.bind", "127.0.0.1")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "15s")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Roles defaults
	v.SetDefault("roles.admins", []string{})
	v.SetDefault("roles.approvers", []string{})
	v.SetDefault("roles.fee_collectors", []string{})
	v.SetDefault("roles.liability_recovery", []string{})
	v.SetDefault("roles.asset_managers", []string{})
}
