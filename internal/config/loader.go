package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// VAULTD_REDEMPTION_BASE_FEE_BPS.
const EnvPrefix = "VAULTD"

// LoadConfig loads configuration from multiple sources in priority order:
// 1. Default values
// 2. Configuration file (vaultd.toml), skipped when paths.Main is empty
// 3. Environment variables (VAULTD_ prefix)
func LoadConfig(paths ConfigPaths) (*Config, error) {
	v := viper.New()

	// 1. Set defaults first
	setDefaults(v)

	// 2. Load main configuration file
	if paths.Main != "" {
		if err := loadMainConfig(v, paths.Main); err != nil {
			return nil, fmt.Errorf("failed to load main config: %w", err)
		}
	}

	// 3. Set up environment variable support
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Unmarshal into struct
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.configPath = paths.Main

	// 5. Validate the complete configuration
	if err := ValidateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// loadMainConfig loads the main configuration file
func loadMainConfig(v *viper.Viper, configPath string) error {
	v.SetConfigFile(configPath)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file does not exist: %s", configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	return nil
}

// LoadConfigFromDir loads vaultd.toml from configDir
func LoadConfigFromDir(configDir string) (*Config, error) {
	return LoadConfig(ConfigPathsFromDir(configDir))
}

// LoadDefaultConfig loads configuration from default locations
func LoadDefaultConfig() (*Config, error) {
	return LoadConfig(DefaultConfigPaths())
}

// ReloadConfig reloads configuration from the same paths
func ReloadConfig(existingConfig *Config) (*Config, error) {
	return LoadConfig(ConfigPaths{Main: existingConfig.GetConfigPath()})
}

// SaveExampleConfig saves an example configuration file
func SaveExampleConfig(configPath string) error {
	v := viper.New()
	for key, value := range generateExampleConfig() {
		v.Set(key, value)
	}

	v.SetConfigFile(configPath)
	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("failed to write example config: %w", err)
	}
	return nil
}

// generateExampleConfig generates example configuration values
func generateExampleConfig() map[string]interface{} {
	return map[string]interface{}{
		"vault.address":                  "vault",
		"vault.operator":                 "engine",
		"vault.asset_decimals":           6,
		"vault.standard_quota_ratio_bps": 7000,
		"vault.emergency_quota":          "500000",

		"redemption.base_fee_bps":      100,
		"redemption.standard_delay":    "168h",
		"redemption.vouchers_enabled":  true,
		"redemption.voucher_threshold": "168h",

		"pool.valuation_ttl": "5m",
		"pool.layer_ratios": map[string]interface{}{
			"cash": 3000, "money_market": 4000, "high_yield": 3000,
		},
		"pool.assets": []map[string]interface{}{
			{"token": "USYC", "tier": "cash", "decimals": 6, "max_slippage_bps": 10, "active": true},
			{"token": "TBILL", "tier": "money_market", "decimals": 6, "max_slippage_bps": 30, "active": true},
			{"token": "HYBOND", "tier": "high_yield", "decimals": 18, "max_slippage_bps": 100, "active": true},
		},

		"storage.backend":     "pebble",
		"storage.path":        "/var/lib/vaultd/state",
		"storage.compression": "lz4",

		"audit.driver": "sqlite",
		"audit.dsn":    "/var/lib/vaultd/audit.db",

		"server.bind": "127.0.0.1",
		"server.port": 8090,

		"roles.admins":    []string{"admin"},
		"roles.approvers": []string{"approver"},
	}
}
