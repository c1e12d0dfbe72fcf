package config

import (
	"fmt"
)

// ValidateConfig performs comprehensive validation on the complete configuration
func ValidateConfig(config *Config) error {
	if err := config.Vault.Validate(); err != nil {
		return fmt.Errorf("vault validation failed: %w", err)
	}

	if _, err := config.Redemption.EngineParams(config.Vault.AssetDecimals); err != nil {
		return fmt.Errorf("redemption validation failed: %w", err)
	}

	if err := config.Pool.Validate(config.Vault.AssetDecimals); err != nil {
		return fmt.Errorf("pool validation failed: %w", err)
	}

	if err := config.Storage.Validate(); err != nil {
		return fmt.Errorf("storage validation failed: %w", err)
	}

	if err := config.Audit.Validate(); err != nil {
		return fmt.Errorf("audit validation failed: %w", err)
	}

	if err := config.Server.Validate(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}

	if err := config.Log.Validate(); err != nil {
		return fmt.Errorf("log validation failed: %w", err)
	}

	if err := config.Roles.Validate(); err != nil {
		return fmt.Errorf("roles validation failed: %w", err)
	}

	if err := validateCrossReferences(config); err != nil {
		return fmt.Errorf("cross-validation failed: %w", err)
	}

	return nil
}

// validateCrossReferences checks settings that span sections
func validateCrossReferences(config *Config) error {
	reserved := map[string]string{
		config.Vault.Address:  "vault.address",
		config.Vault.Operator: "vault.operator",
	}
	if config.Pool.Market != "" {
		if field, ok := reserved[config.Pool.Market]; ok {
			return fmt.Errorf("pool.market collides with %s", field)
		}
	}
	for _, a := range config.Roles.Admins {
		if a == config.Vault.Address {
			return fmt.Errorf("the vault address cannot hold the admin role")
		}
	}
	return nil
}
