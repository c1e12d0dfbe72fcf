package config

import (
	"path/filepath"
)

// Config represents the complete vaultd configuration
type Config struct {
	Vault      VaultConfig      `toml:"vault" mapstructure:"vault"`
	Redemption RedemptionConfig `toml:"redemption" mapstructure:"redemption"`
	Pool       PoolConfig       `toml:"pool" mapstructure:"pool"`
	Storage    StorageConfig    `toml:"storage" mapstructure:"storage"`
	Audit      AuditConfig      `toml:"audit" mapstructure:"audit"`
	Server     ServerConfig     `toml:"server" mapstructure:"server"`
	Log        LogConfig        `toml:"log" mapstructure:"log"`
	Roles      RolesConfig      `toml:"roles" mapstructure:"roles"`

	// Internal fields for configuration management
	configPath string `toml:"-" mapstructure:"-"`
}

// ConfigPaths holds the paths to configuration files
type ConfigPaths struct {
	Main string // Path to main config file (vaultd.toml)
}

// DefaultConfigPaths returns the default configuration file paths
func DefaultConfigPaths() ConfigPaths {
	return ConfigPaths{Main: "vaultd.toml"}
}

// ConfigPathsFromDir returns configuration paths for a specific directory
func ConfigPathsFromDir(configDir string) ConfigPaths {
	return ConfigPaths{Main: filepath.Join(configDir, "vaultd.toml")}
}

// GetConfigPath returns the path to the main configuration file
func (c *Config) GetConfigPath() string {
	return c.configPath
}
