package config

import (
	"fmt"
	"strings"

	"github.com/LeJamon/goVaultd/internal/storage/audit"
	"github.com/LeJamon/goVaultd/internal/storage/compression"
	"github.com/LeJamon/goVaultd/internal/storage/kv/backend"
)

// StorageConfig represents the [storage] section
type StorageConfig struct {
	Backend     string `toml:"backend" mapstructure:"backend"`
	Path        string `toml:"path" mapstructure:"path"`
	Compression string `toml:"compression" mapstructure:"compression"`
}

// Validate checks the [storage] section
func (s *StorageConfig) Validate() error {
	if !backend.Supported(s.Backend) {
		return fmt.Errorf("backend must be one of %s, got %q", strings.Join(backend.Names, ", "), s.Backend)
	}
	if !strings.EqualFold(s.Backend, backend.Memory) && s.Path == "" {
		return fmt.Errorf("path is required for the %s backend", s.Backend)
	}
	if !compression.IsAvailable(s.Compression) {
		return fmt.Errorf("compression must be one of %s, got %q", strings.Join(compression.Available(), ", "), s.Compression)
	}
	return nil
}

// AuditConfig represents the [audit] section
type AuditConfig struct {
	Driver string `toml:"driver" mapstructure:"driver"`
	DSN    string `toml:"dsn" mapstructure:"dsn"`
}

// Enabled reports whether an audit database is configured.
func (a *AuditConfig) Enabled() bool {
	return a.Driver != "" && a.Driver != audit.DriverNone
}

// Validate checks the [audit] section
func (a *AuditConfig) Validate() error {
	if !a.Enabled() {
		return nil
	}
	return audit.Config{Driver: a.Driver, DSN: a.DSN}.Validate()
}

// LogConfig represents the [log] section
type LogConfig struct {
	Level  string `toml:"level" mapstructure:"level"`
	Format string `toml:"format" mapstructure:"format"`
}

// Validate checks the [log] section
func (l *LogConfig) Validate() error {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid level: %s", l.Level)
	}
	switch l.Format {
	case "json", "console":
	default:
		return fmt.Errorf("format must be json or console, got %q", l.Format)
	}
	return nil
}

// RolesConfig represents the [roles] section: addresses granted each
// capability.
type RolesConfig struct {
	Admins            []string `toml:"admins" mapstructure:"admins"`
	Approvers         []string `toml:"approvers" mapstructure:"approvers"`
	FeeCollectors     []string `toml:"fee_collectors" mapstructure:"fee_collectors"`
	LiabilityRecovery []string `toml:"liability_recovery" mapstructure:"liability_recovery"`
	AssetManagers     []string `toml:"asset_managers" mapstructure:"asset_managers"`
}

// Validate checks the [roles] section
func (r *RolesConfig) Validate() error {
	for name, list := range map[string][]string{
		"admins":             r.Admins,
		"approvers":          r.Approvers,
		"fee_collectors":     r.FeeCollectors,
		"liability_recovery": r.LiabilityRecovery,
		"asset_managers":     r.AssetManagers,
	} {
		for _, addr := range list {
			if strings.TrimSpace(addr) == "" {
				return fmt.Errorf("%s contains an empty address", name)
			}
		}
	}
	return nil
}
