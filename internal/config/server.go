package config

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// ServerConfig represents the [server] section
type ServerConfig struct {
	Bind            string        `toml:"bind" mapstructure:"bind"`
	Port            int           `toml:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `toml:"read_timeout" mapstructure:"read_timeout"`
	RequestTimeout  time.Duration `toml:"request_timeout" mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s *ServerConfig) Addr() string {
	return net.JoinHostPort(s.Bind, strconv.Itoa(s.Port))
}

// Validate checks the [server] section
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}
	if s.Bind != "" && net.ParseIP(s.Bind) == nil && s.Bind != "localhost" {
		return fmt.Errorf("invalid bind address: %s", s.Bind)
	}
	if s.ReadTimeout < 0 || s.RequestTimeout < 0 || s.ShutdownTimeout < 0 {
		return fmt.Errorf("timeouts must be >= 0")
	}
	return nil
}
