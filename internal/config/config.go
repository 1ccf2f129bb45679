// Package config compiles the router's YAML configuration document
// (optionally overridden by ROUTERCORE_-prefixed environment
// variables) into the plain Go structs the rest of the module
// consumes. It is a thin adapter: the YAML grammar itself carries no
// behavior, only the structs it produces.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the router's top-level compiled configuration.
type Config struct {
	Router   RouterConfig   `koanf:"router"`
	Listener ListenerConfig `koanf:"listener"`
	Logging  LoggingConfig  `koanf:"logging"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Policy   PolicyConfig   `koanf:"policy"`
}

// RouterConfig carries the router's own identity and mesh settings.
type RouterConfig struct {
	ID               string `koanf:"id"`
	MaskSize         int    `koanf:"mask_size"`
	InterRouterCost  int    `koanf:"inter_router_cost"`
	Q2Upper          int    `koanf:"q2_upper"`
	Q2Lower          int    `koanf:"q2_lower"`
}

// ListenerConfig carries the transport stub's bind address.
type ListenerConfig struct {
	Address        string `koanf:"address"`
	MaxConnections int    `koanf:"max_connections"`
}

// LoggingConfig selects zap's logging level and encoding.
type LoggingConfig struct {
	Level    string `koanf:"level"`
	Encoding string `koanf:"encoding"`
}

// MetricsConfig carries the Prometheus exposition listener address.
type MetricsConfig struct {
	Address string `koanf:"address"`
}

// PolicyConfig points at the compiled policy document consumed by
// internal/policy/ruleengine.
type PolicyConfig struct {
	DocumentPath string `koanf:"document_path"`
}

// Load reads path (if non-empty) as YAML, then overlays
// ROUTERCORE_-prefixed environment variables (double underscore as the
// nesting separator, e.g. ROUTERCORE_ROUTER__ID → router.id), applies
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("ROUTERCORE_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "ROUTERCORE_")
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	cfg := &Config{
		Router: RouterConfig{
			ID:              "router-core.1",
			MaskSize:        64,
			InterRouterCost: 1,
			Q2Upper:         256,
			Q2Lower:         128,
		},
		Listener: ListenerConfig{
			Address:        ":5672",
			MaxConnections: 5000,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "json",
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the compiled configuration for internally consistent
// values. A failure here is a ConfigError: fatal at init.
func (c *Config) Validate() error {
	if c.Router.ID == "" {
		return fmt.Errorf("config: router.id is required")
	}
	if c.Router.MaskSize <= 0 {
		return fmt.Errorf("config: router.mask_size must be > 0 (got %d)", c.Router.MaskSize)
	}
	if c.Router.Q2Lower >= c.Router.Q2Upper {
		return fmt.Errorf("config: router.q2_lower (%d) must be less than router.q2_upper (%d)", c.Router.Q2Lower, c.Router.Q2Upper)
	}
	if c.Listener.Address == "" {
		return fmt.Errorf("config: listener.address is required")
	}
	if c.Listener.MaxConnections < 0 {
		return fmt.Errorf("config: listener.max_connections must be >= 0 (got %d)", c.Listener.MaxConnections)
	}
	return nil
}
