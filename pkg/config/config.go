// Package config defines the server's typed configuration: file loading,
// defaults, validation, and the partial-merge patch shapes used for runtime
// security reconfiguration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default values applied when the config file or a field is absent.
const (
	DefaultHTTPAddr            = ":8900"
	DefaultHeartbeatIntervalMs = 15000
	DefaultMaxInstances        = 5
	DefaultRateLimitRequests   = 60
	DefaultRateLimitWindowMs   = 60000
	DefaultIdleTimeoutMs       = 300000
	DefaultEngine              = "chromium"
	DefaultPoolSweepSchedule   = "@every 60s"
	DefaultRateSweepSchedule   = "@every 30s"
)

// Config is the full server configuration tree.
type Config struct {
	Server      ServerConfig      `yaml:"server" json:"server"`
	Security    SecurityConfig    `yaml:"security" json:"security"`
	Pool        PoolConfig        `yaml:"pool" json:"pool"`
	Maintenance MaintenanceConfig `yaml:"maintenance" json:"maintenance"`
}

// ServerConfig holds transport-level settings.
type ServerConfig struct {
	// HTTPAddr is the listen address for the HTTP transport.
	HTTPAddr string `yaml:"httpAddr" json:"httpAddr"`

	// AuthToken, when set, requires a matching bearer token on every HTTP
	// request. Empty disables transport auth.
	AuthToken string `yaml:"authToken" json:"-"`

	// DefaultTeamID is the tenant attributed to stdio callers, which have
	// no per-request tenant header.
	DefaultTeamID string `yaml:"defaultTeamId" json:"defaultTeamId"`

	// HeartbeatIntervalMs is the idle keepalive period for streaming
	// channels.
	HeartbeatIntervalMs int `yaml:"heartbeatIntervalMs" json:"heartbeatIntervalMs"`
}

// SecurityConfig is the admission-control surface: readable and mergeably
// writable at runtime.
type SecurityConfig struct {
	AllowedDomains []string     `yaml:"allowedDomains" json:"allowedDomains"`
	RateLimiting   RateLimiting `yaml:"rateLimiting" json:"rateLimiting"`
	MaxInstances   int          `yaml:"maxInstances" json:"maxInstances"`
	TeamIsolation  bool         `yaml:"teamIsolation" json:"teamIsolation"`
}

// RateLimiting configures the per-team fixed window.
type RateLimiting struct {
	Requests int `yaml:"requests" json:"requests"`
	WindowMs int `yaml:"windowMs" json:"windowMs"`
}

// PoolConfig holds browser-pool settings.
type PoolConfig struct {
	// IdleTimeoutMs is how long an instance may sit idle before the sweep
	// destroys it.
	IdleTimeoutMs int `yaml:"idleTimeoutMs" json:"idleTimeoutMs"`

	// DefaultEngine is used when a launch call names no engine type.
	DefaultEngine string `yaml:"defaultEngine" json:"defaultEngine"`

	// Headless is the default launch mode.
	Headless bool `yaml:"headless" json:"headless"`

	// InstallBrowsers runs the engine's browser download on startup.
	InstallBrowsers bool `yaml:"installBrowsers" json:"installBrowsers"`
}

// MaintenanceConfig holds janitor schedules in cron syntax.
type MaintenanceConfig struct {
	PoolSweepSchedule      string `yaml:"poolSweepSchedule" json:"poolSweepSchedule"`
	RateLimitSweepSchedule string `yaml:"rateLimitSweepSchedule" json:"rateLimitSweepSchedule"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:            DefaultHTTPAddr,
			HeartbeatIntervalMs: DefaultHeartbeatIntervalMs,
		},
		Security: SecurityConfig{
			AllowedDomains: []string{"*"},
			RateLimiting: RateLimiting{
				Requests: DefaultRateLimitRequests,
				WindowMs: DefaultRateLimitWindowMs,
			},
			MaxInstances:  DefaultMaxInstances,
			TeamIsolation: false,
		},
		Pool: PoolConfig{
			IdleTimeoutMs:   DefaultIdleTimeoutMs,
			DefaultEngine:   DefaultEngine,
			Headless:        true,
			InstallBrowsers: true,
		},
		Maintenance: MaintenanceConfig{
			PoolSweepSchedule:      DefaultPoolSweepSchedule,
			RateLimitSweepSchedule: DefaultRateSweepSchedule,
		},
	}
}

// Load reads the YAML config at path over the defaults. A missing file is
// not an error; the defaults are returned unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Security.MaxInstances < 1 {
		return fmt.Errorf("security.maxInstances must be at least 1, got %d", c.Security.MaxInstances)
	}
	if c.Security.RateLimiting.Requests < 1 {
		return fmt.Errorf("security.rateLimiting.requests must be at least 1, got %d", c.Security.RateLimiting.Requests)
	}
	if c.Security.RateLimiting.WindowMs < 1 {
		return fmt.Errorf("security.rateLimiting.windowMs must be at least 1, got %d", c.Security.RateLimiting.WindowMs)
	}
	if c.Pool.IdleTimeoutMs < 1 {
		return fmt.Errorf("pool.idleTimeoutMs must be at least 1, got %d", c.Pool.IdleTimeoutMs)
	}
	if c.Server.HeartbeatIntervalMs < 1 {
		return fmt.Errorf("server.heartbeatIntervalMs must be at least 1, got %d", c.Server.HeartbeatIntervalMs)
	}
	return nil
}

// SecurityPatch is a partial security config; nil fields are left as-is
// when merged. This is the shape accepted by security_update_config.
type SecurityPatch struct {
	AllowedDomains *[]string          `json:"allowedDomains,omitempty" yaml:"allowedDomains,omitempty"`
	RateLimiting   *RateLimitingPatch `json:"rateLimiting,omitempty" yaml:"rateLimiting,omitempty"`
	MaxInstances   *int               `json:"maxInstances,omitempty" yaml:"maxInstances,omitempty"`
	TeamIsolation  *bool              `json:"teamIsolation,omitempty" yaml:"teamIsolation,omitempty"`
}

// RateLimitingPatch is the partial form of RateLimiting.
type RateLimitingPatch struct {
	Requests *int `json:"requests,omitempty" yaml:"requests,omitempty"`
	WindowMs *int `json:"windowMs,omitempty" yaml:"windowMs,omitempty"`
}

// Merge returns a copy of c with the patch's non-nil fields applied.
func (c SecurityConfig) Merge(p SecurityPatch) SecurityConfig {
	out := c.Clone()

	if p.AllowedDomains != nil {
		out.AllowedDomains = append([]string(nil), (*p.AllowedDomains)...)
	}
	if p.RateLimiting != nil {
		if p.RateLimiting.Requests != nil {
			out.RateLimiting.Requests = *p.RateLimiting.Requests
		}
		if p.RateLimiting.WindowMs != nil {
			out.RateLimiting.WindowMs = *p.RateLimiting.WindowMs
		}
	}
	if p.MaxInstances != nil {
		out.MaxInstances = *p.MaxInstances
	}
	if p.TeamIsolation != nil {
		out.TeamIsolation = *p.TeamIsolation
	}
	return out
}

// Clone returns a deep copy, so snapshots cannot alias live state.
func (c SecurityConfig) Clone() SecurityConfig {
	out := c
	out.AllowedDomains = append([]string(nil), c.AllowedDomains...)
	return out
}
