package config

import (
	"github.com/girderio/girder/pkg/metrics"
	"github.com/girderio/girder/pkg/tcp"
)

// AppConfig is the top-level application configuration: the networking and
// profiling sections plus the event bus backend.
type AppConfig struct {
	Network   tcp.Config              `yaml:"network" json:"network"`
	Profiling metrics.ProfilingConfig `yaml:"profiling" json:"profiling"`
	Bus       BusConfig               `yaml:"bus" json:"bus"`
}

// BusConfig selects the event publisher backend.
type BusConfig struct {
	// Backend is "memory" or "nats".
	Backend string `yaml:"backend" json:"backend"`
	NATSURL string `yaml:"nats_url" json:"nats_url"`
}

// DefaultAppConfig returns a runnable baseline: transport defaults, profiling
// disabled, in-memory bus.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Network:   *tcp.DefaultConfig(),
		Profiling: metrics.DefaultProfilingConfig(),
		Bus:       BusConfig{Backend: "memory"},
	}
}

// LoadApp reads the application configuration from path, applies GIRDER_*
// environment overrides and validates the result.
func LoadApp(path string) (*AppConfig, error) {
	cfg := DefaultAppConfig()
	if err := LoadWithEnv(path, EnvPrefix, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the sections that can be statically rejected.
func (c *AppConfig) Validate() error {
	if err := c.Network.Validate(); err != nil {
		return err
	}
	return Validate(c,
		OneOfValidator("Bus.Backend", "memory", "nats"),
		RangeValidator("Profiling.SampleRate", 0, 1<<31),
	)
}
