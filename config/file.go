package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile overlays settings from a YAML file onto the provided base.
// Fields absent from the file keep their base values.
func LoadFile(base Settings, path string) (Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config file: %w", err)
	}
	cfg := base
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return base, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Load resolves the effective settings: defaults, then the optional YAML file
// named by CONFIG_FILE, then environment overrides.
func Load() (Settings, error) {
	cfg := FromEnv()
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		return cfg, nil
	}
	loaded, err := LoadFile(Default(), path)
	if err != nil {
		return cfg, err
	}
	// Environment wins over the file for any value it sets.
	return mergeEnvOver(loaded), nil
}

func mergeEnvOver(base Settings) Settings {
	saved := base
	fromEnv := FromEnv()
	def := Default()

	if fromEnv.Environment != def.Environment {
		saved.Environment = fromEnv.Environment
	}
	if fromEnv.Bus != def.Bus {
		saved.Bus = fromEnv.Bus
	}
	if fromEnv.Mongo != def.Mongo {
		saved.Mongo = fromEnv.Mongo
	}
	if fromEnv.HTTP != def.HTTP {
		saved.HTTP = fromEnv.HTTP
	}
	if fromEnv.Heartbeat != def.Heartbeat {
		saved.Heartbeat = fromEnv.Heartbeat
	}
	if fromEnv.Breaker != def.Breaker {
		saved.Breaker = fromEnv.Breaker
	}
	if fromEnv.Publisher != def.Publisher {
		saved.Publisher = fromEnv.Publisher
	}
	if fromEnv.Telemetry != def.Telemetry {
		saved.Telemetry = fromEnv.Telemetry
	}
	if fromEnv.Strategies != def.Strategies {
		saved.Strategies = fromEnv.Strategies
	}
	return saved
}
