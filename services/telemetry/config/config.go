package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// ScadaConfig maps the [Scada] section of the config.toml file
type ScadaConfig struct {
	Endpoint                       string `toml:"Endpoint"`
	TimeoutSeconds                 uint32 `toml:"TimeoutSeconds"`
	CircuitBreakerFailureThreshold uint32 `toml:"CircuitBreakerFailureThreshold"`
	CircuitBreakerCooldownSeconds  uint32 `toml:"CircuitBreakerCooldownSeconds"`
	MaxPublishRetries              uint32 `toml:"MaxPublishRetries"`
}

// Config maps to the config.toml file for the telemetry service
type Config struct {
	ListenAddress                     string      `toml:"ListenAddress"`
	RetentionSeconds                  int         `toml:"RetentionSeconds"`
	ClockSkewSeconds                  int64       `toml:"ClockSkewSeconds"`
	AggregationIntervalSeconds        uint32      `toml:"AggregationIntervalSeconds"`
	LookbackWindowSeconds             int64       `toml:"LookbackWindowSeconds"`
	HeartbeatStaleThresholdSeconds    int64       `toml:"HeartbeatStaleThresholdSeconds"`
	HeartbeatCriticalThresholdSeconds int64       `toml:"HeartbeatCriticalThresholdSeconds"`
	TemperatureCriticalThreshold      float64     `toml:"TemperatureCriticalThreshold"`
	RenotifyIntervalSeconds           int64       `toml:"RenotifyIntervalSeconds"`
	LeaseTTLSeconds                   int64       `toml:"LeaseTTLSeconds"`
	LeaseRenewSeconds                 int64       `toml:"LeaseRenewSeconds"`
	Scada                             ScadaConfig `toml:"Scada"`
}

// LoadConfig parses a TOML file into the Config struct
func LoadConfig(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", filepath, err)
	}

	var cfg Config
	err = toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return &cfg, nil
}
