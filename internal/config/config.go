package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// DaemonConfig configures one canbusd instance: the bus listen endpoint, the
// admin HTTP endpoint, and per-client queue sizing.
type DaemonConfig struct {
	BusName     string   `toml:"bus_name"`
	BusAddr     string   `toml:"bus_addr"`
	AdminAddr   string   `toml:"admin_addr"`
	QueueDepth  int      `toml:"queue_depth"`
	CorsOrigins []string `toml:"cors_origins"`
}

func LoadDaemonConfig(path string) (DaemonConfig, error) {
	var cfg DaemonConfig
	if err := loadToml(path, &cfg); err != nil {
		return DaemonConfig{}, err
	}
	applyDaemonDefaults(&cfg)
	if err := ValidateDaemonConfig(cfg); err != nil {
		return DaemonConfig{}, err
	}
	return cfg, nil
}

// DefaultDaemonConfig returns the configuration used when no file is given.
func DefaultDaemonConfig() DaemonConfig {
	cfg := DaemonConfig{}
	applyDaemonDefaults(&cfg)
	return cfg
}

func applyDaemonDefaults(cfg *DaemonConfig) {
	if cfg.BusName == "" {
		cfg.BusName = "can0"
	}
	if cfg.BusAddr == "" {
		cfg.BusAddr = ":7600"
	}
	if cfg.AdminAddr == "" {
		cfg.AdminAddr = ":7601"
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 16
	}
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateDaemonConfig(cfg DaemonConfig) error {
	if strings.TrimSpace(cfg.BusName) == "" {
		return fmt.Errorf("daemon config missing bus_name")
	}
	if strings.TrimSpace(cfg.BusAddr) == "" {
		return fmt.Errorf("daemon config missing bus_addr")
	}
	if strings.TrimSpace(cfg.AdminAddr) == "" {
		return fmt.Errorf("daemon config missing admin_addr")
	}
	if cfg.BusAddr == cfg.AdminAddr {
		return fmt.Errorf("daemon config bus_addr and admin_addr collide (%s)", cfg.BusAddr)
	}
	if cfg.QueueDepth <= 0 {
		return fmt.Errorf("daemon config queue_depth must be positive")
	}
	return nil
}
