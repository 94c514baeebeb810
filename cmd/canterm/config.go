package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/canterm/internal/canwire"
)

// clientConfigFile persists canterm settings between sessions.
type clientConfigFile struct {
	BusAddr                 string    `toml:"bus_addr"`
	FrameID                 uint32    `toml:"frame_id"`
	QueueDepth              int       `toml:"queue_depth"`
	ClearScreenAfterCommand bool      `toml:"clear_screen_after_command"`
	SSH                     sshConfig `toml:"ssh"`
}

// sshConfig optionally tunnels the bus attachment through a jump host.
type sshConfig struct {
	Enabled                     bool   `toml:"enabled"`
	Host                        string `toml:"host"`
	Port                        string `toml:"port"`
	User                        string `toml:"user"`
	KeyPath                     string `toml:"key_path"`
	KnownHostsPath              string `toml:"known_hosts_path"`
	InsecureSkipHostKeyChecking bool   `toml:"insecure_skip_host_key_checking"`
}

func defaultClientConfig() clientConfigFile {
	return clientConfigFile{
		BusAddr:    "127.0.0.1:7600",
		FrameID:    120,
		QueueDepth: 16,
	}
}

func loadClientConfig(path string) (clientConfigFile, error) {
	cfg := defaultClientConfig()
	if err := ensureFile(path); err != nil {
		return clientConfigFile{}, err
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return clientConfigFile{}, fmt.Errorf("load canterm config: %w", err)
	}
	if err := validateClientConfig(cfg); err != nil {
		return clientConfigFile{}, err
	}
	return cfg, nil
}

func saveClientConfig(path string, cfg clientConfigFile) error {
	var buf strings.Builder
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(buf.String()), 0o644)
}

func validateClientConfig(cfg clientConfigFile) error {
	if strings.TrimSpace(cfg.BusAddr) == "" {
		return fmt.Errorf("canterm config missing bus_addr")
	}
	if cfg.FrameID > canwire.MaxExtendedID {
		return fmt.Errorf("canterm config frame_id out of range: 0x%X", cfg.FrameID)
	}
	if cfg.QueueDepth < 0 {
		return fmt.Errorf("canterm config queue_depth must not be negative")
	}
	if cfg.SSH.Enabled {
		if strings.TrimSpace(cfg.SSH.Host) == "" {
			return fmt.Errorf("canterm config ssh.host required when ssh.enabled")
		}
		if strings.TrimSpace(cfg.SSH.User) == "" {
			return fmt.Errorf("canterm config ssh.user required when ssh.enabled")
		}
		if strings.TrimSpace(cfg.SSH.KeyPath) == "" {
			return fmt.Errorf("canterm config ssh.key_path required when ssh.enabled")
		}
	}
	return nil
}

func ensureFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte{}, 0o644)
}
