package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DataDir    string `yaml:"data_dir"`

	EscrowSlots int `yaml:"escrow_slots"`
	CarryLimit  int `yaml:"carry_limit"` // total items per player, 0 = unlimited

	RequestTTLSeconds    int `yaml:"request_ttl_seconds"`
	RequestWindowSeconds int `yaml:"request_window_seconds"`
	RequestMax           int `yaml:"request_max"`

	DisconnectGraceSeconds int `yaml:"disconnect_grace_seconds"`
	GroundTTLMinutes       int `yaml:"ground_ttl_minutes"`
	SaveEverySeconds       int `yaml:"save_every_seconds"`

	// Starter items granted to newly joined players. If nil, defaults
	// apply; if non-nil but empty, new players start with nothing.
	StarterItems map[string]int `yaml:"starter_items"`
}

func Load(path string) (Config, error) {
	var cfg Config
	if strings.TrimSpace(path) == "" {
		cfg.applyDefaults()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("server.yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("server.yaml: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.EscrowSlots <= 0 {
		c.EscrowSlots = 8
	}
	if c.RequestTTLSeconds <= 0 {
		c.RequestTTLSeconds = 60
	}
	if c.RequestWindowSeconds <= 0 {
		c.RequestWindowSeconds = 10
	}
	if c.RequestMax <= 0 {
		c.RequestMax = 3
	}
	if c.DisconnectGraceSeconds <= 0 {
		c.DisconnectGraceSeconds = 10
	}
	if c.GroundTTLMinutes <= 0 {
		c.GroundTTLMinutes = 20
	}
	if c.SaveEverySeconds <= 0 {
		c.SaveEverySeconds = 30
	}
	if c.StarterItems == nil {
		c.StarterItems = map[string]int{
			"PLANK":   20,
			"COAL":    10,
			"STONE":   20,
			"BERRIES": 10,
		}
	}
}

func (c Config) Validate() error {
	if c.EscrowSlots > 64 {
		return fmt.Errorf("escrow_slots must be <= 64")
	}
	if c.CarryLimit < 0 {
		return fmt.Errorf("carry_limit must be >= 0")
	}
	for item, n := range c.StarterItems {
		if strings.TrimSpace(item) == "" {
			return fmt.Errorf("starter_items has empty item name")
		}
		if n < 0 {
			return fmt.Errorf("starter_items[%s] must be >= 0", item)
		}
	}
	return nil
}
