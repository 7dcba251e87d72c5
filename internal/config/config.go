package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultAdminDestination is the fallback chat for the seeded
// forward-important-messages rule when config does not set one.
const DefaultAdminDestination = "admin_contact_id"

// Config represents the global ~/.wabridge/config.toml.
type Config struct {
	DefaultSession   string `toml:"default_session"`
	AdminDestination string `toml:"admin_destination"`
	RulesFile        string `toml:"rules_file"`
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Admin returns the configured admin forward destination or the default.
func (c *Config) Admin() string {
	if c == nil || c.AdminDestination == "" {
		return DefaultAdminDestination
	}
	return c.AdminDestination
}
