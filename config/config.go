// Package config loads the reward daemon configuration.
package config

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ListenAddress   string `toml:"ListenAddress"`
	DataDir         string `toml:"DataDir"`
	Environment     string `toml:"Environment"`
	TreasuryAddress string `toml:"TreasuryAddress"`
	AdminAddress    string `toml:"AdminAddress"`
	// TotalSupply is the fixed ATA supply minted to treasury at genesis,
	// expressed in base units as a decimal string.
	TotalSupply string `toml:"TotalSupply"`
	// SweepFeeUnits is the flat fee quoted to sweep submitters.
	SweepFeeUnits uint64 `toml:"SweepFeeUnits"`
	LogFile       string `toml:"LogFile"`
	LogMaxSizeMB  int    `toml:"LogMaxSizeMB"`
	LogMaxBackups int    `toml:"LogMaxBackups"`
}

// Load reads and validates the configuration at path, applying defaults for
// optional fields.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8680"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./data"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 5
	}
}

// Validate checks the required fields.
func (c *Config) Validate() error {
	if _, err := ParseAddress(c.TreasuryAddress); err != nil {
		return fmt.Errorf("config: TreasuryAddress: %w", err)
	}
	if _, err := ParseAddress(c.AdminAddress); err != nil {
		return fmt.Errorf("config: AdminAddress: %w", err)
	}
	if _, err := c.Supply(); err != nil {
		return err
	}
	return nil
}

// Treasury returns the parsed treasury address.
func (c *Config) Treasury() ([20]byte, error) { return ParseAddress(c.TreasuryAddress) }

// Admin returns the parsed administrator address.
func (c *Config) Admin() ([20]byte, error) { return ParseAddress(c.AdminAddress) }

// Supply returns the genesis supply in base units.
func (c *Config) Supply() (*big.Int, error) {
	trimmed := strings.TrimSpace(c.TotalSupply)
	if trimmed == "" {
		return nil, fmt.Errorf("config: TotalSupply required")
	}
	supply, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || supply.Sign() <= 0 {
		return nil, fmt.Errorf("config: TotalSupply must be a positive decimal, got %q", trimmed)
	}
	return supply, nil
}

// ParseAddress decodes a 0x-prefixed 20-byte hex address.
func ParseAddress(raw string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return addr, fmt.Errorf("address required")
	}
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("decode address: %w", err)
	}
	if len(decoded) != len(addr) {
		return addr, fmt.Errorf("address must be 20 bytes, got %d", len(decoded))
	}
	copy(addr[:], decoded)
	return addr, nil
}
