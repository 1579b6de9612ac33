package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config carries the deployment-time settings for a marketd node. The
// administrative authority is injected here rather than hardcoded; rotation
// and multi-sig are out of scope for the current design.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	NetworkName   string `toml:"NetworkName"`
	AdminAddress  string `toml:"AdminAddress"`
	MaxTxAttempts int    `toml:"MaxTxAttempts"`
	RPCTokenEnv   string `toml:"RPCTokenEnv"`
}

const (
	defaultListenAddress = ":8645"
	defaultDataDir       = "./marketd-data"
	defaultNetworkName   = "market-local"
	defaultMaxTxAttempts = 3
	defaultRPCTokenEnv   = "MARKET_RPC_TOKEN"
)

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = defaultListenAddress
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = defaultDataDir
	}
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = defaultNetworkName
	}
	if c.MaxTxAttempts <= 0 {
		c.MaxTxAttempts = defaultMaxTxAttempts
	}
	if strings.TrimSpace(c.RPCTokenEnv) == "" {
		c.RPCTokenEnv = defaultRPCTokenEnv
	}
}

// Validate checks the loaded values. AdminAddress may be empty, which leaves
// the dispute admin transitions disabled until one is configured.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.AdminAddress) != "" {
		if _, err := ParseAddress(c.AdminAddress); err != nil {
			return fmt.Errorf("config: invalid AdminAddress: %w", err)
		}
	}
	return nil
}

// Admin returns the parsed administrative authority address and whether one
// is configured.
func (c *Config) Admin() ([20]byte, bool, error) {
	trimmed := strings.TrimSpace(c.AdminAddress)
	if trimmed == "" {
		return [20]byte{}, false, nil
	}
	addr, err := ParseAddress(trimmed)
	if err != nil {
		return [20]byte{}, false, err
	}
	return addr, true, nil
}

// RPCToken resolves the optional bearer token from the configured
// environment variable.
func (c *Config) RPCToken() string {
	return strings.TrimSpace(os.Getenv(c.RPCTokenEnv))
}

// ParseAddress decodes a 0x-prefixed 20-byte hex address.
func ParseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimSpace(value)
	trimmed = strings.TrimPrefix(trimmed, "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid hex address: %w", err)
	}
	if len(raw) != len(addr) {
		return addr, fmt.Errorf("address must be %d bytes, got %d", len(addr), len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
