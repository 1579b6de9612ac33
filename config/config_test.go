package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":8645" {
		t.Fatalf("expected default listen address, got %s", cfg.ListenAddress)
	}
	if cfg.MaxTxAttempts != 3 {
		t.Fatalf("expected default attempts 3, got %d", cfg.MaxTxAttempts)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file must be written: %v", err)
	}

	// The written file must load back cleanly.
	if _, err := Load(path); err != nil {
		t.Fatalf("reload: %v", err)
	}
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "ListenAddress = \":9999\"\nAdminAddress = \"0x0102030405060708090a0b0c0d0e0f1011121314\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":9999" {
		t.Fatalf("explicit value must win, got %s", cfg.ListenAddress)
	}
	if cfg.DataDir != "./marketd-data" || cfg.NetworkName != "market-local" {
		t.Fatalf("missing values must take defaults")
	}

	admin, ok, err := cfg.Admin()
	if err != nil || !ok {
		t.Fatalf("admin must parse: %v", err)
	}
	if admin[0] != 0x01 || admin[19] != 0x14 {
		t.Fatalf("admin bytes decoded wrong: %x", admin)
	}
}

func TestLoadRejectsInvalidAdmin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("AdminAddress = \"nope\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("invalid admin address must fail validation")
	}
}

func TestAdminUnsetIsDisabled(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	_, ok, err := cfg.Admin()
	if err != nil {
		t.Fatalf("admin: %v", err)
	}
	if ok {
		t.Fatalf("empty admin must report disabled")
	}
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("0x0102030405060708090a0b0c0d0e0f1011121314")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if addr[0] != 0x01 || addr[19] != 0x14 {
		t.Fatalf("bytes decoded wrong: %x", addr)
	}
	if _, err := ParseAddress("0x0102"); err == nil {
		t.Fatalf("short address must be rejected")
	}
	if _, err := ParseAddress("zz02030405060708090a0b0c0d0e0f1011121314"); err == nil {
		t.Fatalf("non-hex address must be rejected")
	}
}

func TestRPCTokenFromEnv(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	t.Setenv(cfg.RPCTokenEnv, "  secret-token  ")
	if got := cfg.RPCToken(); got != "secret-token" {
		t.Fatalf("expected trimmed token, got %q", got)
	}
}
