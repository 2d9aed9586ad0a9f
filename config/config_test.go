package config_test

import (
	"path/filepath"
	"testing"

	"github.com/tolelom/delegatechain/config"
)

func validConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Genesis.InitialDelegates = []string{"producer"}
	return cfg
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected a well-formed config to validate, got %v", err)
	}
}

func TestValidateRejectsMissingNodeID(t *testing.T) {
	cfg := validConfig()
	cfg.NodeID = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for an empty node_id")
	}
}

func TestValidateRejectsBadRPCPort(t *testing.T) {
	cfg := validConfig()
	cfg.RPCPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for an out-of-range rpc_port")
	}
}

func TestValidateRejectsEmptyInitialDelegates(t *testing.T) {
	cfg := validConfig()
	cfg.Genesis.InitialDelegates = nil
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error when genesis.initial_delegates is empty")
	}
}

func TestValidateRejectsIncompleteDelegateKeyRef(t *testing.T) {
	cfg := validConfig()
	cfg.DelegateKeys = []config.DelegateKeyRef{{AccountName: "producer"}}
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for a delegate key ref missing keystore_path/password_env")
	}
}

func TestValidateRejectsPartialTLSConfig(t *testing.T) {
	cfg := validConfig()
	cfg.TLS = &config.TLSConfig{CACert: "ca.pem"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for a partially specified tls block")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := validConfig()
	cfg.NodeID = "roundtrip-node"
	path := filepath.Join(t.TempDir(), "config.json")
	if err := config.Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.NodeID != "roundtrip-node" {
		t.Errorf("node_id: got %q want roundtrip-node", loaded.NodeID)
	}
	if loaded.Genesis.ChainID != cfg.Genesis.ChainID {
		t.Errorf("genesis.chain_id: got %q want %q", loaded.Genesis.ChainID, cfg.Genesis.ChainID)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Genesis.InitialDelegates = nil
	path := filepath.Join(t.TempDir(), "config.json")
	if err := config.Save(cfg, path); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Load(path); err == nil {
		t.Error("expected Load to surface a validation error for an invalid config file")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.json")); err == nil {
		t.Error("expected an error loading a nonexistent config file")
	}
}
