package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// TLSConfig holds paths to the PEM files needed for mTLS.
// When nil or all paths empty, the node falls back to plain TCP.
type TLSConfig struct {
	CACert   string `json:"ca_cert"`   // CA certificate PEM path
	NodeCert string `json:"node_cert"` // node certificate PEM path
	NodeKey  string `json:"node_key"`  // node private key PEM path
}

// SeedPeer identifies a remote node to connect to on startup.
type SeedPeer struct {
	ID   string `json:"id"`   // remote node ID
	Addr string `json:"addr"` // host:port
}

// DelegateKeyRef points at an encrypted keystore file a node should load on
// startup so it can sign blocks for the named delegate account when its
// slot comes up. The password is never stored in the config file itself;
// it is read from the environment variable named by PasswordEnv, per
// spec.md §6's requirement that signing material never sit in plaintext
// config.
type DelegateKeyRef struct {
	AccountName string `json:"account_name"`
	KeystorePath string `json:"keystore_path"`
	PasswordEnv  string `json:"password_env"` // env var holding the keystore password
}

// GenesisAllocation seeds one named account with a key and an initial
// base-currency balance.
type GenesisAllocation struct {
	ActiveKeyHex string `json:"active_key_hex"` // compressed secp256k1 public key, hex-encoded
	Balance      int64  `json:"balance"`
}

// GenesisConfig describes the chain's initial state: the base-currency
// allocation and the initial delegate roster, seeded at block 0.
type GenesisConfig struct {
	ChainID          string                       `json:"chain_id"`
	BaseSymbol       string                       `json:"base_symbol"`     // e.g. "DLC"
	BaseMaxSupply    int64                        `json:"base_max_supply"` // 0 → unbounded
	Alloc            map[string]GenesisAllocation `json:"alloc"`           // account name → key + initial base-currency balance
	InitialDelegates []string                     `json:"initial_delegates"` // account names standing for the genesis delegate roster
}

// Config holds all node configuration.
type Config struct {
	NodeID               string            `json:"node_id"`
	DataDirectory        string            `json:"data_directory"`
	ListenEndpoint       string            `json:"listen_endpoint"` // p2p listen address
	RPCPort              int               `json:"rpc_port"`
	MaxBlockSize         int               `json:"max_block_size"`          // max transactions per block; 0 → 500
	MaxTransactionTTL    int64             `json:"max_transaction_ttl"`     // seconds a tx's expiration may extend into the future
	BlockIntervalSeconds int64             `json:"block_interval_seconds"`  // seconds per production slot
	NumDelegates         int               `json:"num_delegates"`           // size of the active delegate round
	FeeRate              int64             `json:"fee_rate"`                // minimum fee per 1000 bytes of encoded tx; blockapp also debits it as a flat per-tx fee
	MarginCallFeeRatio   int64             `json:"margin_call_fee_ratio"`   // basis points; only validated here, market.Engine applies its own fixed 500 and does not read this field
	MarketDepthRequirement int64           `json:"market_depth_requirement"` // floor on a market-issued pair's bid and ask depth; a matching pass that ends below it is rolled back
	ForkRewindDepth      int64             `json:"fork_rewind_depth"`       // blocks of undo history retained for fork-choice rewind; 0 → no reorg ever accepted
	PeerBootstrap        []SeedPeer        `json:"peer_bootstrap,omitempty"`
	DelegateKeys          []DelegateKeyRef  `json:"delegate_keys,omitempty"`
	Genesis              GenesisConfig     `json:"genesis"`
	TLS                  *TLSConfig        `json:"tls,omitempty"`
	RPCAuthToken         string            `json:"rpc_auth_token,omitempty"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:                 "node0",
		DataDirectory:          "./data",
		ListenEndpoint:         ":30303",
		RPCPort:                8545,
		MaxBlockSize:           500,
		MaxTransactionTTL:      3600,
		BlockIntervalSeconds:   3,
		NumDelegates:           21,
		FeeRate:                10,   // per 1000 encoded bytes
		MarginCallFeeRatio:     500,  // 5%
		MarketDepthRequirement: 0,
		ForkRewindDepth:        20,
		Genesis: GenesisConfig{
			ChainID:       "delegatechain-dev",
			BaseSymbol:    "DLC",
			BaseMaxSupply: 0,
			Alloc:         map[string]GenesisAllocation{},
		},
	}
}

// Load reads a JSON config file from path and validates required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id must not be empty")
	}
	if c.DataDirectory == "" {
		return fmt.Errorf("data_directory must not be empty")
	}
	if c.ListenEndpoint == "" {
		return fmt.Errorf("listen_endpoint must not be empty")
	}
	if c.Genesis.ChainID == "" {
		return fmt.Errorf("genesis.chain_id must not be empty")
	}
	if c.Genesis.BaseSymbol == "" {
		return fmt.Errorf("genesis.base_symbol must not be empty")
	}
	if c.RPCPort <= 0 || c.RPCPort > 65535 {
		return fmt.Errorf("rpc_port must be 1-65535, got %d", c.RPCPort)
	}
	if c.NumDelegates <= 0 {
		return fmt.Errorf("num_delegates must be positive, got %d", c.NumDelegates)
	}
	if c.BlockIntervalSeconds <= 0 {
		return fmt.Errorf("block_interval_seconds must be positive, got %d", c.BlockIntervalSeconds)
	}
	if c.MarginCallFeeRatio < 0 || c.MarginCallFeeRatio > 10_000 {
		return fmt.Errorf("margin_call_fee_ratio must be 0-10000 basis points, got %d", c.MarginCallFeeRatio)
	}
	if len(c.Genesis.InitialDelegates) == 0 {
		return fmt.Errorf("genesis.initial_delegates must not be empty")
	}
	for _, ref := range c.DelegateKeys {
		if ref.AccountName == "" || ref.KeystorePath == "" || ref.PasswordEnv == "" {
			return fmt.Errorf("delegate_keys: account_name, keystore_path and password_env must all be set")
		}
	}
	if c.TLS != nil {
		t := c.TLS
		allSet := t.CACert != "" && t.NodeCert != "" && t.NodeKey != ""
		allEmpty := t.CACert == "" && t.NodeCert == "" && t.NodeKey == ""
		if !allSet && !allEmpty {
			return fmt.Errorf("tls: all three paths (ca_cert, node_cert, node_key) must be set or all empty")
		}
	}
	return nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
