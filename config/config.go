// Package config loads hotwings settings from a YAML file and HOTWINGS_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"

	"hotwings/vesting"
)

// Config - raw settings as read from file/env
type Config struct {
	ProgramID            string            `mapstructure:"program_id"`
	Mint                 string            `mapstructure:"mint"`
	Authority            string            `mapstructure:"authority"`
	Source               string            `mapstructure:"source"`
	Liquidity            string            `mapstructure:"liquidity"`
	ProjectWallet        string            `mapstructure:"project_wallet"`
	LiquidityDestination string            `mapstructure:"liquidity_destination"`
	MarketingWallet      string            `mapstructure:"marketing_wallet"`
	PoolTokenAccount     string            `mapstructure:"pool_token_account"`
	Exchanges            []string          `mapstructure:"exchanges"`
	MaxHold              uint64            `mapstructure:"max_hold"`
	CreditPolicy         string            `mapstructure:"credit_policy"`
	Network              string            `mapstructure:"network"`
	RPCURL               string            `mapstructure:"rpc_url"`
	WSURL                string            `mapstructure:"ws_url"`
	Payer                string            `mapstructure:"payer"`
	Keypairs             map[string]string `mapstructure:"keypairs"`
	PoolAuthority        string            `mapstructure:"pool_authority"`
	Database             string            `mapstructure:"database"`
	Listen               string            `mapstructure:"listen"`
	DryRun               bool              `mapstructure:"dry_run"`
	Log                  LogConfig         `mapstructure:"log"`
}

// LogConfig - logger settings
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Networks maps a network name to its default RPC and websocket endpoints
var Networks = map[string][2]string{
	"mainnet": {"https://api.mainnet-beta.solana.com", "wss://api.mainnet-beta.solana.com"},
	"devnet":  {"https://api.devnet.solana.com", "wss://api.devnet.solana.com"},
	"testnet": {"https://api.testnet.solana.com", "wss://api.testnet.solana.com"},
	"local":   {"http://127.0.0.1:8899", "ws://127.0.0.1:8900"},
}

// New returns a viper instance carrying defaults and env bindings
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("program_id", vesting.HotwingsProgramID)
	v.SetDefault("network", "devnet")
	v.SetDefault("max_hold", vesting.DefaultMaxHold)
	v.SetDefault("credit_policy", vesting.CreditSender.String())
	v.SetDefault("database", "hotwings.db")
	v.SetDefault("listen", ":8080")
	v.SetDefault("dry_run", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetEnvPrefix("HOTWINGS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// keys without a default are invisible to Unmarshal unless bound
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}
	return v
}

var envKeys = []string{
	"mint", "authority", "source", "liquidity", "project_wallet",
	"liquidity_destination", "marketing_wallet", "pool_token_account",
	"exchanges", "rpc_url", "ws_url", "payer", "pool_authority",
}

// Load reads path (optional) and the environment
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the settings held by v
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if endpoints, ok := Networks[cfg.Network]; ok {
		if cfg.RPCURL == "" {
			cfg.RPCURL = endpoints[0]
		}
		if cfg.WSURL == "" {
			cfg.WSURL = endpoints[1]
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every key that must parse
func (c *Config) Validate() error {
	keys := []struct {
		name     string
		value    string
		required bool
	}{
		{"program_id", c.ProgramID, true},
		{"mint", c.Mint, true},
		{"authority", c.Authority, true},
		{"source", c.Source, true},
		{"liquidity", c.Liquidity, true},
		{"project_wallet", c.ProjectWallet, true},
		{"liquidity_destination", c.LiquidityDestination, true},
		{"marketing_wallet", c.MarketingWallet, true},
		{"pool_token_account", c.PoolTokenAccount, false},
	}
	for _, k := range keys {
		if k.value == "" {
			if k.required {
				return fmt.Errorf("config: %s is required", k.name)
			}
			continue
		}
		if _, err := solana.PublicKeyFromBase58(k.value); err != nil {
			return fmt.Errorf("config: invalid %s %q: %w", k.name, k.value, err)
		}
	}
	for _, e := range c.Exchanges {
		if _, err := solana.PublicKeyFromBase58(strings.TrimSpace(e)); err != nil {
			return fmt.Errorf("config: invalid exchange %q: %w", e, err)
		}
	}
	if _, err := vesting.ParseCreditPolicy(c.CreditPolicy); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.MaxHold == 0 {
		return errors.New("config: max_hold must be positive")
	}
	if !c.DryRun && c.RPCURL == "" {
		return errors.New("config: rpc_url is required unless dry_run is set")
	}
	return nil
}

// LedgerConfig converts the settings into vesting.Config
func (c *Config) LedgerConfig() vesting.Config {
	return vesting.Config{
		ProgramID:            solana.MustPublicKeyFromBase58(c.ProgramID),
		Mint:                 solana.MustPublicKeyFromBase58(c.Mint),
		Authority:            solana.MustPublicKeyFromBase58(c.Authority),
		Source:               solana.MustPublicKeyFromBase58(c.Source),
		Liquidity:            solana.MustPublicKeyFromBase58(c.Liquidity),
		ProjectWallet:        solana.MustPublicKeyFromBase58(c.ProjectWallet),
		LiquidityDestination: solana.MustPublicKeyFromBase58(c.LiquidityDestination),
	}
}

// TaxConfig converts the settings into vesting.TaxConfig
func (c *Config) TaxConfig() vesting.TaxConfig {
	exchanges := make([]solana.PublicKey, 0, len(c.Exchanges))
	for _, e := range c.Exchanges {
		exchanges = append(exchanges, solana.MustPublicKeyFromBase58(strings.TrimSpace(e)))
	}
	policy, _ := vesting.ParseCreditPolicy(c.CreditPolicy)
	return vesting.TaxConfig{
		Exchanges:       exchanges,
		MarketingWallet: solana.MustPublicKeyFromBase58(c.MarketingWallet),
		MaxHold:         c.MaxHold,
		Credit:          policy,
	}
}

// LoadKeys reads every configured solana-keygen file, keyed by public key
func (c *Config) LoadKeys() (map[solana.PublicKey]solana.PrivateKey, error) {
	keys := make(map[solana.PublicKey]solana.PrivateKey, len(c.Keypairs))
	for name, path := range c.Keypairs {
		k, err := solana.PrivateKeyFromSolanaKeygenFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load keypair %s from %s: %w", name, path, err)
		}
		keys[k.PublicKey()] = k
	}
	return keys, nil
}

// LoadKey reads a single solana-keygen file
func LoadKey(path string) (solana.PrivateKey, error) {
	k, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair from %s: %w", path, err)
	}
	return k, nil
}
