// Package config loads indexer configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/fundscope/indexer/internal/feed"
	"github.com/fundscope/indexer/internal/indexer"
	"github.com/fundscope/indexer/internal/platform/storage"
	"github.com/fundscope/indexer/internal/statscache"
)

// Config is the full runtime configuration.
type Config struct {
	// Chain connection
	RPCURL         string `yaml:"rpc_url"`
	FactoryAddress string `yaml:"factory_address"`

	// Sync loop tuning
	Indexer indexer.Config `yaml:"indexer"`

	// PostgreSQL connection
	Database storage.Config `yaml:"database"`

	// Activity feed. Disabled when the URL is empty.
	Feed feed.Config `yaml:"feed"`

	// Read-side cache. Disabled when the address is empty.
	Cache statscache.Config `yaml:"cache"`
}

// Load reads the config file (optional), applies environment overrides,
// and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Indexer:  indexer.DefaultConfig(),
		Database: storage.DefaultConfig(),
		Feed:     feed.Config{},
		Cache:    statscache.Config{TTL: statscache.DefaultConfig().TTL},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.RPCURL = v
	}
	if v := os.Getenv("FACTORY_ADDRESS"); v != "" {
		cfg.FactoryAddress = v
	}
	if v := os.Getenv("DATABASE_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.Feed.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
}

// Validate checks the fields without which the indexer cannot start.
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return errors.New("rpc_url is required (flag, config file, or RPC_URL)")
	}
	if c.FactoryAddress == "" {
		return errors.New("factory_address is required (flag, config file, or FACTORY_ADDRESS)")
	}
	if !common.IsHexAddress(c.FactoryAddress) {
		return fmt.Errorf("factory_address %q is not a valid address", c.FactoryAddress)
	}
	return nil
}

// Factory returns the parsed factory contract address.
func (c *Config) Factory() common.Address {
	return common.HexToAddress(c.FactoryAddress)
}

// FeedEnabled reports whether the activity feed should be wired.
func (c *Config) FeedEnabled() bool {
	return c.Feed.URL != ""
}

// CacheEnabled reports whether the read-side cache should be wired.
func (c *Config) CacheEnabled() bool {
	return c.Cache.Addr != ""
}
