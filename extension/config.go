package extension

import (
	"time"

	"github.com/xraph/custody/api"
)

// Config holds the custody extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.custody" or "custody" keys).
type Config struct {
	// DisableRoutes prevents HTTP handler registration.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start. The journal is
	// still replayed.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix for custody routes (default: "/custody").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// Network selects the entry of the network table (default: "localhost").
	// Development networks run against a mock price feed.
	Network string `json:"network" mapstructure:"network" yaml:"network"`

	// ChainID identifies the network when Network is empty.
	ChainID uint64 `json:"chain_id" mapstructure:"chain_id" yaml:"chain_id"`

	// Owner is the hex address of the deployer account.
	Owner string `json:"owner" mapstructure:"owner" yaml:"owner"`

	// PriceFeed overrides the aggregator address of the network table.
	PriceFeed string `json:"price_feed" mapstructure:"price_feed" yaml:"price_feed"`

	// MinimumUSD is the minimum contribution in dollars (default: "50").
	MinimumUSD string `json:"minimum_usd" mapstructure:"minimum_usd" yaml:"minimum_usd"`

	// MaxPriceAge rejects price rounds older than this (default: 1h).
	// Development networks serve the mock round regardless of age.
	MaxPriceAge time.Duration `json:"max_price_age" mapstructure:"max_price_age" yaml:"max_price_age"`

	// PriceCacheTTL is how long a price round is shared through Redis
	// when a Redis client is configured (default: 15s).
	PriceCacheTTL time.Duration `json:"price_cache_ttl" mapstructure:"price_cache_ttl" yaml:"price_cache_ttl"`

	// SignatureWindow is the clock skew accepted on signed requests
	// (default: 5m).
	SignatureWindow time.Duration `json:"signature_window" mapstructure:"signature_window" yaml:"signature_window"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:        "/custody",
		Network:         "localhost",
		MinimumUSD:      "50",
		MaxPriceAge:     time.Hour,
		PriceCacheTTL:   15 * time.Second,
		SignatureWindow: api.DefaultSignatureWindow,
	}
}
