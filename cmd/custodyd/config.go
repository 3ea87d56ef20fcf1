package main

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/custody"
	"github.com/xraph/custody/deployment"
)

// config is read from the environment; .env files are loaded first.
type config struct {
	Addr     string
	BasePath string

	Network     string
	ChainID     uint64
	RPCURL      string
	Owner       common.Address
	PriceFeed   common.Address
	MinimumUSD  *big.Int
	MaxPriceAge time.Duration

	RedisAddr     string
	RedisPassword string
	PriceCacheTTL time.Duration

	Store       string
	LevelDBPath string
	SQLitePath  string

	LogLevel        string
	ShutdownTimeout time.Duration
}

func loadConfig(getenv func(string) string) (config, error) {
	cfg := config{
		Addr:            envOr(getenv, "CUSTODY_ADDR", ":8080"),
		BasePath:        envOr(getenv, "CUSTODY_BASE_PATH", "/"),
		Network:         strings.ToLower(envOr(getenv, "CUSTODY_NETWORK", "localhost")),
		RPCURL:          getenv("CUSTODY_RPC_URL"),
		RedisAddr:       getenv("CUSTODY_REDIS_ADDR"),
		RedisPassword:   getenv("CUSTODY_REDIS_PASSWORD"),
		Store:           strings.ToLower(envOr(getenv, "CUSTODY_STORE", "memory")),
		LevelDBPath:     envOr(getenv, "CUSTODY_LEVELDB_PATH", "data/custody"),
		SQLitePath:      envOr(getenv, "CUSTODY_SQLITE_PATH", "data/custody.db"),
		LogLevel:        strings.ToLower(envOr(getenv, "CUSTODY_LOG_LEVEL", "info")),
		MaxPriceAge:     time.Hour,
		PriceCacheTTL:   15 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}

	owner := getenv("CUSTODY_OWNER")
	if !common.IsHexAddress(owner) {
		return cfg, fmt.Errorf("CUSTODY_OWNER must be a hex address, got %q", owner)
	}
	cfg.Owner = common.HexToAddress(owner)

	if v := getenv("CUSTODY_PRICE_FEED"); v != "" {
		if !common.IsHexAddress(v) {
			return cfg, fmt.Errorf("CUSTODY_PRICE_FEED must be a hex address, got %q", v)
		}
		cfg.PriceFeed = common.HexToAddress(v)
	}

	if v := getenv("CUSTODY_CHAIN_ID"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("CUSTODY_CHAIN_ID: %w", err)
		}
		cfg.ChainID = id
	}

	minimum, err := custody.ParseDollars(envOr(getenv, "CUSTODY_MINIMUM_USD", "50"))
	if err != nil {
		return cfg, fmt.Errorf("CUSTODY_MINIMUM_USD: %w", err)
	}
	cfg.MinimumUSD = minimum

	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"CUSTODY_MAX_PRICE_AGE", &cfg.MaxPriceAge},
		{"CUSTODY_PRICE_CACHE_TTL", &cfg.PriceCacheTTL},
		{"CUSTODY_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
	} {
		v := getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	switch cfg.Store {
	case "memory", "leveldb", "sqlite":
	default:
		return cfg, fmt.Errorf("CUSTODY_STORE must be memory, leveldb or sqlite, got %q", cfg.Store)
	}

	if !deployment.IsDevelopment(cfg.Network, cfg.ChainID) && cfg.RPCURL == "" {
		return cfg, fmt.Errorf("CUSTODY_RPC_URL is required on network %q", cfg.Network)
	}

	return cfg, nil
}

func envOr(getenv func(string) string, key, fallback string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return fallback
}
