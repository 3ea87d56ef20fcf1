package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/custody"
)

func env(kv map[string]string) func(string) string {
	return func(k string) string { return kv[k] }
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(env(map[string]string{
		"CUSTODY_OWNER": "0x00000000000000000000000000000000000000aa",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "localhost", cfg.Network)
	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, 0, cfg.MinimumUSD.Cmp(custody.DefaultMinimumUSD))
	assert.Equal(t, time.Hour, cfg.MaxPriceAge)
	assert.Equal(t, 15*time.Second, cfg.PriceCacheTTL)
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := loadConfig(env(map[string]string{
		"CUSTODY_OWNER":         "0x00000000000000000000000000000000000000aa",
		"CUSTODY_NETWORK":       "Sepolia",
		"CUSTODY_RPC_URL":       "https://rpc.example",
		"CUSTODY_MINIMUM_USD":   "12.5",
		"CUSTODY_MAX_PRICE_AGE": "90s",
		"CUSTODY_STORE":         "leveldb",
		"CUSTODY_LEVELDB_PATH":  "/var/lib/custody",
		"CUSTODY_CHAIN_ID":      "11155111",
	}))
	require.NoError(t, err)

	assert.Equal(t, "sepolia", cfg.Network)
	assert.Equal(t, uint64(11155111), cfg.ChainID)
	assert.Equal(t, "12500000000000000000", cfg.MinimumUSD.String())
	assert.Equal(t, 90*time.Second, cfg.MaxPriceAge)
	assert.Equal(t, "leveldb", cfg.Store)
	assert.Equal(t, "/var/lib/custody", cfg.LevelDBPath)

	cfg, err = loadConfig(env(map[string]string{
		"CUSTODY_OWNER":       "0x00000000000000000000000000000000000000aa",
		"CUSTODY_STORE":       "SQLite",
		"CUSTODY_SQLITE_PATH": "/var/lib/custody.db",
	}))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store)
	assert.Equal(t, "/var/lib/custody.db", cfg.SQLitePath)
}

func TestLoadConfigErrors(t *testing.T) {
	owner := "0x00000000000000000000000000000000000000aa"
	tests := map[string]map[string]string{
		"missing owner":      {},
		"bad owner":          {"CUSTODY_OWNER": "bob"},
		"bad price feed":     {"CUSTODY_OWNER": owner, "CUSTODY_PRICE_FEED": "nope"},
		"bad chain id":       {"CUSTODY_OWNER": owner, "CUSTODY_CHAIN_ID": "x"},
		"negative minimum":   {"CUSTODY_OWNER": owner, "CUSTODY_MINIMUM_USD": "-1"},
		"bad duration":       {"CUSTODY_OWNER": owner, "CUSTODY_MAX_PRICE_AGE": "soon"},
		"unknown store":      {"CUSTODY_OWNER": owner, "CUSTODY_STORE": "postgres"},
		"public without rpc": {"CUSTODY_OWNER": owner, "CUSTODY_NETWORK": "mainnet"},
	}

	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := loadConfig(env(kv))
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	assert.NotNil(t, newLogger("debug"))
	assert.NotNil(t, newLogger(""))
}
