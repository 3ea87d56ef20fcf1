// Command custodyd serves a custody instance over HTTP.
//
// Configuration comes from the environment (CUSTODY_*), optionally
// loaded from .env and .env.local. Development networks run against a
// mock price feed; public networks read the Chainlink aggregator through
// CUSTODY_RPC_URL.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/custody"
	"github.com/xraph/custody/api"
	"github.com/xraph/custody/deployment"
	"github.com/xraph/custody/pricefeed"
	"github.com/xraph/custody/pricefeed/rediscache"
	"github.com/xraph/custody/store"
	"github.com/xraph/custody/store/leveldb"
	"github.com/xraph/custody/store/memory"
	"github.com/xraph/custody/store/sqlite"
)

func main() {
	// both files are optional
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	addr := flag.String("addr", "", "listen address, overrides CUSTODY_ADDR")
	flag.Parse()

	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, "custodyd:", err)
		os.Exit(2)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("custodyd stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var caller bind.ContractCaller
	if cfg.RPCURL != "" {
		client, err := ethclient.DialContext(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
		}
		defer client.Close()
		caller = client
	}

	dopts := []deployment.Option{deployment.WithLogger(logger)}
	apiOpts := []api.Option{api.WithLogger(logger)}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer rdb.Close()
		dopts = append(dopts, deployment.WithFeedWrapper(func(f pricefeed.Feed) pricefeed.Feed {
			return rediscache.New(f, rdb,
				rediscache.WithTTL(cfg.PriceCacheTTL),
				rediscache.WithLogger(logger),
			)
		}))
		apiOpts = append(apiOpts, api.WithNonces(api.RedisNonces(rdb)))
	}

	d, err := deployment.Deploy(ctx, deployment.Config{
		Network:     cfg.Network,
		ChainID:     cfg.ChainID,
		Owner:       cfg.Owner,
		PriceFeed:   cfg.PriceFeed,
		MaxPriceAge: cfg.MaxPriceAge,
	}, caller, dopts...)
	if err != nil {
		return err
	}

	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	c, err := custody.New(d.Owner, d.Adapter,
		custody.WithStore(s),
		custody.WithLogger(logger),
		custody.WithMinimumUSD(cfg.MinimumUSD),
	)
	if err != nil {
		_ = s.Close()
		return err
	}
	if err := c.Start(ctx); err != nil {
		_ = s.Close()
		return err
	}
	defer func() {
		if err := c.Stop(); err != nil {
			logger.Error("failed to stop custody", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.New(c, apiOpts...).Router(cfg.BasePath),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("custodyd listening",
			"addr", cfg.Addr,
			"network", d.Network.Name,
			"development", d.Development,
			"store", cfg.Store,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("custodyd stopped")
	return nil
}

func openStore(ctx context.Context, cfg config) (store.Store, error) {
	switch cfg.Store {
	case "leveldb":
		return leveldb.Open(cfg.LevelDBPath)
	case "sqlite":
		drv := sqlitedriver.New()
		if err := drv.Open(ctx, cfg.SQLitePath); err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		db, err := grove.Open(drv)
		if err != nil {
			_ = drv.Close()
			return nil, err
		}
		return sqlite.New(db), nil
	default:
		return memory.New(), nil
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
