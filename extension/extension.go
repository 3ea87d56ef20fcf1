// Package extension provides the Forge extension adapter for custody.
//
// It implements the forge.Extension interface to integrate custody
// into a Forge application with DI registration and lifecycle
// management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.custody" or "custody" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/custody"
	"github.com/xraph/custody/api"
	"github.com/xraph/custody/deployment"
	"github.com/xraph/custody/pricefeed"
	"github.com/xraph/custody/pricefeed/rediscache"
	"github.com/xraph/custody/store"
	"github.com/xraph/custody/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "custody"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Funds custody with oracle-priced contributions"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts custody as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config      Config
	engine      *custody.Custody
	handler     *api.Handler
	deployment  *deployment.Deployment
	store       store.Store
	caller      bind.ContractCaller
	redis       rediscache.Client
	mock        *pricefeed.Mock
	custodyOpts []custody.Option
}

// New creates a new custody Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying custody instance.
// This is nil until Register is called.
func (e *Extension) Engine() *custody.Custody { return e.engine }

// Handler returns the HTTP handler, nil when routes are disabled.
func (e *Extension) Handler() *api.Handler { return e.handler }

// HTTPHandler returns the custody routes mounted under the configured
// base path, nil when routes are disabled.
func (e *Extension) HTTPHandler() http.Handler {
	if e.handler == nil {
		return nil
	}
	return e.handler.Router(e.config.BasePath)
}

// Deployment returns the resolved network binding.
func (e *Extension) Deployment() *deployment.Deployment { return e.deployment }

// Register implements [forge.Extension]. It loads configuration,
// resolves the network binding, and registers the engine in the DI
// container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.build(context.Background()); err != nil {
		return err
	}

	if err := vessel.Provide(fapp.Container(), func() (*custody.Custody, error) {
		return e.engine, nil
	}); err != nil {
		return err
	}

	if e.handler == nil {
		return nil
	}
	return vessel.Provide(fapp.Container(), func() (*api.Handler, error) {
		return e.handler, nil
	})
}

// build resolves the deployment and constructs the engine from the
// resolved config.
func (e *Extension) build(ctx context.Context) error {
	if !common.IsHexAddress(e.config.Owner) {
		return fmt.Errorf("custody: owner %q is not a hex address", e.config.Owner)
	}
	dcfg := deployment.Config{
		Network:     e.config.Network,
		ChainID:     e.config.ChainID,
		Owner:       common.HexToAddress(e.config.Owner),
		MaxPriceAge: e.config.MaxPriceAge,
	}
	if e.config.PriceFeed != "" {
		if !common.IsHexAddress(e.config.PriceFeed) {
			return fmt.Errorf("custody: price feed %q is not a hex address", e.config.PriceFeed)
		}
		dcfg.PriceFeed = common.HexToAddress(e.config.PriceFeed)
	}

	var dopts []deployment.Option
	if e.mock != nil {
		dopts = append(dopts, deployment.WithMock(e.mock))
	}
	if e.redis != nil {
		dopts = append(dopts, deployment.WithFeedWrapper(func(f pricefeed.Feed) pricefeed.Feed {
			return rediscache.New(f, e.redis, rediscache.WithTTL(e.config.PriceCacheTTL))
		}))
	}

	d, err := deployment.Deploy(ctx, dcfg, e.caller, dopts...)
	if err != nil {
		return err
	}
	e.deployment = d

	opts, err := e.buildCustodyOpts()
	if err != nil {
		return err
	}
	eng, err := custody.New(d.Owner, d.Adapter, opts...)
	if err != nil {
		return err
	}
	e.engine = eng

	if !e.config.DisableRoutes {
		apiOpts := []api.Option{api.WithSignatureWindow(e.config.SignatureWindow)}
		if rc, ok := e.redis.(api.RedisClient); ok {
			apiOpts = append(apiOpts, api.WithNonces(api.RedisNonces(rc)))
		}
		e.handler = api.New(eng, apiOpts...)
	}
	return nil
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("custody: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("custody: extension not initialized")
	}
	return e.engine.Health(ctx)
}

// buildCustodyOpts constructs custody.Option values from the resolved config.
func (e *Extension) buildCustodyOpts() ([]custody.Option, error) {
	opts := make([]custody.Option, 0, len(e.custodyOpts)+2)

	if e.store == nil {
		e.store = memory.New()
	}
	s := e.store
	if e.config.DisableMigrate {
		s = noMigrate{s}
	}
	opts = append(opts, custody.WithStore(s))

	if e.config.MinimumUSD != "" {
		minimum, err := custody.ParseDollars(e.config.MinimumUSD)
		if err != nil {
			return nil, fmt.Errorf("custody: minimum_usd: %w", err)
		}
		opts = append(opts, custody.WithMinimumUSD(minimum))
	}

	// Append any pass-through custody options.
	opts = append(opts, e.custodyOpts...)

	return opts, nil
}

// noMigrate skips schema migration for stores managed elsewhere.
type noMigrate struct {
	store.Store
}

func (noMigrate) Migrate(context.Context) error { return nil }

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("custody: configuration is required but not found in config files; " +
				"ensure 'extensions.custody' or 'custody' key exists in your config")
		}

		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("custody: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("base_path", e.config.BasePath),
		forge.F("network", e.config.Network),
		forge.F("owner", e.config.Owner),
		forge.F("minimum_usd", e.config.MinimumUSD),
		forge.F("max_price_age", e.config.MaxPriceAge),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.custody", "custody"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("custody: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("custody: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.Network == "" && cfg.ChainID == 0 {
		cfg.Network = defaults.Network
	}
	if cfg.MinimumUSD == "" {
		cfg.MinimumUSD = defaults.MinimumUSD
	}
	if cfg.MaxPriceAge == 0 {
		cfg.MaxPriceAge = defaults.MaxPriceAge
	}
	if cfg.PriceCacheTTL == 0 {
		cfg.PriceCacheTTL = defaults.PriceCacheTTL
	}
	if cfg.SignatureWindow == 0 {
		cfg.SignatureWindow = defaults.SignatureWindow
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	fill := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
		}
	}
	fill(&yamlConfig.BasePath, programmaticConfig.BasePath)
	fill(&yamlConfig.Network, programmaticConfig.Network)
	fill(&yamlConfig.Owner, programmaticConfig.Owner)
	fill(&yamlConfig.PriceFeed, programmaticConfig.PriceFeed)
	fill(&yamlConfig.MinimumUSD, programmaticConfig.MinimumUSD)

	if yamlConfig.ChainID == 0 {
		yamlConfig.ChainID = programmaticConfig.ChainID
	}
	if yamlConfig.MaxPriceAge == 0 {
		yamlConfig.MaxPriceAge = programmaticConfig.MaxPriceAge
	}
	if yamlConfig.PriceCacheTTL == 0 {
		yamlConfig.PriceCacheTTL = programmaticConfig.PriceCacheTTL
	}
	if yamlConfig.SignatureWindow == 0 {
		yamlConfig.SignatureWindow = programmaticConfig.SignatureWindow
	}

	return mergeWithDefaults(yamlConfig)
}
