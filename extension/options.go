package extension

import (
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/custody"
	"github.com/xraph/custody/payout"
	"github.com/xraph/custody/plugin"
	"github.com/xraph/custody/pricefeed"
	"github.com/xraph/custody/pricefeed/rediscache"
	"github.com/xraph/custody/store"
)

// Option configures the custody Forge extension.
type Option func(*Extension)

// WithStore sets the journal store. Grove-backed stores are built by the
// caller from a resolved *grove.DB, e.g. postgres.New(db).
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithCustodyOption passes a custody.Option through to the engine.
func WithCustodyOption(opt custody.Option) Option {
	return func(e *Extension) {
		e.custodyOpts = append(e.custodyOpts, opt)
	}
}

// WithPlugin registers a custody plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.custodyOpts = append(e.custodyOpts, custody.WithPlugin(p))
	}
}

// WithPayout sets the rail withdrawn funds are sent through.
func WithPayout(t payout.Transferer) Option {
	return func(e *Extension) {
		e.custodyOpts = append(e.custodyOpts, custody.WithPayout(t))
	}
}

// WithContractCaller sets the RPC client used to read the aggregator on
// public networks, typically an *ethclient.Client.
func WithContractCaller(c bind.ContractCaller) Option {
	return func(e *Extension) { e.caller = c }
}

// WithRedis shares price rounds between instances through rdb.
func WithRedis(rdb rediscache.Client) Option {
	return func(e *Extension) { e.redis = rdb }
}

// WithMock provisions development networks with m.
func WithMock(m *pricefeed.Mock) Option {
	return func(e *Extension) { e.mock = m }
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes prevents HTTP handler registration.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBasePath sets the URL prefix for custody routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithNetwork selects the network by name.
func WithNetwork(name string) Option {
	return func(e *Extension) { e.config.Network = name }
}

// WithOwner sets the deployer account.
func WithOwner(owner common.Address) Option {
	return func(e *Extension) { e.config.Owner = owner.Hex() }
}

// WithMinimumUSD sets the minimum contribution in dollars, e.g. "50".
func WithMinimumUSD(dollars string) Option {
	return func(e *Extension) { e.config.MinimumUSD = dollars }
}

// WithMaxPriceAge sets the freshness bound for price rounds.
func WithMaxPriceAge(d time.Duration) Option {
	return func(e *Extension) { e.config.MaxPriceAge = d }
}
