// Package deployment resolves the price feed and owner a custody instance
// runs with on a given network. Development chains get a local mock feed
// answering 2000 USD per ETH; public networks bind to the Chainlink
// ETH/USD aggregator listed in the network table.
package deployment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/custody/pricefeed"
	"github.com/xraph/custody/pricefeed/chainlink"
)

// DevChainID is the chain ID of local development nodes.
const DevChainID = 31337

var (
	ErrUnknownNetwork = errors.New("deployment: unknown network")
	ErrMissingOwner   = errors.New("deployment: owner is required")
	ErrNoCaller       = errors.New("deployment: contract caller is required on public networks")
	ErrNoContract     = errors.New("deployment: no contract code at price feed address")
)

// Network describes a chain custody can be deployed against.
type Network struct {
	Name               string
	ChainID            uint64
	EthUsdPriceFeed    common.Address
	BlockConfirmations uint64
}

// DevelopmentChains are the network names served by a mock feed.
var DevelopmentChains = []string{"hardhat", "localhost"}

// Networks is the table of public networks with a known aggregator.
var Networks = map[string]Network{
	"goerli": {
		Name:               "goerli",
		ChainID:            5,
		EthUsdPriceFeed:    common.HexToAddress("0xD4a33860578De61DBAbDc8BFdb98FD742fA7028e"),
		BlockConfirmations: 6,
	},
	"sepolia": {
		Name:               "sepolia",
		ChainID:            11155111,
		EthUsdPriceFeed:    common.HexToAddress("0x694AA1769357215DE4FAC081bf1f309aDC325306"),
		BlockConfirmations: 6,
	},
	"mainnet": {
		Name:               "mainnet",
		ChainID:            1,
		EthUsdPriceFeed:    common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"),
		BlockConfirmations: 6,
	},
}

// IsDevelopment reports whether the network is served by a mock feed,
// either by name or by the local chain ID.
func IsDevelopment(name string, chainID uint64) bool {
	if chainID == DevChainID {
		return true
	}
	name = strings.ToLower(name)
	for _, dev := range DevelopmentChains {
		if name == dev {
			return true
		}
	}
	return false
}

// Lookup returns the network table entry for name. Development chains
// resolve to an entry without an aggregator address.
func Lookup(name string, chainID uint64) (Network, error) {
	if IsDevelopment(name, chainID) {
		if name == "" {
			name = "localhost"
		}
		return Network{Name: strings.ToLower(name), ChainID: DevChainID}, nil
	}
	if n, ok := Networks[strings.ToLower(name)]; ok {
		return n, nil
	}
	for _, n := range Networks {
		if chainID != 0 && n.ChainID == chainID {
			return n, nil
		}
	}
	return Network{}, fmt.Errorf("%w: %q (chain id %d)", ErrUnknownNetwork, name, chainID)
}

// Config selects the network and the deployer account.
type Config struct {
	Network string
	ChainID uint64

	// Owner is the deployer account; it becomes the custody owner.
	Owner common.Address

	// PriceFeed overrides the aggregator from the network table.
	PriceFeed common.Address

	// MaxPriceAge rejects rounds older than this. Zero disables the check.
	// Ignored on development chains.
	MaxPriceAge time.Duration
}

// Deployment is a resolved network binding.
type Deployment struct {
	Network     Network
	Owner       common.Address
	Development bool

	// Feed is the price feed after any wrapping.
	Feed pricefeed.Feed

	// Mock is set on development chains.
	Mock *pricefeed.Mock

	Adapter *pricefeed.Adapter
}

// Option configures Deploy.
type Option func(*options)

type options struct {
	logger *slog.Logger
	wrap   func(pricefeed.Feed) pricefeed.Feed
	mock   *pricefeed.Mock
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithFeedWrapper decorates the resolved feed, e.g. with a shared cache.
func WithFeedWrapper(wrap func(pricefeed.Feed) pricefeed.Feed) Option {
	return func(o *options) { o.wrap = wrap }
}

// WithMock provisions development chains with m instead of a fresh
// default mock.
func WithMock(m *pricefeed.Mock) Option {
	return func(o *options) { o.mock = m }
}

// Deploy resolves cfg into a Deployment. caller may be nil on
// development chains.
func Deploy(ctx context.Context, cfg Config, caller bind.ContractCaller, opts ...Option) (*Deployment, error) {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	if cfg.Owner == (common.Address{}) {
		return nil, ErrMissingOwner
	}

	network, err := Lookup(cfg.Network, cfg.ChainID)
	if err != nil {
		return nil, err
	}

	d := &Deployment{
		Network:     network,
		Owner:       cfg.Owner,
		Development: IsDevelopment(network.Name, network.ChainID),
	}

	if d.Development {
		o.logger.Info("local network detected, deploying mocks",
			"network", network.Name,
			"decimals", pricefeed.MockDecimals,
			"initial_price", pricefeed.MockInitialPrice.String(),
		)
		d.Mock = o.mock
		if d.Mock == nil {
			d.Mock = pricefeed.NewDefaultMock()
		}
		d.Feed = d.Mock
	} else {
		address := network.EthUsdPriceFeed
		if cfg.PriceFeed != (common.Address{}) {
			address = cfg.PriceFeed
		}
		if caller == nil {
			return nil, ErrNoCaller
		}

		code, err := caller.CodeAt(ctx, address, nil)
		if err != nil {
			return nil, fmt.Errorf("deployment: read code at %s: %w", address.Hex(), err)
		}
		if len(code) == 0 {
			return nil, fmt.Errorf("%w: %s on %s", ErrNoContract, address.Hex(), network.Name)
		}

		feed := chainlink.New(address, caller)
		desc, err := feed.Description(ctx)
		if err != nil {
			return nil, fmt.Errorf("deployment: describe feed %s: %w", address.Hex(), err)
		}
		o.logger.Info("bound price feed",
			"network", network.Name,
			"chain_id", network.ChainID,
			"address", address.Hex(),
			"description", desc,
			"block_confirmations", network.BlockConfirmations,
		)
		d.Feed = feed
	}

	if o.wrap != nil {
		d.Feed = o.wrap(d.Feed)
	}

	// the mock publishes a single round; freshness applies to live feeds only
	var adapterOpts []pricefeed.AdapterOption
	if cfg.MaxPriceAge > 0 && !d.Development {
		adapterOpts = append(adapterOpts, pricefeed.WithMaxAge(cfg.MaxPriceAge))
	}
	d.Adapter = pricefeed.NewAdapter(d.Feed, adapterOpts...)

	return d, nil
}
