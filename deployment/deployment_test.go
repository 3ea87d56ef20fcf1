package deployment_test

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/custody/deployment"
	"github.com/xraph/custody/pricefeed"
	"github.com/xraph/custody/pricefeed/chainlink"
)

var deployer = common.HexToAddress("0x00000000000000000000000000000000000000aa")

type fakeChain struct {
	aggregator abi.ABI
	code       map[common.Address][]byte
	codeErr    error
}

func newFakeChain(t *testing.T, deployed ...common.Address) *fakeChain {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(chainlink.AggregatorV3ABI))
	require.NoError(t, err)
	c := &fakeChain{aggregator: parsed, code: map[common.Address][]byte{}}
	for _, a := range deployed {
		c.code[a] = []byte{0x60, 0x80}
	}
	return c
}

func (c *fakeChain) CodeAt(_ context.Context, a common.Address, _ *big.Int) ([]byte, error) {
	if c.codeErr != nil {
		return nil, c.codeErr
	}
	return c.code[a], nil
}

func (c *fakeChain) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	for name, m := range c.aggregator.Methods {
		if !bytes.Equal(call.Data[:4], m.ID) {
			continue
		}
		switch name {
		case "description":
			return m.Outputs.Pack("ETH / USD")
		case "decimals":
			return m.Outputs.Pack(uint8(8))
		}
	}
	return nil, errors.New("unsupported call")
}

func TestIsDevelopment(t *testing.T) {
	assert.True(t, deployment.IsDevelopment("hardhat", 0))
	assert.True(t, deployment.IsDevelopment("Localhost", 0))
	assert.True(t, deployment.IsDevelopment("anything", deployment.DevChainID))
	assert.False(t, deployment.IsDevelopment("sepolia", 11155111))
}

func TestLookup(t *testing.T) {
	n, err := deployment.Lookup("sepolia", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(11155111), n.ChainID)
	assert.Equal(t, common.HexToAddress("0x694AA1769357215DE4FAC081bf1f309aDC325306"), n.EthUsdPriceFeed)

	n, err = deployment.Lookup("", 5)
	require.NoError(t, err)
	assert.Equal(t, "goerli", n.Name)

	n, err = deployment.Lookup("", deployment.DevChainID)
	require.NoError(t, err)
	assert.Equal(t, "localhost", n.Name)

	_, err = deployment.Lookup("ropsten", 0)
	assert.ErrorIs(t, err, deployment.ErrUnknownNetwork)
}

func TestDeployDevelopmentChainUsesMock(t *testing.T) {
	d, err := deployment.Deploy(context.Background(), deployment.Config{
		Network: "hardhat",
		Owner:   deployer,
	}, nil)
	require.NoError(t, err)

	assert.True(t, d.Development)
	require.NotNil(t, d.Mock)
	assert.Equal(t, deployer, d.Owner)
	assert.Equal(t, pricefeed.MockHandle, d.Adapter.PriceFeed())

	usd, err := d.Adapter.Convert(context.Background(), big.NewInt(1_000_000_000_000_000_000))
	require.NoError(t, err)
	assert.Equal(t, 0, usd.Cmp(pricefeed.MockInitialPrice))
}

func TestDeployDevelopmentChainIgnoresPriceAge(t *testing.T) {
	mock := pricefeed.NewDefaultMock()
	d, err := deployment.Deploy(context.Background(), deployment.Config{
		Network:     "localhost",
		Owner:       deployer,
		MaxPriceAge: time.Hour,
	}, nil, deployment.WithMock(mock))
	require.NoError(t, err)

	mock.SetUpdatedAt(time.Now().Add(-61 * time.Minute))

	usd, err := d.Adapter.Convert(context.Background(), big.NewInt(1_000_000_000_000_000_000))
	require.NoError(t, err)
	assert.Equal(t, 0, usd.Cmp(pricefeed.MockInitialPrice))
}

func TestDeployPublicNetworkBindsAggregator(t *testing.T) {
	sepolia := deployment.Networks["sepolia"]
	chain := newFakeChain(t, sepolia.EthUsdPriceFeed)

	var wrapped bool
	d, err := deployment.Deploy(context.Background(), deployment.Config{
		Network: "sepolia",
		Owner:   deployer,
	}, chain, deployment.WithFeedWrapper(func(f pricefeed.Feed) pricefeed.Feed {
		wrapped = true
		return f
	}))
	require.NoError(t, err)

	assert.False(t, d.Development)
	assert.Nil(t, d.Mock)
	assert.True(t, wrapped)
	assert.Equal(t, sepolia.EthUsdPriceFeed.Hex(), d.Adapter.PriceFeed())
	assert.Equal(t, uint64(6), d.Network.BlockConfirmations)
}

func TestDeployPriceFeedOverride(t *testing.T) {
	custom := common.HexToAddress("0x0000000000000000000000000000000000001234")
	chain := newFakeChain(t, custom)

	d, err := deployment.Deploy(context.Background(), deployment.Config{
		Network:   "mainnet",
		Owner:     deployer,
		PriceFeed: custom,
	}, chain)
	require.NoError(t, err)
	assert.Equal(t, custom.Hex(), d.Feed.Handle())
}

func TestDeployFailures(t *testing.T) {
	ctx := context.Background()

	_, err := deployment.Deploy(ctx, deployment.Config{Network: "hardhat"}, nil)
	assert.ErrorIs(t, err, deployment.ErrMissingOwner)

	_, err = deployment.Deploy(ctx, deployment.Config{Network: "sepolia", Owner: deployer}, nil)
	assert.ErrorIs(t, err, deployment.ErrNoCaller)

	_, err = deployment.Deploy(ctx, deployment.Config{Network: "sepolia", Owner: deployer}, newFakeChain(t))
	assert.ErrorIs(t, err, deployment.ErrNoContract)

	chain := newFakeChain(t)
	chain.codeErr = errors.New("connection refused")
	_, err = deployment.Deploy(ctx, deployment.Config{Network: "sepolia", Owner: deployer}, chain)
	assert.ErrorContains(t, err, "connection refused")

	_, err = deployment.Deploy(ctx, deployment.Config{Network: "kovan", Owner: deployer}, nil)
	assert.ErrorIs(t, err, deployment.ErrUnknownNetwork)
}
