package chainlink

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/custody/pricefeed"
)

var sepolia = common.HexToAddress("0x694AA1769357215DE4FAC081bf1f309aDC325306")

// fakeAggregator answers eth_call by packing canned outputs.
type fakeAggregator struct {
	outputs map[string][]interface{}
	err     error
	calls   int
}

func (f *fakeAggregator) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeAggregator) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	for name, method := range parsedABI.Methods {
		if bytes.Equal(call.Data[:4], method.ID) {
			return method.Outputs.Pack(f.outputs[name]...)
		}
	}
	return nil, errors.New("unknown selector")
}

func newFake(answer int64, updatedAt time.Time, answeredIn int64) *fakeAggregator {
	return &fakeAggregator{outputs: map[string][]interface{}{
		"decimals":    {uint8(8)},
		"description": {"ETH / USD"},
		"latestRoundData": {
			big.NewInt(7),
			big.NewInt(answer),
			big.NewInt(updatedAt.Unix() - 10),
			big.NewInt(updatedAt.Unix()),
			big.NewInt(answeredIn),
		},
	}}
}

func TestFeedReadsAggregator(t *testing.T) {
	updated := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	feed := New(sepolia, newFake(200_000_000_000, updated, 7))

	assert.Equal(t, sepolia.Hex(), feed.Handle())
	assert.Equal(t, sepolia, feed.Address())

	dec, err := feed.Decimals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint8(8), dec)

	desc, err := feed.Description(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ETH / USD", desc)

	round, err := feed.LatestRound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), round.ID.Int64())
	assert.Equal(t, int64(200_000_000_000), round.Answer.Int64())
	assert.True(t, round.UpdatedAt.Equal(updated))
}

func TestFeedThroughAdapter(t *testing.T) {
	updated := time.Now().UTC()
	a := pricefeed.NewAdapter(New(sepolia, newFake(200_000_000_000, updated, 7)), pricefeed.WithMaxAge(time.Hour))

	oneEther := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	got, err := a.Convert(context.Background(), oneEther)
	require.NoError(t, err)

	want := new(big.Int).Mul(big.NewInt(2000), oneEther)
	assert.Equal(t, 0, got.Cmp(want), "got %s", got)
}

func TestFeedIncompleteRoundRejected(t *testing.T) {
	a := pricefeed.NewAdapter(New(sepolia, newFake(200_000_000_000, time.Now(), 6)))

	_, err := a.Convert(context.Background(), big.NewInt(1))
	assert.ErrorIs(t, err, pricefeed.ErrUnavailable)
}

func TestFeedCallError(t *testing.T) {
	fake := newFake(1, time.Now(), 7)
	fake.err = errors.New("connection refused")
	feed := New(sepolia, fake)

	_, err := feed.LatestRound(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	_, err = pricefeed.NewAdapter(feed).Convert(context.Background(), big.NewInt(1))
	assert.ErrorIs(t, err, pricefeed.ErrUnavailable)
}
