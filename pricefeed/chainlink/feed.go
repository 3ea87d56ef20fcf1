// Package chainlink reads prices from an AggregatorV3 contract.
package chainlink

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/custody/pricefeed"
)

// AggregatorV3ABI is the read-only subset of AggregatorV3Interface.
const AggregatorV3ABI = `[{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},{"inputs":[],"name":"description","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"},{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}]`

var parsedABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(AggregatorV3ABI))
	if err != nil {
		panic(fmt.Sprintf("chainlink: parse aggregator abi: %v", err))
	}
	return parsed
}

// Feed is a pricefeed.Feed backed by an on-chain aggregator.
type Feed struct {
	address  common.Address
	contract *bind.BoundContract
}

var _ pricefeed.Feed = (*Feed)(nil)

// New binds the aggregator at address using caller for eth_call.
// *ethclient.Client satisfies bind.ContractCaller.
func New(address common.Address, caller bind.ContractCaller) *Feed {
	return &Feed{
		address:  address,
		contract: bind.NewBoundContract(address, parsedABI, caller, nil, nil),
	}
}

// Address returns the aggregator address.
func (f *Feed) Address() common.Address { return f.address }

// Handle returns the checksummed aggregator address.
func (f *Feed) Handle() string { return f.address.Hex() }

// Decimals calls decimals().
func (f *Feed) Decimals(ctx context.Context) (uint8, error) {
	var out []interface{}
	if err := f.contract.Call(&bind.CallOpts{Context: ctx}, &out, "decimals"); err != nil {
		return 0, fmt.Errorf("chainlink: decimals: %w", err)
	}
	return *abi.ConvertType(out[0], new(uint8)).(*uint8), nil
}

// Description calls description(), e.g. "ETH / USD".
func (f *Feed) Description(ctx context.Context) (string, error) {
	var out []interface{}
	if err := f.contract.Call(&bind.CallOpts{Context: ctx}, &out, "description"); err != nil {
		return "", fmt.Errorf("chainlink: description: %w", err)
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

// LatestRound calls latestRoundData(). A round whose answeredInRound is
// behind its roundId is reported with a zero UpdatedAt so the adapter
// rejects it.
func (f *Feed) LatestRound(ctx context.Context) (pricefeed.Round, error) {
	var out []interface{}
	if err := f.contract.Call(&bind.CallOpts{Context: ctx}, &out, "latestRoundData"); err != nil {
		return pricefeed.Round{}, fmt.Errorf("chainlink: latest round data: %w", err)
	}

	roundID := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	answer := *abi.ConvertType(out[1], new(*big.Int)).(**big.Int)
	updatedAt := *abi.ConvertType(out[3], new(*big.Int)).(**big.Int)
	answeredIn := *abi.ConvertType(out[4], new(*big.Int)).(**big.Int)

	round := pricefeed.Round{ID: roundID, Answer: answer}
	if updatedAt.Sign() > 0 && answeredIn.Cmp(roundID) >= 0 {
		round.UpdatedAt = time.Unix(updatedAt.Int64(), 0).UTC()
	}
	return round, nil
}
