// Package pricefeed converts native-asset amounts into the reference
// currency using an external price source.
package pricefeed

import (
	"context"
	"errors"
	"math/big"
	"time"
)

// ErrUnavailable is returned when the price cannot be read or is not
// usable. An unreadable price is never treated as zero.
var ErrUnavailable = errors.New("pricefeed: price unavailable")

// Round is one answer published by a feed.
type Round struct {
	ID        *big.Int
	Answer    *big.Int
	UpdatedAt time.Time
}

// Feed is a read-only price source quoting one unit of the native asset
// in the reference currency.
type Feed interface {
	LatestRound(ctx context.Context) (Round, error)
	Decimals(ctx context.Context) (uint8, error)
	// Handle is the opaque reference (usually the aggregator address).
	Handle() string
}
