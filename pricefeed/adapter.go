package pricefeed

import (
	"context"
	"fmt"
	"math/big"
	"time"
)

// Adapter binds a Feed and converts native amounts with it.
type Adapter struct {
	feed   Feed
	maxAge time.Duration
	now    func() time.Time
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithMaxAge rejects rounds older than d. Zero disables the check.
func WithMaxAge(d time.Duration) AdapterOption {
	return func(a *Adapter) { a.maxAge = d }
}

// WithClock overrides the time source used for staleness checks.
func WithClock(now func() time.Time) AdapterOption {
	return func(a *Adapter) { a.now = now }
}

// NewAdapter creates an Adapter bound to feed.
func NewAdapter(feed Feed, opts ...AdapterOption) *Adapter {
	a := &Adapter{feed: feed, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// PriceFeed returns the handle of the bound feed.
func (a *Adapter) PriceFeed() string { return a.feed.Handle() }

// Feed returns the bound feed.
func (a *Adapter) Feed() Feed { return a.feed }

// Price returns the latest usable answer and its decimals.
func (a *Adapter) Price(ctx context.Context) (*big.Int, uint8, error) {
	round, err := a.feed.LatestRound(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: latest round: %w", ErrUnavailable, err)
	}
	if round.Answer == nil || round.Answer.Sign() <= 0 {
		return nil, 0, fmt.Errorf("%w: invalid answer %v", ErrUnavailable, round.Answer)
	}
	if round.UpdatedAt.IsZero() {
		return nil, 0, fmt.Errorf("%w: round not complete", ErrUnavailable)
	}
	if a.maxAge > 0 {
		if age := a.now().Sub(round.UpdatedAt); age > a.maxAge {
			return nil, 0, fmt.Errorf("%w: stale round, age %s exceeds %s", ErrUnavailable, age, a.maxAge)
		}
	}

	decimals, err := a.feed.Decimals(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: decimals: %w", ErrUnavailable, err)
	}
	return round.Answer, decimals, nil
}

// Convert returns native * price / 10^decimals, truncated. The result
// keeps the native asset's decimals.
func (a *Adapter) Convert(ctx context.Context, native *big.Int) (*big.Int, error) {
	price, decimals, err := a.Price(ctx)
	if err != nil {
		return nil, err
	}
	if native == nil {
		return new(big.Int), nil
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	out := new(big.Int).Mul(native, price)
	return out.Quo(out, scale), nil
}
