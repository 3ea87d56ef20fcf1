// Package payout moves withdrawn funds to the owner.
package payout

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ErrRejected is returned by Accounts when a transfer is refused.
var ErrRejected = errors.New("payout: transfer rejected")

// Transferer sends amount to the recipient. ref identifies the withdrawal
// and may be used as an idempotency key. A nil error means the whole
// amount arrived.
type Transferer interface {
	Transfer(ctx context.Context, to common.Address, amount *big.Int, ref string) error
}

// Func adapts a function to Transferer.
type Func func(ctx context.Context, to common.Address, amount *big.Int, ref string) error

func (f Func) Transfer(ctx context.Context, to common.Address, amount *big.Int, ref string) error {
	return f(ctx, to, amount, ref)
}

// Accounts is an in-process balance book crediting recipients.
type Accounts struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	refs     []string
	failWith error
}

// NewAccounts returns an empty book.
func NewAccounts() *Accounts {
	return &Accounts{balances: make(map[common.Address]*big.Int)}
}

// Fail makes every transfer return err until called with nil.
func (a *Accounts) Fail(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failWith = err
}

func (a *Accounts) Transfer(ctx context.Context, to common.Address, amount *big.Int, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: invalid amount %v", ErrRejected, amount)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.failWith != nil {
		return fmt.Errorf("%w: %w", ErrRejected, a.failWith)
	}
	prior, ok := a.balances[to]
	if !ok {
		prior = new(big.Int)
	}
	a.balances[to] = new(big.Int).Add(prior, amount)
	a.refs = append(a.refs, ref)
	return nil
}

// Balance returns what has been credited to addr.
func (a *Accounts) Balance(addr common.Address) *big.Int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if v, ok := a.balances[addr]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// Refs returns the references of successful transfers in order.
func (a *Accounts) Refs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.refs))
	copy(out, a.refs)
	return out
}
