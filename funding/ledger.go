// Package funding implements the contributor bookkeeping behind custody:
// cumulative amounts per contributor, the insertion-ordered list of
// distinct contributors, and the running total.
package funding

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrIndexOutOfRange = errors.New("funding: contributor index out of range")
	ErrInvalidAmount   = errors.New("funding: amount must be positive")
)

// Entry is a single contribution used to rebuild a ledger.
type Entry struct {
	Contributor common.Address
	Amount      *big.Int
}

// Ledger is safe for concurrent use. Readers never observe a partially
// applied Record or Reset.
type Ledger struct {
	mu           sync.RWMutex
	amounts      map[common.Address]*big.Int
	contributors []common.Address
	total        *big.Int
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		amounts: make(map[common.Address]*big.Int),
		total:   new(big.Int),
	}
}

// Record adds amount to contributor's cumulative amount. A contributor is
// appended to the list only when their prior amount was zero.
func (l *Ledger) Record(contributor common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.record(contributor, amount)
	return nil
}

func (l *Ledger) record(contributor common.Address, amount *big.Int) {
	prior, ok := l.amounts[contributor]
	if !ok || prior.Sign() == 0 {
		l.contributors = append(l.contributors, contributor)
		prior = new(big.Int)
	}
	l.amounts[contributor] = new(big.Int).Add(prior, amount)
	l.total = new(big.Int).Add(l.total, amount)
}

// AmountOf returns the cumulative amount of contributor, zero if unknown.
func (l *Ledger) AmountOf(contributor common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if v, ok := l.amounts[contributor]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// ContributorAt returns the contributor at index in insertion order.
func (l *Ledger) ContributorAt(index int) (common.Address, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if index < 0 || index >= len(l.contributors) {
		return common.Address{}, fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfRange, index, len(l.contributors))
	}
	return l.contributors[index], nil
}

// TotalBalance returns the sum of all cumulative amounts.
func (l *Ledger) TotalBalance() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return new(big.Int).Set(l.total)
}

// Len returns the number of distinct contributors.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.contributors)
}

// Contributors returns a copy of the contributor list.
func (l *Ledger) Contributors() []common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]common.Address, len(l.contributors))
	copy(out, l.contributors)
	return out
}

// Reset zeroes every contributor, empties the list and the total. The
// whole reset runs under the write lock.
func (l *Ledger) Reset(strategy Strategy) {
	if strategy == nil {
		strategy = DirectReset
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	strategy.clear(l)
	l.contributors = l.contributors[:0]
	l.total = new(big.Int)
}

// Restore replaces the ledger state with entries replayed in order.
// Entries with a non-positive amount are skipped.
func (l *Ledger) Restore(entries []Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.amounts = make(map[common.Address]*big.Int, len(entries))
	l.contributors = nil
	l.total = new(big.Int)

	for _, e := range entries {
		if e.Amount == nil || e.Amount.Sign() <= 0 {
			continue
		}
		l.record(e.Contributor, e.Amount)
	}
}
