package pricefeed

import (
	"context"
	"math/big"
	"sync"
	"time"
)

// Mock defaults, matching the local development aggregator.
const (
	MockDecimals = 18
	MockHandle   = "mock:eth-usd"
)

// MockInitialPrice is 2000 USD with 18 decimals.
var MockInitialPrice = new(big.Int).Mul(big.NewInt(2000), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// Mock is a deterministic Feed with a fixed decimals/answer pair.
type Mock struct {
	mu       sync.RWMutex
	handle   string
	decimals uint8
	round    Round
	err      error
}

// NewMock creates a Mock publishing answer with decimals.
func NewMock(decimals uint8, answer *big.Int) *Mock {
	return &Mock{
		handle:   MockHandle,
		decimals: decimals,
		round: Round{
			ID:        big.NewInt(1),
			Answer:    new(big.Int).Set(answer),
			UpdatedAt: time.Now().UTC(),
		},
	}
}

// NewDefaultMock returns a Mock quoting 2000 USD with 18 decimals.
func NewDefaultMock() *Mock { return NewMock(MockDecimals, MockInitialPrice) }

// WithHandle sets the handle reported by the mock.
func (m *Mock) WithHandle(handle string) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handle = handle
	return m
}

// UpdateAnswer publishes a new round.
func (m *Mock) UpdateAnswer(answer *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.round = Round{
		ID:        new(big.Int).Add(m.round.ID, big.NewInt(1)),
		Answer:    new(big.Int).Set(answer),
		UpdatedAt: time.Now().UTC(),
	}
}

// SetUpdatedAt backdates the current round.
func (m *Mock) SetUpdatedAt(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.round.UpdatedAt = t
}

// Fail makes every read return err until called with nil.
func (m *Mock) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *Mock) LatestRound(context.Context) (Round, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return Round{}, m.err
	}
	r := m.round
	r.ID = new(big.Int).Set(r.ID)
	r.Answer = new(big.Int).Set(r.Answer)
	return r, nil
}

func (m *Mock) Decimals(context.Context) (uint8, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return 0, m.err
	}
	return m.decimals, nil
}

func (m *Mock) Handle() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.handle
}
