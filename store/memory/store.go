// Package memory provides an in-process store.Store for tests and
// single-node development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xraph/custody"
	"github.com/xraph/custody/contribution"
	"github.com/xraph/custody/id"
	custodystore "github.com/xraph/custody/store"
	"github.com/xraph/custody/withdrawal"
)

var _ custodystore.Store = (*Store)(nil)

type seqKey struct {
	epoch uint64
	seq   uint64
}

type Store struct {
	mu     sync.RWMutex
	closed bool

	// Contribution journal
	contributions map[string]*contribution.Contribution
	bySeq         map[seqKey]string

	// Withdrawal receipts
	withdrawals map[string]*withdrawal.Withdrawal
}

func New() *Store {
	return &Store{
		contributions: make(map[string]*contribution.Contribution),
		bySeq:         make(map[seqKey]string),
		withdrawals:   make(map[string]*withdrawal.Withdrawal),
	}
}

// Contribution Store implementation
func (s *Store) AppendContribution(_ context.Context, c *contribution.Contribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return custody.ErrStoreClosed
	}
	if _, exists := s.contributions[c.ID.String()]; exists {
		return custody.ErrAlreadyExists
	}
	key := seqKey{epoch: c.Epoch, seq: c.Seq}
	if _, exists := s.bySeq[key]; exists {
		return custody.ErrAlreadyExists
	}

	cp := *c
	s.contributions[c.ID.String()] = &cp
	s.bySeq[key] = c.ID.String()
	return nil
}

func (s *Store) ListContributions(_ context.Context, epoch uint64) ([]*contribution.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, custody.ErrStoreClosed
	}

	var result []*contribution.Contribution
	for _, c := range s.contributions {
		if c.Epoch == epoch {
			cp := *c
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Seq < result[j].Seq })
	return result, nil
}

// Withdrawal Store implementation
func (s *Store) CreateWithdrawal(_ context.Context, w *withdrawal.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return custody.ErrStoreClosed
	}
	if _, exists := s.withdrawals[w.ID.String()]; exists {
		return custody.ErrAlreadyExists
	}
	for _, existing := range s.withdrawals {
		if existing.Epoch == w.Epoch {
			return custody.ErrAlreadyExists
		}
	}

	cp := *w
	s.withdrawals[w.ID.String()] = &cp
	return nil
}

func (s *Store) DeleteWithdrawal(_ context.Context, withdrawalID id.WithdrawalID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return custody.ErrStoreClosed
	}
	if _, ok := s.withdrawals[withdrawalID.String()]; !ok {
		return custody.ErrWithdrawalNotFound
	}
	delete(s.withdrawals, withdrawalID.String())
	return nil
}

func (s *Store) LatestWithdrawal(_ context.Context) (*withdrawal.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, custody.ErrStoreClosed
	}

	var latest *withdrawal.Withdrawal
	for _, w := range s.withdrawals {
		if latest == nil || w.Epoch > latest.Epoch {
			latest = w
		}
	}
	if latest == nil {
		return nil, custody.ErrWithdrawalNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *Store) ListWithdrawals(_ context.Context, opts withdrawal.ListOpts) ([]*withdrawal.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, custody.ErrStoreClosed
	}

	result := make([]*withdrawal.Withdrawal, 0, len(s.withdrawals))
	for _, w := range s.withdrawals {
		cp := *w
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Epoch > result[j].Epoch })

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return []*withdrawal.Withdrawal{}, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// Core methods
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return custody.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
