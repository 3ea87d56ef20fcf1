// Package leveldb implements store.Store on an embedded goleveldb
// database, for single-node deployments without an external database.
//
// Key layout:
//
//	ctb/<epoch>/<seq>  -> contribution JSON
//	ctbid/<id>         -> ctb key
//	wdr/<epoch>        -> withdrawal JSON
//	wdrid/<id>         -> wdr key
//
// Epoch and seq are fixed-width hex so that lexical order is numeric order.
package leveldb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/xraph/custody"
	"github.com/xraph/custody/contribution"
	"github.com/xraph/custody/id"
	custodystore "github.com/xraph/custody/store"
	"github.com/xraph/custody/withdrawal"
)

var _ custodystore.Store = (*Store)(nil)

const (
	prefixContribution   = "ctb/"
	prefixContributionID = "ctbid/"
	prefixWithdrawal     = "wdr/"
	prefixWithdrawalID   = "wdrid/"
)

// Store implements store.Store using goleveldb.
type Store struct {
	db *leveldb.DB
	// serializes check-then-write sequences
	mu sync.Mutex
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("custody/leveldb: open %s: %w", path, err)
	}
	return New(db), nil
}

// OpenMemory opens a database held entirely in memory.
func OpenMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("custody/leveldb: open memory: %w", err)
	}
	return New(db), nil
}

// New wraps an open database.
func New(db *leveldb.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *leveldb.DB { return s.db }

func contributionKey(epoch, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%016x/%016x", prefixContribution, epoch, seq))
}

func withdrawalKey(epoch uint64) []byte {
	return []byte(fmt.Sprintf("%s%016x", prefixWithdrawal, epoch))
}

// ==================== Contribution Store ====================

func (s *Store) AppendContribution(_ context.Context, c *contribution.Contribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := contributionKey(c.Epoch, c.Seq)
	idKey := []byte(prefixContributionID + c.ID.String())

	for _, k := range [][]byte{key, idKey} {
		exists, err := s.db.Has(k, nil)
		if err != nil {
			return wrap("append contribution", err)
		}
		if exists {
			return custody.ErrAlreadyExists
		}
	}

	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("custody/leveldb: encode contribution: %w", err)
	}

	batch := new(leveldb.Batch)
	batch.Put(key, raw)
	batch.Put(idKey, key)
	return wrap("append contribution", s.db.Write(batch, nil))
}

func (s *Store) ListContributions(_ context.Context, epoch uint64) ([]*contribution.Contribution, error) {
	prefix := []byte(fmt.Sprintf("%s%016x/", prefixContribution, epoch))
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var result []*contribution.Contribution
	for iter.Next() {
		c := new(contribution.Contribution)
		if err := json.Unmarshal(iter.Value(), c); err != nil {
			return nil, fmt.Errorf("custody/leveldb: decode contribution %s: %w", iter.Key(), err)
		}
		result = append(result, c)
	}
	if err := iter.Error(); err != nil {
		return nil, wrap("list contributions", err)
	}
	return result, nil
}

// ==================== Withdrawal Store ====================

func (s *Store) CreateWithdrawal(_ context.Context, w *withdrawal.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := withdrawalKey(w.Epoch)
	idKey := []byte(prefixWithdrawalID + w.ID.String())

	for _, k := range [][]byte{key, idKey} {
		exists, err := s.db.Has(k, nil)
		if err != nil {
			return wrap("create withdrawal", err)
		}
		if exists {
			return custody.ErrAlreadyExists
		}
	}

	raw, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("custody/leveldb: encode withdrawal: %w", err)
	}

	batch := new(leveldb.Batch)
	batch.Put(key, raw)
	batch.Put(idKey, key)
	return wrap("create withdrawal", s.db.Write(batch, nil))
}

func (s *Store) DeleteWithdrawal(_ context.Context, withdrawalID id.WithdrawalID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idKey := []byte(prefixWithdrawalID + withdrawalID.String())
	key, err := s.db.Get(idKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return custody.ErrWithdrawalNotFound
	}
	if err != nil {
		return wrap("delete withdrawal", err)
	}

	batch := new(leveldb.Batch)
	batch.Delete(key)
	batch.Delete(idKey)
	return wrap("delete withdrawal", s.db.Write(batch, nil))
}

func (s *Store) LatestWithdrawal(_ context.Context) (*withdrawal.Withdrawal, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefixWithdrawal)), nil)
	defer iter.Release()

	if !iter.Last() {
		if err := iter.Error(); err != nil {
			return nil, wrap("latest withdrawal", err)
		}
		return nil, custody.ErrWithdrawalNotFound
	}
	return decodeWithdrawal(iter.Key(), iter.Value())
}

func (s *Store) ListWithdrawals(_ context.Context, opts withdrawal.ListOpts) ([]*withdrawal.Withdrawal, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefixWithdrawal)), nil)
	defer iter.Release()

	result := []*withdrawal.Withdrawal{}
	skipped := 0
	for ok := iter.Last(); ok; ok = iter.Prev() {
		if skipped < opts.Offset {
			skipped++
			continue
		}
		w, err := decodeWithdrawal(iter.Key(), iter.Value())
		if err != nil {
			return nil, err
		}
		result = append(result, w)
		if opts.Limit > 0 && len(result) >= opts.Limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, wrap("list withdrawals", err)
	}
	return result, nil
}

func decodeWithdrawal(key, raw []byte) (*withdrawal.Withdrawal, error) {
	w := new(withdrawal.Withdrawal)
	if err := json.Unmarshal(raw, w); err != nil {
		return nil, fmt.Errorf("custody/leveldb: decode withdrawal %s: %w", key, err)
	}
	return w, nil
}

// ==================== Core ====================

// Migrate is a no-op; the key layout needs no schema.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping checks that the database is open.
func (s *Store) Ping(_ context.Context) error {
	if _, err := s.db.GetProperty("leveldb.stats"); err != nil {
		return wrap("ping", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return wrap("close", s.db.Close())
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, leveldb.ErrClosed) {
		return fmt.Errorf("custody/leveldb: %s: %w", op, custody.ErrStoreClosed)
	}
	return fmt.Errorf("custody/leveldb: %s: %w", op, err)
}
