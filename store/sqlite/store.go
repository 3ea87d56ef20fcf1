package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate" // registers the sqlite migration executor
	"github.com/xraph/grove/migrate"

	custody "github.com/xraph/custody"
	"github.com/xraph/custody/contribution"
	"github.com/xraph/custody/id"
	custodystore "github.com/xraph/custody/store"
	"github.com/xraph/custody/withdrawal"
)

// compile-time interface check
var _ custodystore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("custody/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("custody/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Contribution Store ====================

func (s *Store) AppendContribution(ctx context.Context, c *contribution.Contribution) error {
	_, err := s.sdb.NewInsert(toContributionModel(c)).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return custody.ErrAlreadyExists
		}
		return fmt.Errorf("custody/sqlite: append contribution: %w", err)
	}
	return nil
}

func (s *Store) ListContributions(ctx context.Context, epoch uint64) ([]*contribution.Contribution, error) {
	var models []contributionModel
	err := s.sdb.NewSelect(&models).
		Where("epoch = ?", int64(epoch)).
		OrderExpr("seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("custody/sqlite: list contributions: %w", err)
	}

	result := make([]*contribution.Contribution, len(models))
	for i := range models {
		c, err := fromContributionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

// ==================== Withdrawal Store ====================

func (s *Store) CreateWithdrawal(ctx context.Context, w *withdrawal.Withdrawal) error {
	_, err := s.sdb.NewInsert(toWithdrawalModel(w)).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return custody.ErrAlreadyExists
		}
		return fmt.Errorf("custody/sqlite: create withdrawal: %w", err)
	}
	return nil
}

func (s *Store) DeleteWithdrawal(ctx context.Context, withdrawalID id.WithdrawalID) error {
	res, err := s.sdb.NewDelete((*withdrawalModel)(nil)).
		Where("id = ?", withdrawalID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("custody/sqlite: delete withdrawal: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return custody.ErrWithdrawalNotFound
	}
	return nil
}

func (s *Store) LatestWithdrawal(ctx context.Context) (*withdrawal.Withdrawal, error) {
	m := new(withdrawalModel)
	err := s.sdb.NewSelect(m).
		OrderExpr("epoch DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, custody.ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("custody/sqlite: latest withdrawal: %w", err)
	}
	return fromWithdrawalModel(m)
}

func (s *Store) ListWithdrawals(ctx context.Context, opts withdrawal.ListOpts) ([]*withdrawal.Withdrawal, error) {
	var models []withdrawalModel
	q := s.sdb.NewSelect(&models).OrderExpr("epoch DESC")
	switch {
	case opts.Limit > 0:
		q = q.Limit(opts.Limit)
	case opts.Offset > 0:
		// sqlite only accepts OFFSET after a LIMIT
		q = q.Limit(math.MaxInt)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("custody/sqlite: list withdrawals: %w", err)
	}

	result := make([]*withdrawal.Withdrawal, len(models))
	for i := range models {
		w, err := fromWithdrawalModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = w
	}
	return result, nil
}

// ==================== Helpers ====================

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation matches SQLITE_CONSTRAINT_UNIQUE and _PRIMARYKEY.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: PRIMARY KEY")
}
