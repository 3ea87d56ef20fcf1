package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate" // registers the postgres migration executor
	"github.com/xraph/grove/migrate"

	custody "github.com/xraph/custody"
	"github.com/xraph/custody/contribution"
	"github.com/xraph/custody/id"
	custodystore "github.com/xraph/custody/store"
	"github.com/xraph/custody/withdrawal"
)

// compile-time interface check
var _ custodystore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("custody/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("custody/postgres: migration failed: %w", err)
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
	_, err := s.pg.NewInsert(toContributionModel(c)).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return custody.ErrAlreadyExists
		}
		return fmt.Errorf("custody/postgres: append contribution: %w", err)
	}
	return nil
}

func (s *Store) ListContributions(ctx context.Context, epoch uint64) ([]*contribution.Contribution, error) {
	var models []contributionModel
	err := s.pg.NewSelect(&models).
		Where("epoch = $1", int64(epoch)).
		OrderExpr("seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("custody/postgres: list contributions: %w", err)
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
	_, err := s.pg.NewInsert(toWithdrawalModel(w)).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return custody.ErrAlreadyExists
		}
		return fmt.Errorf("custody/postgres: create withdrawal: %w", err)
	}
	return nil
}

func (s *Store) DeleteWithdrawal(ctx context.Context, withdrawalID id.WithdrawalID) error {
	res, err := s.pg.NewDelete((*withdrawalModel)(nil)).
		Where("id = $1", withdrawalID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("custody/postgres: delete withdrawal: %w", err)
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
	err := s.pg.NewSelect(m).
		OrderExpr("epoch DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, custody.ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("custody/postgres: latest withdrawal: %w", err)
	}
	return fromWithdrawalModel(m)
}

func (s *Store) ListWithdrawals(ctx context.Context, opts withdrawal.ListOpts) ([]*withdrawal.Withdrawal, error) {
	var models []withdrawalModel
	q := s.pg.NewSelect(&models).OrderExpr("epoch DESC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("custody/postgres: list withdrawals: %w", err)
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

// isUniqueViolation matches SQLSTATE 23505.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key value")
}
