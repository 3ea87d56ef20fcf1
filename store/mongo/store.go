package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	custody "github.com/xraph/custody"
	"github.com/xraph/custody/contribution"
	"github.com/xraph/custody/id"
	custodystore "github.com/xraph/custody/store"
	"github.com/xraph/custody/withdrawal"
)

// Collection name constants.
const (
	colContributions = "custody_contributions"
	colWithdrawals   = "custody_withdrawals"
)

// compile-time interface check
var _ custodystore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all custody collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("custody/mongo: migrate %s indexes: %w", col, err)
		}
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
	_, err := s.mdb.NewInsert(toContributionModel(c)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return custody.ErrAlreadyExists
		}
		return fmt.Errorf("custody/mongo: append contribution: %w", err)
	}
	return nil
}

func (s *Store) ListContributions(ctx context.Context, epoch uint64) ([]*contribution.Contribution, error) {
	var models []contributionModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"epoch": int64(epoch)}).
		Sort(bson.D{{Key: "seq", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("custody/mongo: list contributions: %w", err)
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
	_, err := s.mdb.NewInsert(toWithdrawalModel(w)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return custody.ErrAlreadyExists
		}
		return fmt.Errorf("custody/mongo: create withdrawal: %w", err)
	}
	return nil
}

func (s *Store) DeleteWithdrawal(ctx context.Context, withdrawalID id.WithdrawalID) error {
	res, err := s.mdb.NewDelete((*withdrawalModel)(nil)).
		Filter(bson.M{"_id": withdrawalID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("custody/mongo: delete withdrawal: %w", err)
	}
	if res.DeletedCount() == 0 {
		return custody.ErrWithdrawalNotFound
	}
	return nil
}

func (s *Store) LatestWithdrawal(ctx context.Context) (*withdrawal.Withdrawal, error) {
	var m withdrawalModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "epoch", Value: -1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, custody.ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("custody/mongo: latest withdrawal: %w", err)
	}
	return fromWithdrawalModel(&m)
}

func (s *Store) ListWithdrawals(ctx context.Context, opts withdrawal.ListOpts) ([]*withdrawal.Withdrawal, error) {
	var models []withdrawalModel

	q := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "epoch", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("custody/mongo: list withdrawals: %w", err)
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

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all custody collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colContributions: {
			{
				Keys:    bson.D{{Key: "epoch", Value: 1}, {Key: "seq", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "contributor", Value: 1}}},
		},
		colWithdrawals: {
			{
				Keys:    bson.D{{Key: "epoch", Value: -1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}
}
