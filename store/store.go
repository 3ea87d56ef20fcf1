package store

import (
	"context"

	"github.com/xraph/custody/contribution"
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/withdrawal"
)

// Store is the unified journal interface for custody records. The
// in-memory ledger is authoritative while running; the store lets it be
// rebuilt on start and keeps the withdrawal history.
type Store interface {
	// Contribution methods
	AppendContribution(ctx context.Context, c *contribution.Contribution) error
	ListContributions(ctx context.Context, epoch uint64) ([]*contribution.Contribution, error)

	// Withdrawal methods
	CreateWithdrawal(ctx context.Context, w *withdrawal.Withdrawal) error
	DeleteWithdrawal(ctx context.Context, withdrawalID id.WithdrawalID) error
	LatestWithdrawal(ctx context.Context) (*withdrawal.Withdrawal, error)
	ListWithdrawals(ctx context.Context, opts withdrawal.ListOpts) ([]*withdrawal.Withdrawal, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
