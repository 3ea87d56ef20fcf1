package withdrawal

import (
	"context"

	"github.com/xraph/custody/id"
)

type Store interface {
	Create(ctx context.Context, w *Withdrawal) error
	// Delete removes a receipt whose transfer did not go through.
	Delete(ctx context.Context, withdrawalID id.WithdrawalID) error
	// Latest returns the receipt with the highest epoch.
	Latest(ctx context.Context) (*Withdrawal, error)
	List(ctx context.Context, opts ListOpts) ([]*Withdrawal, error)
}

// ListOpts pages receipts, newest first.
type ListOpts struct {
	Limit  int
	Offset int
}
