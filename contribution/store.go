package contribution

import "context"

type Store interface {
	// Append journals c. IDs are unique; (Epoch, Seq) is unique.
	Append(ctx context.Context, c *Contribution) error
	// ListByEpoch returns the contributions of epoch ordered by Seq.
	ListByEpoch(ctx context.Context, epoch uint64) ([]*Contribution, error)
}
