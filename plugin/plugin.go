// Package plugin provides an extensible plugin system for custody.
// Plugins hook into lifecycle events to extend functionality.
package plugin

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/custody/contribution"
	"github.com/xraph/custody/withdrawal"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the custody service starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, c interface{}) error
}

// OnShutdown is called when the custody service stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Funding hooks
// ──────────────────────────────────────────────────

// OnFunded is called after a contribution is journaled and recorded.
// balance is the ledger total after the contribution.
type OnFunded interface {
	Plugin
	OnFunded(ctx context.Context, c *contribution.Contribution, balance *big.Int) error
}

// OnFundRejected is called when a fund call fails, for any reason.
type OnFundRejected interface {
	Plugin
	OnFundRejected(ctx context.Context, contributor common.Address, amount *big.Int, reason error) error
}

// ──────────────────────────────────────────────────
// Withdrawal hooks
// ──────────────────────────────────────────────────

// OnWithdrawn is called after the balance reached the owner and the
// ledger was reset.
type OnWithdrawn interface {
	Plugin
	OnWithdrawn(ctx context.Context, w *withdrawal.Withdrawal) error
}

// OnWithdrawFailed is called when a withdrawal is refused or aborted.
type OnWithdrawFailed interface {
	Plugin
	OnWithdrawFailed(ctx context.Context, caller common.Address, strategy string, reason error) error
}
