// Package storetest holds the behaviour every store.Store backend must
// share. Backends call Run from their own tests.
package storetest

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/custody"
	"github.com/xraph/custody/contribution"
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/store"
	"github.com/xraph/custody/types"
	"github.com/xraph/custody/withdrawal"
)

// Factory returns a fresh, migrated store. Run closes it.
type Factory func(t *testing.T) store.Store

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	owner = common.HexToAddress("0x00000000000000000000000000000000000000ff")
)

// NewContribution builds a journal entry for tests.
func NewContribution(epoch, seq uint64, who common.Address, wei int64) *contribution.Contribution {
	return &contribution.Contribution{
		Entity:         types.Entity{CreatedAt: time.Now().UTC().Truncate(time.Millisecond)},
		ID:             id.NewContributionID(),
		Epoch:          epoch,
		Seq:            seq,
		Contributor:    who,
		Amount:         big.NewInt(wei),
		ReferenceValue: big.NewInt(wei * 2000),
		PriceFeed:      "mock:eth-usd",
	}
}

// NewWithdrawal builds a receipt for tests.
func NewWithdrawal(epoch uint64, wei int64) *withdrawal.Withdrawal {
	return &withdrawal.Withdrawal{
		Entity:       types.Entity{CreatedAt: time.Now().UTC().Truncate(time.Millisecond)},
		ID:           id.NewWithdrawalID(),
		Epoch:        epoch,
		Owner:        owner,
		Amount:       big.NewInt(wei),
		Contributors: 2,
		Strategy:     "snapshot",
	}
}

// Run exercises the journal contract against the factory's backend.
func Run(t *testing.T, factory Factory) {
	t.Helper()

	t.Run("ContributionsByEpochInSeqOrder", func(t *testing.T) {
		s := factory(t)
		defer s.Close()
		ctx := context.Background()

		require.NoError(t, s.AppendContribution(ctx, NewContribution(0, 2, bob, 20)))
		require.NoError(t, s.AppendContribution(ctx, NewContribution(0, 1, alice, 10)))
		require.NoError(t, s.AppendContribution(ctx, NewContribution(1, 1, alice, 99)))

		got, err := s.ListContributions(ctx, 0)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, uint64(1), got[0].Seq)
		assert.Equal(t, alice, got[0].Contributor)
		assert.Equal(t, 0, got[0].Amount.Cmp(big.NewInt(10)))
		assert.Equal(t, 0, got[0].ReferenceValue.Cmp(big.NewInt(20000)))
		assert.Equal(t, "mock:eth-usd", got[0].PriceFeed)
		assert.Equal(t, bob, got[1].Contributor)

		empty, err := s.ListContributions(ctx, 7)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("ContributionDuplicatesRejected", func(t *testing.T) {
		s := factory(t)
		defer s.Close()
		ctx := context.Background()

		c := NewContribution(0, 1, alice, 10)
		require.NoError(t, s.AppendContribution(ctx, c))
		assert.ErrorIs(t, s.AppendContribution(ctx, c), custody.ErrAlreadyExists)
		assert.ErrorIs(t, s.AppendContribution(ctx, NewContribution(0, 1, bob, 5)), custody.ErrAlreadyExists)
	})

	t.Run("WithdrawalLifecycle", func(t *testing.T) {
		s := factory(t)
		defer s.Close()
		ctx := context.Background()

		_, err := s.LatestWithdrawal(ctx)
		assert.ErrorIs(t, err, custody.ErrWithdrawalNotFound)

		w0 := NewWithdrawal(0, 100)
		w1 := NewWithdrawal(1, 200)
		require.NoError(t, s.CreateWithdrawal(ctx, w0))
		require.NoError(t, s.CreateWithdrawal(ctx, w1))
		assert.ErrorIs(t, s.CreateWithdrawal(ctx, NewWithdrawal(1, 5)), custody.ErrAlreadyExists)

		latest, err := s.LatestWithdrawal(ctx)
		require.NoError(t, err)
		assert.Equal(t, w1.ID.String(), latest.ID.String())
		assert.Equal(t, owner, latest.Owner)
		assert.Equal(t, 0, latest.Amount.Cmp(big.NewInt(200)))
		assert.Equal(t, 2, latest.Contributors)
		assert.Equal(t, "snapshot", latest.Strategy)
		assert.True(t, latest.CreatedAt.Equal(w1.CreatedAt))

		list, err := s.ListWithdrawals(ctx, withdrawal.ListOpts{})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, uint64(1), list[0].Epoch)
		assert.Equal(t, uint64(0), list[1].Epoch)

		page, err := s.ListWithdrawals(ctx, withdrawal.ListOpts{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, w0.ID.String(), page[0].ID.String())

		rest, err := s.ListWithdrawals(ctx, withdrawal.ListOpts{Offset: 1})
		require.NoError(t, err)
		require.Len(t, rest, 1)
		assert.Equal(t, w0.ID.String(), rest[0].ID.String())

		require.NoError(t, s.DeleteWithdrawal(ctx, w1.ID))
		assert.ErrorIs(t, s.DeleteWithdrawal(ctx, w1.ID), custody.ErrWithdrawalNotFound)

		latest, err = s.LatestWithdrawal(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), latest.Epoch)

		// the epoch is free again once its receipt is gone
		require.NoError(t, s.CreateWithdrawal(ctx, NewWithdrawal(1, 300)))
	})

	t.Run("Ping", func(t *testing.T) {
		s := factory(t)
		defer s.Close()
		assert.NoError(t, s.Ping(context.Background()))
	})
}
