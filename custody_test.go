package custody_test

import (
	"context"
	"errors"
	"math/big"
	"math/rand"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/custody"
	"github.com/xraph/custody/contribution"
	"github.com/xraph/custody/payout"
	"github.com/xraph/custody/pricefeed"
	"github.com/xraph/custody/store/memory"
	"github.com/xraph/custody/store/storetest"
	"github.com/xraph/custody/withdrawal"
)

var owner = common.HexToAddress("0x00000000000000000000000000000000000000ff")

func funder(i int) common.Address {
	return common.BigToAddress(big.NewInt(int64(0x1000 + i)))
}

type fixture struct {
	c        *custody.Custody
	feed     *pricefeed.Mock
	accounts *payout.Accounts
	store    *memory.Store
}

func newFixture(t *testing.T, opts ...custody.Option) *fixture {
	t.Helper()

	f := &fixture{
		feed:     pricefeed.NewDefaultMock(),
		accounts: payout.NewAccounts(),
		store:    memory.New(),
	}
	base := []custody.Option{
		custody.WithStore(f.store),
		custody.WithPayout(f.accounts),
	}
	c, err := custody.New(owner, pricefeed.NewAdapter(f.feed), append(base, opts...)...)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Stop() })

	f.c = c
	return f
}

func (f *fixture) fund(t *testing.T, who common.Address, wei *big.Int) {
	t.Helper()
	_, err := f.c.Fund(context.Background(), who, wei)
	require.NoError(t, err)
}

// state is everything a caller can observe about the ledger.
type state struct {
	Balance string
	Funders []common.Address
	Amounts map[common.Address]string
	Epoch   uint64
}

func snapshot(c *custody.Custody, known ...common.Address) state {
	s := state{
		Balance: c.Balance().String(),
		Funders: c.Funders(),
		Amounts: map[common.Address]string{},
		Epoch:   c.Epoch(),
	}
	for _, a := range known {
		s.Amounts[a] = c.AmountFunded(a).String()
	}
	return s
}

func TestNewValidation(t *testing.T) {
	adapter := pricefeed.NewAdapter(pricefeed.NewDefaultMock())

	_, err := custody.New(common.Address{}, adapter)
	assert.ErrorIs(t, err, custody.ErrInvalidInput)

	_, err = custody.New(owner, nil)
	assert.ErrorIs(t, err, custody.ErrInvalidInput)

	_, err = custody.New(owner, adapter, custody.WithMinimumUSD(big.NewInt(-1)))
	assert.ErrorIs(t, err, custody.ErrInvalidInput)

	c, err := custody.New(owner, adapter)
	require.NoError(t, err)
	assert.Equal(t, owner, c.Owner())
	assert.Equal(t, 0, c.MinimumUSD().Cmp(custody.DefaultMinimumUSD))
}

func TestPriceFeedHandle(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, pricefeed.MockHandle, f.c.PriceFeed())
}

func TestFundWithoutValueFails(t *testing.T) {
	f := newFixture(t)

	_, err := f.c.Fund(context.Background(), funder(1), nil)
	require.ErrorIs(t, err, custody.ErrInsufficientValue)
	assert.Contains(t, err.Error(), "You need to spend more ETH!")

	_, err = f.c.Fund(context.Background(), funder(1), big.NewInt(0))
	assert.ErrorIs(t, err, custody.ErrInsufficientValue)

	_, err = f.c.Fund(context.Background(), funder(1), big.NewInt(-1))
	assert.ErrorIs(t, err, custody.ErrInvalidInput)
}

func TestFundBelowThresholdChangesNothing(t *testing.T) {
	f := newFixture(t)
	f.fund(t, funder(1), custody.Ether(1))
	before := snapshot(f.c, funder(1), funder(2))

	// 0.02 ETH at 2000 USD is 40 USD
	_, err := f.c.Fund(context.Background(), funder(2), big.NewInt(20_000_000_000_000_000))
	require.ErrorIs(t, err, custody.ErrInsufficientValue)
	assert.Equal(t, "FundMe__InsufficientValue", custody.CodeOf(err))
	assert.True(t, custody.IsRecoverable(err))

	assert.Equal(t, before, snapshot(f.c, funder(1), funder(2)))

	journal, err := f.store.ListContributions(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, journal, 1)
}

func TestFundAtThresholdAccepted(t *testing.T) {
	f := newFixture(t)

	// 0.025 ETH at 2000 USD is exactly 50 USD
	ct, err := f.c.Fund(context.Background(), funder(1), big.NewInt(25_000_000_000_000_000))
	require.NoError(t, err)
	assert.Equal(t, 0, ct.ReferenceValue.Cmp(custody.Dollars(50)))
	assert.Equal(t, pricefeed.MockHandle, ct.PriceFeed)
	assert.Equal(t, uint64(1), ct.Seq)
}

func TestFundUpdatesDataStructure(t *testing.T) {
	f := newFixture(t)
	f.fund(t, funder(1), custody.Ether(1))

	assert.Equal(t, 0, f.c.AmountFunded(funder(1)).Cmp(custody.Ether(1)))

	got, err := f.c.Funder(0)
	require.NoError(t, err)
	assert.Equal(t, funder(1), got)
}

func TestFundTotalsMatchAcceptedAmounts(t *testing.T) {
	f := newFixture(t)
	rng := rand.New(rand.NewSource(7))

	total := new(big.Int)
	perFunder := map[common.Address]*big.Int{}
	for i := 0; i < 50; i++ {
		who := funder(rng.Intn(6))
		// between 0.025 and ~2 ETH
		wei := new(big.Int).Mul(big.NewInt(int64(25+rng.Intn(2000))), big.NewInt(1_000_000_000_000_000))
		f.fund(t, who, wei)

		total.Add(total, wei)
		if perFunder[who] == nil {
			perFunder[who] = new(big.Int)
		}
		perFunder[who].Add(perFunder[who], wei)
	}

	assert.Equal(t, 0, f.c.Balance().Cmp(total))
	for who, want := range perFunder {
		assert.Equal(t, 0, f.c.AmountFunded(who).Cmp(want), "funder %s", who.Hex())
	}

	// each contributor listed exactly once
	seen := map[common.Address]bool{}
	for _, who := range f.c.Funders() {
		assert.False(t, seen[who], "duplicate funder %s", who.Hex())
		seen[who] = true
	}
	assert.Len(t, seen, len(perFunder))
}

func TestFundOracleFailureChangesNothing(t *testing.T) {
	f := newFixture(t)
	f.fund(t, funder(1), custody.Ether(1))
	before := snapshot(f.c, funder(1))

	f.feed.Fail(errors.New("aggregator paused"))
	_, err := f.c.Fund(context.Background(), funder(1), custody.Ether(1))
	require.ErrorIs(t, err, custody.ErrOracleUnavailable)
	assert.ErrorIs(t, err, pricefeed.ErrUnavailable)
	assert.True(t, custody.IsRetryable(err))

	assert.Equal(t, before, snapshot(f.c, funder(1)))
}

func TestFundJournalFailureChangesNothing(t *testing.T) {
	f := newFixture(t)
	f.fund(t, funder(1), custody.Ether(1))
	before := snapshot(f.c, funder(1))

	require.NoError(t, f.store.Close())
	_, err := f.c.Fund(context.Background(), funder(1), custody.Ether(1))
	require.ErrorIs(t, err, custody.ErrStoreClosed)

	assert.Equal(t, before, snapshot(f.c, funder(1)))
}

func TestFunderOutOfRange(t *testing.T) {
	f := newFixture(t)

	_, err := f.c.Funder(0)
	require.ErrorIs(t, err, custody.ErrIndexOutOfRange)
	assert.Equal(t, "FundMe__IndexOutOfRange", custody.CodeOf(err))

	f.fund(t, funder(1), custody.Ether(1))
	for _, idx := range []int{-1, 1, 1 << 30} {
		_, err := f.c.Funder(idx)
		assert.ErrorIs(t, err, custody.ErrIndexOutOfRange, "index %d", idx)
	}
}

type withdrawFn func(c *custody.Custody, ctx context.Context, caller common.Address) (*withdrawal.Withdrawal, error)

var variants = map[string]withdrawFn{
	"Withdraw":          (*custody.Custody).Withdraw,
	"WithdrawOptimized": (*custody.Custody).WithdrawOptimized,
}

func TestWithdrawSingleFunder(t *testing.T) {
	for name, withdraw := range variants {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.fund(t, funder(1), custody.Ether(1))
			startingOwner := f.accounts.Balance(owner)

			w, err := withdraw(f.c, context.Background(), owner)
			require.NoError(t, err)

			assert.Zero(t, f.c.Balance().Sign())
			assert.Zero(t, f.c.AmountFunded(funder(1)).Sign())
			assert.Equal(t, 0, new(big.Int).Sub(f.accounts.Balance(owner), startingOwner).Cmp(custody.Ether(1)))
			assert.Equal(t, 0, w.Amount.Cmp(custody.Ether(1)))
			assert.Equal(t, 1, w.Contributors)
			assert.Equal(t, []string{w.ID.String()}, f.accounts.Refs())
		})
	}
}

func TestWithdrawMultipleFunders(t *testing.T) {
	for name, withdraw := range variants {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			for i := 1; i <= 5; i++ {
				f.fund(t, funder(i), custody.Ether(1))
			}
			startingOwner := f.accounts.Balance(owner)
			startingBalance := f.c.Balance()

			_, err := withdraw(f.c, context.Background(), owner)
			require.NoError(t, err)

			assert.Zero(t, f.c.Balance().Sign())
			gained := new(big.Int).Sub(f.accounts.Balance(owner), startingOwner)
			assert.Equal(t, 0, gained.Cmp(startingBalance))
			assert.Equal(t, 0, gained.Cmp(custody.Ether(5)))

			_, err = f.c.Funder(0)
			assert.ErrorIs(t, err, custody.ErrIndexOutOfRange)
			for i := 1; i <= 5; i++ {
				assert.Zero(t, f.c.AmountFunded(funder(i)).Sign())
			}
		})
	}
}

func TestWithdrawNotOwner(t *testing.T) {
	for name, withdraw := range variants {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.fund(t, funder(1), custody.Ether(1))
			f.fund(t, funder(2), custody.Ether(2))
			before := snapshot(f.c, funder(1), funder(2))

			_, err := withdraw(f.c, context.Background(), funder(1))
			require.ErrorIs(t, err, custody.ErrNotOwner)
			assert.Equal(t, "FundMe__NotOwner", custody.CodeOf(err))

			assert.Equal(t, before, snapshot(f.c, funder(1), funder(2)))
			assert.Zero(t, f.accounts.Balance(funder(1)).Sign())
			assert.Zero(t, f.accounts.Balance(owner).Sign())

			list, err := f.c.Withdrawals(context.Background(), withdrawal.ListOpts{})
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestWithdrawTransferFailureChangesNothing(t *testing.T) {
	for name, withdraw := range variants {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.fund(t, funder(1), custody.Ether(3))
			before := snapshot(f.c, funder(1))

			f.accounts.Fail(errors.New("out of gas"))
			_, err := withdraw(f.c, context.Background(), owner)
			require.ErrorIs(t, err, custody.ErrTransferFailed)
			assert.ErrorIs(t, err, payout.ErrRejected)

			assert.Equal(t, before, snapshot(f.c, funder(1)))
			list, err := f.c.Withdrawals(context.Background(), withdrawal.ListOpts{})
			require.NoError(t, err)
			assert.Empty(t, list, "receipt of a failed transfer is discarded")

			f.accounts.Fail(nil)
			w, err := withdraw(f.c, context.Background(), owner)
			require.NoError(t, err)
			assert.Equal(t, uint64(0), w.Epoch)
			assert.Equal(t, 0, f.accounts.Balance(owner).Cmp(custody.Ether(3)))
		})
	}
}

func TestWithdrawEmptyLedger(t *testing.T) {
	for name, withdraw := range variants {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)

			w, err := withdraw(f.c, context.Background(), owner)
			require.NoError(t, err)
			assert.Zero(t, w.Amount.Sign())
			assert.Zero(t, w.Contributors)

			// idempotent
			_, err = withdraw(f.c, context.Background(), owner)
			require.NoError(t, err)
			assert.Zero(t, f.c.Balance().Sign())
			assert.Zero(t, f.accounts.Balance(owner).Sign())
		})
	}
}

// Both variants are driven through the same scripts from identical
// pre-states and must agree on every outcome and every end state.
func TestWithdrawVariantsAreIndistinguishable(t *testing.T) {
	type step struct {
		fund     map[int]int64 // funder index -> ether
		caller   common.Address
		failPay  bool
		wantCode string
	}

	scripts := map[string][]step{
		"single": {
			{fund: map[int]int64{1: 1}, caller: owner},
		},
		"many then refund": {
			{fund: map[int]int64{1: 1, 2: 2, 3: 3, 4: 1, 5: 1}, caller: owner},
			{fund: map[int]int64{2: 1}, caller: owner},
		},
		"not owner": {
			{fund: map[int]int64{1: 1}, caller: funder(1), wantCode: "FundMe__NotOwner"},
		},
		"transfer failure": {
			{fund: map[int]int64{1: 4}, caller: owner, failPay: true, wantCode: "FundMe__TransferFailed"},
			{caller: owner},
		},
		"empty": {
			{caller: owner},
		},
	}

	known := []common.Address{funder(1), funder(2), funder(3), funder(4), funder(5), owner}

	run := func(t *testing.T, withdraw withdrawFn, script []step) ([]state, []string, string) {
		f := newFixture(t)
		var states []state
		var codes []string
		for _, s := range script {
			for i := 1; i <= 5; i++ {
				if eth, ok := s.fund[i]; ok {
					f.fund(t, funder(i), custody.Ether(eth))
				}
			}
			if s.failPay {
				f.accounts.Fail(errors.New("rejected"))
			}
			_, err := withdraw(f.c, context.Background(), s.caller)
			f.accounts.Fail(nil)

			assert.Equal(t, s.wantCode, custody.CodeOf(err))
			codes = append(codes, custody.CodeOf(err))
			states = append(states, snapshot(f.c, known...))
		}
		return states, codes, f.accounts.Balance(owner).String()
	}

	for name, script := range scripts {
		t.Run(name, func(t *testing.T) {
			directStates, directCodes, directOwner := run(t, variants["Withdraw"], script)
			snapStates, snapCodes, snapOwner := run(t, variants["WithdrawOptimized"], script)

			assert.Equal(t, directCodes, snapCodes)
			assert.Equal(t, directStates, snapStates)
			assert.Equal(t, directOwner, snapOwner)
		})
	}
}

func TestWithdrawalHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.fund(t, funder(1), custody.Ether(1))
	first, err := f.c.Withdraw(ctx, owner)
	require.NoError(t, err)

	f.fund(t, funder(2), custody.Ether(2))
	f.fund(t, funder(3), custody.Ether(2))
	second, err := f.c.WithdrawOptimized(ctx, owner)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), first.Epoch)
	assert.Equal(t, "direct", first.Strategy)
	assert.Equal(t, uint64(1), second.Epoch)
	assert.Equal(t, "snapshot", second.Strategy)
	assert.Equal(t, 2, second.Contributors)
	assert.Equal(t, uint64(2), f.c.Epoch())

	list, err := f.c.Withdrawals(ctx, withdrawal.ListOpts{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID.String(), list[0].ID.String())
	assert.Equal(t, first.ID.String(), list[1].ID.String())
}

func TestStartRecoversOpenEpoch(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	adapter := pricefeed.NewAdapter(pricefeed.NewDefaultMock())

	c, err := custody.New(owner, adapter, custody.WithStore(s))
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))

	_, err = c.Fund(ctx, funder(1), custody.Ether(5))
	require.NoError(t, err)
	_, err = c.Withdraw(ctx, owner)
	require.NoError(t, err)
	_, err = c.Fund(ctx, funder(2), custody.Ether(1))
	require.NoError(t, err)
	_, err = c.Fund(ctx, funder(3), custody.Ether(2))
	require.NoError(t, err)
	_, err = c.Fund(ctx, funder(2), custody.Ether(1))
	require.NoError(t, err)
	want := snapshot(c, funder(1), funder(2), funder(3))

	// a second instance over the same journal, as after a restart
	restarted, err := custody.New(owner, adapter, custody.WithStore(s))
	require.NoError(t, err)
	require.NoError(t, restarted.Start(ctx))

	assert.Equal(t, want, snapshot(restarted, funder(1), funder(2), funder(3)))
	assert.Equal(t, uint64(1), restarted.Epoch())

	// sequence numbers continue where the journal left off
	ct, err := restarted.Fund(ctx, funder(3), custody.Ether(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(4), ct.Seq)
}

func TestMutationsRequireStart(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.CreateWithdrawal(ctx, storetest.NewWithdrawal(4, 10)))

	c, err := custody.New(owner, pricefeed.NewAdapter(pricefeed.NewDefaultMock()), custody.WithStore(s))
	require.NoError(t, err)

	_, err = c.Fund(ctx, funder(1), custody.Ether(1))
	assert.ErrorIs(t, err, custody.ErrNotStarted)
	_, err = c.Withdraw(ctx, owner)
	assert.ErrorIs(t, err, custody.ErrNotStarted)

	journal, err := s.ListContributions(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, journal)

	require.NoError(t, c.Start(ctx))
	ct, err := c.Fund(ctx, funder(1), custody.Ether(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), ct.Epoch)
	assert.Equal(t, uint64(1), ct.Seq)
}

func TestContributeReportsBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.c.Contribute(ctx, funder(1), custody.Ether(1))
	require.NoError(t, err)
	assert.Equal(t, 0, r.Balance.Cmp(custody.Ether(1)))
	assert.Equal(t, funder(1), r.Contribution.Contributor)

	r, err = f.c.Contribute(ctx, funder(2), custody.Ether(2))
	require.NoError(t, err)
	assert.Equal(t, 0, r.Balance.Cmp(custody.Ether(3)))

	_, err = f.c.Contribute(ctx, funder(2), big.NewInt(1))
	assert.ErrorIs(t, err, custody.ErrInsufficientValue)

	// each concurrent receipt carries a distinct running total
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[string]bool{}
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := f.c.Contribute(ctx, funder(10+i), custody.Ether(1))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			seen[r.Balance.String()] = true
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Len(t, seen, 20)
	assert.True(t, seen[f.c.Balance().String()])
}

func TestWithoutStore(t *testing.T) {
	c, err := custody.New(owner, pricefeed.NewAdapter(pricefeed.NewDefaultMock()))
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))

	_, err = c.Fund(context.Background(), funder(1), custody.Ether(1))
	require.NoError(t, err)
	_, err = c.Withdraw(context.Background(), owner)
	require.NoError(t, err)

	_, err = c.Withdrawals(context.Background(), withdrawal.ListOpts{})
	assert.ErrorIs(t, err, custody.ErrStoreNotReady)
	assert.NoError(t, c.Health(context.Background()))
	assert.NoError(t, c.Stop())
}

func TestMinimumIsConfigurable(t *testing.T) {
	f := newFixture(t, custody.WithMinimumUSD(custody.Dollars(5000)))

	_, err := f.c.Fund(context.Background(), funder(1), custody.Ether(2))
	assert.ErrorIs(t, err, custody.ErrInsufficientValue)

	f.fund(t, funder(1), custody.Ether(3))

	f.feed.UpdateAnswer(custody.Dollars(3000))
	f.fund(t, funder(1), custody.Ether(2))
	assert.Equal(t, 0, f.c.AmountFunded(funder(1)).Cmp(custody.Ether(5)))
}

type hookRecorder struct {
	mu       sync.Mutex
	funded   int
	rejected []string
	withdraw []string
	failed   []string
}

func (h *hookRecorder) Name() string { return "hooks" }

func (h *hookRecorder) OnFunded(_ context.Context, _ *contribution.Contribution, _ *big.Int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.funded++
	return nil
}

func (h *hookRecorder) OnFundRejected(_ context.Context, _ common.Address, _ *big.Int, reason error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rejected = append(h.rejected, custody.CodeOf(reason))
	return nil
}

func (h *hookRecorder) OnWithdrawn(_ context.Context, w *withdrawal.Withdrawal) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.withdraw = append(h.withdraw, w.Strategy)
	return nil
}

func (h *hookRecorder) OnWithdrawFailed(_ context.Context, _ common.Address, strategy string, reason error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed = append(h.failed, strategy+":"+custody.CodeOf(reason))
	return nil
}

func TestHooks(t *testing.T) {
	h := &hookRecorder{}
	f := newFixture(t, custody.WithPlugin(h))
	ctx := context.Background()

	f.fund(t, funder(1), custody.Ether(1))
	_, _ = f.c.Fund(ctx, funder(1), big.NewInt(1))
	_, _ = f.c.WithdrawOptimized(ctx, funder(1))
	_, err := f.c.Withdraw(ctx, owner)
	require.NoError(t, err)

	assert.Equal(t, 1, h.funded)
	assert.Equal(t, []string{"FundMe__InsufficientValue"}, h.rejected)
	assert.Equal(t, []string{"snapshot:FundMe__NotOwner"}, h.failed)
	assert.Equal(t, []string{"direct"}, h.withdraw)
}

func TestConcurrentFundAndRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_, err := f.c.Fund(ctx, funder(i), custody.Ether(1))
				assert.NoError(t, err)
				_ = f.c.Balance()
				_, _ = f.c.Funder(0)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, f.c.Balance().Cmp(custody.Ether(200)))
	assert.Len(t, f.c.Funders(), 8)

	journal, err := f.store.ListContributions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, journal, 200)
	for i, ct := range journal {
		assert.Equal(t, uint64(i+1), ct.Seq)
	}
}

func TestGuard(t *testing.T) {
	assert.NoError(t, custody.RequireOwner(owner, owner))
	assert.ErrorIs(t, custody.RequireOwner(funder(1), owner), custody.ErrNotOwner)
}
