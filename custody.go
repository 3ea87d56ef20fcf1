package custody

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/custody/contribution"
	"github.com/xraph/custody/funding"
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/payout"
	"github.com/xraph/custody/plugin"
	"github.com/xraph/custody/pricefeed"
	"github.com/xraph/custody/store"
	"github.com/xraph/custody/types"
	"github.com/xraph/custody/withdrawal"
)

// DefaultMinimumUSD is the smallest accepted contribution: 50 USD with
// 18 decimals.
var DefaultMinimumUSD = types.Dollars(50)

// Custody accepts contributions above a USD minimum and lets the owner
// withdraw the whole balance.
type Custody struct {
	// mu is held for writing for the whole of Fund and Withdraw, and for
	// reading by accessors.
	mu sync.RWMutex

	owner      common.Address
	adapter    *pricefeed.Adapter
	minimumUSD *big.Int
	ledger     *funding.Ledger

	store   store.Store
	payout  payout.Transferer
	plugins *plugin.Registry
	logger  *slog.Logger

	// epoch counts completed withdrawals; seq counts contributions in it.
	epoch uint64
	seq   uint64
	// started is set once the journal has been replayed.
	started bool
}

// New creates a Custody owned by owner and pricing contributions with
// adapter. Without WithStore the journal is disabled and state lives only
// in memory. Without WithPayout withdrawals are credited to an in-process
// payout.Accounts book.
func New(owner common.Address, adapter *pricefeed.Adapter, opts ...Option) (*Custody, error) {
	if owner == (common.Address{}) {
		return nil, ValidationError{Field: "owner", Message: "must not be the zero address"}
	}
	if adapter == nil {
		return nil, ValidationError{Field: "price feed", Message: "adapter is required"}
	}

	c := &Custody{
		owner:      owner,
		adapter:    adapter,
		minimumUSD: new(big.Int).Set(DefaultMinimumUSD),
		ledger:     funding.New(),
		payout:     payout.NewAccounts(),
		plugins:    plugin.NewRegistry(),
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.minimumUSD == nil || c.minimumUSD.Sign() < 0 {
		return nil, ValidationError{Field: "minimum_usd", Message: "must be a non-negative amount"}
	}
	return c, nil
}

// Option configures a Custody instance.
type Option func(*Custody)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Custody) {
		c.logger = logger
		c.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(c *Custody) {
		_ = c.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithStore sets the journal store.
func WithStore(s store.Store) Option {
	return func(c *Custody) { c.store = s }
}

// WithPayout sets the rail that moves withdrawn funds to the owner.
func WithPayout(t payout.Transferer) Option {
	return func(c *Custody) { c.payout = t }
}

// WithMinimumUSD sets the minimum contribution in USD with 18 decimals.
// It is fixed for the lifetime of the instance.
func WithMinimumUSD(v *big.Int) Option {
	return func(c *Custody) {
		if v == nil {
			c.minimumUSD = nil
			return
		}
		c.minimumUSD = new(big.Int).Set(v)
	}
}

// Start migrates the store and rebuilds the ledger from the contributions
// journaled since the last withdrawal.
func (c *Custody) Start(ctx context.Context) error {
	if c.store != nil {
		if err := c.store.Migrate(ctx); err != nil {
			return err
		}
		if err := c.recover(ctx); err != nil {
			return err
		}
	}

	c.plugins.EmitInit(ctx, c)

	c.logger.Info("custody started",
		"owner", c.owner.Hex(),
		"price_feed", c.adapter.PriceFeed(),
		"minimum_usd", types.USD(c.minimumUSD).String(),
		"epoch", c.epoch,
		"contributors", c.ledger.Len(),
		"balance", types.ETH(c.ledger.TotalBalance()).String(),
	)
	return nil
}

func (c *Custody) recover(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var epoch uint64
	latest, err := c.store.LatestWithdrawal(ctx)
	switch {
	case err == nil:
		epoch = latest.Epoch + 1
	case IsNotFound(err):
	default:
		return fmt.Errorf("custody: load latest withdrawal: %w", err)
	}

	journal, err := c.store.ListContributions(ctx, epoch)
	if err != nil {
		return fmt.Errorf("custody: load contributions for epoch %d: %w", epoch, err)
	}

	entries := make([]funding.Entry, 0, len(journal))
	var seq uint64
	for _, ct := range journal {
		entries = append(entries, funding.Entry{Contributor: ct.Contributor, Amount: ct.Amount})
		if ct.Seq > seq {
			seq = ct.Seq
		}
	}

	c.ledger.Restore(entries)
	c.epoch = epoch
	c.seq = seq
	c.started = true
	return nil
}

// Stop shuts down the Custody and closes the store.
func (c *Custody) Stop() error {
	ctx := context.Background()
	c.plugins.EmitShutdown(ctx)

	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

// ready reports whether mutations may run. A journaled instance must be
// started first so new records land in the open epoch. Callers hold mu.
func (c *Custody) ready() error {
	if c.store != nil && !c.started {
		return ErrNotStarted
	}
	return nil
}

// ──────────────────────────────────────────────────
// Funding
// ──────────────────────────────────────────────────

// Receipt is an accepted contribution together with the balance held
// right after it was recorded.
type Receipt struct {
	Contribution *contribution.Contribution
	Balance      *big.Int
}

// Fund accepts amount wei from caller when it converts to at least the
// minimum USD value. On any error nothing is recorded.
func (c *Custody) Fund(ctx context.Context, caller common.Address, amount *big.Int) (*contribution.Contribution, error) {
	r, err := c.Contribute(ctx, caller, amount)
	if err != nil {
		return nil, err
	}
	return r.Contribution, nil
}

// Contribute is Fund, also returning the balance observed under the same
// lock as the contribution.
func (c *Custody) Contribute(ctx context.Context, caller common.Address, amount *big.Int) (*Receipt, error) {
	ct, balance, err := c.fund(ctx, caller, amount)
	if err != nil {
		c.logger.Debug("fund rejected",
			"contributor", caller.Hex(),
			"amount", types.ETH(amount).String(),
			"code", CodeOf(err),
			"error", err,
		)
		c.plugins.EmitFundRejected(ctx, caller, amount, err)
		return nil, err
	}

	c.logger.Info("funded",
		"contributor", caller.Hex(),
		"amount", types.ETH(ct.Amount).String(),
		"value", types.USD(ct.ReferenceValue).String(),
		"epoch", ct.Epoch,
		"seq", ct.Seq,
	)
	c.plugins.EmitFunded(ctx, ct, balance)
	return &Receipt{Contribution: ct, Balance: new(big.Int).Set(balance)}, nil
}

func (c *Custody) fund(ctx context.Context, caller common.Address, amount *big.Int) (*contribution.Contribution, *big.Int, error) {
	if amount != nil && amount.Sign() < 0 {
		return nil, nil, ValidationError{Field: "amount", Message: "must not be negative"}
	}
	if amount == nil || amount.Sign() == 0 {
		return nil, nil, ErrInsufficientValue
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ready(); err != nil {
		return nil, nil, err
	}

	value, err := c.adapter.Convert(ctx, amount)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
	}
	if value.Cmp(c.minimumUSD) < 0 {
		return nil, nil, ErrInsufficientValue
	}

	ct := &contribution.Contribution{
		Entity:         types.NewEntity(),
		ID:             id.NewContributionID(),
		Epoch:          c.epoch,
		Seq:            c.seq + 1,
		Contributor:    caller,
		Amount:         new(big.Int).Set(amount),
		ReferenceValue: value,
		PriceFeed:      c.adapter.PriceFeed(),
	}

	if c.store != nil {
		if err := c.store.AppendContribution(ctx, ct); err != nil {
			return nil, nil, fmt.Errorf("custody: journal contribution: %w", err)
		}
	}
	if err := c.ledger.Record(caller, amount); err != nil {
		return nil, nil, fmt.Errorf("custody: record contribution: %w", err)
	}
	c.seq++

	return ct, c.ledger.TotalBalance(), nil
}

// ──────────────────────────────────────────────────
// Withdrawal
// ──────────────────────────────────────────────────

// Withdraw sends the whole balance to the owner and resets the ledger.
func (c *Custody) Withdraw(ctx context.Context, caller common.Address) (*withdrawal.Withdrawal, error) {
	return c.withdrawWith(ctx, caller, funding.DirectReset)
}

// WithdrawOptimized behaves exactly like Withdraw; its reset walks a
// snapshot of the contributor list once.
func (c *Custody) WithdrawOptimized(ctx context.Context, caller common.Address) (*withdrawal.Withdrawal, error) {
	return c.withdrawWith(ctx, caller, funding.SnapshotReset)
}

func (c *Custody) withdrawWith(ctx context.Context, caller common.Address, strategy funding.Strategy) (*withdrawal.Withdrawal, error) {
	w, err := c.withdraw(ctx, caller, strategy)
	if err != nil {
		c.logger.Warn("withdrawal failed",
			"caller", caller.Hex(),
			"strategy", strategy.Name(),
			"code", CodeOf(err),
			"error", err,
		)
		c.plugins.EmitWithdrawFailed(ctx, caller, strategy.Name(), err)
		return nil, err
	}

	c.logger.Info("withdrawn",
		"id", w.ID.String(),
		"owner", w.Owner.Hex(),
		"amount", types.ETH(w.Amount).String(),
		"contributors", w.Contributors,
		"epoch", w.Epoch,
		"strategy", w.Strategy,
	)
	c.plugins.EmitWithdrawn(ctx, w)
	return w, nil
}

func (c *Custody) withdraw(ctx context.Context, caller common.Address, strategy funding.Strategy) (*withdrawal.Withdrawal, error) {
	if err := RequireOwner(caller, c.owner); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ready(); err != nil {
		return nil, err
	}

	w := &withdrawal.Withdrawal{
		Entity:       types.NewEntity(),
		ID:           id.NewWithdrawalID(),
		Epoch:        c.epoch,
		Owner:        c.owner,
		Amount:       c.ledger.TotalBalance(),
		Contributors: c.ledger.Len(),
		Strategy:     strategy.Name(),
	}

	if c.store != nil {
		if err := c.store.CreateWithdrawal(ctx, w); err != nil {
			return nil, fmt.Errorf("custody: persist withdrawal: %w", err)
		}
	}

	if err := c.payout.Transfer(ctx, c.owner, w.Amount, w.ID.String()); err != nil {
		if c.store != nil {
			if derr := c.store.DeleteWithdrawal(context.WithoutCancel(ctx), w.ID); derr != nil {
				// the orphaned receipt would close the epoch on restart
				c.logger.Error("failed to discard withdrawal receipt",
					"id", w.ID.String(),
					"error", derr,
				)
				return nil, errors.Join(fmt.Errorf("%w: %w", ErrTransferFailed, err), derr)
			}
		}
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	c.ledger.Reset(strategy)
	c.epoch++
	c.seq = 0
	return w, nil
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// PriceFeed returns the handle of the bound price feed.
func (c *Custody) PriceFeed() string { return c.adapter.PriceFeed() }

// Owner returns the owner identity.
func (c *Custody) Owner() common.Address { return c.owner }

// MinimumUSD returns the minimum contribution in USD with 18 decimals.
func (c *Custody) MinimumUSD() *big.Int { return new(big.Int).Set(c.minimumUSD) }

// AmountFunded returns the cumulative amount funded by contributor since
// the last withdrawal.
func (c *Custody) AmountFunded(contributor common.Address) *big.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ledger.AmountOf(contributor)
}

// Funder returns the contributor at index in funding order.
func (c *Custody) Funder(index int) (common.Address, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	addr, err := c.ledger.ContributorAt(index)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrIndexOutOfRange, err)
	}
	return addr, nil
}

// Funders returns the contributors in funding order.
func (c *Custody) Funders() []common.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ledger.Contributors()
}

// Balance returns the total held in custody.
func (c *Custody) Balance() *big.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ledger.TotalBalance()
}

// Epoch returns the number of completed withdrawals.
func (c *Custody) Epoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// Withdrawals returns withdrawal receipts, newest first.
func (c *Custody) Withdrawals(ctx context.Context, opts withdrawal.ListOpts) ([]*withdrawal.Withdrawal, error) {
	if c.store == nil {
		return nil, ErrStoreNotReady
	}
	return c.store.ListWithdrawals(ctx, opts)
}

// Health pings the store.
func (c *Custody) Health(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	return c.store.Ping(ctx)
}

// Store returns the journal store, nil when disabled.
func (c *Custody) Store() store.Store { return c.store }
