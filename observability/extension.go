// Package observability provides a metrics extension for custody that records
// lifecycle event counts via go-utils MetricFactory.
package observability

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/custody"
	"github.com/xraph/custody/contribution"
	"github.com/xraph/custody/plugin"
	"github.com/xraph/custody/types"
	"github.com/xraph/custody/withdrawal"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin           = (*MetricsExtension)(nil)
	_ plugin.OnInit           = (*MetricsExtension)(nil)
	_ plugin.OnFunded         = (*MetricsExtension)(nil)
	_ plugin.OnFundRejected   = (*MetricsExtension)(nil)
	_ plugin.OnWithdrawn      = (*MetricsExtension)(nil)
	_ plugin.OnWithdrawFailed = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a custody plugin to automatically track funding metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Funding metrics
	FundAccepted         Counter
	FundRejected         Counter
	FundBelowMinimum     Counter
	FundOracleFailures   Counter
	FundValueUSD         Histogram
	FundAmountETH        Histogram
	ContributionsInEpoch Histogram

	// Withdrawal metrics
	WithdrawCompleted      Counter
	WithdrawDenied         Counter
	WithdrawTransferFailed Counter
	WithdrawAmountETH      Histogram
	WithdrawContributors   Histogram

	// Error metrics
	StoreErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		FundAccepted:         factory.Counter("custody.fund.accepted"),
		FundRejected:         factory.Counter("custody.fund.rejected"),
		FundBelowMinimum:     factory.Counter("custody.fund.below_minimum"),
		FundOracleFailures:   factory.Counter("custody.fund.oracle_failures"),
		FundValueUSD:         factory.Histogram("custody.fund.value_usd"),
		FundAmountETH:        factory.Histogram("custody.fund.amount_eth"),
		ContributionsInEpoch: factory.Histogram("custody.fund.epoch_seq"),

		WithdrawCompleted:      factory.Counter("custody.withdraw.completed"),
		WithdrawDenied:         factory.Counter("custody.withdraw.denied"),
		WithdrawTransferFailed: factory.Counter("custody.withdraw.transfer_failed"),
		WithdrawAmountETH:      factory.Histogram("custody.withdraw.amount_eth"),
		WithdrawContributors:   factory.Histogram("custody.withdraw.contributors"),

		StoreErrors: factory.Counter("custody.store.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// ──────────────────────────────────────────────────
// Funding hooks
// ──────────────────────────────────────────────────

// OnFunded implements plugin.OnFunded.
func (m *MetricsExtension) OnFunded(_ context.Context, c *contribution.Contribution, _ *big.Int) error {
	m.FundAccepted.Inc()
	m.FundValueUSD.Observe(major(types.USD(c.ReferenceValue)))
	m.FundAmountETH.Observe(major(types.ETH(c.Amount)))
	m.ContributionsInEpoch.Observe(float64(c.Seq))
	return nil
}

// OnFundRejected implements plugin.OnFundRejected.
func (m *MetricsExtension) OnFundRejected(_ context.Context, _ common.Address, _ *big.Int, reason error) error {
	m.FundRejected.Inc()
	switch {
	case errors.Is(reason, custody.ErrInsufficientValue):
		m.FundBelowMinimum.Inc()
	case errors.Is(reason, custody.ErrOracleUnavailable):
		m.FundOracleFailures.Inc()
	case isStoreError(reason):
		m.StoreErrors.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Withdrawal hooks
// ──────────────────────────────────────────────────

// OnWithdrawn implements plugin.OnWithdrawn.
func (m *MetricsExtension) OnWithdrawn(_ context.Context, w *withdrawal.Withdrawal) error {
	m.WithdrawCompleted.Inc()
	m.WithdrawAmountETH.Observe(major(types.ETH(w.Amount)))
	m.WithdrawContributors.Observe(float64(w.Contributors))
	return nil
}

// OnWithdrawFailed implements plugin.OnWithdrawFailed.
func (m *MetricsExtension) OnWithdrawFailed(_ context.Context, _ common.Address, _ string, reason error) error {
	switch {
	case errors.Is(reason, custody.ErrNotOwner):
		m.WithdrawDenied.Inc()
	case errors.Is(reason, custody.ErrTransferFailed):
		m.WithdrawTransferFailed.Inc()
	case isStoreError(reason):
		m.StoreErrors.Inc()
	}
	return nil
}

func isStoreError(err error) bool {
	return errors.Is(err, custody.ErrStoreClosed) ||
		errors.Is(err, custody.ErrStoreNotReady) ||
		errors.Is(err, custody.ErrAlreadyExists)
}

// major returns a in major units, approximated.
func major(a types.Amount) float64 {
	f, _ := a.Decimal().Float64()
	return f
}
