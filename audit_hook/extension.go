// Package audithook bridges custody lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/custody"
	"github.com/xraph/custody/contribution"
	"github.com/xraph/custody/plugin"
	"github.com/xraph/custody/types"
	"github.com/xraph/custody/withdrawal"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin           = (*Extension)(nil)
	_ plugin.OnInit           = (*Extension)(nil)
	_ plugin.OnShutdown       = (*Extension)(nil)
	_ plugin.OnFunded         = (*Extension)(nil)
	_ plugin.OnFundRejected   = (*Extension)(nil)
	_ plugin.OnWithdrawn      = (*Extension)(nil)
	_ plugin.OnWithdrawFailed = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges custody lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit implements plugin.OnInit.
func (e *Extension) OnInit(ctx context.Context, c interface{}) error {
	kv := []any{"event", "custody_started"}
	if cu, ok := c.(*custody.Custody); ok {
		kv = append(kv,
			"owner", cu.Owner().Hex(),
			"price_feed", cu.PriceFeed(),
			"epoch", cu.Epoch(),
		)
	}
	return e.record(ctx, ActionCustodyStarted, SeverityInfo, OutcomeSuccess,
		ResourceCustody, "", CategoryLifecycle, nil, kv...)
}

// OnShutdown implements plugin.OnShutdown.
func (e *Extension) OnShutdown(ctx context.Context) error {
	return e.record(ctx, ActionCustodyStopped, SeverityInfo, OutcomeSuccess,
		ResourceCustody, "", CategoryLifecycle, nil,
		"event", "custody_stopped",
	)
}

// ──────────────────────────────────────────────────
// Funding hooks
// ──────────────────────────────────────────────────

// OnFunded implements plugin.OnFunded.
func (e *Extension) OnFunded(ctx context.Context, c *contribution.Contribution, balance *big.Int) error {
	return e.record(ctx, ActionFundAccepted, SeverityInfo, OutcomeSuccess,
		ResourceContribution, c.ID.String(), CategoryFunding, nil,
		"contributor", c.Contributor.Hex(),
		"amount_wei", c.Amount.String(),
		"value_usd", types.USD(c.ReferenceValue).FormatMajor(),
		"price_feed", c.PriceFeed,
		"epoch", c.Epoch,
		"seq", c.Seq,
		"balance_wei", balance.String(),
	)
}

// OnFundRejected implements plugin.OnFundRejected.
func (e *Extension) OnFundRejected(ctx context.Context, contributor common.Address, amount *big.Int, reason error) error {
	severity := SeverityInfo
	if custody.IsRetryable(reason) {
		severity = SeverityError
	}
	return e.record(ctx, ActionFundRejected, severity, OutcomeFailure,
		ResourceContribution, "", CategoryFunding, reason,
		"contributor", contributor.Hex(),
		"amount_wei", types.ETH(amount).Value.String(),
		"code", custody.CodeOf(reason),
	)
}

// ──────────────────────────────────────────────────
// Withdrawal hooks
// ──────────────────────────────────────────────────

// OnWithdrawn implements plugin.OnWithdrawn.
func (e *Extension) OnWithdrawn(ctx context.Context, w *withdrawal.Withdrawal) error {
	return e.record(ctx, ActionWithdrawCompleted, SeverityInfo, OutcomeSuccess,
		ResourceWithdrawal, w.ID.String(), CategoryPayout, nil,
		"owner", w.Owner.Hex(),
		"amount_wei", w.Amount.String(),
		"contributors", w.Contributors,
		"epoch", w.Epoch,
		"strategy", w.Strategy,
	)
}

// OnWithdrawFailed implements plugin.OnWithdrawFailed. Unauthorized
// callers are recorded as access denials.
func (e *Extension) OnWithdrawFailed(ctx context.Context, caller common.Address, strategy string, reason error) error {
	if errors.Is(reason, custody.ErrNotOwner) {
		return e.record(ctx, ActionWithdrawDenied, SeverityWarning, OutcomeFailure,
			ResourceWithdrawal, "", CategoryAccess, reason,
			"caller", caller.Hex(),
			"strategy", strategy,
		)
	}
	return e.record(ctx, ActionWithdrawFailed, SeverityCritical, OutcomeFailure,
		ResourceWithdrawal, "", CategoryPayout, reason,
		"caller", caller.Hex(),
		"strategy", strategy,
		"code", custody.CodeOf(reason),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
