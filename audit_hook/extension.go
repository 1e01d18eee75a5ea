// Package audithook bridges credit ledger lifecycle events to an audit
// trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit system. Callers inject a RecorderFunc adapter that
// bridges to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/creditledger/credit"
	"github.com/xraph/creditledger/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin             = (*Extension)(nil)
	_ plugin.OnCreditGranted    = (*Extension)(nil)
	_ plugin.OnCreditsAllocated = (*Extension)(nil)
	_ plugin.OnRefundApplied    = (*Extension)(nil)
	_ plugin.OnCreditsExpired   = (*Extension)(nil)
	_ plugin.OnSweepCompleted   = (*Extension)(nil)
	_ plugin.OnBalanceRead      = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement. It is
// defined locally so the package does not import any one audit system;
// callers inject their concrete backend at wiring time.
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

// Extension bridges credit ledger lifecycle events to an audit backend.
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
// Credit lifecycle hooks
// ──────────────────────────────────────────────────

// OnCreditGranted implements plugin.OnCreditGranted.
func (e *Extension) OnCreditGranted(ctx context.Context, c interface{}) error {
	var (
		resourceID string
		kv         []any
	)
	if cr, ok := c.(*credit.Credit); ok {
		resourceID = cr.ID.String()
		kv = []any{
			"account_id", cr.AccountID,
			"amount", cr.Amount.Amount,
			"currency", cr.Amount.Currency,
			"credit_type", string(cr.Type),
			"granted_by", cr.GrantedBy,
		}
	}
	return e.record(ctx, ActionCreditGranted, SeverityInfo, OutcomeSuccess,
		ResourceCredit, resourceID, CategoryCredit, nil, kv...)
}

// OnCreditsAllocated implements plugin.OnCreditsAllocated.
func (e *Extension) OnCreditsAllocated(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionCreditsUsed, SeverityInfo, OutcomeSuccess,
		ResourceOrder, "", CategoryCredit, nil,
		"event", "credits_allocated",
	)
}

// OnRefundApplied implements plugin.OnRefundApplied.
func (e *Extension) OnRefundApplied(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionRefundApplied, SeverityInfo, OutcomeSuccess,
		ResourceOrder, "", CategoryCredit, nil,
		"event", "refund_applied",
	)
}

// OnCreditsExpired implements plugin.OnCreditsExpired.
func (e *Extension) OnCreditsExpired(ctx context.Context, c interface{}) error {
	var (
		resourceID string
		kv         []any
	)
	if cr, ok := c.(*credit.Credit); ok {
		resourceID = cr.ID.String()
		kv = []any{
			"account_id", cr.AccountID,
			"forfeited", cr.RemainingAmount.Amount,
			"currency", cr.RemainingAmount.Currency,
		}
	}
	return e.record(ctx, ActionCreditsExpired, SeverityInfo, OutcomeSuccess,
		ResourceCredit, resourceID, CategoryCredit, nil, kv...)
}

// OnSweepCompleted implements plugin.OnSweepCompleted.
func (e *Extension) OnSweepCompleted(ctx context.Context, expiredCredits int, totalExpired interface{}, elapsed time.Duration) error {
	if expiredCredits == 0 {
		// Only audit sweeps that forfeited something to reduce noise
		return nil
	}
	return e.record(ctx, ActionSweepCompleted, SeverityInfo, OutcomeSuccess,
		ResourceLedger, "", CategoryCredit, nil,
		"expired_credits", expiredCredits,
		"total_expired", fmt.Sprintf("%v", totalExpired),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnBalanceRead implements plugin.OnBalanceRead.
func (e *Extension) OnBalanceRead(_ context.Context, _ string, _ interface{}) error {
	// Balance reads are high-volume and carry no mutation; skip by default
	return nil
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
