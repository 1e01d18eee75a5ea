// Package plugin provides an extensible plugin system for the credit
// ledger. Plugins can hook into lifecycle events to extend functionality.
package plugin

import (
	"context"
	"time"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Credit lifecycle hooks
// ──────────────────────────────────────────────────

// OnCreditGranted is called when a new credit is issued.
type OnCreditGranted interface {
	Plugin
	OnCreditGranted(ctx context.Context, c interface{}) error
}

// OnCreditsAllocated is called when an allocation debits one or more
// credits against an order.
type OnCreditsAllocated interface {
	Plugin
	OnCreditsAllocated(ctx context.Context, allocation interface{}) error
}

// OnRefundApplied is called when a refund restores previously debited
// amounts.
type OnRefundApplied interface {
	Plugin
	OnRefundApplied(ctx context.Context, refund interface{}) error
}

// OnCreditsExpired is called once per credit forfeited by an expiration
// sweep.
type OnCreditsExpired interface {
	Plugin
	OnCreditsExpired(ctx context.Context, c interface{}) error
}

// OnSweepCompleted is called after an expiration sweep, whether or not
// any credits were forfeited.
type OnSweepCompleted interface {
	Plugin
	OnSweepCompleted(ctx context.Context, expiredCredits int, totalExpired interface{}, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Read-path hooks
// ──────────────────────────────────────────────────

// OnBalanceRead is called when an account balance is computed.
type OnBalanceRead interface {
	Plugin
	OnBalanceRead(ctx context.Context, accountID string, total interface{}) error
}

// OnReportGenerated is called when a ledger activity report is produced.
type OnReportGenerated interface {
	Plugin
	OnReportGenerated(ctx context.Context, report interface{}) error
}
