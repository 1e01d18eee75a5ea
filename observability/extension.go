// Package observability provides a metrics extension for the credit
// ledger that records lifecycle event counts behind a small MetricFactory
// interface, plus a Prometheus-backed factory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/creditledger/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin             = (*MetricsExtension)(nil)
	_ plugin.OnInit             = (*MetricsExtension)(nil)
	_ plugin.OnCreditGranted    = (*MetricsExtension)(nil)
	_ plugin.OnCreditsAllocated = (*MetricsExtension)(nil)
	_ plugin.OnRefundApplied    = (*MetricsExtension)(nil)
	_ plugin.OnSweepCompleted   = (*MetricsExtension)(nil)
	_ plugin.OnBalanceRead      = (*MetricsExtension)(nil)
	_ plugin.OnReportGenerated  = (*MetricsExtension)(nil)
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

// MetricsExtension records system-wide lifecycle metrics. Register it as
// an engine plugin to automatically track credit activity.
type MetricsExtension struct {
	factory MetricFactory

	// Credit metrics
	CreditsGranted Counter
	Allocations    Counter
	Refunds        Counter

	// Sweep metrics
	SweepRuns      Counter
	CreditsExpired Counter
	SweepLatency   Histogram
	SweepBatchSize Histogram

	// Read-path metrics
	BalanceReads     Counter
	ReportsGenerated Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Credit metrics
		CreditsGranted: factory.Counter("creditledger.credit.granted"),
		Allocations:    factory.Counter("creditledger.allocation.completed"),
		Refunds:        factory.Counter("creditledger.refund.applied"),

		// Sweep metrics
		SweepRuns:      factory.Counter("creditledger.sweep.runs"),
		CreditsExpired: factory.Counter("creditledger.credit.expired"),
		SweepLatency:   factory.Histogram("creditledger.sweep.latency_ms"),
		SweepBatchSize: factory.Histogram("creditledger.sweep.batch.size"),

		// Read-path metrics
		BalanceReads:     factory.Counter("creditledger.balance.reads"),
		ReportsGenerated: factory.Counter("creditledger.report.generated"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Credit lifecycle hooks
// ──────────────────────────────────────────────────

// OnCreditGranted implements plugin.OnCreditGranted.
func (m *MetricsExtension) OnCreditGranted(_ context.Context, _ interface{}) error {
	m.CreditsGranted.Inc()
	return nil
}

// OnCreditsAllocated implements plugin.OnCreditsAllocated.
func (m *MetricsExtension) OnCreditsAllocated(_ context.Context, _ interface{}) error {
	m.Allocations.Inc()
	return nil
}

// OnRefundApplied implements plugin.OnRefundApplied.
func (m *MetricsExtension) OnRefundApplied(_ context.Context, _ interface{}) error {
	m.Refunds.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Sweep hooks
// ──────────────────────────────────────────────────

// OnSweepCompleted implements plugin.OnSweepCompleted.
func (m *MetricsExtension) OnSweepCompleted(_ context.Context, expiredCredits int, _ interface{}, elapsed time.Duration) error {
	m.SweepRuns.Inc()
	m.CreditsExpired.Add(float64(expiredCredits))
	m.SweepBatchSize.Observe(float64(expiredCredits))
	m.SweepLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// ──────────────────────────────────────────────────
// Read-path hooks
// ──────────────────────────────────────────────────

// OnBalanceRead implements plugin.OnBalanceRead.
func (m *MetricsExtension) OnBalanceRead(_ context.Context, _ string, _ interface{}) error {
	m.BalanceReads.Inc()
	return nil
}

// OnReportGenerated implements plugin.OnReportGenerated.
func (m *MetricsExtension) OnReportGenerated(_ context.Context, _ interface{}) error {
	m.ReportsGenerated.Inc()
	return nil
}
