package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit             []OnInit
	onShutdown         []OnShutdown
	onCreditGranted    []OnCreditGranted
	onCreditsAllocated []OnCreditsAllocated
	onRefundApplied    []OnRefundApplied
	onCreditsExpired   []OnCreditsExpired
	onSweepCompleted   []OnSweepCompleted
	onBalanceRead      []OnBalanceRead
	onReportGenerated  []OnReportGenerated
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnCreditGranted); ok {
		r.onCreditGranted = append(r.onCreditGranted, v)
	}
	if v, ok := p.(OnCreditsAllocated); ok {
		r.onCreditsAllocated = append(r.onCreditsAllocated, v)
	}
	if v, ok := p.(OnRefundApplied); ok {
		r.onRefundApplied = append(r.onRefundApplied, v)
	}
	if v, ok := p.(OnCreditsExpired); ok {
		r.onCreditsExpired = append(r.onCreditsExpired, v)
	}
	if v, ok := p.(OnSweepCompleted); ok {
		r.onSweepCompleted = append(r.onSweepCompleted, v)
	}
	if v, ok := p.(OnBalanceRead); ok {
		r.onBalanceRead = append(r.onBalanceRead, v)
	}
	if v, ok := p.(OnReportGenerated); ok {
		r.onReportGenerated = append(r.onReportGenerated, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnCreditGranted)(nil)).Elem(), "OnCreditGranted")
	checkInterface(reflect.TypeOf((*OnCreditsAllocated)(nil)).Elem(), "OnCreditsAllocated")
	checkInterface(reflect.TypeOf((*OnRefundApplied)(nil)).Elem(), "OnRefundApplied")
	checkInterface(reflect.TypeOf((*OnCreditsExpired)(nil)).Elem(), "OnCreditsExpired")
	checkInterface(reflect.TypeOf((*OnSweepCompleted)(nil)).Elem(), "OnSweepCompleted")
	checkInterface(reflect.TypeOf((*OnBalanceRead)(nil)).Elem(), "OnBalanceRead")
	checkInterface(reflect.TypeOf((*OnReportGenerated)(nil)).Elem(), "OnReportGenerated")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns the names of all registered plugins.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.plugins))
	for _, p := range r.plugins {
		names = append(names, p.Name())
	}
	return names
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, ledger interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, ledger)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCreditGranted emits a credit granted event.
func (r *Registry) EmitCreditGranted(ctx context.Context, c interface{}) {
	r.mu.RLock()
	plugins := r.onCreditGranted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCreditGranted(ctx, c)
		}); err != nil {
			r.logger.Warn("plugin OnCreditGranted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCreditsAllocated emits a credits allocated event.
func (r *Registry) EmitCreditsAllocated(ctx context.Context, allocation interface{}) {
	r.mu.RLock()
	plugins := r.onCreditsAllocated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCreditsAllocated(ctx, allocation)
		}); err != nil {
			r.logger.Warn("plugin OnCreditsAllocated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitRefundApplied emits a refund applied event.
func (r *Registry) EmitRefundApplied(ctx context.Context, refund interface{}) {
	r.mu.RLock()
	plugins := r.onRefundApplied
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnRefundApplied(ctx, refund)
		}); err != nil {
			r.logger.Warn("plugin OnRefundApplied failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCreditsExpired emits one event per credit forfeited by a sweep.
func (r *Registry) EmitCreditsExpired(ctx context.Context, c interface{}) {
	r.mu.RLock()
	plugins := r.onCreditsExpired
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCreditsExpired(ctx, c)
		}); err != nil {
			r.logger.Warn("plugin OnCreditsExpired failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSweepCompleted emits a sweep completed event.
func (r *Registry) EmitSweepCompleted(ctx context.Context, expiredCredits int, totalExpired interface{}, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onSweepCompleted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSweepCompleted(ctx, expiredCredits, totalExpired, elapsed)
		}); err != nil {
			r.logger.Warn("plugin OnSweepCompleted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitBalanceRead emits a balance read event.
func (r *Registry) EmitBalanceRead(ctx context.Context, accountID string, total interface{}) {
	r.mu.RLock()
	plugins := r.onBalanceRead
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnBalanceRead(ctx, accountID, total)
		}); err != nil {
			r.logger.Warn("plugin OnBalanceRead failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitReportGenerated emits a report generated event.
func (r *Registry) EmitReportGenerated(ctx context.Context, report interface{}) {
	r.mu.RLock()
	plugins := r.onReportGenerated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnReportGenerated(ctx, report)
		}); err != nil {
			r.logger.Warn("plugin OnReportGenerated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout guards against a misbehaving plugin blocking the engine.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
