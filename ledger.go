package creditledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/creditledger/plugin"
	"github.com/xraph/creditledger/store"
	"github.com/xraph/creditledger/types"
)

// DefaultCurrency is the currency the engine assumes unless configured.
const DefaultCurrency = "usd"

// defaultMaxRetries bounds transparent retries of conflicting units of work.
const defaultMaxRetries = 3

// Ledger is the credit ledger and allocation engine. It is a library-level
// component: callers (checkout flows, admin tooling, schedulers,
// presentation layers) invoke it in-process. All mutating operations run
// as atomic units of work against the configured store.
type Ledger struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	currency   string
	now        func() time.Time
	maxRetries int

	// Background sweeper
	sweepInterval time.Duration
	stopChan      chan struct{}
	wg            sync.WaitGroup
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:      s,
		plugins:    plugin.NewRegistry(),
		logger:     slog.Default(),
		currency:   DefaultCurrency,
		now:        time.Now,
		maxRetries: defaultMaxRetries,
		stopChan:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithCurrency sets the currency all grants and orders must carry.
func WithCurrency(currency string) Option {
	return func(l *Ledger) {
		l.currency = currency
	}
}

// WithClock injects the engine's time source. Tests use this to pin the
// rolling expiring-balance window and expiration checks.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithSweepInterval enables the background expiration sweeper at the
// given cadence. Zero (the default) leaves sweeping to an external
// scheduler calling SweepExpired.
func WithSweepInterval(interval time.Duration) Option {
	return func(l *Ledger) {
		l.sweepInterval = interval
	}
}

// WithMaxRetries bounds the transparent retries of units of work that
// fail with ErrConcurrencyConflict.
func WithMaxRetries(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxRetries = n
		}
	}
}

// Start migrates the store, initializes plugins, and launches the
// background sweeper when one is configured.
func (l *Ledger) Start(ctx context.Context) error {
	if err := l.store.Migrate(ctx); err != nil {
		return err
	}

	l.plugins.EmitInit(ctx, l)

	if l.sweepInterval > 0 {
		l.wg.Add(1)
		go l.sweepWorker(ctx)
	}

	l.logger.Info("credit ledger started",
		"currency", l.currency,
		"sweep_interval", l.sweepInterval,
	)

	return nil
}

// Stop shuts down the Ledger. When the background sweeper is enabled it
// runs one final sweep so a shutdown between ticks does not leave
// already-expired credits spendable until the next start.
func (l *Ledger) Stop() error {
	close(l.stopChan)
	l.wg.Wait()

	ctx := context.Background()
	if l.sweepInterval > 0 {
		if _, err := l.SweepExpired(ctx); err != nil {
			l.logger.Error("final sweep on shutdown failed", "error", err)
		}
	}
	l.plugins.EmitShutdown(ctx)

	return l.store.Close()
}

// sweepWorker forfeits expired credits on a recurring cadence. Sweeping
// is idempotent, so overlapping with an externally scheduled sweep is
// harmless.
func (l *Ledger) sweepWorker(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return

		case <-ticker.C:
			result, err := l.SweepExpired(ctx)
			if err != nil {
				l.logger.Error("background sweep failed", "error", err)
				continue
			}
			if result.ExpiredCredits > 0 {
				l.logger.Info("background sweep forfeited credits",
					"expired_credits", result.ExpiredCredits,
					"total_expired", result.TotalAmountExpired.String(),
				)
			}
		}
	}
}

// atomic runs fn as an all-or-nothing unit of work, transparently
// retrying conflicts up to maxRetries. Business errors are never retried.
func (l *Ledger) atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	var err error
	for attempt := 0; attempt < l.maxRetries; attempt++ {
		err = l.store.Atomic(ctx, fn)
		if err == nil || !errors.Is(err, ErrConcurrencyConflict) {
			return err
		}
		l.logger.Debug("unit of work conflicted, retrying",
			"attempt", attempt+1,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 2 * time.Millisecond):
		}
	}
	return err
}

// checkAmount validates a caller-supplied monetary amount before any
// write happens.
func (l *Ledger) checkAmount(m types.Money) error {
	if m.Currency != l.currency {
		return ErrCurrencyMismatch
	}
	if !m.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}
