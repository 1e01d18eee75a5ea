// Package store defines the unified storage interface for the credit
// ledger and its atomic unit-of-work contract.
package store

import (
	"context"
	"time"

	"github.com/xraph/creditledger/credit"
	"github.com/xraph/creditledger/entry"
	"github.com/xraph/creditledger/id"
)

// Store is the unified storage interface. Read methods take no locks and
// may observe slightly stale state under concurrent mutation; the
// persisted rows remain the source of truth.
type Store interface {
	// Credit reads
	GetCredit(ctx context.Context, creditID id.CreditID) (*credit.Credit, error)
	ListCredits(ctx context.Context, accountID string, opts credit.ListOpts) ([]*credit.Credit, error)

	// Entry reads. Results are in creation order (oldest first).
	ListEntries(ctx context.Context, accountID string, opts entry.ListOpts) ([]*entry.Entry, error)

	// Atomic executes fn as an all-or-nothing unit of work. Rows read
	// through the Tx's ForUpdate methods are locked (or conflict-checked)
	// until the unit of work commits, so no interleaving with a
	// concurrent mutation of the same credit can produce an inconsistent
	// used/remaining pair or a ledger entry whose balance snapshots do
	// not reflect the true preceding state. If fn returns an error,
	// nothing is persisted. A conflict is reported as
	// creditledger.ErrConcurrencyConflict and is safe to retry.
	Atomic(ctx context.Context, fn func(tx Tx) error) error

	// Core lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the handle passed to an atomic unit of work. All writes performed
// through it become visible together on commit, or not at all.
type Tx interface {
	// CreditForUpdate loads one credit with its row locked for the
	// remainder of the unit of work.
	CreditForUpdate(ctx context.Context, creditID id.CreditID) (*credit.Credit, error)

	// CreditsForUpdate loads and locks every credit of an account, in
	// grant order (oldest first).
	CreditsForUpdate(ctx context.Context, accountID string) ([]*credit.Credit, error)

	// ExpiredForUpdate loads and locks every credit, across all accounts,
	// that is not fully used and whose expiration is at or before asOf.
	ExpiredForUpdate(ctx context.Context, asOf time.Time) ([]*credit.Credit, error)

	// OrderUsage returns the use and refund entries previously written
	// for the given order, in the order they were originally written.
	OrderUsage(ctx context.Context, accountID, orderID string) ([]*entry.Entry, error)

	// InsertCredit persists a new credit row.
	InsertCredit(ctx context.Context, c *credit.Credit) error

	// UpdateCredit persists new usage counters for an existing credit.
	UpdateCredit(ctx context.Context, c *credit.Credit) error

	// AppendEntry appends one immutable ledger entry.
	AppendEntry(ctx context.Context, e *entry.Entry) error
}
