// Package creditledger provides an embeddable credit ledger and
// allocation engine for Go applications.
//
// The engine manages per-account credit balances as a set of discrete
// credits rather than a single pooled counter. Each credit carries its
// own amount, restrictions, and optional expiration, and every change to
// a credit is paired with an immutable ledger entry, giving a complete
// audit trail that can reconstruct any balance from history.
//
// It is designed as a library, not a service. Import it directly into
// your application and call it in-process from checkout flows, admin
// tooling, schedulers, and reporting layers:
//
//   - Grant issues promotional, refund, adjustment, or bonus credits
//   - Allocate debits eligible credits against an order, spending the
//     soonest-expiring credit first
//   - Refund restores exactly what an order consumed, credit by credit
//   - SweepExpired forfeits credits past their expiration
//   - Balance and Report are read-only views over credits and entries
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/xraph/creditledger"
//	    "github.com/xraph/creditledger/store/postgres"
//	)
//
//	store, err := postgres.New(ctx, databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	l := creditledger.New(store)
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
//	result, err := l.Grant(ctx, creditledger.GrantRequest{
//	    AccountID:   "acct_123",
//	    Amount:      creditledger.USD(10000),
//	    Type:        credit.TypePromotional,
//	    Description: "Welcome credit",
//	    GrantedBy:   "admin@example.com",
//	})
//
// # Consistency
//
// Every mutating operation runs as one atomic unit of work: the credit
// row changes and their ledger entries commit together or not at all.
// Stores report write conflicts as ErrConcurrencyConflict and the engine
// retries them transparently, so concurrent allocations against the same
// credits never over-debit.
//
// All monetary calculations use integer arithmetic in the smallest
// currency unit (cents for USD, pence for GBP). There are no floats
// anywhere in the money path.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	crd_01h2xcejqtf2nbrexx3vqjhp41  // Credit ID
//	txn_01h455vb4pex5vsknk084sn02q  // Ledger entry ID
//
// TypeIDs are K-sortable, so entry IDs give a natural per-account
// creation ordering.
package creditledger
