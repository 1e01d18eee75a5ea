package creditledger

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/creditledger/credit"
	"github.com/xraph/creditledger/entry"
	"github.com/xraph/creditledger/id"
	"github.com/xraph/creditledger/types"
)

// ExpiringWindow is the rolling window used to report near-term expiring
// balance.
const ExpiringWindow = 30 * 24 * time.Hour

// AccountBalance is a point-in-time view of an account's spendable
// credit. TotalBalance is always the live aggregate over active credits;
// no balance counter is cached anywhere.
type AccountBalance struct {
	AccountID       string           `json:"account_id"`
	TotalBalance    types.Money      `json:"total_balance"`
	ExpiringBalance types.Money      `json:"expiring_balance"`
	Credits         []*credit.Credit `json:"credits"`
}

// Balance reports the account's current balance: the sum of remaining
// amounts over credits that are not fully used and not expired, plus the
// portion of that sum expiring within the next 30 days. Read-only; takes
// no locks, so it may trail an in-flight mutation by an instant.
//
// A fresh account with no credits gets an empty balance, not an error.
func (l *Ledger) Balance(ctx context.Context, accountID string) (*AccountBalance, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: missing account id", ErrInvalidInput)
	}

	now := l.now().UTC()

	credits, err := l.store.ListCredits(ctx, accountID, credit.ListOpts{ActiveOnly: true})
	if err != nil {
		return nil, err
	}

	balance := &AccountBalance{
		AccountID:       accountID,
		TotalBalance:    types.Zero(l.currency),
		ExpiringBalance: types.Zero(l.currency),
		Credits:         []*credit.Credit{},
	}

	for _, c := range credits {
		if !c.Active(now) {
			continue
		}
		balance.TotalBalance = balance.TotalBalance.Add(c.RemainingAmount)
		if c.ExpiresWithin(now, ExpiringWindow) {
			balance.ExpiringBalance = balance.ExpiringBalance.Add(c.RemainingAmount)
		}
		balance.Credits = append(balance.Credits, c)
	}

	l.plugins.EmitBalanceRead(ctx, accountID, balance.TotalBalance)

	return balance, nil
}

// Credit returns one credit by id, including fully used and forfeited
// ones.
func (l *Ledger) Credit(ctx context.Context, creditID id.CreditID) (*credit.Credit, error) {
	return l.store.GetCredit(ctx, creditID)
}

// Credits lists an account's credits.
func (l *Ledger) Credits(ctx context.Context, accountID string, opts credit.ListOpts) ([]*credit.Credit, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: missing account id", ErrInvalidInput)
	}
	return l.store.ListCredits(ctx, accountID, opts)
}

// Entries lists an account's ledger entries in creation order, for
// drill-down beyond what Report summarizes.
func (l *Ledger) Entries(ctx context.Context, accountID string, opts entry.ListOpts) ([]*entry.Entry, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: missing account id", ErrInvalidInput)
	}
	return l.store.ListEntries(ctx, accountID, opts)
}
