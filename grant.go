package creditledger

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/creditledger/credit"
	"github.com/xraph/creditledger/entry"
	"github.com/xraph/creditledger/id"
	"github.com/xraph/creditledger/store"
	"github.com/xraph/creditledger/types"
)

// GrantRequest describes a new credit to issue.
type GrantRequest struct {
	AccountID   string
	Amount      types.Money
	Type        credit.Type
	Source      string
	Description string
	GrantedBy   string

	// Optional
	ExpiresAt    *time.Time
	Restrictions *credit.Restrictions
}

// GrantResult reports the issued credit and the account's aggregate
// balance immediately after the grant.
type GrantResult struct {
	CreditID   id.CreditID
	NewBalance types.Money
}

// Grant issues a new credit and its grant ledger entry in one atomic unit
// of work. The account's aggregate balance rises by exactly the granted
// amount.
func (l *Ledger) Grant(ctx context.Context, req GrantRequest) (*GrantResult, error) {
	if req.AccountID == "" {
		return nil, fmt.Errorf("%w: missing account id", ErrInvalidInput)
	}
	if err := l.checkAmount(req.Amount); err != nil {
		return nil, err
	}
	if err := l.checkRestrictions(req.Restrictions); err != nil {
		return nil, err
	}

	now := l.now().UTC()

	c := &credit.Credit{
		Entity:          types.EntityAt(now),
		ID:              id.NewCreditID(),
		AccountID:       req.AccountID,
		Amount:          req.Amount,
		Type:            req.Type,
		Source:          req.Source,
		Description:     req.Description,
		GrantedBy:       req.GrantedBy,
		Restrictions:    req.Restrictions.Clone(),
		UsedAmount:      types.Zero(l.currency),
		RemainingAmount: req.Amount,
	}
	if req.ExpiresAt != nil {
		t := req.ExpiresAt.UTC()
		c.ExpiresAt = &t
	}

	e := &entry.Entry{
		ID:              id.NewEntryID(),
		AccountID:       req.AccountID,
		CreditID:        c.ID,
		Type:            entry.TypeGrant,
		Amount:          req.Amount,
		PreviousBalance: types.Zero(l.currency),
		NewBalance:      req.Amount,
		Description:     req.Description,
		CreatedAt:       now,
	}

	var newBalance types.Money
	err := l.atomic(ctx, func(tx store.Tx) error {
		existing, err := tx.CreditsForUpdate(ctx, req.AccountID)
		if err != nil {
			return err
		}

		if err := tx.InsertCredit(ctx, c); err != nil {
			return err
		}
		if err := tx.AppendEntry(ctx, e); err != nil {
			return err
		}

		newBalance = req.Amount
		for _, ec := range existing {
			if ec.Active(now) {
				newBalance = newBalance.Add(ec.RemainingAmount)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("credit granted",
		"account_id", req.AccountID,
		"credit_id", c.ID.String(),
		"amount", req.Amount.String(),
		"type", string(req.Type),
		"granted_by", req.GrantedBy,
	)
	l.plugins.EmitCreditGranted(ctx, c)

	return &GrantResult{CreditID: c.ID, NewBalance: newBalance}, nil
}

// checkRestrictions rejects restriction amounts in a foreign currency or
// with non-positive values before any write.
func (l *Ledger) checkRestrictions(r *credit.Restrictions) error {
	if r == nil {
		return nil
	}
	if r.MinimumOrderAmount != nil {
		if err := l.checkAmount(*r.MinimumOrderAmount); err != nil {
			return err
		}
	}
	if r.MaximumUsageAmount != nil {
		if err := l.checkAmount(*r.MaximumUsageAmount); err != nil {
			return err
		}
	}
	return nil
}
