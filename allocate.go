package creditledger

import (
	"context"
	"fmt"
	"sort"

	"github.com/xraph/creditledger/credit"
	"github.com/xraph/creditledger/entry"
	"github.com/xraph/creditledger/id"
	"github.com/xraph/creditledger/store"
	"github.com/xraph/creditledger/types"
)

// AllocateRequest asks the engine to apply an account's credits against
// an order.
type AllocateRequest struct {
	AccountID   string
	OrderID     string
	OrderAmount types.Money
	OrderType   string

	// MaxCreditAmount optionally caps how much credit the order may
	// consume; nil means up to the full order amount.
	MaxCreditAmount *types.Money
}

// AppliedCredit records one credit's contribution to an allocation.
type AppliedCredit struct {
	CreditID    id.CreditID `json:"credit_id"`
	AmountUsed  types.Money `json:"amount_used"`
	CreditType  credit.Type `json:"credit_type"`
	Description string      `json:"description"`
}

// Allocation is the outcome of applying credits against one order.
type Allocation struct {
	AccountID            string          `json:"account_id"`
	OrderID              string          `json:"order_id"`
	CreditsApplied       types.Money     `json:"credits_applied"`
	RemainingOrderAmount types.Money     `json:"remaining_order_amount"`
	AppliedCredits       []AppliedCredit `json:"applied_credits"`
}

// Allocate selects the account's eligible credits in FIFO-by-urgency
// order (soonest-expiring first, then oldest grant) and debits them
// atomically against the order, writing one use entry per debited credit.
//
// The engine does not deduplicate by OrderID: calling Allocate twice for
// the same order double-charges. Callers that need idempotency should
// check OrderActivity for existing use entries before calling.
func (l *Ledger) Allocate(ctx context.Context, req AllocateRequest) (*Allocation, error) {
	if req.AccountID == "" || req.OrderID == "" {
		return nil, fmt.Errorf("%w: missing account or order id", ErrInvalidInput)
	}
	if err := l.checkAmount(req.OrderAmount); err != nil {
		return nil, err
	}
	if req.MaxCreditAmount != nil && req.MaxCreditAmount.Currency != l.currency {
		return nil, ErrCurrencyMismatch
	}

	target := req.OrderAmount
	if req.MaxCreditAmount != nil {
		target = target.Min(*req.MaxCreditAmount)
	}

	now := l.now().UTC()

	result := &Allocation{
		AccountID:            req.AccountID,
		OrderID:              req.OrderID,
		CreditsApplied:       types.Zero(l.currency),
		RemainingOrderAmount: req.OrderAmount,
		AppliedCredits:       []AppliedCredit{},
	}
	if !target.IsPositive() {
		return result, nil
	}

	err := l.atomic(ctx, func(tx store.Tx) error {
		// Reset accumulators: the closure may run again after a conflict.
		result.CreditsApplied = types.Zero(l.currency)
		result.RemainingOrderAmount = req.OrderAmount
		result.AppliedCredits = result.AppliedCredits[:0]

		all, err := tx.CreditsForUpdate(ctx, req.AccountID)
		if err != nil {
			return err
		}

		eligible := make([]*credit.Credit, 0, len(all))
		for _, c := range all {
			if c.EligibleFor(req.OrderAmount, req.OrderType, now) {
				eligible = append(eligible, c)
			}
		}
		orderByUrgency(eligible)

		remaining := target
		for _, c := range eligible {
			if !remaining.IsPositive() {
				break
			}

			use := remaining.Min(c.UsageHeadroom())
			if !use.IsPositive() {
				continue
			}

			previous := c.RemainingAmount
			c.RemainingAmount = c.RemainingAmount.Subtract(use)
			c.UsedAmount = c.UsedAmount.Add(use)
			if c.RemainingAmount.IsZero() {
				c.IsFullyUsed = true
			}
			c.TouchAt(now)

			if err := tx.UpdateCredit(ctx, c); err != nil {
				return err
			}

			e := &entry.Entry{
				ID:              id.NewEntryID(),
				AccountID:       req.AccountID,
				CreditID:        c.ID,
				OrderID:         req.OrderID,
				Type:            entry.TypeUse,
				Amount:          use.Negate(),
				PreviousBalance: previous,
				NewBalance:      c.RemainingAmount,
				Description:     fmt.Sprintf("Applied to order %s", req.OrderID),
				CreatedAt:       now,
			}
			if err := tx.AppendEntry(ctx, e); err != nil {
				return err
			}

			result.AppliedCredits = append(result.AppliedCredits, AppliedCredit{
				CreditID:    c.ID,
				AmountUsed:  use,
				CreditType:  c.Type,
				Description: c.Description,
			})
			result.CreditsApplied = result.CreditsApplied.Add(use)
			remaining = remaining.Subtract(use)
		}

		result.RemainingOrderAmount = req.OrderAmount.Subtract(result.CreditsApplied)
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("credits allocated",
		"account_id", req.AccountID,
		"order_id", req.OrderID,
		"order_amount", req.OrderAmount.String(),
		"credits_applied", result.CreditsApplied.String(),
		"credits_touched", len(result.AppliedCredits),
	)
	l.plugins.EmitCreditsAllocated(ctx, result)

	return result, nil
}

// OrderActivity returns the use entries already written for an order, in
// the order they were written. Callers use it to deduplicate allocations
// by order before invoking Allocate.
func (l *Ledger) OrderActivity(ctx context.Context, accountID, orderID string) ([]*entry.Entry, error) {
	return l.store.ListEntries(ctx, accountID, entry.ListOpts{
		OrderID: orderID,
		Types:   []entry.Type{entry.TypeUse},
	})
}

// orderByUrgency sorts credits so the soonest-to-expire, oldest credit is
// consumed first: expiring credits before non-expiring ones, ascending
// expiration among those, ascending grant time as tie-break.
func orderByUrgency(credits []*credit.Credit) {
	sort.SliceStable(credits, func(i, j int) bool {
		ci, cj := credits[i], credits[j]

		switch {
		case ci.ExpiresAt != nil && cj.ExpiresAt == nil:
			return true
		case ci.ExpiresAt == nil && cj.ExpiresAt != nil:
			return false
		case ci.ExpiresAt != nil && cj.ExpiresAt != nil:
			if !ci.ExpiresAt.Equal(*cj.ExpiresAt) {
				return ci.ExpiresAt.Before(*cj.ExpiresAt)
			}
		}

		if !ci.CreatedAt.Equal(cj.CreatedAt) {
			return ci.CreatedAt.Before(cj.CreatedAt)
		}
		return ci.ID.String() < cj.ID.String()
	})
}
