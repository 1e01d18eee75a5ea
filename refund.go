package creditledger

import (
	"context"
	"fmt"

	"github.com/xraph/creditledger/entry"
	"github.com/xraph/creditledger/id"
	"github.com/xraph/creditledger/store"
	"github.com/xraph/creditledger/types"
)

// RefundRequest asks the engine to restore credits consumed by an order.
type RefundRequest struct {
	AccountID    string
	OrderID      string
	RefundAmount types.Money
	Reason       string
}

// RestoredCredit records one credit's share of a refund.
type RestoredCredit struct {
	CreditID id.CreditID `json:"credit_id"`
	Amount   types.Money `json:"amount"`
}

// RefundResult reports what a refund actually restored. Restored may be
// less than Requested when the order consumed less credit than the refund
// amount; callers should surface the discrepancy rather than assume the
// full amount came back.
type RefundResult struct {
	AccountID       string           `json:"account_id"`
	OrderID         string           `json:"order_id"`
	Requested       types.Money      `json:"requested"`
	Restored        types.Money      `json:"restored"`
	RestoredCredits []RestoredCredit `json:"restored_credits"`
}

// Refund walks the order's use entries in the order they were written and
// restores each credit's consumed amount, up to the requested refund. A
// credit is never restored beyond what the order took from it, and never
// beyond its lifetime used amount, so a credit cannot end up holding more
// than it was granted.
func (l *Ledger) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if req.AccountID == "" || req.OrderID == "" {
		return nil, fmt.Errorf("%w: missing account or order id", ErrInvalidInput)
	}
	if err := l.checkAmount(req.RefundAmount); err != nil {
		return nil, err
	}

	now := l.now().UTC()

	result := &RefundResult{
		AccountID:       req.AccountID,
		OrderID:         req.OrderID,
		Requested:       req.RefundAmount,
		Restored:        types.Zero(l.currency),
		RestoredCredits: []RestoredCredit{},
	}

	err := l.atomic(ctx, func(tx store.Tx) error {
		result.Restored = types.Zero(l.currency)
		result.RestoredCredits = result.RestoredCredits[:0]

		usage, err := tx.OrderUsage(ctx, req.AccountID, req.OrderID)
		if err != nil {
			return err
		}

		// Net out prior refunds per credit so repeated refunds against
		// the same order stay bounded by what the order consumed.
		restorable := make(map[string]types.Money, len(usage))
		var order []string
		for _, u := range usage {
			key := u.CreditID.String()
			cur, ok := restorable[key]
			if !ok {
				cur = types.Zero(l.currency)
				order = append(order, key)
			}
			switch u.Type {
			case entry.TypeUse:
				cur = cur.Add(u.Amount.Abs())
			case entry.TypeRefund:
				cur = cur.Subtract(u.Amount)
			}
			restorable[key] = cur
		}

		remaining := req.RefundAmount
		for _, key := range order {
			if !remaining.IsPositive() {
				break
			}
			avail := restorable[key]
			if !avail.IsPositive() {
				continue
			}

			creditID, err := id.ParseCreditID(key)
			if err != nil {
				return fmt.Errorf("%w: corrupt credit id in entry: %v", ErrPersistenceFailure, err)
			}
			c, err := tx.CreditForUpdate(ctx, creditID)
			if err != nil {
				return err
			}

			restore := remaining.Min(avail).Min(c.UsedAmount)
			if !restore.IsPositive() {
				continue
			}

			previous := c.RemainingAmount
			c.RemainingAmount = c.RemainingAmount.Add(restore)
			c.UsedAmount = c.UsedAmount.Subtract(restore)
			c.IsFullyUsed = false
			c.TouchAt(now)

			if err := tx.UpdateCredit(ctx, c); err != nil {
				return err
			}

			e := &entry.Entry{
				ID:              id.NewEntryID(),
				AccountID:       req.AccountID,
				CreditID:        c.ID,
				OrderID:         req.OrderID,
				Type:            entry.TypeRefund,
				Amount:          restore,
				PreviousBalance: previous,
				NewBalance:      c.RemainingAmount,
				Description:     refundDescription(req),
				CreatedAt:       now,
			}
			if err := tx.AppendEntry(ctx, e); err != nil {
				return err
			}

			result.RestoredCredits = append(result.RestoredCredits, RestoredCredit{
				CreditID: c.ID,
				Amount:   restore,
			})
			result.Restored = result.Restored.Add(restore)
			remaining = remaining.Subtract(restore)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Restored.LessThan(result.Requested) {
		l.logger.Warn("refund restored less than requested",
			"account_id", req.AccountID,
			"order_id", req.OrderID,
			"requested", result.Requested.String(),
			"restored", result.Restored.String(),
		)
	} else {
		l.logger.Info("refund applied",
			"account_id", req.AccountID,
			"order_id", req.OrderID,
			"restored", result.Restored.String(),
		)
	}
	l.plugins.EmitRefundApplied(ctx, result)

	return result, nil
}

func refundDescription(req RefundRequest) string {
	if req.Reason != "" {
		return fmt.Sprintf("Refund for order %s: %s", req.OrderID, req.Reason)
	}
	return fmt.Sprintf("Refund for order %s", req.OrderID)
}
