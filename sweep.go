package creditledger

import (
	"context"
	"fmt"

	"github.com/xraph/creditledger/credit"
	"github.com/xraph/creditledger/entry"
	"github.com/xraph/creditledger/id"
	"github.com/xraph/creditledger/store"
	"github.com/xraph/creditledger/types"
)

// SweepResult summarizes one expiration sweep.
type SweepResult struct {
	ExpiredCredits     int         `json:"expired_credits"`
	TotalAmountExpired types.Money `json:"total_amount_expired"`
}

// SweepExpired forfeits every credit whose expiration has passed, across
// all accounts. Each forfeited credit is flagged fully used (removing it
// from balances and allocation) and gets one expire entry for the value
// lost. Remaining amounts are kept as written history rather than zeroed.
//
// The sweep is idempotent: already-forfeited credits are skipped, so
// calling it more often than needed is harmless. Start runs it on a
// ticker when WithSweepInterval is set; it can equally be driven by an
// external scheduler.
func (l *Ledger) SweepExpired(ctx context.Context) (*SweepResult, error) {
	started := l.now()
	now := started.UTC()

	result := &SweepResult{
		TotalAmountExpired: types.Zero(l.currency),
	}

	var forfeited []*credit.Credit
	err := l.atomic(ctx, func(tx store.Tx) error {
		result.ExpiredCredits = 0
		result.TotalAmountExpired = types.Zero(l.currency)
		forfeited = forfeited[:0]

		expired, err := tx.ExpiredForUpdate(ctx, now)
		if err != nil {
			return err
		}

		for _, c := range expired {
			lost := c.RemainingAmount
			if !lost.IsPositive() {
				continue
			}

			c.IsFullyUsed = true
			c.TouchAt(now)
			if err := tx.UpdateCredit(ctx, c); err != nil {
				return err
			}

			e := &entry.Entry{
				ID:              id.NewEntryID(),
				AccountID:       c.AccountID,
				CreditID:        c.ID,
				Type:            entry.TypeExpire,
				Amount:          lost.Negate(),
				PreviousBalance: lost,
				NewBalance:      types.Zero(lost.Currency),
				Description:     fmt.Sprintf("Credit expired at %s", c.ExpiresAt.Format("2006-01-02")),
				CreatedAt:       now,
			}
			if err := tx.AppendEntry(ctx, e); err != nil {
				return err
			}

			forfeited = append(forfeited, c)
			result.ExpiredCredits++
			result.TotalAmountExpired = result.TotalAmountExpired.Add(lost)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.ExpiredCredits > 0 {
		l.logger.Info("expired credits swept",
			"expired_credits", result.ExpiredCredits,
			"total_amount_expired", result.TotalAmountExpired.String(),
		)
	}
	for _, c := range forfeited {
		l.plugins.EmitCreditsExpired(ctx, c)
	}
	l.plugins.EmitSweepCompleted(ctx, result.ExpiredCredits, result.TotalAmountExpired, l.now().Sub(started))

	return result, nil
}
