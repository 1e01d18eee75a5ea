package creditledger

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/creditledger/entry"
	"github.com/xraph/creditledger/types"
)

// ReportSummary totals ledger activity per event type over a window. All
// figures are absolute values in the engine currency.
type ReportSummary struct {
	CreditsGranted  types.Money `json:"credits_granted"`
	CreditsUsed     types.Money `json:"credits_used"`
	CreditsExpired  types.Money `json:"credits_expired"`
	CreditsRefunded types.Money `json:"credits_refunded"`
}

// Report is a time-bounded view of an account's ledger activity: the
// per-type summary plus the raw entries for drill-down.
type Report struct {
	AccountID string         `json:"account_id"`
	Start     time.Time      `json:"start"`
	End       time.Time      `json:"end"`
	Summary   ReportSummary  `json:"summary"`
	Entries   []*entry.Entry `json:"entries"`
}

// Report summarizes the account's ledger activity from start (inclusive)
// to end (exclusive). Purely derived from the entry log; no writes, no
// locks. An account with no ledger history at all does not exist and
// yields ErrAccountNotFound; an existing account with no activity in the
// window yields an empty report.
func (l *Ledger) Report(ctx context.Context, accountID string, start, end time.Time) (*Report, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: missing account id", ErrInvalidInput)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: report window ends before it starts", ErrInvalidInput)
	}

	all, err := l.store.ListEntries(ctx, accountID, entry.ListOpts{})
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}

	report := &Report{
		AccountID: accountID,
		Start:     start,
		End:       end,
		Summary: ReportSummary{
			CreditsGranted:  types.Zero(l.currency),
			CreditsUsed:     types.Zero(l.currency),
			CreditsExpired:  types.Zero(l.currency),
			CreditsRefunded: types.Zero(l.currency),
		},
		Entries: []*entry.Entry{},
	}

	window := entry.ListOpts{Start: start, End: end}
	for _, e := range all {
		if !window.Matches(e) {
			continue
		}
		report.Entries = append(report.Entries, e)

		switch e.Type {
		case entry.TypeGrant:
			report.Summary.CreditsGranted = report.Summary.CreditsGranted.Add(e.Amount)
		case entry.TypeUse:
			report.Summary.CreditsUsed = report.Summary.CreditsUsed.Add(e.Amount.Abs())
		case entry.TypeExpire:
			report.Summary.CreditsExpired = report.Summary.CreditsExpired.Add(e.Amount.Abs())
		case entry.TypeRefund:
			report.Summary.CreditsRefunded = report.Summary.CreditsRefunded.Add(e.Amount)
		}
	}

	l.plugins.EmitReportGenerated(ctx, report)

	return report, nil
}
