package entry_test

import (
	"testing"
	"time"

	"github.com/xraph/creditledger/entry"
	"github.com/xraph/creditledger/id"
	"github.com/xraph/creditledger/types"
)

func validEntry(typ entry.Type, amount int64, orderID string) *entry.Entry {
	prev := types.Zero("usd")
	next := types.USD(amount)
	if amount < 0 {
		prev = types.USD(-amount)
		next = types.Zero("usd")
	}
	return &entry.Entry{
		ID:              id.NewEntryID(),
		AccountID:       "acct_1",
		CreditID:        id.NewCreditID(),
		OrderID:         orderID,
		Type:            typ,
		Amount:          types.USD(amount),
		PreviousBalance: prev,
		NewBalance:      next,
		CreatedAt:       time.Now().UTC(),
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*entry.Entry)
		entry   *entry.Entry
		wantErr bool
	}{
		{name: "valid grant", entry: validEntry(entry.TypeGrant, 1000, "")},
		{name: "valid use", entry: validEntry(entry.TypeUse, -1000, "order_1")},
		{name: "valid refund", entry: validEntry(entry.TypeRefund, 500, "order_1")},
		{name: "valid expire", entry: validEntry(entry.TypeExpire, -500, "")},
		{
			name:    "grant must be positive",
			entry:   validEntry(entry.TypeGrant, 1000, ""),
			mutate:  func(e *entry.Entry) { e.Amount = types.USD(-1000) },
			wantErr: true,
		},
		{
			name:    "use must be negative",
			entry:   validEntry(entry.TypeUse, -1000, "order_1"),
			mutate:  func(e *entry.Entry) { e.Amount = types.USD(1000) },
			wantErr: true,
		},
		{
			name:    "use requires order id",
			entry:   validEntry(entry.TypeUse, -1000, "order_1"),
			mutate:  func(e *entry.Entry) { e.OrderID = "" },
			wantErr: true,
		},
		{
			name:    "refund requires order id",
			entry:   validEntry(entry.TypeRefund, 500, "order_1"),
			mutate:  func(e *entry.Entry) { e.OrderID = "" },
			wantErr: true,
		},
		{
			name:    "grant must not carry order id",
			entry:   validEntry(entry.TypeGrant, 1000, ""),
			mutate:  func(e *entry.Entry) { e.OrderID = "order_1" },
			wantErr: true,
		},
		{
			name:    "expire must not carry order id",
			entry:   validEntry(entry.TypeExpire, -500, ""),
			mutate:  func(e *entry.Entry) { e.OrderID = "order_1" },
			wantErr: true,
		},
		{
			name:    "balance delta must match amount",
			entry:   validEntry(entry.TypeGrant, 1000, ""),
			mutate:  func(e *entry.Entry) { e.NewBalance = types.USD(999) },
			wantErr: true,
		},
		{
			name:    "unknown type",
			entry:   validEntry(entry.TypeGrant, 1000, ""),
			mutate:  func(e *entry.Entry) { e.Type = "mystery" },
			wantErr: true,
		},
		{
			name:    "missing id",
			entry:   validEntry(entry.TypeGrant, 1000, ""),
			mutate:  func(e *entry.Entry) { e.ID = id.EntryID{} },
			wantErr: true,
		},
		{
			name:    "missing account",
			entry:   validEntry(entry.TypeGrant, 1000, ""),
			mutate:  func(e *entry.Entry) { e.AccountID = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := tt.entry
			if tt.mutate != nil {
				tt.mutate(e)
			}
			err := e.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestListOptsMatches(t *testing.T) {
	base := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	e := validEntry(entry.TypeUse, -1000, "order_1")
	e.CreatedAt = base

	tests := []struct {
		name string
		opts entry.ListOpts
		want bool
	}{
		{name: "empty filter", opts: entry.ListOpts{}, want: true},
		{name: "inside window", opts: entry.ListOpts{Start: base.Add(-time.Hour), End: base.Add(time.Hour)}, want: true},
		{name: "start is inclusive", opts: entry.ListOpts{Start: base}, want: true},
		{name: "end is exclusive", opts: entry.ListOpts{End: base}, want: false},
		{name: "before window", opts: entry.ListOpts{Start: base.Add(time.Minute)}, want: false},
		{name: "matching type", opts: entry.ListOpts{Types: []entry.Type{entry.TypeUse, entry.TypeRefund}}, want: true},
		{name: "non-matching type", opts: entry.ListOpts{Types: []entry.Type{entry.TypeGrant}}, want: false},
		{name: "matching order", opts: entry.ListOpts{OrderID: "order_1"}, want: true},
		{name: "non-matching order", opts: entry.ListOpts{OrderID: "order_2"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.Matches(e); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}
