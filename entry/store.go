package entry

import (
	"context"
	"time"
)

// Store is the ledger-entry slice of the storage layer: append and read,
// never update or delete.
type Store interface {
	Append(ctx context.Context, e *Entry) error
	ListByAccount(ctx context.Context, accountID string, opts ListOpts) ([]*Entry, error)
}

// ListOpts filters entry listings. Results are always in creation order
// (oldest first).
type ListOpts struct {
	// Start/End bound CreatedAt; zero values leave the bound open.
	// Start is inclusive, End exclusive.
	Start time.Time
	End   time.Time

	// Types keeps only the given entry types; empty keeps all.
	Types []Type

	// OrderID keeps only entries referencing the given order.
	OrderID string
}

// Matches reports whether an entry passes the filter.
func (o ListOpts) Matches(e *Entry) bool {
	if !o.Start.IsZero() && e.CreatedAt.Before(o.Start) {
		return false
	}
	if !o.End.IsZero() && !e.CreatedAt.Before(o.End) {
		return false
	}
	if o.OrderID != "" && e.OrderID != o.OrderID {
		return false
	}
	if len(o.Types) > 0 {
		found := false
		for _, t := range o.Types {
			if e.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
