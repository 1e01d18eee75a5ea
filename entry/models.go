// Package entry defines the immutable ledger entry: one append-only audit
// record per balance-affecting event. Entries are created exactly once by
// the four mutating operations (grant, use, refund, expire) and are never
// updated or deleted, so replaying a credit's entries from zero
// reconstructs its balance independently of the credit row itself.
package entry

import (
	"fmt"
	"time"

	"github.com/xraph/creditledger/id"
	"github.com/xraph/creditledger/types"
)

// Type is the kind of balance-affecting event an entry records.
type Type string

const (
	TypeGrant  Type = "grant"
	TypeUse    Type = "use"
	TypeRefund Type = "refund"
	TypeExpire Type = "expire"
)

// Entry is one immutable record of a balance-affecting event.
//
// Amount is signed: positive for grant/refund, negative for use/expire.
// PreviousBalance and NewBalance snapshot the affected credit's remaining
// amount immediately before and after the event, so that
// NewBalance − PreviousBalance == Amount always holds.
type Entry struct {
	ID        id.EntryID  `json:"id"`
	AccountID string      `json:"account_id"`
	CreditID  id.CreditID `json:"credit_id"`

	// OrderID is set for use entries and their corresponding refunds,
	// empty for grant and expire.
	OrderID string `json:"order_id,omitempty"`

	Type            Type        `json:"type"`
	Amount          types.Money `json:"amount"`
	PreviousBalance types.Money `json:"previous_balance"`
	NewBalance      types.Money `json:"new_balance"`
	Description     string      `json:"description"`
	CreatedAt       time.Time   `json:"created_at"`
}

// Validate checks the entry's internal invariants before it is appended.
func (e *Entry) Validate() error {
	if e.ID.IsNil() {
		return fmt.Errorf("entry: missing id")
	}
	if e.AccountID == "" {
		return fmt.Errorf("entry: missing account id")
	}
	if e.CreditID.IsNil() {
		return fmt.Errorf("entry: missing credit id")
	}

	switch e.Type {
	case TypeGrant, TypeRefund:
		if !e.Amount.IsPositive() {
			return fmt.Errorf("entry: %s amount must be positive, got %d", e.Type, e.Amount.Amount)
		}
	case TypeUse, TypeExpire:
		if !e.Amount.IsNegative() {
			return fmt.Errorf("entry: %s amount must be negative, got %d", e.Type, e.Amount.Amount)
		}
	default:
		return fmt.Errorf("entry: unknown type %q", e.Type)
	}

	switch e.Type {
	case TypeUse, TypeRefund:
		if e.OrderID == "" {
			return fmt.Errorf("entry: %s requires an order id", e.Type)
		}
	case TypeGrant, TypeExpire:
		if e.OrderID != "" {
			return fmt.Errorf("entry: %s must not carry an order id", e.Type)
		}
	}

	if got := e.NewBalance.Subtract(e.PreviousBalance); !got.Equal(e.Amount) {
		return fmt.Errorf("entry: balance delta %d does not match amount %d", got.Amount, e.Amount.Amount)
	}

	return nil
}
