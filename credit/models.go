// Package credit defines the credit grant model: a discrete parcel of
// spendable value belonging to one account, with its own restrictions,
// expiration, and usage counters. An account's balance is always the live
// aggregate over its active credits — no separate balance counter exists.
package credit

import (
	"time"

	"github.com/xraph/creditledger/id"
	"github.com/xraph/creditledger/types"
)

// Type classifies the business reason a credit was granted.
// It is reporting metadata only; no allocation behavior branches on it.
type Type string

const (
	TypePromotional Type = "promotional"
	TypeRefund      Type = "refund"
	TypeAdjustment  Type = "adjustment"
	TypeBonus       Type = "bonus"
)

// Restrictions constrain when a credit may be drawn against an order.
// Every field is optional: a nil pointer or empty slice means the
// dimension is unrestricted. Restrictions are enforced only at
// allocation time, never at grant time.
type Restrictions struct {
	// MinimumOrderAmount makes the credit eligible only for orders at or
	// above this amount.
	MinimumOrderAmount *types.Money `json:"minimum_order_amount,omitempty"`

	// MaximumUsageAmount is a hard cap on the cumulative amount ever
	// debited from this credit, independent of the granted amount.
	MaximumUsageAmount *types.Money `json:"maximum_usage_amount,omitempty"`

	// ApplicableOrderTypes limits the credit to orders whose type tag is
	// in this set.
	ApplicableOrderTypes []string `json:"applicable_order_types,omitempty"`
}

// AllowsOrder reports whether an order of the given amount and type may
// draw from a credit carrying these restrictions. Nil-safe: a nil
// receiver allows everything.
func (r *Restrictions) AllowsOrder(orderAmount types.Money, orderType string) bool {
	if r == nil {
		return true
	}
	if r.MinimumOrderAmount != nil && orderAmount.LessThan(*r.MinimumOrderAmount) {
		return false
	}
	if len(r.ApplicableOrderTypes) > 0 {
		found := false
		for _, t := range r.ApplicableOrderTypes {
			if t == orderType {
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

// Clone returns a deep copy.
func (r *Restrictions) Clone() *Restrictions {
	if r == nil {
		return nil
	}
	c := &Restrictions{}
	if r.MinimumOrderAmount != nil {
		m := *r.MinimumOrderAmount
		c.MinimumOrderAmount = &m
	}
	if r.MaximumUsageAmount != nil {
		m := *r.MaximumUsageAmount
		c.MaximumUsageAmount = &m
	}
	if len(r.ApplicableOrderTypes) > 0 {
		c.ApplicableOrderTypes = append([]string(nil), r.ApplicableOrderTypes...)
	}
	return c
}

// Credit is one grant of spendable value. Amount is immutable after
// creation; UsedAmount and RemainingAmount move in lockstep so that
// RemainingAmount == Amount − UsedAmount holds at all times. Credits are
// never deleted; they are retained indefinitely for audit.
type Credit struct {
	types.Entity
	ID          id.CreditID `json:"id"`
	AccountID   string      `json:"account_id"`
	Amount      types.Money `json:"amount"`
	Type        Type        `json:"type"`
	Source      string      `json:"source"`
	Description string      `json:"description"`
	GrantedBy   string      `json:"granted_by"`

	Restrictions *Restrictions `json:"restrictions,omitempty"`
	ExpiresAt    *time.Time    `json:"expires_at,omitempty"`

	UsedAmount      types.Money `json:"used_amount"`
	RemainingAmount types.Money `json:"remaining_amount"`

	// IsFullyUsed is set when RemainingAmount reaches zero through usage,
	// or when the expiration sweeper forfeits the credit. A forfeited
	// credit keeps its RemainingAmount as written history.
	IsFullyUsed bool `json:"is_fully_used"`
}

// Expired reports whether the credit's expiration instant has passed.
func (c *Credit) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// Active reports whether the credit still holds allocatable value:
// not fully used (or forfeited) and not past expiration.
func (c *Credit) Active(now time.Time) bool {
	return !c.IsFullyUsed && !c.Expired(now)
}

// ExpiresWithin reports whether the credit expires inside the rolling
// window starting at now. Credits with no expiration never do.
func (c *Credit) ExpiresWithin(now time.Time, window time.Duration) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now.Add(window))
}

// EligibleFor reports whether an order may draw from this credit:
// it must be active and its restrictions must allow the order.
func (c *Credit) EligibleFor(orderAmount types.Money, orderType string, now time.Time) bool {
	if !c.Active(now) {
		return false
	}
	if !orderAmount.SameCurrency(c.Amount) {
		return false
	}
	return c.Restrictions.AllowsOrder(orderAmount, orderType)
}

// UsageHeadroom returns the largest amount that may still be debited:
// the remaining balance, further capped by what is left under the
// cumulative MaximumUsageAmount restriction.
func (c *Credit) UsageHeadroom() types.Money {
	headroom := c.RemainingAmount
	if c.Restrictions != nil && c.Restrictions.MaximumUsageAmount != nil {
		underCap := c.Restrictions.MaximumUsageAmount.Subtract(c.UsedAmount)
		headroom = headroom.Min(underCap)
	}
	if headroom.IsNegative() {
		return types.Zero(c.Amount.Currency)
	}
	return headroom
}

// Clone returns a deep copy of the credit.
func (c *Credit) Clone() *Credit {
	cp := *c
	cp.Restrictions = c.Restrictions.Clone()
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		cp.ExpiresAt = &t
	}
	return &cp
}
