package credit_test

import (
	"testing"
	"time"

	"github.com/xraph/creditledger/credit"
	"github.com/xraph/creditledger/id"
	"github.com/xraph/creditledger/types"
)

var now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func testCredit(amount int64) *credit.Credit {
	return &credit.Credit{
		Entity:          types.EntityAt(now),
		ID:              id.NewCreditID(),
		AccountID:       "acct_1",
		Amount:          types.USD(amount),
		Type:            credit.TypePromotional,
		UsedAmount:      types.Zero("usd"),
		RemainingAmount: types.USD(amount),
	}
}

func TestActive(t *testing.T) {
	t.Run("FreshCredit", func(t *testing.T) {
		if !testCredit(1000).Active(now) {
			t.Error("fresh credit should be active")
		}
	})

	t.Run("FullyUsed", func(t *testing.T) {
		c := testCredit(1000)
		c.IsFullyUsed = true
		if c.Active(now) {
			t.Error("fully used credit should not be active")
		}
	})

	t.Run("Expired", func(t *testing.T) {
		c := testCredit(1000)
		past := now.Add(-time.Minute)
		c.ExpiresAt = &past
		if c.Active(now) {
			t.Error("expired credit should not be active")
		}
	})

	t.Run("ExpiryIsExclusiveBoundary", func(t *testing.T) {
		c := testCredit(1000)
		c.ExpiresAt = &now
		if c.Active(now) {
			t.Error("credit expiring exactly now should not be active")
		}
		if !c.Active(now.Add(-time.Nanosecond)) {
			t.Error("credit should be active an instant before expiry")
		}
	})
}

func TestExpiresWithin(t *testing.T) {
	window := 30 * 24 * time.Hour

	tests := []struct {
		name      string
		expiresIn time.Duration
		noExpiry  bool
		want      bool
	}{
		{name: "well inside window", expiresIn: 10 * 24 * time.Hour, want: true},
		{name: "outside window", expiresIn: 60 * 24 * time.Hour, want: false},
		{name: "no expiration", noExpiry: true, want: false},
		{name: "already past", expiresIn: -time.Hour, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testCredit(1000)
			if !tt.noExpiry {
				at := now.Add(tt.expiresIn)
				c.ExpiresAt = &at
			}
			if got := c.ExpiresWithin(now, window); got != tt.want {
				t.Errorf("ExpiresWithin = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEligibleFor(t *testing.T) {
	minOrder := types.USD(5000)

	tests := []struct {
		name         string
		restrictions *credit.Restrictions
		orderAmount  types.Money
		orderType    string
		want         bool
	}{
		{
			name:        "unrestricted",
			orderAmount: types.USD(100),
			orderType:   "guest_post",
			want:        true,
		},
		{
			name:         "below minimum order",
			restrictions: &credit.Restrictions{MinimumOrderAmount: &minOrder},
			orderAmount:  types.USD(4999),
			orderType:    "guest_post",
			want:         false,
		},
		{
			name:         "at minimum order",
			restrictions: &credit.Restrictions{MinimumOrderAmount: &minOrder},
			orderAmount:  types.USD(5000),
			orderType:    "guest_post",
			want:         true,
		},
		{
			name:         "matching order type",
			restrictions: &credit.Restrictions{ApplicableOrderTypes: []string{"guest_post"}},
			orderAmount:  types.USD(100),
			orderType:    "guest_post",
			want:         true,
		},
		{
			name:         "wrong order type",
			restrictions: &credit.Restrictions{ApplicableOrderTypes: []string{"niche_edit"}},
			orderAmount:  types.USD(100),
			orderType:    "guest_post",
			want:         false,
		},
		{
			name:        "wrong currency",
			orderAmount: types.EUR(100),
			orderType:   "guest_post",
			want:        false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testCredit(10000)
			c.Restrictions = tt.restrictions
			if got := c.EligibleFor(tt.orderAmount, tt.orderType, now); got != tt.want {
				t.Errorf("EligibleFor = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("InactiveNeverEligible", func(t *testing.T) {
		c := testCredit(10000)
		c.IsFullyUsed = true
		if c.EligibleFor(types.USD(100), "guest_post", now) {
			t.Error("inactive credit should never be eligible")
		}
	})
}

func TestUsageHeadroom(t *testing.T) {
	maxUsage := types.USD(2000)

	tests := []struct {
		name      string
		amount    int64
		used      int64
		capAmount *types.Money
		want      int64
	}{
		{name: "uncapped fresh", amount: 5000, used: 0, want: 5000},
		{name: "uncapped partial", amount: 5000, used: 3000, want: 2000},
		{name: "cap binds on fresh credit", amount: 5000, used: 0, capAmount: &maxUsage, want: 2000},
		{name: "cap is cumulative", amount: 5000, used: 1500, capAmount: &maxUsage, want: 500},
		{name: "cap exhausted", amount: 5000, used: 2000, capAmount: &maxUsage, want: 0},
		{name: "remaining binds below cap", amount: 1500, used: 0, capAmount: &maxUsage, want: 1500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testCredit(tt.amount)
			c.UsedAmount = types.USD(tt.used)
			c.RemainingAmount = types.USD(tt.amount - tt.used)
			if tt.capAmount != nil {
				c.Restrictions = &credit.Restrictions{MaximumUsageAmount: tt.capAmount}
			}
			if got := c.UsageHeadroom(); got.Amount != tt.want {
				t.Errorf("UsageHeadroom = %d, want %d", got.Amount, tt.want)
			}
		})
	}
}

func TestClone(t *testing.T) {
	minOrder := types.USD(100)
	expires := now.Add(time.Hour)

	c := testCredit(1000)
	c.Restrictions = &credit.Restrictions{
		MinimumOrderAmount:   &minOrder,
		ApplicableOrderTypes: []string{"guest_post"},
	}
	c.ExpiresAt = &expires

	cp := c.Clone()
	cp.UsedAmount = types.USD(999)
	*cp.Restrictions.MinimumOrderAmount = types.USD(42)
	cp.Restrictions.ApplicableOrderTypes[0] = "changed"
	*cp.ExpiresAt = now

	if c.UsedAmount.Amount != 0 {
		t.Error("clone shares usage counters")
	}
	if c.Restrictions.MinimumOrderAmount.Amount != 100 {
		t.Error("clone shares restriction amounts")
	}
	if c.Restrictions.ApplicableOrderTypes[0] != "guest_post" {
		t.Error("clone shares order type slice")
	}
	if !c.ExpiresAt.Equal(expires) {
		t.Error("clone shares expiration pointer")
	}
}
