package credit

import (
	"context"

	"github.com/xraph/creditledger/id"
)

// Store is the credit-grant slice of the storage layer. The unified
// store interface mirrors these methods; they are declared here so the
// model package documents its own persistence contract.
type Store interface {
	Create(ctx context.Context, c *Credit) error
	Get(ctx context.Context, creditID id.CreditID) (*Credit, error)
	ListByAccount(ctx context.Context, accountID string, opts ListOpts) ([]*Credit, error)
	Update(ctx context.Context, c *Credit) error
}

// ListOpts filters credit listings.
type ListOpts struct {
	// ActiveOnly keeps only credits with IsFullyUsed == false.
	// Expiration filtering is the caller's job since it depends on the
	// caller's clock.
	ActiveOnly bool
	Limit      int
	Offset     int
}
