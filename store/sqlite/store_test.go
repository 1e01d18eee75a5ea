package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/xraph/creditledger"
	"github.com/xraph/creditledger/credit"
	"github.com/xraph/creditledger/entry"
	"github.com/xraph/creditledger/id"
	"github.com/xraph/creditledger/store"
	"github.com/xraph/creditledger/store/sqlite"
	"github.com/xraph/creditledger/types"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.New(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})

	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func testCredit(accountID string, amount int64) *credit.Credit {
	now := time.Now().UTC().Truncate(time.Microsecond)
	c := &credit.Credit{
		Entity:          types.EntityAt(now),
		ID:              id.NewCreditID(),
		AccountID:       accountID,
		Amount:          types.USD(amount),
		Type:            credit.TypePromotional,
		Source:          "test",
		Description:     "test credit",
		GrantedBy:       "tester",
		UsedAmount:      types.Zero("usd"),
		RemainingAmount: types.USD(amount),
	}
	return c
}

func insert(t *testing.T, s *sqlite.Store, c *credit.Credit) {
	t.Helper()
	err := s.Atomic(context.Background(), func(tx store.Tx) error {
		return tx.InsertCredit(context.Background(), c)
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestCreditRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	minOrder := types.USD(2500)
	maxUsage := types.USD(4000)
	expires := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Microsecond)

	c := testCredit("acct_1", 5000)
	c.Restrictions = &credit.Restrictions{
		MinimumOrderAmount:   &minOrder,
		MaximumUsageAmount:   &maxUsage,
		ApplicableOrderTypes: []string{"guest_post", "niche_edit"},
	}
	c.ExpiresAt = &expires
	insert(t, s, c)

	got, err := s.GetCredit(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if got.ID != c.ID || got.AccountID != c.AccountID {
		t.Errorf("identity mismatch: %s/%s", got.ID, got.AccountID)
	}
	if !got.Amount.Equal(c.Amount) || !got.RemainingAmount.Equal(c.RemainingAmount) {
		t.Errorf("amounts mismatch: %v/%v", got.Amount, got.RemainingAmount)
	}
	if got.Restrictions == nil {
		t.Fatal("restrictions did not survive the round trip")
	}
	if got.Restrictions.MinimumOrderAmount == nil || got.Restrictions.MinimumOrderAmount.Amount != 2500 {
		t.Errorf("minimum order = %v, want 2500", got.Restrictions.MinimumOrderAmount)
	}
	if len(got.Restrictions.ApplicableOrderTypes) != 2 {
		t.Errorf("order types = %v", got.Restrictions.ApplicableOrderTypes)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(expires) {
		t.Errorf("expires = %v, want %v", got.ExpiresAt, expires)
	}
	if !got.CreatedAt.Equal(c.CreatedAt) {
		t.Errorf("created = %v, want %v", got.CreatedAt, c.CreatedAt)
	}
}

func TestGetCreditNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetCredit(context.Background(), id.NewCreditID())
	if !errors.Is(err, creditledger.ErrCreditNotFound) {
		t.Errorf("got %v, want ErrCreditNotFound", err)
	}
}

func TestAtomicRollback(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	boom := errors.New("boom")
	c := testCredit("acct_1", 5000)
	err := s.Atomic(ctx, func(tx store.Tx) error {
		if err := tx.InsertCredit(ctx, c); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("atomic returned %v, want the injected failure", err)
	}

	if _, err := s.GetCredit(ctx, c.ID); !errors.Is(err, creditledger.ErrCreditNotFound) {
		t.Errorf("credit survived the rollback: %v", err)
	}
}

func TestUpdateCredit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	c := testCredit("acct_1", 5000)
	insert(t, s, c)

	err := s.Atomic(ctx, func(tx store.Tx) error {
		locked, err := tx.CreditForUpdate(ctx, c.ID)
		if err != nil {
			return err
		}
		locked.UsedAmount = types.USD(5000)
		locked.RemainingAmount = types.Zero("usd")
		locked.IsFullyUsed = true
		locked.TouchAt(time.Now().UTC())
		return tx.UpdateCredit(ctx, locked)
	})
	if err != nil {
		t.Fatalf("atomic: %v", err)
	}

	got, err := s.GetCredit(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.IsFullyUsed || got.RemainingAmount.Amount != 0 {
		t.Errorf("update not persisted: fully_used %v remaining %d", got.IsFullyUsed, got.RemainingAmount.Amount)
	}

	t.Run("MissingCredit", func(t *testing.T) {
		ghost := testCredit("acct_1", 100)
		err := s.Atomic(ctx, func(tx store.Tx) error {
			return tx.UpdateCredit(ctx, ghost)
		})
		if !errors.Is(err, creditledger.ErrCreditNotFound) {
			t.Errorf("got %v, want ErrCreditNotFound", err)
		}
	})
}

func TestEntryFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	c := testCredit("acct_1", 5000)
	insert(t, s, c)

	base := time.Now().UTC().Truncate(time.Microsecond)
	writeEntry := func(typ entry.Type, amount int64, orderID string, at time.Time) {
		t.Helper()
		prev := types.Zero("usd")
		next := types.USD(amount)
		if amount < 0 {
			prev = types.USD(-amount)
			next = types.Zero("usd")
		}
		err := s.Atomic(ctx, func(tx store.Tx) error {
			return tx.AppendEntry(ctx, &entry.Entry{
				ID:              id.NewEntryID(),
				AccountID:       "acct_1",
				CreditID:        c.ID,
				OrderID:         orderID,
				Type:            typ,
				Amount:          types.USD(amount),
				PreviousBalance: prev,
				NewBalance:      next,
				CreatedAt:       at,
			})
		})
		if err != nil {
			t.Fatalf("append %s: %v", typ, err)
		}
	}

	writeEntry(entry.TypeGrant, 5000, "", base)
	writeEntry(entry.TypeUse, -3000, "order_1", base.Add(time.Hour))
	writeEntry(entry.TypeRefund, 3000, "order_1", base.Add(2*time.Hour))

	t.Run("All", func(t *testing.T) {
		entries, err := s.ListEntries(ctx, "acct_1", entry.ListOpts{})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(entries) != 3 {
			t.Fatalf("got %d entries, want 3", len(entries))
		}
		if entries[0].Type != entry.TypeGrant || entries[2].Type != entry.TypeRefund {
			t.Errorf("entries out of order: %s..%s", entries[0].Type, entries[2].Type)
		}
	})

	t.Run("ByType", func(t *testing.T) {
		entries, err := s.ListEntries(ctx, "acct_1", entry.ListOpts{Types: []entry.Type{entry.TypeUse}})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(entries) != 1 || entries[0].Amount.Amount != -3000 {
			t.Errorf("got %v, want the single use entry", entries)
		}
	})

	t.Run("ByOrder", func(t *testing.T) {
		entries, err := s.ListEntries(ctx, "acct_1", entry.ListOpts{OrderID: "order_1"})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(entries) != 2 {
			t.Errorf("got %d entries for order_1, want 2", len(entries))
		}
	})

	t.Run("ByWindow", func(t *testing.T) {
		entries, err := s.ListEntries(ctx, "acct_1", entry.ListOpts{
			Start: base.Add(30 * time.Minute),
			End:   base.Add(90 * time.Minute),
		})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(entries) != 1 || entries[0].Type != entry.TypeUse {
			t.Errorf("got %v, want only the use entry inside the window", entries)
		}
	})
}

func TestExpiredForUpdate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now().UTC().Truncate(time.Microsecond)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	expired := testCredit("acct_1", 1000)
	expired.ExpiresAt = &past
	insert(t, s, expired)

	fresh := testCredit("acct_1", 2000)
	fresh.ExpiresAt = &future
	insert(t, s, fresh)

	forever := testCredit("acct_1", 3000)
	insert(t, s, forever)

	err := s.Atomic(ctx, func(tx store.Tx) error {
		credits, err := tx.ExpiredForUpdate(ctx, now)
		if err != nil {
			return err
		}
		if len(credits) != 1 || credits[0].ID != expired.ID {
			t.Errorf("got %d expired credits, want only %s", len(credits), expired.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("atomic: %v", err)
	}
}

// TestEngineOnSQLite runs a full grant/allocate/refund pass through the
// engine against the on-disk store.
func TestEngineOnSQLite(t *testing.T) {
	ctx := context.Background()

	s, err := sqlite.New(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	l := creditledger.New(s)
	if err := l.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer l.Stop()

	expires := time.Now().UTC().Add(30 * 24 * time.Hour)
	if _, err := l.Grant(ctx, creditledger.GrantRequest{
		AccountID: "acct_1", Amount: types.USD(10000),
		Type: credit.TypePromotional, ExpiresAt: &expires,
	}); err != nil {
		t.Fatalf("grant: %v", err)
	}

	alloc, err := l.Allocate(ctx, creditledger.AllocateRequest{
		AccountID: "acct_1", OrderID: "order_1",
		OrderAmount: types.USD(6000), OrderType: "guest_post",
	})
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if alloc.CreditsApplied.Amount != 6000 {
		t.Fatalf("applied = %d, want 6000", alloc.CreditsApplied.Amount)
	}

	refund, err := l.Refund(ctx, creditledger.RefundRequest{
		AccountID: "acct_1", OrderID: "order_1", RefundAmount: types.USD(6000),
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refund.Restored.Amount != 6000 {
		t.Fatalf("restored = %d, want 6000", refund.Restored.Amount)
	}

	balance, err := l.Balance(ctx, "acct_1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.TotalBalance.Amount != 10000 {
		t.Errorf("balance = %d, want back at 10000", balance.TotalBalance.Amount)
	}
}
