// Package memory provides an in-memory store, primarily for tests and
// demos. Units of work stage their writes and apply them only when the
// closure succeeds, so a failed operation leaves no partial state.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/creditledger"
	"github.com/xraph/creditledger/credit"
	"github.com/xraph/creditledger/entry"
	"github.com/xraph/creditledger/id"
	"github.com/xraph/creditledger/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	credits map[string]*credit.Credit
	entries []*entry.Entry

	closed bool
}

func New() *Store {
	return &Store{
		credits: make(map[string]*credit.Credit),
	}
}

func (s *Store) GetCredit(_ context.Context, creditID id.CreditID) (*credit.Credit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, creditledger.ErrStoreClosed
	}
	if c, ok := s.credits[creditID.String()]; ok {
		return c.Clone(), nil
	}
	return nil, creditledger.ErrCreditNotFound
}

func (s *Store) ListCredits(_ context.Context, accountID string, opts credit.ListOpts) ([]*credit.Credit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, creditledger.ErrStoreClosed
	}

	result := make([]*credit.Credit, 0)
	for _, c := range s.credits {
		if c.AccountID != accountID {
			continue
		}
		if opts.ActiveOnly && c.IsFullyUsed {
			continue
		}
		result = append(result, c.Clone())
	}
	sortCredits(result)

	start := opts.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

func (s *Store) ListEntries(_ context.Context, accountID string, opts entry.ListOpts) ([]*entry.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, creditledger.ErrStoreClosed
	}

	result := make([]*entry.Entry, 0)
	for _, e := range s.entries {
		if e.AccountID != accountID {
			continue
		}
		if !opts.Matches(e) {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	return result, nil
}

// Atomic runs fn under the store's write lock. Writes are staged in the
// Tx and applied only if fn returns nil, giving all-or-nothing semantics.
// The single lock serializes all units of work; per-credit parallelism is
// a property of the SQL stores, not this one.
func (s *Store) Atomic(_ context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return creditledger.ErrStoreClosed
	}

	tx := &memTx{
		store:  s,
		staged: make(map[string]*credit.Credit),
	}

	if err := fn(tx); err != nil {
		return err
	}

	// Commit: staged snapshots replace live rows, new rows and entries
	// are appended.
	for key, c := range tx.staged {
		s.credits[key] = c
	}
	for _, c := range tx.inserted {
		s.credits[c.ID.String()] = c
	}
	s.entries = append(s.entries, tx.appended...)

	return nil
}

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return creditledger.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// memTx stages writes while the store lock is held.
type memTx struct {
	store    *Store
	staged   map[string]*credit.Credit // working copies keyed by credit id
	inserted []*credit.Credit
	appended []*entry.Entry
}

var _ store.Tx = (*memTx)(nil)

// workingCopy returns the staged copy for a credit, creating one from the
// live row on first access so repeated reads within the unit of work see
// the Tx's own writes.
func (t *memTx) workingCopy(key string) (*credit.Credit, bool) {
	if c, ok := t.staged[key]; ok {
		return c, true
	}
	live, ok := t.store.credits[key]
	if !ok {
		return nil, false
	}
	c := live.Clone()
	t.staged[key] = c
	return c, true
}

func (t *memTx) CreditForUpdate(_ context.Context, creditID id.CreditID) (*credit.Credit, error) {
	if c, ok := t.workingCopy(creditID.String()); ok {
		return c, nil
	}
	for _, c := range t.inserted {
		if c.ID == creditID {
			return c, nil
		}
	}
	return nil, creditledger.ErrCreditNotFound
}

func (t *memTx) CreditsForUpdate(_ context.Context, accountID string) ([]*credit.Credit, error) {
	result := make([]*credit.Credit, 0)
	for key, live := range t.store.credits {
		if live.AccountID != accountID {
			continue
		}
		c, _ := t.workingCopy(key)
		result = append(result, c)
	}
	for _, c := range t.inserted {
		if c.AccountID == accountID {
			result = append(result, c)
		}
	}
	sortCredits(result)
	return result, nil
}

func (t *memTx) ExpiredForUpdate(_ context.Context, asOf time.Time) ([]*credit.Credit, error) {
	result := make([]*credit.Credit, 0)
	for key, live := range t.store.credits {
		if live.IsFullyUsed || !live.Expired(asOf) {
			continue
		}
		c, _ := t.workingCopy(key)
		result = append(result, c)
	}
	sortCredits(result)
	return result, nil
}

func (t *memTx) OrderUsage(_ context.Context, accountID, orderID string) ([]*entry.Entry, error) {
	result := make([]*entry.Entry, 0)
	for _, e := range t.store.entries {
		if e.AccountID == accountID && e.OrderID == orderID &&
			(e.Type == entry.TypeUse || e.Type == entry.TypeRefund) {
			cp := *e
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (t *memTx) InsertCredit(_ context.Context, c *credit.Credit) error {
	key := c.ID.String()
	if _, exists := t.store.credits[key]; exists {
		return creditledger.ErrInvalidInput
	}
	if _, exists := t.staged[key]; exists {
		return creditledger.ErrInvalidInput
	}
	t.inserted = append(t.inserted, c.Clone())
	return nil
}

func (t *memTx) UpdateCredit(_ context.Context, c *credit.Credit) error {
	key := c.ID.String()
	for i, ins := range t.inserted {
		if ins.ID == c.ID {
			t.inserted[i] = c.Clone()
			return nil
		}
	}
	if _, ok := t.store.credits[key]; !ok {
		return creditledger.ErrCreditNotFound
	}
	t.staged[key] = c.Clone()
	return nil
}

func (t *memTx) AppendEntry(_ context.Context, e *entry.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	cp := *e
	t.appended = append(t.appended, &cp)
	return nil
}

// sortCredits orders by grant time, then by ID for a stable tie-break.
func sortCredits(credits []*credit.Credit) {
	sort.Slice(credits, func(i, j int) bool {
		if !credits[i].CreatedAt.Equal(credits[j].CreatedAt) {
			return credits[i].CreatedAt.Before(credits[j].CreatedAt)
		}
		return credits[i].ID.String() < credits[j].ID.String()
	})
}
