// Package sqlite provides a cgo-free SQLite store (modernc.org/sqlite)
// for embedded and single-node deployments. Units of work run in
// immediate transactions, so SQLite's single-writer model serializes
// them; a writer that cannot get the lock within the busy timeout
// surfaces as a retryable conflict.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/xraph/creditledger"
	"github.com/xraph/creditledger/credit"
	"github.com/xraph/creditledger/entry"
	"github.com/xraph/creditledger/id"
	"github.com/xraph/creditledger/store"
	"github.com/xraph/creditledger/types"
)

var _ store.Store = (*Store)(nil)

// Store is a SQLite-backed store. Timestamps are stored as RFC 3339 text
// in UTC.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at path. Use ":memory:" for an
// in-process throwaway database.
func New(path string) (*Store, error) {
	dsn := fmt.Sprintf(
		"file:%s?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
		path,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", creditledger.ErrPersistenceFailure, path, err)
	}

	return &Store{db: db}, nil
}

const creditColumns = `id, account_id, amount, currency, type, source, description, granted_by,
	restrictions, expires_at, used_amount, remaining_amount, is_fully_used, created_at, updated_at`

const entryColumns = `id, account_id, credit_id, order_id, type, amount, currency,
	previous_balance, new_balance, description, created_at`

func (s *Store) GetCredit(ctx context.Context, creditID id.CreditID) (*credit.Credit, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+creditColumns+` FROM credits WHERE id = ?`,
		creditID.String(),
	)
	return scanCredit(row)
}

func (s *Store) ListCredits(ctx context.Context, accountID string, opts credit.ListOpts) ([]*credit.Credit, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + creditColumns + ` FROM credits WHERE account_id = ?`)
	args := []any{accountID}

	if opts.ActiveOnly {
		b.WriteString(` AND is_fully_used = 0`)
	}
	b.WriteString(` ORDER BY created_at, id`)
	if opts.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit == 0 {
			b.WriteString(` LIMIT -1`)
		}
		b.WriteString(` OFFSET ?`)
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	return collectCredits(rows)
}

func (s *Store) ListEntries(ctx context.Context, accountID string, opts entry.ListOpts) ([]*entry.Entry, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + entryColumns + ` FROM ledger_entries WHERE account_id = ?`)
	args := []any{accountID}

	if !opts.Start.IsZero() {
		b.WriteString(` AND created_at >= ?`)
		args = append(args, formatTime(opts.Start))
	}
	if !opts.End.IsZero() {
		b.WriteString(` AND created_at < ?`)
		args = append(args, formatTime(opts.End))
	}
	if opts.OrderID != "" {
		b.WriteString(` AND order_id = ?`)
		args = append(args, opts.OrderID)
	}
	if len(opts.Types) > 0 {
		b.WriteString(` AND type IN (?` + strings.Repeat(", ?", len(opts.Types)-1) + `)`)
		for _, t := range opts.Types {
			args = append(args, string(t))
		}
	}
	b.WriteString(` ORDER BY seq`)

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// Atomic runs fn in an immediate transaction: the write lock is taken up
// front, so two concurrent units of work never interleave. A lock wait
// that exceeds the busy timeout comes back as ErrConcurrencyConflict.
func (s *Store) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	defer dbTx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if err := fn(&sqlTx{tx: dbTx}); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %v", creditledger.ErrMigrationFailed, err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// sqlTx implements store.Tx. The immediate transaction already holds the
// database write lock, so the ForUpdate reads need no extra locking.
type sqlTx struct {
	tx *sql.Tx
}

var _ store.Tx = (*sqlTx)(nil)

func (t *sqlTx) CreditForUpdate(ctx context.Context, creditID id.CreditID) (*credit.Credit, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+creditColumns+` FROM credits WHERE id = ?`,
		creditID.String(),
	)
	return scanCredit(row)
}

func (t *sqlTx) CreditsForUpdate(ctx context.Context, accountID string) ([]*credit.Credit, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+creditColumns+` FROM credits WHERE account_id = ? ORDER BY created_at, id`,
		accountID,
	)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	return collectCredits(rows)
}

func (t *sqlTx) ExpiredForUpdate(ctx context.Context, asOf time.Time) ([]*credit.Credit, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+creditColumns+` FROM credits
		 WHERE is_fully_used = 0 AND expires_at IS NOT NULL AND expires_at <= ?
		 ORDER BY created_at, id`,
		formatTime(asOf),
	)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	return collectCredits(rows)
}

func (t *sqlTx) OrderUsage(ctx context.Context, accountID, orderID string) ([]*entry.Entry, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries
		 WHERE account_id = ? AND order_id = ? AND type IN ('use', 'refund')
		 ORDER BY seq`,
		accountID, orderID,
	)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

func (t *sqlTx) InsertCredit(ctx context.Context, c *credit.Credit) error {
	restrictions, err := marshalRestrictions(c.Restrictions)
	if err != nil {
		return err
	}

	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO credits (`+creditColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.AccountID, c.Amount.Amount, c.Amount.Currency,
		string(c.Type), c.Source, c.Description, c.GrantedBy,
		restrictions, formatTimePtr(c.ExpiresAt),
		c.UsedAmount.Amount, c.RemainingAmount.Amount, boolToInt(c.IsFullyUsed),
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	return mapError(err)
}

func (t *sqlTx) UpdateCredit(ctx context.Context, c *credit.Credit) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE credits
		 SET used_amount = ?, remaining_amount = ?, is_fully_used = ?, updated_at = ?
		 WHERE id = ?`,
		c.UsedAmount.Amount, c.RemainingAmount.Amount, boolToInt(c.IsFullyUsed),
		formatTime(c.UpdatedAt), c.ID.String(),
	)
	if err != nil {
		return mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return mapError(err)
	}
	if affected == 0 {
		return creditledger.ErrCreditNotFound
	}
	return nil
}

func (t *sqlTx) AppendEntry(ctx context.Context, e *entry.Entry) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("%w: %v", creditledger.ErrInvalidInput, err)
	}

	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (`+entryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.AccountID, e.CreditID.String(), e.OrderID,
		string(e.Type), e.Amount.Amount, e.Amount.Currency,
		e.PreviousBalance.Amount, e.NewBalance.Amount,
		e.Description, formatTime(e.CreatedAt),
	)
	return mapError(err)
}

// mapError translates driver errors into the package's sentinel errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return creditledger.ErrCreditNotFound
	}

	var serr *sqlitedrv.Error
	if errors.As(err, &serr) {
		switch serr.Code() {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return creditledger.ErrConcurrencyConflict
		case sqlite3.SQLITE_CONSTRAINT, sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_CHECK:
			return fmt.Errorf("%w: constraint violated: %v", creditledger.ErrInvalidInput, err)
		}
	}

	return fmt.Errorf("%w: %v", creditledger.ErrPersistenceFailure, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredit(row rowScanner) (*credit.Credit, error) {
	var (
		c            credit.Credit
		idStr        string
		currency     string
		creditType   string
		restrictions sql.NullString
		expiresAt    sql.NullString
		amount       int64
		used         int64
		remaining    int64
		fullyUsed    int64
		createdAt    string
		updatedAt    string
	)

	err := row.Scan(
		&idStr, &c.AccountID, &amount, &currency, &creditType,
		&c.Source, &c.Description, &c.GrantedBy,
		&restrictions, &expiresAt,
		&used, &remaining, &fullyUsed,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}

	c.ID, err = id.ParseCreditID(idStr)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt credit id %q: %v", creditledger.ErrPersistenceFailure, idStr, err)
	}
	c.Type = credit.Type(creditType)
	c.Amount = types.Money{Amount: amount, Currency: currency}
	c.UsedAmount = types.Money{Amount: used, Currency: currency}
	c.RemainingAmount = types.Money{Amount: remaining, Currency: currency}
	c.IsFullyUsed = fullyUsed != 0

	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		t, err := parseTime(expiresAt.String)
		if err != nil {
			return nil, err
		}
		c.ExpiresAt = &t
	}

	if restrictions.Valid && restrictions.String != "" {
		r, err := unmarshalRestrictions(restrictions.String)
		if err != nil {
			return nil, fmt.Errorf("%w: corrupt restrictions for %s: %v", creditledger.ErrPersistenceFailure, idStr, err)
		}
		c.Restrictions = r
	}

	return &c, nil
}

func collectCredits(rows *sql.Rows) ([]*credit.Credit, error) {
	result := make([]*credit.Credit, 0)
	for rows.Next() {
		c, err := scanCredit(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return result, nil
}

func scanEntry(row rowScanner) (*entry.Entry, error) {
	var (
		e         entry.Entry
		idStr     string
		creditID  string
		entryType string
		currency  string
		amount    int64
		previous  int64
		next      int64
		createdAt string
	)

	err := row.Scan(
		&idStr, &e.AccountID, &creditID, &e.OrderID, &entryType,
		&amount, &currency, &previous, &next,
		&e.Description, &createdAt,
	)
	if err != nil {
		return nil, mapError(err)
	}

	e.ID, err = id.ParseEntryID(idStr)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt entry id %q: %v", creditledger.ErrPersistenceFailure, idStr, err)
	}
	e.CreditID, err = id.ParseCreditID(creditID)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt credit id %q: %v", creditledger.ErrPersistenceFailure, creditID, err)
	}
	e.Type = entry.Type(entryType)
	e.Amount = types.Money{Amount: amount, Currency: currency}
	e.PreviousBalance = types.Money{Amount: previous, Currency: currency}
	e.NewBalance = types.Money{Amount: next, Currency: currency}

	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	return &e, nil
}

func collectEntries(rows *sql.Rows) ([]*entry.Entry, error) {
	result := make([]*entry.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return result, nil
}

// Fixed-width RFC 3339 so stored timestamps sort lexicographically in
// UTC, which the range queries rely on. RFC3339Nano would trim trailing
// fraction zeros and break that.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: corrupt timestamp %q: %v", creditledger.ErrPersistenceFailure, s, err)
	}
	return t, nil
}

func marshalRestrictions(r *credit.Restrictions) (any, error) {
	if r == nil {
		return nil, nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal restrictions: %v", creditledger.ErrInvalidInput, err)
	}
	return string(data), nil
}

func unmarshalRestrictions(s string) (*credit.Restrictions, error) {
	var r credit.Restrictions
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return nil, err
	}
	return &r, nil
}
