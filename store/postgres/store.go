// Package postgres provides a PostgreSQL store backed by pgx. Units of
// work run in a database transaction with SELECT ... FOR UPDATE row
// locks, so concurrent mutations of the same credits serialize at the
// row level while different credits proceed in parallel.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xraph/creditledger"
	"github.com/xraph/creditledger/credit"
	"github.com/xraph/creditledger/entry"
	"github.com/xraph/creditledger/id"
	"github.com/xraph/creditledger/store"
	"github.com/xraph/creditledger/types"
)

var _ store.Store = (*Store)(nil)

// Store is a PostgreSQL-backed store.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the given database URL and returns a Store. The caller
// owns the connection lifecycle through Close.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse database url: %v", creditledger.ErrPersistenceFailure, err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", creditledger.ErrPersistenceFailure, err)
	}

	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool. Close will close the pool.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const creditColumns = `id, account_id, amount, currency, type, source, description, granted_by,
	restrictions, expires_at, used_amount, remaining_amount, is_fully_used, created_at, updated_at`

const entryColumns = `id, account_id, credit_id, order_id, type, amount, currency,
	previous_balance, new_balance, description, created_at`

func (s *Store) GetCredit(ctx context.Context, creditID id.CreditID) (*credit.Credit, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+creditColumns+` FROM credits WHERE id = $1`,
		creditID.String(),
	)
	return scanCredit(row)
}

func (s *Store) ListCredits(ctx context.Context, accountID string, opts credit.ListOpts) ([]*credit.Credit, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + creditColumns + ` FROM credits WHERE account_id = $1`)
	args := []any{accountID}

	if opts.ActiveOnly {
		b.WriteString(` AND is_fully_used = FALSE`)
	}
	b.WriteString(` ORDER BY created_at, id`)
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&b, ` LIMIT $%d`, len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		fmt.Fprintf(&b, ` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	return collectCredits(rows)
}

func (s *Store) ListEntries(ctx context.Context, accountID string, opts entry.ListOpts) ([]*entry.Entry, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + entryColumns + ` FROM ledger_entries WHERE account_id = $1`)
	args := []any{accountID}

	if !opts.Start.IsZero() {
		args = append(args, opts.Start)
		fmt.Fprintf(&b, ` AND created_at >= $%d`, len(args))
	}
	if !opts.End.IsZero() {
		args = append(args, opts.End)
		fmt.Fprintf(&b, ` AND created_at < $%d`, len(args))
	}
	if opts.OrderID != "" {
		args = append(args, opts.OrderID)
		fmt.Fprintf(&b, ` AND order_id = $%d`, len(args))
	}
	if len(opts.Types) > 0 {
		typeNames := make([]string, len(opts.Types))
		for i, t := range opts.Types {
			typeNames[i] = string(t)
		}
		args = append(args, typeNames)
		fmt.Fprintf(&b, ` AND type = ANY($%d)`, len(args))
	}
	b.WriteString(` ORDER BY seq`)

	rows, err := s.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// Atomic runs fn in a database transaction. Tx reads lock their rows with
// FOR UPDATE, and serialization failures surface as
// creditledger.ErrConcurrencyConflict so the engine can retry.
func (s *Store) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	dbTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapError(err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(&pgTx{tx: dbTx}); err != nil {
		return err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %v", creditledger.ErrMigrationFailed, err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// pgTx implements store.Tx on a pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

var _ store.Tx = (*pgTx)(nil)

func (t *pgTx) CreditForUpdate(ctx context.Context, creditID id.CreditID) (*credit.Credit, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+creditColumns+` FROM credits WHERE id = $1 FOR UPDATE`,
		creditID.String(),
	)
	return scanCredit(row)
}

func (t *pgTx) CreditsForUpdate(ctx context.Context, accountID string) ([]*credit.Credit, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+creditColumns+` FROM credits WHERE account_id = $1 ORDER BY created_at, id FOR UPDATE`,
		accountID,
	)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	return collectCredits(rows)
}

func (t *pgTx) ExpiredForUpdate(ctx context.Context, asOf time.Time) ([]*credit.Credit, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+creditColumns+` FROM credits
		 WHERE is_fully_used = FALSE AND expires_at IS NOT NULL AND expires_at <= $1
		 ORDER BY created_at, id
		 FOR UPDATE`,
		asOf,
	)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	return collectCredits(rows)
}

func (t *pgTx) OrderUsage(ctx context.Context, accountID, orderID string) ([]*entry.Entry, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries
		 WHERE account_id = $1 AND order_id = $2 AND type IN ('use', 'refund')
		 ORDER BY seq`,
		accountID, orderID,
	)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

func (t *pgTx) InsertCredit(ctx context.Context, c *credit.Credit) error {
	restrictions, err := marshalRestrictions(c.Restrictions)
	if err != nil {
		return err
	}

	_, err = t.tx.Exec(ctx,
		`INSERT INTO credits (`+creditColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		c.ID.String(), c.AccountID, c.Amount.Amount, c.Amount.Currency,
		string(c.Type), c.Source, c.Description, c.GrantedBy,
		restrictions, c.ExpiresAt,
		c.UsedAmount.Amount, c.RemainingAmount.Amount, c.IsFullyUsed,
		c.CreatedAt, c.UpdatedAt,
	)
	return mapError(err)
}

func (t *pgTx) UpdateCredit(ctx context.Context, c *credit.Credit) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE credits
		 SET used_amount = $2, remaining_amount = $3, is_fully_used = $4, updated_at = $5
		 WHERE id = $1`,
		c.ID.String(), c.UsedAmount.Amount, c.RemainingAmount.Amount, c.IsFullyUsed, c.UpdatedAt,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return creditledger.ErrCreditNotFound
	}
	return nil
}

func (t *pgTx) AppendEntry(ctx context.Context, e *entry.Entry) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("%w: %v", creditledger.ErrInvalidInput, err)
	}

	_, err := t.tx.Exec(ctx,
		`INSERT INTO ledger_entries (`+entryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID.String(), e.AccountID, e.CreditID.String(), e.OrderID,
		string(e.Type), e.Amount.Amount, e.Amount.Currency,
		e.PreviousBalance.Amount, e.NewBalance.Amount,
		e.Description, e.CreatedAt,
	)
	return mapError(err)
}

// mapError translates driver errors into the package's sentinel errors.
// Serialization failures and deadlocks become retryable conflicts.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return creditledger.ErrCreditNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return creditledger.ErrConcurrencyConflict
		case "23505": // unique_violation
			return fmt.Errorf("%w: duplicate row: %v", creditledger.ErrInvalidInput, err)
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
		restrictions []byte
		amount       int64
		used         int64
		remaining    int64
	)

	err := row.Scan(
		&idStr, &c.AccountID, &amount, &currency, &creditType,
		&c.Source, &c.Description, &c.GrantedBy,
		&restrictions, &c.ExpiresAt,
		&used, &remaining, &c.IsFullyUsed,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}

	c.ID, err = id.ParseCreditID(idStr)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt credit id %q: %v", creditledger.ErrPersistenceFailure, idStr, err)
	}
	c.Type = credit.Type(creditType)
	c.Amount = money(amount, currency)
	c.UsedAmount = money(used, currency)
	c.RemainingAmount = money(remaining, currency)

	if len(restrictions) > 0 {
		var r credit.Restrictions
		if err := json.Unmarshal(restrictions, &r); err != nil {
			return nil, fmt.Errorf("%w: corrupt restrictions for %s: %v", creditledger.ErrPersistenceFailure, idStr, err)
		}
		c.Restrictions = &r
	}

	return &c, nil
}

func collectCredits(rows pgx.Rows) ([]*credit.Credit, error) {
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
	)

	err := row.Scan(
		&idStr, &e.AccountID, &creditID, &e.OrderID, &entryType,
		&amount, &currency, &previous, &next,
		&e.Description, &e.CreatedAt,
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
	e.Amount = money(amount, currency)
	e.PreviousBalance = money(previous, currency)
	e.NewBalance = money(next, currency)

	return &e, nil
}

func collectEntries(rows pgx.Rows) ([]*entry.Entry, error) {
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

func money(amount int64, currency string) types.Money {
	return types.Money{Amount: amount, Currency: currency}
}

func marshalRestrictions(r *credit.Restrictions) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal restrictions: %v", creditledger.ErrInvalidInput, err)
	}
	return data, nil
}
