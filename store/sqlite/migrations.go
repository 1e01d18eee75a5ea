package sqlite

// migrations returns the schema migration statements. Each string is a
// single SQL statement (SQLite executes one at a time). All statements
// are idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS credits (
		id               TEXT PRIMARY KEY,
		account_id       TEXT NOT NULL,
		amount           INTEGER NOT NULL,
		currency         TEXT NOT NULL,
		type             TEXT NOT NULL,
		source           TEXT NOT NULL DEFAULT '',
		description      TEXT NOT NULL DEFAULT '',
		granted_by       TEXT NOT NULL DEFAULT '',
		restrictions     TEXT,
		expires_at       TEXT,
		used_amount      INTEGER NOT NULL DEFAULT 0,
		remaining_amount INTEGER NOT NULL CHECK (remaining_amount >= 0),
		is_fully_used    INTEGER NOT NULL DEFAULT 0,
		created_at       TEXT NOT NULL,
		updated_at       TEXT NOT NULL,
		CHECK (used_amount + remaining_amount = amount)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_credits_account
		ON credits(account_id, created_at)`,

	`CREATE INDEX IF NOT EXISTS idx_credits_expiring
		ON credits(expires_at)
		WHERE is_fully_used = 0 AND expires_at IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS ledger_entries (
		seq              INTEGER PRIMARY KEY AUTOINCREMENT,
		id               TEXT NOT NULL UNIQUE,
		account_id       TEXT NOT NULL,
		credit_id        TEXT NOT NULL REFERENCES credits(id),
		order_id         TEXT NOT NULL DEFAULT '',
		type             TEXT NOT NULL,
		amount           INTEGER NOT NULL,
		currency         TEXT NOT NULL,
		previous_balance INTEGER NOT NULL,
		new_balance      INTEGER NOT NULL,
		description      TEXT NOT NULL DEFAULT '',
		created_at       TEXT NOT NULL,
		CHECK (new_balance - previous_balance = amount)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_entries_account
		ON ledger_entries(account_id, seq)`,

	`CREATE INDEX IF NOT EXISTS idx_entries_order
		ON ledger_entries(account_id, order_id)
		WHERE order_id <> ''`,
}
