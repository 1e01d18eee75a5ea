package postgres

// migrations are applied in order by Migrate. Statements are idempotent
// so re-running a migration on an up-to-date schema is a no-op.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS credits (
		id               TEXT PRIMARY KEY,
		account_id       TEXT NOT NULL,
		amount           BIGINT NOT NULL,
		currency         TEXT NOT NULL,
		type             TEXT NOT NULL,
		source           TEXT NOT NULL DEFAULT '',
		description      TEXT NOT NULL DEFAULT '',
		granted_by       TEXT NOT NULL DEFAULT '',
		restrictions     JSONB,
		expires_at       TIMESTAMPTZ,
		used_amount      BIGINT NOT NULL DEFAULT 0,
		remaining_amount BIGINT NOT NULL,
		is_fully_used    BOOLEAN NOT NULL DEFAULT FALSE,
		created_at       TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL,
		CONSTRAINT credits_remaining_non_negative CHECK (remaining_amount >= 0),
		CONSTRAINT credits_used_plus_remaining CHECK (used_amount + remaining_amount = amount)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_credits_account
		ON credits (account_id, created_at)`,

	`CREATE INDEX IF NOT EXISTS idx_credits_expiring
		ON credits (expires_at)
		WHERE is_fully_used = FALSE AND expires_at IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS ledger_entries (
		seq              BIGSERIAL PRIMARY KEY,
		id               TEXT NOT NULL UNIQUE,
		account_id       TEXT NOT NULL,
		credit_id        TEXT NOT NULL REFERENCES credits (id),
		order_id         TEXT NOT NULL DEFAULT '',
		type             TEXT NOT NULL,
		amount           BIGINT NOT NULL,
		currency         TEXT NOT NULL,
		previous_balance BIGINT NOT NULL,
		new_balance      BIGINT NOT NULL,
		description      TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL,
		CONSTRAINT ledger_entries_balance_delta CHECK (new_balance - previous_balance = amount)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_entries_account
		ON ledger_entries (account_id, seq)`,

	`CREATE INDEX IF NOT EXISTS idx_entries_order
		ON ledger_entries (account_id, order_id)
		WHERE order_id <> ''`,
}
