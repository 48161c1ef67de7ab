package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgate/internal/db"
	"github.com/sells-group/leadgate/internal/model"
	"github.com/sells-group/leadgate/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	cfg := db.PoolConfig{URL: connString, MaxConns: 10, MinConns: 2}
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			cfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			cfg.MinConns = poolCfg.MinConns
		}
	}
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool.
func NewPostgresFromPool(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS credit_accounts (
	user_id    TEXT PRIMARY KEY,
	balance    BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	seq              BIGINT GENERATED ALWAYS AS IDENTITY,
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	lead_ref         TEXT NOT NULL DEFAULT '',
	movement_type    TEXT NOT NULL CHECK (movement_type IN ('CONSUME', 'REFUND', 'GRANT')),
	amount           BIGINT NOT NULL CHECK (amount > 0),
	balance_before   BIGINT NOT NULL,
	balance_after    BIGINT NOT NULL CHECK (balance_after >= 0),
	reason           TEXT NOT NULL DEFAULT '',
	verdict_snapshot JSONB,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_ledger_entries_user ON ledger_entries(user_id, seq);
CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_entries_refund_once
	ON ledger_entries(lead_ref) WHERE movement_type = 'REFUND' AND lead_ref <> '';
CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_entries_consume_once
	ON ledger_entries(lead_ref) WHERE movement_type = 'CONSUME' AND lead_ref <> '';

CREATE TABLE IF NOT EXISTS leads (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	normalized_phone TEXT NOT NULL DEFAULT '',
	email            TEXT NOT NULL DEFAULT '',
	business_name    TEXT NOT NULL DEFAULT '',
	category         TEXT NOT NULL DEFAULT '',
	verdict          JSONB NOT NULL,
	status           TEXT NOT NULL,
	credit_charged   BOOLEAN NOT NULL DEFAULT false,
	credit_refunded  BOOLEAN NOT NULL DEFAULT false,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	audited_at       TIMESTAMPTZ,
	CHECK (credit_charged OR NOT credit_refunded)
);

CREATE INDEX IF NOT EXISTS idx_leads_user_phone ON leads(user_id, normalized_phone, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_leads_user_status ON leads(user_id, status, created_at);

CREATE TABLE IF NOT EXISTS blacklist (
	phone         TEXT PRIMARY KEY,
	business_name TEXT NOT NULL DEFAULT '',
	reason        TEXT NOT NULL,
	source        TEXT NOT NULL,
	user_id       TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS customers (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name       TEXT NOT NULL DEFAULT '',
	phone      TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'cliente',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_customers_phone ON customers(phone);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	candidate      JSONB NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	failed_state   TEXT,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// InTx runs fn inside a pgx transaction.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

// InSnapshot runs fn in a read-only REPEATABLE READ transaction.
func (s *PostgresStore) InSnapshot(ctx context.Context, fn func(tx Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SET TRANSACTION ISOLATION LEVEL REPEATABLE READ, READ ONLY`); err != nil {
			return eris.Wrap(err, "postgres: set snapshot isolation")
		}
		return fn(&pgTx{tx: tx})
	})
}

// pgQuerier is satisfied by db.Pool and pgx.Tx.
type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// --- Reads ---

func (s *PostgresStore) GetAccount(ctx context.Context, userID string) (*model.CreditAccount, error) {
	return pgGetAccount(ctx, s.pool, userID)
}

func pgGetAccount(ctx context.Context, q pgQuerier, userID string) (*model.CreditAccount, error) {
	var a model.CreditAccount
	err := q.QueryRow(ctx,
		`SELECT user_id, balance, updated_at FROM credit_accounts WHERE user_id = $1`,
		userID,
	).Scan(&a.UserID, &a.Balance, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get account %s", userID)
	}
	return &a, nil
}

const entryColumns = `id, user_id, lead_ref, movement_type, amount, balance_before, balance_after, reason, verdict_snapshot, created_at`

func (s *PostgresStore) ListEntries(ctx context.Context, userID string, filter EntryFilter) ([]model.LedgerEntry, error) {
	return pgListEntries(ctx, s.pool, userID, filter)
}

func pgListEntries(ctx context.Context, q pgQuerier, userID string, filter EntryFilter) ([]model.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE user_id = $1`
	args := []any{userID}
	argIdx := 2

	if filter.MovementType != "" {
		query += fmt.Sprintf(` AND movement_type = $%d`, argIdx)
		args = append(args, string(filter.MovementType))
		argIdx++
	}
	if filter.LeadRef != "" {
		query += fmt.Sprintf(` AND lead_ref = $%d`, argIdx)
		args = append(args, filter.LeadRef)
		argIdx++
	}
	query += ` ORDER BY seq ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list ledger entries")
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var movement string
		var snapshot []byte
		if err := rows.Scan(&e.ID, &e.UserID, &e.LeadRef, &movement, &e.Amount,
			&e.BalanceBefore, &e.BalanceAfter, &e.Reason, &snapshot, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan ledger entry")
		}
		e.MovementType = model.MovementType(movement)
		if len(snapshot) > 0 {
			e.VerdictSnapshot = json.RawMessage(snapshot)
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list ledger entries iterate")
}

const leadColumns = `id, user_id, normalized_phone, email, business_name, category, verdict, status, credit_charged, credit_refunded, created_at, audited_at`

func scanLead(row pgx.Row) (*model.PersistedLead, error) {
	var l model.PersistedLead
	var verdictJSON []byte
	var status string
	if err := row.Scan(&l.ID, &l.UserID, &l.NormalizedPhone, &l.Email, &l.BusinessName, &l.Category,
		&verdictJSON, &status, &l.CreditCharged, &l.CreditRefunded, &l.CreatedAt, &l.AuditedAt); err != nil {
		return nil, err
	}
	l.Status = model.LeadStatus(status)
	if err := json.Unmarshal(verdictJSON, &l.Verdict); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal verdict")
	}
	return &l, nil
}

func (s *PostgresStore) GetLead(ctx context.Context, id string) (*model.PersistedLead, error) {
	l, err := scanLead(s.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get lead %s", id)
	}
	return l, nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.PersistedLead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE true`
	args := []any{}
	argIdx := 1

	if filter.UserID != "" {
		query += fmt.Sprintf(` AND user_id = $%d`, argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.Since)
		argIdx++
	}
	if !filter.Until.IsZero() {
		query += fmt.Sprintf(` AND created_at < $%d`, argIdx)
		args = append(args, filter.Until)
		argIdx++
	}
	query += ` ORDER BY created_at ASC, id ASC`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, defaultLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.PersistedLead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func (s *PostgresStore) FindAcceptedLead(ctx context.Context, userID, phone string, since time.Time) (*model.PersistedLead, error) {
	l, err := scanLead(s.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads
		 WHERE user_id = $1 AND normalized_phone = $2 AND status = $3 AND created_at >= $4
		 ORDER BY created_at DESC LIMIT 1`,
		userID, phone, string(model.LeadStatusAccepted), since,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: find accepted lead")
	}
	return l, nil
}

func (s *PostgresStore) FindAcceptedLeadByName(ctx context.Context, userID, name string, since time.Time) (*model.PersistedLead, error) {
	l, err := scanLead(s.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads
		 WHERE user_id = $1 AND lower(business_name) = lower($2) AND status = $3 AND created_at >= $4
		 ORDER BY created_at DESC LIMIT 1`,
		userID, name, string(model.LeadStatusAccepted), since,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: find accepted lead by name")
	}
	return l, nil
}

func (s *PostgresStore) GetBlacklistEntry(ctx context.Context, phone string) (*model.BlacklistEntry, error) {
	var e model.BlacklistEntry
	err := s.pool.QueryRow(ctx,
		`SELECT phone, business_name, reason, source, user_id, created_at FROM blacklist WHERE phone = $1`,
		phone,
	).Scan(&e.Phone, &e.BusinessName, &e.Reason, &e.Source, &e.UserID, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get blacklist entry")
	}
	return &e, nil
}

func (s *PostgresStore) FindCustomerByPhone(ctx context.Context, phone string) (*model.Customer, error) {
	var c model.Customer
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, phone, status FROM customers WHERE phone = $1 AND status = $2 ORDER BY created_at DESC LIMIT 1`,
		phone, model.CustomerStatusActive,
	).Scan(&c.ID, &c.Name, &c.Phone, &c.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: find customer")
	}
	return &c, nil
}

// ImportBlacklist bulk-loads entries via COPY, skipping existing phones.
func (s *PostgresStore) ImportBlacklist(ctx context.Context, entries []model.BlacklistEntry) (int64, error) {
	rows := make([][]any, 0, len(entries))
	now := time.Now().UTC()
	for _, e := range entries {
		created := e.CreatedAt
		if created.IsZero() {
			created = now
		}
		rows = append(rows, []any{e.Phone, e.BusinessName, e.Reason, e.Source, e.UserID, created})
	}
	n, err := db.BulkInsertIgnore(ctx, s.pool, db.InsertConfig{
		Table:        "blacklist",
		Columns:      []string{"phone", "business_name", "reason", "source", "user_id", "created_at"},
		ConflictKeys: []string{"phone"},
	}, rows)
	return n, eris.Wrap(err, "postgres: import blacklist")
}

// --- Dead letter queue ---

func (s *PostgresStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	candidateJSON, err := json.Marshal(entry.Candidate)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal dlq candidate")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO dead_letter_queue
		 (id, user_id, candidate, error, error_type, failed_state, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
		   error = $4, error_type = $5, failed_state = $6, retry_count = $7,
		   next_retry_at = $9, last_failed_at = $11`,
		entry.ID, entry.UserID, candidateJSON, entry.Error, entry.ErrorType,
		entry.FailedState, entry.RetryCount, entry.MaxRetries,
		entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "postgres: enqueue dlq")
}

func (s *PostgresStore) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, user_id, candidate, error, error_type, failed_state, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM dead_letter_queue
	          WHERE next_retry_at <= now() AND retry_count < max_retries`
	args := []any{}
	argIdx := 1

	if filter.UserID != "" {
		query += fmt.Sprintf(` AND user_id = $%d`, argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}
	if filter.ErrorType != "" {
		query += fmt.Sprintf(` AND error_type = $%d`, argIdx)
		args = append(args, filter.ErrorType)
		argIdx++
	}
	query += ` ORDER BY next_retry_at ASC`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, defaultLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: dequeue dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var candidateJSON []byte
		var failedState *string
		if err := rows.Scan(&e.ID, &e.UserID, &candidateJSON, &e.Error, &e.ErrorType,
			&failedState, &e.RetryCount, &e.MaxRetries,
			&e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dlq entry")
		}
		if failedState != nil {
			e.FailedState = *failedState
		}
		if err := json.Unmarshal(candidateJSON, &e.Candidate); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal dlq candidate")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: dequeue dlq iterate")
}

func (s *PostgresStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = $1, error = $2, last_failed_at = now()
		 WHERE id = $3`,
		nextRetryAt, lastErr, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment dlq retry %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("dlq entry not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM dead_letter_queue WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: remove dlq")
}

func (s *PostgresStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count dlq")
}

// --- Transaction ---

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetAccount(ctx context.Context, userID string) (*model.CreditAccount, error) {
	return pgGetAccount(ctx, t.tx, userID)
}

func (t *pgTx) ListEntries(ctx context.Context, userID string, filter EntryFilter) ([]model.LedgerEntry, error) {
	return pgListEntries(ctx, t.tx, userID, filter)
}

func (t *pgTx) Consume(ctx context.Context, userID string, amount int64) (int64, int64, bool, error) {
	var after int64
	err := t.tx.QueryRow(ctx,
		`UPDATE credit_accounts SET balance = balance - $2, updated_at = now()
		 WHERE user_id = $1 AND balance >= $2
		 RETURNING balance`,
		userID, amount,
	).Scan(&after)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, false, nil
		}
		return 0, 0, false, eris.Wrapf(err, "postgres: consume credit for %s", userID)
	}
	return after + amount, after, true, nil
}

func (t *pgTx) Credit(ctx context.Context, userID string, amount int64) (int64, int64, error) {
	var after int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO credit_accounts (user_id, balance, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (user_id) DO UPDATE SET balance = credit_accounts.balance + EXCLUDED.balance, updated_at = now()
		 RETURNING balance`,
		userID, amount,
	).Scan(&after)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "postgres: credit %s", userID)
	}
	return after - amount, after, nil
}

func (t *pgTx) AppendEntry(ctx context.Context, e *model.LedgerEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var snapshot []byte
	if len(e.VerdictSnapshot) > 0 {
		snapshot = e.VerdictSnapshot
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO ledger_entries (`+entryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.UserID, e.LeadRef, string(e.MovementType), e.Amount,
		e.BalanceBefore, e.BalanceAfter, e.Reason, snapshot, e.CreatedAt,
	)
	return eris.Wrap(err, "postgres: append ledger entry")
}

func (t *pgTx) InsertLead(ctx context.Context, l *model.PersistedLead) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	verdictJSON, err := json.Marshal(l.Verdict)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal verdict")
	}
	_, err = t.tx.Exec(ctx,
		`INSERT INTO leads (`+leadColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		l.ID, l.UserID, l.NormalizedPhone, l.Email, l.BusinessName, l.Category,
		verdictJSON, string(l.Status), l.CreditCharged, l.CreditRefunded, l.CreatedAt, l.AuditedAt,
	)
	return eris.Wrap(err, "postgres: insert lead")
}

func (t *pgTx) MarkRefunded(ctx context.Context, userID, leadID string) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE leads SET credit_refunded = true
		 WHERE id = $1 AND user_id = $2 AND credit_charged AND NOT credit_refunded`,
		leadID, userID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: mark lead %s refunded", leadID)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) UpdateLeadAudit(ctx context.Context, leadID string, verdict model.ValidationVerdict, status model.LeadStatus, auditedAt time.Time) error {
	verdictJSON, err := json.Marshal(verdict)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal verdict")
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE leads SET verdict = $1, status = $2, audited_at = $3 WHERE id = $4`,
		verdictJSON, string(status), auditedAt, leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update lead audit %s", leadID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "lead %s", leadID)
	}
	return nil
}

func (t *pgTx) InsertBlacklist(ctx context.Context, e *model.BlacklistEntry) (bool, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	tag, err := t.tx.Exec(ctx,
		`INSERT INTO blacklist (phone, business_name, reason, source, user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (phone) DO NOTHING`,
		e.Phone, e.BusinessName, e.Reason, e.Source, e.UserID, e.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: insert blacklist")
	}
	return tag.RowsAffected() == 1, nil
}
