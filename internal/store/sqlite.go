package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadgate/internal/model"
	"github.com/sells-group/leadgate/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite. It holds a single
// connection, so transactions are serialized; callers must not use the
// store's read methods from inside an InTx callback.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// sqliteTime is a fixed-width UTC layout so text comparison orders correctly.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

func ts(t time.Time) string {
	return t.UTC().Format(sqliteTime)
}

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTime, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse time %q", s)
	}
	return t, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS credit_accounts (
	user_id    TEXT PRIMARY KEY,
	balance    INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	lead_ref         TEXT NOT NULL DEFAULT '',
	movement_type    TEXT NOT NULL CHECK (movement_type IN ('CONSUME', 'REFUND', 'GRANT')),
	amount           INTEGER NOT NULL CHECK (amount > 0),
	balance_before   INTEGER NOT NULL,
	balance_after    INTEGER NOT NULL CHECK (balance_after >= 0),
	reason           TEXT NOT NULL DEFAULT '',
	verdict_snapshot TEXT,
	created_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_entries_user ON ledger_entries(user_id, created_at);
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
	verdict          TEXT NOT NULL,
	status           TEXT NOT NULL,
	credit_charged   INTEGER NOT NULL DEFAULT 0,
	credit_refunded  INTEGER NOT NULL DEFAULT 0,
	created_at       TEXT NOT NULL,
	audited_at       TEXT,
	CHECK (credit_charged OR NOT credit_refunded)
);

CREATE INDEX IF NOT EXISTS idx_leads_user_phone ON leads(user_id, normalized_phone, created_at);
CREATE INDEX IF NOT EXISTS idx_leads_user_status ON leads(user_id, status, created_at);

CREATE TABLE IF NOT EXISTS blacklist (
	phone         TEXT PRIMARY KEY,
	business_name TEXT NOT NULL DEFAULT '',
	reason        TEXT NOT NULL,
	source        TEXT NOT NULL,
	user_id       TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS customers (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	phone      TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'cliente',
	created_at TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_customers_phone ON customers(phone);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	candidate      TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	failed_state   TEXT,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	last_failed_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InTx runs fn inside a database/sql transaction.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	if err := fn(&sqliteTx{tx: tx}); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

// InSnapshot runs fn in a plain transaction. SQLite holds one read
// snapshot from a transaction's first read to its end.
func (s *SQLiteStore) InSnapshot(ctx context.Context, fn func(tx Tx) error) error {
	return s.InTx(ctx, fn)
}

// sqliteQuerier is satisfied by *sql.DB and *sql.Tx.
type sqliteQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// --- Reads ---

func (s *SQLiteStore) GetAccount(ctx context.Context, userID string) (*model.CreditAccount, error) {
	return sqliteGetAccount(ctx, s.db, userID)
}

func sqliteGetAccount(ctx context.Context, q sqliteQuerier, userID string) (*model.CreditAccount, error) {
	var a model.CreditAccount
	var updated string
	err := q.QueryRowContext(ctx,
		`SELECT user_id, balance, updated_at FROM credit_accounts WHERE user_id = ?`,
		userID,
	).Scan(&a.UserID, &a.Balance, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get account %s", userID)
	}
	if a.UpdatedAt, err = parseTS(updated); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *SQLiteStore) ListEntries(ctx context.Context, userID string, filter EntryFilter) ([]model.LedgerEntry, error) {
	return sqliteListEntries(ctx, s.db, userID, filter)
}

func sqliteListEntries(ctx context.Context, q sqliteQuerier, userID string, filter EntryFilter) ([]model.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE user_id = ?`
	args := []any{userID}
	if filter.MovementType != "" {
		query += ` AND movement_type = ?`
		args = append(args, string(filter.MovementType))
	}
	if filter.LeadRef != "" {
		query += ` AND lead_ref = ?`
		args = append(args, filter.LeadRef)
	}
	query += ` ORDER BY created_at ASC, rowid ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list ledger entries")
	}
	defer rows.Close() //nolint:errcheck

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var movement, created string
		var snapshot sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.LeadRef, &movement, &e.Amount,
			&e.BalanceBefore, &e.BalanceAfter, &e.Reason, &snapshot, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ledger entry")
		}
		e.MovementType = model.MovementType(movement)
		if snapshot.Valid && snapshot.String != "" {
			e.VerdictSnapshot = json.RawMessage(snapshot.String)
		}
		if e.CreatedAt, err = parseTS(created); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list ledger entries iterate")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteLead(row rowScanner) (*model.PersistedLead, error) {
	var l model.PersistedLead
	var verdictJSON, status, created string
	var audited sql.NullString
	if err := row.Scan(&l.ID, &l.UserID, &l.NormalizedPhone, &l.Email, &l.BusinessName, &l.Category,
		&verdictJSON, &status, &l.CreditCharged, &l.CreditRefunded, &created, &audited); err != nil {
		return nil, err
	}
	l.Status = model.LeadStatus(status)
	if err := json.Unmarshal([]byte(verdictJSON), &l.Verdict); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal verdict")
	}
	var err error
	if l.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	if audited.Valid && audited.String != "" {
		t, err := parseTS(audited.String)
		if err != nil {
			return nil, err
		}
		l.AuditedAt = &t
	}
	return &l, nil
}

func (s *SQLiteStore) GetLead(ctx context.Context, id string) (*model.PersistedLead, error) {
	l, err := scanSQLiteLead(s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get lead %s", id)
	}
	return l, nil
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.PersistedLead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE 1=1`
	args := []any{}
	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, ts(filter.Since))
	}
	if !filter.Until.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, ts(filter.Until))
	}
	query += ` ORDER BY created_at ASC, id ASC LIMIT ?`
	args = append(args, defaultLimit(filter.Limit))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close() //nolint:errcheck

	var leads []model.PersistedLead
	for rows.Next() {
		l, err := scanSQLiteLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func (s *SQLiteStore) FindAcceptedLead(ctx context.Context, userID, phone string, since time.Time) (*model.PersistedLead, error) {
	l, err := scanSQLiteLead(s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads
		 WHERE user_id = ? AND normalized_phone = ? AND status = ? AND created_at >= ?
		 ORDER BY created_at DESC LIMIT 1`,
		userID, phone, string(model.LeadStatusAccepted), ts(since),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: find accepted lead")
	}
	return l, nil
}

func (s *SQLiteStore) FindAcceptedLeadByName(ctx context.Context, userID, name string, since time.Time) (*model.PersistedLead, error) {
	l, err := scanSQLiteLead(s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads
		 WHERE user_id = ? AND lower(business_name) = ? AND status = ? AND created_at >= ?
		 ORDER BY created_at DESC LIMIT 1`,
		userID, strings.ToLower(name), string(model.LeadStatusAccepted), ts(since),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: find accepted lead by name")
	}
	return l, nil
}

func (s *SQLiteStore) GetBlacklistEntry(ctx context.Context, phone string) (*model.BlacklistEntry, error) {
	var e model.BlacklistEntry
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT phone, business_name, reason, source, user_id, created_at FROM blacklist WHERE phone = ?`,
		phone,
	).Scan(&e.Phone, &e.BusinessName, &e.Reason, &e.Source, &e.UserID, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get blacklist entry")
	}
	if e.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *SQLiteStore) FindCustomerByPhone(ctx context.Context, phone string) (*model.Customer, error) {
	var c model.Customer
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, phone, status FROM customers WHERE phone = ? AND status = ? ORDER BY created_at DESC LIMIT 1`,
		phone, model.CustomerStatusActive,
	).Scan(&c.ID, &c.Name, &c.Phone, &c.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: find customer")
	}
	return &c, nil
}

// ImportBlacklist inserts entries in one transaction, skipping existing phones.
func (s *SQLiteStore) ImportBlacklist(ctx context.Context, entries []model.BlacklistEntry) (int64, error) {
	var n int64
	err := s.InTx(ctx, func(tx Tx) error {
		for i := range entries {
			ok, err := tx.InsertBlacklist(ctx, &entries[i])
			if err != nil {
				return err
			}
			if ok {
				n++
			}
		}
		return nil
	})
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import blacklist")
	}
	return n, nil
}

// --- Dead letter queue ---

func (s *SQLiteStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	candidateJSON, err := json.Marshal(entry.Candidate)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal dlq candidate")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dead_letter_queue
		 (id, user_id, candidate, error, error_type, failed_state, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   error = excluded.error, error_type = excluded.error_type, failed_state = excluded.failed_state,
		   retry_count = excluded.retry_count, next_retry_at = excluded.next_retry_at,
		   last_failed_at = excluded.last_failed_at`,
		entry.ID, entry.UserID, string(candidateJSON), entry.Error, entry.ErrorType,
		entry.FailedState, entry.RetryCount, entry.MaxRetries,
		ts(entry.NextRetryAt), ts(entry.CreatedAt), ts(entry.LastFailedAt),
	)
	return eris.Wrap(err, "sqlite: enqueue dlq")
}

func (s *SQLiteStore) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, user_id, candidate, error, error_type, failed_state, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM dead_letter_queue
	          WHERE next_retry_at <= ? AND retry_count < max_retries`
	args := []any{ts(time.Now())}
	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.ErrorType != "" {
		query += ` AND error_type = ?`
		args = append(args, filter.ErrorType)
	}
	query += ` ORDER BY next_retry_at ASC LIMIT ?`
	args = append(args, defaultLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: dequeue dlq")
	}
	defer rows.Close() //nolint:errcheck

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var candidateJSON, next, created, lastFailed string
		var failedState sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &candidateJSON, &e.Error, &e.ErrorType,
			&failedState, &e.RetryCount, &e.MaxRetries, &next, &created, &lastFailed); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dlq entry")
		}
		e.FailedState = failedState.String
		if err := json.Unmarshal([]byte(candidateJSON), &e.Candidate); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal dlq candidate")
		}
		if e.NextRetryAt, err = parseTS(next); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTS(created); err != nil {
			return nil, err
		}
		if e.LastFailedAt, err = parseTS(lastFailed); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: dequeue dlq iterate")
}

func (s *SQLiteStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = ?, error = ?, last_failed_at = ?
		 WHERE id = ?`,
		ts(nextRetryAt), lastErr, ts(time.Now()), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment dlq retry %s", id)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return eris.Errorf("dlq entry not found: %s", id)
	}
	return nil
}

func (s *SQLiteStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dead_letter_queue WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: remove dlq")
}

func (s *SQLiteStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count dlq")
}

// --- Transaction ---

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) GetAccount(ctx context.Context, userID string) (*model.CreditAccount, error) {
	return sqliteGetAccount(ctx, t.tx, userID)
}

func (t *sqliteTx) ListEntries(ctx context.Context, userID string, filter EntryFilter) ([]model.LedgerEntry, error) {
	return sqliteListEntries(ctx, t.tx, userID, filter)
}

func (t *sqliteTx) Consume(ctx context.Context, userID string, amount int64) (int64, int64, bool, error) {
	var after int64
	err := t.tx.QueryRowContext(ctx,
		`UPDATE credit_accounts SET balance = balance - ?, updated_at = ?
		 WHERE user_id = ? AND balance >= ?
		 RETURNING balance`,
		amount, ts(time.Now()), userID, amount,
	).Scan(&after)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, false, nil
		}
		return 0, 0, false, eris.Wrapf(err, "sqlite: consume credit for %s", userID)
	}
	return after + amount, after, true, nil
}

func (t *sqliteTx) Credit(ctx context.Context, userID string, amount int64) (int64, int64, error) {
	var after int64
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO credit_accounts (user_id, balance, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET balance = balance + excluded.balance, updated_at = excluded.updated_at
		 RETURNING balance`,
		userID, amount, ts(time.Now()),
	).Scan(&after)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "sqlite: credit %s", userID)
	}
	return after - amount, after, nil
}

func (t *sqliteTx) AppendEntry(ctx context.Context, e *model.LedgerEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var snapshot any
	if len(e.VerdictSnapshot) > 0 {
		snapshot = string(e.VerdictSnapshot)
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.LeadRef, string(e.MovementType), e.Amount,
		e.BalanceBefore, e.BalanceAfter, e.Reason, snapshot, ts(e.CreatedAt),
	)
	return eris.Wrap(err, "sqlite: append ledger entry")
}

func (t *sqliteTx) InsertLead(ctx context.Context, l *model.PersistedLead) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	verdictJSON, err := json.Marshal(l.Verdict)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal verdict")
	}
	var audited any
	if l.AuditedAt != nil {
		audited = ts(*l.AuditedAt)
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO leads (`+leadColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.UserID, l.NormalizedPhone, l.Email, l.BusinessName, l.Category,
		string(verdictJSON), string(l.Status), l.CreditCharged, l.CreditRefunded, ts(l.CreatedAt), audited,
	)
	return eris.Wrap(err, "sqlite: insert lead")
}

func (t *sqliteTx) MarkRefunded(ctx context.Context, userID, leadID string) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE leads SET credit_refunded = 1
		 WHERE id = ? AND user_id = ? AND credit_charged = 1 AND credit_refunded = 0`,
		leadID, userID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: mark lead %s refunded", leadID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func (t *sqliteTx) UpdateLeadAudit(ctx context.Context, leadID string, verdict model.ValidationVerdict, status model.LeadStatus, auditedAt time.Time) error {
	verdictJSON, err := json.Marshal(verdict)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal verdict")
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE leads SET verdict = ?, status = ?, audited_at = ? WHERE id = ?`,
		string(verdictJSON), string(status), ts(auditedAt), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update lead audit %s", leadID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Wrapf(ErrNotFound, "lead %s", leadID)
	}
	return nil
}

func (t *sqliteTx) InsertBlacklist(ctx context.Context, e *model.BlacklistEntry) (bool, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO blacklist (phone, business_name, reason, source, user_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (phone) DO NOTHING`,
		e.Phone, e.BusinessName, e.Reason, e.Source, e.UserID, ts(e.CreatedAt),
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert blacklist")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}
