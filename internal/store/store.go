package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgate/internal/model"
	"github.com/sells-group/leadgate/internal/resilience"
)

// ErrNotFound is returned when a keyed lookup has no row.
var ErrNotFound = eris.New("store: not found")

// LeadFilter specifies criteria for listing leads.
type LeadFilter struct {
	UserID string           `json:"user_id,omitempty"`
	Status model.LeadStatus `json:"status,omitempty"`
	Since  time.Time        `json:"since,omitempty"`
	Until  time.Time        `json:"until,omitempty"`
	Limit  int              `json:"limit,omitempty"`
	Offset int              `json:"offset,omitempty"`
}

// EntryFilter specifies criteria for listing ledger entries.
type EntryFilter struct {
	MovementType model.MovementType `json:"movement_type,omitempty"`
	LeadRef      string             `json:"lead_ref,omitempty"`
	Limit        int                `json:"limit,omitempty"`
}

// Reader exposes the read side of the datastore.
type Reader interface {
	// Accounts and ledger
	GetAccount(ctx context.Context, userID string) (*model.CreditAccount, error)
	ListEntries(ctx context.Context, userID string, filter EntryFilter) ([]model.LedgerEntry, error)

	// Leads
	GetLead(ctx context.Context, id string) (*model.PersistedLead, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.PersistedLead, error)
	// FindAcceptedLead returns the newest accepted lead for userID whose
	// phone matches, created at or after since, or nil.
	FindAcceptedLead(ctx context.Context, userID, phone string, since time.Time) (*model.PersistedLead, error)
	// FindAcceptedLeadByName is FindAcceptedLead keyed by business name
	// (case-insensitive).
	FindAcceptedLeadByName(ctx context.Context, userID, name string, since time.Time) (*model.PersistedLead, error)

	// Blacklist
	GetBlacklistEntry(ctx context.Context, phone string) (*model.BlacklistEntry, error)

	// Customers
	FindCustomerByPhone(ctx context.Context, phone string) (*model.Customer, error)
}

// Tx is the write side of the datastore. Every method runs inside the
// transaction opened by Store.InTx, so a candidate's effects commit together.
type Tx interface {
	// Consume atomically decrements the balance if it covers amount. ok is
	// false, with no change made, when the balance is insufficient or the
	// account does not exist.
	Consume(ctx context.Context, userID string, amount int64) (before, after int64, ok bool, err error)
	// Credit atomically increments the balance, creating the account if needed.
	Credit(ctx context.Context, userID string, amount int64) (before, after int64, err error)
	AppendEntry(ctx context.Context, e *model.LedgerEntry) error

	InsertLead(ctx context.Context, l *model.PersistedLead) error
	// MarkRefunded flips credit_refunded for a charged, unrefunded lead owned
	// by userID. It reports false when there was nothing to flip.
	MarkRefunded(ctx context.Context, userID, leadID string) (bool, error)
	UpdateLeadAudit(ctx context.Context, leadID string, verdict model.ValidationVerdict, status model.LeadStatus, auditedAt time.Time) error

	// InsertBlacklist adds an entry unless the phone is already present. It
	// reports whether a row was written.
	InsertBlacklist(ctx context.Context, e *model.BlacklistEntry) (bool, error)

	// GetAccount and ListEntries read through the transaction, so they see
	// the same state as its writes.
	GetAccount(ctx context.Context, userID string) (*model.CreditAccount, error)
	ListEntries(ctx context.Context, userID string, filter EntryFilter) ([]model.LedgerEntry, error)
}

// Store defines the persistence interface for the validation pipeline and
// the credit ledger.
type Store interface {
	Reader

	// InTx runs fn inside one transaction. fn's error rolls everything back.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	// InSnapshot runs fn in a read-only transaction whose reads all see one
	// committed state.
	InSnapshot(ctx context.Context, fn func(tx Tx) error) error

	// ImportBlacklist bulk-loads entries, skipping phones already present.
	ImportBlacklist(ctx context.Context, entries []model.BlacklistEntry) (int64, error)

	// Dead letter queue for candidates whose pipeline run failed.
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveDLQ(ctx context.Context, id string) error
	CountDLQ(ctx context.Context) (int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

func defaultLimit(n int) int {
	if n <= 0 {
		return 100
	}
	return n
}
