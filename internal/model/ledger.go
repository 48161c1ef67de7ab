package model

import (
	"encoding/json"
	"time"
)

// MovementType is the business reason for a credit balance change.
type MovementType string

const (
	MovementConsume MovementType = "CONSUME"
	MovementRefund  MovementType = "REFUND"
	MovementGrant   MovementType = "GRANT"
)

// Sign returns -1 for movements that decrease the balance and +1 otherwise.
func (m MovementType) Sign() int64 {
	if m == MovementConsume {
		return -1
	}
	return 1
}

// CreditAccount is a user's prepaid credit balance. Only the ledger mutates it.
type CreditAccount struct {
	UserID    string    `json:"user_id"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LedgerEntry is one immutable row recording a single balance change.
type LedgerEntry struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	LeadRef         string          `json:"lead_ref,omitempty"`
	MovementType    MovementType    `json:"movement_type"`
	Amount          int64           `json:"amount"`
	BalanceBefore   int64           `json:"balance_before"`
	BalanceAfter    int64           `json:"balance_after"`
	Reason          string          `json:"reason"`
	VerdictSnapshot json.RawMessage `json:"verdict_snapshot,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Consistent reports whether the entry's before/after balances agree with
// its amount and movement type.
func (e *LedgerEntry) Consistent() bool {
	return e.BalanceAfter >= 0 && e.BalanceAfter == e.BalanceBefore+e.MovementType.Sign()*e.Amount
}

// Movement is the before/after pair produced by a ledger operation.
type Movement struct {
	BalanceBefore int64 `json:"balance_before"`
	BalanceAfter  int64 `json:"balance_after"`
	// Applied is false when an idempotent operation found nothing to do.
	Applied bool `json:"applied"`
}
