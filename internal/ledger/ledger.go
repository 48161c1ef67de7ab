// Package ledger owns every change to a user's credit balance. Each change
// writes exactly one immutable entry whose before/after balances come from
// the same statement that moved the balance.
package ledger

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgate/internal/metrics"
	"github.com/sells-group/leadgate/internal/model"
	"github.com/sells-group/leadgate/internal/store"
)

var (
	// ErrInsufficientCredit is returned when a consume would take the
	// balance below zero. Nothing is written.
	ErrInsufficientCredit = eris.New("ledger: insufficient credit")

	// ErrInvalidAmount is returned for a non-positive amount.
	ErrInvalidAmount = eris.New("ledger: amount must be positive")
)

// Memo describes why a movement happened.
type Memo struct {
	LeadRef string
	Reason  string
	Verdict json.RawMessage
}

// Ledger applies credit movements through a store.
type Ledger struct {
	st store.Store
}

// New creates a Ledger over st.
func New(st store.Store) *Ledger {
	return &Ledger{st: st}
}

// Consume debits amount in its own transaction.
func (l *Ledger) Consume(ctx context.Context, userID string, amount int64, memo Memo) (model.Movement, error) {
	var mv model.Movement
	err := l.st.InTx(ctx, func(tx store.Tx) error {
		var err error
		mv, err = l.ConsumeTx(ctx, tx, userID, amount, memo)
		return err
	})
	return mv, err
}

// ConsumeTx debits amount inside tx. It returns ErrInsufficientCredit, and
// makes no change, when the balance does not cover amount.
func (l *Ledger) ConsumeTx(ctx context.Context, tx store.Tx, userID string, amount int64, memo Memo) (model.Movement, error) {
	if amount <= 0 {
		return model.Movement{}, ErrInvalidAmount
	}
	before, after, ok, err := tx.Consume(ctx, userID, amount)
	if err != nil {
		return model.Movement{}, eris.Wrap(err, "ledger: consume")
	}
	if !ok {
		metrics.InsufficientCreditTotal.Inc()
		return model.Movement{}, eris.Wrapf(ErrInsufficientCredit, "user %s needs %d", userID, amount)
	}
	if err := l.appendEntry(ctx, tx, userID, model.MovementConsume, amount, before, after, memo); err != nil {
		return model.Movement{}, err
	}
	return model.Movement{BalanceBefore: before, BalanceAfter: after, Applied: true}, nil
}

// Refund credits amount back for leadID in its own transaction.
func (l *Ledger) Refund(ctx context.Context, userID, leadID string, amount int64, memo Memo) (model.Movement, error) {
	var mv model.Movement
	err := l.st.InTx(ctx, func(tx store.Tx) error {
		var err error
		mv, err = l.RefundTx(ctx, tx, userID, leadID, amount, memo)
		return err
	})
	return mv, err
}

// RefundTx credits amount back for leadID inside tx. It is idempotent per
// lead: when the lead was never charged or is already refunded it writes
// nothing and returns a Movement with Applied false.
func (l *Ledger) RefundTx(ctx context.Context, tx store.Tx, userID, leadID string, amount int64, memo Memo) (model.Movement, error) {
	if amount <= 0 {
		return model.Movement{}, ErrInvalidAmount
	}
	flipped, err := tx.MarkRefunded(ctx, userID, leadID)
	if err != nil {
		return model.Movement{}, eris.Wrap(err, "ledger: mark refunded")
	}
	if !flipped {
		zap.L().Debug("ledger: refund already applied",
			zap.String("user_id", userID),
			zap.String("lead_id", leadID),
		)
		return model.Movement{}, nil
	}

	before, after, err := tx.Credit(ctx, userID, amount)
	if err != nil {
		return model.Movement{}, eris.Wrap(err, "ledger: refund credit")
	}
	if memo.LeadRef == "" {
		memo.LeadRef = leadID
	}
	if err := l.appendEntry(ctx, tx, userID, model.MovementRefund, amount, before, after, memo); err != nil {
		return model.Movement{}, err
	}
	return model.Movement{BalanceBefore: before, BalanceAfter: after, Applied: true}, nil
}

// Grant tops up a balance in its own transaction, creating the account if
// it does not exist.
func (l *Ledger) Grant(ctx context.Context, userID string, amount int64, reason string) (model.Movement, error) {
	var mv model.Movement
	err := l.st.InTx(ctx, func(tx store.Tx) error {
		var err error
		mv, err = l.GrantTx(ctx, tx, userID, amount, reason)
		return err
	})
	return mv, err
}

// GrantTx tops up a balance inside tx.
func (l *Ledger) GrantTx(ctx context.Context, tx store.Tx, userID string, amount int64, reason string) (model.Movement, error) {
	if amount <= 0 {
		return model.Movement{}, ErrInvalidAmount
	}
	before, after, err := tx.Credit(ctx, userID, amount)
	if err != nil {
		return model.Movement{}, eris.Wrap(err, "ledger: grant")
	}
	if reason == "" {
		reason = "grant"
	}
	if err := l.appendEntry(ctx, tx, userID, model.MovementGrant, amount, before, after, Memo{Reason: reason}); err != nil {
		return model.Movement{}, err
	}
	return model.Movement{BalanceBefore: before, BalanceAfter: after, Applied: true}, nil
}

// Balance returns the user's current balance. A user without an account
// has a balance of zero.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	acct, err := l.st.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, nil
		}
		return 0, eris.Wrap(err, "ledger: balance")
	}
	return acct.Balance, nil
}

// History returns the user's ledger entries oldest first.
func (l *Ledger) History(ctx context.Context, userID string, filter store.EntryFilter) ([]model.LedgerEntry, error) {
	entries, err := l.st.ListEntries(ctx, userID, filter)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: history")
	}
	return entries, nil
}

func (l *Ledger) appendEntry(ctx context.Context, tx store.Tx, userID string, mt model.MovementType, amount, before, after int64, memo Memo) error {
	e := &model.LedgerEntry{
		UserID:          userID,
		LeadRef:         memo.LeadRef,
		MovementType:    mt,
		Amount:          amount,
		BalanceBefore:   before,
		BalanceAfter:    after,
		Reason:          memo.Reason,
		VerdictSnapshot: memo.Verdict,
	}
	if !e.Consistent() {
		return eris.Errorf("ledger: inconsistent %s entry for %s: %d -> %d by %d", mt, userID, before, after, amount)
	}
	if err := tx.AppendEntry(ctx, e); err != nil {
		return eris.Wrap(err, "ledger: append entry")
	}
	metrics.LedgerMovementsTotal.WithLabelValues(string(mt)).Inc()
	metrics.LedgerCreditsTotal.WithLabelValues(string(mt)).Add(float64(amount))
	return nil
}
