package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgate/internal/model"
	"github.com/sells-group/leadgate/internal/store"
)

// Reconciliation compares a user's stored balance with the balance implied
// by replaying their ledger entries.
type Reconciliation struct {
	UserID   string   `json:"user_id"`
	Balance  int64    `json:"balance"`
	Replayed int64    `json:"replayed"`
	Entries  int      `json:"entries"`
	Granted  int64    `json:"granted"`
	Consumed int64    `json:"consumed"`
	Refunded int64    `json:"refunded"`
	Problems []string `json:"problems,omitempty"`
}

// OK reports whether the replay matched and no entry was malformed.
func (r *Reconciliation) OK() bool {
	return len(r.Problems) == 0
}

// Reconcile replays every entry for userID. Balance must equal
// grants - consumes + refunds, each entry must be internally consistent,
// and each entry must start where the previous one ended.
// The balance and the entries are read from one snapshot, so a movement
// committed meanwhile cannot show up as drift.
func (l *Ledger) Reconcile(ctx context.Context, userID string) (*Reconciliation, error) {
	var (
		balance int64
		entries []model.LedgerEntry
	)
	err := l.st.InSnapshot(ctx, func(tx store.Tx) error {
		acct, err := tx.GetAccount(ctx, userID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			balance = 0
		case err != nil:
			return err
		default:
			balance = acct.Balance
		}
		entries, err = tx.ListEntries(ctx, userID, store.EntryFilter{})
		return err
	})
	if err != nil {
		return nil, eris.Wrap(err, "ledger: reconcile")
	}

	r := &Reconciliation{UserID: userID, Balance: balance, Entries: len(entries)}
	var prevAfter int64
	for i := range entries {
		e := &entries[i]
		if !e.Consistent() {
			r.Problems = append(r.Problems, fmt.Sprintf("entry %s: %d %s %d does not give %d",
				e.ID, e.BalanceBefore, e.MovementType, e.Amount, e.BalanceAfter))
		}
		if e.BalanceBefore != prevAfter {
			r.Problems = append(r.Problems, fmt.Sprintf("entry %s: starts at %d, previous ended at %d",
				e.ID, e.BalanceBefore, prevAfter))
		}
		prevAfter = e.BalanceAfter

		switch e.MovementType {
		case model.MovementGrant:
			r.Granted += e.Amount
		case model.MovementConsume:
			r.Consumed += e.Amount
		case model.MovementRefund:
			r.Refunded += e.Amount
		default:
			r.Problems = append(r.Problems, fmt.Sprintf("entry %s: unknown movement %q", e.ID, e.MovementType))
		}
	}

	r.Replayed = r.Granted - r.Consumed + r.Refunded
	if r.Replayed != r.Balance {
		r.Problems = append(r.Problems, fmt.Sprintf("balance %d, replay gives %d", r.Balance, r.Replayed))
	}
	return r, nil
}
