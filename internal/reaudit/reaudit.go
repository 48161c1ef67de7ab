// Package reaudit re-checks previously accepted leads against the current
// phone rules and blacklist, and refunds the ones that no longer hold up.
package reaudit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgate/internal/ledger"
	"github.com/sells-group/leadgate/internal/lock"
	"github.com/sells-group/leadgate/internal/metrics"
	"github.com/sells-group/leadgate/internal/model"
	"github.com/sells-group/leadgate/internal/resilience"
	"github.com/sells-group/leadgate/internal/store"
	"github.com/sells-group/leadgate/internal/validate"
)

// ErrAlreadyRunning is returned when another re-audit holds the user's lock.
var ErrAlreadyRunning = eris.Wrap(lock.ErrNotAcquired, "reaudit: already running for user")

// Blacklist looks up and records banned phones.
type Blacklist interface {
	Lookup(ctx context.Context, phone string) (*model.BlacklistEntry, error)
	RecordTx(ctx context.Context, tx store.Tx, e *model.BlacklistEntry) (bool, error)
	Remember(ctx context.Context, e *model.BlacklistEntry)
}

// Window bounds the creation time of the leads to re-audit. A zero bound
// is open.
type Window struct {
	Since time.Time `json:"since"`
	Until time.Time `json:"until"`
}

// Failure records a lead the re-audit could not finish.
type Failure struct {
	LeadID string `json:"lead_id"`
	Error  string `json:"error"`
}

// Summary counts what a re-audit did.
type Summary struct {
	Processed   int       `json:"processed"`
	Invalidated int       `json:"invalidated"`
	Refunded    int       `json:"refunded"`
	Failed      int       `json:"failed"`
	Failures    []Failure `json:"failures,omitempty"`
}

// Config tunes the Auditor.
type Config struct {
	// UnitCost is refunded when a lead's charge cannot be found. Default 1.
	UnitCost int64
	// LockTTL bounds how long a crashed run keeps others out. Default 10m.
	LockTTL time.Duration
	// PageSize is how many leads are loaded per query. Default 500.
	PageSize int
	// Retry governs each lead's transaction. Zero value retries once.
	Retry resilience.RetryConfig
}

// Auditor runs re-audits.
type Auditor struct {
	cfg       Config
	st        store.Store
	validator *validate.Validator
	blacklist Blacklist
	ledger    *ledger.Ledger
	locks     redis.UniversalClient
	now       func() time.Time
}

// New creates an Auditor. locks may be nil, in which case the per-user
// lock only excludes runs within this process.
func New(cfg Config, st store.Store, v *validate.Validator, bl Blacklist, locks redis.UniversalClient) *Auditor {
	if cfg.UnitCost <= 0 {
		cfg.UnitCost = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = resilience.DatastoreRetryConfig()
	}
	return &Auditor{
		cfg:       cfg,
		st:        st,
		validator: v,
		blacklist: bl,
		ledger:    ledger.New(st),
		locks:     locks,
		now:       time.Now,
	}
}

// Reaudit re-checks the user's accepted leads created inside w. A lead that
// is now CRITICAL or blacklisted is marked rejected, refunded once if it
// was charged, and its phone blacklisted if CRITICAL. Per-lead failures are
// recorded in the summary and do not stop the run. Running it again over
// the same window changes nothing.
func (a *Auditor) Reaudit(ctx context.Context, w Window, userID string) (*Summary, error) {
	lk := lock.New(a.locks, "reaudit:"+userID, a.cfg.LockTTL)
	ok, err := lk.Acquire(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "reaudit: lock user %s", userID)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}
	defer func() {
		if err := lk.Release(context.WithoutCancel(ctx)); err != nil {
			zap.L().Warn("reaudit: release lock", zap.String("user_id", userID), zap.Error(err))
		}
	}()

	log := zap.L().With(zap.String("user_id", userID), zap.Time("since", w.Since), zap.Time("until", w.Until))

	leads, err := a.load(ctx, w, userID)
	if err != nil {
		return nil, err
	}
	log.Info("reaudit: starting", zap.Int("leads", len(leads)))

	sum := &Summary{}
	for i := range leads {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		lead := &leads[i]
		sum.Processed++

		got, err := a.audit(ctx, lead)
		switch {
		case err != nil:
			sum.Failed++
			sum.Failures = append(sum.Failures, Failure{LeadID: lead.ID, Error: err.Error()})
			metrics.ReauditLeadsTotal.WithLabelValues("failed").Inc()
			log.Warn("reaudit: lead failed", zap.String("lead_id", lead.ID), zap.Error(err))
		case got == outcomeRefunded:
			sum.Invalidated++
			sum.Refunded++
		case got == outcomeInvalidated:
			sum.Invalidated++
		}
		if err == nil {
			metrics.ReauditLeadsTotal.WithLabelValues(string(got)).Inc()
		}
	}

	log.Info("reaudit: complete",
		zap.Int("processed", sum.Processed),
		zap.Int("invalidated", sum.Invalidated),
		zap.Int("refunded", sum.Refunded),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}

// load reads every candidate lead up front; auditing changes their status,
// which would shift offsets under a paged scan.
func (a *Auditor) load(ctx context.Context, w Window, userID string) ([]model.PersistedLead, error) {
	var out []model.PersistedLead
	for offset := 0; ; offset += a.cfg.PageSize {
		page, err := a.st.ListLeads(ctx, store.LeadFilter{
			UserID: userID,
			Status: model.LeadStatusAccepted,
			Since:  w.Since,
			Until:  w.Until,
			Limit:  a.cfg.PageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, eris.Wrap(err, "reaudit: list leads")
		}
		out = append(out, page...)
		if len(page) < a.cfg.PageSize {
			return out, nil
		}
	}
}

type outcome string

const (
	outcomeClean       outcome = "clean"
	outcomeInvalidated outcome = "invalidated"
	outcomeRefunded    outcome = "refunded"
)

func (a *Auditor) audit(ctx context.Context, lead *model.PersistedLead) (outcome, error) {
	v := lead.Verdict
	pr := a.validator.CheckPhone(lead.NormalizedPhone)
	v.ValidPhone = pr.Valid
	v.PhoneSeverity = pr.Severity
	v.PhoneCategory = pr.Category
	v.PhoneReasons = nil
	if pr.Description != "" {
		v.PhoneReasons = []string{pr.Description}
	}

	banned, err := a.blacklist.Lookup(ctx, lead.NormalizedPhone)
	if err != nil {
		return "", err
	}
	if banned != nil {
		v.MarkBlacklisted()
	}
	if !v.Invalid() {
		return outcomeClean, nil
	}

	action := v.Action(lead.CreditCharged && !lead.CreditRefunded)
	amount, err := a.chargedAmount(ctx, lead)
	if err != nil {
		return "", err
	}

	var (
		result   outcome
		banEntry *model.BlacklistEntry
	)
	err = resilience.Do(ctx, a.cfg.Retry, func(ctx context.Context) error {
		result, banEntry = outcomeInvalidated, nil
		return a.st.InTx(ctx, func(tx store.Tx) error {
			if err := tx.UpdateLeadAudit(ctx, lead.ID, v, model.LeadStatusRejectedInvalid, a.now().UTC()); err != nil {
				return err
			}
			if action == model.ActionRejectAndRefund {
				mv, err := a.ledger.RefundTx(ctx, tx, lead.UserID, lead.ID, amount, ledger.Memo{
					LeadRef: lead.ID,
					Reason:  "reaudit: " + v.RejectionReason(),
					Verdict: v.Snapshot(),
				})
				if err != nil {
					return err
				}
				if mv.Applied {
					result = outcomeRefunded
				}
			}
			if v.Critical() && banned == nil {
				e := &model.BlacklistEntry{
					Phone:        lead.NormalizedPhone,
					BusinessName: lead.BusinessName,
					Reason:       v.RejectionReason(),
					Source:       model.BlacklistSourceReaudit,
					UserID:       lead.UserID,
				}
				inserted, err := a.blacklist.RecordTx(ctx, tx, e)
				if err != nil {
					return err
				}
				if inserted {
					banEntry = e
				}
			}
			return nil
		})
	})
	if err != nil {
		return "", eris.Wrapf(err, "reaudit: lead %s", lead.ID)
	}
	if banEntry != nil {
		a.blacklist.Remember(ctx, banEntry)
	}
	return result, nil
}

// chargedAmount is what the lead's CONSUME entry took, so a changed unit
// cost never refunds more or less than was paid.
func (a *Auditor) chargedAmount(ctx context.Context, lead *model.PersistedLead) (int64, error) {
	entries, err := a.st.ListEntries(ctx, lead.UserID, store.EntryFilter{
		MovementType: model.MovementConsume,
		LeadRef:      lead.ID,
		Limit:        1,
	})
	if err != nil {
		return 0, eris.Wrap(err, "reaudit: find charge")
	}
	if len(entries) == 0 {
		return a.cfg.UnitCost, nil
	}
	return entries[0].Amount, nil
}
