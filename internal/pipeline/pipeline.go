// Package pipeline runs a candidate lead through normalization, pattern
// checks, domain resolution, blacklist and duplicate lookups, and applies
// the resulting ledger action as a single unit of work.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgate/internal/ledger"
	"github.com/sells-group/leadgate/internal/lock"
	"github.com/sells-group/leadgate/internal/metrics"
	"github.com/sells-group/leadgate/internal/model"
	"github.com/sells-group/leadgate/internal/normalize"
	"github.com/sells-group/leadgate/internal/resilience"
	"github.com/sells-group/leadgate/internal/store"
	"github.com/sells-group/leadgate/internal/validate"
)

// MailChecker confirms that an email domain accepts mail.
type MailChecker interface {
	HasMailRecord(ctx context.Context, domain string) (bool, error)
}

// Blacklist looks up and records banned phones.
type Blacklist interface {
	Lookup(ctx context.Context, phone string) (*model.BlacklistEntry, error)
	RecordTx(ctx context.Context, tx store.Tx, e *model.BlacklistEntry) (bool, error)
	Remember(ctx context.Context, e *model.BlacklistEntry)
}

// DuplicateChecker finds an earlier lead or customer a candidate repeats.
type DuplicateChecker interface {
	Check(ctx context.Context, userID, phone, name string) (*model.LeadRef, error)
}

// Config tunes the Pipeline.
type Config struct {
	// UnitCost is the credit price of one accepted lead. Default 1.
	UnitCost int64
	// PersistRejected also stores leads that were rejected.
	PersistRejected bool
	// Retry governs the unit of work. Zero value retries once.
	Retry resilience.RetryConfig
	// MaxConcurrent bounds candidates processed at once by the batch
	// runners. Default 10.
	MaxConcurrent int
	// DLQMaxRetries and DLQBackoff shape dead-letter retries.
	DLQMaxRetries int
	DLQBackoff    time.Duration
}

func (c Config) withDefaults() Config {
	if c.UnitCost <= 0 {
		c.UnitCost = 1
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = resilience.DatastoreRetryConfig()
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 10
	}
	if c.DLQMaxRetries <= 0 {
		c.DLQMaxRetries = 3
	}
	if c.DLQBackoff <= 0 {
		c.DLQBackoff = time.Minute
	}
	return c
}

// Result is the outcome of one pipeline run.
type Result struct {
	Candidate       model.CandidateLead     `json:"candidate"`
	UserID          string                  `json:"user_id"`
	NormalizedPhone string                  `json:"normalized_phone"`
	Verdict         model.ValidationVerdict `json:"verdict"`
	Action          model.LedgerAction      `json:"action,omitempty"`
	Status          model.LeadStatus        `json:"status,omitempty"`
	Reason          string                  `json:"reason,omitempty"`
	// Lead is nil when nothing was persisted.
	Lead         *model.PersistedLead `json:"lead,omitempty"`
	Movement     model.Movement       `json:"movement"`
	State        model.PipelineState  `json:"state"`
	RulesVersion string               `json:"rules_version"`
}

// Pipeline orchestrates validation and the ledger for candidate leads.
type Pipeline struct {
	cfg       Config
	st        store.Store
	validator *validate.Validator
	dns       MailChecker
	blacklist Blacklist
	dedupe    DuplicateChecker
	ledger    *ledger.Ledger
	keys      *lock.KeyedMutex
	now       func() time.Time
}

// New creates a Pipeline. dns may be nil, in which case domains are never
// confirmed.
func New(cfg Config, st store.Store, v *validate.Validator, dns MailChecker, bl Blacklist, dd DuplicateChecker) *Pipeline {
	return &Pipeline{
		cfg:       cfg.withDefaults(),
		st:        st,
		validator: v,
		dns:       dns,
		blacklist: bl,
		dedupe:    dd,
		ledger:    ledger.New(st),
		keys:      lock.NewKeyedMutex(),
		now:       time.Now,
	}
}

// Ledger returns the ledger the pipeline charges through.
func (p *Pipeline) Ledger() *ledger.Ledger { return p.ledger }

// Run validates one candidate for userID and applies the ledger action.
// Candidates sharing a user and phone are processed one at a time so the
// later one sees the earlier one as a duplicate.
//
// Errors: ErrInsufficientCredit when an acceptable lead cannot be paid for,
// ErrDatastoreUnavailable when a lookup or the unit of work failed. In both
// cases nothing was persisted and the returned Result carries the verdict
// reached so far.
func (p *Pipeline) Run(ctx context.Context, cand model.CandidateLead, userID string) (*Result, error) {
	start := time.Now()
	phone := normalize.Phone(cand.Phone)
	if phone != "" {
		unlock := p.keys.Lock(userID + "|" + phone)
		defer unlock()
	}

	res, err := p.run(ctx, cand, userID)
	metrics.PipelineDuration.Observe(time.Since(start).Seconds())

	log := zap.L().With(
		zap.String("user_id", userID),
		zap.String("phone", normalize.Display(res.NormalizedPhone)),
	)
	switch {
	case errors.Is(err, ErrInsufficientCredit):
		metrics.CandidatesTotal.WithLabelValues("insufficient_credit").Inc()
		log.Warn("pipeline: insufficient credit", zap.Int64("unit_cost", p.cfg.UnitCost))
	case err != nil:
		metrics.CandidatesTotal.WithLabelValues("failed").Inc()
		log.Error("pipeline: candidate failed", zap.String("state", string(res.State)), zap.Error(err))
	default:
		metrics.CandidatesTotal.WithLabelValues(string(res.Status)).Inc()
		log.Info("pipeline: candidate processed",
			zap.String("status", string(res.Status)),
			zap.String("action", string(res.Action)),
			zap.String("severity", res.Verdict.PhoneSeverity.String()),
			zap.String("reason", res.Reason),
			zap.Int64("balance_after", res.Movement.BalanceAfter),
		)
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context, cand model.CandidateLead, userID string) (*Result, error) {
	res := &Result{
		Candidate:    cand,
		UserID:       userID,
		State:        model.StateReceived,
		RulesVersion: p.validator.Version(),
	}

	res.State = model.StateNormalizing
	phone, err := normalize.ParsePhone(cand.Phone)
	if err != nil {
		zap.L().Debug("pipeline: phone not normalized", zap.String("raw", cand.Phone), zap.Error(err))
	}
	email := normalize.Email(cand.Email)
	name := normalize.Name(cand.Name)
	res.NormalizedPhone = phone

	res.State = model.StatePatternChecking
	v := &res.Verdict
	pr := p.validator.CheckPhone(phone)
	v.ValidPhone = pr.Valid
	v.PhoneSeverity = pr.Severity
	v.PhoneCategory = pr.Category
	if pr.Description != "" {
		v.PhoneReasons = []string{pr.Description}
	}
	metrics.PhoneSeverityTotal.WithLabelValues(pr.Severity.String()).Inc()

	// A CRITICAL phone settles the verdict; only the blacklist is still
	// consulted so an existing ban is reflected.
	if !v.Critical() {
		er := p.validator.CheckEmail(email)
		v.ValidEmail, v.EmailReasons = er.Valid, er.Reasons
		nr := p.validator.CheckName(name)
		v.ValidName, v.NameReasons = nr.Valid, nr.Reasons

		if er.Valid {
			res.State = model.StateEmailDomainChecking
			p.checkDomain(ctx, v, er.Domain)
		}
	}

	res.State = model.StateBlacklistChecking
	var banned *model.BlacklistEntry
	if phone != "" {
		err = p.lookup(ctx, "blacklist lookup", userID, func(ctx context.Context) error {
			var lerr error
			banned, lerr = p.blacklist.Lookup(ctx, phone)
			return lerr
		})
		if err != nil {
			return res, err
		}
		if banned != nil {
			v.MarkBlacklisted()
		}
	}

	if !v.Invalid() {
		res.State = model.StateDuplicateChecking
		var ref *model.LeadRef
		err = p.lookup(ctx, "duplicate lookup", userID, func(ctx context.Context) error {
			var lerr error
			ref, lerr = p.dedupe.Check(ctx, userID, phone, name)
			return lerr
		})
		if err != nil {
			return res, err
		}
		if ref != nil {
			v.IsDuplicate = true
			v.DuplicateOf = ref
		}
	}

	res.State = model.StateVerdictReady
	res.Action = v.Action(false)
	res.Status = v.Status()
	res.Reason = v.RejectionReason()

	lead := &model.PersistedLead{
		ID:              uuid.NewString(),
		UserID:          userID,
		NormalizedPhone: phone,
		Email:           email,
		BusinessName:    name,
		Category:        cand.BusinessCategory,
		Verdict:         *v,
		Status:          res.Status,
	}
	lead, mv, err := p.apply(ctx, res, lead, banned != nil)
	if err != nil {
		return res, err
	}
	res.Lead = lead
	res.Movement = mv
	res.State = model.StateLedgerApplied
	return res, nil
}

// checkDomain resolves the email domain. A timeout or an open breaker
// leaves the domain unconfirmed; a definite answer with no mail records
// invalidates the email.
func (p *Pipeline) checkDomain(ctx context.Context, v *model.ValidationVerdict, domain string) {
	if p.dns == nil {
		return
	}
	ok, err := p.dns.HasMailRecord(ctx, domain)
	switch {
	case err != nil:
		zap.L().Debug("pipeline: domain unconfirmed", zap.String("domain", domain), zap.Error(err))
	case ok:
		v.DomainConfirmed = true
	default:
		v.ValidEmail = false
		v.EmailReasons = append(v.EmailReasons, "domain has no mail records")
	}
}

// apply commits the verdict's side effects in one transaction: the charge,
// the lead row and the blacklist insert for a newly seen CRITICAL phone.
// lookup runs a read-only datastore check under the unit-of-work retry
// policy. Every failure is retried since a lookup has no business errors.
func (p *Pipeline) lookup(ctx context.Context, op, userID string, fn func(ctx context.Context) error) error {
	retry := p.cfg.Retry
	retry.ShouldRetry = func(error) bool { return true }
	retry.OnRetry = resilience.RetryLogger("pipeline", op, zap.String("user_id", userID))
	return unavailable(op, resilience.Do(ctx, retry, fn))
}

func (p *Pipeline) apply(ctx context.Context, res *Result, lead *model.PersistedLead, alreadyBanned bool) (*model.PersistedLead, model.Movement, error) {
	v := res.Verdict
	accept := res.Action == model.ActionAcceptAndCharge
	persist := accept || p.cfg.PersistRejected
	ban := v.Critical() && !alreadyBanned && lead.NormalizedPhone != ""
	if !persist && !ban {
		return nil, model.Movement{}, nil
	}

	retry := p.cfg.Retry
	retry.ShouldRetry = func(err error) bool {
		return !errors.Is(err, ledger.ErrInsufficientCredit) && !errors.Is(err, ledger.ErrInvalidAmount)
	}
	retry.OnRetry = resilience.RetryLogger("pipeline", "apply", zap.String("lead_id", lead.ID))

	var (
		mv       model.Movement
		banEntry *model.BlacklistEntry
	)
	err := resilience.Do(ctx, retry, func(ctx context.Context) error {
		mv, banEntry = model.Movement{}, nil
		return p.st.InTx(ctx, func(tx store.Tx) error {
			if accept {
				m, err := p.ledger.ConsumeTx(ctx, tx, res.UserID, p.cfg.UnitCost, ledger.Memo{
					LeadRef: lead.ID,
					Reason:  "lead accepted",
					Verdict: v.Snapshot(),
				})
				if err != nil {
					return err
				}
				mv = m
				lead.CreditCharged = true
			}
			if persist {
				if err := tx.InsertLead(ctx, lead); err != nil {
					return err
				}
			}
			if ban {
				e := &model.BlacklistEntry{
					Phone:        lead.NormalizedPhone,
					BusinessName: lead.BusinessName,
					Reason:       res.Reason,
					Source:       model.BlacklistSourcePipeline,
					UserID:       res.UserID,
				}
				inserted, err := p.blacklist.RecordTx(ctx, tx, e)
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
		if errors.Is(err, ErrInsufficientCredit) {
			return nil, model.Movement{}, err
		}
		return nil, model.Movement{}, unavailable("apply verdict", eris.Wrapf(err, "lead %s", lead.ID))
	}

	if banEntry != nil {
		p.blacklist.Remember(ctx, banEntry)
	}
	if !persist {
		return nil, mv, nil
	}
	return lead, mv, nil
}
