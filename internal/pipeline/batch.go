package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadgate/internal/metrics"
	"github.com/sells-group/leadgate/internal/model"
	"github.com/sells-group/leadgate/internal/resilience"
)

// Job is one candidate to run for a user.
type Job struct {
	UserID    string              `json:"user_id"`
	Candidate model.CandidateLead `json:"candidate"`
}

// Item is the outcome of one job in a batch.
type Item struct {
	Index  int     `json:"index"`
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
	// DeadLettered is set when the job was parked for a later retry.
	DeadLettered bool `json:"dead_lettered,omitempty"`

	err error
}

// Err returns the job's error, if any.
func (i Item) Err() error { return i.err }

// BatchReport summarizes a batch run. Items are in job order.
type BatchReport struct {
	Items              []Item `json:"items"`
	Accepted           int    `json:"accepted"`
	RejectedInvalid    int    `json:"rejected_invalid"`
	RejectedDuplicate  int    `json:"rejected_duplicate"`
	InsufficientCredit int    `json:"insufficient_credit"`
	Failed             int    `json:"failed"`
	Charged            int64  `json:"charged"`
}

func (r *BatchReport) add(it Item) {
	r.Items[it.Index] = it
	switch {
	case errors.Is(it.err, ErrInsufficientCredit):
		r.InsufficientCredit++
	case it.err != nil:
		r.Failed++
	default:
		switch it.Result.Status {
		case model.LeadStatusAccepted:
			r.Accepted++
			if it.Result.Movement.Applied {
				r.Charged += it.Result.Movement.BalanceBefore - it.Result.Movement.BalanceAfter
			}
		case model.LeadStatusRejectedInvalid:
			r.RejectedInvalid++
		case model.LeadStatusRejectedDuplicate:
			r.RejectedDuplicate++
		}
	}
}

// RunBatch runs every candidate for one user.
func (p *Pipeline) RunBatch(ctx context.Context, userID string, cands []model.CandidateLead) (*BatchReport, error) {
	jobs := make([]Job, len(cands))
	for i, c := range cands {
		jobs[i] = Job{UserID: userID, Candidate: c}
	}
	return p.RunJobs(ctx, jobs)
}

// RunJobs runs jobs concurrently, bounded by Config.MaxConcurrent. A failed
// job does not stop the others; candidates that failed against the
// datastore are dead-lettered. The error is non-nil only when ctx ends
// before every job ran.
func (p *Pipeline) RunJobs(ctx context.Context, jobs []Job) (*BatchReport, error) {
	log := zap.L().With(zap.Int("jobs", len(jobs)))
	log.Info("pipeline: batch starting")

	report := &BatchReport{Items: make([]Item, len(jobs))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrent)

	for i, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			it := Item{Index: i}
			res, err := p.Run(gctx, job.Candidate, job.UserID)
			it.Result, it.err = res, err
			if err != nil {
				it.Error = err.Error()
				if errors.Is(err, ErrDatastoreUnavailable) && gctx.Err() == nil {
					it.DeadLettered = p.deadLetter(gctx, job, res, err)
				}
			}

			mu.Lock()
			report.add(it)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, eris.Wrap(err, "pipeline: batch")
	}

	log.Info("pipeline: batch complete",
		zap.Int("accepted", report.Accepted),
		zap.Int("rejected_invalid", report.RejectedInvalid),
		zap.Int("rejected_duplicate", report.RejectedDuplicate),
		zap.Int("insufficient_credit", report.InsufficientCredit),
		zap.Int("failed", report.Failed),
		zap.Int64("charged", report.Charged),
	)
	return report, nil
}

func (p *Pipeline) deadLetter(ctx context.Context, job Job, res *Result, cause error) bool {
	now := p.now().UTC()
	entry := resilience.DLQEntry{
		UserID:       job.UserID,
		Candidate:    job.Candidate,
		Error:        cause.Error(),
		ErrorType:    resilience.ClassifyError(cause),
		MaxRetries:   p.cfg.DLQMaxRetries,
		CreatedAt:    now,
		LastFailedAt: now,
	}
	if res != nil {
		entry.FailedState = string(res.State)
	}
	entry.NextRetryAt = entry.NextBackoff(now, p.cfg.DLQBackoff)

	if err := p.st.EnqueueDLQ(ctx, entry); err != nil {
		zap.L().Error("pipeline: dead-letter enqueue failed",
			zap.String("user_id", job.UserID),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return false
	}
	metrics.DLQEnqueuedTotal.Inc()
	return true
}

// DLQReport summarizes a dead-letter retry pass.
type DLQReport struct {
	Retried  int `json:"retried"`
	Resolved int `json:"resolved"`
	Requeued int `json:"requeued"`
}

// RetryDLQ reruns due dead-lettered candidates. Any answer other than
// another datastore failure, insufficient credit included, resolves the
// entry.
func (p *Pipeline) RetryDLQ(ctx context.Context, filter resilience.DLQFilter) (*DLQReport, error) {
	entries, err := p.st.DequeueDLQ(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: dequeue dlq")
	}

	report := &DLQReport{}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Retried++

		_, runErr := p.Run(ctx, e.Candidate, e.UserID)
		if runErr == nil || !errors.Is(runErr, ErrDatastoreUnavailable) {
			if err := p.st.RemoveDLQ(ctx, e.ID); err != nil {
				return report, eris.Wrapf(err, "pipeline: remove dlq %s", e.ID)
			}
			report.Resolved++
			continue
		}

		next := e.NextBackoff(p.now().UTC(), p.cfg.DLQBackoff)
		if err := p.st.IncrementDLQRetry(ctx, e.ID, next, runErr.Error()); err != nil {
			return report, eris.Wrapf(err, "pipeline: requeue dlq %s", e.ID)
		}
		report.Requeued++
		zap.L().Warn("pipeline: dead-letter retry failed",
			zap.String("dlq_id", e.ID),
			zap.Int("retry_count", e.RetryCount+1),
			zap.Int("max_retries", e.MaxRetries),
			zap.Error(runErr),
		)
	}
	return report, nil
}
