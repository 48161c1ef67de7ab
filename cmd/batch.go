package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgate/internal/api"
	"github.com/sells-group/leadgate/internal/model"
	"github.com/sells-group/leadgate/internal/pipeline"
	"github.com/sells-group/leadgate/internal/resilience"
	"github.com/sells-group/leadgate/internal/source"
	anthropicpkg "github.com/sells-group/leadgate/pkg/anthropic"
)

var (
	batchSource   string
	batchCSVPath  string
	batchUser     string
	batchPrompt   string
	batchCity     string
	batchLimit    int
	batchRetryDLQ bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Validate a batch of candidates from a lead source",
	Long:  "Pulls candidates from the Notion queue, a CSV file or an LLM prospecting prompt, validates them and reports each outcome back to the source.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mode, err := sourceMode(batchSource)
		if err != nil {
			return err
		}
		if batchRetryDLQ {
			mode = "store"
		}

		env, err := initEnv(ctx, mode)
		if err != nil {
			return err
		}
		defer env.Close()

		if batchRetryDLQ {
			report, err := env.Pipeline.RetryDLQ(ctx, resilience.DLQFilter{UserID: batchUser, Limit: batchLimit})
			if err != nil {
				return err
			}
			zap.L().Info("dead-letter retry complete",
				zap.Int("retried", report.Retried),
				zap.Int("resolved", report.Resolved),
				zap.Int("requeued", report.Requeued),
			)
			return nil
		}

		src, closeFn, err := openSource(batchSource)
		if err != nil {
			return err
		}
		defer closeFn()

		report, err := processSource(ctx, env.Pipeline, src, batchLimit)
		if err != nil {
			return err
		}
		logReport(report)
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchSource, "source", "notion", "lead source: notion, csv or anthropic")
	batchCmd.Flags().StringVar(&batchCSVPath, "csv", "", "CSV file for --source csv")
	batchCmd.Flags().StringVar(&batchUser, "user", "", "user charged for the leads (Notion pages may override)")
	batchCmd.Flags().StringVar(&batchPrompt, "prompt", "", "prospecting prompt for --source anthropic")
	batchCmd.Flags().StringVar(&batchCity, "city", "", "city appended to the prospecting prompt")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 100, "max number of candidates to process")
	batchCmd.Flags().BoolVar(&batchRetryDLQ, "retry-dlq", false, "rerun dead-lettered candidates instead of reading a source")
	rootCmd.AddCommand(batchCmd)
}

// sourceMode maps a source name onto the config validation mode it needs.
func sourceMode(name string) (string, error) {
	switch name {
	case "notion":
		return "notion", nil
	case "anthropic":
		return "prospect", nil
	case "csv":
		return "store", nil
	default:
		return "", eris.Errorf("unknown source %q (want notion, csv or anthropic)", name)
	}
}

func openSource(name string) (source.Source, func(), error) {
	noop := func() {}
	switch name {
	case "notion":
		client, dbID, err := notionQueue()
		if err != nil {
			return nil, noop, err
		}
		return source.NewNotion(client, dbID, batchUser), noop, nil
	case "csv":
		if batchCSVPath == "" {
			return nil, noop, eris.New("--csv is required for the csv source")
		}
		if batchUser == "" {
			return nil, noop, eris.New("--user is required for the csv source")
		}
		src, err := source.OpenCSV(batchCSVPath, batchUser)
		if err != nil {
			return nil, noop, err
		}
		return src, func() { _ = src.Close() }, nil
	case "anthropic":
		if batchPrompt == "" {
			return nil, noop, eris.New("--prompt is required for the anthropic source")
		}
		if batchUser == "" {
			return nil, noop, eris.New("--user is required for the anthropic source")
		}
		prospect := newProspector(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic)
		return prospect(api.ProspectRequest{UserID: batchUser, Prompt: batchPrompt, City: batchCity, Limit: batchLimit}), noop, nil
	default:
		return nil, noop, eris.Errorf("unknown source %q", name)
	}
}

// jobRunner runs a batch of jobs.
type jobRunner interface {
	RunJobs(ctx context.Context, jobs []pipeline.Job) (*pipeline.BatchReport, error)
}

// processSource drains up to limit items from src, validates them as one
// batch and acknowledges each outcome when src tracks item state.
func processSource(ctx context.Context, runner jobRunner, src source.Source, limit int) (*pipeline.BatchReport, error) {
	items, err := source.Collect(ctx, src, limit)
	if err != nil {
		return nil, eris.Wrap(err, "read source")
	}
	if len(items) == 0 {
		zap.L().Info("no candidates found")
		return &pipeline.BatchReport{}, nil
	}

	jobs := make([]pipeline.Job, 0, len(items))
	for _, it := range items {
		jobs = append(jobs, pipeline.Job{UserID: it.UserID, Candidate: it.Candidate})
	}

	zap.L().Info("processing batch", zap.Int("candidates", len(jobs)))
	report, err := runner.RunJobs(ctx, jobs)
	if err != nil {
		return nil, eris.Wrap(err, "batch processing")
	}

	acker, ok := src.(source.Acker)
	if !ok {
		return report, nil
	}
	for i, it := range report.Items {
		outcome, note := outcomeOf(it)
		if err := acker.Ack(ctx, items[i], outcome, note); err != nil {
			zap.L().Warn("failed to acknowledge candidate",
				zap.String("source_ref", items[i].Candidate.SourceRef),
				zap.String("outcome", outcome),
				zap.Error(err),
			)
		}
	}
	return report, nil
}

func outcomeOf(it pipeline.Item) (outcome, note string) {
	if it.Err() != nil {
		return source.OutcomeFailed, it.Error
	}
	if it.Result == nil {
		return source.OutcomeFailed, "no result"
	}
	if it.Result.Status == model.LeadStatusAccepted {
		return source.OutcomeAccepted, it.Result.Reason
	}
	return source.OutcomeRejected, it.Result.Reason
}

func logReport(r *pipeline.BatchReport) {
	zap.L().Info("batch complete",
		zap.Int("candidates", len(r.Items)),
		zap.Int("accepted", r.Accepted),
		zap.Int("rejected_invalid", r.RejectedInvalid),
		zap.Int("rejected_duplicate", r.RejectedDuplicate),
		zap.Int("insufficient_credit", r.InsufficientCredit),
		zap.Int("failed", r.Failed),
		zap.Int64("charged", r.Charged),
	)
}
