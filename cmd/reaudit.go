package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgate/internal/reaudit"
)

var (
	reauditUser  string
	reauditSince string
	reauditUntil string
)

var reauditCmd = &cobra.Command{
	Use:   "reaudit",
	Short: "Re-check a user's accepted leads against the current rules",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		w, err := parseWindow(reauditSince, reauditUntil)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		sum, err := env.Auditor.Reaudit(ctx, w, reauditUser)
		if err != nil {
			return err
		}

		zap.L().Info("reaudit complete",
			zap.String("user_id", reauditUser),
			zap.Int("processed", sum.Processed),
			zap.Int("invalidated", sum.Invalidated),
			zap.Int("refunded", sum.Refunded),
			zap.Int("failed", sum.Failed),
		)
		return printJSON(sum)
	},
}

func init() {
	reauditCmd.Flags().StringVar(&reauditUser, "user", "", "user whose leads are re-audited (required)")
	reauditCmd.Flags().StringVar(&reauditSince, "since", "", "start of the window, RFC3339 or YYYY-MM-DD")
	reauditCmd.Flags().StringVar(&reauditUntil, "until", "", "end of the window, RFC3339 or YYYY-MM-DD")
	_ = reauditCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(reauditCmd)
}

func parseWindow(since, until string) (reaudit.Window, error) {
	var w reaudit.Window
	var err error
	if w.Since, err = parseDate(since); err != nil {
		return w, eris.Wrap(err, "parse --since")
	}
	if w.Until, err = parseDate(until); err != nil {
		return w, eris.Wrap(err, "parse --until")
	}
	if !w.Since.IsZero() && !w.Until.IsZero() && w.Until.Before(w.Since) {
		return w, eris.New("--until is before --since")
	}
	return w, nil
}

// parseDate accepts RFC3339 or a bare date in UTC. Empty input is the zero
// time, which leaves that side of the window open.
func parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, v)
}
