package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgate/internal/ledger"
	"github.com/sells-group/leadgate/internal/model"
	"github.com/sells-group/leadgate/internal/store"
)

var (
	creditsUser     string
	grantAmount     int64
	grantReason     string
	historyType     string
	historyLimit    int
	reconcileStrict bool
)

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Inspect and top up credit balances",
}

var creditsGrantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Add credits to a user's balance",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if grantAmount <= 0 {
			return eris.New("--amount must be positive")
		}

		st, err := openMigratedStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		mv, err := ledger.New(st).Grant(ctx, creditsUser, grantAmount, grantReason)
		if err != nil {
			return err
		}
		zap.L().Info("credits granted",
			zap.String("user_id", creditsUser),
			zap.Int64("amount", grantAmount),
			zap.Int64("balance", mv.BalanceAfter),
		)
		return printJSON(mv)
	},
}

var creditsBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print a user's balance",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openMigratedStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		bal, err := ledger.New(st).Balance(cmd.Context(), creditsUser)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"user_id": creditsUser, "balance": bal})
	},
}

var creditsHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List a user's ledger entries, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openMigratedStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entries, err := ledger.New(st).History(cmd.Context(), creditsUser, store.EntryFilter{
			MovementType: model.MovementType(historyType),
			Limit:        historyLimit,
		})
		if err != nil {
			return err
		}
		return printJSON(entries)
	},
}

var creditsReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Replay a user's ledger and compare it with the stored balance",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openMigratedStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := ledger.New(st).Reconcile(cmd.Context(), creditsUser)
		if err != nil {
			return err
		}
		if err := printJSON(rec); err != nil {
			return err
		}
		if !rec.OK() {
			zap.L().Warn("ledger does not reconcile",
				zap.String("user_id", creditsUser),
				zap.Strings("problems", rec.Problems),
			)
			if reconcileStrict {
				return eris.Errorf("ledger for %s has %d problems", creditsUser, len(rec.Problems))
			}
		}
		return nil
	},
}

func init() {
	creditsCmd.PersistentFlags().StringVar(&creditsUser, "user", "", "user id (required)")
	_ = creditsCmd.MarkPersistentFlagRequired("user")

	creditsGrantCmd.Flags().Int64Var(&grantAmount, "amount", 0, "credits to add")
	creditsGrantCmd.Flags().StringVar(&grantReason, "reason", "", "memo stored on the ledger entry")
	_ = creditsGrantCmd.MarkFlagRequired("amount")

	creditsHistoryCmd.Flags().StringVar(&historyType, "type", "", "only CONSUME, REFUND or GRANT entries")
	creditsHistoryCmd.Flags().IntVar(&historyLimit, "limit", 50, "max entries to print")

	creditsReconcileCmd.Flags().BoolVar(&reconcileStrict, "strict", false, "exit non-zero when problems are found")

	creditsCmd.AddCommand(creditsGrantCmd, creditsBalanceCmd, creditsHistoryCmd, creditsReconcileCmd)
	rootCmd.AddCommand(creditsCmd)
}

// openMigratedStore opens and migrates the store for commands that do not
// need the full pipeline.
func openMigratedStore(cmd *cobra.Command) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	st, err := initStore(cmd.Context())
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(cmd.Context()); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}
