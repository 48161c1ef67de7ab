package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgate/internal/export"
	"github.com/sells-group/leadgate/internal/model"
	"github.com/sells-group/leadgate/internal/store"
)

var (
	exportUser   string
	exportOut    string
	exportSince  string
	exportUntil  string
	exportStatus string
)

// exportPageSize is how many leads are read per query.
const exportPageSize = 1000

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a user's leads and ledger to an XLSX workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		w, err := parseWindow(exportSince, exportUntil)
		if err != nil {
			return err
		}

		st, err := openMigratedStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		leads, err := allLeads(ctx, st, store.LeadFilter{
			UserID: exportUser,
			Status: model.LeadStatus(exportStatus),
			Since:  w.Since,
			Until:  w.Until,
		})
		if err != nil {
			return err
		}
		entries, err := st.ListEntries(ctx, exportUser, store.EntryFilter{})
		if err != nil {
			return eris.Wrap(err, "list ledger entries")
		}

		wb := export.NewWorkbook()
		if err := wb.AddLeads(leads); err != nil {
			return err
		}
		if err := wb.AddEntries(entries); err != nil {
			return err
		}
		if err := wb.Save(exportOut); err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("user_id", exportUser),
			zap.Int("leads", len(leads)),
			zap.Int("entries", len(entries)),
			zap.String("path", exportOut),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportUser, "user", "", "user whose data is exported (required)")
	exportCmd.Flags().StringVar(&exportOut, "out", "leads.xlsx", "output workbook path")
	exportCmd.Flags().StringVar(&exportSince, "since", "", "only leads created at or after, RFC3339 or YYYY-MM-DD")
	exportCmd.Flags().StringVar(&exportUntil, "until", "", "only leads created before, RFC3339 or YYYY-MM-DD")
	exportCmd.Flags().StringVar(&exportStatus, "status", "", "only leads with this status")
	_ = exportCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(exportCmd)
}

// allLeads pages through ListLeads until a short page.
func allLeads(ctx context.Context, st store.Reader, filter store.LeadFilter) ([]model.PersistedLead, error) {
	filter.Limit = exportPageSize
	var out []model.PersistedLead
	for {
		page, err := st.ListLeads(ctx, filter)
		if err != nil {
			return nil, eris.Wrap(err, "list leads")
		}
		out = append(out, page...)
		if len(page) < filter.Limit {
			return out, nil
		}
		filter.Offset += len(page)
	}
}
