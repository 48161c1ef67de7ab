package main

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgate/internal/blacklist"
	"github.com/sells-group/leadgate/internal/export"
	"github.com/sells-group/leadgate/internal/normalize"
)

var (
	blacklistFile  string
	blacklistSheet string
	blacklistUser  string
	blacklistPhone string
)

var blacklistCmd = &cobra.Command{
	Use:   "blacklist",
	Short: "Manage the phone blacklist",
}

var blacklistImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Load banned phones from a CSV or XLSX file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		rows, err := readRows(blacklistFile, blacklistSheet)
		if err != nil {
			return err
		}
		entries, skipped, err := export.BlacklistRows(rows, blacklistUser)
		if err != nil {
			return err
		}
		if len(skipped) > 0 {
			zap.L().Warn("skipped rows with unparseable phones", zap.Ints("rows", skipped))
		}
		if len(entries) == 0 {
			zap.L().Info("no blacklist entries found", zap.String("file", blacklistFile))
			return nil
		}

		st, err := openMigratedStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := blacklist.New(st, nil, blacklist.Config{}).Import(ctx, entries)
		if err != nil {
			return err
		}
		zap.L().Info("blacklist import complete",
			zap.String("file", blacklistFile),
			zap.Int("rows", len(entries)),
			zap.Int64("inserted", n),
			zap.Int("skipped", len(skipped)),
		)
		return nil
	},
}

var blacklistCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Look up one phone in the blacklist",
	RunE: func(cmd *cobra.Command, _ []string) error {
		phone, err := normalize.ParsePhone(blacklistPhone)
		if err != nil {
			return err
		}

		st, err := openMigratedStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		e, err := blacklist.New(st, nil, blacklist.Config{}).Lookup(cmd.Context(), phone)
		if err != nil {
			return err
		}
		if e == nil {
			return printJSON(map[string]any{"phone": phone, "blacklisted": false})
		}
		return printJSON(e)
	},
}

func init() {
	blacklistImportCmd.Flags().StringVar(&blacklistFile, "file", "", "CSV or XLSX file with a phone column (required)")
	blacklistImportCmd.Flags().StringVar(&blacklistSheet, "sheet", "", "XLSX sheet name (default first sheet)")
	blacklistImportCmd.Flags().StringVar(&blacklistUser, "user", "", "user recorded as the reporter")
	_ = blacklistImportCmd.MarkFlagRequired("file")

	blacklistCheckCmd.Flags().StringVar(&blacklistPhone, "phone", "", "phone to look up (required)")
	_ = blacklistCheckCmd.MarkFlagRequired("phone")

	blacklistCmd.AddCommand(blacklistImportCmd, blacklistCheckCmd)
	rootCmd.AddCommand(blacklistCmd)
}

// readRows reads every row of a CSV or XLSX file, picking the format from
// the extension.
func readRows(path, sheet string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return export.ReadXLSX(path, export.XLSXOptions{SheetName: sheet})
	case ".csv", ".txt":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "open %s", path)
		}
		defer f.Close() //nolint:errcheck

		r := csv.NewReader(f)
		r.FieldsPerRecord = -1
		r.TrimLeadingSpace = true
		rows, err := r.ReadAll()
		if err != nil {
			return nil, eris.Wrapf(err, "read csv %s", path)
		}
		if len(rows) > 0 && len(rows[0]) > 0 {
			rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
		}
		return rows, nil
	default:
		return nil, eris.Errorf("unsupported file type %q (want .csv or .xlsx)", filepath.Ext(path))
	}
}
