package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgate/pkg/notion"
)

var (
	importCSVPath string
	importUser    string
)

// notionQueue returns a client for the configured lead queue database and
// its ID.
func notionQueue() (notion.Client, string, error) {
	switch {
	case cfg.Notion.Token == "":
		return nil, "", eris.New("notion token is required (LEADGATE_NOTION_TOKEN)")
	case cfg.Notion.LeadDB == "":
		return nil, "", eris.New("notion lead DB ID is required (LEADGATE_NOTION_LEAD_DB)")
	}
	return notion.NewClient(cfg.Notion.Token), cfg.Notion.LeadDB, nil
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Queue leads from a CSV file in the Notion lead database",
	Long: "Creates one Queued page per CSV row with a usable phone. Rows repeating a phone\n" +
		"already seen in the file are skipped. Run `batch --source notion` to validate them.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, dbID, err := notionQueue()
		if err != nil {
			return err
		}

		queued, err := notion.ImportLeadsCSV(cmd.Context(), client, dbID, importCSVPath, importUser)
		if err != nil {
			return eris.Wrapf(err, "import csv %s", importCSVPath)
		}

		zap.L().Info("leads queued in notion",
			zap.Int("queued", queued),
			zap.String("csv", importCSVPath),
			zap.String("user_id", importUser),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importCSVPath, "csv", "", "path to CSV file (required)")
	importCmd.Flags().StringVar(&importUser, "user", "", "user the queued leads are charged to")
	_ = importCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(importCmd)
}
