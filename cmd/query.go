package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"kcidb/internal/client"
	"kcidb/internal/ui"
)

var (
	queryDataset string
	querySummary bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query all data in a dataset",
	Long: `Read every record of a dataset and print it as an I/O schema JSON
document, or as a per-table record count with --summary.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		c, err := newClient(ctx, queryDataset)
		if err != nil {
			return err
		}
		defer c.Close()

		doc, err := c.Query(ctx)
		if err != nil {
			return err
		}

		if querySummary {
			ui.RenderSummary(cmd.OutOrStdout(), queryDataset, client.Summarize(doc))
			return nil
		}
		return writeJSON(cmd, doc)
	},
}

// writeJSON prints v indented, with object keys sorted and HTML left unescaped
func writeJSON(cmd *cobra.Command, v interface{}) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "    ")
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(queryCmd)

	datasetFlag(queryCmd, &queryDataset)
	queryCmd.Flags().BoolVar(&querySummary, "summary", false, "Print record counts instead of the records")
}
