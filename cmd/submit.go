package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"kcidb/internal/client"
	"kcidb/internal/ui"
	"kcidb/pkg/errors"
	"kcidb/pkg/models"
)

var (
	submitDataset         string
	submitFile            string
	submitCheckReferences bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit records to a dataset",
	Long: `Read an I/O schema JSON document from standard input (or --file),
validate it and load every record kind it holds into the dataset.

Kinds are loaded one at a time, revisions first. A failed load stops the
submission; kinds loaded before it stay loaded.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := readDocument(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		c, err := newClient(ctx, submitDataset, client.WithReferenceCheck(submitCheckReferences))
		if err != nil {
			return err
		}
		defer c.Close()

		results, err := c.Submit(ctx, doc)
		for _, result := range results {
			ui.ShowInfo(cmd.OutOrStdout(), fmt.Sprintf("Loaded %d %s", result.RowsLoaded, result.Table))
		}
		if err != nil {
			return err
		}

		if len(results) == 0 {
			ui.ShowWarning(cmd.OutOrStdout(), "No records to submit")
			return nil
		}
		ui.ShowSuccess(cmd.OutOrStdout(), fmt.Sprintf("Submitted to dataset %s", submitDataset))
		return nil
	},
}

// readDocument decodes the submitted document, keeping numbers exact
func readDocument(cmd *cobra.Command) (models.Document, error) {
	var in io.Reader = cmd.InOrStdin()
	source := "standard input"
	if submitFile != "" {
		f, err := os.Open(filepath.Clean(submitFile))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "Failed to open input file").
				WithContext("file", submitFile)
		}
		defer f.Close()
		in = f
		source = submitFile
	}

	decoder := json.NewDecoder(in)
	decoder.UseNumber()
	var doc models.Document
	if err := decoder.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "Failed to parse JSON").
			WithContext("source", source)
	}
	return doc, nil
}

func init() {
	rootCmd.AddCommand(submitCmd)

	datasetFlag(submitCmd, &submitDataset)
	submitCmd.Flags().StringVarP(&submitFile, "file", "f", "", "Read the document from this file instead of standard input")
	submitCmd.Flags().BoolVar(&submitCheckReferences, "check-references", false,
		"Reject records referring to revisions, builds or environments missing from the document")
}
