package cmd

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"kcidb/internal/common"
	"kcidb/internal/kernelci"
	"kcidb/internal/ui"
	"kcidb/pkg/models"
)

var (
	exportMongoURI     string
	exportMongoDB      string
	exportDays         int
	exportMaxTests     int
	exportMaxDepth     int
	exportExcludedLabs []string
	exportOutput       string

	// Replaced in tests
	openKernelCIStore = func(ctx context.Context, uri, database string) (kernelci.Store, func(context.Context) error, error) {
		store, err := kernelci.Connect(ctx, uri, database)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
)

var kernelciExportCmd = &cobra.Command{
	Use:   "kernelci-export",
	Short: "Export KernelCI test results from MongoDB",
	Long: `Read recent test groups from a KernelCI MongoDB database and write them
as an I/O schema JSON document, ready for 'kcidb submit'.

Nested test groups are walked up to --max-depth levels deep. The export
stops after --max-tests test cases.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		store, closeStore, err := openKernelCIStore(ctx, exportMongoURI, exportMongoDB)
		if err != nil {
			return err
		}
		defer func() { _ = closeStore(context.Background()) }()

		opts := kernelci.Options{
			Since:        time.Now().AddDate(0, 0, -exportDays),
			MaxTests:     exportMaxTests,
			MaxDepth:     exportMaxDepth,
			ExcludedLabs: exportExcludedLabs,
		}
		doc, err := kernelci.NewExporter(store, opts, logger.Logger).Export(ctx)
		if err != nil {
			return err
		}

		if exportOutput == "-" {
			return kernelci.WriteDocument(cmd.OutOrStdout(), doc)
		}
		if err := writeExport(exportOutput, doc); err != nil {
			return err
		}
		ui.ShowSuccess(cmd.OutOrStdout(), fmt.Sprintf("Exported %d tests to %s",
			len(models.Records(doc, models.Tests)), exportOutput))
		return nil
	},
}

func writeExport(path string, doc models.Document) error {
	var buf bytes.Buffer
	if err := kernelci.WriteDocument(&buf, doc); err != nil {
		return err
	}
	return common.WriteFile(filepath.Clean(path), buf.Bytes(), common.OutputFileMode)
}

func init() {
	rootCmd.AddCommand(kernelciExportCmd)

	f := kernelciExportCmd.Flags()
	f.StringVar(&exportMongoURI, "mongo-uri", "mongodb://localhost:27017", "MongoDB connection URI")
	f.StringVar(&exportMongoDB, "mongo-db", "kernel-ci", "MongoDB database name")
	f.IntVar(&exportDays, "days", kernelci.DefaultDays, "Export test groups created in the last N days")
	f.IntVar(&exportMaxTests, "max-tests", kernelci.DefaultMaxTests, "Stop after this many test cases")
	f.IntVar(&exportMaxDepth, "max-depth", kernelci.DefaultMaxDepth, "Maximum test group nesting depth")
	f.StringSliceVar(&exportExcludedLabs, "exclude-lab", kernelci.DefaultExcludedLabs, "Labs whose test groups are skipped")
	f.StringVarP(&exportOutput, "output", "o", "kernelci.json", "Output file, or - for standard output")
}
