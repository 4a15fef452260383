package cmd

import (
	"github.com/spf13/cobra"

	"kcidb/internal/ioschema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the I/O JSON schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := ioschema.Schema()
		if err != nil {
			return err
		}
		return writeJSON(cmd, schema)
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
