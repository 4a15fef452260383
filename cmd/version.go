package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"kcidb/internal/ioschema"
)

var (
	// Version is set at build time
	Version = "dev"
	// BuildTime is set at build time
	BuildTime = "unknown"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display kcidb version information",
	Long:  `Display the current version of kcidb along with build information and the I/O schema version it speaks.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "kcidb version %s\n", Version)
		fmt.Fprintf(out, "Built at: %s\n", BuildTime)
		fmt.Fprintf(out, "I/O schema version: %s\n", ioschema.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
