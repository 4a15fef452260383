package cmd

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"kcidb/internal/ui"
)

var (
	initDataset    string
	cleanupDataset string
	cleanupYes     bool

	// Replaced in tests
	interactive = func() bool { return isatty.IsTerminal(os.Stdin.Fd()) }
	confirm     = ui.Confirm
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a dataset",
	Long:  `Create the revisions, builds, environments and tests tables of a dataset. Fails if any of them already exists.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		c, err := newClient(ctx, initDataset)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Init(ctx); err != nil {
			return err
		}
		ui.ShowSuccess(cmd.OutOrStdout(), fmt.Sprintf("Dataset %s initialized", initDataset))
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Drop the tables of a dataset",
	Long: `Drop the revisions, builds, environments and tests tables of a dataset,
deleting every record in them. Asks for confirmation on a terminal unless
--yes is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cleanupYes && interactive() {
			ok, err := confirm(fmt.Sprintf("Delete all data in dataset %s?", cleanupDataset), false)
			if err != nil {
				return err
			}
			if !ok {
				ui.ShowInfo(cmd.OutOrStdout(), "Cleanup cancelled")
				return nil
			}
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		c, err := newClient(ctx, cleanupDataset)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Cleanup(ctx); err != nil {
			return err
		}
		ui.ShowSuccess(cmd.OutOrStdout(), fmt.Sprintf("Dataset %s cleaned up", cleanupDataset))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(cleanupCmd)

	datasetFlag(initCmd, &initDataset)
	datasetFlag(cleanupCmd, &cleanupDataset)
	cleanupCmd.Flags().BoolVarP(&cleanupYes, "yes", "y", false, "Do not ask for confirmation")
}
