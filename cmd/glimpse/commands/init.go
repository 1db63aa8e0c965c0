package commands

import (
	"fmt"

	"github.com/dyluth/glimpse/internal/printer"
	"github.com/dyluth/glimpse/internal/scaffold"
	"github.com/spf13/cobra"
)

var (
	forceInit bool
	initDir   string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default glimpse.yml",
	Long: `Write a default session configuration.

Creates:
  • glimpse.yml - session, display, timing, target, reward and output settings

Use --force to overwrite an existing glimpse.yml.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	// Note: Cannot use -f shorthand because it conflicts with global --config flag
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing glimpse.yml")
	initCmd.Flags().StringVar(&initDir, "dir", ".", "Directory to write glimpse.yml into")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if !forceInit {
		if err := scaffold.CheckExisting(initDir); err != nil {
			return printer.Error(
				"session config already exists",
				err.Error(),
				[]string{"Reinitialize:\n  glimpse init --force"},
			)
		}
	}

	path, err := scaffold.Initialize(initDir, forceInit)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	scaffold.PrintSuccess(path)
	return nil
}
