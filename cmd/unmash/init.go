package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/opencitations/doi-corrector/internal/config"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new unmash workspace",
	Long: `Initialize a new unmash workspace in the current directory.

Creates:
  .unmash/
  ├── config.yml   # Default config
  ├── unmash.db    # Identifier store and checkpoints
  └── runs/        # One directory per run`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := os.Getwd()
	if err != nil {
		exitWithError(ExitError, "getting current directory: %v", err)
	}

	if config.IsWorkspace(root) {
		exitWithError(ExitError, "directory already contains an unmash workspace")
	}

	if err := os.MkdirAll(config.RunsPath(root), 0755); err != nil {
		exitWithError(ExitError, "creating %s: %v", config.WorkspaceDir, err)
	}

	if err := config.Default().Save(root); err != nil {
		exitWithError(ExitError, "creating %s: %v", config.ConfigFile, err)
	}

	db := mustOpenDatabase(root)
	db.Close()

	if humanOutput {
		outputHuman("Initialized unmash workspace in %s\n", root)
	} else {
		outputJSON(StatusResponse{Status: "initialized", Path: root})
	}
	return nil
}
