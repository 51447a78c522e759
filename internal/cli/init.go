package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/iambrandonn/vtask/internal/config"
	"github.com/iambrandonn/vtask/internal/model"
	"github.com/iambrandonn/vtask/internal/workspace"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default vtask.yaml and create the data directories",
		RunE:  runInit,
	}
	cmd.Flags().Bool("force", false, "Overwrite an existing config file")
	return cmd
}

func runInit(cmd *cobra.Command, args []string) error {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, config.FileName)
	}

	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file %s already exists\n\nHint: Pass --force to overwrite it", path)
	}

	cfg := config.GenerateDefault()
	if err := cfg.SaveToFile(path); err != nil {
		return err
	}

	cfg.ResolvePaths(filepath.Dir(path))
	if err := workspace.Initialize(cfg); err != nil {
		return fmt.Errorf("failed to initialize data directories: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Wrote %s\n", path)
	fmt.Fprintf(out, "Task store: %s\n", cfg.Store.Path)
	fmt.Fprintf(out, "Set %s or edit model.api_key before running replay or watch.\n", model.GeminiAPIKeyEnv)
	return nil
}
