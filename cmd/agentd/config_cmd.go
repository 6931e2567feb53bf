package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hemiaoio/android-auto-test/internal/config"
)

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect agent configuration",
	}
	configCmd.AddCommand(newConfigValidateCmd())
	return configCmd
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and print the resolved configuration",
		RunE:  runConfigValidate,
	}
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(resolveConfigPath(cmd))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	masked := cfg
	if masked.AuthToken != "" {
		masked.AuthToken = "****"
	}
	data, err := json.MarshalIndent(masked, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(data))
	return err
}
