package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/loom/internal/config"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write a default configuration file",
	Long: `Write a configuration file with default values. Existing settings in
the file are preserved; missing ones are filled with defaults.`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)

	// Load merges an existing file over the defaults
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := config.NewValidator().Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Configuration saved")
	fmt.Fprintln(cmd.OutOrStdout(), "Start the server with: loom serve")

	return nil
}
