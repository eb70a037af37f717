package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/loom/internal/config"
	"github.com/harun/loom/internal/daemon"
	"github.com/harun/loom/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Loom server in the foreground",
	Long: `Run the Loom server in the foreground. The server accepts messages
over HTTP, invokes the Claude CLI per message, and answers status polls
until it receives SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Close() }()

	d, err := daemon.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	d.Wait()
	return nil
}

// loadConfig loads the config file and applies CLI overrides.
func loadConfig() (*config.Config, error) {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
