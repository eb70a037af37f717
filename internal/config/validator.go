package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks the whole configuration for consistency
func (v *Validator) Validate(cfg *Config) error {
	if err := v.ValidateServer(cfg.Server); err != nil {
		return err
	}
	if err := v.ValidateClaude(cfg.Claude); err != nil {
		return err
	}
	if err := v.ValidateJobs(cfg.Jobs); err != nil {
		return err
	}
	return nil
}

// ValidateServer validates the gateway server settings
func (v *Validator) ValidateServer(cfg ServerConfig) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Port)
	}
	if cfg.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	return nil
}

// ValidateClaude validates the external CLI settings
func (v *Validator) ValidateClaude(cfg ClaudeConfig) error {
	if strings.TrimSpace(cfg.Binary) == "" {
		return fmt.Errorf("claude binary cannot be empty")
	}
	if cfg.TimeoutSeconds <= 0 {
		return fmt.Errorf("claude timeout must be positive, got %d", cfg.TimeoutSeconds)
	}
	return nil
}

// ValidateJobs validates the job manager settings
func (v *Validator) ValidateJobs(cfg JobsConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("jobs workers must be positive, got %d", cfg.Workers)
	}
	if cfg.MaxQueuePerThread <= 0 {
		return fmt.Errorf("jobs max_queue_per_thread must be positive, got %d", cfg.MaxQueuePerThread)
	}
	if cfg.MaxQueuedTotal < cfg.MaxQueuePerThread {
		return fmt.Errorf("jobs max_queued_total (%d) cannot be smaller than max_queue_per_thread (%d)",
			cfg.MaxQueuedTotal, cfg.MaxQueuePerThread)
	}
	if cfg.RetentionMinutes <= 0 {
		return fmt.Errorf("jobs retention_minutes must be positive, got %d", cfg.RetentionMinutes)
	}
	if cfg.SweepSchedule != "" {
		if _, err := cron.ParseStandard(cfg.SweepSchedule); err != nil {
			return fmt.Errorf("invalid jobs sweep_schedule %q: %w", cfg.SweepSchedule, err)
		}
	}
	return nil
}
