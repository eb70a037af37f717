package jobs

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Janitor periodically removes terminal jobs that have outlived the
// retention window, so the in-memory job table does not grow without
// bound under long uptimes.
type Janitor struct {
	manager   *Manager
	cron      *cron.Cron
	retention time.Duration
	logger    zerolog.Logger
}

// JanitorConfig holds janitor configuration
type JanitorConfig struct {
	Manager *Manager

	// Schedule is a cron spec, e.g. "@every 5m"
	Schedule string

	// Retention is how long a terminal job stays pollable
	Retention time.Duration

	Logger zerolog.Logger
}

// NewJanitor creates a new janitor
func NewJanitor(cfg JanitorConfig) (*Janitor, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("manager is required")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 5m"
	}
	if cfg.Retention <= 0 {
		cfg.Retention = time.Hour
	}

	j := &Janitor{
		manager:   cfg.Manager,
		cron:      cron.New(),
		retention: cfg.Retention,
		logger:    cfg.Logger.With().Str("component", "janitor").Logger(),
	}

	if _, err := j.cron.AddFunc(cfg.Schedule, j.sweep); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", cfg.Schedule, err)
	}

	j.logger.Info().
		Str("schedule", cfg.Schedule).
		Dur("retention", cfg.Retention).
		Msg("Janitor initialized")

	return j, nil
}

// Start begins scheduled sweeps.
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts scheduled sweeps and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

// sweep runs one retention pass.
func (j *Janitor) sweep() {
	if n := j.manager.SweepTerminal(j.retention); n > 0 {
		j.logger.Info().Int("swept", n).Msg("Swept terminal jobs")
	}
}
