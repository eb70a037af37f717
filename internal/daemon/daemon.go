// Package daemon wires the store, invoker, job scheduler, workspace and
// gateway into one long-running service.
package daemon

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/harun/loom/internal/config"
	"github.com/harun/loom/internal/logger"
	"github.com/harun/loom/internal/observability"
	"github.com/harun/loom/pkg/gateway"
	"github.com/harun/loom/pkg/invoker"
	"github.com/harun/loom/pkg/jobs"
	"github.com/harun/loom/pkg/store"
	"github.com/harun/loom/pkg/workspace"
)

// Daemon represents the Loom daemon service
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	// Core modules
	store        *store.Store
	invoker      *invoker.CLIInvoker
	jobManager   *jobs.Manager
	janitor      *jobs.Janitor
	workspaceMgr *workspace.Manager

	// Services
	gatewayServer *gateway.Server

	lifecycle *LifecycleManager

	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// Status describes the daemon's runtime state.
type Status struct {
	Running   bool
	StartTime time.Time
	Uptime    time.Duration
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	observability.EnsureRegistered()

	d := &Daemon{
		config: cfg,
		logger: log,
	}

	if err := d.initializeCoreModules(); err != nil {
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}
	if err := d.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

// initializeCoreModules initializes all core modules in dependency order
func (d *Daemon) initializeCoreModules() error {
	st, err := store.Open(filepath.Join(d.config.DataDir, "loom.db"), d.logger.GetZerolog())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	d.store = st
	d.logger.Info().Msg("Store initialized")

	inv, err := invoker.NewCLIInvoker(invoker.Config{
		Binary:         d.config.Claude.Binary,
		ExtraArgs:      d.config.Claude.ExtraArgs,
		DefaultTimeout: time.Duration(d.config.Claude.TimeoutSeconds) * time.Second,
		Logger:         d.logger.GetZerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to create invoker: %w", err)
	}
	d.invoker = inv
	d.logger.Info().Str("binary", d.config.Claude.Binary).Msg("Invoker initialized")

	jobManager, err := jobs.NewManager(jobs.Config{
		Invoker:           d.invoker,
		Registry:          d.store,
		Workers:           d.config.Jobs.Workers,
		MaxQueuePerThread: d.config.Jobs.MaxQueuePerThread,
		MaxQueuedTotal:    d.config.Jobs.MaxQueuedTotal,
		InvokeTimeout:     time.Duration(d.config.Claude.TimeoutSeconds) * time.Second,
		Logger:            d.logger.GetZerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to create job manager: %w", err)
	}
	d.jobManager = jobManager
	d.logger.Info().Int("workers", d.config.Jobs.Workers).Msg("Job manager initialized")

	janitor, err := jobs.NewJanitor(jobs.JanitorConfig{
		Manager:   d.jobManager,
		Schedule:  d.config.Jobs.SweepSchedule,
		Retention: time.Duration(d.config.Jobs.RetentionMinutes) * time.Minute,
		Logger:    d.logger.GetZerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to create janitor: %w", err)
	}
	d.janitor = janitor
	d.logger.Info().Str("schedule", d.config.Jobs.SweepSchedule).Msg("Janitor initialized")

	workspaceMgr, err := workspace.NewManager(workspace.Config{
		Root:   d.config.ProjectsDir,
		Store:  d.store,
		Jobs:   d.jobManager,
		Logger: d.logger.GetZerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to create workspace manager: %w", err)
	}
	d.workspaceMgr = workspaceMgr
	d.logger.Info().Str("root", d.config.ProjectsDir).Msg("Workspace manager initialized")

	return nil
}

// initializeServices initializes all services
func (d *Daemon) initializeServices() error {
	gatewayServer, err := gateway.NewServer(gateway.Config{
		Host:         d.config.Server.Host,
		Port:         d.config.Server.Port,
		SharedSecret: d.config.Server.SharedSecret,
		Workspace:    d.workspaceMgr,
		Jobs:         d.jobManager,
		Logger:       d.logger.GetZerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway server: %w", err)
	}
	d.gatewayServer = gatewayServer
	d.logger.Info().Int("port", d.config.Server.Port).Msg("Gateway server initialized")

	return nil
}

// Start starts the daemon service
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	d.logger.Info().Msg("Starting Loom daemon")

	if err := d.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if err := d.workspaceMgr.StartWatcher(); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to start workspace watcher, trees will not auto-refresh")
	}

	if err := d.gatewayServer.Start(); err != nil {
		return fmt.Errorf("failed to start gateway server: %w", err)
	}
	d.logger.Info().Msg("Gateway server started")

	d.janitor.Start()
	d.logger.Info().Msg("Janitor started")

	d.logger.Info().Msg("Daemon started successfully")
	return nil
}

// Stop stops the daemon service gracefully
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	d.logger.Info().Msg("Stopping Loom daemon")

	// Stop ingress first so no new jobs arrive while the manager drains
	if err := d.gatewayServer.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop gateway server")
	}

	d.janitor.Stop()

	if err := d.jobManager.Close(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to close job manager")
	}

	if err := d.workspaceMgr.Close(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to close workspace manager")
	}

	if err := d.store.Close(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to close store")
	}

	if err := d.lifecycle.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	d.logger.Info().Msg("Daemon stopped successfully")
	return nil
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
	}
	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}
	return status
}

// Wait blocks until SIGINT or SIGTERM, then stops the daemon.
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	d.logger.Info().Str("signal", sig.String()).Msg("Received signal")

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetJobManager returns the job manager
func (d *Daemon) GetJobManager() *jobs.Manager {
	return d.jobManager
}

// GetWorkspaceManager returns the workspace manager
func (d *Daemon) GetWorkspaceManager() *workspace.Manager {
	return d.workspaceMgr
}

// GetGatewayServer returns the gateway server
func (d *Daemon) GetGatewayServer() *gateway.Server {
	return d.gatewayServer
}
