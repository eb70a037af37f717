package config

// Config represents the main Loom configuration
type Config struct {
	// Server holds the gateway server settings
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Claude holds the external CLI invocation settings
	Claude ClaudeConfig `json:"claude" mapstructure:"claude"`

	// Jobs holds the job manager settings
	Jobs JobsConfig `json:"jobs" mapstructure:"jobs"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Projects root directory
	ProjectsDir string `json:"projects_dir" mapstructure:"projects_dir"`
}

// ServerConfig holds gateway server configuration
type ServerConfig struct {
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
}

// ClaudeConfig holds configuration for invoking the external Claude CLI
type ClaudeConfig struct {
	// Binary is the executable name or absolute path. When it is a bare
	// name it is resolved against PATH at invocation time.
	Binary string `json:"binary" mapstructure:"binary"`

	// TimeoutSeconds is the hard per-invocation timeout
	TimeoutSeconds int `json:"timeout_seconds" mapstructure:"timeout_seconds"`

	// ExtraArgs are appended to every invocation
	ExtraArgs []string `json:"extra_args" mapstructure:"extra_args"`
}

// JobsConfig holds job manager configuration
type JobsConfig struct {
	// Workers bounds the number of concurrently running external processes
	Workers int `json:"workers" mapstructure:"workers"`

	// MaxQueuePerThread rejects submissions once a thread's queue is this deep
	MaxQueuePerThread int `json:"max_queue_per_thread" mapstructure:"max_queue_per_thread"`

	// MaxQueuedTotal rejects submissions once this many jobs are queued globally
	MaxQueuedTotal int `json:"max_queued_total" mapstructure:"max_queued_total"`

	// RetentionMinutes is how long terminal jobs stay pollable
	RetentionMinutes int `json:"retention_minutes" mapstructure:"retention_minutes"`

	// SweepSchedule is the cron spec for the retention sweep
	SweepSchedule string `json:"sweep_schedule" mapstructure:"sweep_schedule"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8844,
		},
		Claude: ClaudeConfig{
			Binary:         "claude",
			TimeoutSeconds: 300,
		},
		Jobs: JobsConfig{
			Workers:           4,
			MaxQueuePerThread: 16,
			MaxQueuedTotal:    256,
			RetentionMinutes:  60,
			SweepSchedule:     "@every 5m",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
	}
}
