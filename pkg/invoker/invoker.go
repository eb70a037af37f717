package invoker

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/harun/loom/internal/observability"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// Request describes a single invocation of the external tool.
type Request struct {
	// WorkingDir is the project directory the tool runs in
	WorkingDir string

	// SessionID resumes a prior conversation when non-empty
	SessionID string

	// Message is the prompt passed to the tool
	Message string

	// Timeout overrides the configured default when positive
	Timeout time.Duration
}

// Result holds the parsed output of a successful invocation.
type Result struct {
	// SessionID is the (possibly renewed) session identifier issued by the tool
	SessionID string

	// Response is the tool's reply text
	Response string

	// Duration is the wall time of the invocation
	Duration time.Duration

	// Raw is the unparsed stdout, kept for diagnostics
	Raw string
}

// Invoker runs one external tool invocation synchronously.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (Result, error)
}

// Config holds CLI invoker configuration
type Config struct {
	// Binary is the tool executable; bare names are resolved against PATH
	Binary string

	// ExtraArgs are appended to every invocation
	ExtraArgs []string

	// DefaultTimeout applies when a request carries no timeout
	DefaultTimeout time.Duration

	Logger zerolog.Logger
}

// CLIInvoker invokes the Claude CLI once per message, in fresh or resume mode.
type CLIInvoker struct {
	binary         string
	extraArgs      []string
	defaultTimeout time.Duration
	logger         zerolog.Logger
}

// NewCLIInvoker creates a new CLI invoker
func NewCLIInvoker(cfg Config) (*CLIInvoker, error) {
	observability.EnsureRegistered()

	if strings.TrimSpace(cfg.Binary) == "" {
		return nil, fmt.Errorf("binary is required")
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 5 * time.Minute
	}

	return &CLIInvoker{
		binary:         cfg.Binary,
		extraArgs:      cfg.ExtraArgs,
		defaultTimeout: cfg.DefaultTimeout,
		logger:         cfg.Logger.With().Str("component", "invoker").Logger(),
	}, nil
}

// Invoke runs the external tool and blocks until it finishes or times out.
// The tool owns all side effects inside the working directory; the invoker
// only captures stdout/stderr.
func (c *CLIInvoker) Invoke(ctx context.Context, req Request) (Result, error) {
	if req.WorkingDir == "" {
		return Result{}, fmt.Errorf("%w: working directory is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Message) == "" {
		return Result{}, fmt.Errorf("%w: message is required", ErrInvalidRequest)
	}

	binary, err := c.resolveBinary()
	if err != nil {
		return Result{}, err
	}

	mode := "fresh"
	if req.SessionID != "" {
		mode = "resume"
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, binary, c.buildArgs(req)...)
	cmd.Dir = req.WorkingDir
	cmd.Env = os.Environ()
	// Children spawned by the tool can keep the output pipes open after the
	// tool itself is killed on timeout; stop waiting on them.
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.Debug().
		Str("mode", mode).
		Str("workingDir", req.WorkingDir).
		Dur("timeout", timeout).
		Msg("Invoking external tool")

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	// Check for timeout first: CommandContext kills the process on deadline
	// and surfaces a generic "signal: killed" error otherwise.
	if execCtx.Err() == context.DeadlineExceeded {
		observability.RecordInvocation(mode, duration, false)
		c.logger.Warn().
			Str("mode", mode).
			Dur("duration", duration).
			Msg("External tool timed out")
		return Result{}, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}

	if runErr != nil {
		observability.RecordInvocation(mode, duration, false)
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			c.logger.Error().
				Int("exitCode", exitErr.ExitCode()).
				Str("stderr", truncate(stderr.String(), 512)).
				Msg("External tool failed")
			return Result{}, fmt.Errorf("%w: exit code %d: %s",
				ErrNonZeroExit, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return Result{}, fmt.Errorf("%w: %v", ErrLaunchFailed, runErr)
	}

	result, err := parseOutput(stdout.String())
	if err != nil {
		observability.RecordInvocation(mode, duration, false)
		return Result{}, err
	}
	result.Duration = duration

	observability.RecordInvocation(mode, duration, true)
	c.logger.Debug().
		Str("mode", mode).
		Str("sessionId", result.SessionID).
		Dur("duration", duration).
		Msg("External tool completed")

	return result, nil
}

// resolveBinary resolves the configured binary against PATH when it is a
// bare name. Resolution failure is a launch error, not a crash.
func (c *CLIInvoker) resolveBinary() (string, error) {
	if strings.ContainsRune(c.binary, os.PathSeparator) {
		if _, err := os.Stat(c.binary); err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrLaunchFailed, c.binary, err)
		}
		return c.binary, nil
	}

	path, err := exec.LookPath(c.binary)
	if err != nil {
		return "", fmt.Errorf("%w: %s not found in PATH", ErrLaunchFailed, c.binary)
	}
	return path, nil
}

// buildArgs assembles the CLI arguments for one invocation. Resume mode
// supplies the prior session id so the tool reloads its context.
func (c *CLIInvoker) buildArgs(req Request) []string {
	args := []string{"--dangerously-skip-permissions"}
	if req.SessionID != "" {
		args = append(args, "--resume", req.SessionID)
	}
	args = append(args, "-p", req.Message, "--output-format", "json")
	args = append(args, c.extraArgs...)
	return args
}

// parseOutput extracts the session id and response text from the tool's
// JSON stdout. The tool reports logical failures inline via is_error.
func parseOutput(stdout string) (Result, error) {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" || !gjson.Valid(trimmed) {
		return Result{}, fmt.Errorf("%w: %s", ErrMalformedOutput, truncate(trimmed, 256))
	}

	response := gjson.Get(trimmed, "result")
	if !response.Exists() {
		response = gjson.Get(trimmed, "content")
	}
	if !response.Exists() {
		return Result{}, fmt.Errorf("%w: missing result field", ErrMalformedOutput)
	}

	if gjson.Get(trimmed, "is_error").Bool() {
		return Result{}, fmt.Errorf("%w: %s", ErrToolReported, truncate(response.String(), 512))
	}

	return Result{
		SessionID: gjson.Get(trimmed, "session_id").String(),
		Response:  response.String(),
		Raw:       trimmed,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
