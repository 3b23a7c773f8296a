package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Default runner settings.
const (
	defaultTimeout         = 10 * time.Second
	defaultGracefulTimeout = 2 * time.Second

	// defaultMaxOutput caps each captured stream.
	defaultMaxOutput = 64 * 1024

	// stderrSummaryLen is how much stderr an ExitError keeps.
	stderrSummaryLen = 512
)

// Errors returned by Runner.
var (
	// ErrNotFound is returned when the binary cannot be found or executed.
	ErrNotFound = errors.New("process: binary not found")

	// ErrTimeout is returned when the command outlives its timeout.
	ErrTimeout = errors.New("process: timed out")
)

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Name   string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with status %d", e.Name, e.Code)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Name, e.Code, e.Stderr)
}

// Config holds configuration for a Runner.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the executable, resolved through PATH when not absolute.
	Binary string

	// Env are additional environment variables (key=value format).
	// If nil, inherits from parent process.
	Env []string

	// WorkDir is the working directory for the process.
	// If empty, inherits from parent process.
	WorkDir string

	// Timeout bounds each Run. Default: 10s.
	Timeout time.Duration

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	// Default: 2s.
	GracefulTimeout time.Duration

	// MaxOutput caps each captured stream in bytes. Default: 64 KiB.
	MaxOutput int
}

// Logger defines the logging interface for the runner.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Result is the outcome of a command that exited zero.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// Runner runs one-shot commands. It is safe for concurrent use.
type Runner struct {
	config Config
	logger Logger

	mu           sync.RWMutex
	runsTotal    int
	failureTotal int
	lastError    error
	lastDuration time.Duration
}

// NewRunner creates a runner with the given configuration.
func NewRunner(cfg Config) *Runner {
	// Apply defaults for zero values
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	if cfg.MaxOutput == 0 {
		cfg.MaxOutput = defaultMaxOutput
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Binary
	}

	return &Runner{
		config: cfg,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the runner.
func (r *Runner) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Name returns the configured name.
func (r *Runner) Name() string {
	return r.config.Name
}

// Run executes the binary with args and waits for it to exit.
func (r *Runner) Run(ctx context.Context, args ...string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.config.Binary, args...) //nolint:gosec // binary comes from validated config
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return terminate(cmd) }
	cmd.WaitDelay = r.config.GracefulTimeout

	if r.config.Env != nil {
		cmd.Env = append(os.Environ(), r.config.Env...)
	}
	if r.config.WorkDir != "" {
		cmd.Dir = r.config.WorkDir
	}

	stdout := &cappedBuffer{limit: r.config.MaxOutput}
	stderr := &cappedBuffer{limit: r.config.MaxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	r.logger.Debug("running command",
		"name", r.config.Name,
		"args", args,
	)

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), Duration: elapsed}
	err = r.classify(ctx, err, stderr.String())
	r.record(elapsed, err)

	if err != nil {
		r.logger.Debug("command failed",
			"name", r.config.Name,
			"args", args,
			"duration", elapsed,
			"error", err,
		)
		return res, err
	}
	return res, nil
}

func (r *Runner) classify(ctx context.Context, err error, stderr string) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s after %s", ErrTimeout, r.config.Name, r.config.Timeout)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", r.config.Name, ctx.Err())
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w: %s: %w", ErrNotFound, r.config.Binary, err)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		summary := strings.TrimSpace(stderr)
		if len(summary) > stderrSummaryLen {
			summary = summary[:stderrSummaryLen]
		}
		return &ExitError{Name: r.config.Name, Code: exitErr.ExitCode(), Stderr: summary}
	}
	return fmt.Errorf("running %s: %w", r.config.Name, err)
}

func (r *Runner) record(d time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runsTotal++
	r.lastDuration = d
	if err != nil {
		r.failureTotal++
		r.lastError = err
	}
}

// Stats returns statistics about the runner.
type Stats struct {
	Name         string        `json:"name"`
	RunsTotal    int           `json:"runs_total"`
	FailureTotal int           `json:"failures_total"`
	LastDuration time.Duration `json:"last_duration"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the runner.
func (r *Runner) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		Name:         r.config.Name,
		RunsTotal:    r.runsTotal,
		FailureTotal: r.failureTotal,
		LastDuration: r.lastDuration,
	}
	if r.lastError != nil {
		stats.LastError = r.lastError.Error()
	}
	return stats
}

// cappedBuffer keeps the first limit bytes written and discards the rest
// while still reporting full writes, so the child never blocks on a pipe.
type cappedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) Bytes() []byte  { return b.buf.Bytes() }
func (b *cappedBuffer) String() string { return b.buf.String() }
