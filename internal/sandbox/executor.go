package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/wardenhq/warden/internal/errdefs"
	"github.com/wardenhq/warden/internal/permission"
	"github.com/wardenhq/warden/internal/proctrack"
	"github.com/wardenhq/warden/internal/scan"
	"github.com/wardenhq/warden/internal/types"
	"github.com/wardenhq/warden/internal/workspace"
)

// DefaultTimeout bounds command runtime when the caller does not supply one.
const DefaultTimeout = 2 * time.Minute

// MaxTimeout caps caller-supplied timeouts.
const MaxTimeout = 10 * time.Minute

// Options configure an Executor beyond its dependencies.
type Options struct {
	// DefaultTimeout bounds command runtime when the request does not set
	// one. Zero falls back to DefaultTimeout; values above MaxTimeout are
	// capped.
	DefaultTimeout time.Duration
	// AllowPrograms extends the built-in program allowlist with bare names.
	AllowPrograms []string
}

// Executor validates and runs commands. The working directory must pass the
// workspace boundary and hold a bash-operation grant before anything spawns.
type Executor struct {
	boundary       *workspace.Boundary
	perms          *permission.Service
	tracker        *proctrack.Tracker
	validator      *Validator
	defaultTimeout time.Duration
}

// NewExecutor wires an Executor to its validation dependencies.
func NewExecutor(boundary *workspace.Boundary, perms *permission.Service, tracker *proctrack.Tracker, opts Options) *Executor {
	timeout := opts.DefaultTimeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}
	return &Executor{
		boundary:       boundary,
		perms:          perms,
		tracker:        tracker,
		validator:      NewValidator(opts.AllowPrograms),
		defaultTimeout: timeout,
	}
}

// Validator exposes the executor's command validator, so a config reload
// can replace the allowlist extension.
func (e *Executor) Validator() *Validator {
	return e.validator
}

// Request is one command invocation.
type Request struct {
	Command string
	Dir     string
	Timeout time.Duration
}

// Result carries the captured output of a finished command. Stdout and
// Stderr have been through credential redaction.
type Result struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// Execute runs the full validate-spawn-capture pipeline for one command.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	const op = "execute_command"

	if err := e.validator.ValidateCommand(req.Command); err != nil {
		return nil, err
	}

	info, err := os.Stat(req.Dir)
	if err != nil {
		return nil, errdefs.Validation(op, "working directory does not exist")
	}
	if !info.IsDir() {
		return nil, errdefs.Validation(op, "working directory is not a directory")
	}
	if err := e.boundary.ValidateWorkspacePath(op, req.Dir); err != nil {
		return nil, err
	}
	if err := e.perms.Require(ctx, req.Dir, types.OpBash); err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}

	cmd := exec.Command(shellPath(), shellFlag(), req.Command)
	cmd.Dir = req.Dir
	cmd.SysProcAttr = detachedProcAttr()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, errdefs.Transient(op, err)
	}
	pid := cmd.Process.Pid
	e.tracker.Track(pid, req.Command)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case waitErr := <-done:
		e.tracker.Untrack(pid)
		res := &Result{
			Stdout:   scan.RedactCredentials(stdout.String()),
			Stderr:   scan.RedactCredentials(stderr.String()),
			Duration: time.Since(start),
		}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		if waitErr != nil {
			return nil, errdefs.Transient(op, waitErr)
		}
		return res, nil

	case <-ctx.Done():
		e.tracker.Kill(pid)
		<-done
		e.tracker.Untrack(pid)
		return nil, errdefs.Transient(op, ctx.Err())

	case <-timer.C:
		// Output captured so far is discarded: a process that had to be
		// killed left it in an untrustworthy state.
		log.Warn("command timed out after %s: %s", timeout, req.Command)
		e.tracker.Kill(pid)
		<-done
		e.tracker.Untrack(pid)
		return nil, errdefs.Timeout(op, "command exceeded the %s timeout", timeout)
	}
}
