// Package process runs external programs either buffered to completion or
// streamed line by line.
package process

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"

	"github.com/zjrosen/modeldeck/internal/log"
)

// CommandFactoryFunc creates an exec.Cmd. Tests substitute it to redirect
// a program name to a fake executable.
type CommandFactoryFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// Option configures a Runner.
type Option func(*Runner)

// WithCommandFactory sets a custom command factory for testing.
func WithCommandFactory(fn CommandFactoryFunc) Option {
	return func(r *Runner) {
		r.commandFactory = fn
	}
}

// WithWorkDir sets the working directory for spawned processes.
func WithWorkDir(dir string) Option {
	return func(r *Runner) {
		r.workDir = dir
	}
}

// WithEnv appends "KEY=VALUE" entries to os.Environ() for spawned processes.
func WithEnv(env []string) Option {
	return func(r *Runner) {
		r.env = env
	}
}

// Runner spawns processes. It holds no per-invocation state and is safe for
// concurrent use.
type Runner struct {
	commandFactory CommandFactoryFunc
	workDir        string
	env            []string
}

// NewRunner creates a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) command(ctx context.Context, inv Invocation) *exec.Cmd {
	var cmd *exec.Cmd
	if r.commandFactory != nil {
		cmd = r.commandFactory(ctx, inv.Program, inv.Args...)
	} else {
		// #nosec G204 -- running arbitrary local programs is the purpose of this package
		cmd = exec.CommandContext(ctx, inv.Program, inv.Args...)
	}
	cmd.Dir = r.workDir
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}
	return cmd
}

// Run executes inv and blocks until it exits, capturing stdout and stderr.
// It never fails for a non-zero exit; SpawnErr is set only when the program
// could not be started, in which case no output is captured.
func (r *Runner) Run(ctx context.Context, inv Invocation) CapturedOutput {
	cmd := r.command(ctx, inv)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug(log.CatProc, "Running process", "program", inv.Program, "args", len(inv.Args))

	if err := cmd.Start(); err != nil {
		log.ErrorErr(log.CatProc, "Failed to start process", err, "program", inv.Program)
		return CapturedOutput{SpawnErr: &SpawnError{Program: inv.Program, Err: err}}
	}

	waitErr := cmd.Wait()

	out := CapturedOutput{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCodeOf(cmd),
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		log.ErrorErr(log.CatProc, "Wait failed", waitErr, "program", inv.Program)
	}

	log.Debug(log.CatProc, "Process exited",
		"program", inv.Program,
		"exitCode", out.Code(),
		"stdoutBytes", stdout.Len(),
		"stderrBytes", stderr.Len())

	return out
}

// exitCodeOf returns nil when the process has no exit code (signal or never waited).
func exitCodeOf(cmd *exec.Cmd) *int {
	if cmd.ProcessState == nil {
		return nil
	}
	code := cmd.ProcessState.ExitCode()
	if code < 0 {
		return nil
	}
	return &code
}
