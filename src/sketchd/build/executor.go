package build

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// waitDelay bounds how long Run waits for output pipes to close once the
// process has been killed
const waitDelay = 2 * time.Second

// RunOpts describes one external command invocation
type RunOpts struct {
	Command []string
	// WorkDir is the working directory of the child process only
	WorkDir string
	Env     map[string]string
	Stdout  io.Writer
	Stderr  io.Writer
}

// Executor runs external commands
type Executor interface {
	Run(ctx context.Context, opts RunOpts) error
}

// ExecError is returned by an Executor when a command fails. Stderr holds
// the captured diagnostics.
type ExecError struct {
	Command string
	Stderr  string
	Err     error
}

func (e *ExecError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s failed: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s failed: %v\nstderr: %s", e.Command, e.Err, e.Stderr)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// HostExecutor runs commands directly on the host
type HostExecutor struct {
	logger io.Writer
}

// NewHostExecutor creates a host executor. Command output is mirrored to
// logger when it is not nil.
func NewHostExecutor(logger io.Writer) *HostExecutor {
	return &HostExecutor{logger: logger}
}

// Run executes the command and waits for it. Cancelling ctx kills the process
// and every child it started.
func (e *HostExecutor) Run(ctx context.Context, opts RunOpts) error {
	if len(opts.Command) == 0 {
		return fmt.Errorf("no command specified")
	}

	cmd := exec.CommandContext(ctx, opts.Command[0], opts.Command[1:]...)
	if opts.WorkDir != "" {
		cmd.Dir = opts.WorkDir
	}
	setProcessGroup(cmd)
	cmd.WaitDelay = waitDelay

	cmd.Env = os.Environ()
	for k, v := range opts.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	var stderr bytes.Buffer
	if opts.Stdout != nil {
		cmd.Stdout = opts.Stdout
	} else if e.logger != nil {
		cmd.Stdout = e.logger
	}

	if opts.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, opts.Stderr)
	} else if e.logger != nil {
		cmd.Stderr = io.MultiWriter(&stderr, e.logger)
	} else {
		cmd.Stderr = &stderr
	}

	if err := cmd.Run(); err != nil {
		return &ExecError{
			Command: strings.Join(opts.Command, " "),
			Stderr:  strings.TrimSpace(stderr.String()),
			Err:     err,
		}
	}

	return nil
}
