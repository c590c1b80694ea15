// Package tools wraps the external programs gamesync drives (exiftool and
// ffmpeg): typed command builders that map named options to argument lists,
// and a Runner that executes them.
package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Sentinel errors for external tool execution.
var (
	ErrToolNotInstalled = errors.New("tools: executable not found")
	ErrTimeout          = errors.New("tools: timed out")
	ErrNonZeroExit      = errors.New("tools: non-zero exit status")
)

// CommandError carries the context of a failed tool invocation.
type CommandError struct {
	Tool     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %v (exit %d): %s", e.Tool, e.Err, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s: %v", e.Tool, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Command is a fully built invocation.
type Command struct {
	// Name is the executable name or path.
	Name string
	Args []string
	// Timeout bounds the invocation. Zero means no timeout beyond ctx.
	Timeout time.Duration
}

// String renders the command line for logs.
func (c Command) String() string {
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result is the captured outcome of a command.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Runner executes commands. Tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner runs commands as child processes.
type ExecRunner struct{}

// Run executes cmd and waits for it. A non-zero exit, a timeout or a missing
// executable is returned as a *CommandError.
func (ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	res := &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return res, nil
	}

	if ctx.Err() == context.DeadlineExceeded {
		return res, &CommandError{Tool: cmd.Name, ExitCode: -1, Err: ErrTimeout}
	}
	if errors.Is(err, exec.ErrNotFound) {
		return res, &CommandError{Tool: cmd.Name, ExitCode: -1, Err: ErrToolNotInstalled}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, &CommandError{
			Tool:     cmd.Name,
			ExitCode: res.ExitCode,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      ErrNonZeroExit,
		}
	}
	return res, &CommandError{Tool: cmd.Name, ExitCode: -1, Err: err}
}
