// Package builders runs the external tools the pipeline delegates to
// (style compiler, component validator).
package builders

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cspack/cspack/pkg/logger"
)

// ErrEmptyCommand is returned when a command has no program
var ErrEmptyCommand = errors.New("empty command")

// Command is an external program invocation. Args may carry {name}
// placeholders that are expanded before the command runs.
type Command struct {
	Args        []string
	Dir         string
	Environment map[string]string
	// Stream receives the combined output as it is produced.
	// Output is always captured in the returned Result as well.
	Stream io.Writer
}

// Result of a command invocation
type Result struct {
	ExitCode int
	Output   []byte
	Duration time.Duration
}

// Expand substitutes {key} placeholders in every argument
func Expand(args []string, vars map[string]string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		for k, v := range vars {
			arg = strings.ReplaceAll(arg, "{"+k+"}", v)
		}
		out[i] = arg
	}
	return out
}

// Runner executes commands
type Runner struct {
	Logger logger.Logger
}

const waitDelay = 2 * time.Second

// NewRunner creates a command runner
func NewRunner(log logger.Logger) *Runner {
	return &Runner{Logger: log}
}

// Run executes cmd. A non-zero exit status is reported through
// Result.ExitCode together with an *exec.ExitError; any other error means
// the program could not be started.
func (r *Runner) Run(ctx context.Context, cmd Command) (*Result, error) {
	if len(cmd.Args) == 0 || cmd.Args[0] == "" {
		return nil, ErrEmptyCommand
	}

	start := time.Now()
	c := exec.CommandContext(ctx, cmd.Args[0], cmd.Args[1:]...)
	c.Dir = cmd.Dir
	// children that inherit the output pipes must not hold Run open after cancellation
	c.WaitDelay = waitDelay

	if len(cmd.Environment) > 0 {
		c.Env = os.Environ()
		for k, v := range cmd.Environment {
			c.Env = append(c.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	var outputBuffer bytes.Buffer
	var out io.Writer = &outputBuffer
	if cmd.Stream != nil {
		out = io.MultiWriter(&outputBuffer, cmd.Stream)
	}
	c.Stdout = out
	c.Stderr = out

	if r.Logger != nil {
		r.Logger.Debug("Executing command", logger.WithField("command", strings.Join(cmd.Args, " ")))
	}

	err := c.Run()
	result := &Result{
		Output:   outputBuffer.Bytes(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to run %s: %w", cmd.Args[0], err)
	}
	return result, nil
}
