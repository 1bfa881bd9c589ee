package validation

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"

	"github.com/cspack/cspack/pkg/builders"
	"github.com/cspack/cspack/pkg/logger"
)

// CommandValidator delegates validation to an external program.
// The {dir} placeholder is replaced with the validated folder; exit status
// zero is a pass.
type CommandValidator struct {
	args   []string
	root   string
	env    map[string]string
	out    io.Writer
	runner *builders.Runner
}

// NewCommandValidator creates a validator for the given command line.
// Program output is streamed to out (stdout when nil).
func NewCommandValidator(args []string, projectRoot string, env map[string]string, out io.Writer, log logger.Logger) *CommandValidator {
	if out == nil {
		out = os.Stdout
	}
	return &CommandValidator{
		args:   args,
		root:   projectRoot,
		env:    env,
		out:    out,
		runner: builders.NewRunner(log),
	}
}

// Validate implements interfaces.Validator
func (v *CommandValidator) Validate(ctx context.Context, folder string) (bool, error) {
	_, err := v.runner.Run(ctx, builders.Command{
		Args:        builders.Expand(v.args, map[string]string{"dir": folder}),
		Dir:         v.root,
		Environment: v.env,
		Stream:      v.out,
	})

	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
