package styles

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cspack/cspack/pkg/builders"
	"github.com/cspack/cspack/pkg/logger"
)

// CommandCompiler compiles the entry with an external sass-compatible program.
// Supported placeholders: {entry}, {output}, {dir}.
type CommandCompiler struct {
	args   []string
	output string
	root   string
	runner *builders.Runner
}

// NewCommandCompiler creates a compiler. output is the compiled file name,
// resolved next to the entry.
func NewCommandCompiler(args []string, output, projectRoot string, log logger.Logger) *CommandCompiler {
	return &CommandCompiler{
		args:   args,
		output: output,
		root:   projectRoot,
		runner: builders.NewRunner(log),
	}
}

// Compile implements interfaces.StyleCompiler
func (c *CommandCompiler) Compile(ctx context.Context, entryPath string) error {
	dir := filepath.Dir(entryPath)
	args := builders.Expand(c.args, map[string]string{
		"entry":  entryPath,
		"output": filepath.Join(dir, c.output),
		"dir":    dir,
	})

	res, err := c.runner.Run(ctx, builders.Command{Args: args, Dir: c.root})
	if err != nil {
		if res != nil && len(res.Output) > 0 {
			return fmt.Errorf("%s: %w\n%s", args[0], err, strings.TrimSpace(string(res.Output)))
		}
		return err
	}
	return nil
}
