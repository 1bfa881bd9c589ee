package styles

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cspack/cspack/pkg/interfaces"
	"github.com/cspack/cspack/pkg/logger"
	"github.com/cspack/cspack/pkg/types"
	"github.com/cspack/cspack/pkg/utils"
	"github.com/spf13/afero"
)

// ErrCompile is returned when compilation fails under the "fail" policy
var ErrCompile = errors.New("style compilation failed")

// Aggregator writes the generated entry and compiles it
type Aggregator struct {
	fs       afero.Fs
	dir      string
	entry    string
	common   string
	policy   types.CompileErrorPolicy
	compiler interfaces.StyleCompiler
	logger   logger.Logger
}

// NewAggregator creates an aggregator for the configured styles directory.
// A nil compiler skips compilation.
func NewAggregator(
	cfg *types.Config,
	projectRoot string,
	fsys afero.Fs,
	compiler interfaces.StyleCompiler,
	log logger.Logger,
) *Aggregator {
	policy := cfg.Styles.CompileErrorPolicy
	if policy == "" {
		policy = types.CompileErrorPolicyLog
	}
	return &Aggregator{
		fs:       fsys,
		dir:      utils.ResolvePath(projectRoot, cfg.Styles.Dir),
		entry:    cfg.Styles.Entry,
		common:   cfg.Styles.CommonPartial,
		policy:   policy,
		compiler: compiler,
		logger:   log.WithStage(types.StageStyles),
	}
}

// EntryPath returns the absolute path of the generated entry file
func (a *Aggregator) EntryPath() string {
	return filepath.Join(a.dir, a.entry)
}

// Generate discovers the partials and writes the entry file
func (a *Aggregator) Generate() ([]Partial, error) {
	partials, err := Discover(a.fs, a.dir)
	if err != nil {
		return nil, err
	}
	ordered := Order(partials, a.common)

	if err := afero.WriteFile(a.fs, a.EntryPath(), Render(ordered), 0o644); err != nil {
		return nil, err
	}
	return ordered, nil
}

// Run generates the entry and compiles it according to the compile policy
func (a *Aggregator) Run(ctx context.Context) (*types.StageResult, error) {
	start := time.Now()
	log := logger.WithContext(ctx, a.logger)

	ordered, err := a.Generate()
	if err != nil {
		return nil, err
	}
	log.Info(fmt.Sprintf("Generated %s with %d partial(s)", a.entry, len(ordered)),
		logger.WithField("path", a.EntryPath()))

	result := &types.StageResult{
		Stage:   types.StageStyles,
		Outputs: []string{a.EntryPath()},
	}

	if a.compiler != nil {
		if err := a.compiler.Compile(ctx, a.EntryPath()); err != nil {
			if a.policy == types.CompileErrorPolicyFail {
				return nil, fmt.Errorf("%w: %v", ErrCompile, err)
			}
			log.Error("Style compilation failed", logger.WithError(err))
			result.Warnings = append(result.Warnings, err.Error())
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}
