// Package scripts concatenates the configured vendor scripts and minifies
// them into a single bundle.
package scripts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cspack/cspack/pkg/interfaces"
	"github.com/cspack/cspack/pkg/logger"
	"github.com/cspack/cspack/pkg/types"
	"github.com/cspack/cspack/pkg/utils"
	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
)

// ErrMinify wraps any error reported by the minifier
var ErrMinify = errors.New("vendor script minification failed")

// Bundler builds the vendor script bundle
type Bundler struct {
	fs        afero.Fs
	root      string
	sources   []string
	outputDir string
	output    string
	minifier  interfaces.Minifier
	logger    logger.Logger
}

// NewBundler creates a bundler for the configured sources
func NewBundler(
	cfg *types.Config,
	projectRoot string,
	fsys afero.Fs,
	minifier interfaces.Minifier,
	log logger.Logger,
) *Bundler {
	return &Bundler{
		fs:        fsys,
		root:      projectRoot,
		sources:   append([]string(nil), cfg.Scripts.Sources...),
		outputDir: utils.ResolvePath(projectRoot, cfg.Scripts.OutputDir),
		output:    cfg.Scripts.OutputFile,
		minifier:  minifier,
		logger:    log.WithStage(types.StageScripts),
	}
}

// OutputPath returns the absolute path of the bundle
func (b *Bundler) OutputPath() string {
	return filepath.Join(b.outputDir, b.output)
}

// Concat reads sources in order and joins them, each followed by a newline.
// Relative sources are resolved against root.
func Concat(fsys afero.Fs, root string, sources []string) ([]byte, error) {
	var buf bytes.Buffer
	for _, src := range sources {
		data, err := afero.ReadFile(fsys, utils.ResolvePath(root, src))
		if err != nil {
			return nil, err
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// Run concatenates, minifies and writes the bundle. Nothing is written
// when minification fails.
func (b *Bundler) Run(ctx context.Context) (*types.StageResult, error) {
	start := time.Now()
	log := logger.WithContext(ctx, b.logger)

	joined, err := Concat(b.fs, b.root, b.sources)
	if err != nil {
		return nil, err
	}

	minified, err := b.minifier.Minify(joined)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMinify, err.Error())
	}

	if err := b.fs.MkdirAll(b.outputDir, 0o755); err != nil {
		return nil, err
	}
	if err := afero.WriteFile(b.fs, b.OutputPath(), minified, 0o644); err != nil {
		return nil, err
	}

	log.Info(fmt.Sprintf("Bundled %d script(s) into %s", len(b.sources), b.output),
		logger.WithField("source_size", humanize.Bytes(uint64(len(joined)))),
		logger.WithField("size", humanize.Bytes(uint64(len(minified)))))

	return &types.StageResult{
		Stage:    types.StageScripts,
		Duration: time.Since(start),
		Outputs:  []string{b.OutputPath()},
	}, nil
}
