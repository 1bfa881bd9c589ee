// Package archive packs the component folder into the upload archive
package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cspack/cspack/pkg/logger"
	"github.com/cspack/cspack/pkg/manifest"
	"github.com/cspack/cspack/pkg/types"
	"github.com/cspack/cspack/pkg/utils"
	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zip"
)

// Ext is the archive file extension
const Ext = ".zip"

// Builder creates <outputDir>/<name>.zip from the component folder
type Builder struct {
	componentDir string
	manifestPath string
	outputDir    string
	exclude      *utils.ExclusionMatcher
	logger       logger.Logger
}

// NewBuilder creates an archive builder. The manifest file name is
// resolved inside the component folder.
func NewBuilder(cfg *types.Config, projectRoot string, log logger.Logger) (*Builder, error) {
	exclude, err := utils.NewExclusionMatcher(cfg.Archive.Exclude)
	if err != nil {
		return nil, err
	}

	componentDir := utils.ResolvePath(projectRoot, cfg.Paths.ComponentDir)
	return &Builder{
		componentDir: componentDir,
		manifestPath: filepath.Join(componentDir, cfg.Paths.Manifest),
		outputDir:    utils.ResolvePath(projectRoot, cfg.Paths.OutputDir),
		exclude:      exclude,
		logger:       log.WithStage(types.StageArchive),
	}, nil
}

// ArchivePath returns the destination for a component set name
func (b *Builder) ArchivePath(name string) string {
	return filepath.Join(b.outputDir, name+Ext)
}

// Select lists the regular files under dir as slash-separated relative
// paths in lexical order, skipping anything exclude matches.
func Select(dir string, exclude *utils.ExclusionMatcher) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if exclude != nil && exclude.IsExcluded(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type().IsRegular() {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Write streams a zip of the given files (relative to dir) into w
func Write(ctx context.Context, w io.Writer, dir string, files []string) error {
	zw := zip.NewWriter(w)

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			_ = zw.Close()
			return err
		}
		if err := addFile(zw, dir, rel); err != nil {
			_ = zw.Close()
			return fmt.Errorf("failed to add %s: %w", rel, err)
		}
	}

	return zw.Close()
}

func addFile(zw *zip.Writer, dir, rel string) error {
	path := filepath.Join(dir, filepath.FromSlash(rel))

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = rel
	header.Method = zip.Deflate

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(writer, f)
	return err
}

// Build reads the component set name and writes a fresh archive. The
// previous archive is only replaced once the new one is complete.
func (b *Builder) Build(ctx context.Context) (*types.StageResult, error) {
	start := time.Now()
	log := logger.WithContext(ctx, b.logger)

	m, err := manifest.Load(b.manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read component set name: %w", err)
	}

	files, err := Select(b.componentDir, b.exclude)
	if err != nil {
		return nil, err
	}

	dest := b.ArchivePath(m.Name)
	err = utils.WriteFileAtomic(dest, 0o644, func(w io.Writer) error {
		return Write(ctx, w, b.componentDir, files)
	})
	if err != nil {
		return nil, err
	}

	fields := []logger.Field{logger.WithField("path", dest)}
	if info, err := os.Stat(dest); err == nil {
		fields = append(fields, logger.WithField("size", humanize.Bytes(uint64(info.Size()))))
	}
	log.Info(fmt.Sprintf("Archived %d file(s) into %s", len(files), filepath.Base(dest)), fields...)

	return &types.StageResult{
		Stage:    types.StageArchive,
		Duration: time.Since(start),
		Outputs:  []string{dest},
	}, nil
}
