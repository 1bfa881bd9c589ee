package archive_test

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/cspack/cspack/pkg/archive"
	"github.com/cspack/cspack/pkg/config"
	"github.com/cspack/cspack/pkg/logger"
	"github.com/cspack/cspack/pkg/manifest"
	"github.com/cspack/cspack/pkg/utils"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func setupProject(t *testing.T, manifestJSON string) string {
	t.Helper()
	root := t.TempDir()
	components := filepath.Join(root, "components")

	writeFile(t, filepath.Join(components, "components-definition.json"), manifestJSON)
	writeFile(t, filepath.Join(components, "widgets", "hero", "index.html"), "<div>hero</div>")
	writeFile(t, filepath.Join(components, "styles", "_common.scss"), "$brand: red;")
	writeFile(t, filepath.Join(components, "scripts", "vendor.js"), "var a=1;")
	writeFile(t, filepath.Join(components, ".DS_Store"), "marker")
	writeFile(t, filepath.Join(components, "widgets", ".DS_Store"), "marker")
	writeFile(t, filepath.Join(components, "widgets", "hero", "Thumbs.db"), "marker")
	return root
}

func entryNames(t *testing.T, path string) []string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
		assert.Equal(t, zip.Deflate, f.Method, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestBuilder_Build(t *testing.T) {
	root := setupProject(t, `{"name": "acme-widgets", "components": []}`)

	b, err := archive.NewBuilder(config.Default(), root, logger.Nop())
	require.NoError(t, err)

	result, err := b.Build(context.Background())
	require.NoError(t, err)

	dest := filepath.Join(root, "dist", "acme-widgets.zip")
	assert.Equal(t, []string{dest}, result.Outputs)
	assert.Equal(t, dest, b.ArchivePath("acme-widgets"))

	assert.Equal(t, []string{
		"components-definition.json",
		"scripts/vendor.js",
		"styles/_common.scss",
		"widgets/hero/index.html",
	}, entryNames(t, dest))

	entries, err := os.ReadDir(filepath.Join(root, "dist"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestBuilder_BuildReplacesPreviousArchive(t *testing.T) {
	root := setupProject(t, `{"name": "acme-widgets"}`)
	writeFile(t, filepath.Join(root, "dist", "acme-widgets.zip"), "stale")

	b, err := archive.NewBuilder(config.Default(), root, logger.Nop())
	require.NoError(t, err)

	_, err = b.Build(context.Background())
	require.NoError(t, err)

	names := entryNames(t, filepath.Join(root, "dist", "acme-widgets.zip"))
	assert.Contains(t, names, "widgets/hero/index.html")
}

func TestBuilder_BuildWithoutName(t *testing.T) {
	root := setupProject(t, `{"name": ""}`)

	b, err := archive.NewBuilder(config.Default(), root, logger.Nop())
	require.NoError(t, err)

	_, err = b.Build(context.Background())
	assert.ErrorIs(t, err, manifest.ErrMissingName)

	_, statErr := os.Stat(filepath.Join(root, "dist"))
	assert.True(t, os.IsNotExist(statErr), "nothing written without a name")
}

func TestBuilder_BuildCancelled(t *testing.T) {
	root := setupProject(t, `{"name": "acme-widgets"}`)
	writeFile(t, filepath.Join(root, "dist", "acme-widgets.zip"), "previous")

	b, err := archive.NewBuilder(config.Default(), root, logger.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = b.Build(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	data, err := os.ReadFile(filepath.Join(root, "dist", "acme-widgets.zip"))
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))
}

func TestSelect(t *testing.T) {
	root := setupProject(t, `{"name": "acme-widgets"}`)
	dir := filepath.Join(root, "components")

	t.Run("default exclusions", func(t *testing.T) {
		em, err := utils.NewExclusionMatcher(utils.DefaultExclusions())
		require.NoError(t, err)

		files, err := archive.Select(dir, em)
		require.NoError(t, err)
		for _, f := range files {
			assert.NotContains(t, f, ".DS_Store")
			assert.NotContains(t, f, "Thumbs.db")
		}
		assert.Len(t, files, 4)
	})

	t.Run("excluded directory is skipped", func(t *testing.T) {
		em, err := utils.NewExclusionMatcher([]string{".DS_Store", "Thumbs.db", "widgets"})
		require.NoError(t, err)

		files, err := archive.Select(dir, em)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"components-definition.json",
			"scripts/vendor.js",
			"styles/_common.scss",
		}, files)
	})

	t.Run("no exclusions", func(t *testing.T) {
		files, err := archive.Select(dir, nil)
		require.NoError(t, err)
		assert.Len(t, files, 7)
	})

	t.Run("missing folder", func(t *testing.T) {
		_, err := archive.Select(filepath.Join(root, "missing"), nil)
		assert.Error(t, err)
	})
}
