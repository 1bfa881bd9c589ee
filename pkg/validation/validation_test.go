package validation_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/cspack/cspack/pkg/config"
	"github.com/cspack/cspack/pkg/logger"
	"github.com/cspack/cspack/pkg/mocks"
	"github.com/cspack/cspack/pkg/validation"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifestFile = "components-definition.json"

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifestFile), []byte(content), 0o644))
}

func TestManifestValidator(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		valid    bool
	}{
		{name: "valid", manifest: `{"name": "acme-widgets"}`, valid: true},
		{name: "missing file", valid: false},
		{name: "invalid json", manifest: `{"name": `, valid: false},
		{name: "missing name", manifest: `{"components": []}`, valid: false},
		{name: "blank name", manifest: `{"name": "  "}`, valid: false},
		{name: "wrong type", manifest: `{"name": 3}`, valid: false},
		{name: "array root", manifest: `["acme"]`, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.manifest != "" {
				writeManifest(t, dir, tt.manifest)
			}

			var out bytes.Buffer
			v, err := validation.NewManifestValidator(manifestFile, &out)
			require.NoError(t, err)

			ok, err := v.Validate(context.Background(), dir)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, ok)
			if !tt.valid {
				assert.Contains(t, out.String(), manifestFile)
			} else {
				assert.Empty(t, out.String())
			}
		})
	}
}

func TestChain_StopsAtFirstFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	first := mocks.NewMockValidator(ctrl)
	second := mocks.NewMockValidator(ctrl)

	first.EXPECT().Validate(gomock.Any(), "components").Return(false, nil)

	ok, err := validation.Chain{first, second}.Validate(context.Background(), "components")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChain_AllPass(t *testing.T) {
	ctrl := gomock.NewController(t)
	first := mocks.NewMockValidator(ctrl)
	second := mocks.NewMockValidator(ctrl)

	gomock.InOrder(
		first.EXPECT().Validate(gomock.Any(), "components").Return(true, nil),
		second.EXPECT().Validate(gomock.Any(), "components").Return(true, nil),
	)

	ok, err := validation.Chain{first, second}.Validate(context.Background(), "components")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestService_RequireAndCheck(t *testing.T) {
	runErr := errors.New("validator not installed")

	tests := []struct {
		name       string
		verdict    bool
		err        error
		wantErr    error
		wantChecks bool
	}{
		{name: "pass", verdict: true, wantChecks: true},
		{name: "fail", verdict: false, wantErr: validation.ErrValidationFailed},
		{name: "cannot run", err: runErr, wantErr: runErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			v := mocks.NewMockValidator(ctrl)
			v.EXPECT().Validate(gomock.Any(), "components").Return(tt.verdict, tt.err).Times(2)

			svc := validation.NewService(v, "components", logger.Nop())

			err := svc.Require(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}

			assert.Equal(t, tt.wantChecks, svc.Check(context.Background()))
		})
	}
}

func TestCommandValidator(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	dir := t.TempDir()
	tests := []struct {
		name   string
		script string
		want   bool
	}{
		{name: "passes", script: `test -d "$1" && echo "ok: $1"`, want: true},
		{name: "fails", script: `echo "missing component" >&2; exit 1`, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			v := validation.NewCommandValidator(
				[]string{"sh", "-c", tt.script, "validator", "{dir}"},
				dir, nil, &out, logger.Nop(),
			)

			ok, err := v.Validate(context.Background(), dir)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.NotEmpty(t, out.String())
		})
	}
}

func TestCommandValidator_Cancelled(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	dir := t.TempDir()
	v := validation.NewCommandValidator([]string{"sh", "-c", "sleep 5"}, dir, nil, &bytes.Buffer{}, logger.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	ok, err := v.Validate(ctx, dir)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "a killed validator is not a verdict")
}

func TestService_CheckInterrupted(t *testing.T) {
	ctrl := gomock.NewController(t)
	validator := mocks.NewMockValidator(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	validator.EXPECT().Validate(gomock.Any(), "folder").DoAndReturn(
		func(context.Context, string) (bool, error) {
			cancel()
			return false, context.Canceled
		})

	svc := validation.NewService(validator, "folder", logger.Nop())
	assert.False(t, svc.Check(ctx))
}

func TestNewFromConfig(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"name": "acme-widgets"}`)

	cfg := config.Default()
	cfg.Validator.Command = nil

	v, err := validation.NewFromConfig(cfg, dir, &bytes.Buffer{}, logger.Nop())
	require.NoError(t, err)

	ok, err := v.Validate(context.Background(), dir)
	require.NoError(t, err)
	assert.True(t, ok)
}
