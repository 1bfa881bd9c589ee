package engine_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cspack/cspack/internal/engine"
	"github.com/cspack/cspack/internal/state"
	"github.com/cspack/cspack/pkg/archive"
	"github.com/cspack/cspack/pkg/config"
	"github.com/cspack/cspack/pkg/interfaces"
	"github.com/cspack/cspack/pkg/logger"
	"github.com/cspack/cspack/pkg/metrics"
	"github.com/cspack/cspack/pkg/mocks"
	"github.com/cspack/cspack/pkg/scripts"
	"github.com/cspack/cspack/pkg/types"
	"github.com/cspack/cspack/pkg/validation"
	"github.com/golang/mock/gomock"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stageFunc func(ctx context.Context) (*types.StageResult, error)

func (f stageFunc) Run(ctx context.Context) (*types.StageResult, error) { return f(ctx) }

func okStage(name string, calls *int32) stageFunc {
	return func(context.Context) (*types.StageResult, error) {
		atomic.AddInt32(calls, 1)
		return &types.StageResult{Stage: name}, nil
	}
}

type fakeWatcher struct {
	mu     sync.Mutex
	root   string
	cb     interfaces.FileChangeCallback
	ready  chan struct{}
	closed int32
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{ready: make(chan struct{})}
}

func (w *fakeWatcher) WatchProject(root string, cb interfaces.FileChangeCallback) error {
	w.mu.Lock()
	w.root, w.cb = root, cb
	w.mu.Unlock()
	close(w.ready)
	return nil
}

func (w *fakeWatcher) Close() error {
	atomic.AddInt32(&w.closed, 1)
	return nil
}

func (w *fakeWatcher) emit(paths ...string) {
	w.mu.Lock()
	cb := w.cb
	w.mu.Unlock()
	cb(paths)
}

type fixture struct {
	root         string
	componentDir string
	cfg          *types.Config
	validator    *mocks.MockValidator
	notifier     *mocks.MockBuildNotifier
	styleCalls   int32
	scriptCalls  int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	componentDir := filepath.Join(root, "components")

	files := map[string]string{
		"components-definition.json": `{"name": "acme-widgets"}`,
		"widgets/hero/index.html":    "<div>hero</div>",
		".DS_Store":                  "marker",
	}
	for rel, content := range files {
		path := filepath.Join(componentDir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	ctrl := gomock.NewController(t)
	return &fixture{
		root:         root,
		componentDir: componentDir,
		cfg:          config.Default(),
		validator:    mocks.NewMockValidator(ctrl),
		notifier:     mocks.NewMockBuildNotifier(ctrl),
	}
}

func (f *fixture) deps(t *testing.T) engine.Dependencies {
	t.Helper()
	arch, err := archive.NewBuilder(f.cfg, f.root, logger.Nop())
	require.NoError(t, err)

	return engine.Dependencies{
		Styles:     okStage(types.StageStyles, &f.styleCalls),
		Scripts:    okStage(types.StageScripts, &f.scriptCalls),
		Validation: validation.NewService(f.validator, f.componentDir, logger.Nop()),
		Archive:    arch,
		Notifier:   f.notifier,
	}
}

func (f *fixture) pipeline(t *testing.T, deps engine.Dependencies) *engine.Pipeline {
	t.Helper()
	p, err := engine.New(f.cfg, f.root, logger.Nop(), deps)
	require.NoError(t, err)
	return p
}

func (f *fixture) archivePath() string {
	return filepath.Join(f.root, "dist", "acme-widgets.zip")
}

func TestPipeline_BuildPasses(t *testing.T) {
	f := newFixture(t)
	f.validator.EXPECT().Validate(gomock.Any(), f.componentDir).Return(true, nil)
	f.notifier.EXPECT().NotifyBuildSuccess("acme-widgets.zip", gomock.Any())

	deps := f.deps(t)
	reg := prom.NewRegistry()
	deps.Metrics = metrics.NewPrometheusRecorder(reg)

	require.NoError(t, f.pipeline(t, deps).Build(context.Background()))

	assert.FileExists(t, f.archivePath())
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.styleCalls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.scriptCalls))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}

func TestPipeline_BuildRecordsRunState(t *testing.T) {
	f := newFixture(t)
	gomock.InOrder(
		f.validator.EXPECT().Validate(gomock.Any(), f.componentDir).Return(true, nil),
		f.validator.EXPECT().Validate(gomock.Any(), f.componentDir).Return(false, nil),
	)
	f.notifier.EXPECT().NotifyBuildSuccess(gomock.Any(), gomock.Any())
	f.notifier.EXPECT().NotifyBuildFailure(engine.PipelineBuild, gomock.Any())

	deps := f.deps(t)
	deps.State = state.NewStore(f.root, logger.Nop())
	p := f.pipeline(t, deps)

	require.NoError(t, p.Build(context.Background()))
	require.Error(t, p.Build(context.Background()))

	st, err := state.NewStore(f.root, logger.Nop()).Read(engine.PipelineBuild)
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusFailed, st.Status)
	assert.Equal(t, 2, st.RunCount)
	assert.Equal(t, 1, st.FailureCount)
	assert.Equal(t, f.archivePath(), st.Archive)
	assert.Positive(t, st.ArchiveSize)
	assert.NotEmpty(t, st.BuildID)
	assert.Contains(t, st.LastError, "validation failed")
}

func TestPipeline_BuildLogsCarryOneBuildID(t *testing.T) {
	f := newFixture(t)
	f.validator.EXPECT().Validate(gomock.Any(), f.componentDir).Return(true, nil)
	f.notifier.EXPECT().NotifyBuildSuccess(gomock.Any(), gomock.Any())

	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("debug", &buf)

	arch, err := archive.NewBuilder(f.cfg, f.root, log)
	require.NoError(t, err)

	deps := f.deps(t)
	deps.Validation = validation.NewService(f.validator, f.componentDir, log)
	deps.Archive = arch
	deps.State = state.NewStore(f.root, logger.Nop())

	p, err := engine.New(f.cfg, f.root, log, deps)
	require.NoError(t, err)
	require.NoError(t, p.Build(context.Background()))

	st, err := state.NewStore(f.root, logger.Nop()).Read(engine.PipelineBuild)
	require.NoError(t, err)
	require.NotEmpty(t, st.BuildID)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	for _, line := range lines {
		assert.Contains(t, line, "build_id="+st.BuildID)
		assert.Contains(t, line, "pipeline="+engine.PipelineBuild)
	}
}

func TestPipeline_BuildValidationFails(t *testing.T) {
	f := newFixture(t)
	f.validator.EXPECT().Validate(gomock.Any(), f.componentDir).Return(false, nil)
	f.notifier.EXPECT().NotifyBuildFailure(engine.PipelineBuild, gomock.Any())

	err := f.pipeline(t, f.deps(t)).Build(context.Background())

	assert.ErrorIs(t, err, validation.ErrValidationFailed)
	assert.NoFileExists(t, f.archivePath())
}

func TestPipeline_BuildValidationFailsKeepsPreviousArchive(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(f.archivePath()), 0o755))
	require.NoError(t, os.WriteFile(f.archivePath(), []byte("previous"), 0o644))

	f.validator.EXPECT().Validate(gomock.Any(), f.componentDir).Return(false, nil)
	f.notifier.EXPECT().NotifyBuildFailure(gomock.Any(), gomock.Any())

	err := f.pipeline(t, f.deps(t)).Build(context.Background())
	require.Error(t, err)

	data, err := os.ReadFile(f.archivePath())
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))
}

func TestPipeline_BuildStageFailureSkipsValidation(t *testing.T) {
	f := newFixture(t)
	f.notifier.EXPECT().NotifyBuildFailure(engine.PipelineBuild, gomock.Any())

	deps := f.deps(t)
	deps.Scripts = stageFunc(func(context.Context) (*types.StageResult, error) {
		return nil, fmt.Errorf("%w: unexpected token", scripts.ErrMinify)
	})

	err := f.pipeline(t, deps).Build(context.Background())

	assert.ErrorIs(t, err, scripts.ErrMinify)
	assert.Contains(t, err.Error(), types.StageScripts)
	assert.NoFileExists(t, f.archivePath())
}

func TestPipeline_BuildRecoversStagePanic(t *testing.T) {
	f := newFixture(t)
	f.notifier.EXPECT().NotifyBuildFailure(gomock.Any(), gomock.Any())

	deps := f.deps(t)
	deps.Styles = stageFunc(func(context.Context) (*types.StageResult, error) {
		panic("nil partial")
	})

	err := f.pipeline(t, deps).Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil partial")
}

func TestPipeline_AssetsRunConcurrently(t *testing.T) {
	f := newFixture(t)
	stylesStarted := make(chan struct{})
	scriptsStarted := make(chan struct{})

	waitFor := func(ch chan struct{}) error {
		select {
		case <-ch:
			return nil
		case <-time.After(5 * time.Second):
			return errors.New("stages did not overlap")
		}
	}

	deps := f.deps(t)
	deps.Styles = stageFunc(func(context.Context) (*types.StageResult, error) {
		close(stylesStarted)
		return &types.StageResult{}, waitFor(scriptsStarted)
	})
	deps.Scripts = stageFunc(func(context.Context) (*types.StageResult, error) {
		close(scriptsStarted)
		return &types.StageResult{}, waitFor(stylesStarted)
	})

	assert.NoError(t, f.pipeline(t, deps).Assets(context.Background()))
}

func TestPipeline_MissingComponentDir(t *testing.T) {
	f := newFixture(t)
	f.cfg.Paths.ComponentDir = "missing"
	f.notifier.EXPECT().NotifyBuildFailure(gomock.Any(), gomock.Any())

	err := f.pipeline(t, f.deps(t)).Build(context.Background())
	assert.ErrorIs(t, err, engine.ErrNoComponentDir)
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.styleCalls))
}

func TestPipeline_Validate(t *testing.T) {
	f := newFixture(t)
	gomock.InOrder(
		f.validator.EXPECT().Validate(gomock.Any(), f.componentDir).Return(true, nil),
		f.validator.EXPECT().Validate(gomock.Any(), f.componentDir).Return(false, nil),
	)

	p := f.pipeline(t, f.deps(t))
	assert.NoError(t, p.Validate(context.Background()))
	assert.ErrorIs(t, p.Validate(context.Background()), validation.ErrValidationFailed)
	assert.NoFileExists(t, f.archivePath())
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := engine.New(config.Default(), t.TempDir(), logger.Nop(), engine.Dependencies{})
	assert.Error(t, err)
}

func TestPipeline_Dev(t *testing.T) {
	f := newFixture(t)
	w := newFakeWatcher()

	validated := make(chan struct{}, 4)
	f.validator.EXPECT().Validate(gomock.Any(), f.componentDir).DoAndReturn(
		func(context.Context, string) (bool, error) {
			validated <- struct{}{}
			return false, nil
		}).MinTimes(1)
	f.notifier.EXPECT().NotifyValidation(f.componentDir, false).MinTimes(1)

	deps := f.deps(t)
	deps.NewWatcher = func() (interfaces.Watcher, error) { return w, nil }
	p := f.pipeline(t, deps)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Dev(ctx) }()

	select {
	case <-w.ready:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher was never started")
	}
	assert.Equal(t, f.componentDir, w.root)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.styleCalls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.scriptCalls))

	w.emit(filepath.Join(f.componentDir, "widgets", "hero", "index.html"))
	select {
	case <-validated:
	case <-time.After(5 * time.Second):
		t.Fatal("change did not trigger validation")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err, "a failing verdict never stops dev mode")
	case <-time.After(5 * time.Second):
		t.Fatal("dev mode did not stop on cancellation")
	}
	assert.GreaterOrEqual(t, atomic.LoadInt32(&w.closed), int32(1))
	assert.NoFileExists(t, f.archivePath(), "dev mode never archives")
}

func TestPipeline_DevAssetFailure(t *testing.T) {
	f := newFixture(t)

	deps := f.deps(t)
	deps.Scripts = stageFunc(func(context.Context) (*types.StageResult, error) {
		return nil, os.ErrNotExist
	})
	deps.NewWatcher = func() (interfaces.Watcher, error) {
		t.Fatal("watcher must not start when assets fail")
		return nil, nil
	}

	err := f.pipeline(t, deps).Dev(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}
