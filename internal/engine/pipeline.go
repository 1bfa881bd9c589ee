package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cspack/cspack/internal/state"
	bctx "github.com/cspack/cspack/pkg/context"
	"github.com/cspack/cspack/pkg/logger"
	"github.com/cspack/cspack/pkg/metrics"
	"github.com/cspack/cspack/pkg/types"
	"github.com/cspack/cspack/pkg/utils"
)

// Pipeline names used for build contexts, logs and metrics
const (
	PipelineBuild    = "build"
	PipelineDev      = "dev"
	PipelineValidate = "validate"
)

// ErrNoComponentDir is returned when the component folder does not exist
var ErrNoComponentDir = errors.New("component folder not found")

// Pipeline drives the packaging stages
type Pipeline struct {
	config       *types.Config
	projectRoot  string
	componentDir string
	logger       logger.Logger
	deps         Dependencies
}

// New creates a pipeline for projectRoot
func New(cfg *types.Config, projectRoot string, log logger.Logger, deps Dependencies) (*Pipeline, error) {
	switch {
	case deps.Styles == nil:
		return nil, fmt.Errorf("styles stage is required")
	case deps.Scripts == nil:
		return nil, fmt.Errorf("scripts stage is required")
	case deps.Validation == nil:
		return nil, fmt.Errorf("validation service is required")
	case deps.Archive == nil:
		return nil, fmt.Errorf("archive builder is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NoopRecorder{}
	}

	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}

	return &Pipeline{
		config:       cfg,
		projectRoot:  root,
		componentDir: utils.ResolvePath(root, cfg.Paths.ComponentDir),
		logger:       log,
		deps:         deps,
	}, nil
}

// ComponentDir returns the absolute component folder
func (p *Pipeline) ComponentDir() string {
	return p.componentDir
}

// Build runs styles and scripts concurrently, then validation, then the
// archive. The first failing stage aborts the pipeline. Artifacts written
// by earlier stages are left in place.
func (p *Pipeline) Build(ctx context.Context) error {
	ctx = bctx.NewBuildContext(ctx, PipelineBuild)
	log := logger.WithContext(ctx, p.logger)
	start := time.Now()

	log.Info("Packaging component set", logger.WithField("folder", p.componentDir))

	var archivePath string
	err := p.checkComponentDir()
	if err == nil {
		err = p.Assets(ctx)
	}
	if err == nil {
		_, err = p.runStage(ctx, types.StageValidate, func(ctx context.Context) (*types.StageResult, error) {
			if err := p.deps.Validation.Require(ctx); err != nil {
				return nil, err
			}
			return &types.StageResult{Stage: types.StageValidate}, nil
		})
	}
	if err == nil {
		var res *types.StageResult
		res, err = p.runStage(ctx, types.StageArchive, p.deps.Archive.Build)
		if err == nil && len(res.Outputs) > 0 {
			archivePath = res.Outputs[0]
		}
	}

	outcome := state.Outcome{}
	if err == nil {
		outcome.Archive = archivePath
		if info, statErr := os.Stat(archivePath); statErr == nil {
			outcome.ArchiveSize = info.Size()
			p.deps.Metrics.SetArchiveSize(info.Size())
		}
	}
	p.finish(ctx, PipelineBuild, start, err, outcome)
	if err != nil {
		return err
	}

	name := filepath.Base(archivePath)
	log.Success(fmt.Sprintf("Packaged %s in %s", name, time.Since(start).Round(time.Millisecond)))
	if p.deps.Notifier != nil {
		p.deps.Notifier.NotifyBuildSuccess(name, time.Since(start))
	}
	return nil
}

// Assets runs the style aggregator and the vendor bundler concurrently
// and waits for both
func (p *Pipeline) Assets(ctx context.Context) error {
	sg, gctx := NewSafeGroup(ctx, p.logger)

	sg.Go(func() error {
		_, err := p.runStage(gctx, types.StageStyles, p.deps.Styles.Run)
		return err
	})
	sg.Go(func() error {
		_, err := p.runStage(gctx, types.StageScripts, p.deps.Scripts.Run)
		return err
	})

	return sg.Wait()
}

// Validate runs one bailing validation pass
func (p *Pipeline) Validate(ctx context.Context) error {
	ctx = bctx.NewBuildContext(ctx, PipelineValidate)
	start := time.Now()

	err := p.checkComponentDir()
	if err == nil {
		_, err = p.runStage(ctx, types.StageValidate, func(ctx context.Context) (*types.StageResult, error) {
			if err := p.deps.Validation.Require(ctx); err != nil {
				return nil, err
			}
			return &types.StageResult{Stage: types.StageValidate}, nil
		})
	}

	passed := err == nil
	p.deps.Metrics.IncValidation(passed)
	p.finish(ctx, PipelineValidate, start, err, state.Outcome{Verdict: &passed})
	return err
}

// Dev runs the asset stages once, then re-validates the component folder
// after every settled batch of changes until ctx is cancelled. Validation
// failures are reported and never stop the loop.
func (p *Pipeline) Dev(ctx context.Context) error {
	if p.deps.NewWatcher == nil {
		return fmt.Errorf("dev mode requires a watcher")
	}
	if err := p.checkComponentDir(); err != nil {
		return err
	}

	devCtx := bctx.NewBuildContext(ctx, PipelineDev)
	log := logger.WithContext(devCtx, p.logger)

	if err := p.Assets(devCtx); err != nil {
		return err
	}

	p.record(devCtx, PipelineDev, state.Outcome{Status: types.RunStatusRunning})
	if p.deps.State != nil {
		p.deps.State.StartHeartbeat(ctx, PipelineDev)
		defer func() {
			if err := p.deps.State.Release(); err != nil {
				log.Debug("Failed to release run state", logger.WithError(err))
			}
		}()
	}

	w, err := p.deps.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	gate := NewRerunGate(func() { p.revalidate(ctx) })

	err = w.WatchProject(p.componentDir, func(paths []string) {
		log.Debug(fmt.Sprintf("%d file(s) changed", len(paths)), logger.WithField("first", paths[0]))
		gate.Trigger()
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", p.componentDir, err)
	}

	log.Info("Watching for changes, press Ctrl+C to stop", logger.WithField("folder", p.componentDir))
	<-ctx.Done()

	if err := w.Close(); err != nil {
		log.Debug("Failed to close watcher", logger.WithError(err))
	}
	gate.Wait()

	log.Info("Stopped watching")
	return nil
}

// revalidate is one non-bailing validation run in its own build context
func (p *Pipeline) revalidate(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	runCtx := bctx.NewBuildContext(ctx, PipelineDev)
	start := time.Now()

	passed := p.deps.Validation.Check(bctx.WithStage(runCtx, types.StageValidate))
	if ctx.Err() != nil {
		return
	}

	p.deps.Metrics.ObserveStageDuration(types.StageValidate, time.Since(start))
	p.deps.Metrics.IncValidation(passed)
	if passed {
		p.deps.Metrics.IncStageResult(types.StageValidate, metrics.ResultSuccess)
	} else {
		p.deps.Metrics.IncStageResult(types.StageValidate, metrics.ResultFailed)
	}
	if p.deps.Notifier != nil {
		p.deps.Notifier.NotifyValidation(p.deps.Validation.Folder(), passed)
	}
	p.record(runCtx, PipelineDev, state.Outcome{Status: types.RunStatusRunning, Verdict: &passed})
}

// runStage times fn, records its outcome and wraps errors with the stage name
func (p *Pipeline) runStage(
	ctx context.Context,
	stage string,
	fn func(context.Context) (*types.StageResult, error),
) (*types.StageResult, error) {
	ctx = bctx.WithStage(ctx, stage)
	start := time.Now()

	res, err := fn(ctx)
	p.deps.Metrics.ObserveStageDuration(stage, time.Since(start))

	switch {
	case err != nil && ctx.Err() != nil:
		p.deps.Metrics.IncStageResult(stage, metrics.ResultCanceled)
		return nil, fmt.Errorf("%s: %w", stage, err)
	case err != nil:
		p.deps.Metrics.IncStageResult(stage, metrics.ResultFailed)
		return nil, fmt.Errorf("%s: %w", stage, err)
	case res != nil && len(res.Warnings) > 0:
		p.deps.Metrics.IncStageResult(stage, metrics.ResultWarning)
	default:
		p.deps.Metrics.IncStageResult(stage, metrics.ResultSuccess)
	}

	if res == nil {
		res = &types.StageResult{Stage: stage}
	}
	res.Duration = time.Since(start)
	return res, nil
}

// finish records the outcome of a one-shot pipeline in metrics and the
// run store
func (p *Pipeline) finish(ctx context.Context, pipeline string, start time.Time, err error, o state.Outcome) {
	o.Duration = time.Since(start)
	o.Err = err
	p.deps.Metrics.ObserveBuildDuration(pipeline, o.Duration)

	switch {
	case err == nil:
		o.Status = types.RunStatusSucceeded
		p.deps.Metrics.IncBuildOutcome(pipeline, metrics.ResultSuccess)
	case ctx.Err() != nil:
		o.Status = types.RunStatusCanceled
		p.deps.Metrics.IncBuildOutcome(pipeline, metrics.ResultCanceled)
	default:
		o.Status = types.RunStatusFailed
		p.deps.Metrics.IncBuildOutcome(pipeline, metrics.ResultFailed)
		logger.WithContext(ctx, p.logger).Error(fmt.Sprintf("%s failed", pipeline), logger.WithError(err))
		if pipeline == PipelineBuild && p.deps.Notifier != nil {
			p.deps.Notifier.NotifyBuildFailure(pipeline, err)
		}
	}

	p.record(ctx, pipeline, o)
}

// record saves o when a run store is configured. Store failures never
// fail the pipeline.
func (p *Pipeline) record(ctx context.Context, pipeline string, o state.Outcome) {
	if p.deps.State == nil {
		return
	}
	if o.BuildID == "" {
		o.BuildID = bctx.GetBuildID(ctx)
	}
	if err := p.deps.State.Record(pipeline, o); err != nil {
		logger.WithContext(ctx, p.logger).Warn("Failed to record run state",
			logger.WithField("pipeline", pipeline), logger.WithError(err))
	}
}

func (p *Pipeline) checkComponentDir() error {
	info, err := os.Stat(p.componentDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNoComponentDir, p.componentDir)
	}
	return nil
}
