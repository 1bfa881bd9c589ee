package engine

import (
	"context"

	"github.com/cspack/cspack/internal/state"
	"github.com/cspack/cspack/pkg/interfaces"
	"github.com/cspack/cspack/pkg/metrics"
	"github.com/cspack/cspack/pkg/types"
)

// Stage is one asset-producing step (style aggregation, vendor bundling)
type Stage interface {
	Run(ctx context.Context) (*types.StageResult, error)
}

// Archiver writes the distributable archive
type Archiver interface {
	Build(ctx context.Context) (*types.StageResult, error)
}

// ValidationService runs the component validator in its two modes
type ValidationService interface {
	Folder() string
	Check(ctx context.Context) bool
	Require(ctx context.Context) error
}

// RunStore persists pipeline outcomes
type RunStore interface {
	Record(pipeline string, o state.Outcome) error
	StartHeartbeat(ctx context.Context, pipeline string)
	Release() error
}

// WatcherFactory creates the watcher used by dev mode
type WatcherFactory func() (interfaces.Watcher, error)

// Dependencies are the collaborators a Pipeline drives. Styles, Scripts,
// Validation and Archive are required; Dev additionally needs NewWatcher.
type Dependencies struct {
	Styles     Stage
	Scripts    Stage
	Validation ValidationService
	Archive    Archiver
	NewWatcher WatcherFactory
	Notifier   interfaces.BuildNotifier
	Metrics    metrics.Recorder
	State      RunStore
}
