package engine

import (
	"io"
	"os"
	"path/filepath"

	"github.com/cspack/cspack/internal/state"
	"github.com/cspack/cspack/internal/watcher"
	"github.com/cspack/cspack/pkg/archive"
	"github.com/cspack/cspack/pkg/interfaces"
	"github.com/cspack/cspack/pkg/logger"
	"github.com/cspack/cspack/pkg/metrics"
	"github.com/cspack/cspack/pkg/notifier"
	"github.com/cspack/cspack/pkg/scripts"
	"github.com/cspack/cspack/pkg/styles"
	"github.com/cspack/cspack/pkg/types"
	"github.com/cspack/cspack/pkg/utils"
	"github.com/cspack/cspack/pkg/validation"
	"github.com/spf13/afero"
)

// DependencyFactory creates the default pipeline collaborators from the
// configuration
type DependencyFactory struct {
	projectRoot string
	logger      logger.Logger
	config      *types.Config
	console     io.Writer
}

// NewDependencyFactory creates a new dependency factory. Validator output
// goes to stdout.
func NewDependencyFactory(projectRoot string, log logger.Logger, cfg *types.Config) *DependencyFactory {
	return &DependencyFactory{
		projectRoot: projectRoot,
		logger:      log,
		config:      cfg,
		console:     os.Stdout,
	}
}

// WithConsole redirects validator output
func (f *DependencyFactory) WithConsole(w io.Writer) *DependencyFactory {
	f.console = w
	return f
}

// CreateDefaults creates all default dependencies
func (f *DependencyFactory) CreateDefaults() (Dependencies, error) {
	v, err := validation.NewFromConfig(f.config, f.projectRoot, f.console, f.logger)
	if err != nil {
		return Dependencies{}, err
	}

	arch, err := archive.NewBuilder(f.config, f.projectRoot, f.logger)
	if err != nil {
		return Dependencies{}, err
	}

	return Dependencies{
		Styles:     f.createAggregator(),
		Scripts:    scripts.NewBundler(f.config, f.projectRoot, afero.NewOsFs(), scripts.NewJSMinifier(), f.logger),
		Validation: validation.NewService(v, f.componentDir(), f.logger),
		Archive:    arch,
		NewWatcher: f.createWatcher,
		Notifier:   notifier.New(f.config.Notifications, f.logger),
		Metrics:    f.createRecorder(),
		State:      state.NewStore(f.projectRoot, f.logger),
	}, nil
}

// CreateWithOverrides creates dependencies where non-nil overrides replace
// the defaults
func (f *DependencyFactory) CreateWithOverrides(overrides Dependencies) (Dependencies, error) {
	deps, err := f.CreateDefaults()
	if err != nil {
		return Dependencies{}, err
	}

	if overrides.Styles != nil {
		deps.Styles = overrides.Styles
	}
	if overrides.Scripts != nil {
		deps.Scripts = overrides.Scripts
	}
	if overrides.Validation != nil {
		deps.Validation = overrides.Validation
	}
	if overrides.Archive != nil {
		deps.Archive = overrides.Archive
	}
	if overrides.NewWatcher != nil {
		deps.NewWatcher = overrides.NewWatcher
	}
	if overrides.Notifier != nil {
		deps.Notifier = overrides.Notifier
	}
	if overrides.Metrics != nil {
		deps.Metrics = overrides.Metrics
	}
	if overrides.State != nil {
		deps.State = overrides.State
	}

	return deps, nil
}

func (f *DependencyFactory) componentDir() string {
	return utils.ResolvePath(f.projectRoot, f.config.Paths.ComponentDir)
}

func (f *DependencyFactory) createAggregator() *styles.Aggregator {
	var compiler interfaces.StyleCompiler
	if len(f.config.Styles.Compiler) > 0 {
		compiler = styles.NewCommandCompiler(f.config.Styles.Compiler, f.config.Styles.Output, f.projectRoot, f.logger)
	}
	return styles.NewAggregator(f.config, f.projectRoot, afero.NewOsFs(), compiler, f.logger)
}

func (f *DependencyFactory) createRecorder() metrics.Recorder {
	if f.config.Metrics.File == "" {
		return metrics.NoopRecorder{}
	}
	return metrics.NewPrometheusRecorder(nil)
}

// createWatcher ignores the generated outputs inside the component folder
// along with the archive exclusions, so the pipeline does not retrigger
// itself.
func (f *DependencyFactory) createWatcher() (interfaces.Watcher, error) {
	stylesDir := utils.ResolvePath(f.projectRoot, f.config.Styles.Dir)

	ignore := append([]string{}, f.config.Archive.Exclude...)
	ignore = append(ignore, f.config.Watch.Ignore...)

	return watcher.New(f.logger, watcher.Options{
		SettlingDelay: f.config.SettlingDelay(),
		Ignore:        ignore,
		IgnoreFiles: []string{
			filepath.Join(stylesDir, f.config.Styles.Entry),
			filepath.Join(stylesDir, f.config.Styles.Output),
			filepath.Join(utils.ResolvePath(f.projectRoot, f.config.Scripts.OutputDir), f.config.Scripts.OutputFile),
		},
	})
}
