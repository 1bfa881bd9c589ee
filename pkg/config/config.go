// Package config handles configuration loading and management
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cspack/cspack/pkg/types"
	"github.com/cspack/cspack/pkg/utils"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// FileName is the default config file written by init
	FileName = "cspack.config.yaml"
	// EnvPrefix prefixes environment overrides, e.g. CSPACK_PATHS_OUTPUTDIR
	EnvPrefix = "CSPACK"

	configName = "cspack.config"
	envFile    = ".env"
)

// DefaultScriptSources is the vendor bundle composition. Order is load
// order: each library precedes the scripts that use it.
var DefaultScriptSources = []string{
	"node_modules/hammerjs/hammer.js",
	"node_modules/jquery-ui-dist/jquery-ui.js",
	"node_modules/jquery-ui-touch-punch/jquery.ui.touch-punch.js",
	"node_modules/slick-carousel/slick/slick.js",
	"node_modules/slick-lightbox/dist/slick-lightbox.js",
	"node_modules/jarallax/dist/jarallax.js",
	"node_modules/ogv/dist/ogv.js",
}

// Default returns the configuration used when no file is present
func Default() *types.Config {
	return &types.Config{
		Version: types.ConfigVersion,
		Paths: types.PathsConfig{
			ComponentDir: "components",
			Manifest:     "components-definition.json",
			OutputDir:    "dist",
		},
		Styles: types.StylesConfig{
			Dir:                "components/styles",
			Entry:              "design.scss",
			Output:             "design.css",
			CommonPartial:      "common",
			Compiler:           []string{"sass", "--no-source-map", "{entry}", "{output}"},
			CompileErrorPolicy: types.CompileErrorPolicyLog,
		},
		Scripts: types.ScriptsConfig{
			Sources:    append([]string(nil), DefaultScriptSources...),
			OutputDir:  "components/scripts",
			OutputFile: "vendor.js",
		},
		Archive: types.ArchiveConfig{
			Exclude: utils.DefaultExclusions(),
		},
		Watch: types.WatchConfig{
			SettlingDelay: 100,
		},
		Logging: types.LoggingConfig{
			Level: types.LogLevelInfo,
		},
	}
}

// Manager handles configuration operations
type Manager struct {
	v    *viper.Viper
	root string
}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{v: viper.New()}
}

// Viper exposes the underlying viper instance so the CLI can bind flags
func (m *Manager) Viper() *viper.Viper {
	return m.v
}

// ConfigFileUsed returns the file the last Load read, if any
func (m *Manager) ConfigFileUsed() string {
	return m.v.ConfigFileUsed()
}

// Load reads the configuration for projectRoot. An explicit path must
// exist; otherwise cspack.config.{yaml,yml,json} is looked up in the
// project root and defaults apply when none is found. A .env file in the
// project root is loaded first so it can feed CSPACK_ overrides.
func (m *Manager) Load(projectRoot, explicitPath string) (*types.Config, error) {
	m.root = projectRoot

	if err := godotenv.Load(filepath.Join(projectRoot, envFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	setDefaults(m.v, Default())
	m.v.SetEnvPrefix(EnvPrefix)
	m.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	m.v.AutomaticEnv()

	if explicitPath != "" {
		m.v.SetConfigFile(explicitPath)
	} else {
		m.v.AddConfigPath(projectRoot)
		m.v.SetConfigName(configName)
	}

	if err := m.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicitPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg types.Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := m.ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateConfig validates a configuration. Relative paths are resolved
// against the project root of the last Load, or the working directory.
func (m *Manager) ValidateConfig(cfg *types.Config) error {
	if cfg.Version != types.ConfigVersion {
		return fmt.Errorf("unsupported config version: %s", cfg.Version)
	}

	if cfg.Paths.ComponentDir == "" {
		return fmt.Errorf("paths.componentDir is required")
	}
	if cfg.Paths.Manifest == "" {
		return fmt.Errorf("paths.manifest is required")
	}
	if cfg.Paths.OutputDir == "" {
		return fmt.Errorf("paths.outputDir is required")
	}
	componentDir, err := m.resolve(cfg.Paths.ComponentDir)
	if err != nil {
		return err
	}
	outputDir, err := m.resolve(cfg.Paths.OutputDir)
	if err != nil {
		return err
	}
	if utils.IsWithin(componentDir, outputDir) {
		return fmt.Errorf("paths.outputDir must be outside the component folder")
	}

	if cfg.Styles.Entry == "" || strings.HasPrefix(cfg.Styles.Entry, "_") {
		return fmt.Errorf("styles.entry must be set and must not start with '_': %q", cfg.Styles.Entry)
	}
	switch cfg.Styles.CompileErrorPolicy {
	case types.CompileErrorPolicyLog, types.CompileErrorPolicyFail:
	default:
		return fmt.Errorf("invalid styles.compileErrorPolicy: %q", cfg.Styles.CompileErrorPolicy)
	}

	if len(cfg.Scripts.Sources) == 0 {
		return fmt.Errorf("scripts.sources must list at least one script")
	}
	for i, src := range cfg.Scripts.Sources {
		if strings.TrimSpace(src) == "" {
			return fmt.Errorf("scripts.sources[%d] is empty", i)
		}
	}
	if cfg.Scripts.OutputFile == "" {
		return fmt.Errorf("scripts.outputFile is required")
	}

	if _, err := utils.NewExclusionMatcher(cfg.Archive.Exclude); err != nil {
		return fmt.Errorf("archive.exclude: %w", err)
	}
	if _, err := utils.NewExclusionMatcher(cfg.Watch.Ignore); err != nil {
		return fmt.Errorf("watch.ignore: %w", err)
	}
	if cfg.Watch.SettlingDelay < 0 {
		return fmt.Errorf("watch.settlingDelay must not be negative")
	}

	switch cfg.Logging.Level {
	case types.LogLevelDebug, types.LogLevelInfo, types.LogLevelWarn, types.LogLevelError:
	default:
		return fmt.Errorf("invalid logging.level: %q", cfg.Logging.Level)
	}

	return nil
}

// Marshal renders a configuration as YAML
func Marshal(cfg *types.Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// WriteDefault writes the default configuration to path. An existing file
// is only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force && utils.FileExists(path) {
		return fmt.Errorf("%s already exists (use --force to overwrite)", filepath.Base(path))
	}

	data, err := Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	return utils.WriteFileAtomic(path, 0o644, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

func (m *Manager) resolve(path string) (string, error) {
	root := m.root
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(utils.ResolvePath(root, path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return abs, nil
}

func setDefaults(v *viper.Viper, d *types.Config) {
	v.SetDefault("version", d.Version)

	v.SetDefault("paths.componentDir", d.Paths.ComponentDir)
	v.SetDefault("paths.manifest", d.Paths.Manifest)
	v.SetDefault("paths.outputDir", d.Paths.OutputDir)

	v.SetDefault("styles.dir", d.Styles.Dir)
	v.SetDefault("styles.entry", d.Styles.Entry)
	v.SetDefault("styles.output", d.Styles.Output)
	v.SetDefault("styles.commonPartial", d.Styles.CommonPartial)
	v.SetDefault("styles.compiler", d.Styles.Compiler)
	v.SetDefault("styles.compileErrorPolicy", string(d.Styles.CompileErrorPolicy))

	v.SetDefault("scripts.sources", d.Scripts.Sources)
	v.SetDefault("scripts.outputDir", d.Scripts.OutputDir)
	v.SetDefault("scripts.outputFile", d.Scripts.OutputFile)

	v.SetDefault("validator.command", d.Validator.Command)

	v.SetDefault("archive.exclude", d.Archive.Exclude)

	v.SetDefault("watch.settlingDelay", d.Watch.SettlingDelay)
	v.SetDefault("watch.ignore", d.Watch.Ignore)

	v.SetDefault("notifications.enabled", d.Notifications.Enabled)
	v.SetDefault("notifications.successSound", d.Notifications.SuccessSound)
	v.SetDefault("notifications.failureSound", d.Notifications.FailureSound)

	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.level", string(d.Logging.Level))

	v.SetDefault("metrics.file", d.Metrics.File)
}
