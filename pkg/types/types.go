// Package types provides core types and configurations for cspack
package types

import (
	"encoding/json"
	"time"
)

// ConfigVersion is the only configuration schema version understood by cspack
const ConfigVersion = "1.0"

// CompileErrorPolicy controls what happens when the style compiler reports an error
type CompileErrorPolicy string

const (
	// CompileErrorPolicyLog logs compiler failures and lets the pipeline continue
	CompileErrorPolicyLog CompileErrorPolicy = "log"
	// CompileErrorPolicyFail aborts the pipeline on compiler failures
	CompileErrorPolicyFail CompileErrorPolicy = "fail"
)

// LogLevel represents logging verbosity levels
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// RunStatus is the persisted status of a pipeline
type RunStatus string

const (
	RunStatusIdle      RunStatus = "idle"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

// IsTerminal reports whether the status ends a run
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusCanceled
}

// Stage names used in logs and metrics
const (
	StageStyles   = "styles"
	StageScripts  = "scripts"
	StageValidate = "validate"
	StageArchive  = "archive"
)

// PathsConfig describes the component set layout relative to the project root
type PathsConfig struct {
	ComponentDir string `json:"componentDir" yaml:"componentDir" mapstructure:"componentDir"`
	Manifest     string `json:"manifest" yaml:"manifest" mapstructure:"manifest"`
	OutputDir    string `json:"outputDir" yaml:"outputDir" mapstructure:"outputDir"`
}

// StylesConfig configures the style aggregator
type StylesConfig struct {
	Dir                string             `json:"dir" yaml:"dir" mapstructure:"dir"`
	Entry              string             `json:"entry" yaml:"entry" mapstructure:"entry"`
	Output             string             `json:"output" yaml:"output" mapstructure:"output"`
	CommonPartial      string             `json:"commonPartial" yaml:"commonPartial" mapstructure:"commonPartial"`
	Compiler           []string           `json:"compiler" yaml:"compiler" mapstructure:"compiler"`
	CompileErrorPolicy CompileErrorPolicy `json:"compileErrorPolicy" yaml:"compileErrorPolicy" mapstructure:"compileErrorPolicy"`
}

// ScriptsConfig configures the vendor script bundler.
// Sources is order-significant: later scripts may depend on earlier ones.
type ScriptsConfig struct {
	Sources    []string `json:"sources" yaml:"sources" mapstructure:"sources"`
	OutputDir  string   `json:"outputDir" yaml:"outputDir" mapstructure:"outputDir"`
	OutputFile string   `json:"outputFile" yaml:"outputFile" mapstructure:"outputFile"`
}

// ValidatorConfig configures the external component validator.
// An empty Command restricts validation to the built-in manifest check.
type ValidatorConfig struct {
	Command     []string          `json:"command" yaml:"command" mapstructure:"command"`
	Environment map[string]string `json:"environment,omitempty" yaml:"environment,omitempty" mapstructure:"environment"`
}

// ArchiveConfig configures the archive builder
type ArchiveConfig struct {
	Exclude []string `json:"exclude" yaml:"exclude" mapstructure:"exclude"`
}

// WatchConfig configures dev mode watching
type WatchConfig struct {
	// SettlingDelay is in milliseconds
	SettlingDelay int      `json:"settlingDelay" yaml:"settlingDelay" mapstructure:"settlingDelay"`
	Ignore        []string `json:"ignore" yaml:"ignore" mapstructure:"ignore"`
}

// NotificationConfig represents notification preferences
type NotificationConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	SuccessSound string `json:"successSound,omitempty" yaml:"successSound,omitempty" mapstructure:"successSound"`
	FailureSound string `json:"failureSound,omitempty" yaml:"failureSound,omitempty" mapstructure:"failureSound"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	File  string   `json:"file" yaml:"file" mapstructure:"file"`
	Level LogLevel `json:"level" yaml:"level" mapstructure:"level"`
}

// MetricsConfig configures the Prometheus textfile export
type MetricsConfig struct {
	File string `json:"file" yaml:"file" mapstructure:"file"`
}

// Config represents the main configuration
type Config struct {
	Version       string             `json:"version" yaml:"version" mapstructure:"version"`
	Paths         PathsConfig        `json:"paths" yaml:"paths" mapstructure:"paths"`
	Styles        StylesConfig       `json:"styles" yaml:"styles" mapstructure:"styles"`
	Scripts       ScriptsConfig      `json:"scripts" yaml:"scripts" mapstructure:"scripts"`
	Validator     ValidatorConfig    `json:"validator" yaml:"validator" mapstructure:"validator"`
	Archive       ArchiveConfig      `json:"archive" yaml:"archive" mapstructure:"archive"`
	Watch         WatchConfig        `json:"watch" yaml:"watch" mapstructure:"watch"`
	Notifications NotificationConfig `json:"notifications" yaml:"notifications" mapstructure:"notifications"`
	Logging       LoggingConfig      `json:"logging" yaml:"logging" mapstructure:"logging"`
	Metrics       MetricsConfig      `json:"metrics" yaml:"metrics" mapstructure:"metrics"`
}

// SettlingDelay returns the watch settling delay as a duration
func (c *Config) SettlingDelay() time.Duration {
	return time.Duration(c.Watch.SettlingDelay) * time.Millisecond
}

// Manifest is the component set definition file.
// Only Name is interpreted; the rest is preserved as-is.
type Manifest struct {
	Name string                     `json:"name"`
	Raw  map[string]json.RawMessage `json:"-"`
}

// StageResult describes the outcome of one pipeline stage
type StageResult struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration"`
	Outputs  []string      `json:"outputs,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
}
