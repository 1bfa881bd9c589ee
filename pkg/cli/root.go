// Package cli provides the command-line interface for cspack
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cspack/cspack/pkg/config"
	"github.com/cspack/cspack/pkg/logger"
	"github.com/cspack/cspack/pkg/types"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// CLI encapsulates the command tree and its output writers
type CLI struct {
	config   *Config
	rootCmd  *cobra.Command
	logger   logger.Logger
	output   io.Writer
	errorOut io.Writer
}

// session is the loaded state one command runs with
type session struct {
	root string
	cfg  *types.Config
	log  logger.Logger
}

// NewCLI creates a new CLI instance with the given configuration
func NewCLI(cfg *Config) *CLI {
	if cfg == nil {
		cfg = NewConfig()
	}

	c := &CLI{
		config:   cfg,
		output:   os.Stdout,
		errorOut: os.Stderr,
	}

	c.setupCommands()
	return c
}

// NewCLIWithOutput creates a CLI with custom output writers
func NewCLIWithOutput(cfg *Config, output, errorOut io.Writer) *CLI {
	c := NewCLI(cfg)
	c.output = output
	c.errorOut = errorOut
	c.rootCmd.SetOut(output)
	c.rootCmd.SetErr(errorOut)
	return c
}

// Execute runs the CLI with the given arguments
func (c *CLI) Execute(args []string) error {
	return c.ExecuteContext(context.Background(), args)
}

// ExecuteContext runs the CLI with context support
func (c *CLI) ExecuteContext(ctx context.Context, args []string) error {
	c.rootCmd.SetArgs(args)
	return c.rootCmd.ExecuteContext(ctx)
}

// Execute runs the CLI against os.Args
func Execute(version string) error {
	cfg := NewConfig()
	cfg.Version = version

	c := NewCLI(cfg)
	err := c.Execute(os.Args[1:])
	if err != nil {
		c.printError(err.Error())
	}
	return err
}

func (c *CLI) setupCommands() {
	c.rootCmd = &cobra.Command{
		Use:   "cspack",
		Short: "Package component sets for upload",
		Long: `cspack prepares a folder of web components for upload.

It aggregates the component styles into a single entry stylesheet, bundles
the vendor scripts, validates the component folder and zips it into an
archive named after the component set.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	c.setupFlags()

	c.rootCmd.Version = c.config.Version
	c.rootCmd.SetVersionTemplate("cspack v{{.Version}}\n")

	c.rootCmd.AddCommand(c.newBuildCmd())
	c.rootCmd.AddCommand(c.newDevCmd())
	c.rootCmd.AddCommand(c.newValidateCmd())
	c.rootCmd.AddCommand(c.newStatusCmd())
	c.rootCmd.AddCommand(c.newInitCmd())
	c.rootCmd.AddCommand(c.newVersionCmd())
}

func (c *CLI) setupFlags() {
	flags := c.rootCmd.PersistentFlags()

	flags.StringVar(&c.config.ConfigFile, "config", "", "config file (default: "+config.FileName+")")
	flags.StringVar(&c.config.ProjectRoot, "root", ".", "project root directory")
	flags.StringVarP(&c.config.Verbosity, "verbosity", "v", "", "log level (debug, info, warn, error)")
	flags.StringVar(&c.config.LogFile, "log-file", "", "append logs to this file")
}

// prepare loads the configuration and creates the logger. It runs per
// command so init and version work without a valid config.
func (c *CLI) prepare() (*session, error) {
	root, err := filepath.Abs(c.config.ProjectRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}

	cfg, err := config.NewManager().Load(root, c.config.ConfigFile)
	if err != nil {
		return nil, err
	}

	level := c.config.Verbosity
	if level == "" {
		level = string(cfg.Logging.Level)
	}
	logFile := c.config.LogFile
	if logFile == "" {
		logFile = cfg.Logging.File
	}
	if logFile != "" && !filepath.IsAbs(logFile) {
		logFile = filepath.Join(root, logFile)
	}

	if c.output == os.Stdout {
		c.logger = logger.CreateLogger(logFile, level)
	} else {
		c.logger = logger.CreateLoggerWithOutput(level, c.output)
	}

	return &session{root: root, cfg: cfg, log: c.logger}, nil
}

func (c *CLI) printSuccess(message string) {
	fmt.Fprintf(c.output, "%s %s\n", color.GreenString("[cspack]"), message)
}

func (c *CLI) printError(message string) {
	fmt.Fprintf(c.errorOut, "%s %s\n", color.RedString("[cspack]"), message)
}

func (c *CLI) printInfo(message string) {
	fmt.Fprintf(c.output, "%s %s\n", color.CyanString("[cspack]"), message)
}
