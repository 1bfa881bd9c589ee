package cli

import (
	"fmt"
	"path/filepath"

	"github.com/cspack/cspack/internal/engine"
	"github.com/cspack/cspack/pkg/logger"
	"github.com/cspack/cspack/pkg/metrics"
	"github.com/spf13/cobra"
)

func (c *CLI) newBuildCmd() *cobra.Command {
	var metricsFile string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Generate assets, validate and archive the component set",
		Long: `Aggregate the styles and bundle the vendor scripts concurrently, then
validate the component folder and write <name>.zip to the output folder.
Any failing stage aborts the build and leaves the previous archive in place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.prepare()
			if err != nil {
				return err
			}
			if metricsFile != "" {
				s.cfg.Metrics.File = metricsFile
			}

			deps, err := engine.NewDependencyFactory(s.root, s.log, s.cfg).
				WithConsole(c.output).
				CreateDefaults()
			if err != nil {
				return err
			}

			p, err := engine.New(s.cfg, s.root, s.log, deps)
			if err != nil {
				return err
			}

			buildErr := p.Build(cmd.Context())
			c.writeMetrics(s, deps.Metrics)
			return buildErr
		},
	}

	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus text-format metrics to this file")
	return cmd
}

func (c *CLI) newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the component folder once",
		Long:  `Run the validator against the component folder. The exit status reflects the verdict.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.prepare()
			if err != nil {
				return err
			}

			deps, err := engine.NewDependencyFactory(s.root, s.log, s.cfg).
				WithConsole(c.output).
				CreateDefaults()
			if err != nil {
				return err
			}

			p, err := engine.New(s.cfg, s.root, s.log, deps)
			if err != nil {
				return err
			}

			if err := p.Validate(cmd.Context()); err != nil {
				return err
			}
			c.printSuccess(fmt.Sprintf("%s is valid", p.ComponentDir()))
			return nil
		},
	}
}

func (c *CLI) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.output, "cspack v%s\n", c.config.Version)
		},
	}
}

// writeMetrics exports the recorder when it keeps a registry and a target
// file is configured. Export failures are logged, never fatal.
func (c *CLI) writeMetrics(s *session, rec metrics.Recorder) {
	prom, ok := rec.(*metrics.PrometheusRecorder)
	if !ok || s.cfg.Metrics.File == "" {
		return
	}

	path := s.cfg.Metrics.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}
	if err := prom.WriteTextfile(path); err != nil {
		s.log.Warn("Failed to write metrics", logger.WithError(err), logger.WithField("path", path))
		return
	}
	s.log.Debug("Wrote metrics", logger.WithField("path", path))
}
