package cli

import (
	"github.com/cspack/cspack/internal/engine"
	"github.com/cspack/cspack/pkg/process"
	"github.com/spf13/cobra"
)

func (c *CLI) newDevCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dev",
		Short: "Generate assets and re-validate on every change",
		Long: `Aggregate the styles and bundle the vendor scripts once, then watch the
component folder and re-run the validator after each settled batch of
changes. Validation failures are reported and watching continues.
Press Ctrl+C to stop; metrics are written on exit when metrics.file is set.`,
		Args: cobra.NoArgs,
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

			m := process.NewManager(s.log)
			m.RegisterShutdownHandler(func() { c.writeMetrics(s, deps.Metrics) })

			ctx, stop := m.WithShutdown(cmd.Context())
			defer stop()

			return p.Dev(ctx)
		},
	}
}
