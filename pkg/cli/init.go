package cli

import (
	"fmt"
	"path/filepath"

	"github.com/cspack/cspack/pkg/config"
	"github.com/spf13/cobra"
)

func (c *CLI) newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Write ` + config.FileName + ` with the default paths, vendor scripts and
style settings into the project root.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := filepath.Abs(c.config.ProjectRoot)
			if err != nil {
				return fmt.Errorf("failed to resolve project root: %w", err)
			}

			path := filepath.Join(root, config.FileName)

			if err := config.WriteDefault(path, force); err != nil {
				return err
			}
			c.printSuccess(fmt.Sprintf("Created %s", path))
			c.printInfo("Edit scripts.sources to match your installed vendor packages")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing configuration")
	return cmd
}
