package cli

import (
	"fmt"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/cspack/cspack/internal/state"
	"github.com/cspack/cspack/pkg/logger"
	"github.com/cspack/cspack/pkg/types"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func (c *CLI) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last recorded run of each pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := filepath.Abs(c.config.ProjectRoot)
			if err != nil {
				return fmt.Errorf("failed to resolve project root: %w", err)
			}

			states, err := state.NewStore(root, logger.Nop()).Discover()
			if err != nil {
				return err
			}
			if len(states) == 0 {
				c.printInfo("No runs recorded yet")
				return nil
			}

			names := make([]string, 0, len(states))
			for name := range states {
				names = append(names, name)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PIPELINE\tSTATUS\tLAST RUN\tRUNS\tFAILURES\tDETAIL")
			for _, name := range names {
				st := states[name]
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
					name, statusLabel(st), lastRun(st), st.RunCount, st.FailureCount, detail(st))
			}
			return w.Flush()
		},
	}
}

func statusLabel(st *state.RunState) string {
	switch {
	case state.IsActive(st):
		return color.CyanString("watching (pid %d)", st.ProcessID)
	case st.Status == types.RunStatusFailed:
		return color.RedString(string(st.Status))
	case st.Status == types.RunStatusSucceeded:
		return color.GreenString(string(st.Status))
	default:
		return string(st.Status)
	}
}

func lastRun(st *state.RunState) string {
	if st.LastRunTime.IsZero() {
		return "-"
	}
	return humanize.Time(st.LastRunTime)
}

func detail(st *state.RunState) string {
	switch {
	case st.LastError != "":
		return st.LastError
	case st.LastVerdict != nil && !*st.LastVerdict:
		return "last validation failed"
	case st.Archive != "":
		return fmt.Sprintf("%s (%s)", filepath.Base(st.Archive), humanize.Bytes(uint64(st.ArchiveSize)))
	case st.LastVerdict != nil:
		return "last validation passed"
	default:
		return ""
	}
}
