package cobra

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMonitorCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Select newly eligible proposals",
		Long: `List recent proposals and print the ids that should be verified, one per line.

A proposal is eligible when its topic is tracked (monitor.topics), its id is at
least monitor.min_proposal_id, and it is not already in the state file.
Selected ids are recorded as pending so the next pass skips them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			e, err := newEnv(ctx, cmd, false)
			if err != nil {
				return err
			}
			if limit > 0 {
				e.pipe.Config.Monitor.Limit = limit
			}
			ids, err := e.pipe.Monitor(ctx)
			if err != nil {
				return err
			}
			for _, id := range ids {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "number of recent proposals to list (default: monitor.limit)")

	return cmd
}
