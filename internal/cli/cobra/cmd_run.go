package cobra

import (
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <proposal-id>",
		Short: "Fetch, resolve, build and verify one proposal",
		Long: `Run every stage for one proposal.

Arguments:
  proposal-id    governance proposal id

Behavior:
  - proposals that do not install code, or that lack a commit reference or
    expected hash, are skipped (exit 0, nothing recorded)
  - the proposal is recorded as pending before the build starts
  - the verdict (verified, failed or error) is written to the state file
  - a Markdown report is appended to the step summary and printed
  - exits 0 only when the proposal is verified`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProposalID(cmd, args[0])
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			e, err := newEnv(ctx, cmd, true)
			if err != nil {
				return err
			}
			rep, err := e.pipe.Run(ctx, id)
			if rep.Skipped != nil {
				printSkipped(cmd.OutOrStdout(), rep.Skipped)
				return nil
			}
			if rep.Result.Status != "" {
				writeReport(cmd, e, rep.ReportInput())
			}
			return err
		},
	}

	return cmd
}
