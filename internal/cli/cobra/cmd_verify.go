package cobra

import (
	"github.com/spf13/cobra"
)

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare the built artifact with the proposal's hashes",
		Long: `Compare the built artifact with the hashes the proposal declares.

Reads <output_dir>/proposal.json, <output_dir>/plan.json and the artifact at
<output_dir>/artifact.wasm[.gz] (or the path recorded in outcome.json).

Behavior:
  - hash comparison is case-insensitive
  - a declared argument hash is checked against the encoded upgrade argument;
    a declared hash with no extracted argument is a failure
  - appends a report to summary_file ($GITHUB_STEP_SUMMARY) and prints it
  - records the verdict in the state file
  - exits 0 only when verified`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			e, err := newEnv(ctx, cmd, false)
			if err != nil {
				return err
			}
			rep, err := e.pipe.Verify(ctx)
			if rep.Result.Status != "" {
				writeReport(cmd, e, rep.ReportInput())
			}
			return err
		},
	}

	return cmd
}
