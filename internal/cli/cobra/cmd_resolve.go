package cobra

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/NielsdaWheelz/wasmverify/internal/proposal"
)

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <proposal-id>",
		Short: "Fetch a proposal and extract its build plan",
		Long: `Fetch a proposal and extract its build plan.

Arguments:
  proposal-id    governance proposal id

Behavior:
  - writes <output_dir>/proposal.json and <output_dir>/plan.json
  - a proposal that is not a code install, or lacks a commit or expected hash,
    prints "skipped: <code>" and writes nothing (exit 0)
  - malformed extraction output is fatal (E_MALFORMED_EXTRACTION); no default
    plan is ever produced`,
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
			_, bp, err := e.pipe.Resolve(ctx, id)
			if proposal.IsEarlyExit(err) {
				printSkipped(cmd.OutOrStdout(), err)
				return nil
			}
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "repo_url: %s\n", bp.RepoURL)
			_, _ = fmt.Fprintf(w, "commit: %s\n", bp.Commit)
			_, _ = fmt.Fprintf(w, "profile: %s\n", bp.Profile)
			_, _ = fmt.Fprintf(w, "artifact_path: %s\n", bp.ArtifactPath)
			_, _ = fmt.Fprintf(w, "build_commands: %s\n", strings.Join(bp.Commands, " && "))
			_, _ = fmt.Fprintf(w, "plan: %s\n", e.cfg.PlanPath())
			return nil
		},
	}

	return cmd
}
