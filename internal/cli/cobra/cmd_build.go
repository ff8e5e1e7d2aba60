package cobra

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBuildCmd() *cobra.Command {
	var skipTargeted bool
	var noDeescalate bool

	cmd := &cobra.Command{
		Use:   "build <proposal-id>",
		Short: "Check out the commit and build the artifact from plan.json",
		Long: `Check out the commit and build the artifact described by plan.json.

Arguments:
  proposal-id    governance proposal id (names the checkout directory)

Behavior:
  - clones the repository into <work_dir>/proposal-<id>, replacing any
    previous checkout, and checks out the exact commit
  - when running as root, builds as the unprivileged build_user
  - for the large monorepo a targeted build is tried first; any failure falls
    back to the full command sequence
  - copies the artifact to <output_dir>/artifact.wasm[.gz] and writes
    <output_dir>/outcome.json; the build log is <output_dir>/build.log
  - exits non-zero when no artifact was produced`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProposalID(cmd, args[0])
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			e, err := newEnv(ctx, cmd, false)
			if err != nil {
				return err
			}
			if skipTargeted {
				e.pipe.Config.Build.SkipTargeted = true
			}
			if noDeescalate {
				e.pipe.Deescalator = nil
			}

			out, err := e.pipe.Build(ctx, id)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "strategy: %s\n", out.Strategy)
			if out.Target != "" {
				_, _ = fmt.Fprintf(w, "target: %s\n", out.Target)
			}
			_, _ = fmt.Fprintf(w, "artifact: %s\n", out.ArtifactPath)
			_, _ = fmt.Fprintf(w, "source: %s\n", out.SourcePath)
			_, _ = fmt.Fprintf(w, "log: %s\n", out.LogPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipTargeted, "skip-targeted", false, "go straight to the full build")
	cmd.Flags().BoolVar(&noDeescalate, "no-deescalate", false, "run build commands as the current user even when root")

	return cmd
}
