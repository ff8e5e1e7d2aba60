package cobra

import (
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/NielsdaWheelz/wasmverify/internal/exec"
	"github.com/NielsdaWheelz/wasmverify/internal/pipeline"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites and show resolved paths",
		Long: `Check prerequisites and show resolved paths.
Verifies bash is present and reports git, the argument encoder and the
targeted build tool, plus whether builds will be de-escalated (superuser).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			report, err := pipeline.Doctor(ctx, exec.NewRealRunner(), cfg, unix.Geteuid() == 0)
			pipeline.WriteDoctorReport(cmd.OutOrStdout(), report)
			return err
		},
	}

	return cmd
}
