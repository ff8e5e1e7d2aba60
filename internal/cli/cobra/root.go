// Package cobra provides the Cobra-based CLI command tree for wasmverify.
package cobra

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/NielsdaWheelz/wasmverify/internal/version"
)

// GlobalOpts holds global options parsed before subcommand dispatch.
type GlobalOpts struct {
	Verbose    bool
	ConfigFile string
	EnvFile    string
	WorkDir    string
	OutputDir  string
	StateFile  string
}

// globalOpts stores the parsed global options for access by subcommands.
var globalOpts GlobalOpts

// GetGlobalOpts returns the parsed global options.
func GetGlobalOpts() GlobalOpts {
	return globalOpts
}

// NewRootCmd creates the root cobra command for wasmverify.
func NewRootCmd() *cobra.Command {
	globalOpts = GlobalOpts{}
	rootCmd := &cobra.Command{
		Use:   "wasmverify",
		Short: "Reproducible-build verification for canister upgrade proposals",
		Long: `wasmverify - reproducible-build verification for canister upgrade proposals

wasmverify reads a governance proposal that installs canister code, works out
how to rebuild the module from source, builds it at the referenced commit and
checks that the artifact (and, when declared, the encoded upgrade argument)
hashes to exactly what the proposal claims.

Stages can run together ("run") or separately ("resolve", "build", "verify")
with data handed over through fixed files in the output directory.`,
		Version:       version.FullVersion(),
		SilenceErrors: true, // main.go prints errors
		SilenceUsage:  true,
	}

	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&globalOpts.Verbose, "verbose", false, "debug logging and detailed error context")
	pf.StringVar(&globalOpts.ConfigFile, "config", "", "config file (default: ./wasmverify.yaml or ~/.config/wasmverify/)")
	pf.StringVar(&globalOpts.EnvFile, "env-file", ".env", "dotenv file loaded before the environment")
	pf.StringVar(&globalOpts.WorkDir, "work-dir", "", "checkout root (overrides work_dir)")
	pf.StringVar(&globalOpts.OutputDir, "output-dir", "", "output directory (overrides output_dir)")
	pf.StringVar(&globalOpts.StateFile, "state-file", "", "verification state file (overrides state_file)")

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(
		newRunCmd(),
		newResolveCmd(),
		newBuildCmd(),
		newVerifyCmd(),
		newMonitorCmd(),
		newStateCmd(),
		newDoctorCmd(),
		newCompletionCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

// Execute runs the root command with the given output writers.
// This is the main entry point from main.go.
func Execute(stdout, stderr io.Writer) error {
	rootCmd := NewRootCmd()
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	return rootCmd.Execute()
}
