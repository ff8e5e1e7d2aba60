// Command wasmverify rebuilds the canister module a governance proposal
// installs and checks it against the proposal's declared hashes.
package main

import (
	"os"

	"github.com/NielsdaWheelz/wasmverify/internal/cli/cobra"
	"github.com/NielsdaWheelz/wasmverify/internal/errors"
)

func main() {
	err := cobra.Execute(os.Stdout, os.Stderr)
	if err != nil {
		// Use verbose mode if --verbose global flag was set
		opts := errors.PrintOptions{
			Verbose: cobra.GetGlobalOpts().Verbose,
		}
		errors.PrintWithOptions(os.Stderr, err, opts)
		os.Exit(errors.ExitCode(err))
	}
}
