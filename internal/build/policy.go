package build

import "strings"

// Policy decides what a non-zero exit from a full-build command means.
type Policy string

const (
	// PolicyTolerant logs a warning and continues; the locator and
	// verifier make the final call.
	PolicyTolerant Policy = "tolerant"
	// PolicyFatal aborts the full build.
	PolicyFatal Policy = "fatal"
)

// fatalPrefix marks a plan command as fatal regardless of the default.
const fatalPrefix = "!"

// Step is one full-build command with its failure policy.
type Step struct {
	Command string
	Policy  Policy
}

// Steps applies the default policy to plan commands. A leading "!" forces
// PolicyFatal and is stripped from the command.
func Steps(commands []string, tolerant bool) []Step {
	def := PolicyFatal
	if tolerant {
		def = PolicyTolerant
	}
	steps := make([]Step, 0, len(commands))
	for _, c := range commands {
		c = strings.TrimSpace(c)
		p := def
		if strings.HasPrefix(c, fatalPrefix) {
			p = PolicyFatal
			c = strings.TrimSpace(strings.TrimPrefix(c, fatalPrefix))
		}
		if c == "" {
			continue
		}
		steps = append(steps, Step{Command: c, Policy: p})
	}
	return steps
}
