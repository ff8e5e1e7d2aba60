package plan

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxSummaryChars bounds the summary sent upstream.
const maxSummaryChars = 12000

const systemPrompt = `You extract reproducible build instructions from Internet Computer governance proposals.
Respond with a single JSON object and nothing else. Use exactly these keys:
  "repository_url": string, the git repository that contains the source
  "build_commands": array of strings, shell commands run from the repository root, in order
  "wasm_output_path": string, path of the built wasm module relative to the repository root
  "upgrade_args": string or null, the Candid literal passed as upgrade arguments
  "did_file": string or null, path of the .did file describing the arguments
  "arg_type": string or null, the Candid type of the arguments
Do not include git clone, git fetch or git checkout commands. Use null for anything the text does not state.`

func buildPrompt(in Input) string {
	summary := clip(in.Summary, maxSummaryChars)
	var b strings.Builder
	fmt.Fprintf(&b, "Proposal title: %s\n", strings.TrimSpace(in.Title))
	if in.SourceURL != "" {
		fmt.Fprintf(&b, "Proposal source URL: %s\n", in.SourceURL)
	}
	fmt.Fprintf(&b, "Target commit: %s\n\n", in.Commit)
	b.WriteString("Proposal summary:\n")
	b.WriteString(summary)
	b.WriteString("\n")
	return b.String()
}

// clip cuts s to at most n bytes without splitting a UTF-8 sequence.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
