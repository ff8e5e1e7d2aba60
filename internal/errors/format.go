package errors

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// PrintOptions controls error output formatting.
type PrintOptions struct {
	// Verbose enables detailed error output with more context keys and longer tails.
	Verbose bool

	// Tailer provides output tail lines for build failures.
	// If nil, PrintWithOptions reads the build log directly (bounded I/O).
	Tailer func(logPath string, maxLines int) ([]string, error)
}

// Context key whitelist (default mode, in order)
var defaultContextKeys = []string{
	"op",
	"proposal_id",
	"run_id",
	"repo",
	"commit",
	"strategy",
	"target",
	"command",
	"exit_code",
	"artifact",
	"expected",
	"actual",
	"log",
}

// Additional context keys for verbose mode
var verboseContextKeys = []string{
	"op",
	"proposal_id",
	"run_id",
	"repo",
	"profile",
	"commit",
	"checkout",
	"strategy",
	"target",
	"command",
	"exit_code",
	"artifact",
	"declared_path",
	"expected",
	"actual",
	"path",
	"state_file",
	"log",
	"hint",
}

const (
	defaultMaxLines = 20
	defaultMaxChars = 8 * 1024
	verboseMaxLines = 100
	verboseMaxChars = 64 * 1024

	maxValueLen      = 256
	maxExtraValueLen = 128
	maxOutputLineLen = 512
)

// Format formats an error for display without I/O.
// It never reads the build log; PrintWithOptions adds the tail.
func Format(err error, opts PrintOptions) string {
	if err == nil {
		return ""
	}

	var sb strings.Builder

	ve, ok := AsVerifyError(err)
	if !ok {
		// Plain errors print as-is
		sb.WriteString(err.Error())
		sb.WriteString("\n")
		return sb.String()
	}

	// Line 1: error_code
	fmt.Fprintf(&sb, "error_code: %s\n", ve.Code)

	// Line 2: message, with the cause flattened onto the same line
	sb.WriteString(ve.Msg)
	if ve.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(sanitizeValue(ve.Cause.Error(), maxValueLen))
	}
	sb.WriteString("\n\n")

	// Context block: whitelisted keys in fixed order
	keys := defaultContextKeys
	if opts.Verbose {
		keys = verboseContextKeys
	}
	printed := writeContext(&sb, ve.Details, keys)

	// Verbose mode lists everything else under extra:
	if opts.Verbose {
		writeExtra(&sb, ve.Details, printed)
	}

	// Hint, then try: lines last so the log tail can slot in above them
	if hint := ve.Details["hint"]; hint != "" {
		fmt.Fprintf(&sb, "\nhint: %s\n", hint)
	}
	for _, try := range deriveTryLines(ve) {
		fmt.Fprintf(&sb, "try: %s\n", try)
	}

	return sb.String()
}

// writeContext prints each key of keys present in details and returns the
// set that was printed. hint is skipped; Format prints it separately.
func writeContext(sb *strings.Builder, details map[string]string, keys []string) map[string]bool {
	printed := make(map[string]bool, len(keys))
	for _, key := range keys {
		val := details[key]
		if val == "" || key == "hint" {
			continue
		}
		printed[key] = true
		fmt.Fprintf(sb, "%s: %s\n", key, sanitizeValue(val, maxValueLen))
	}
	return printed
}

// writeExtra prints the details not already shown, sorted, under "extra:".
// stderr is left out; the log tail covers it.
func writeExtra(sb *strings.Builder, details map[string]string, printed map[string]bool) {
	var keys []string
	for key, val := range details {
		if printed[key] || key == "hint" || key == "stderr" || val == "" {
			continue
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return
	}
	sort.Strings(keys)
	sb.WriteString("\nextra:\n")
	for _, key := range keys {
		fmt.Fprintf(sb, "  %s: %s\n", key, sanitizeValue(details[key], maxExtraValueLen))
	}
}

// PrintWithOptions writes a formatted error to w with the given options.
// Build failures that carry a log path get the tail of build.log appended
// (bounded I/O).
func PrintWithOptions(w io.Writer, err error, opts PrintOptions) {
	if err == nil {
		return
	}

	output := Format(err, opts)

	if ve, ok := AsVerifyError(err); ok && isBuildFailure(ve) {
		maxLines, maxChars := tailLimits(opts.Verbose)

		// Injected tailer wins; otherwise read the log directly
		var lines []string
		var tailErr error
		if opts.Tailer != nil {
			lines, tailErr = opts.Tailer(ve.Details["log"], maxLines)
		} else {
			lines, tailErr = readTail(ve.Details["log"], maxLines, maxChars)
		}

		// A missing or empty log just means no output block
		if tailErr == nil && len(lines) > 0 {
			output = insertOutputBlock(output, lines, maxLines)
		}
	}

	_, _ = io.WriteString(w, output)
}

// tailLimits returns the line and byte budget for the log tail.
func tailLimits(verbose bool) (maxLines, maxChars int) {
	if verbose {
		return verboseMaxLines, verboseMaxChars
	}
	return defaultMaxLines, defaultMaxChars
}

// sanitizeValue flattens a value onto one line:
// - trailing whitespace trimmed
// - CRLF and LF escaped as a literal \n
// - cut to maxLen bytes on a rune boundary, marked with …
func sanitizeValue(val string, maxLen int) string {
	val = strings.TrimRight(val, " \t\r\n")
	val = strings.ReplaceAll(val, "\r\n", "\n")
	val = strings.ReplaceAll(val, "\n", "\\n")

	if len(val) > maxLen {
		return clip(val, maxLen) + "…"
	}
	return val
}

// isBuildFailure reports whether the error came out of the build stage and
// carries a build log worth tailing.
func isBuildFailure(ve *VerifyError) bool {
	switch ve.Code {
	case EFullBuildFailed, EArtifactNotFound, ETargetedBuildFailed:
		return strings.HasSuffix(ve.Details["log"], ".log")
	default:
		return false
	}
}

// readTail reads the last maxLines lines from a file, looking at no more
// than the final maxChars bytes. Terminal escapes and progress-bar
// carriage returns are stripped from each line.
func readTail(path string, maxLines, maxChars int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := stat.Size()
	if size == 0 {
		return nil, nil
	}

	// Only the last maxChars bytes are scanned
	offset := size - int64(maxChars)
	if offset < 0 {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		// docker and bazel redraw progress with \r and colour with ANSI
		line := stripCarriage(StripANSI(strings.TrimRight(scanner.Text(), "\r")))
		if len(line) > maxOutputLineLen {
			line = clip(line, maxOutputLineLen) + "…"
		}
		lines = append(lines, strings.TrimRight(line, " \t\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return lines, nil
}

// insertOutputBlock places the log tail before the hint line, else before
// the first try: line, else at the end.
func insertOutputBlock(output string, lines []string, maxLines int) string {
	var block strings.Builder
	if len(lines) >= maxLines {
		fmt.Fprintf(&block, "\noutput (last %d lines):\n", len(lines))
	} else {
		fmt.Fprintf(&block, "\noutput (%d lines):\n", len(lines))
	}
	for _, line := range lines {
		block.WriteString("  ")
		block.WriteString(line)
		block.WriteString("\n")
	}

	for _, marker := range []string{"\nhint: ", "\ntry: "} {
		if idx := strings.Index(output, marker); idx >= 0 {
			return output[:idx] + block.String() + output[idx:]
		}
	}
	return output + block.String()
}

// deriveTryLines returns actionable suggestions based on error code.
func deriveTryLines(ve *VerifyError) []string {
	if ve == nil {
		return nil
	}

	var lines []string
	switch ve.Code {
	case EToolNotInstalled:
		lines = append(lines, "wasmverify doctor")
	case EMalformedExtraction, EExtractionFailed:
		if id := ve.Details["proposal_id"]; id != "" {
			lines = append(lines, fmt.Sprintf("wasmverify resolve %s", id))
		}
	case EArtifactNotFound, EFullBuildFailed:
		if id := ve.Details["proposal_id"]; id != "" {
			lines = append(lines, fmt.Sprintf("wasmverify build %s --verbose", id))
		}
	}
	return lines
}

// GetHint extracts the hint from an error's details, if present.
func GetHint(err error) string {
	ve, ok := AsVerifyError(err)
	if !ok || ve.Details == nil {
		return ""
	}
	return ve.Details["hint"]
}
