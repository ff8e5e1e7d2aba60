package verify

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
)

// ReportInput is the context shown alongside a Result.
type ReportInput struct {
	Result   Result
	Title    string
	Commit   string
	RepoURL  string
	Strategy string
	ForumURL string
}

// Markdown renders a step-summary report. Artifact and argument checks are
// shown as separate rows so partial results stay visible.
func Markdown(in ReportInput) string {
	r := in.Result
	var b strings.Builder

	fmt.Fprintf(&b, "## %s Proposal %d: %s\n\n", verdictIcon(r.Status), r.ProposalID, strings.ToUpper(string(r.Status)))
	if in.Title != "" {
		fmt.Fprintf(&b, "**%s**\n\n", escapeCell(in.Title))
	}
	fmt.Fprintf(&b, "%s\n\n", DeriveSummary(r))

	b.WriteString("| Check | Expected | Actual | Result |\n")
	b.WriteString("|---|---|---|---|\n")
	fmt.Fprintf(&b, "| WASM hash | %s | %s | %s |\n",
		code(r.ExpectedHash), code(r.ActualHash), checkResult(r.ExpectedHash != "", r.HashMatch))
	if r.ArgHashApplicable {
		fmt.Fprintf(&b, "| Argument hash | %s | %s | %s |\n",
			code(r.ExpectedArgHash), code(r.ActualArgHash), checkResult(true, r.ArgHashMatch))
	} else {
		b.WriteString("| Argument hash | _not declared_ | | n/a |\n")
	}
	b.WriteString("\n")

	var meta []string
	if in.RepoURL != "" {
		meta = append(meta, fmt.Sprintf("- Repository: %s", in.RepoURL))
	}
	if in.Commit != "" {
		meta = append(meta, fmt.Sprintf("- Commit: `%s`", in.Commit))
	}
	if in.Strategy != "" {
		meta = append(meta, fmt.Sprintf("- Build strategy: %s", in.Strategy))
	}
	if in.ForumURL != "" {
		meta = append(meta, fmt.Sprintf("- Discussion: %s", in.ForumURL))
	}
	if r.RunID != "" {
		meta = append(meta, fmt.Sprintf("- Run: `%s`", r.RunID))
	}
	if len(meta) > 0 {
		b.WriteString(strings.Join(meta, "\n"))
		b.WriteString("\n")
	}
	if r.Error != "" && r.Status != StatusVerified {
		fmt.Fprintf(&b, "\n> %s: %s\n", r.ErrorCode, r.Error)
	}
	return b.String()
}

// Render formats Markdown for a terminal of the given width.
func Render(md string, width int) (string, error) {
	if width <= 0 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		return "", err
	}
	return r.Render(md)
}

// AppendSummary appends md to a CI step-summary file. An empty path is a no-op.
func AppendSummary(path, md string) error {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(md + "\n"); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func verdictIcon(s Status) string {
	switch s {
	case StatusVerified:
		return "✅"
	case StatusFailed:
		return "❌"
	}
	return "⚠️"
}

func checkResult(present, match bool) string {
	switch {
	case !present:
		return "missing"
	case match:
		return "match"
	}
	return "MISMATCH"
}

func code(s string) string {
	if s == "" {
		return "_none_"
	}
	return "`" + s + "`"
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
