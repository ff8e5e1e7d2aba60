// Package render provides output formatting utilities for wasmverify commands.
package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/NielsdaWheelz/wasmverify/internal/state"
)

// TitleMaxLen is the maximum display length for a proposal title.
const TitleMaxLen = 50

// TitleUntitled is displayed for entries without a title.
const TitleUntitled = "<untitled>"

// StateRow is one formatted line of the state table.
type StateRow struct {
	ID      string
	Status  string
	Wasm    string
	Arg     string
	Updated string
	Title   string
}

// FormatStateRows converts the state document to display rows, ascending by
// proposal id.
func FormatStateRows(d state.Data, now time.Time) []StateRow {
	ids := d.IDs()
	rows := make([]StateRow, 0, len(ids))
	for _, id := range ids {
		e := d.Proposals[state.Key(id)]
		row := StateRow{
			ID:     state.Key(id),
			Status: string(e.Status),
			Wasm:   matchCell(e.Status, e.ExpectedArtifactHash != "", e.HashMatch),
			Arg:    matchCell(e.Status, e.ExpectedArgHash != "", e.ArgHashMatch),
			Title:  truncateTitle(e.Title),
		}
		if e.Timestamp > 0 {
			row.Updated = formatRelativeTime(time.Unix(e.Timestamp, 0), now)
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteStateTable writes rows as whitespace-aligned columns.
func WriteStateTable(w io.Writer, rows []StateRow, lastChecked int64, now time.Time) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "no proposals recorded")
		return err
	}

	headers := StateRow{ID: "PROPOSAL", Status: "STATUS", Wasm: "WASM", Arg: "ARG", Updated: "UPDATED", Title: "TITLE"}
	widths := columnWidths(append([]StateRow{headers}, rows...))
	for _, row := range append([]StateRow{headers}, rows...) {
		if _, err := fmt.Fprintln(w, formatRow(row, widths)); err != nil {
			return err
		}
	}
	if lastChecked > 0 {
		_, err := fmt.Fprintf(w, "\nlast monitor pass: %s\n", formatRelativeTime(time.Unix(lastChecked, 0), now))
		return err
	}
	return nil
}

// matchCell shows "-" until a terminal verdict exists.
func matchCell(s state.Status, declared, match bool) string {
	switch {
	case !s.Terminal():
		return "-"
	case !declared:
		return "n/a"
	case match:
		return "match"
	}
	return "MISMATCH"
}

type colWidths [5]int

func columnWidths(rows []StateRow) colWidths {
	var w colWidths
	for _, r := range rows {
		for i, v := range []string{r.ID, r.Status, r.Wasm, r.Arg, r.Updated} {
			if n := len([]rune(v)); n > w[i] {
				w[i] = n
			}
		}
	}
	return w
}

func formatRow(r StateRow, w colWidths) string {
	line := fmt.Sprintf("%-*s  %-*s  %-*s  %-*s  %-*s  %s",
		w[0], r.ID,
		w[1], r.Status,
		w[2], r.Wasm,
		w[3], r.Arg,
		w[4], r.Updated,
		r.Title,
	)
	return strings.TrimRight(line, " ")
}

// truncateTitle truncates to TitleMaxLen runes, adding an ellipsis if needed.
func truncateTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return TitleUntitled
	}
	runes := []rune(title)
	if len(runes) <= TitleMaxLen {
		return title
	}
	return string(runes[:TitleMaxLen-1]) + "…"
}

// formatRelativeTime formats a time as a human-friendly relative string.
func formatRelativeTime(t time.Time, now time.Time) string {
	diff := now.Sub(t)
	if diff < 0 {
		diff = -diff
	}

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 min ago"
		}
		return fmt.Sprintf("%d mins ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.UTC().Format("2006-01-02")
	}
}
