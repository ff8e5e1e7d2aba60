package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/NielsdaWheelz/wasmverify/internal/state"
)

func TestFormatStateRows(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := state.Data{
		LastCheckedTimestamp: now.Add(-2 * time.Hour).Unix(),
		Proposals: map[string]state.Entry{
			"134568": {Status: state.StatusPending, Timestamp: now.Add(-30 * time.Second).Unix(), Title: "Upgrade registry"},
			"134567": {
				Status:               state.StatusFailed,
				Timestamp:            now.Add(-3 * time.Hour).Unix(),
				ExpectedArtifactHash: "9a8a",
				HashMatch:            true,
				ExpectedArgHash:      "e3b0",
				ArgHashMatch:         false,
				Title:                strings.Repeat("x", 60),
			},
			"134569": {Status: state.StatusVerified, ExpectedArtifactHash: "aa", HashMatch: true, ArgHashMatch: true},
		},
	}

	rows := FormatStateRows(d, now)
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d", len(rows))
	}
	if rows[0].ID != "134567" || rows[1].ID != "134568" || rows[2].ID != "134569" {
		t.Errorf("rows not ascending: %+v", rows)
	}

	failed := rows[0]
	if failed.Wasm != "match" || failed.Arg != "MISMATCH" || failed.Updated != "3 hours ago" {
		t.Errorf("failed row = %+v", failed)
	}
	if len([]rune(failed.Title)) != TitleMaxLen || !strings.HasSuffix(failed.Title, "…") {
		t.Errorf("title not truncated: %q", failed.Title)
	}

	pending := rows[1]
	if pending.Wasm != "-" || pending.Arg != "-" || pending.Updated != "just now" {
		t.Errorf("pending row = %+v", pending)
	}

	verified := rows[2]
	if verified.Arg != "n/a" || verified.Title != TitleUntitled || verified.Updated != "" {
		t.Errorf("verified row = %+v", verified)
	}

	var buf bytes.Buffer
	if err := WriteStateTable(&buf, rows, d.LastCheckedTimestamp, now); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "PROPOSAL  STATUS    WASM   ARG       UPDATED      TITLE\n") {
		t.Errorf("header:\n%s", out)
	}
	if !strings.Contains(out, "last monitor pass: 2 hours ago") {
		t.Errorf("missing last pass:\n%s", out)
	}
}

func TestWriteStateTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteStateTable(&buf, nil, 0, time.Now()); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "no proposals recorded\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{time.Minute, "1 min ago"},
		{5 * time.Minute, "5 mins ago"},
		{time.Hour, "1 hour ago"},
		{25 * time.Hour, "1 day ago"},
		{3 * 24 * time.Hour, "3 days ago"},
		{30 * 24 * time.Hour, "2026-01-30"},
	}
	for _, tt := range tests {
		if got := formatRelativeTime(now.Add(-tt.ago), now); got != tt.want {
			t.Errorf("formatRelativeTime(-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}
}
