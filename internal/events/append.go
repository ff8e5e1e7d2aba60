// Package events provides the per-run audit trail for wasmverify.
// Events are stored in append-only JSONL files.
package events

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"
)

// SchemaVersion is the events file format version.
const SchemaVersion = "1.0"

// Event names.
const (
	RunStarted          = "run_started"
	PlanResolved        = "plan_resolved"
	CheckoutFinished    = "checkout_finished"
	TargetedStarted     = "targeted_started"
	TargetedFinished    = "targeted_finished"
	FullCommandFinished = "full_command_finished"
	ArtifactLocated     = "artifact_located"
	VerifyFinished      = "verify_finished"
	RunFinished         = "run_finished"
)

// Event represents a single line in events.jsonl.
// This is the public contract for the events file format.
type Event struct {
	SchemaVersion string         `json:"schema_version"`
	Timestamp     string         `json:"timestamp"` // RFC3339
	ProposalID    uint64         `json:"proposal_id"`
	RunID         string         `json:"run_id"`
	Event         string         `json:"event"`
	Data          map[string]any `json:"data,omitempty"`
}

// AppendEvent appends a single event to the events.jsonl file.
// The file is created lazily if it doesn't exist.
// Each event is written as a single JSON line followed by newline.
//
// Best-effort: errors are returned but callers should typically ignore them
// and continue with the main operation.
func AppendEvent(path string, e Event) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	data = append(data, '\n')
	_, err = f.Write(data)
	return err
}

// Recorder stamps and appends events for one run. A nil Recorder discards.
type Recorder struct {
	Path       string
	ProposalID uint64
	RunID      string
	Now        func() time.Time
}

// NewRecorder returns a Recorder writing to path.
func NewRecorder(path string, proposalID uint64, runID string) *Recorder {
	return &Recorder{Path: path, ProposalID: proposalID, RunID: runID, Now: time.Now}
}

// Emit appends an event, ignoring write errors.
func (r *Recorder) Emit(name string, data map[string]any) {
	if r == nil || r.Path == "" {
		return
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	_ = AppendEvent(r.Path, Event{
		SchemaVersion: SchemaVersion,
		Timestamp:     now().UTC().Format(time.RFC3339),
		ProposalID:    r.ProposalID,
		RunID:         r.RunID,
		Event:         name,
		Data:          data,
	})
}

// RunStartedData returns the data map for a run_started event.
func RunStartedData(cmd string) map[string]any {
	return map[string]any{
		"cmd": cmd,
	}
}

// PlanResolvedData returns the data map for a plan_resolved event.
func PlanResolvedData(repoURL, profile string, commands int, artifactPath string) map[string]any {
	data := map[string]any{
		"repo":     repoURL,
		"profile":  profile,
		"commands": commands,
	}
	if artifactPath != "" {
		data["artifact_path"] = artifactPath
	}
	return data
}

// CheckoutFinishedData returns the data map for a checkout_finished event.
func CheckoutFinishedData(commit, dir string, durationMS int64) map[string]any {
	return map[string]any{
		"commit":      commit,
		"dir":         dir,
		"duration_ms": durationMS,
	}
}

// TargetedStartedData returns the data map for a targeted_started event.
func TargetedStartedData(target string) map[string]any {
	return map[string]any{
		"target": target,
	}
}

// TargetedFinishedData returns the data map for a targeted_finished event.
// reason is empty on success.
func TargetedFinishedData(ok bool, target string, exitCode int, reason string) map[string]any {
	data := map[string]any{
		"ok":        ok,
		"target":    target,
		"exit_code": exitCode,
	}
	if reason != "" {
		data["reason"] = truncate(reason)
	}
	return data
}

// FullCommandFinishedData returns the data map for a full_command_finished event.
func FullCommandFinishedData(index int, command string, exitCode int, fatal bool, durationMS int64) map[string]any {
	return map[string]any{
		"index":       index,
		"command":     truncate(command),
		"exit_code":   exitCode,
		"fatal":       fatal,
		"duration_ms": durationMS,
	}
}

// ArtifactLocatedData returns the data map for an artifact_located event.
func ArtifactLocatedData(strategy, source, dest string) map[string]any {
	return map[string]any{
		"strategy": strategy,
		"source":   source,
		"artifact": dest,
	}
}

// VerifyFinishedData returns the data map for a verify_finished event.
func VerifyFinishedData(status string, hashMatch, argHashMatch bool, actual string) map[string]any {
	return map[string]any{
		"status":         status,
		"hash_match":     hashMatch,
		"arg_hash_match": argHashMatch,
		"actual":         actual,
	}
}

// RunFinishedData returns the data map for a run_finished event.
// errorCode should be empty or an E_* string.
func RunFinishedData(status string, durationMS int64, errorCode string) map[string]any {
	data := map[string]any{
		"status":      status,
		"duration_ms": durationMS,
	}
	if errorCode != "" {
		data["error_code"] = errorCode
	}
	return data
}

func truncate(s string) string {
	const maxLen = 512
	if len(s) <= maxLen {
		return s
	}
	n := maxLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
