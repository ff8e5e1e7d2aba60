// Package state persists the proposal verification history.
//
// The store is a single JSON document mapping proposal id (as a string) to
// the latest verification entry for that proposal. Every write is a full
// load-merge-save cycle; there is no cross-process locking.
package state

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/afero"

	"github.com/NielsdaWheelz/wasmverify/internal/errors"
	"github.com/NielsdaWheelz/wasmverify/internal/fs"
)

// Status is the verification status recorded for a proposal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusFailed   Status = "failed"
	StatusError    Status = "error"
)

// Terminal reports whether s is a final outcome.
func (s Status) Terminal() bool {
	return s == StatusVerified || s == StatusFailed || s == StatusError
}

// Entry is the persisted record for one proposal.
type Entry struct {
	Status               Status `json:"status"`
	Timestamp            int64  `json:"timestamp"`
	RunID                string `json:"runId,omitempty"`
	HashMatch            bool   `json:"hashMatch"`
	ArgHashMatch         bool   `json:"argHashMatch"`
	ArtifactHash         string `json:"artifactHash,omitempty"`
	ExpectedArtifactHash string `json:"expectedArtifactHash,omitempty"`
	ArgHash              string `json:"argHash,omitempty"`
	ExpectedArgHash      string `json:"expectedArgHash,omitempty"`
	Title                string `json:"title,omitempty"`
	Error                string `json:"error,omitempty"`
}

// Data is the on-disk document.
type Data struct {
	LastCheckedTimestamp int64            `json:"lastCheckedTimestamp"`
	Proposals            map[string]Entry `json:"proposals"`
}

// Empty returns the default document used when no prior state exists.
func Empty() Data {
	return Data{Proposals: map[string]Entry{}}
}

// Patch is a partial update for Upsert. Nil fields leave the existing value untouched.
type Patch struct {
	Status               *Status
	RunID                *string
	HashMatch            *bool
	ArgHashMatch         *bool
	ArtifactHash         *string
	ExpectedArtifactHash *string
	ArgHash              *string
	ExpectedArgHash      *string
	Title                *string
	Error                *string
}

// Store reads and writes the state document.
type Store struct {
	FS   afero.Fs
	Path string
	Now  func() time.Time // injectable clock for deterministic tests
}

// NewStore creates a Store for path on fsys.
func NewStore(fsys afero.Fs, path string, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{FS: fsys, Path: path, Now: now}
}

// Load returns the persisted document. A missing or unreadable file yields
// Empty(); corrupt state is treated as absence.
func (s *Store) Load() Data {
	raw, err := afero.ReadFile(s.FS, s.Path)
	if err != nil {
		return Empty()
	}
	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return Empty()
	}
	if d.Proposals == nil {
		d.Proposals = map[string]Entry{}
	}
	return d
}

// Save overwrites the whole document.
func (s *Store) Save(d Data) error {
	if d.Proposals == nil {
		d.Proposals = map[string]Entry{}
	}
	if err := fs.WriteJSONAtomic(s.FS, s.Path, d, 0o644); err != nil {
		return errors.WrapWithDetails(errors.EPersistFailed, "failed to write state file", err,
			map[string]string{"path": s.Path})
	}
	return nil
}

// Upsert merges patch over the entry for id, refreshes its timestamp and
// persists immediately. It returns the merged entry.
func (s *Store) Upsert(id uint64, patch Patch) (Entry, error) {
	d := s.Load()
	key := Key(id)
	e := d.Proposals[key]
	patch.apply(&e)
	if e.Status == "" {
		e.Status = StatusPending
	}
	e.Timestamp = s.Now().Unix()
	d.Proposals[key] = e
	if err := s.Save(d); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// MarkChecked sets lastCheckedTimestamp to now and persists.
func (s *Store) MarkChecked() error {
	d := s.Load()
	d.LastCheckedTimestamp = s.Now().Unix()
	return s.Save(d)
}

// Get returns the entry for id, if any.
func (s *Store) Get(id uint64) (Entry, bool) {
	e, ok := s.Load().Proposals[Key(id)]
	return e, ok
}

// IDs returns the proposal ids present in d, ascending. Keys that are not
// integers are skipped.
func (d Data) IDs() []uint64 {
	ids := make([]uint64, 0, len(d.Proposals))
	for k := range d.Proposals {
		id, err := strconv.ParseUint(k, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Key formats a proposal id as a document key.
func Key(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func (p Patch) apply(e *Entry) {
	if p.Status != nil {
		e.Status = *p.Status
	}
	if p.RunID != nil {
		e.RunID = *p.RunID
	}
	if p.HashMatch != nil {
		e.HashMatch = *p.HashMatch
	}
	if p.ArgHashMatch != nil {
		e.ArgHashMatch = *p.ArgHashMatch
	}
	if p.ArtifactHash != nil {
		e.ArtifactHash = *p.ArtifactHash
	}
	if p.ExpectedArtifactHash != nil {
		e.ExpectedArtifactHash = *p.ExpectedArtifactHash
	}
	if p.ArgHash != nil {
		e.ArgHash = *p.ArgHash
	}
	if p.ExpectedArgHash != nil {
		e.ExpectedArgHash = *p.ExpectedArgHash
	}
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Error != nil {
		e.Error = *p.Error
	}
}

// Ptr returns a pointer to v. Convenience for building a Patch.
func Ptr[T any](v T) *T {
	return &v
}
