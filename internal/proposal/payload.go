// Package proposal models governance proposals at the pipeline boundary:
// the payload document, conversion from the governance API, the monitor's
// eligibility filter and payload file IO.
package proposal

import (
	stderrors "errors"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/afero"

	"github.com/NielsdaWheelz/wasmverify/internal/errors"
	"github.com/NielsdaWheelz/wasmverify/internal/fs"
)

// ActionInstallCode is the only action that carries a buildable artifact.
const ActionInstallCode = "InstallCode"

// Payload is the immutable per-proposal input to the pipeline.
// Build-related fields are populated only for InstallCode proposals.
type Payload struct {
	ProposalID           uint64 `json:"proposal_id"`
	Title                string `json:"title"`
	Summary              string `json:"summary"`
	URL                  string `json:"url,omitempty"`
	Topic                int    `json:"topic,omitempty"`
	Action               string `json:"action,omitempty"`
	Commit               string `json:"commit,omitempty"`
	ExpectedArtifactHash string `json:"expected_wasm_hash,omitempty"`
	ExpectedArgHash      string `json:"expected_arg_hash,omitempty"`
	CanisterID           string `json:"canister_id,omitempty"`
}

// IsCodeInstall reports whether the proposal installs code.
func (p Payload) IsCodeInstall() bool {
	return p.Action == ActionInstallCode
}

// Preflight checks the pipeline's preconditions. The returned error carries
// E_NOT_CODE_INSTALL, E_MISSING_COMMIT or E_MISSING_EXPECTED_HASH; callers
// treat these as a documented early exit, not a verification failure.
func (p Payload) Preflight() error {
	details := map[string]string{"proposal_id": formatID(p.ProposalID)}
	if !p.IsCodeInstall() {
		details["action"] = p.Action
		return errors.NewWithDetails(errors.ENotCodeInstall, "proposal is not a code install", details)
	}
	if p.Commit == "" {
		return errors.NewWithDetails(errors.EMissingCommit, "no commit reference found in proposal summary", details)
	}
	if p.ExpectedArtifactHash == "" {
		return errors.NewWithDetails(errors.EMissingExpectedHash, "proposal has no expected wasm hash", details)
	}
	return nil
}

// IsEarlyExit reports whether err is one of the Preflight codes.
func IsEarlyExit(err error) bool {
	switch errors.GetCode(err) {
	case errors.ENotCodeInstall, errors.EMissingCommit, errors.EMissingExpectedHash:
		return true
	}
	return false
}

var (
	hexCommit     = regexp.MustCompile(`(?i)\b[0-9a-f]{40}\b`)
	labeledCommit = regexp.MustCompile(`(?i)(?:/commit/|/tree/|\bcommit\b[^0-9a-f]{0,20})([0-9a-f]{40})\b`)
)

// ExtractCommit returns the commit referenced in text, preferring a hash that
// follows "commit", "/commit/" or "/tree/". The result is lowercase; empty
// when no 40-hex token exists.
func ExtractCommit(text string) string {
	if m := labeledCommit.FindStringSubmatch(text); m != nil {
		return strings.ToLower(m[1])
	}
	return strings.ToLower(hexCommit.FindString(text))
}

// ReadPayloadFile reads a payload document.
func ReadPayloadFile(fsys afero.Fs, path string) (Payload, error) {
	var p Payload
	if err := fs.ReadJSON(fsys, path, &p); err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return Payload{}, errors.WrapWithDetails(errors.EPayloadInvalid, "proposal payload not found", err,
				map[string]string{"path": path})
		}
		return Payload{}, errors.WrapWithDetails(errors.EPayloadInvalid, "failed to parse proposal payload", err,
			map[string]string{"path": path})
	}
	return p, nil
}

// WritePayloadFile writes a payload document atomically.
func WritePayloadFile(fsys afero.Fs, path string, p Payload) error {
	if err := fs.WriteJSONAtomic(fsys, path, p, 0o644); err != nil {
		return errors.WrapWithDetails(errors.EPersistFailed, "failed to write proposal payload", err,
			map[string]string{"path": path})
	}
	return nil
}
