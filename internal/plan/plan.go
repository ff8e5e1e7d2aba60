// Package plan turns a free-text proposal description into a validated
// BuildPlan. The language-understanding step is delegated to a Completer;
// this package owns the prompt, the structural validation and the
// normalization of the result.
package plan

import (
	"context"
	"path"
	"strings"

	"github.com/spf13/afero"

	"github.com/NielsdaWheelz/wasmverify/internal/errors"
	"github.com/NielsdaWheelz/wasmverify/internal/fs"
	"github.com/NielsdaWheelz/wasmverify/internal/repo"
)

// BuildPlan is the immutable build description for one proposal.
// Commands never contain source-control operations.
type BuildPlan struct {
	Commit        string       `json:"commit"`
	RepoURL       string       `json:"repo_url"`
	Profile       repo.Profile `json:"profile"`
	Commands      []string     `json:"build_commands"`
	ArtifactPath  string       `json:"artifact_path,omitempty"`
	UpgradeArg    string       `json:"upgrade_arg,omitempty"`
	ArgSchemaPath string       `json:"arg_schema_path,omitempty"`
	ArgType       string       `json:"arg_type,omitempty"`
}

// ArtifactName returns the base name of the declared artifact path, or "".
func (p BuildPlan) ArtifactName() string {
	if p.ArtifactPath == "" {
		return ""
	}
	return path.Base(p.ArtifactPath)
}

// ArtifactExt returns the artifact's expected extension: ".wasm.gz" or
// ".wasm". Plans without a declared path default to ".wasm.gz".
func (p BuildPlan) ArtifactExt() string {
	return ExtOf(p.ArtifactName())
}

// ExtOf returns ".wasm.gz" or ".wasm" for name, defaulting to ".wasm.gz".
func ExtOf(name string) string {
	if strings.HasSuffix(name, ".wasm") {
		return ".wasm"
	}
	return ".wasm.gz"
}

// HasUpgradeArg reports whether an upgrade-argument literal was extracted.
func (p BuildPlan) HasUpgradeArg() bool {
	return strings.TrimSpace(p.UpgradeArg) != ""
}

// Request is a single bounded completion request.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// Completer is a text-completion service.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

// Complete implements Completer.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// ReadFile reads a plan document.
func ReadFile(fsys afero.Fs, p string) (BuildPlan, error) {
	var bp BuildPlan
	if err := fs.ReadJSON(fsys, p, &bp); err != nil {
		return BuildPlan{}, errors.WrapWithDetails(errors.EPayloadInvalid, "failed to read build plan", err,
			map[string]string{"path": p})
	}
	return bp, nil
}

// WriteFile writes a plan document atomically.
func WriteFile(fsys afero.Fs, p string, bp BuildPlan) error {
	if err := fs.WriteJSONAtomic(fsys, p, bp, 0o644); err != nil {
		return errors.WrapWithDetails(errors.EPersistFailed, "failed to write build plan", err,
			map[string]string{"path": p})
	}
	return nil
}
