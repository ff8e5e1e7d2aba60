// Package errors defines the stable error code system for wasmverify.
package errors

import (
	"errors"
	"fmt"
	"io"
)

// Code is a stable error code string.
type Code string

// Error codes. Stable public contract; CI jobs grep for these.
const (
	EUsage         Code = "E_USAGE"
	EInvalidConfig Code = "E_INVALID_CONFIG"
	EInternal      Code = "E_INTERNAL"
	EPersistFailed Code = "E_PERSIST_FAILED"

	// Tooling
	EToolNotInstalled       Code = "E_TOOL_NOT_INSTALLED"
	EPrivilegeSetupFailed   Code = "E_PRIVILEGE_SETUP_FAILED"   // build account or ownership transfer failed
	EProposalFetchFailed    Code = "E_PROPOSAL_FETCH_FAILED"    // governance API unreachable or returned garbage
	EPayloadInvalid         Code = "E_PAYLOAD_INVALID"          // proposal.json / plan.json unreadable
	EExtractionFailed       Code = "E_EXTRACTION_FAILED"        // completion service call failed
	EMalformedExtraction    Code = "E_MALFORMED_EXTRACTION"     // completion output failed validation
	ENotCodeInstall         Code = "E_NOT_CODE_INSTALL"         // proposal action is not a code install
	EMissingCommit          Code = "E_MISSING_COMMIT"           // no 40-hex commit in the proposal
	EMissingExpectedHash    Code = "E_MISSING_EXPECTED_HASH"    // proposal carries no wasm module hash
	ECloneFailed            Code = "E_CLONE_FAILED"             // shallow clone failed
	ECommitUnreachable      Code = "E_COMMIT_UNREACHABLE"       // commit could not be fetched or checked out
	ETargetedBuildFailed    Code = "E_TARGETED_BUILD_FAILED"    // recoverable; triggers the full build
	EFullBuildFailed        Code = "E_FULL_BUILD_FAILED"        // a fatal-policy command exited non-zero
	EArtifactNotFound       Code = "E_ARTIFACT_NOT_FOUND"       // no artifact after targeted and full builds
	EHashMismatch           Code = "E_HASH_MISMATCH"            // verification ran and hashes differ
	EExpectedHashAbsent     Code = "E_EXPECTED_HASH_ABSENT"     // verification ran without an expected value
	EArgumentEncodingFailed Code = "E_ARGUMENT_ENCODING_FAILED"
)

// VerifyError is the standard error type for wasmverify errors.
type VerifyError struct {
	Code    Code
	Msg     string
	Cause   error
	Details map[string]string // optional structured context
}

// Error returns the stable error format: "CODE: message".
func (e *VerifyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *VerifyError) Unwrap() error {
	return e.Cause
}

// ExitCodeError wraps an error with an explicit process exit code.
type ExitCodeError struct {
	Err  error
	Code int
}

func (e *ExitCodeError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitCodeError) Unwrap() error {
	return e.Err
}

func (e *ExitCodeError) ExitCode() int {
	return e.Code
}

// WithExitCode wraps err with a specific process exit code.
func WithExitCode(err error, code int) error {
	return &ExitCodeError{Err: err, Code: code}
}

// New creates a new VerifyError with the given code and message.
func New(code Code, msg string) error {
	return &VerifyError{Code: code, Msg: msg}
}

// NewWithDetails creates a new VerifyError with code, message, and details.
// Details map is copied (nil if empty).
func NewWithDetails(code Code, msg string, details map[string]string) error {
	return &VerifyError{Code: code, Msg: msg, Details: copyDetails(details)}
}

// Wrap creates a new VerifyError wrapping an underlying error.
func Wrap(code Code, msg string, err error) error {
	return &VerifyError{Code: code, Msg: msg, Cause: err}
}

// WrapWithDetails creates a new VerifyError wrapping an underlying error with details.
func WrapWithDetails(code Code, msg string, err error, details map[string]string) error {
	return &VerifyError{Code: code, Msg: msg, Cause: err, Details: copyDetails(details)}
}

// GetCode extracts the error code from an error, or empty string if not a VerifyError.
func GetCode(err error) Code {
	var ve *VerifyError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

// AsVerifyError returns (*VerifyError, true) if err is or wraps a VerifyError.
func AsVerifyError(err error) (*VerifyError, bool) {
	var ve *VerifyError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

func copyDetails(details map[string]string) map[string]string {
	if len(details) == 0 {
		return nil
	}
	cp := make(map[string]string, len(details))
	for k, v := range details {
		cp[k] = v
	}
	return cp
}

// ExitCode returns the appropriate exit code for an error.
// Returns 0 if err is nil, 2 for E_USAGE, 1 for all other errors.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ec interface{ ExitCode() int }
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	if GetCode(err) == EUsage {
		return 2
	}
	return 1
}

// Print writes the error to w in the stable stderr format:
//
//	error_code: <CODE>
//	<message>
func Print(w io.Writer, err error) {
	if err == nil {
		return
	}
	var ve *VerifyError
	if errors.As(err, &ve) {
		_, _ = fmt.Fprintf(w, "error_code: %s\n", ve.Code)
		_, _ = fmt.Fprintln(w, ve.Msg)
	} else {
		_, _ = fmt.Fprintln(w, err.Error())
	}
}
