package errors

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(EUsage, "test message")

	if err.Error() != "E_USAGE: test message" {
		t.Errorf("Error() = %q, want %q", err.Error(), "E_USAGE: test message")
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("underlying")
	err := Wrap(ECloneFailed, "clone failed", cause)

	if err.Error() != "E_CLONE_FAILED: clone failed" {
		t.Errorf("Error() = %q, want %q", err.Error(), "E_CLONE_FAILED: clone failed")
	}

	var ve *VerifyError
	if !errors.As(err, &ve) {
		t.Fatal("errors.As failed")
	}
	if ve.Cause != cause {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should see the cause")
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil error", nil, ""},
		{"verify error", New(EUsage, "x"), EUsage},
		{"wrapped verify error", Wrap(EArtifactNotFound, "y", errors.New("z")), EArtifactNotFound},
		{"fmt wrapped", fmt.Errorf("ctx: %w", New(EMalformedExtraction, "bad")), EMalformedExtraction},
		{"plain error", errors.New("plain"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetCode(tt.err)
			if got != tt.want {
				t.Errorf("GetCode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"E_USAGE", New(EUsage, "x"), 2},
		{"E_HASH_MISMATCH", New(EHashMismatch, "x"), 1},
		{"plain error", errors.New("x"), 1},
		{"explicit exit code", WithExitCode(New(EInternal, "x"), 3), 3},
		{"wrapped explicit exit code", fmt.Errorf("outer: %w", WithExitCode(errors.New("x"), 4)), 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExitCode(tt.err)
			if got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPrint(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"E_USAGE", New(EUsage, "bad args"), "error_code: E_USAGE\nbad args\n"},
		{"E_COMMIT_UNREACHABLE", New(ECommitUnreachable, "gone"), "error_code: E_COMMIT_UNREACHABLE\ngone\n"},
		{"plain", errors.New("boom"), "boom\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			Print(&buf, tt.err)
			got := buf.String()
			if got != tt.want {
				t.Errorf("Print() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewWithDetails_DefensiveCopy(t *testing.T) {
	details := map[string]string{"key": "value"}
	err := NewWithDetails(EUsage, "test", details)

	details["key"] = "modified"

	ve, ok := AsVerifyError(err)
	if !ok {
		t.Fatal("AsVerifyError failed")
	}
	if ve.Details["key"] != "value" {
		t.Errorf("Details should be copied, got %q", ve.Details["key"])
	}
}

func TestNewWithDetails_NilDetails(t *testing.T) {
	err := NewWithDetails(EUsage, "test", map[string]string{})

	ve, ok := AsVerifyError(err)
	if !ok {
		t.Fatal("AsVerifyError failed")
	}
	if ve.Details != nil {
		t.Errorf("Details should be nil, got %v", ve.Details)
	}
}

func TestWrapWithDetails(t *testing.T) {
	cause := errors.New("underlying")
	err := WrapWithDetails(EFullBuildFailed, "wrapped", cause, map[string]string{"command": "make"})

	ve, ok := AsVerifyError(err)
	if !ok {
		t.Fatal("AsVerifyError failed")
	}
	if ve.Cause != cause {
		t.Error("Cause not set")
	}
	if ve.Details["command"] != "make" {
		t.Errorf("Details[command] = %q, want %q", ve.Details["command"], "make")
	}
}

func TestAsVerifyError_Plain(t *testing.T) {
	ve, ok := AsVerifyError(errors.New("regular error"))
	if ok || ve != nil {
		t.Errorf("AsVerifyError(plain) = (%v, %v), want (nil, false)", ve, ok)
	}
}
