// Package verify hashes a built artifact (and optionally its encoded upgrade
// arguments) and compares the digests with the values a proposal declares.
package verify

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"
)

// Status is the verification verdict.
type Status string

const (
	StatusVerified Status = "verified"
	StatusFailed   Status = "failed"
	StatusError    Status = "error"
)

// Comparison is the outcome of comparing one digest.
type Comparison struct {
	Match  bool
	Status Status
}

// ComputeContentHash returns the lowercase hex SHA-256 of the file at path.
func ComputeContentHash(fsys afero.Fs, path string) (string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash artifact: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes returns the lowercase hex SHA-256 of b.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// CompareHashes compares hex digests case-insensitively.
// An absent expected value is StatusError, never a pass or a mismatch.
func CompareHashes(actual, expected string) Comparison {
	expected = normalizeHex(expected)
	if expected == "" {
		return Comparison{Match: false, Status: StatusError}
	}
	if normalizeHex(actual) == expected {
		return Comparison{Match: true, Status: StatusVerified}
	}
	return Comparison{Match: false, Status: StatusFailed}
}

func normalizeHex(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimPrefix(s, "0x")
}
