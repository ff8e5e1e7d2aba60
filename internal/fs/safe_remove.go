// Package fs provides filesystem utilities for wasmverify.
// This file implements RemoveAll guarded by an allowed prefix, used to reset
// the per-run checkout directory.
package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// ErrNotUnderPrefix is returned when a target path is not under the allowed prefix.
type ErrNotUnderPrefix struct {
	Target string
	Prefix string
}

func (e *ErrNotUnderPrefix) Error() string {
	return fmt.Sprintf("target %q is not under allowed prefix %q", e.Target, e.Prefix)
}

// SafeRemoveAll removes target only if it resolves to a strict subpath of
// allowedPrefix. Both paths are cleaned and symlink-resolved first.
// A missing target is not an error.
func SafeRemoveAll(target, allowedPrefix string) error {
	cleanTarget := filepath.Clean(target)
	cleanPrefix := filepath.Clean(allowedPrefix)

	resolvedTarget, err := filepath.EvalSymlinks(cleanTarget)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &ErrNotUnderPrefix{Target: target, Prefix: allowedPrefix}
	}

	resolvedPrefix, err := filepath.EvalSymlinks(cleanPrefix)
	if err != nil {
		return &ErrNotUnderPrefix{Target: target, Prefix: allowedPrefix}
	}

	if !IsSubpath(resolvedTarget, resolvedPrefix) {
		return &ErrNotUnderPrefix{Target: target, Prefix: allowedPrefix}
	}

	return os.RemoveAll(cleanTarget)
}

// ResetDir removes dir (guarded by root) and recreates it empty on fsys.
// root is created if missing so a fresh host can run without setup.
// On the OS filesystem the guard also resolves symlinks (SafeRemoveAll);
// other filesystems get the lexical check only.
func ResetDir(fsys afero.Fs, dir, root string) error {
	if !IsSubpath(filepath.Clean(dir), filepath.Clean(root)) {
		return &ErrNotUnderPrefix{Target: dir, Prefix: root}
	}
	if err := fsys.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create work root: %w", err)
	}
	if _, ok := fsys.(*afero.OsFs); ok {
		if err := SafeRemoveAll(dir, root); err != nil {
			return err
		}
	} else if err := fsys.RemoveAll(dir); err != nil {
		return err
	}
	return fsys.MkdirAll(dir, 0o755)
}

// IsSubpath returns true if target is a proper subpath of prefix.
// Both paths should already be cleaned and resolved.
func IsSubpath(target, prefix string) bool {
	prefixWithSep := prefix
	if !strings.HasSuffix(prefixWithSep, string(filepath.Separator)) {
		prefixWithSep = prefix + string(filepath.Separator)
	}
	return strings.HasPrefix(target, prefixWithSep) && len(target) > len(prefix)
}
