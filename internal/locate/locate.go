// Package locate finds the artifact produced by a build under the targeted
// or full-build output conventions.
package locate

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/NielsdaWheelz/wasmverify/internal/errors"
	"github.com/NielsdaWheelz/wasmverify/internal/plan"
)

// Label is a parsed build target identifier such as //rs/nns/governance:governance-canister.
type Label struct {
	Package string
	Name    string
}

// String renders the label in //pkg:name form.
func (l Label) String() string {
	return "//" + l.Package + ":" + l.Name
}

// ParseLabel splits a target identifier into package and name. A label with
// no ":" uses the last package segment as its name.
func ParseLabel(s string) (Label, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "@")
	if i := strings.Index(s, "//"); i >= 0 {
		s = s[i+2:]
	} else {
		return Label{}, false
	}
	pkg, name, found := strings.Cut(s, ":")
	if !found {
		name = filepath.Base(pkg)
	}
	if name == "" || name == "." {
		return Label{}, false
	}
	return Label{Package: strings.Trim(pkg, "/"), Name: name}, true
}

// FromTargeted returns the artifact produced by a targeted build of label.
// The conventional path <outputRoot>/<pkg>/<fileName> is tried first, then
// <outputRoot>/<pkg>/<name><ext>, then a recursive search of outputRoot for
// fileName.
func FromTargeted(fsys afero.Fs, outputRoot string, label Label, fileName string) (string, error) {
	candidates := []string{filepath.Join(outputRoot, filepath.FromSlash(label.Package), fileName)}
	if ext := plan.ExtOf(fileName); !strings.HasSuffix(label.Name, ext) {
		candidates = append(candidates, filepath.Join(outputRoot, filepath.FromSlash(label.Package), label.Name+ext))
	}
	for _, c := range candidates {
		if isFile(fsys, c) {
			return c, nil
		}
	}

	matches, err := search(fsys, outputRoot, func(name string) bool {
		return sameName(name, fileName)
	})
	if err == nil && len(matches) > 0 {
		return pick(fsys, matches, fileName), nil
	}
	return "", notFound("artifact not found under targeted output root", outputRoot, fileName)
}

// FromFull returns the artifact produced by a full build. declaredPath is
// resolved against root; when it is absent every file under root ending in
// ext is a candidate and the best match for the declared base name wins.
func FromFull(fsys afero.Fs, root, declaredPath, ext string) (string, error) {
	if declaredPath != "" {
		p := declaredPath
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, filepath.FromSlash(declaredPath))
		}
		if isFile(fsys, p) {
			return p, nil
		}
	}

	matches, err := search(fsys, root, func(name string) bool {
		return strings.HasSuffix(name, ext)
	})
	if err == nil && len(matches) > 0 {
		return pick(fsys, matches, filepath.Base(declaredPath)), nil
	}
	return "", notFound("artifact not found after full build", root, declaredPath)
}

// skipDirs are never searched: VCS metadata and bazel's convenience links
// (bazel-bin is searched explicitly by FromTargeted).
func skipDir(name string) bool {
	return name == ".git" || strings.HasPrefix(name, "bazel-") || name == "node_modules"
}

func search(fsys afero.Fs, root string, match func(name string) bool) ([]string, error) {
	if _, ok := fsys.(*afero.OsFs); ok {
		if real, err := filepath.EvalSymlinks(root); err == nil {
			root = real
		}
	}

	var out []string
	err := afero.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// unreadable subtrees are skipped
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			if path != root && skipDir(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if match(info.Name()) {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

// pick orders candidates by: exact base name, drift-tolerant name, newest
// modification time, shortest path, then lexical order.
func pick(fsys afero.Fs, matches []string, want string) string {
	type cand struct {
		path  string
		rank  int
		mtime int64
	}
	cs := make([]cand, 0, len(matches))
	for _, m := range matches {
		c := cand{path: m, rank: 2}
		base := filepath.Base(m)
		switch {
		case want != "" && base == want:
			c.rank = 0
		case want != "" && sameName(base, want):
			c.rank = 1
		}
		if info, err := fsys.Stat(m); err == nil {
			c.mtime = info.ModTime().UnixNano()
		}
		cs = append(cs, c)
	}
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.rank != b.rank {
			return a.rank < b.rank
		}
		if a.mtime != b.mtime {
			return a.mtime > b.mtime
		}
		if len(a.path) != len(b.path) {
			return len(a.path) < len(b.path)
		}
		return a.path < b.path
	})
	return cs[0].path
}

// sameName compares file names ignoring case and the -/_ distinction.
func sameName(a, b string) bool {
	norm := func(s string) string {
		return strings.ReplaceAll(strings.ToLower(s), "_", "-")
	}
	return norm(a) == norm(b)
}

func isFile(fsys afero.Fs, p string) bool {
	info, err := fsys.Stat(p)
	return err == nil && !info.IsDir()
}

func notFound(msg, root, want string) error {
	details := map[string]string{"root": root}
	if want != "" {
		details["artifact"] = want
	}
	return errors.NewWithDetails(errors.EArtifactNotFound, msg, details)
}
