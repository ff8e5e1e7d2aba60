package build

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"

	"github.com/NielsdaWheelz/wasmverify/internal/locate"
)

var ruleName = regexp.MustCompile(`\bname\s*=\s*"([^"]+)"`)

// ArtifactStem strips .wasm.gz or .wasm from a file name.
func ArtifactStem(fileName string) string {
	for _, ext := range []string{".wasm.gz", ".wasm"} {
		if strings.HasSuffix(fileName, ext) {
			return strings.TrimSuffix(fileName, ext)
		}
	}
	return fileName
}

// FindTarget maps an artifact file name to a build target by scanning
// BUILD and BUILD.bazel files under root. A rule whose name equals the
// artifact stem wins over a rule that merely mentions the file name.
func FindTarget(fsys afero.Fs, root, fileName string) (locate.Label, bool) {
	if fileName == "" {
		return locate.Label{}, false
	}
	stem := ArtifactStem(fileName)
	nameAttr := regexp.MustCompile(`\bname\s*=\s*"` + regexp.QuoteMeta(stem) + `"`)
	literal := `"` + fileName + `"`

	var byName, byLiteral *locate.Label
	_ = afero.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if path != root && (info.Name() == ".git" || strings.HasPrefix(info.Name(), "bazel-")) {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Name() != "BUILD" && info.Name() != "BUILD.bazel" {
			return nil
		}
		data, err := afero.ReadFile(fsys, path)
		if err != nil {
			return nil
		}
		content := string(data)
		pkg := packageOf(root, path)

		if byName == nil && nameAttr.MatchString(content) {
			byName = &locate.Label{Package: pkg, Name: stem}
			return filepath.SkipAll
		}
		if byLiteral == nil {
			if i := strings.Index(content, literal); i >= 0 {
				if name := enclosingRule(content, i); name != "" {
					byLiteral = &locate.Label{Package: pkg, Name: name}
				}
			}
		}
		return nil
	})

	switch {
	case byName != nil:
		return *byName, true
	case byLiteral != nil:
		return *byLiteral, true
	}
	return locate.Label{}, false
}

// enclosingRule returns the name attribute of the rule containing offset:
// the last name = "..." before offset, or the first one after it.
func enclosingRule(content string, offset int) string {
	if ms := ruleName.FindAllStringSubmatch(content[:offset], -1); len(ms) > 0 {
		return ms[len(ms)-1][1]
	}
	if m := ruleName.FindStringSubmatch(content[offset:]); m != nil {
		return m[1]
	}
	return ""
}

func packageOf(root, buildFile string) string {
	rel, err := filepath.Rel(root, filepath.Dir(buildFile))
	if err != nil || rel == "." {
		return ""
	}
	return filepath.ToSlash(rel)
}
