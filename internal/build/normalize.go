package build

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

var (
	buildKitOn  = []byte("DOCKER_BUILDKIT=1")
	buildKitOff = []byte("DOCKER_BUILDKIT=0")
)

// DisableBuildKit rewrites every shell script under root that hard-enables
// DOCKER_BUILDKIT. It returns the rewritten paths. File modes are preserved.
func DisableBuildKit(fsys afero.Fs, root string) ([]string, error) {
	var changed []string
	err := afero.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != root && (info.Name() == ".git" || strings.HasPrefix(info.Name(), "bazel-")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() || !strings.HasSuffix(info.Name(), ".sh") {
			return nil
		}
		data, err := afero.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		if !bytes.Contains(data, buildKitOn) {
			return nil
		}
		out := bytes.ReplaceAll(data, buildKitOn, buildKitOff)
		if err := afero.WriteFile(fsys, path, out, info.Mode().Perm()); err != nil {
			return err
		}
		changed = append(changed, path)
		return nil
	})
	return changed, err
}
