package build

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NielsdaWheelz/wasmverify/internal/locate"
)

func TestArtifactStem(t *testing.T) {
	assert.Equal(t, "governance-canister", ArtifactStem("governance-canister.wasm.gz"))
	assert.Equal(t, "ledger", ArtifactStem("ledger.wasm"))
	assert.Equal(t, "README", ArtifactStem("README"))
}

func TestFindTarget(t *testing.T) {
	fsys := afero.NewMemMapFs()
	files := map[string]string{
		"/ic/rs/nns/governance/BUILD.bazel": governanceBuild,
		"/ic/rs/ledger_suite/BUILD.bazel": `genrule(
    name = "ledger_wasm",
    outs = ["ledger-canister.wasm.gz"],
)
`,
		"/ic/rs/registry/BUILD":               `rust_canister(name = "registry-canister")`,
		"/ic/bazel-bin/rs/fake/BUILD.bazel":   `rust_canister(name = "cycles-minting-canister")`,
		"/ic/.git/BUILD":                      `rust_canister(name = "cycles-minting-canister")`,
		"/ic/rs/nns/governance/canister/x.rs": "",
	}
	for p, c := range files {
		require.NoError(t, afero.WriteFile(fsys, p, []byte(c), 0o644))
	}

	tests := []struct {
		file string
		want locate.Label
		ok   bool
	}{
		{"governance-canister.wasm.gz", locate.Label{Package: "rs/nns/governance", Name: "governance-canister"}, true},
		{"registry-canister.wasm", locate.Label{Package: "rs/registry", Name: "registry-canister"}, true},
		{"ledger-canister.wasm.gz", locate.Label{Package: "rs/ledger_suite", Name: "ledger_wasm"}, true},
		{"cycles-minting-canister.wasm.gz", locate.Label{}, false},
		{"", locate.Label{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			got, ok := FindTarget(fsys, "/ic", tt.file)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDisableBuildKit(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/r/ci/build.sh", []byte("export DOCKER_BUILDKIT=1\ndocker build .\n"), 0o755))
	require.NoError(t, afero.WriteFile(fsys, "/r/ci/other.sh", []byte("echo hi\n"), 0o755))
	require.NoError(t, afero.WriteFile(fsys, "/r/Dockerfile", []byte("ENV DOCKER_BUILDKIT=1\n"), 0o644))

	changed, err := DisableBuildKit(fsys, "/r")
	require.NoError(t, err)
	assert.Equal(t, []string{"/r/ci/build.sh"}, changed)

	data, _ := afero.ReadFile(fsys, "/r/ci/build.sh")
	assert.Equal(t, "export DOCKER_BUILDKIT=0\ndocker build .\n", string(data))
	info, _ := fsys.Stat("/r/ci/build.sh")
	assert.Equal(t, "-rwxr-xr-x", info.Mode().Perm().String())

	untouched, _ := afero.ReadFile(fsys, "/r/Dockerfile")
	assert.Equal(t, "ENV DOCKER_BUILDKIT=1\n", string(untouched))
}

func TestSteps(t *testing.T) {
	got := Steps([]string{"make deps", "! make wasm", "  ", "!"}, true)
	assert.Equal(t, []Step{
		{Command: "make deps", Policy: PolicyTolerant},
		{Command: "make wasm", Policy: PolicyFatal},
	}, got)

	strict := Steps([]string{"make"}, false)
	assert.Equal(t, PolicyFatal, strict[0].Policy)
}
