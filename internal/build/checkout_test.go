package build

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NielsdaWheelz/wasmverify/internal/errors"
	"github.com/NielsdaWheelz/wasmverify/internal/testutil"
)

func requireGit(t *testing.T) {
	t.Helper()
	testutil.IsolateGitEnv(t)
}

func TestGitCheckout_ExactCommit(t *testing.T) {
	requireGit(t)
	src := testutil.NewGitRepo(t)
	first := src.Commit(t, "first", map[string]string{"VERSION": "1\n"})
	src.Commit(t, "second", map[string]string{"VERSION": "2\n"})

	dir := filepath.Join(t.TempDir(), "checkout")
	err := GitCheckout{}.Checkout(context.Background(), src.Dir, first, dir)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "VERSION"))
	require.NoError(t, err)
	assert.Equal(t, "1\n", string(data))
}

func TestGitCheckout_ShallowOlderCommit(t *testing.T) {
	requireGit(t)
	src := testutil.NewGitRepo(t)
	first := src.Commit(t, "first", map[string]string{"VERSION": "1\n"})
	src.Commit(t, "second", map[string]string{"VERSION": "2\n"})

	dir := filepath.Join(t.TempDir(), "checkout")
	err := GitCheckout{Depth: 1}.Checkout(context.Background(), src.Dir, first, dir)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "VERSION"))
	require.NoError(t, err)
	assert.Equal(t, "1\n", string(data))
}

func TestGitCheckout_ShallowTip(t *testing.T) {
	requireGit(t)
	src := testutil.NewGitRepo(t)
	src.Commit(t, "first", map[string]string{"VERSION": "1\n"})
	tip := src.Commit(t, "second", map[string]string{"VERSION": "2\n"})

	dir := filepath.Join(t.TempDir(), "checkout")
	require.NoError(t, GitCheckout{Depth: 1}.Checkout(context.Background(), src.Dir, tip, dir))

	data, err := os.ReadFile(filepath.Join(dir, "VERSION"))
	require.NoError(t, err)
	assert.Equal(t, "2\n", string(data))
}

func TestGitCheckout_ShallowUnreachableCommit(t *testing.T) {
	requireGit(t)
	src := testutil.NewGitRepo(t)
	src.Commit(t, "only", map[string]string{"a": "a"})

	dir := filepath.Join(t.TempDir(), "checkout")
	err := GitCheckout{Depth: 1}.Checkout(context.Background(), src.Dir, "ffffffffffffffffffffffffffffffffffffffff", dir)
	assert.Equal(t, errors.ECommitUnreachable, errors.GetCode(err))
}

func TestGitCheckout_UnreachableCommit(t *testing.T) {
	requireGit(t)
	src := testutil.NewGitRepo(t)
	src.Commit(t, "only", map[string]string{"a": "a"})

	dir := filepath.Join(t.TempDir(), "checkout")
	err := GitCheckout{}.Checkout(context.Background(), src.Dir, "ffffffffffffffffffffffffffffffffffffffff", dir)
	assert.Equal(t, errors.ECommitUnreachable, errors.GetCode(err))
}

func TestGitCheckout_CloneFailure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "checkout")
	err := GitCheckout{}.Checkout(context.Background(), filepath.Join(t.TempDir(), "missing"), commit, dir)
	assert.Equal(t, errors.ECloneFailed, errors.GetCode(err))
}
