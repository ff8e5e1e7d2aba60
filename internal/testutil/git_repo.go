package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitRepo is a throwaway repository for checkout tests.
type GitRepo struct {
	Dir  string
	Repo *git.Repository
}

// gitEnv lists variables that redirect repository discovery when tests run
// inside a git hook or worktree.
var gitEnv = []string{
	"GIT_DIR",
	"GIT_WORK_TREE",
	"GIT_COMMON_DIR",
	"GIT_INDEX_FILE",
	"GIT_OBJECT_DIRECTORY",
	"GIT_ALTERNATE_OBJECT_DIRECTORIES",
}

// IsolateGitEnv unsets gitEnv for the duration of the test.
func IsolateGitEnv(t *testing.T) {
	t.Helper()
	for _, name := range gitEnv {
		t.Setenv(name, "")
		if err := os.Unsetenv(name); err != nil {
			t.Fatalf("unset %s: %v", name, err)
		}
	}
}

// NewGitRepo initializes a non-bare repository in a temp dir.
func NewGitRepo(t *testing.T) *GitRepo {
	t.Helper()
	IsolateGitEnv(t)
	dir := t.TempDir()
	r, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("git init: %v", err)
	}
	return &GitRepo{Dir: dir, Repo: r}
}

// Commit writes files (path -> content) and commits them, returning the hash.
func (g *GitRepo) Commit(t *testing.T, msg string, files map[string]string) string {
	t.Helper()
	wt, err := g.Repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	for name, content := range files {
		p := filepath.Join(g.Dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := wt.Add(name); err != nil {
			t.Fatalf("git add %s: %v", name, err)
		}
	}
	hash, err := wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Unix(1_700_000_000, 0)},
	})
	if err != nil {
		t.Fatalf("git commit: %v", err)
	}
	return hash.String()
}
