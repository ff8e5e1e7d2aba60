package build

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/NielsdaWheelz/wasmverify/internal/errors"
)

// Checkouter materializes a repository at an exact commit in dir.
type Checkouter interface {
	Checkout(ctx context.Context, repoURL, commit, dir string) error
}

// GitCheckout clones with go-git. Depth > 0 makes both the clone and the
// commit fetch shallow.
type GitCheckout struct {
	Depth int
}

// verifyRef is the local branch the fetched commit is stored under.
const verifyRef = "refs/heads/wasmverify"

// Checkout clones repoURL into dir (which must be empty or absent), fetches
// commit if the clone does not already contain it, and checks it out with a
// detached HEAD. An unreachable commit is E_COMMIT_UNREACHABLE; there is no retry.
//
// Servers that refuse wants for unadvertised SHA-1s (git daemon, file
// remotes, most mirrors) cannot serve a shallow fetch of an older commit.
// In that case the shallow clone is discarded and the full history cloned.
func (g GitCheckout) Checkout(ctx context.Context, repoURL, commit, dir string) error {
	err := checkout(ctx, repoURL, commit, dir, g.Depth)
	if g.Depth > 0 && stderrors.Is(err, git.ErrExactSHA1NotSupported) {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			return errors.WrapWithDetails(errors.EInternal, "failed to discard shallow clone", rmErr,
				map[string]string{"dir": dir})
		}
		err = checkout(ctx, repoURL, commit, dir, 0)
	}
	return err
}

func checkout(ctx context.Context, repoURL, commit, dir string, depth int) error {
	details := map[string]string{"repo": repoURL, "commit": commit}

	r, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:          repoURL,
		Depth:        depth,
		SingleBranch: depth > 0,
		Tags:         git.NoTags,
	})
	if err != nil {
		return errors.WrapWithDetails(errors.ECloneFailed, "failed to clone repository", err, details)
	}

	hash := plumbing.NewHash(commit)
	if _, err := r.CommitObject(hash); err != nil {
		spec := gitconfig.RefSpec(fmt.Sprintf("%s:%s", commit, verifyRef))
		err := r.FetchContext(ctx, &git.FetchOptions{
			RemoteName: git.DefaultRemoteName,
			RefSpecs:   []gitconfig.RefSpec{spec},
			Depth:      depth,
			Tags:       git.NoTags,
		})
		if err != nil && !stderrors.Is(err, git.NoErrAlreadyUpToDate) {
			return errors.WrapWithDetails(errors.ECommitUnreachable, "failed to fetch commit", err, details)
		}
		if _, err := r.CommitObject(hash); err != nil {
			return errors.WrapWithDetails(errors.ECommitUnreachable, "commit not present after fetch", err, details)
		}
	}

	wt, err := r.Worktree()
	if err != nil {
		return errors.WrapWithDetails(errors.ECloneFailed, "failed to open worktree", err, details)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
		return errors.WrapWithDetails(errors.ECommitUnreachable, "failed to check out commit", err, details)
	}
	return nil
}
