package gitexec

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// commit reads a commit object straight from the working directory's object
// store. The repository is opened per call: objects fetched by the git CLI
// after an earlier open would not be visible through a cached handle.
func (r *Runner) commit(sha string) (*object.Commit, error) {
	repo, err := git.PlainOpen(r.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", r.WorkDir, err)
	}
	if !plumbing.IsHash(sha) {
		return nil, fmt.Errorf("invalid commit sha %q", sha)
	}
	c, err := repo.CommitObject(plumbing.NewHash(sha))
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", sha, err)
	}
	return c, nil
}

// IsMergeCommit reports whether sha has more than one parent.
func (r *Runner) IsMergeCommit(_ context.Context, sha string) (bool, error) {
	c, err := r.commit(sha)
	if err != nil {
		return false, err
	}
	return c.NumParents() > 1, nil
}

// CommitAuthor returns the author identity recorded in sha.
func (r *Runner) CommitAuthor(_ context.Context, sha string) (name, email string, err error) {
	c, err := r.commit(sha)
	if err != nil {
		return "", "", err
	}
	return c.Author.Name, c.Author.Email, nil
}
