package backport

import (
	"errors"
	"fmt"
)

var (
	// ErrBranchExists marks an attempt refused because its backport branch
	// is already on the remote.
	ErrBranchExists = errors.New("backport branch already exists")

	// ErrInvalidBranch marks a target that git would read as an option.
	ErrInvalidBranch = errors.New("invalid target branch name")
)

// ConflictError is the idempotency failure. It matches ErrBranchExists.
type ConflictError struct {
	Branch         string
	BackportBranch string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("Branch `%s` already exists. It looks like backporting of this PR into branch\n"+
		"`%s` had already been performed. To repeat backporting, you'll need to cleanup previous attempt first\n"+
		"by deleting branch `%s`. If backport PR had already been created, it will be closed\n"+
		"automatically when branch is deleted.", e.BackportBranch, e.Branch, e.BackportBranch)
}

func (e *ConflictError) Is(target error) bool { return target == ErrBranchExists }

// ReplayError wraps a failed cherry-pick of SHA.
type ReplayError struct {
	SHA string
	Err error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("cherry-pick of %s failed: %v", e.SHA, e.Err)
}

func (e *ReplayError) Unwrap() error { return e.Err }
