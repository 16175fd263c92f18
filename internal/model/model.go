// Package model holds the value types shared by the backport pipeline.
package model

import "fmt"

// PullRequest is the originating pull request, fetched once per run.
type PullRequest struct {
	Number  int
	Title   string
	HTMLURL string
}

// CommitRef describes one commit of the pull request during replay.
type CommitRef struct {
	SHA         string
	IsMerge     bool
	AuthorName  string
	AuthorEmail string
}

// Status of one backport attempt.
type Status int

const (
	Pending Status = iota
	Success
	DryRunSuccess
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Success:
		return "success"
	case DryRunSuccess:
		return "dry_run_success"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Attempt is the result of backporting into one target branch.
type Attempt struct {
	Branch         string
	BackportBranch string
	DryRun         bool
	Status         Status
	Err            error

	// Set when a pull request was opened.
	PullRequestNumber int
	PullRequestURL    string
}

// Failed reports whether the attempt counts as a branch failure.
func (a Attempt) Failed() bool { return a.Status == Failed }

// BackportBranchName is the working branch and idempotency key for
// backporting pull request number into target.
func BackportBranchName(number int, target string) string {
	return fmt.Sprintf("backport/%d-to-%s", number, target)
}
