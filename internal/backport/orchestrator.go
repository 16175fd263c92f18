// Package backport replays a pull request's commits onto release branches
// and reports the outcome of every attempt.
package backport

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ealebed/gh-backport-command/internal/model"
	"github.com/ealebed/gh-backport-command/internal/platform"
)

// Repository is the working copy shared by all attempts of one run.
type Repository interface {
	BranchExistsRemotely(ctx context.Context, name string) (bool, error)
	CheckoutNewTrackingBranch(ctx context.Context, newBranch, base string) error
	IsMergeCommit(ctx context.Context, sha string) (bool, error)
	CommitAuthor(ctx context.Context, sha string) (name, email string, err error)
	CherryPick(ctx context.Context, c model.CommitRef) error
	AbortCherryPick(ctx context.Context)
	PushNewBranch(ctx context.Context, branch string) error
}

// Platform is the part of the review platform the replay needs.
type Platform interface {
	ListCommitSHAs(ctx context.Context, number int) ([]string, error)
	CreatePullRequest(ctx context.Context, in platform.NewPullRequest) (model.PullRequest, error)
}

// Annotator receives workflow-runner log annotations. *githubactions.Action
// satisfies it.
type Annotator interface {
	Group(title string)
	EndGroup()
	Errorf(msg string, args ...any)
}

// Orchestrator backports one pull request, one target branch at a time.
type Orchestrator struct {
	Repo     Repository
	Platform Platform
	Reporter *Reporter
	Actions  Annotator // optional
}

// ValidBranch reports whether target can be handed to git as a branch name.
func ValidBranch(target string) bool {
	return target != "" && !strings.HasPrefix(target, "-")
}

// Backport replays pr onto branch and reports the result on the pull
// request. Replay failures end up in the returned attempt, never in the
// error; the error is only set when the report itself could not be posted.
func (o *Orchestrator) Backport(ctx context.Context, branch string, pr model.PullRequest, dryRun bool) (model.Attempt, error) {
	attempt := model.Attempt{
		Branch:         branch,
		BackportBranch: model.BackportBranchName(pr.Number, branch),
		DryRun:         dryRun,
		Status:         model.Pending,
	}

	o.group(fmt.Sprintf("%s PR #%d into branch %s", action(dryRun), pr.Number, branch))
	defer o.endGroup()

	slog.Info("backport.start", "pr", pr.Number, "branch", branch, "backport_branch", attempt.BackportBranch, "dry_run", dryRun)
	if err := o.replay(ctx, &attempt, pr); err != nil {
		attempt.Status = model.Failed
		attempt.Err = err
		slog.Warn("backport.failed", "pr", pr.Number, "branch", branch, "err", err)
		if o.Actions != nil {
			o.Actions.Errorf("Error occurred while %s into branch %s", strings.ToLower(action(dryRun)), branch)
		}
	}

	if err := o.Reporter.Report(ctx, pr.Number, attempt); err != nil {
		return attempt, err
	}
	return attempt, nil
}

func (o *Orchestrator) replay(ctx context.Context, a *model.Attempt, pr model.PullRequest) error {
	if !ValidBranch(a.Branch) {
		return fmt.Errorf("%w: %q", ErrInvalidBranch, a.Branch)
	}

	exists, err := o.Repo.BranchExistsRemotely(ctx, a.BackportBranch)
	if err != nil {
		return err
	}
	if exists {
		return &ConflictError{Branch: a.Branch, BackportBranch: a.BackportBranch}
	}

	slog.Info("backport.checkout", "branch", a.BackportBranch, "from", "origin/"+a.Branch)
	if err := o.Repo.CheckoutNewTrackingBranch(ctx, a.BackportBranch, a.Branch); err != nil {
		return err
	}

	shas, err := o.Platform.ListCommitSHAs(ctx, pr.Number)
	if err != nil {
		return err
	}
	for _, sha := range shas {
		c, err := o.commitRef(ctx, sha)
		if err != nil {
			return err
		}
		if c.IsMerge {
			slog.Info("backport.skip_merge_commit", "sha", sha)
			continue
		}
		slog.Info("backport.cherry_pick", "sha", sha, "author", c.AuthorName)
		if err := o.Repo.CherryPick(ctx, c); err != nil {
			o.Repo.AbortCherryPick(ctx)
			return &ReplayError{SHA: sha, Err: err}
		}
	}

	if a.DryRun {
		slog.Info("backport.dry_run_done", "branch", a.Branch)
		a.Status = model.DryRunSuccess
		return nil
	}

	if err := o.Repo.PushNewBranch(ctx, a.BackportBranch); err != nil {
		return err
	}
	slog.Info("backport.pushed", "branch", a.BackportBranch)

	created, err := o.Platform.CreatePullRequest(ctx, platform.NewPullRequest{
		Base:  a.Branch,
		Head:  a.BackportBranch,
		Title: fmt.Sprintf("[Backport %s] %s", a.Branch, pr.Title),
		Body:  "Backport of " + pr.HTMLURL,
	})
	if err != nil {
		return err
	}
	slog.Info("backport.pr_opened", "number", created.Number, "url", created.HTMLURL)

	a.Status = model.Success
	a.PullRequestNumber = created.Number
	a.PullRequestURL = created.HTMLURL
	return nil
}

func (o *Orchestrator) commitRef(ctx context.Context, sha string) (model.CommitRef, error) {
	c := model.CommitRef{SHA: sha}
	merge, err := o.Repo.IsMergeCommit(ctx, sha)
	if err != nil {
		return c, err
	}
	c.IsMerge = merge
	if merge {
		return c, nil
	}
	c.AuthorName, c.AuthorEmail, err = o.Repo.CommitAuthor(ctx, sha)
	return c, err
}

func (o *Orchestrator) group(title string) {
	if o.Actions != nil {
		o.Actions.Group(title)
	}
}

func (o *Orchestrator) endGroup() {
	if o.Actions != nil {
		o.Actions.EndGroup()
	}
}

func action(dryRun bool) string {
	if dryRun {
		return "Dry run backporting"
	}
	return "Backporting"
}
