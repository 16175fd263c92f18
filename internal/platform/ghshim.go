package platform

import (
	"context"

	github "github.com/google/go-github/v75/github"
)

// Narrow interfaces for the subset of go-github we use.

type PullRequestsAPI interface {
	Get(ctx context.Context, owner, repo string, number int) (*github.PullRequest, *github.Response, error)
	ListCommits(ctx context.Context, owner, repo string, number int, opt *github.ListOptions) ([]*github.RepositoryCommit, *github.Response, error)
	Create(ctx context.Context, owner, repo string, pr *github.NewPullRequest) (*github.PullRequest, *github.Response, error)
}

type IssuesAPI interface {
	CreateComment(ctx context.Context, owner, repo string, number int, comment *github.IssueComment) (*github.IssueComment, *github.Response, error)
}

type GH interface {
	PR() PullRequestsAPI
	Issues() IssuesAPI
}

// real wrapper used in production
type realGH struct{ c *github.Client }

func (r realGH) PR() PullRequestsAPI { return r.c.PullRequests }
func (r realGH) Issues() IssuesAPI   { return r.c.Issues }

var (
	_ PullRequestsAPI = (*github.PullRequestsService)(nil)
	_ IssuesAPI       = (*github.IssuesService)(nil)
)
