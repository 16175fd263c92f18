// Package platform is the review-platform client: pull request metadata,
// commit listing, pull request creation and issue comments on GitHub.
package platform

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	github "github.com/google/go-github/v75/github"

	"github.com/ealebed/gh-backport-command/internal/model"
)

// commitsPerPage is the largest page the pull request commits API serves.
const commitsPerPage = 100

// Client talks to one repository.
type Client struct {
	gh    GH
	Owner string
	Repo  string
}

// New wraps an authenticated go-github client.
func New(c *github.Client, owner, repo string) *Client {
	return NewWithAPI(realGH{c: c}, owner, repo)
}

// NewWithAPI builds a client over any implementation of the narrow API.
func NewWithAPI(gh GH, owner, repo string) *Client {
	return &Client{gh: gh, Owner: owner, Repo: repo}
}

// NewPullRequest is the input of CreatePullRequest.
type NewPullRequest struct {
	Base  string
	Head  string
	Title string
	Body  string
}

// GetPullRequest fetches number's metadata.
func (c *Client) GetPullRequest(ctx context.Context, number int) (model.PullRequest, error) {
	pr, _, err := c.gh.PR().Get(ctx, c.Owner, c.Repo, number)
	if err != nil {
		return model.PullRequest{}, fmt.Errorf("get pull request #%d: %w", number, err)
	}
	return toModel(pr), nil
}

// ListCommitSHAs returns every commit of the pull request, oldest first, in
// the order GitHub reports them.
func (c *Client) ListCommitSHAs(ctx context.Context, number int) ([]string, error) {
	var shas []string
	opts := &github.ListOptions{PerPage: commitsPerPage}
	for {
		commits, resp, err := c.gh.PR().ListCommits(ctx, c.Owner, c.Repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("list commits of pull request #%d: %w", number, err)
		}
		for _, rc := range commits {
			if rc == nil || rc.GetSHA() == "" {
				continue
			}
			shas = append(shas, rc.GetSHA())
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	slog.Debug("gh.pr_commits", "repo", c.Owner+"/"+c.Repo, "pr", number, "count", len(shas))
	return shas, nil
}

// CreatePullRequest opens a pull request and returns it.
func (c *Client) CreatePullRequest(ctx context.Context, in NewPullRequest) (model.PullRequest, error) {
	pr, _, err := c.gh.PR().Create(ctx, c.Owner, c.Repo, &github.NewPullRequest{
		Title: github.Ptr(in.Title),
		Head:  github.Ptr(in.Head),
		Base:  github.Ptr(in.Base),
		Body:  github.Ptr(in.Body),
	})
	if err != nil {
		return model.PullRequest{}, fmt.Errorf("create pull request %s -> %s: %w", in.Head, in.Base, err)
	}
	return toModel(pr), nil
}

// PostComment adds a comment to issue or pull request number.
func (c *Client) PostComment(ctx context.Context, number int, body string) error {
	_, _, err := c.gh.Issues().CreateComment(ctx, c.Owner, c.Repo, number, &github.IssueComment{
		Body: github.Ptr(body),
	})
	if err != nil {
		return fmt.Errorf("comment on #%d: %w", number, err)
	}
	return nil
}

func toModel(pr *github.PullRequest) model.PullRequest {
	return model.PullRequest{
		Number:  pr.GetNumber(),
		Title:   pr.GetTitle(),
		HTMLURL: pr.GetHTMLURL(),
	}
}

// SplitRepository splits "owner/name".
func SplitRepository(full string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(full, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("repository %q is not owner/name", full)
	}
	return owner, name, nil
}
