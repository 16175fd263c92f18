package backport

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/ealebed/gh-backport-command/internal/command"
	"github.com/ealebed/gh-backport-command/internal/model"
)

// Commenter posts on the originating pull request thread.
type Commenter interface {
	PostComment(ctx context.Context, number int, body string) error
}

// Reporter turns attempts into pull request comments.
type Reporter struct {
	Comments Commenter
}

// Report posts the comment for one finished attempt.
func (r *Reporter) Report(ctx context.Context, prNumber int, a model.Attempt) error {
	var body string
	switch a.Status {
	case model.Success:
		body = SuccessMessage(a)
	case model.DryRunSuccess:
		body = DryRunMessage(a)
	case model.Failed:
		body = FailureMessage(strings.ToLower(action(a.DryRun))+" into branch "+a.Branch, a.Err)
	default:
		return fmt.Errorf("attempt for %s still %s", a.Branch, a.Status)
	}
	slog.Debug("report.comment", "pr", prNumber, "branch", a.Branch, "status", a.Status.String())
	return r.Comments.PostComment(ctx, prNumber, body)
}

// Usage replies with the command syntax.
func (r *Reporter) Usage(ctx context.Context, number int) error {
	return r.Comments.PostComment(ctx, number, command.Usage)
}

// SetupFailure reports a fault that stopped the run before any branch was
// attempted.
func (r *Reporter) SetupFailure(ctx context.Context, number int, err error) error {
	return r.Comments.PostComment(ctx, number, FailureMessage("preparing backport", err))
}

// SuccessMessage announces the backport pull request opened for a.Branch.
func SuccessMessage(a model.Attempt) string {
	return fmt.Sprintf("Backporting into branch %s was successful. New PR: %s", a.Branch, a.PullRequestURL)
}

// DryRunMessage reports a dry run that replayed cleanly onto a.Branch.
func DryRunMessage(a model.Attempt) string {
	return fmt.Sprintf("Dry run backporting into branch %s was successful.", a.Branch)
}

// FailureMessage renders err, raw git output included, in a collapsed
// block. The detail is escaped so it cannot close the <pre> early.
func FailureMessage(while string, err error) string {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return fmt.Sprintf("Error occurred while %s.\n\n<details><summary>Error</summary><pre>%s</pre></details>",
		while, html.EscapeString(detail))
}

// Outcome collects the attempts of one run in command order.
type Outcome []model.Attempt

// Failures counts failed attempts.
func (o Outcome) Failures() int {
	n := 0
	for _, a := range o {
		if a.Failed() {
			n++
		}
	}
	return n
}

// ExitCode is the process status for the run: the number of failed
// branches, clamped to what a process can return.
func (o Outcome) ExitCode() int {
	return min(o.Failures(), 255)
}
