// Package processor handles backport commands: it decodes the comment event,
// prepares a private clone and runs the orchestrator for every target.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	github "github.com/google/go-github/v75/github"
	"github.com/sethvargo/go-githubactions"

	"github.com/ealebed/gh-backport-command/internal/backport"
	"github.com/ealebed/gh-backport-command/internal/command"
	"github.com/ealebed/gh-backport-command/internal/config"
	"github.com/ealebed/gh-backport-command/internal/gitexec"
	"github.com/ealebed/gh-backport-command/internal/githubapp"
	"github.com/ealebed/gh-backport-command/internal/model"
	"github.com/ealebed/gh-backport-command/internal/platform"
	"github.com/ealebed/gh-backport-command/internal/queue"
)

// Workspace is the working copy of one run.
type Workspace interface {
	backport.Repository
	Clone(ctx context.Context, url string) error
	ListRemoteBranches(ctx context.Context, names ...string) (map[string]bool, error)
	RestrictAndFetch(ctx context.Context, branches []string) error
	FetchPRHead(ctx context.Context, number int) error
}

// Platform is the review platform as seen by one run.
type Platform interface {
	backport.Platform
	backport.Commenter
	GetPullRequest(ctx context.Context, number int) (model.PullRequest, error)
}

var (
	_ Workspace = (*gitexec.Runner)(nil)
	_ Platform  = (*platform.Client)(nil)
)

// Processor handles backport commands from a workflow event or a queue.
type Processor struct {
	Config *config.Config

	// Actions speaks the workflow-runner protocol; nil outside a runner.
	Actions *githubactions.Action

	// Test seams
	NewClients   func(ctx context.Context, cfg *config.Config, installationID int64) (*githubapp.Clients, error)
	NewWorkspace func(workDir string, auth gitexec.Auth) Workspace
	NewPlatform  func(clients *githubapp.Clients, owner, repo string) Platform
}

// New returns a processor wired to the real GitHub and git.
func New(cfg *config.Config, actions *githubactions.Action) *Processor {
	return &Processor{Config: cfg, Actions: actions}
}

func (p *Processor) newClients(ctx context.Context, installationID int64) (*githubapp.Clients, error) {
	if p.NewClients != nil {
		return p.NewClients(ctx, p.Config, installationID)
	}
	return githubapp.NewClients(ctx, p.Config, installationID)
}

func (p *Processor) newWorkspace(workDir string, auth gitexec.Auth) Workspace {
	if p.NewWorkspace != nil {
		return p.NewWorkspace(workDir, auth)
	}
	return gitexec.NewRunner(workDir, auth)
}

func (p *Processor) newPlatform(clients *githubapp.Clients, owner, repo string) Platform {
	if p.NewPlatform != nil {
		return p.NewPlatform(clients, owner, repo)
	}
	return platform.New(clients.REST, owner, repo)
}

// sanitizeForLog removes control characters that could break log lines and
// caps the length to prevent log flooding. Keep tabs for readability.
func sanitizeForLog(s string) string {
	if s == "" {
		return s
	}
	sb := strings.Builder{}
	sb.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r':
		case r < 0x20 && r != '\t':
		case r == '\u2028' || r == '\u2029':
		default:
			sb.WriteRune(r)
		}
	}
	out := sb.String()
	const max = 512
	if len(out) > max {
		out = out[:max] + "…"
	}
	return out
}

// HandleEvent satisfies ingest/sqs.Handler. Branch failures are already
// reported on the pull request, so they still answer 200; only run-level
// faults answer 500 and leave the delivery for redelivery.
func (p *Processor) HandleEvent(ctx context.Context, msg queue.Message) (int, error) {
	delivery := sanitizeForLog(msg.Delivery)
	if !queue.VerifySignature(p.Config.WebhookSecret, msg.Signature, msg.Payload) {
		slog.Error("webhook.sig_mismatch", "delivery", delivery, "event", msg.Event)
		return http.StatusUnauthorized, errors.New("signature mismatch")
	}
	if msg.Event != "issue_comment" {
		slog.Debug("webhook.ignore_event", "delivery", delivery, "event", msg.Event)
		return http.StatusNoContent, nil
	}

	var e github.IssueCommentEvent
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		slog.Error("webhook.bad_payload", "delivery", delivery, "err", sanitizeForLog(err.Error()))
		return http.StatusBadRequest, fmt.Errorf("bad payload: %w", err)
	}

	slog.Info("webhook.received", "delivery", delivery, "event", msg.Event, "pr", e.GetIssue().GetNumber())
	failed, err := p.HandleComment(ctx, &e)
	if err != nil {
		return http.StatusInternalServerError, err
	}
	slog.Info("webhook.done", "delivery", delivery, "failed_branches", failed)
	return http.StatusOK, nil
}

// HandleEventFile handles the event payload a workflow runner wrote to path.
func (p *Processor) HandleEventFile(ctx context.Context, path string) (int, error) {
	if path == "" {
		return 0, errors.New("no event payload: set GITHUB_EVENT_PATH or pass --event")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read event: %w", err)
	}
	var e github.IssueCommentEvent
	if err := json.Unmarshal(b, &e); err != nil {
		return 0, fmt.Errorf("decode event %s: %w", path, err)
	}
	return p.HandleComment(ctx, &e)
}

// HandleComment runs one command and returns the process exit status: the
// number of failed target branches, clamped to 255. A non-nil error is a
// run-level fault: not every branch could be attempted, or a result could
// not be reported.
func (p *Processor) HandleComment(ctx context.Context, e *github.IssueCommentEvent) (int, error) {
	if e.GetAction() == "deleted" {
		slog.Debug("command.ignore_deleted")
		return 0, nil
	}

	inv, perr := command.Parse(e.GetComment().GetBody())
	if inv == nil && perr == nil {
		slog.Debug("command.not_a_command")
		return 0, nil
	}
	number := e.GetIssue().GetNumber()

	owner, name, err := p.repository(e)
	if err != nil {
		return 0, err
	}
	clients, err := p.newClients(ctx, e.GetInstallation().GetID())
	if err != nil {
		return 0, fmt.Errorf("github clients: %w", err)
	}
	plat := p.newPlatform(clients, owner, name)
	reporter := &backport.Reporter{Comments: plat}

	if errors.Is(perr, command.ErrUsage) {
		slog.Info("command.usage", "repo", owner+"/"+name, "pr", number)
		if err := reporter.Usage(ctx, number); err != nil {
			return 0, fmt.Errorf("post usage: %w", err)
		}
		return 0, nil
	}
	slog.Info("command.received",
		"repo", owner+"/"+name,
		"pr", number,
		"branches", inv.Branches,
		"dry_run", inv.DryRun,
		"by", sanitizeForLog(e.GetComment().GetUser().GetLogin()),
	)

	root, err := os.MkdirTemp(p.Config.WorkDir, "backport-*")
	if err != nil {
		return 0, p.setupFailed(ctx, reporter, number, fmt.Errorf("working directory: %w", err))
	}
	defer func() { _ = os.RemoveAll(root) }()

	cloneURL := p.cloneURL(e.GetRepo(), owner, name)
	auth := gitexec.NewAuth(cloneURL, clients.Token)
	if p.Actions != nil && auth.Secret() != "" {
		p.Actions.AddMask(auth.Secret())
	}
	ws := p.newWorkspace(filepath.Join(root, name), auth)

	pr, err := p.prepare(ctx, ws, plat, cloneURL, number, inv.Branches)
	if err != nil {
		return 0, p.setupFailed(ctx, reporter, number, err)
	}

	o := &backport.Orchestrator{Repo: ws, Platform: plat, Reporter: reporter}
	if p.Actions != nil {
		o.Actions = p.Actions
	}
	var out backport.Outcome
	for _, branch := range inv.Branches {
		a, err := o.Backport(ctx, branch, pr, inv.DryRun)
		out = append(out, a)
		if err != nil {
			return out.ExitCode(), fmt.Errorf("report result for %s: %w", branch, err)
		}
	}
	slog.Info("command.done", "pr", number, "attempted", len(out), "failed", out.Failures())
	return out.ExitCode(), nil
}

// prepare clones the repository, fetches the tips of the targets that exist
// and the pull request head, and reads the pull request metadata.
func (p *Processor) prepare(ctx context.Context, ws Workspace, plat Platform, cloneURL string, number int, branches []string) (model.PullRequest, error) {
	if err := ws.Clone(ctx, cloneURL); err != nil {
		return model.PullRequest{}, fmt.Errorf("clone: %w", err)
	}

	var valid []string
	for _, b := range branches {
		if backport.ValidBranch(b) {
			valid = append(valid, b)
		}
	}
	found, err := ws.ListRemoteBranches(ctx, valid...)
	if err != nil {
		return model.PullRequest{}, fmt.Errorf("list remote branches: %w", err)
	}
	var existing, missing []string
	seen := map[string]bool{}
	for _, b := range valid {
		switch {
		case !found[b]:
			missing = append(missing, b)
		case !seen[b]:
			existing = append(existing, b)
			seen[b] = true
		}
	}
	if len(missing) > 0 {
		slog.Warn("command.missing_targets", "missing", missing)
	}
	if err := ws.RestrictAndFetch(ctx, existing); err != nil {
		return model.PullRequest{}, fmt.Errorf("fetch target branches: %w", err)
	}
	if err := ws.FetchPRHead(ctx, number); err != nil {
		return model.PullRequest{}, fmt.Errorf("fetch pull request head: %w", err)
	}
	return plat.GetPullRequest(ctx, number)
}

func (p *Processor) setupFailed(ctx context.Context, r *backport.Reporter, number int, err error) error {
	slog.Error("command.setup_failed", "pr", number, "err", sanitizeForLog(err.Error()))
	if p.Actions != nil {
		p.Actions.Errorf("Error occurred while preparing backport")
	}
	if rerr := r.SetupFailure(ctx, number, err); rerr != nil {
		slog.Warn("report.setup_failure_failed", "pr", number, "err", rerr)
	}
	return err
}

// repository resolves owner/name from the payload, falling back to the
// configured repository.
func (p *Processor) repository(e *github.IssueCommentEvent) (owner, name string, err error) {
	full := e.GetRepo().GetFullName()
	if full == "" {
		full = p.Config.Repository
	}
	if full == "" {
		return "", "", errors.New("no repository in payload or GITHUB_REPOSITORY")
	}
	return platform.SplitRepository(full)
}

// cloneURL prefers the URL the payload advertises and otherwise derives it
// from the API URL (public GitHub or an Enterprise host).
func (p *Processor) cloneURL(repo *github.Repository, owner, name string) string {
	if u := repo.GetCloneURL(); u != "" {
		return u
	}
	host := "https://github.com"
	if api := strings.TrimRight(p.Config.APIURL, "/"); api != "" && api != config.DefaultAPIURL {
		host = strings.TrimSuffix(api, "/api/v3")
	}
	return fmt.Sprintf("%s/%s/%s.git", host, owner, name)
}
