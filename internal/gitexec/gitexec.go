package gitexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ealebed/gh-backport-command/internal/model"
)

// Runner drives the git CLI inside one working directory. Arguments are
// always passed as an argv, never through a shell.
type Runner struct {
	WorkDir string
	Env     []string
	Auth    Auth
}

// NewRunner returns a runner for workDir. Nothing is created on disk until
// Clone runs.
func NewRunner(workDir string, auth Auth, extraEnv ...string) *Runner {
	env := append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "GIT_ASKPASS=true")
	return &Runner{WorkDir: workDir, Env: append(env, extraEnv...), Auth: auth}
}

// CommandError is returned when git exits non-zero. Args are already
// redacted; Stdout and Stderr are captured verbatim.
type CommandError struct {
	Args   []string
	Stdout string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	parts := []string{fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)}
	if s := strings.TrimSpace(e.Stdout); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n")
}

func (e *CommandError) Unwrap() error { return e.Err }

func (r *Runner) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = r.Env

	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdout, &stderr

	safeArgs := Redact(args)
	slog.Debug("git.exec", "cwd", dir, "args", safeArgs)
	if err := cmd.Run(); err != nil {
		slog.Error("git.fail", "args", safeArgs, "err", err, "stderr", RedactString(stderr.String()))
		return "", &CommandError{
			Args:   safeArgs,
			Stdout: RedactString(stdout.String()),
			Stderr: RedactString(stderr.String()),
			Err:    err,
		}
	}
	out := strings.TrimSpace(stdout.String())
	if out != "" {
		slog.Debug("git.out", "args", safeArgs, "out", out)
	}
	return out, nil
}

// git runs a local command in the working directory.
func (r *Runner) git(ctx context.Context, args ...string) (string, error) {
	return r.run(ctx, r.WorkDir, args...)
}

// remote runs a command that talks to the remote, with the auth header
// injected for this invocation only.
func (r *Runner) remote(ctx context.Context, args ...string) (string, error) {
	return r.run(ctx, r.WorkDir, append(r.Auth.configArgs(), args...)...)
}

// Clean removes the working directory.
func (r *Runner) Clean() { _ = os.RemoveAll(r.WorkDir) }

// Clone makes a depth-1 clone of the default branch into a freshly emptied
// working directory.
func (r *Runner) Clone(ctx context.Context, url string) error {
	if err := os.RemoveAll(r.WorkDir); err != nil {
		return err
	}
	parent := filepath.Dir(r.WorkDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return err
	}
	args := append(r.Auth.configArgs(), "clone", "-q", "--depth=1", "--", url, r.WorkDir)
	_, err := r.run(ctx, parent, args...)
	return err
}

// RestrictAndFetch narrows the tracked remote branches to exactly branches
// and fetches their tips at depth 1.
func (r *Runner) RestrictAndFetch(ctx context.Context, branches []string) error {
	if len(branches) == 0 {
		return nil
	}
	if _, err := r.git(ctx, append([]string{"remote", "set-branches", "origin"}, branches...)...); err != nil {
		return err
	}
	_, err := r.remote(ctx, "fetch", "-q", "--depth=1", "origin")
	return err
}

// FetchPRHead fetches the platform ref that exposes the pull request head.
// GitHub keeps refs/pull/<n>/head only for a limited time.
func (r *Runner) FetchPRHead(ctx context.Context, number int) error {
	_, err := r.remote(ctx, "fetch", "-q", "origin", fmt.Sprintf("refs/pull/%d/head", number))
	return err
}

// ListRemoteBranches asks the remote which of names exist as branches.
func (r *Runner) ListRemoteBranches(ctx context.Context, names ...string) (map[string]bool, error) {
	found := make(map[string]bool, len(names))
	if len(names) == 0 {
		return found, nil
	}
	args := []string{"ls-remote", "origin"}
	for _, n := range names {
		args = append(args, "refs/heads/"+n)
	}
	out, err := r.remote(ctx, args...)
	if err != nil {
		return nil, err
	}
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		name, ok := strings.CutPrefix(fields[1], "refs/heads/")
		if !ok {
			continue
		}
		if _, ok := want[name]; ok {
			found[name] = true
		}
	}
	return found, nil
}

// BranchExistsRemotely reports whether branch name exists on origin.
func (r *Runner) BranchExistsRemotely(ctx context.Context, name string) (bool, error) {
	found, err := r.ListRemoteBranches(ctx, name)
	if err != nil {
		return false, err
	}
	return found[name], nil
}

// CheckoutNewTrackingBranch creates newBranch from origin/<base> and
// switches to it.
func (r *Runner) CheckoutNewTrackingBranch(ctx context.Context, newBranch, base string) error {
	_, err := r.git(ctx, "checkout", "-q", "-b", newBranch, "--track", "origin/"+base)
	return err
}

// CherryPick replays c onto the current branch. The original author is kept
// by git itself; the committer identity is set to the author as well, and
// -x records the origin sha in the message.
func (r *Runner) CherryPick(ctx context.Context, c model.CommitRef) error {
	_, err := r.git(ctx,
		"-c", "user.name="+c.AuthorName,
		"-c", "user.email="+c.AuthorEmail,
		"cherry-pick", "-x", c.SHA,
	)
	return err
}

// AbortCherryPick drops an in-progress cherry-pick, if any.
func (r *Runner) AbortCherryPick(ctx context.Context) {
	if _, err := r.git(ctx, "cherry-pick", "--abort"); err != nil {
		var ce *CommandError
		if !errors.As(err, &ce) {
			slog.Warn("git.cherry_pick_abort", "err", err)
		}
	}
}

// PushNewBranch pushes branch to origin and sets it as upstream.
func (r *Runner) PushNewBranch(ctx context.Context, branch string) error {
	_, err := r.remote(ctx, "push", "-q", "--set-upstream", "origin", branch)
	return err
}
