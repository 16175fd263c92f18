// Package gittest builds throwaway git repositories for tests that drive the
// real git binary.
package gittest

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// Setup skips the test when git is missing and isolates git from the host
// configuration (signing, hooks, default branch name).
func Setup(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found on PATH")
	}
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")
	for _, kv := range [][2]string{
		{"user.name", "Tester"},
		{"user.email", "tester@example.com"},
		{"init.defaultBranch", "main"},
		{"commit.gpgsign", "false"},
		{"advice.detachedHead", "false"},
	} {
		Git(t, home, "config", "--global", kv[0], kv[1])
	}
}

// Git runs git in dir and returns its trimmed stdout, failing the test on
// a non-zero exit.
func Git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("git %s: %v\n%s%s", strings.Join(args, " "), err, stdout.String(), stderr.String())
	}
	return strings.TrimSpace(stdout.String())
}

// Remote is a bare repository plus a scratch clone used to author history.
type Remote struct {
	Bare string // path of the bare repository
	Work string // authoring working tree, origin = Bare
	URL  string // file:// URL of Bare, so shallow operations are honoured
}

// NewRemote creates an empty bare repository whose HEAD is main and a work
// tree pointing at it.
func NewRemote(t *testing.T) *Remote {
	t.Helper()
	root := t.TempDir()
	r := &Remote{
		Bare: filepath.Join(root, "remote.git"),
		Work: filepath.Join(root, "author"),
	}
	r.URL = "file://" + filepath.ToSlash(r.Bare)

	Git(t, root, "init", "-q", "--bare", r.Bare)
	Git(t, r.Bare, "symbolic-ref", "HEAD", "refs/heads/main")
	Git(t, root, "init", "-q", r.Work)
	Git(t, r.Work, "symbolic-ref", "HEAD", "refs/heads/main")
	Git(t, r.Work, "remote", "add", "origin", r.Bare)
	return r
}

// Commit writes content to file in the work tree and commits it with the
// given author ("Name <email>"). It returns the new commit sha.
func (r *Remote) Commit(t *testing.T, file, content, message, author string) string {
	t.Helper()
	if err := os.WriteFile(filepath.Join(r.Work, file), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", file, err)
	}
	Git(t, r.Work, "add", file)
	Git(t, r.Work, "commit", "-q", "-m", message, "--author", author)
	return r.Head(t)
}

// Head returns the sha checked out in the work tree.
func (r *Remote) Head(t *testing.T) string {
	t.Helper()
	return Git(t, r.Work, "rev-parse", "HEAD")
}

// Push pushes refspecs from the work tree to the bare repository.
func (r *Remote) Push(t *testing.T, refspecs ...string) {
	t.Helper()
	Git(t, r.Work, append([]string{"push", "-q", "origin"}, refspecs...)...)
}

// RefSHA resolves ref in the bare repository, or "" when it does not exist.
func (r *Remote) RefSHA(t *testing.T, ref string) string {
	t.Helper()
	cmd := exec.Command("git", "rev-parse", "--verify", "-q", ref)
	cmd.Dir = r.Bare
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
