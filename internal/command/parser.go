// Package command recognises "/backport" chat commands in issue comments.
package command

import (
	"errors"
	"regexp"
)

const (
	// Keyword is the first token of every command.
	Keyword = "/backport"
	// DryRunFlag may follow the keyword.
	DryRunFlag = "--dry-run"

	// Usage is posted back on the thread when a command names no branches.
	Usage = "<pre>Usage: /backport [--dry-run] &lt;branch1&gt; [&lt;branch2&gt; ...]</pre>"
)

// ErrUsage means the comment was a command but named no target branches.
// It is a user error: callers reply with Usage and still succeed.
var ErrUsage = errors.New("backport command names no target branches")

// Invocation is a parsed command.
type Invocation struct {
	DryRun   bool
	Branches []string // in the order the user wrote them, duplicates kept
}

var (
	// Everything outside the characters allowed in branch names goes,
	// newlines included, so nothing else can reach a git argv.
	reDisallowed = regexp.MustCompile(`[^0-9A-Za-z/\-. ]`)
	reSpaces     = regexp.MustCompile(` +`)
)

// Sanitize drops every character that may not appear in a command.
func Sanitize(body string) string {
	return reDisallowed.ReplaceAllString(body, "")
}

// Parse extracts an Invocation from a raw comment body.
//
// It returns (nil, nil) when the comment is not a command, (nil, ErrUsage)
// when it is a command without branches, and the invocation otherwise.
// Leading spaces make the first token empty, so " /backport x" is not a
// command.
func Parse(body string) (*Invocation, error) {
	tokens := reSpaces.Split(Sanitize(body), -1)
	if len(tokens) == 0 || tokens[0] != Keyword {
		return nil, nil
	}
	tokens = tokens[1:]

	inv := &Invocation{}
	if len(tokens) > 0 && tokens[0] == DryRunFlag {
		inv.DryRun = true
		tokens = tokens[1:]
	}
	for _, tok := range tokens {
		// trailing spaces leave one empty token behind
		if tok != "" {
			inv.Branches = append(inv.Branches, tok)
		}
	}
	if len(inv.Branches) == 0 {
		return nil, ErrUsage
	}
	return inv, nil
}
