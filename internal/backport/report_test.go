package backport

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ealebed/gh-backport-command/internal/command"
	"github.com/ealebed/gh-backport-command/internal/model"
)

func TestFailureMessage(t *testing.T) {
	got := FailureMessage("backporting into branch release", errors.New("git cherry-pick -x abc: exit status 1\n<<<<<<< HEAD"))
	want := "Error occurred while backporting into branch release.\n\n" +
		"<details><summary>Error</summary><pre>git cherry-pick -x abc: exit status 1\n&lt;&lt;&lt;&lt;&lt;&lt;&lt; HEAD</pre></details>"
	assert.Equal(t, want, got)
}

func TestSuccessAndDryRunMessages(t *testing.T) {
	a := model.Attempt{Branch: "release", PullRequestURL: "https://github.com/o/r/pull/9"}
	assert.Equal(t, "Backporting into branch release was successful. New PR: https://github.com/o/r/pull/9", SuccessMessage(a))
	assert.Equal(t, "Dry run backporting into branch release was successful.", DryRunMessage(a))
}

func TestReporter(t *testing.T) {
	comments := &fakeComments{}
	r := &Reporter{Comments: comments}
	ctx := context.Background()

	require.NoError(t, r.Usage(ctx, 1))
	require.NoError(t, r.SetupFailure(ctx, 1, errors.New("clone failed")))
	require.Error(t, r.Report(ctx, 1, model.Attempt{Branch: "x", Status: model.Pending}))

	require.Len(t, comments.bodies, 2)
	assert.Equal(t, command.Usage, comments.bodies[0])
	assert.Contains(t, comments.bodies[1], "Error occurred while preparing backport.")
	assert.Contains(t, comments.bodies[1], "clone failed")
}

func TestOutcome(t *testing.T) {
	o := Outcome{
		{Branch: "a", Status: model.Failed},
		{Branch: "b", Status: model.Success},
		{Branch: "c", Status: model.DryRunSuccess},
		{Branch: "d", Status: model.Failed},
	}
	assert.Equal(t, 2, o.Failures())
	assert.Equal(t, 2, o.ExitCode())
	assert.Equal(t, 0, Outcome{}.ExitCode())

	many := make(Outcome, 300)
	for i := range many {
		many[i].Status = model.Failed
	}
	assert.Equal(t, 255, many.ExitCode())
}
