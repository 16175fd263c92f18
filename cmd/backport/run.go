package main

import (
	"log/slog"

	"github.com/sethvargo/go-githubactions"
	"github.com/spf13/cobra"

	"github.com/ealebed/gh-backport-command/internal/processor"
)

func newRunCmd() *cobra.Command {
	var eventPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Handle one issue_comment event payload and exit",
		Long: `run handles the issue_comment payload at --event (default $GITHUB_EVENT_PATH),
the way a workflow runner hands it over. The exit status is the number of
target branches that failed, or 1 when the run could not be carried out.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig("text")
			if err != nil {
				return err
			}
			if eventPath == "" {
				eventPath = cfg.EventPath
			}

			p := processor.New(cfg, githubactions.New())
			code, err := p.HandleEventFile(cmd.Context(), eventPath)
			if err != nil {
				slog.Error("run.failed", "err", err)
				return err
			}
			slog.Info("run.done", "exit_code", code)
			exitCode = code
			return nil
		},
	}
	cmd.Flags().StringVar(&eventPath, "event", "", "path of the event payload (default $GITHUB_EVENT_PATH)")
	return cmd
}
