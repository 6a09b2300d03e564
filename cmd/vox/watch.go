package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/voxnotes/internal/config"
	"github.com/fyrsmithlabs/voxnotes/internal/inbox"
	"github.com/fyrsmithlabs/voxnotes/internal/monitor"
	"github.com/fyrsmithlabs/voxnotes/internal/notes"
)

func newWatchCmd(g *globalFlags) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Ingest transcripts dropped into the inbox folder",
		Long: `Watch the inbox folder for .txt transcripts written by an external
recognizer. Each file is processed like a typed note and renamed to .done,
or to .failed when its content can never be accepted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()

			if dir == "" {
				dir = a.cfg.Inbox.Dir
			}
			if dir, err = config.ExpandPath(dir); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			w, err := inbox.New(dir, a.reg.Notes(),
				inbox.WithLogger(a.logger.Named("inbox")),
				inbox.OnResult(func(r inbox.Result) {
					if g.jsonOut {
						_ = writeJSON(out, r.Outcome)
						return
					}
					if r.Err != nil {
						fmt.Fprintf(out, "%s: %s\n", r.Path, notes.UserMessage(r.Err))
						return
					}
					fmt.Fprintln(out, monitor.FormatOutcome(r.Outcome))
				}))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (ctrl+c to stop)\n", dir)
			return w.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "inbox folder (default: inbox.dir from config)")
	return cmd
}
